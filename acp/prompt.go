package acp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentBlock is one element of a session/prompt's prompt array. The type
// field selects which of the remaining fields are meaningful; unknown types
// are tolerated and rendered on a best-effort basis.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// resource_link fields
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`

	// resource carries an embedded resource object; unknown block kinds may
	// carry a content field worth salvaging.
	Resource *EmbeddedResource `json:"resource,omitempty"`
	Content  json.RawMessage   `json:"content,omitempty"`
}

// EmbeddedResource is the resource payload of a "resource" block.
type EmbeddedResource struct {
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// RenderPrompt flattens prompt content blocks into linear text for the
// backend. Blocks render independently, blank or whitespace-only results are
// dropped, and the survivors are joined with a blank line.
func RenderPrompt(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		part := renderBlock(b)
		if strings.TrimSpace(part) == "" {
			continue
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "\n\n")
}

func renderBlock(b ContentBlock) string {
	switch b.Type {
	case "text":
		return b.Text
	case "resource":
		if b.Resource == nil {
			return ""
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "[resource %s]", b.Resource.URI)
		if b.Resource.Text != "" {
			sb.WriteString("\n")
			sb.WriteString(b.Resource.Text)
		}
		return sb.String()
	case "resource_link":
		label := b.Name
		if label == "" {
			label = b.Title
		}
		if label != "" {
			return fmt.Sprintf("[resource %s (%s)]", label, b.URI)
		}
		return fmt.Sprintf("[resource %s]", b.URI)
	case "image", "audio":
		label := b.URI
		if label == "" {
			label = b.Name
		}
		if label == "" {
			return fmt.Sprintf("[%s]", b.Type)
		}
		return fmt.Sprintf("[%s %s]", b.Type, label)
	default:
		// Unknown kind: salvage a text or content field if one is present.
		if b.Text != "" {
			return b.Text
		}
		if len(b.Content) > 0 {
			var s string
			if err := json.Unmarshal(b.Content, &s); err == nil {
				return s
			}
		}
		return ""
	}
}

// splitChunks cuts text into the pieces streamed as agent_message_chunk
// updates. Granularity "rune" streams per character; anything else sends the
// text whole.
func splitChunks(text, granularity string) []string {
	if text == "" {
		return nil
	}
	if granularity != "rune" {
		return []string{text}
	}
	runes := []rune(text)
	out := make([]string, 0, len(runes))
	for _, r := range runes {
		out = append(out, string(r))
	}
	return out
}
