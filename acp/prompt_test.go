package acp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPromptJoinsTextBlocks(t *testing.T) {
	out := RenderPrompt([]ContentBlock{
		{Type: "text", Text: "first"},
		{Type: "text", Text: "   "},
		{Type: "text", Text: "second"},
	})
	assert.Equal(t, "first\n\nsecond", out)
}

func TestRenderPromptEmbeddedResource(t *testing.T) {
	out := RenderPrompt([]ContentBlock{
		{Type: "text", Text: "look at this"},
		{Type: "resource", Resource: &EmbeddedResource{
			URI:  "file:///tmp/notes.txt",
			Text: "the contents",
		}},
	})
	assert.Equal(t, "look at this\n\n[resource file:///tmp/notes.txt]\nthe contents", out)
}

func TestRenderPromptResourceLink(t *testing.T) {
	out := RenderPrompt([]ContentBlock{
		{Type: "resource_link", Name: "notes", URI: "file:///tmp/notes.txt"},
	})
	assert.Equal(t, "[resource notes (file:///tmp/notes.txt)]", out)

	out = RenderPrompt([]ContentBlock{
		{Type: "resource_link", URI: "file:///tmp/notes.txt"},
	})
	assert.Equal(t, "[resource file:///tmp/notes.txt]", out)
}

func TestRenderPromptMediaPlaceholders(t *testing.T) {
	out := RenderPrompt([]ContentBlock{
		{Type: "image", URI: "file:///tmp/pic.png"},
		{Type: "audio", Name: "clip"},
	})
	assert.Equal(t, "[image file:///tmp/pic.png]\n\n[audio clip]", out)
}

func TestRenderPromptSalvagesUnknownBlocks(t *testing.T) {
	out := RenderPrompt([]ContentBlock{
		{Type: "mystery", Text: "salvaged text"},
		{Type: "mystery2", Content: json.RawMessage(`"salvaged content"`)},
		{Type: "mystery3", Content: json.RawMessage(`{"not":"a string"}`)},
	})
	assert.Equal(t, "salvaged text\n\nsalvaged content", out)
}

func TestRenderPromptEmptyInput(t *testing.T) {
	assert.Equal(t, "", RenderPrompt(nil))
	assert.Equal(t, "", RenderPrompt([]ContentBlock{{Type: "text", Text: "  \n "}}))
}

func TestSplitChunks(t *testing.T) {
	assert.Nil(t, splitChunks("", "whole"))
	assert.Equal(t, []string{"héllo"}, splitChunks("héllo", "whole"))
	assert.Equal(t, []string{"h", "é", "y"}, splitChunks("héy", "rune"))
}
