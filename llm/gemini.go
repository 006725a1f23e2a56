package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/stanza-acp/stanza/errors"
	"github.com/stanza-acp/stanza/tools"
	"google.golang.org/api/option"
)

// GeminiClient is a client for the Google Gemini API.
type GeminiClient struct {
	model *genai.GenerativeModel
}

// NewGeminiClient creates a new GeminiClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiClient(ctx context.Context, modelName string) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	model := client.GenerativeModel(modelName)

	return &GeminiClient{
		model: model,
	}, nil
}

// Chat sends a chat request to the Gemini API.
func (g *GeminiClient) Chat(ctx context.Context, turns []Turn, availableTools []tools.Tool) (*Turn, error) {
	history := convertTurnsToGeminiContent(turns)

	geminiTools := convertToolsToGeminiTools(availableTools)
	g.model.Tools = geminiTools

	// The last turn is the new prompt.
	lastMessage := history[len(history)-1]

	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}

	return processGeminiResponse(resp)
}

// convertTurnsToGeminiContent converts our internal turn format to Gemini's.
// Tool result turns render as function responses from the user side.
func convertTurnsToGeminiContent(turns []Turn) []*genai.Content {
	var contents []*genai.Content
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			parts := []genai.Part{}
			if t.Content != "" {
				parts = append(parts, genai.Text(t.Content))
			}
			for _, tc := range t.ToolCalls {
				parts = append(parts, genai.FunctionCall{
					Name: tc.Name,
					Args: map[string]any{"args": tc.Args},
				})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case RoleTool:
			if len(t.ToolCalls) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     t.ToolCalls[0].Name,
					Response: map[string]any{"result": t.Content},
				}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(t.Content)},
			})
		}
	}
	return contents
}

// convertToolsToGeminiTools converts our Tool interface to Gemini's
// FunctionDeclaration format.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration

	for _, tool := range ts {
		// Every tool takes a generic map of string-to-any arguments, nested
		// under an "args" key because Gemini requires a non-empty object
		// schema.
		fd := &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"args": {
						Type:        genai.TypeObject,
						Description: "Arguments for the function call, as a map.",
					},
				},
				Required: []string{"args"},
			},
		}
		funcDecls = append(funcDecls, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// processGeminiResponse converts a Gemini API response into our internal turn
// format. Function calls are returned as tool calls for the caller to
// execute; nothing runs here.
func processGeminiResponse(resp *genai.GenerateContentResponse) (*Turn, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}

	content := resp.Candidates[0].Content
	var responseContent string
	var toolCalls []ToolCall

	for _, part := range content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseContent += string(v)
		case genai.FunctionCall:
			// Arguments are nested under an "args" key, as declared in
			// convertToolsToGeminiTools.
			args, ok := v.Args["args"].(map[string]interface{})
			if !ok {
				args = v.Args
			}
			toolCalls = append(toolCalls, ToolCall{
				Name: v.Name,
				Args: args,
			})
		default:
			return nil, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}

	return &Turn{
		Role:      RoleAssistant,
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
