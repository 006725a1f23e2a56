package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/stanza-acp/stanza/errors"
	"github.com/stanza-acp/stanza/tools"
)

// OpenAIClient is a client for the OpenAI Chat Completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient. It requires the OPENAI_API_KEY
// environment variable to be set, and supports OPENAI_BASE_URL for custom API
// endpoints.
func NewOpenAIClient(ctx context.Context, modelName string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK uses functional options for configuration.
	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c, model: modelName}, nil
}

// Chat sends a chat request to OpenAI and converts the response into our
// internal turn format.
func (o *OpenAIClient) Chat(ctx context.Context, turns []Turn, availableTools []tools.Tool) (*Turn, error) {
	chatMessages := convertTurnsToOpenAIMessages(turns)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: chatMessages,
		Tools:    convertToolsToOpenAITools(availableTools),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}

	return processOpenAIResponse(resp)
}

// processOpenAIResponse converts an OpenAI API response into our internal
// turn format.
func processOpenAIResponse(resp *openai.ChatCompletion) (*Turn, error) {
	if len(resp.Choices) == 0 {
		return &Turn{Role: RoleAssistant, Content: ""}, nil
	}

	choice := resp.Choices[0].Message

	// If the model requests tool calls, the ToolCalls field will be present.
	if len(choice.ToolCalls) > 0 {
		var toolCalls []ToolCall
		for _, tc := range choice.ToolCalls {
			var toolArgs map[string]interface{}
			// Arguments are a JSON string; we expect a flat map of arguments.
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &toolArgs); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal function call arguments from OpenAI")
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: toolArgs,
			})
		}
		return &Turn{
			Role:      RoleAssistant,
			Content:   choice.Content,
			ToolCalls: toolCalls,
		}, nil
	}

	return &Turn{Role: RoleAssistant, Content: choice.Content}, nil
}

// convertTurnsToOpenAIMessages converts our internal turn format to OpenAI's.
func convertTurnsToOpenAIMessages(turns []Turn) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: t.Content,
			}
			if len(t.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnion
				for _, tc := range t.ToolCalls {
					argsBytes, err := json.Marshal(tc.Args)
					if err != nil {
						slog.Warn("could not marshal tool call arguments, skipping in history", "tool", tc.Name, "err", err)
						continue
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      tc.Name,
							Arguments: string(argsBytes),
						},
					})
				}
				assistantMessage.ToolCalls = toolCalls
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case RoleTool:
			// A tool turn must carry exactly one ToolCall to identify the
			// call being answered.
			if len(t.ToolCalls) != 1 {
				slog.Warn("malformed tool turn, skipping", "toolCalls", len(t.ToolCalls))
				continue
			}
			chatMessages = append(chatMessages, openai.ToolMessage(t.Content, t.ToolCalls[0].ID))
		case RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(t.Content))
		case RoleUser:
			fallthrough
		default:
			chatMessages = append(chatMessages, openai.UserMessage(t.Content))
		}
	}
	return chatMessages
}

// convertToolsToOpenAITools converts our Tool interface to the OpenAI Tool format.
func convertToolsToOpenAITools(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		// OpenAI models work better when the parameters are not nested. We
		// define a generic object schema and let the model infer the
		// arguments.
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": map[string]any{},
		}

		toolParam := openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  params,
		})
		openAITools = append(openAITools, toolParam)
	}
	return openAITools
}
