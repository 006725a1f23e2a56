package llm

import (
	"context"
	"fmt"

	"github.com/stanza-acp/stanza/tools"
)

// Conversation roles. Session history uses user/assistant; tool result turns
// carry the tool role with the originating call attached.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Turn is one conversation entry in the shape the backends consume. On tool
// result turns, ToolCalls identifies the call being answered.
type Turn struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
}

// Client is the interface for interacting with a Large Language Model.
type Client interface {
	Chat(ctx context.Context, turns []Turn, availableTools []tools.Tool) (*Turn, error)
}

// MockClient is a deterministic backend for tests and offline runs. It parrots
// the last user turn and never calls tools.
type MockClient struct{}

func (m *MockClient) Chat(ctx context.Context, turns []Turn, availableTools []tools.Tool) (*Turn, error) {
	lastUser := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			lastUser = turns[i].Content
			break
		}
	}
	return &Turn{
		Role:    RoleAssistant,
		Content: fmt.Sprintf("I am a mock model. You said: '%s'. I cannot use tools yet.", lastUser),
	}, nil
}
