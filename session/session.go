// Package session holds the in-memory conversation state for one ACP
// session. Sessions live for the process lifetime only; there is no on-disk
// persistence and no teardown short of process exit.
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Turn roles. The history alternates user and agent turns; the protocol
// layer appends exactly one of each per completed prompt.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is a single entry in a session's ordered history.
type Turn struct {
	Role    string
	Content string
}

// MCPServer describes one MCP server requested by the client at session
// creation, in the wire shape of session/new's mcpServers entries.
type MCPServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Session is a conversation context with its own working directory, mode and
// turn history. Cwd is always an absolute path; the protocol layer rejects
// anything else before a Session is created.
type Session struct {
	ID         string
	Cwd        string
	Mode       string
	MCPServers []MCPServer
	Status     string

	mu      sync.Mutex
	history []Turn
}

// New creates a session with a fresh process-unique id.
func New(cwd string, servers []MCPServer) *Session {
	return &Session{
		ID:         NewID(),
		Cwd:        cwd,
		Mode:       "auto",
		MCPServers: servers,
		Status:     "active",
	}
}

// NewID returns a session id: a fixed prefix plus a random token.
func NewID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Append adds a turn to the history. The history is append-only.
func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Content: content})
}

// History returns a copy of the turn history in order.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}
