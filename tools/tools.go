package tools

import (
	"context"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stanza-acp/stanza/config"
	"github.com/stanza-acp/stanza/errors"
)

// Tool defines the interface for any action the agent can take during a turn.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// CommandResult is the outcome of a host-executed command.
type CommandResult struct {
	Output    string
	ExitCode  int
	Truncated bool
}

// Host is the side that actually touches files and runs commands. The builtin
// tools never open the filesystem themselves; everything goes through here so
// the editor embedding the agent stays in control.
type Host interface {
	ReadTextFile(ctx context.Context, path string) (string, error)
	WriteTextFile(ctx context.Context, path, content string) error
	RunCommand(ctx context.Context, command string, args []string) (CommandResult, error)
}

// Registry holds the tools available to one session.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry with the builtin host-mediated tools. MCP
// tools are registered on top by the caller.
func NewRegistry(cfg *config.Config, host Host) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.Register(&ReadFileTool{host: host, fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{host: host, fsAccess: &cfg.FilesystemAccess})
	r.Register(&RunCommandTool{host: host, allowedCommands: cfg.AllowedCommands})
	return r
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Active returns every registered tool in registration order.
func (r *Registry) Active() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks if a command is in the allowlist (with regex
// support). An invalid pattern falls back to exact string comparison.
func isCommandAllowed(command string, allowed []string) bool {
	if len(strings.Fields(command)) == 0 {
		return false
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
