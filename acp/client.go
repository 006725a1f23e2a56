package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	goerrors "errors"
)

// ErrUnsupported is returned by a helper whose capability was not advertised
// by the host at initialize. Nothing is sent over the wire in that case.
var ErrUnsupported = goerrors.New("capability not supported by client")

// InvalidPathError rejects a relative path before any wire traffic.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("path %q is not absolute", e.Path)
}

// ClientCapabilities is the capability document the host advertises at
// initialize, normalized exactly once; helpers consult only this struct.
type ClientCapabilities struct {
	FS struct {
		ReadTextFile  bool `json:"readTextFile"`
		WriteTextFile bool `json:"writeTextFile"`
	} `json:"fs"`
	Terminal bool `json:"terminal"`
}

// ClientInfo identifies the host, as sent in initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version,omitempty"`
}

// EnvVar is the wire shape for terminal environment variables.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PermissionOption is one choice offered to the user in a permission prompt.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

// ToolCallRef identifies the tool call a permission request is about.
type ToolCallRef struct {
	ToolCallID string         `json:"toolCallId"`
	Title      string         `json:"title,omitempty"`
	RawInput   map[string]any `json:"rawInput,omitempty"`
}

// PermissionOutcome is the host's answer to session/request_permission.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// Allowed reports whether the user selected an allow-flavored option.
func (o PermissionOutcome) Allowed() bool {
	return o.Outcome == "selected" && (o.OptionID == "allow-once" || o.OptionID == "allow-always")
}

// ExitStatus is a terminal's exit report.
type ExitStatus struct {
	ExitCode *int   `json:"exitCode,omitempty"`
	Signal   string `json:"signal,omitempty"`
}

// TerminalOutput is the current captured output of a terminal.
type TerminalOutput struct {
	Output     string      `json:"output"`
	Truncated  bool        `json:"truncated"`
	ExitStatus *ExitStatus `json:"exitStatus,omitempty"`
}

// Client wraps the host-provided methods behind capability checks. Every
// helper is validate, build params, Router.Request; results come back in the
// router's shape unchanged.
type Client struct {
	router  *Router
	caps    ClientCapabilities
	timeout time.Duration
}

// NewClient binds helpers to a router and the capability document negotiated
// at initialize. A zero timeout selects the router default.
func NewClient(router *Router, caps ClientCapabilities, timeout time.Duration) *Client {
	return &Client{router: router, caps: caps, timeout: timeout}
}

// ReadTextFile asks the host for a file's contents. Requires the
// fs.readTextFile capability and an absolute path.
func (c *Client) ReadTextFile(ctx context.Context, sessionID, path string, line, limit *int) (string, error) {
	if !c.caps.FS.ReadTextFile {
		return "", ErrUnsupported
	}
	if !filepath.IsAbs(path) {
		return "", &InvalidPathError{Path: path}
	}
	params := map[string]any{"sessionId": sessionID, "path": path}
	if line != nil {
		params["line"] = *line
	}
	if limit != nil {
		params["limit"] = *limit
	}
	raw, err := c.router.Request(ctx, "fs/read_text_file", params, c.timeout)
	if err != nil {
		return "", err
	}
	var result struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("invalid fs/read_text_file result: %w", err)
	}
	return result.Content, nil
}

// WriteTextFile asks the host to replace a file's contents. Requires the
// fs.writeTextFile capability and an absolute path.
func (c *Client) WriteTextFile(ctx context.Context, sessionID, path, content string) error {
	if !c.caps.FS.WriteTextFile {
		return ErrUnsupported
	}
	if !filepath.IsAbs(path) {
		return &InvalidPathError{Path: path}
	}
	params := map[string]any{"sessionId": sessionID, "path": path, "content": content}
	_, err := c.router.Request(ctx, "fs/write_text_file", params, c.timeout)
	return err
}

// CreateTerminalParams collects the optional knobs for CreateTerminal. Env
// accepts a map[string]string, a []EnvVar, or the wire shape directly.
type CreateTerminalParams struct {
	Command         string
	Args            []string
	Env             any
	Cwd             string
	OutputByteLimit int
}

// CreateTerminal asks the host to spawn a command. Requires the terminal
// capability. Returns the host's terminal id.
func (c *Client) CreateTerminal(ctx context.Context, sessionID string, p CreateTerminalParams) (string, error) {
	if !c.caps.Terminal {
		return "", ErrUnsupported
	}
	if p.Cwd != "" && !filepath.IsAbs(p.Cwd) {
		return "", &InvalidPathError{Path: p.Cwd}
	}
	env, err := NormalizeEnv(p.Env)
	if err != nil {
		return "", err
	}
	params := map[string]any{
		"sessionId": sessionID,
		"command":   p.Command,
	}
	if len(p.Args) > 0 {
		params["args"] = p.Args
	}
	if len(env) > 0 {
		params["env"] = env
	}
	if p.Cwd != "" {
		params["cwd"] = p.Cwd
	}
	if p.OutputByteLimit > 0 {
		params["outputByteLimit"] = p.OutputByteLimit
	}
	raw, err := c.router.Request(ctx, "terminal/create", params, c.timeout)
	if err != nil {
		return "", err
	}
	var result struct {
		TerminalID string `json:"terminalId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("invalid terminal/create result: %w", err)
	}
	return result.TerminalID, nil
}

// TerminalOutput fetches the captured output of a terminal.
func (c *Client) TerminalOutput(ctx context.Context, sessionID, terminalID string) (TerminalOutput, error) {
	var out TerminalOutput
	if !c.caps.Terminal {
		return out, ErrUnsupported
	}
	raw, err := c.router.Request(ctx, "terminal/output", terminalParams(sessionID, terminalID), c.timeout)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("invalid terminal/output result: %w", err)
	}
	return out, nil
}

// WaitForTerminalExit blocks until the terminal's command exits. The wait is
// bounded by ctx rather than the helper timeout; commands may legitimately
// outlive a single request deadline.
func (c *Client) WaitForTerminalExit(ctx context.Context, sessionID, terminalID string, timeout time.Duration) (ExitStatus, error) {
	var status ExitStatus
	if !c.caps.Terminal {
		return status, ErrUnsupported
	}
	raw, err := c.router.Request(ctx, "terminal/wait_for_exit", terminalParams(sessionID, terminalID), timeout)
	if err != nil {
		return status, err
	}
	var result struct {
		ExitStatus ExitStatus `json:"exitStatus"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return status, fmt.Errorf("invalid terminal/wait_for_exit result: %w", err)
	}
	return result.ExitStatus, nil
}

// KillTerminal asks the host to kill the terminal's command.
func (c *Client) KillTerminal(ctx context.Context, sessionID, terminalID string) error {
	if !c.caps.Terminal {
		return ErrUnsupported
	}
	_, err := c.router.Request(ctx, "terminal/kill", terminalParams(sessionID, terminalID), c.timeout)
	return err
}

// ReleaseTerminal frees the host-side resources for a terminal.
func (c *Client) ReleaseTerminal(ctx context.Context, sessionID, terminalID string) error {
	if !c.caps.Terminal {
		return ErrUnsupported
	}
	_, err := c.router.Request(ctx, "terminal/release", terminalParams(sessionID, terminalID), c.timeout)
	return err
}

// RequestPermission asks the user, via the host, to approve a tool call.
// The tool call reference must carry a non-empty string id. When opts is
// empty a default allow-once/reject-once pair is offered.
func (c *Client) RequestPermission(ctx context.Context, sessionID string, tc ToolCallRef, opts []PermissionOption) (PermissionOutcome, error) {
	var outcome PermissionOutcome
	if tc.ToolCallID == "" {
		return outcome, goerrors.New("permission request requires a tool call id")
	}
	if len(opts) == 0 {
		opts = DefaultPermissionOptions()
	}
	for _, o := range opts {
		if o.OptionID == "" || o.Name == "" || o.Kind == "" {
			return outcome, fmt.Errorf("permission option %q is incomplete", o.OptionID)
		}
	}
	params := map[string]any{
		"sessionId": sessionID,
		"toolCall":  tc,
		"options":   opts,
	}
	raw, err := c.router.Request(ctx, "session/request_permission", params, c.timeout)
	if err != nil {
		return outcome, err
	}
	var result struct {
		Outcome PermissionOutcome `json:"outcome"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return outcome, fmt.Errorf("invalid session/request_permission result: %w", err)
	}
	return result.Outcome, nil
}

// DefaultPermissionOptions is the fallback pair offered when the caller does
// not supply its own options.
func DefaultPermissionOptions() []PermissionOption {
	return []PermissionOption{
		{OptionID: "allow-once", Name: "Allow once", Kind: "allow_once"},
		{OptionID: "reject-once", Name: "Reject once", Kind: "reject_once"},
	}
}

// NormalizeEnv converts any accepted environment representation to the wire
// shape. Nil input yields nil.
func NormalizeEnv(env any) ([]EnvVar, error) {
	switch e := env.(type) {
	case nil:
		return nil, nil
	case []EnvVar:
		return e, nil
	case map[string]string:
		out := make([]EnvVar, 0, len(e))
		for name, value := range e {
			out = append(out, EnvVar{Name: name, Value: value})
		}
		return out, nil
	case []any:
		out := make([]EnvVar, 0, len(e))
		for _, item := range e {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("environment entry %v is not a name/value pair", item)
			}
			name, _ := m["name"].(string)
			value, _ := m["value"].(string)
			if name == "" {
				return nil, fmt.Errorf("environment entry %v has no name", item)
			}
			out = append(out, EnvVar{Name: name, Value: value})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported environment type %T", env)
	}
}

func terminalParams(sessionID, terminalID string) map[string]any {
	return map[string]any{"sessionId": sessionID, "terminalId": terminalID}
}
