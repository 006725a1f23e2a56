package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stanza-acp/stanza/config"
	"github.com/stanza-acp/stanza/llm"
	"github.com/stanza-acp/stanza/session"
	"github.com/stanza-acp/stanza/tools"
	"github.com/stanza-acp/stanza/tools/mcp"
)

// ProtocolVersion is the single integer exchanged at startup. There is no
// further version negotiation.
const ProtocolVersion = 1

// Info identifies this agent in the initialize response.
type Info struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Version string `json:"version"`
}

// Hooks are optional observation points for the surrounding CLI. The
// protocol core calls them synchronously and ignores their cost; wiring them
// to an audit store is the caller's business.
type Hooks struct {
	ToolCall   func(sessionID, callID, name string, args map[string]any)
	ToolResult func(sessionID, callID, name, result string, err error)
	Permission func(sessionID, callID, name string, allowed bool)
}

// Options configures an Agent.
type Options struct {
	Info    Info
	Backend llm.Client
	Config  *config.Config
	Log     *slog.Logger
	Hooks   Hooks
}

// Agent is the protocol state machine. One Agent serves exactly one host
// connection over stdio; all mutable state is owned by the dispatcher
// goroutine inside Serve, so no two inbound messages are ever processed
// concurrently against it.
type Agent struct {
	info    Info
	backend llm.Client
	cfg     *config.Config
	log     *slog.Logger
	hooks   Hooks

	codec  *Codec
	router *Router
	client *Client

	// Set by initialize; nil until then. No session operation is valid
	// while protocolVersion is unset.
	protocolVersion *int
	clientInfo      ClientInfo
	caps            ClientCapabilities

	sessions map[string]*session.Session
	mcpPools map[string][]*mcp.Pool
}

// New creates an Agent. A nil backend falls back to the deterministic mock
// client; a nil config gets library defaults.
func New(opts Options) *Agent {
	if opts.Backend == nil {
		opts.Backend = &llm.MockClient{}
	}
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Agent{
		info:     opts.Info,
		backend:  opts.Backend,
		cfg:      opts.Config,
		log:      opts.Log,
		hooks:    opts.Hooks,
		sessions: make(map[string]*session.Session),
		mcpPools: make(map[string][]*mcp.Pool),
	}
}

// Serve runs the protocol loop until in reaches EOF or ctx is cancelled.
// Only JSON-RPC lines are written to out; diagnostics go to the slog handler.
//
// The reader goroutine is the only place replies are resolved, and handlers
// run on a separate dispatcher goroutine, so a handler suspended inside
// Router.Request never blocks the very read that will unblock it.
func (a *Agent) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	a.codec = NewCodec(out)
	a.router = NewRouter(a.codec, a.log)

	inbox := make(chan *Message, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range inbox {
			a.dispatch(ctx, msg)
		}
	}()

	reader := bufio.NewReader(in)
	var readErr error
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			a.deliver(line, inbox)
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
				a.log.Error("read loop terminated", "err", err)
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Shut down in order: stop accepting handler work, then unblock any
	// handler still waiting on a host reply so the dispatcher can drain.
	close(inbox)
	a.router.Stop()
	<-done

	// Collaborator cleanup; sessions themselves die with the process.
	for id, pools := range a.mcpPools {
		for _, p := range pools {
			if err := p.Close(); err != nil {
				a.log.Warn("closing mcp pool", "session", id, "err", err)
			}
		}
	}
	return readErr
}

// deliver decodes one line and routes it: replies to the router, everything
// else to the dispatcher. Decode failures drop the line and never stop the
// loop.
func (a *Agent) deliver(line []byte, inbox chan<- *Message) {
	msg, err := DecodeLine(line)
	if err != nil {
		if err != ErrBlankLine {
			a.log.Warn("dropping malformed line", "err", err)
		}
		return
	}
	if a.router.Resolve(msg) {
		return
	}
	inbox <- msg
}

// dispatch handles a single inbound request or notification. A panicking
// handler is logged and absorbed here; it must never take the process down.
func (a *Agent) dispatch(ctx context.Context, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("handler fault", "method", msg.Method, "panic", r)
		}
	}()

	switch msg.Kind() {
	case KindRequest:
		a.handleRequest(ctx, msg)
	case KindNotification:
		a.handleNotification(ctx, msg)
	default:
		a.log.Warn("dropping unclassifiable message")
	}
}

// handleRequest is the closed set of methods this agent answers. Anything
// else is -32601.
func (a *Agent) handleRequest(ctx context.Context, msg *Message) {
	switch msg.Method {
	case "initialize":
		a.handleInitialize(msg)
	case "session/new":
		a.handleSessionNew(ctx, msg)
	case "session/set_mode":
		a.handleSetMode(msg)
	case "session/prompt":
		a.handlePrompt(ctx, msg)
	default:
		a.respond(NewError(msg.ID, CodeMethodNotFound, "Method not found", msg.Method))
	}
}

func (a *Agent) handleNotification(ctx context.Context, msg *Message) {
	switch msg.Method {
	case "session/cancel":
		a.handleCancel(msg)
	default:
		a.log.Debug("ignoring notification", "method", msg.Method)
	}
}

// ---- initialize ----

func (a *Agent) handleInitialize(msg *Message) {
	var p struct {
		ProtocolVersion    json.RawMessage `json:"protocolVersion"`
		ClientCapabilities json.RawMessage `json:"clientCapabilities"`
		ClientInfo         ClientInfo      `json:"clientInfo"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params", err.Error()))
			return
		}
	}

	version, ok := decodeIntStrict(p.ProtocolVersion)
	if !ok {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params",
			"protocolVersion must be an integer"))
		return
	}
	a.log.Debug("initialize", "clientProtocolVersion", version, "client", p.ClientInfo.Name)

	// Normalize the capability document exactly once; every later
	// capability check reads this struct, never the raw JSON.
	var caps ClientCapabilities
	if len(p.ClientCapabilities) > 0 {
		if err := json.Unmarshal(p.ClientCapabilities, &caps); err != nil {
			a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params",
				"clientCapabilities is malformed"))
			return
		}
	}

	v := ProtocolVersion
	a.protocolVersion = &v
	a.clientInfo = p.ClientInfo
	a.caps = caps
	a.client = NewClient(a.router, caps, a.cfg.RequestTimeout())

	result := map[string]any{
		"protocolVersion": ProtocolVersion,
		"agentCapabilities": map[string]any{
			"loadSession": false,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": true,
				"image":           false,
			},
		},
		"agentInfo":   a.info,
		"authMethods": []any{},
	}
	a.respondResult(msg.ID, result)
}

// ---- session/new ----

func (a *Agent) handleSessionNew(ctx context.Context, msg *Message) {
	if !a.initialized(msg.ID) {
		return
	}
	var p struct {
		Cwd        string              `json:"cwd"`
		MCPServers []session.MCPServer `json:"mcpServers"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params", err.Error()))
		return
	}
	if !isAbsPath(p.Cwd) {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params",
			fmt.Sprintf("cwd %q must be an absolute path", p.Cwd)))
		return
	}

	sess := session.New(p.Cwd, p.MCPServers)
	a.sessions[sess.ID] = sess
	a.connectMCP(ctx, sess)

	a.respondResult(msg.ID, map[string]any{"sessionId": sess.ID})
}

// connectMCP starts the session's MCP servers (wire-requested plus
// config-declared). Failures are logged and skipped; a session without its
// MCP tools is degraded, not dead.
func (a *Agent) connectMCP(ctx context.Context, sess *session.Session) {
	servers := make([]session.MCPServer, 0, len(sess.MCPServers)+len(a.cfg.AdditionalMCPServers))
	servers = append(servers, sess.MCPServers...)
	for _, s := range a.cfg.AdditionalMCPServers {
		servers = append(servers, session.MCPServer{Name: s.Name, Command: s.Command, Args: s.Args})
	}
	for _, s := range servers {
		if s.Command == "" {
			continue
		}
		pool, err := mcp.Connect(ctx, s.Name, s.Command, s.Args)
		if err != nil {
			a.log.Warn("mcp server unavailable", "server", s.Name, "err", err)
			continue
		}
		a.mcpPools[sess.ID] = append(a.mcpPools[sess.ID], pool)
	}
}

// ---- session/set_mode ----

func (a *Agent) handleSetMode(msg *Message) {
	if !a.initialized(msg.ID) {
		return
	}
	var p struct {
		SessionID string `json:"sessionId"`
		Mode      string `json:"mode"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params", err.Error()))
		return
	}
	sess, ok := a.sessions[p.SessionID]
	if !ok {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params", "unknown sessionId"))
		return
	}

	sess.Mode = p.Mode
	a.notifyUpdate(sess.ID, map[string]any{
		"sessionUpdate": "mode",
		"mode":          p.Mode,
	})
	// The result member must be present as an explicit null, not omitted.
	a.respondResult(msg.ID, nil)
}

// ---- session/cancel ----

// handleCancel acknowledges a cancellation notification. Cancellation is
// advisory in this design: the agent confirms receipt but does not preempt
// work already started for the session.
func (a *Agent) handleCancel(msg *Message) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		a.log.Warn("malformed session/cancel", "err", err)
		return
	}
	a.notifyUpdate(p.SessionID, map[string]any{
		"sessionUpdate": "agent_message_chunk",
		"content": map[string]any{
			"type": "text",
			"text": "Cancellation noted. Work already in progress will finish; nothing new will start for this turn.",
		},
	})
}

// ---- session/prompt ----

func (a *Agent) handlePrompt(ctx context.Context, msg *Message) {
	if !a.initialized(msg.ID) {
		return
	}
	var p struct {
		SessionID string          `json:"sessionId"`
		Prompt    json.RawMessage `json:"prompt"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params", err.Error()))
		return
	}
	trimmed := bytes.TrimSpace(p.Prompt)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params", "prompt must be a list"))
		return
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(trimmed, &blocks); err != nil {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params",
			"prompt must be a list of content blocks"))
		return
	}
	sess, ok := a.sessions[p.SessionID]
	if !ok {
		a.respond(NewError(msg.ID, CodeInvalidParams, "Invalid params", "unknown sessionId"))
		return
	}

	userText := RenderPrompt(blocks)
	sess.Append(session.RoleUser, userText)

	a.notifyUpdate(sess.ID, map[string]any{
		"sessionUpdate": "plan",
		"entries": []map[string]any{
			{"content": "Respond to the prompt", "priority": "medium", "status": "in_progress"},
		},
	})

	agentText, err := a.runTurn(ctx, sess)
	if err != nil {
		a.log.Error("prompt turn failed", "session", sess.ID, "err", err)
		a.respond(NewError(msg.ID, CodeInternalError, "Internal error", err.Error()))
		return
	}

	sess.Append(session.RoleAgent, agentText)
	a.respondResult(msg.ID, map[string]any{"stopReason": "end_turn"})
}

// runTurn drives the backend/tool loop for one prompt. It returns the full
// agent text for the history; chunks are streamed as they are produced.
func (a *Agent) runTurn(ctx context.Context, sess *session.Session) (string, error) {
	conversation := conversationFor(sess)
	registry := a.toolsFor(sess)
	active := registry.Active()

	var transcript strings.Builder
	for {
		reply, err := a.backend.Chat(ctx, conversation, active)
		if err != nil {
			return "", fmt.Errorf("backend chat failed: %w", err)
		}
		conversation = append(conversation, *reply)

		if strings.TrimSpace(reply.Content) != "" {
			if transcript.Len() > 0 {
				transcript.WriteString("\n")
			}
			transcript.WriteString(reply.Content)
			a.streamAgentText(sess.ID, reply.Content)
		}

		if len(reply.ToolCalls) == 0 {
			return transcript.String(), nil
		}

		for _, call := range reply.ToolCalls {
			result := a.runToolCall(ctx, sess, registry, call)
			conversation = append(conversation, llm.Turn{
				Role:    llm.RoleTool,
				Content: result,
				ToolCalls: []llm.ToolCall{
					{ID: call.ID, Name: call.Name},
				},
			})
		}
	}
}

// runToolCall executes one backend-requested tool call with notifications,
// permission gating and hooks. Errors are folded into the result string so
// the backend can react to them.
func (a *Agent) runToolCall(ctx context.Context, sess *session.Session, registry *tools.Registry, call llm.ToolCall) string {
	callID := call.ID
	if callID == "" {
		callID = "call_" + uuid.NewString()
	}

	a.notifyUpdate(sess.ID, map[string]any{
		"sessionUpdate": "tool_call",
		"toolCall": map[string]any{
			"id":   callID,
			"name": call.Name,
			"args": call.Args,
		},
	})
	if a.hooks.ToolCall != nil {
		a.hooks.ToolCall(sess.ID, callID, call.Name, call.Args)
	}

	result, err := a.executeGated(ctx, sess, registry, callID, call)
	if err != nil {
		result = fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
	}

	a.notifyUpdate(sess.ID, map[string]any{
		"sessionUpdate": "tool_result",
		"toolResult": map[string]any{
			"toolCallId": callID,
			"result":     result,
		},
	})
	if a.hooks.ToolResult != nil {
		a.hooks.ToolResult(sess.ID, callID, call.Name, result, err)
	}
	return result
}

func (a *Agent) executeGated(ctx context.Context, sess *session.Session, registry *tools.Registry, callID string, call llm.ToolCall) (string, error) {
	tool, ok := registry.Lookup(call.Name)
	if !ok {
		return "", fmt.Errorf("tool %q is not available", call.Name)
	}

	if sess.Mode != "auto" {
		outcome, err := a.client.RequestPermission(ctx, sess.ID, ToolCallRef{
			ToolCallID: callID,
			Title:      call.Name,
			RawInput:   call.Args,
		}, nil)
		if err != nil {
			return "", fmt.Errorf("permission request failed: %w", err)
		}
		allowed := outcome.Allowed()
		if a.hooks.Permission != nil {
			a.hooks.Permission(sess.ID, callID, call.Name, allowed)
		}
		if !allowed {
			return "", fmt.Errorf("permission denied by user")
		}
	}

	return tool.Execute(ctx, call.Args)
}

// streamAgentText emits one or more agent_message_chunk updates according to
// the configured granularity.
func (a *Agent) streamAgentText(sessionID, text string) {
	for _, chunk := range splitChunks(text, a.cfg.Stream.Granularity) {
		a.notifyUpdate(sessionID, map[string]any{
			"sessionUpdate": "agent_message_chunk",
			"content": map[string]any{
				"type": "text",
				"text": chunk,
			},
		})
	}
}

// toolsFor assembles the tool registry for a session: host-mediated
// filesystem and command tools plus whatever the session's MCP servers
// provide.
func (a *Agent) toolsFor(sess *session.Session) *tools.Registry {
	host := &sessionHost{agent: a, sess: sess}
	registry := tools.NewRegistry(a.cfg, host)
	for _, pool := range a.mcpPools[sess.ID] {
		for _, t := range pool.Tools() {
			registry.Register(t)
		}
	}
	return registry
}

// conversationFor replays a session's history in the backend's turn shape.
func conversationFor(sess *session.Session) []llm.Turn {
	history := sess.History()
	out := make([]llm.Turn, 0, len(history))
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == session.RoleAgent {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Turn{Role: role, Content: t.Content})
	}
	return out
}

// ---- plumbing ----

// initialized enforces the handshake ordering invariant for session
// operations and writes the -32000 error itself when violated.
func (a *Agent) initialized(id any) bool {
	if a.protocolVersion != nil {
		return true
	}
	a.respond(NewError(id, CodeNotInitialized, "Not initialized",
		"the initialize request must complete before session operations"))
	return false
}

func (a *Agent) respond(msg *Message) {
	if err := a.codec.Write(msg); err != nil {
		a.log.Error("writing response", "err", err)
	}
}

func (a *Agent) respondResult(id any, result any) {
	msg, err := NewResponse(id, result)
	if err != nil {
		a.log.Error("encoding response", "err", err)
		return
	}
	a.respond(msg)
}

func (a *Agent) notifyUpdate(sessionID string, update map[string]any) {
	msg, err := NewNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update":    update,
	})
	if err != nil {
		a.log.Error("encoding notification", "err", err)
		return
	}
	if err := a.codec.Write(msg); err != nil {
		a.log.Error("writing notification", "err", err)
	}
}

// decodeIntStrict accepts only a JSON integer. Floats with fractional parts,
// strings, and missing values all fail.
func decodeIntStrict(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(i), true
}

// isAbsPath treats both Unix and drive-letter absolute paths as absolute, so
// behavior does not depend on the build platform.
func isAbsPath(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

// drainTimeout bounds how long Serve waits for host-side command completion
// during a turn.
const drainTimeout = 5 * time.Minute

// sessionHost adapts the capability-gated client helpers to the tools
// package's Host interface, resolving relative paths against the session's
// working directory.
type sessionHost struct {
	agent *Agent
	sess  *session.Session
}

func (h *sessionHost) ReadTextFile(ctx context.Context, path string) (string, error) {
	return h.agent.client.ReadTextFile(ctx, h.sess.ID, h.resolve(path), nil, nil)
}

func (h *sessionHost) WriteTextFile(ctx context.Context, path, content string) error {
	return h.agent.client.WriteTextFile(ctx, h.sess.ID, h.resolve(path), content)
}

func (h *sessionHost) RunCommand(ctx context.Context, command string, args []string) (tools.CommandResult, error) {
	var res tools.CommandResult
	client := h.agent.client

	termID, err := client.CreateTerminal(ctx, h.sess.ID, CreateTerminalParams{
		Command:         command,
		Args:            args,
		Cwd:             h.sess.Cwd,
		OutputByteLimit: 32_000,
	})
	if err != nil {
		return res, err
	}
	defer func() {
		if err := client.ReleaseTerminal(ctx, h.sess.ID, termID); err != nil {
			h.agent.log.Warn("releasing terminal", "terminal", termID, "err", err)
		}
	}()

	status, err := client.WaitForTerminalExit(ctx, h.sess.ID, termID, drainTimeout)
	if err != nil {
		if killErr := client.KillTerminal(ctx, h.sess.ID, termID); killErr != nil {
			h.agent.log.Warn("killing terminal", "terminal", termID, "err", killErr)
		}
		return res, err
	}

	output, err := client.TerminalOutput(ctx, h.sess.ID, termID)
	if err != nil {
		return res, err
	}

	res.Output = output.Output
	res.Truncated = output.Truncated
	if status.ExitCode != nil {
		res.ExitCode = *status.ExitCode
	}
	return res, nil
}

func (h *sessionHost) resolve(path string) string {
	if isAbsPath(path) {
		return path
	}
	return strings.TrimRight(h.sess.Cwd, "/") + "/" + path
}
