// Package acp implements the agent side of a client/agent protocol spoken as
// newline-delimited JSON-RPC 2.0 over stdio. The host (typically an editor)
// owns the process and the filesystem; the agent owns sessions and model
// turns.
//
// The package splits into four pieces:
//
//   - Message and Codec: one compact JSON object per line, decoded and
//     written atomically. Stdout carries nothing but protocol lines.
//   - Router: correlation for agent-initiated requests to the host. Callers
//     block on their own reply channel; the read loop resolves them.
//   - Agent: the inbound state machine (initialize, session/new,
//     session/set_mode, session/prompt, session/cancel) and the prompt turn
//     loop against a model backend.
//   - Client: capability-gated helpers for host-provided services
//     (fs/read_text_file, fs/write_text_file, terminal/*,
//     session/request_permission). A helper whose capability was not
//     advertised fails locally without touching the wire.
package acp
