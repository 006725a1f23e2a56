package acp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	goerrors "errors"
)

// JSON-RPC error codes used on the wire. The set is deliberately small:
// the standard params/method/internal codes plus one domain code for session
// operations attempted before initialize.
const (
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
	CodeNotInitialized = -32000
)

// Decode failure tags. Each is non-fatal: the read loop logs and moves on to
// the next line. ErrBlankLine marks the distinguishable empty case, which is
// skipped silently rather than reported.
var (
	ErrBlankLine   = goerrors.New("blank line")
	ErrInvalidJSON = goerrors.New("invalid JSON")
	ErrNotObject   = goerrors.New("top-level value is not an object")
	ErrBadVersion  = goerrors.New(`missing or wrong "jsonrpc" version`)

	// ErrUnsafeEncoding reports the defensive invariant in Codec.Write: an
	// encoded message must never contain a raw newline or carriage return.
	ErrUnsafeEncoding = goerrors.New("encoded message contains a raw newline byte")
)

// MessageKind discriminates the four JSON-RPC message variants.
type MessageKind int

const (
	KindInvalid MessageKind = iota
	KindRequest
	KindNotification
	KindResponse
	KindError
)

// WireError is the JSON-RPC error object. It doubles as a Go error so the
// client helpers can hand a host-reported failure straight back to callers.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is one JSON-RPC 2.0 message in either direction. ID is an integer
// or a string; it is nil on notifications. Result keeps the raw bytes so a
// JSON null result ({"result":null}) stays distinguishable from an absent
// result field.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// Kind classifies the message. Responses are recognized by a result or error
// member; anything with a method and an id is a request, method without id a
// notification.
func (m *Message) Kind() MessageKind {
	switch {
	case m.Error != nil:
		return KindError
	case len(m.Result) > 0:
		return KindResponse
	case m.Method != "" && m.ID != nil:
		return KindRequest
	case m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// IsReply reports whether the message is a response or error response, i.e.
// a candidate for correlation against a pending outbound request.
func (m *Message) IsReply() bool {
	k := m.Kind()
	return k == KindResponse || k == KindError
}

// NewRequest builds an outbound request, marshalling params eagerly so an
// unserializable value surfaces before anything is written to the wire.
func NewRequest(id any, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds an outbound notification (no id).
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// NewResponse builds a success response. A nil result is encoded as an
// explicit JSON null; the result member is always present.
func NewResponse(id any, result any) (*Message, error) {
	raw := json.RawMessage("null")
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		raw = b
	}
	return &Message{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewError builds an error response.
func NewError(id any, code int, message string, data any) *Message {
	return &Message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &WireError{Code: code, Message: message, Data: data},
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

// DecodeLine parses one newline-delimited JSON-RPC message. Trailing CR/LF
// is trimmed first. A blank line returns ErrBlankLine; malformed input
// returns one of the decode failure tags wrapped with detail.
func DecodeLine(line []byte) (*Message, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, ErrBlankLine
	}

	var probe any
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotObject, probe)
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if msg.JSONRPC != "2.0" {
		return nil, fmt.Errorf("%w: %q", ErrBadVersion, msg.JSONRPC)
	}
	return &msg, nil
}

// Codec is the single owner of the outbound stream. Every write is one
// complete JSON line plus a trailing newline, emitted atomically with
// respect to other writers; nothing else in the process may touch stdout.
type Codec struct {
	mu sync.Mutex
	w  io.Writer
}

func NewCodec(w io.Writer) *Codec {
	return &Codec{w: w}
}

// Write serializes msg as compact JSON and writes it as a single line. The
// serializer escapes embedded newlines inside strings; Write still asserts
// the invariant and refuses to emit a line that would corrupt the stream.
func (c *Codec) Write(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	if bytes.IndexByte(data, '\n') >= 0 || bytes.IndexByte(data, '\r') >= 0 {
		return ErrUnsafeEncoding
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if f, ok := c.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush message: %w", err)
		}
	}
	return nil
}
