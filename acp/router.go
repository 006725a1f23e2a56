package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goerrors "errors"
)

// DefaultRequestTimeout bounds an outbound request when the caller does not
// supply a deadline of its own.
const DefaultRequestTimeout = 30 * time.Second

// ErrRouterStopped resolves every request still pending when the router shuts
// down (stdin EOF). Nothing ever hangs on a reply that cannot arrive.
var ErrRouterStopped = goerrors.New("router stopped")

// TimeoutError reports that no reply arrived for an outbound request before
// its deadline. The pending entry is removed on expiry, so a reply that
// straggles in later is discarded as stale rather than matched to a new call.
type TimeoutError struct {
	ID     int64
	Method string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %d (%s) timed out", e.ID, e.Method)
}

// SendError reports that the request could not be written to the wire at all.
// No pending entry exists in that case.
type SendError struct {
	Method string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s failed: %v", e.Method, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

type pendingRequest struct {
	id      int64
	method  string
	created time.Time
	reply   chan *Message
}

// Router owns the outbound id space and the table of in-flight
// agent-initiated requests. Request suspends only its own caller; replies are
// delivered from the read loop via Resolve, so the two sides of a
// request/reply exchange run on independent goroutines and never deadlock on
// the shared stdio stream.
type Router struct {
	codec *Codec
	log   *slog.Logger

	mu      sync.Mutex
	seq     int64
	pending map[int64]*pendingRequest
	stopped bool
	stopCh  chan struct{}
}

func NewRouter(codec *Codec, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		codec:   codec,
		log:     log,
		pending: make(map[int64]*pendingRequest),
		stopCh:  make(chan struct{}),
	}
}

// Request sends method/params to the host and blocks until the matching
// reply arrives, the timeout elapses, ctx is done, or the router stops.
// A zero timeout selects DefaultRequestTimeout. Ids are monotonically
// increasing and never reused while pending.
func (r *Router) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, ErrRouterStopped
	}
	r.seq++
	id := r.seq
	r.mu.Unlock()

	msg, err := NewRequest(id, method, params)
	if err != nil {
		return nil, &SendError{Method: method, Err: err}
	}
	// Send before registering would race a very fast reply against the
	// table insert, so the entry goes in first and comes back out if the
	// write fails.
	entry := &pendingRequest{
		id:      id,
		method:  method,
		created: time.Now(),
		reply:   make(chan *Message, 1),
	}
	r.mu.Lock()
	r.pending[id] = entry
	r.mu.Unlock()

	if err := r.codec.Write(msg); err != nil {
		r.drop(id)
		return nil, &SendError{Method: method, Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-entry.reply:
		if reply.Error != nil {
			return nil, reply.Error
		}
		return reply.Result, nil
	case <-timer.C:
		r.drop(id)
		return nil, &TimeoutError{ID: id, Method: method}
	case <-ctx.Done():
		r.drop(id)
		return nil, ctx.Err()
	case <-r.stopCh:
		r.drop(id)
		return nil, ErrRouterStopped
	}
}

// Resolve delivers an inbound reply to its waiting caller. It consumes every
// response-kind message: a reply whose id matches no pending entry is inert
// and only logged. Requests and notifications are not the router's concern
// and return false untouched.
func (r *Router) Resolve(msg *Message) bool {
	if !msg.IsReply() {
		return false
	}

	id, ok := replyID(msg.ID)
	if !ok {
		r.log.Warn("discarding reply with non-numeric id", "id", msg.ID)
		return true
	}

	r.mu.Lock()
	entry, found := r.pending[id]
	if found {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !found {
		r.log.Warn("discarding stale reply", "id", id)
		return true
	}
	entry.reply <- msg
	return true
}

// Stop resolves all pending requests with ErrRouterStopped and refuses new
// ones. Safe to call more than once.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stopCh)
}

// Pending reports how many requests are currently in flight.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Router) drop(id int64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// replyID maps a decoded wire id back to the router's int64 id space.
// Outbound ids are always integers, so anything else cannot match.
func replyID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), true
	case int64:
		return id, true
	case int:
		return int64(id), true
	case json.Number:
		n, err := id.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
