// Package audit records tool activity as JSON lines, one file per process
// run. Secrets matching the builtin patterns are redacted before anything
// touches disk.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stanza-acp/stanza/errors"
)

// Record is one audit event.
type Record struct {
	Time      time.Time      `json:"time"`
	Event     string         `json:"event"`
	SessionID string         `json:"sessionId,omitempty"`
	CallID    string         `json:"callId,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Allowed   *bool          `json:"allowed,omitempty"`
}

// Store appends records to a JSONL file. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	f      *os.File
	redact bool
}

// Open creates the audit directory if needed and opens a timestamped log
// file for appending.
func Open(dir string, redact bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create audit directory '%s'", dir)
	}
	name := time.Now().Format("2006-01-02_15-04-05") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open audit log")
	}
	return &Store{f: f, redact: redact}, nil
}

// Append writes one record. A zero Time is stamped with the current time.
func (s *Store) Append(rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if s.redact {
		rec = redactRecord(rec)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal audit record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		return errors.Wrapf(err, "failed to write audit record")
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
