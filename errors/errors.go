// Package errors provides error constructors that tag messages with the
// source location of the call site. The JSON-RPC layer maps failures to wire
// error objects instead; this package is for everything that stays local.
package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// New formats an error and prefixes it with the caller's file and line.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf annotates err with context and the caller's file and line. Returns
// nil when err is nil so call sites can wrap unconditionally.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
