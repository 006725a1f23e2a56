package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewTagsCallSite(t *testing.T) {
	err := New("boom %d", 42)
	if !strings.Contains(err.Error(), "errors_test.go:") {
		t.Errorf("missing call site tag: %v", err)
	}
	if !strings.Contains(err.Error(), "boom 42") {
		t.Errorf("missing formatted message: %v", err)
	}
}

func TestWrapfPreservesCause(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrapf(cause, "while doing %s", "things")
	if !strings.Contains(err.Error(), "while doing things") {
		t.Errorf("missing context: %v", err)
	}
	if !strings.Contains(err.Error(), "root cause") {
		t.Errorf("missing cause: %v", err)
	}
}

func TestWrapfNilPassthrough(t *testing.T) {
	if Wrapf(nil, "context") != nil {
		t.Error("wrapping nil should stay nil")
	}
}
