package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stanza-acp/stanza/config"
)

// fakeHost records calls and serves a canned filesystem.
type fakeHost struct {
	files    map[string]string
	written  map[string]string
	commands []string
	result   CommandResult
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		files:   map[string]string{"/work/main.go": "package main\n"},
		written: map[string]string{},
	}
}

func (h *fakeHost) ReadTextFile(ctx context.Context, path string) (string, error) {
	content, ok := h.files[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return content, nil
}

func (h *fakeHost) WriteTextFile(ctx context.Context, path, content string) error {
	h.written[path] = content
	return nil
}

func (h *fakeHost) RunCommand(ctx context.Context, command string, args []string) (CommandResult, error) {
	h.commands = append(h.commands, strings.Join(append([]string{command}, args...), " "))
	return h.result, nil
}

func testConfig() *config.Config {
	return &config.Config{
		FilesystemAccess: config.FilesystemAccess{
			Hidden:   []string{".stanza", ".stanza/**", "**/.env"},
			ReadOnly: []string{"go.sum"},
		},
		AllowedCommands: []string{"^ls", "^go (build|test)"},
	}
}

func TestRegistryHasBuiltinTools(t *testing.T) {
	r := NewRegistry(testConfig(), newFakeHost())
	for _, name := range []string{"read_file", "write_file", "run_command"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("builtin tool %q not registered", name)
		}
	}
	if len(r.Active()) != 3 {
		t.Errorf("expected 3 active tools, got %d", len(r.Active()))
	}
}

func TestReadFileGoesThroughHost(t *testing.T) {
	host := newFakeHost()
	r := NewRegistry(testConfig(), host)
	tool, _ := r.Lookup("read_file")

	out, err := tool.Execute(context.Background(), map[string]interface{}{"path": "/work/main.go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "package main\n" {
		t.Errorf("unexpected content: %q", out)
	}
}

func TestReadFileRejectsHiddenPaths(t *testing.T) {
	r := NewRegistry(testConfig(), newFakeHost())
	tool, _ := r.Lookup("read_file")

	_, err := tool.Execute(context.Background(), map[string]interface{}{"path": "secrets/.env"})
	if err == nil || !strings.Contains(err.Error(), "hidden") {
		t.Errorf("expected hidden path rejection, got %v", err)
	}
}

func TestWriteFileRejectsReadOnlyPaths(t *testing.T) {
	host := newFakeHost()
	r := NewRegistry(testConfig(), host)
	tool, _ := r.Lookup("write_file")

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "go.sum", "content": "tampered",
	})
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Errorf("expected read-only rejection, got %v", err)
	}
	if len(host.written) != 0 {
		t.Error("write reached the host despite rejection")
	}
}

func TestWriteFileGoesThroughHost(t *testing.T) {
	host := newFakeHost()
	r := NewRegistry(testConfig(), host)
	tool, _ := r.Lookup("write_file")

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "/work/new.go", "content": "package work\n",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host.written["/work/new.go"] != "package work\n" {
		t.Error("content did not reach the host")
	}
}

func TestRunCommandEnforcesAllowlist(t *testing.T) {
	host := newFakeHost()
	r := NewRegistry(testConfig(), host)
	tool, _ := r.Lookup("run_command")

	_, err := tool.Execute(context.Background(), map[string]interface{}{"command": "rm -rf /"})
	if err == nil || !strings.Contains(err.Error(), "not in the allowed list") {
		t.Errorf("expected allowlist rejection, got %v", err)
	}
	if len(host.commands) != 0 {
		t.Error("disallowed command reached the host")
	}
}

func TestRunCommandReportsExitAndTruncation(t *testing.T) {
	host := newFakeHost()
	host.result = CommandResult{Output: "FAIL", ExitCode: 1, Truncated: true}
	r := NewRegistry(testConfig(), host)
	tool, _ := r.Lookup("run_command")

	out, err := tool.Execute(context.Background(), map[string]interface{}{"command": "go test ./..."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "truncated") || !strings.Contains(out, "exit code 1") {
		t.Errorf("unexpected result: %q", out)
	}
	if len(host.commands) != 1 || host.commands[0] != "go test ./..." {
		t.Errorf("unexpected command log: %v", host.commands)
	}
}

func TestIsCommandAllowed(t *testing.T) {
	allowed := []string{"^ls", "git status"}
	if !isCommandAllowed("ls -la", allowed) {
		t.Error("expected 'ls -la' to be allowed")
	}
	if !isCommandAllowed("git status", allowed) {
		t.Error("expected 'git status' to be allowed")
	}
	if isCommandAllowed("curl http://example.com", allowed) {
		t.Error("expected 'curl' to be rejected")
	}
	if isCommandAllowed("", allowed) {
		t.Error("expected empty command to be rejected")
	}
}

func TestIsPathRestricted(t *testing.T) {
	patterns := []string{".stanza/**", "**/*.key"}
	for path, want := range map[string]bool{
		".stanza/config.yaml": true,
		"deep/dir/server.key": true,
		"main.go":             false,
	} {
		got, err := isPathRestricted(path, patterns)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", path, err)
		}
		if got != want {
			t.Errorf("isPathRestricted(%q) = %v, want %v", path, got, want)
		}
	}
}
