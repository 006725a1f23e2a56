package acp

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturedClient(caps ClientCapabilities) (*Client, *bytes.Buffer) {
	var buf bytes.Buffer
	router := NewRouter(NewCodec(&buf), quietLogger())
	return NewClient(router, caps, time.Second), &buf
}

func TestHelpersFailLocallyWithoutCapability(t *testing.T) {
	client, buf := newCapturedClient(ClientCapabilities{})
	ctx := context.Background()

	_, err := client.ReadTextFile(ctx, "sess_1", "/tmp/x", nil, nil)
	assert.ErrorIs(t, err, ErrUnsupported)

	err = client.WriteTextFile(ctx, "sess_1", "/tmp/x", "content")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = client.CreateTerminal(ctx, "sess_1", CreateTerminalParams{Command: "ls"})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = client.TerminalOutput(ctx, "sess_1", "term_1")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = client.WaitForTerminalExit(ctx, "sess_1", "term_1", time.Second)
	assert.ErrorIs(t, err, ErrUnsupported)

	err = client.KillTerminal(ctx, "sess_1", "term_1")
	assert.ErrorIs(t, err, ErrUnsupported)

	err = client.ReleaseTerminal(ctx, "sess_1", "term_1")
	assert.ErrorIs(t, err, ErrUnsupported)

	// The failures above produced zero wire traffic.
	assert.Zero(t, buf.Len())
}

func TestFSHelpersRejectRelativePaths(t *testing.T) {
	caps := ClientCapabilities{}
	caps.FS.ReadTextFile = true
	caps.FS.WriteTextFile = true
	client, buf := newCapturedClient(caps)
	ctx := context.Background()

	_, err := client.ReadTextFile(ctx, "sess_1", "relative/path.txt", nil, nil)
	var pathErr *InvalidPathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "relative/path.txt", pathErr.Path)

	err = client.WriteTextFile(ctx, "sess_1", "also/relative.txt", "x")
	assert.ErrorAs(t, err, &pathErr)

	assert.Zero(t, buf.Len())
}

func TestRequestPermissionRequiresToolCallID(t *testing.T) {
	client, buf := newCapturedClient(ClientCapabilities{})

	_, err := client.RequestPermission(context.Background(), "sess_1", ToolCallRef{}, nil)
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestRequestPermissionRejectsIncompleteOptions(t *testing.T) {
	client, buf := newCapturedClient(ClientCapabilities{})

	_, err := client.RequestPermission(context.Background(), "sess_1",
		ToolCallRef{ToolCallID: "call_1"},
		[]PermissionOption{{OptionID: "allow-once"}})
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestDefaultPermissionOptionsComplete(t *testing.T) {
	opts := DefaultPermissionOptions()
	require.Len(t, opts, 2)
	for _, o := range opts {
		assert.NotEmpty(t, o.OptionID)
		assert.NotEmpty(t, o.Name)
		assert.NotEmpty(t, o.Kind)
	}
}

func TestPermissionOutcomeAllowed(t *testing.T) {
	assert.True(t, PermissionOutcome{Outcome: "selected", OptionID: "allow-once"}.Allowed())
	assert.True(t, PermissionOutcome{Outcome: "selected", OptionID: "allow-always"}.Allowed())
	assert.False(t, PermissionOutcome{Outcome: "selected", OptionID: "reject-once"}.Allowed())
	assert.False(t, PermissionOutcome{Outcome: "cancelled"}.Allowed())
	assert.False(t, PermissionOutcome{Outcome: "cancelled", OptionID: "allow-once"}.Allowed())
}

func TestNormalizeEnv(t *testing.T) {
	out, err := NormalizeEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = NormalizeEnv([]EnvVar{{Name: "HOME", Value: "/root"}})
	require.NoError(t, err)
	assert.Equal(t, []EnvVar{{Name: "HOME", Value: "/root"}}, out)

	out, err = NormalizeEnv(map[string]string{"PATH": "/bin"})
	require.NoError(t, err)
	assert.Equal(t, []EnvVar{{Name: "PATH", Value: "/bin"}}, out)

	out, err = NormalizeEnv([]any{map[string]any{"name": "TERM", "value": "dumb"}})
	require.NoError(t, err)
	assert.Equal(t, []EnvVar{{Name: "TERM", Value: "dumb"}}, out)

	_, err = NormalizeEnv([]any{map[string]any{"value": "nameless"}})
	assert.Error(t, err)

	_, err = NormalizeEnv(42)
	assert.Error(t, err)
}
