package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/stanza-acp/stanza/config"
	"github.com/stanza-acp/stanza/errors"
)

// ReadFileTool reads a file through the host.
type ReadFileTool struct {
	host     Host
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file. Args: path (string)."
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'path' argument")
	}

	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return "", errors.New("access denied: path '%s' is hidden", path)
	}

	content, err := t.host.ReadTextFile(ctx, path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return content, nil
}

// WriteFileTool replaces a file's content through the host.
type WriteFileTool struct {
	host     Host
	fsAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Args: path (string), content (string)."
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, pathOk := args["path"].(string)
	content, contentOk := args["content"].(string)
	if !pathOk || !contentOk {
		return "", errors.New("missing or invalid 'path' or 'content' arguments")
	}

	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return "", errors.New("access denied: path '%s' is hidden", path)
	}

	readOnly, err := isPathRestricted(path, t.fsAccess.ReadOnly)
	if err != nil {
		return "", err
	}
	if readOnly {
		return "", errors.New("access denied: path '%s' is read-only", path)
	}

	if err := t.host.WriteTextFile(ctx, path, content); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// RunCommandTool executes a shell command in a host-managed terminal.
type RunCommandTool struct {
	host            Host
	allowedCommands []string
}

func (t *RunCommandTool) Name() string { return "run_command" }
func (t *RunCommandTool) Description() string {
	return "Executes a shell command and returns its output. Args: command (string)."
}

func (t *RunCommandTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command, ok := args["command"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'command' argument")
	}
	if !isCommandAllowed(command, t.allowedCommands) {
		return "", errors.New("command '%s' is not in the allowed list", command)
	}

	parts := strings.Fields(command)
	result, err := t.host.RunCommand(ctx, parts[0], parts[1:])
	if err != nil {
		return "", errors.Wrapf(err, "failed to execute command '%s'", command)
	}

	var sb strings.Builder
	sb.WriteString(result.Output)
	if result.Truncated {
		sb.WriteString("\n[output truncated]")
	}
	if result.ExitCode != 0 {
		fmt.Fprintf(&sb, "\n[exit code %d]", result.ExitCode)
	}
	return sb.String(), nil
}
