// Package mcp bridges external Model Context Protocol servers into the agent
// as ordinary tools. Each server runs as a subprocess; its stderr is passed
// through, its stdout carries the MCP stream.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stanza-acp/stanza/errors"
	"github.com/stanza-acp/stanza/tools"
)

// Pool manages the connection to a single MCP server subprocess and owns the
// tools discovered from it.
type Pool struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []tools.Tool
}

// Connect starts the MCP server subprocess, performs the handshake, and
// discovers its tools. The subprocess is killed if any step fails.
func Connect(ctx context.Context, name, command string, args []string) (*Pool, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "stanza", Version: "v0.4.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	pool := &Pool{Name: name, cmd: cmd, conn: conn}
	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			pool.tools = append(pool.tools, &serverTool{
				server:      name,
				name:        t.Name,
				description: t.Description,
				conn:        conn,
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	slog.Debug("mcp server connected", "server", name, "tools", len(pool.tools))
	return pool, nil
}

// Tools returns the tools discovered from this server.
func (p *Pool) Tools() []tools.Tool {
	return p.tools
}

// Close disconnects and terminates the server subprocess.
func (p *Pool) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// serverTool adapts one MCP server tool to the tools.Tool interface.
type serverTool struct {
	server      string
	name        string
	description string
	conn        *mcpsdk.ClientSession
}

func (t *serverTool) Name() string        { return t.name }
func (t *serverTool) Description() string { return t.description }

func (t *serverTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s' on server '%s'", t.name, t.server)
	}
	out := ""
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			out += text.Text
		}
	}
	return out, nil
}
