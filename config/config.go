// Package config loads stanza's YAML configuration. A user-level file under
// ~/.stanza is read first, then a project-level .stanza/config.yaml overrides
// it field by field. Everything has a usable zero default so the agent runs
// with no config at all.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/stanza-acp/stanza/errors"
	"gopkg.in/yaml.v3"
)

// Chunk granularities for streamed agent_message_chunk updates.
const (
	GranularityWhole = "whole"
	GranularityRune  = "rune"
)

// FilesystemAccess restricts what the host-mediated file tools may touch.
// Patterns are doublestar globs matched against the requested path.
type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

// MCPServer is a config-declared MCP server started in addition to whatever
// the client passes in session/new.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Stream controls how agent text is split into session/update chunks.
type Stream struct {
	// Granularity is "whole" (one chunk per backend reply segment) or
	// "rune" (one chunk per character).
	Granularity string `yaml:"granularity"`
}

// Discovery configures the manifest scanner run from the CLI.
type Discovery struct {
	Patterns []string `yaml:"patterns"`
}

// Audit configures the append-only tool/permission record store.
type Audit struct {
	Dir    string `yaml:"dir"`
	Redact bool   `yaml:"redact"`
}

type Config struct {
	LLMClient             string           `yaml:"llm"`
	Model                 string           `yaml:"model"`
	RequestTimeoutSeconds int              `yaml:"request_timeout_seconds"`
	Stream                Stream           `yaml:"stream"`
	FilesystemAccess      FilesystemAccess `yaml:"filesystem_access"`
	AllowedCommands       []string         `yaml:"allowed_commands"`
	AdditionalMCPServers  []MCPServer      `yaml:"additional_mcp_servers"`
	Discovery             Discovery        `yaml:"discovery"`
	Audit                 Audit            `yaml:"audit"`
}

// Load reads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".stanza", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectPath := filepath.Join(wd, ".stanza", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

// LoadFrom reads exactly one config file on top of the defaults, bypassing
// the user/project merge. Used when the caller names a file explicitly.
func LoadFrom(path string) (*Config, error) {
	cfg := defaults()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config '%s'", path)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		RequestTimeoutSeconds: 30,
		Stream:                Stream{Granularity: GranularityWhole},
		FilesystemAccess: FilesystemAccess{
			// The agent's own state dir stays invisible to tools.
			Hidden: []string{".stanza", ".stanza/**"},
		},
		Discovery: Discovery{
			Patterns: []string{"**/AGENTS.md", "**/.stanza/config.yaml"},
		},
		Audit: Audit{
			Dir:    filepath.Join(".stanza", "audit"),
			Redact: true,
		},
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a simple
	// merge where project-level values replace user-level ones.
	return yaml.Unmarshal(data, cfg)
}

// RequestTimeout returns the configured host request deadline.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
