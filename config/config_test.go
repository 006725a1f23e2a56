package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreUsable(t *testing.T) {
	cfg := defaults()
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("unexpected default timeout: %v", cfg.RequestTimeout())
	}
	if cfg.Stream.Granularity != GranularityWhole {
		t.Errorf("unexpected default granularity: %q", cfg.Stream.Granularity)
	}
	if len(cfg.FilesystemAccess.Hidden) == 0 {
		t.Error("expected the agent state dir to be hidden by default")
	}
	if !cfg.Audit.Redact {
		t.Error("expected redaction on by default")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm: anthropic
model: some-model
request_timeout_seconds: 5
stream:
  granularity: rune
allowed_commands:
  - "^ls"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	if err := loadFromFile(path, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLMClient != "anthropic" || cfg.Model != "some-model" {
		t.Errorf("provider fields not loaded: %+v", cfg)
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Errorf("timeout not loaded: %v", cfg.RequestTimeout())
	}
	if cfg.Stream.Granularity != GranularityRune {
		t.Errorf("granularity not loaded: %q", cfg.Stream.Granularity)
	}
	// Fields absent from the file keep their defaults.
	if len(cfg.Discovery.Patterns) == 0 {
		t.Error("defaults were clobbered by partial config")
	}
}

func TestRequestTimeoutFloorsAtDefault(t *testing.T) {
	cfg := &Config{RequestTimeoutSeconds: -1}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("unexpected timeout: %v", cfg.RequestTimeout())
	}
}
