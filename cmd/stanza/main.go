package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/stanza-acp/stanza/acp"
	"github.com/stanza-acp/stanza/audit"
	"github.com/stanza-acp/stanza/config"
	"github.com/stanza-acp/stanza/discovery"
	"github.com/stanza-acp/stanza/llm"
)

var agentInfo = acp.Info{
	Name:    "stanza",
	Title:   "Stanza",
	Version: "0.4.0",
}

func main() {
	configFlag := flag.String("config", "", "Path to a config file (overrides the user/project lookup)")
	traceFlag := flag.Bool("trace", false, "Enable debug logging on stderr to troubleshoot issues")
	scanFlag := flag.Bool("scan", false, "Scan the workspace for agent manifests and exit")
	flag.Parse()

	// Stdout belongs to the protocol; all diagnostics go to stderr.
	level := slog.LevelInfo
	if *traceFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if *configFlag != "" {
		cfg, err = config.LoadFrom(*configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	if *scanFlag {
		if err := runScan(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Scan failed: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	client, err := newBackend(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.LLMClient, err)
		os.Exit(1)
	}

	store, err := audit.Open(cfg.Audit.Dir, cfg.Audit.Redact)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening audit log: %+v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	agent := acp.New(acp.Options{
		Info:    agentInfo,
		Backend: client,
		Config:  cfg,
		Log:     logger,
		Hooks:   auditHooks(store, logger),
	})

	if err := agent.Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

// newBackend selects the model provider from configuration. An unknown or
// empty provider gets the offline mock.
func newBackend(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	switch cfg.LLMClient {
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.Model)
	case "openai":
		return llm.NewOpenAIClient(ctx, cfg.Model)
	case "bedrock":
		return llm.NewBedrockClient(ctx, cfg.Model)
	case "anthropic":
		return llm.NewAnthropicClient(ctx, cfg.Model)
	default:
		return &llm.MockClient{}, nil
	}
}

// runScan lists workspace manifests on stdout. This mode never speaks the
// protocol, so printing here is fine.
func runScan(cfg *config.Config) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	manifests, err := discovery.Scan(wd, cfg.Discovery.Patterns)
	if err != nil {
		return err
	}
	for _, m := range manifests {
		fmt.Printf("%s\t%d bytes\n", m.Path, m.Size)
	}
	return nil
}

// auditHooks records tool activity; a failed append is logged, never fatal.
func auditHooks(store *audit.Store, logger *slog.Logger) acp.Hooks {
	record := func(rec audit.Record) {
		if err := store.Append(rec); err != nil {
			logger.Warn("audit append failed", "err", err)
		}
	}
	return acp.Hooks{
		ToolCall: func(sessionID, callID, name string, args map[string]any) {
			record(audit.Record{
				Event: "tool_call", SessionID: sessionID, CallID: callID,
				Tool: name, Args: args,
			})
		},
		ToolResult: func(sessionID, callID, name, result string, err error) {
			rec := audit.Record{
				Event: "tool_result", SessionID: sessionID, CallID: callID,
				Tool: name, Result: result,
			}
			if err != nil {
				rec.Error = err.Error()
			}
			record(rec)
		},
		Permission: func(sessionID, callID, name string, allowed bool) {
			record(audit.Record{
				Event: "permission", SessionID: sessionID, CallID: callID,
				Tool: name, Allowed: &allowed,
			})
		},
	}
}
