// Package main provides the editor-mcp command line.
//
// editor-mcp exposes a headless editor workspace as an MCP server over
// streamable HTTP, and drives a tool-calling assistant against it.
//
// # Basic Usage
//
// Start the server:
//
//	editor-mcp serve --config editor-mcp.yaml
//
// Chat with the assistant against a running server:
//
//	editor-mcp chat
//
// # Environment Variables
//
// Every file setting has an EDITOR_MCP_* override, for example:
//
//   - EDITOR_MCP_API_KEY: bearer token for the chat completions backend
//   - EDITOR_MCP_API_ENDPOINT: backend base URL
//   - EDITOR_MCP_PORT: HTTP listen port
//   - EDITOR_MCP_PROJECT_ROOTS: comma separated project roots
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ggoodman/editor-mcp-go/internal/config"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
)

const serverName = "pulsar-edit-mcp-server-server"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "editor-mcp",
		Short:         "Editor workspace MCP server and coding assistant",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"Path to YAML configuration file (default: editor-mcp.yaml or ~/.config/editor-mcp/config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "",
		"Log level override (debug, info, warn, error)")

	root.AddCommand(
		buildServeCmd(flags),
		buildChatCmd(flags),
		buildModelsCmd(flags),
		buildToolsCmd(flags),
	)
	return root
}

// load reads the configuration and builds a stderr logger whose level can
// be changed at runtime through the returned LevelVar.
func (f *globalFlags) load() (*config.Config, *slog.Logger, *slog.LevelVar, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	levelName := cfg.LogLevel
	if f.logLevel != "" {
		levelName = f.logLevel
	}
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(strings.ToUpper(levelName))); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, log, level, nil
}
