package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/ggoodman/editor-mcp-go/agent"
	"github.com/ggoodman/editor-mcp-go/internal/config"
	"github.com/ggoodman/editor-mcp-go/mcpclient"
	"github.com/spf13/cobra"
)

func buildChatCmd(flags *globalFlags) *cobra.Command {
	var (
		endpoint string
		model    string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant against a running server",
		Long: `Start an interactive session with the coding assistant.

The assistant calls tools on the MCP server at --endpoint (by default the
one "editor-mcp serve" exposes). Commands:

  /clear   start a new conversation
  /models  list backend models
  /model   switch model, e.g. "/model gpt-4o-mini"
  /exit    quit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, _, err := flags.load()
			if err != nil {
				return err
			}
			if endpoint == "" {
				endpoint = cfg.MCPEndpoint()
			}
			if model == "" {
				model = cfg.Backend.DefaultModel
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cfg, log, endpoint, model, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "MCP endpoint URL (default: derived from server config)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Backend model (default: backend.default_model)")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, log *slog.Logger, endpoint, model string, in io.Reader, out io.Writer) error {
	reg, err := mcpclient.Dial(ctx, endpoint,
		mcpclient.WithLogger(log),
		mcpclient.WithClientInfo("editor-mcp-chat", version),
	)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	defer reg.Close()

	backend := newBackend(cfg, log, nil)
	adapter := agent.NewSchemaAdapter(reg,
		agent.WithTTL(cfg.Agent.SchemaTTL),
		agent.WithSchemaLogger(log),
	)
	loop := agent.NewLoop(backend, adapter,
		agent.WithMaxRounds(cfg.Agent.MaxRounds),
		agent.WithCallTimeout(cfg.Agent.CallTimeout),
		agent.WithMaxTokens(cfg.Backend.MaxTokens),
		agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
		agent.WithDefaultModel(cfg.Backend.DefaultModel),
		agent.WithLogger(log),
		agent.WithProgress(func(ctx context.Context, ev agent.ProgressEvent) {
			if ev.Tool != "" {
				fmt.Fprintf(out, "  [%s %s]\n", ev.Phase, ev.Tool)
			}
		}),
	)
	conv := agent.NewConversation()

	fmt.Fprintf(out, "Connected to %s (model %s). Type /exit to quit.\n", reg.ServerName(), model)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/clear":
			conv.Clear()
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		case line == "/models":
			models, err := backend.ListModels(ctx)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			for _, id := range models {
				fmt.Fprintln(out, id)
			}
			continue
		case strings.HasPrefix(line, "/model "):
			model = strings.TrimSpace(strings.TrimPrefix(line, "/model "))
			fmt.Fprintf(out, "Using model %s.\n", model)
			continue
		}

		reply, err := loop.Advance(ctx, conv, line, model)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(out, "error:", err)
			continue
		}
		fmt.Fprintln(out, reply)
	}
}

func buildModelsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models offered by the chat completions backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, _, err := flags.load()
			if err != nil {
				return err
			}
			models, err := newBackend(cfg, log, nil).ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range models {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func buildToolsCmd(flags *globalFlags) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools a running server exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, _, err := flags.load()
			if err != nil {
				return err
			}
			if endpoint == "" {
				endpoint = cfg.MCPEndpoint()
			}
			reg, err := mcpclient.Dial(cmd.Context(), endpoint,
				mcpclient.WithLogger(log),
				mcpclient.WithClientInfo("editor-mcp-cli", version),
			)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", endpoint, err)
			}
			defer reg.Close()

			tools, err := reg.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, t := range tools {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "MCP endpoint URL (default: derived from server config)")
	return cmd
}
