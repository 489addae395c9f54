package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/editor-mcp-go/agent"
	"github.com/ggoodman/editor-mcp-go/auth"
	"github.com/ggoodman/editor-mcp-go/editor"
	"github.com/ggoodman/editor-mcp-go/internal/config"
	"github.com/ggoodman/editor-mcp-go/internal/engine"
	"github.com/ggoodman/editor-mcp-go/internal/metrics"
	"github.com/ggoodman/editor-mcp-go/llm"
	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions"
	"github.com/ggoodman/editor-mcp-go/sessions/memoryhost"
	"github.com/ggoodman/editor-mcp-go/sessions/redishost"
	"github.com/ggoodman/editor-mcp-go/streaminghttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func buildServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the editor MCP server.

The server will:
1. Load configuration and open the project roots
2. Connect the session host (memory or redis)
3. Serve MCP over streamable HTTP, plus /metrics
4. Watch the project for file set changes

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Serve the current directory
  editor-mcp serve

  # Serve with an explicit config and debug logging
  editor-mcp serve --config ./editor-mcp.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, level, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log, level)
		},
	}
}

// runServe wires the workspace, engine and HTTP surface and blocks until ctx
// ends or one of them fails.
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger, level *slog.LevelVar) error {
	log.InfoContext(ctx, "starting editor-mcp",
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("listen", cfg.ListenAddr()),
		slog.String("endpoint", cfg.MCPEndpoint()),
	)

	m := metrics.New()

	host, closeHost, err := newSessionHost(cfg)
	if err != nil {
		return err
	}
	defer closeHost()

	roots := cfg.Project.Roots
	if len(roots) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		roots = []string{wd}
	}
	ws := editor.NewWorkspace(
		editor.WithRoots(roots...),
		editor.WithIgnore(cfg.Project.Ignore...),
		editor.WithLogger(log.With(slog.String("component", "workspace"))),
	)
	tools := editor.NewToolsContainer(ws)

	server := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: serverName, Version: version}),
		mcpservice.WithInstructions(editor.UsageText),
		mcpservice.WithToolsCapability(tools),
		mcpservice.WithLoggingCapability(mcpservice.NewSlogLevelVarLogging(level)),
	)

	backend := newBackend(cfg, log, m)
	eng := engine.NewEngine(host, server,
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithIdleTimeout(cfg.Server.IdleTimeout),
		engine.WithSchemaTTL(cfg.Agent.SchemaTTL),
		engine.WithAgent(backend, backend,
			agent.WithMaxRounds(cfg.Agent.MaxRounds),
			agent.WithCallTimeout(cfg.Agent.CallTimeout),
			agent.WithMaxTokens(cfg.Backend.MaxTokens),
			agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
			agent.WithDefaultModel(cfg.Backend.DefaultModel),
			agent.WithLogger(log.With(slog.String("component", "agent"))),
		),
	)

	handlerOpts := []streaminghttp.Option{
		streaminghttp.WithServerName(serverName),
		streaminghttp.WithLogger(log),
	}
	authn, err := newAuthenticator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}
	if authn != nil {
		handlerOpts = append(handlerOpts,
			streaminghttp.WithAuthenticator(authn),
			streaminghttp.WithRealm("editor-mcp"),
		)
		if cfg.Auth.Mode == config.AuthOIDC {
			handlerOpts = append(handlerOpts,
				streaminghttp.WithProtectedResource([]string{cfg.Auth.Issuer}, cfg.Auth.Scopes...))
		}
	}
	h, err := streaminghttp.New(cfg.MCPEndpoint(), eng, handlerOpts...)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", h)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	watcher := editor.NewWatcher(ws, tools.NotifyChanged)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		log.InfoContext(gctx, "http server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newSessionHost(cfg *config.Config) (sessions.SessionHost, func(), error) {
	switch cfg.Sessions.Host {
	case config.SessionHostRedis:
		h, err := redishost.New(redishost.Config{
			RedisAddr: cfg.Sessions.RedisAddr,
			KeyPrefix: cfg.Sessions.KeyPrefix,
			MaxLen:    1024,
			StreamTTL: time.Hour,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect session host: %w", err)
		}
		return h, func() { _ = h.Close() }, nil
	default:
		return memoryhost.New(), func() {}, nil
	}
}

func newBackend(cfg *config.Config, log *slog.Logger, m *metrics.Metrics) *llm.Client {
	return llm.New(cfg.Backend.Endpoint, cfg.Backend.APIKey,
		llm.WithLogger(log.With(slog.String("component", "llm"))),
		llm.WithMetrics(m),
		llm.WithModelsTTL(cfg.Backend.ModelsTTL),
	)
}

// newAuthenticator returns nil when authentication is disabled.
func newAuthenticator(ctx context.Context, cfg *config.Config) (auth.Authenticator, error) {
	a := cfg.Auth
	var opts []auth.Option
	if len(a.Scopes) > 0 {
		opts = append(opts, auth.WithRequiredScopes(a.Scopes...))
	}
	switch a.Mode {
	case config.AuthHS256:
		if a.Issuer != "" {
			opts = append(opts, auth.WithIssuer(a.Issuer))
		}
		if len(a.Audiences) > 0 {
			opts = append(opts, auth.WithAudiences(a.Audiences...))
		}
		return auth.NewHS256([]byte(a.Secret), opts...)
	case config.AuthJWKS:
		if a.Issuer != "" {
			opts = append(opts, auth.WithIssuer(a.Issuer))
		}
		if len(a.Audiences) > 0 {
			opts = append(opts, auth.WithAudiences(a.Audiences...))
		}
		return auth.NewJWKS(ctx, a.JWKSURL, opts...)
	case config.AuthOIDC:
		audience := cfg.MCPEndpoint()
		if len(a.Audiences) > 0 {
			audience = a.Audiences[0]
			opts = append(opts, auth.WithAudiences(a.Audiences...))
		}
		return auth.NewOIDC(ctx, a.Issuer, audience, opts...)
	default:
		return nil, nil
	}
}
