package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/editor-mcp-go/editor"
	"github.com/ggoodman/editor-mcp-go/internal/config"
	"github.com/ggoodman/editor-mcp-go/internal/engine"
	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions/memoryhost"
	"github.com/ggoodman/editor-mcp-go/streaminghttp"
)

func TestRootCmdIncludesSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"serve", "chat", "models", "tools"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestNewAuthenticator(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		a, err := newAuthenticator(context.Background(), config.Default())
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if a != nil {
			t.Fatalf("want nil authenticator, got %T", a)
		}
	})
	t.Run("hs256", func(t *testing.T) {
		cfg := config.Default()
		cfg.Auth.Mode = config.AuthHS256
		cfg.Auth.Secret = "s3cret"
		a, err := newAuthenticator(context.Background(), cfg)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if a == nil {
			t.Fatalf("want authenticator")
		}
	})
	t.Run("hs256 without secret", func(t *testing.T) {
		cfg := config.Default()
		cfg.Auth.Mode = config.AuthHS256
		if _, err := newAuthenticator(context.Background(), cfg); err == nil {
			t.Fatalf("want error")
		}
	})
}

// fakeBackend answers the two chat completions API calls the CLI makes.
func fakeBackend(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "model-a", "object": "model"},
				{"id": "model-b", "object": "model"},
			},
		})
	})
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "model-a",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func mustEditorEndpoint(t *testing.T) string {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tools := editor.NewToolsContainer(editor.NewWorkspace(editor.WithRoots(t.TempDir())))
	t.Cleanup(tools.Close)
	server := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: serverName, Version: "test"}),
		mcpservice.WithToolsCapability(tools),
	)
	eng := engine.NewEngine(memoryhost.New(), server, engine.WithLogger(log))
	h, err := streaminghttp.New("http://localhost/mcp", eng, streaminghttp.WithLogger(log))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Cleanup(eng.Sessions().CloseAll)
	return srv.URL + "/mcp"
}

func TestRunChat(t *testing.T) {
	backend := fakeBackend(t, "Hello from the assistant")
	endpoint := mustEditorEndpoint(t)

	cfg := config.Default()
	cfg.Backend.Endpoint = backend.URL
	cfg.Backend.APIKey = "test-key"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in := strings.NewReader("/models\nhi there\n/clear\n/exit\n")
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := runChat(ctx, cfg, log, endpoint, "model-a", in, &out); err != nil {
		t.Fatalf("chat: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Connected to " + serverName,
		"model-a\nmodel-b\n",
		"Hello from the assistant\n",
		"Conversation cleared.\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("want output to contain %q, got:\n%s", want, got)
		}
	}
}
