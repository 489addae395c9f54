package streaminghttp_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/editor-mcp-go/auth/authtest"
	"github.com/ggoodman/editor-mcp-go/internal/engine"
	"github.com/ggoodman/editor-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions"
	"github.com/ggoodman/editor-mcp-go/sessions/memoryhost"
	"github.com/ggoodman/editor-mcp-go/streaminghttp"
)

const (
	acceptBoth = "application/json, text/event-stream"
	acceptSSE  = "text/event-stream"
	initBody   = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
)

func TestPOST_Initialize(t *testing.T) {
	srv := mustServer(t)

	resp := doPostMCP(t, srv, "", "", acceptBoth, initBody)
	defer resp.Body.Close()

	if want, got := http.StatusOK, resp.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
	sessID := resp.Header.Get("Mcp-Session-Id")
	if sessID == "" {
		t.Fatalf("missing Mcp-Session-Id header")
	}
	if want, got := "2025-06-18", resp.Header.Get("Mcp-Protocol-Version"); want != got {
		t.Fatalf("want protocol version %q, got %q", want, got)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("want json response, got %q", ct)
	}

	var res jsonrpc.Response
	mustDecodeJSON(t, resp.Body, &res)
	if res.Error != nil {
		t.Fatalf("initialize error: %+v", res.Error)
	}
	var result mcp.InitializeResult
	mustUnmarshalJSON(t, res.Result, &result)
	if want, got := "pulsar-edit-mcp-server-server", result.ServerInfo.Name; want != got {
		t.Fatalf("want server name %q, got %q", want, got)
	}
	if result.Capabilities.Tools == nil || !result.Capabilities.Tools.ListChanged {
		t.Fatalf("want tools capability with listChanged, got %+v", result.Capabilities.Tools)
	}

	if _, err := srv.eng.Lookup(sessID); err != nil {
		t.Fatalf("session %s not registered: %v", sessID, err)
	}
}

func TestPOST_RejectsRequestsWithoutValidSession(t *testing.T) {
	srv := mustServer(t)

	tests := []struct {
		name      string
		sessionID string
		body      string
	}{
		{"missing session on request", "", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`},
		{"missing session on notification", "", `{"jsonrpc":"2.0","method":"notifications/initialized"}`},
		{"initialize without id", "", `{"jsonrpc":"2.0","method":"initialize","params":{}}`},
		{"unknown session", "no-such-session", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := doPostMCP(t, srv, "", tc.sessionID, acceptBoth, tc.body)
			defer resp.Body.Close()

			if want, got := http.StatusBadRequest, resp.StatusCode; want != got {
				t.Fatalf("want status %d, got %d", want, got)
			}
			var body map[string]any
			mustDecodeJSON(t, resp.Body, &body)
			want := map[string]any{
				"jsonrpc": "2.0",
				"error":   map[string]any{"code": float64(-32000), "message": "Bad Request: No valid session ID provided"},
				"id":      nil,
			}
			if got, want := mustJSON(body), mustJSON(want); !bytes.Equal(got, want) {
				t.Fatalf("want body %s, got %s", want, got)
			}
			if n := srv.eng.Sessions().Len(); n != 0 {
				t.Fatalf("want no sessions created, got %d", n)
			}
		})
	}
}

func TestPOST_RoutesToOwningSession(t *testing.T) {
	srv := mustServer(t)
	first := mustInitializeSession(t, srv, "")
	second := mustInitializeSession(t, srv, "")
	if first == second {
		t.Fatalf("want distinct session ids, got %q twice", first)
	}

	for _, id := range []string{first, second} {
		resp := doPostMCP(t, srv, "", id, acceptBoth, `{"jsonrpc":"2.0","id":"call-1","method":"tools/call","params":{"name":"echo","arguments":{"text":"`+id+`"}}}`)
		var res jsonrpc.Response
		mustDecodeJSON(t, resp.Body, &res)
		resp.Body.Close()

		var result mcp.CallToolResult
		mustUnmarshalJSON(t, res.Result, &result)
		if want, got := id, mcpservice.ResultText(&result); want != got {
			t.Fatalf("want echo %q, got %q", want, got)
		}
		if want, got := "call-1", res.ID.String(); want != got {
			t.Fatalf("want response id %q, got %q", want, got)
		}
	}
}

func TestPOST_StreamsResponseWhenOnlySSEAccepted(t *testing.T) {
	srv := mustServer(t)
	sessID := mustInitializeSession(t, srv, "")

	resp := doPostMCP(t, srv, "", sessID, acceptSSE, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("want event stream, got %q", ct)
	}
	evt, err := readOneSSE(resp.Body)
	if err != nil {
		t.Fatalf("read sse: %v", err)
	}
	var res jsonrpc.Response
	mustUnmarshalJSON(t, evt.data, &res)
	var result mcp.ListToolsResult
	mustUnmarshalJSON(t, res.Result, &result)
	if len(result.Tools) != 1 || result.Tools[0].Name != "echo" {
		t.Fatalf("want [echo], got %+v", result.Tools)
	}
}

func TestPOST_NotificationsAreAccepted(t *testing.T) {
	srv := mustServer(t)
	sessID := mustInitializeSession(t, srv, "")

	resp := doPostMCP(t, srv, "", sessID, acceptBoth, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	defer resp.Body.Close()
	if want, got := http.StatusAccepted, resp.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
}

func TestPOST_MalformedBodies(t *testing.T) {
	srv := mustServer(t)

	t.Run("invalid json", func(t *testing.T) {
		resp := doPostMCP(t, srv, "", "", acceptBoth, `{"jsonrpc":`)
		defer resp.Body.Close()
		if want, got := http.StatusBadRequest, resp.StatusCode; want != got {
			t.Fatalf("want status %d, got %d", want, got)
		}
		var res jsonrpc.Response
		mustDecodeJSON(t, resp.Body, &res)
		if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeParseError {
			t.Fatalf("want parse error, got %+v", res.Error)
		}
	})

	t.Run("batch", func(t *testing.T) {
		resp := doPostMCP(t, srv, "", "", acceptBoth, `[`+initBody+`]`)
		defer resp.Body.Close()
		if want, got := http.StatusBadRequest, resp.StatusCode; want != got {
			t.Fatalf("want status %d, got %d", want, got)
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(initBody))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "text/plain")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if want, got := http.StatusUnsupportedMediaType, resp.StatusCode; want != got {
			t.Fatalf("want status %d, got %d", want, got)
		}
	})

	if n := srv.eng.Sessions().Len(); n != 0 {
		t.Fatalf("want no sessions, got %d", n)
	}
}

func TestGET_StreamsSessionNotifications(t *testing.T) {
	srv := mustServer(t)
	sessID := mustInitializeSession(t, srv, "")

	t.Run("missing session", func(t *testing.T) {
		resp := doMCP(t, srv, http.MethodGet, "", "", acceptSSE)
		defer resp.Body.Close()
		wantPlainBadSession(t, resp)
	})

	t.Run("unknown session", func(t *testing.T) {
		resp := doMCP(t, srv, http.MethodGet, "", "nope", acceptSSE)
		defer resp.Body.Close()
		wantPlainBadSession(t, resp)
	})

	t.Run("list changed", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, events := startGetStream(t, srv, "", sessID)
		defer resp.Body.Close()

		waitForMethod(t, ctx, events, string(mcp.ToolsListChangedNotificationMethod), func() {
			srv.tools.NotifyChanged(ctx)
		})
	})
}

func TestDELETE_TearsDownSession(t *testing.T) {
	srv := mustServer(t)
	sessID := mustInitializeSession(t, srv, "")

	resp := doMCP(t, srv, http.MethodDelete, "", "unknown", "")
	resp.Body.Close()
	if want, got := http.StatusBadRequest, resp.StatusCode; want != got {
		t.Fatalf("unknown: want status %d, got %d", want, got)
	}
	if want, got := 1, srv.eng.Sessions().Len(); want != got {
		t.Fatalf("want %d session after failed delete, got %d", want, got)
	}

	resp = doMCP(t, srv, http.MethodDelete, "", sessID, "")
	resp.Body.Close()
	if want, got := http.StatusNoContent, resp.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
	if n := srv.eng.Sessions().Len(); n != 0 {
		t.Fatalf("want no sessions after delete, got %d", n)
	}

	t.Run("deleted id is rejected", func(t *testing.T) {
		resp := doPostMCP(t, srv, "", sessID, acceptBoth, `{"jsonrpc":"2.0","id":4,"method":"ping"}`)
		defer resp.Body.Close()
		if want, got := http.StatusBadRequest, resp.StatusCode; want != got {
			t.Fatalf("want status %d, got %d", want, got)
		}
	})

	t.Run("second delete", func(t *testing.T) {
		resp := doMCP(t, srv, http.MethodDelete, "", sessID, "")
		defer resp.Body.Close()
		wantPlainBadSession(t, resp)
	})
}

func TestAuthentication(t *testing.T) {
	tokens := authtest.StaticTokens{"alice-token": "alice", "bob-token": "bob"}
	srv := mustServer(t, withHandlerOptions(
		streaminghttp.WithAuthenticator(tokens),
		streaminghttp.WithRealm("editor"),
		streaminghttp.WithProtectedResource([]string{"https://issuer.example"}, "editor:write"),
		streaminghttp.WithServerName("Pulsar"),
	))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantError  string
	}{
		{"missing credentials", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusBadRequest, "invalid_request"},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, "invalid_token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := doPostMCP(t, srv, tc.authHeader, "", acceptBoth, initBody)
			defer resp.Body.Close()
			if want, got := tc.wantStatus, resp.StatusCode; want != got {
				t.Fatalf("want status %d, got %d", want, got)
			}
			challenge := resp.Header.Get("WWW-Authenticate")
			if !strings.HasPrefix(challenge, `Bearer realm="editor", resource_metadata="http://localhost/.well-known/oauth-protected-resource/mcp"`) {
				t.Fatalf("unexpected challenge %q", challenge)
			}
			if tc.wantError == "" && strings.Contains(challenge, "error=") {
				t.Fatalf("want no error code in challenge, got %q", challenge)
			}
			if tc.wantError != "" && !strings.Contains(challenge, `error="`+tc.wantError+`"`) {
				t.Fatalf("want error %q in challenge, got %q", tc.wantError, challenge)
			}
		})
	}

	t.Run("session is bound to its user", func(t *testing.T) {
		sessID := mustInitializeSession(t, srv, "Bearer alice-token")

		resp := doPostMCP(t, srv, "Bearer alice-token", sessID, acceptBoth, `{"jsonrpc":"2.0","id":5,"method":"ping"}`)
		resp.Body.Close()
		if want, got := http.StatusOK, resp.StatusCode; want != got {
			t.Fatalf("owner: want status %d, got %d", want, got)
		}

		resp = doPostMCP(t, srv, "Bearer bob-token", sessID, acceptBoth, `{"jsonrpc":"2.0","id":6,"method":"ping"}`)
		resp.Body.Close()
		if want, got := http.StatusBadRequest, resp.StatusCode; want != got {
			t.Fatalf("other user: want status %d, got %d", want, got)
		}
	})

	t.Run("protected resource metadata", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/.well-known/oauth-protected-resource/mcp")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if want, got := http.StatusOK, resp.StatusCode; want != got {
			t.Fatalf("want status %d, got %d", want, got)
		}
		var doc struct {
			Resource             string   `json:"resource"`
			AuthorizationServers []string `json:"authorization_servers"`
			ScopesSupported      []string `json:"scopes_supported"`
			ResourceName         string   `json:"resource_name"`
		}
		mustDecodeJSON(t, resp.Body, &doc)
		if want, got := "http://localhost/mcp", doc.Resource; want != got {
			t.Fatalf("want resource %q, got %q", want, got)
		}
		if len(doc.AuthorizationServers) != 1 || doc.AuthorizationServers[0] != "https://issuer.example" {
			t.Fatalf("unexpected authorization servers %v", doc.AuthorizationServers)
		}
		if want, got := "Pulsar", doc.ResourceName; want != got {
			t.Fatalf("want resource name %q, got %q", want, got)
		}
	})
}

func TestNew_ValidatesArguments(t *testing.T) {
	eng := engine.NewEngine(memoryhost.New(), mcpservice.NewServer())

	if _, err := streaminghttp.New("http://localhost/mcp", nil); err == nil {
		t.Fatalf("want error for nil engine")
	}
	if _, err := streaminghttp.New("ftp://localhost/mcp", eng); err == nil {
		t.Fatalf("want error for non-http scheme")
	}
	if _, err := streaminghttp.New("http://localhost/mcp", eng, streaminghttp.WithProtectedResource([]string{"https://issuer.example"})); err == nil {
		t.Fatalf("want error for metadata without authenticator")
	}
}

// ============================================================================
// Test Server Utility
// ============================================================================

type echoArgs struct {
	Text string `json:"text"`
}

func echoTool() mcpservice.StaticTool {
	return mcpservice.NewTool[echoArgs]("echo", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[echoArgs]) error {
		return w.AppendText(r.Args().Text)
	}, mcpservice.WithToolDescription("Echo text back"))
}

type testServer struct {
	*httptest.Server
	eng   *engine.Engine
	tools *mcpservice.ToolsContainer
}

type serverOption func(*serverConfig)

type serverConfig struct {
	handlerOpts []streaminghttp.Option
}

func withHandlerOptions(opts ...streaminghttp.Option) serverOption {
	return func(cfg *serverConfig) {
		cfg.handlerOpts = append(cfg.handlerOpts, opts...)
	}
}

func mustServer(t *testing.T, options ...serverOption) *testServer {
	t.Helper()
	var cfg serverConfig
	for _, opt := range options {
		opt(&cfg)
	}

	log := slog.New(testLogHandler(t))
	tools := mcpservice.NewToolsContainer(echoTool())
	t.Cleanup(tools.Close)
	server := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "pulsar-edit-mcp-server-server", Version: "test"}),
		mcpservice.WithToolsCapability(tools),
	)
	eng := engine.NewEngine(memoryhost.New(), server, engine.WithLogger(log))

	opts := append([]streaminghttp.Option{streaminghttp.WithLogger(log)}, cfg.handlerOpts...)
	h, err := streaminghttp.New("http://localhost/mcp", eng, opts...)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	// Runs before srv.Close so open streams end.
	t.Cleanup(eng.Sessions().CloseAll)

	return &testServer{Server: srv, eng: eng, tools: tools}
}

func doMCP(t *testing.T, srv *testServer, method, authHeader, sessionID, accept string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+"/mcp", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return resp
}

func doPostMCP(t *testing.T, srv *testServer, authHeader, sessionID, accept, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func mustInitializeSession(t *testing.T, srv *testServer, authHeader string) string {
	t.Helper()
	resp := doPostMCP(t, srv, authHeader, "", acceptBoth, initBody)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize: status %d", resp.StatusCode)
	}
	id := resp.Header.Get("Mcp-Session-Id")
	if id == "" {
		t.Fatalf("initialize: missing session id")
	}
	return id
}

func wantPlainBadSession(t *testing.T, resp *http.Response) {
	t.Helper()
	if want, got := http.StatusBadRequest, resp.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if want, got := "Invalid or missing session ID", strings.TrimSpace(string(body)); want != got {
		t.Fatalf("want body %q, got %q", want, got)
	}
}

type sseEvent struct {
	id   string
	data []byte
}

func readOneSSE(r io.Reader) (sseEvent, error) {
	return readSSE(bufio.NewReader(r))
}

func readSSE(br *bufio.Reader) (sseEvent, error) {
	var (
		event   sseEvent
		dataBuf bytes.Buffer
	)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return sseEvent{}, io.ErrUnexpectedEOF
			}
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if dataBuf.Len() == 0 {
				continue
			}
			event.data = append([]byte(nil), dataBuf.Bytes()...)
			return event, nil
		}
		switch {
		case strings.HasPrefix(line, "id: "):
			event.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}
}

// startGetStream opens the session's GET stream and forwards every event
// until the body is closed.
func startGetStream(t *testing.T, srv *testServer, authHeader, sessionID string) (*http.Response, <-chan sseEvent) {
	t.Helper()
	resp := doMCP(t, srv, http.MethodGet, authHeader, sessionID, acceptSSE)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("get stream: status %d", resp.StatusCode)
	}
	ch := make(chan sseEvent, 16)
	go func() {
		defer close(ch)
		br := bufio.NewReader(resp.Body)
		for {
			evt, err := readSSE(br)
			if err != nil {
				return
			}
			ch <- evt
		}
	}()
	return resp, ch
}

// waitForMethod re-runs trigger until an event carrying method arrives. The
// GET stream only sees messages published after it attaches, so a single
// trigger could be missed.
func waitForMethod(t *testing.T, ctx context.Context, ch <-chan sseEvent, method string, trigger func()) {
	t.Helper()
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for %s: %v", method, ctx.Err())
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("event stream closed before %s", method)
			}
			var msg jsonrpc.AnyMessage
			mustUnmarshalJSON(t, evt.data, &msg)
			if msg.Method == method {
				if evt.id == "" {
					t.Fatalf("want event id on session stream event")
				}
				return
			}
		case <-ticker.C:
			trigger()
		}
	}
}

func mustDecodeJSON[T any](t *testing.T, r io.Reader, v *T) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func mustUnmarshalJSON[T any](t *testing.T, data []byte, v *T) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal json: %v\ninput: %s", err, string(data))
	}
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// logBridge forwards slog output to t.Log until the test finishes.
type logBridge struct {
	slog.Handler
	t     testing.TB
	buf   *bytes.Buffer
	mu    *sync.Mutex
	ended *bool
}

func (b *logBridge) Handle(ctx context.Context, rec slog.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if *b.ended {
		return nil
	}

	if err := b.Handler.Handle(ctx, rec); err != nil {
		return err
	}
	output, err := io.ReadAll(b.buf)
	if err != nil {
		return err
	}
	b.t.Log(string(bytes.TrimSuffix(output, []byte("\n"))))
	return nil
}

func (b *logBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logBridge{t: b.t, buf: b.buf, mu: b.mu, ended: b.ended, Handler: b.Handler.WithAttrs(attrs)}
}

func (b *logBridge) WithGroup(name string) slog.Handler {
	return &logBridge{t: b.t, buf: b.buf, mu: b.mu, ended: b.ended, Handler: b.Handler.WithGroup(name)}
}

func testLogHandler(t *testing.T) *logBridge {
	b := &logBridge{
		t:     t,
		buf:   &bytes.Buffer{},
		mu:    &sync.Mutex{},
		ended: new(bool),
	}
	b.Handler = slog.NewTextHandler(b.buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	// Registered first so it runs last.
	t.Cleanup(func() {
		b.mu.Lock()
		*b.ended = true
		b.mu.Unlock()
	})
	return b
}
