package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/editor-mcp-go/internal/metrics"
)

func TestMetrics_Exposition(t *testing.T) {
	m := metrics.New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.ObserveRPC("tools/call", "ok", 10*time.Millisecond)
	m.ObserveBackend("chat", "200", time.Second)
	m.ObserveTool("get-line-count", "ok", time.Millisecond)
	m.ObserveTurn("ok", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"editor_mcp_sessions_active 1",
		"editor_mcp_sessions_opened_total 2",
		`editor_mcp_rpc_requests_total{method="tools/call",outcome="ok"} 1`,
		`editor_mcp_backend_requests_total{op="chat",status="200"} 1`,
		`editor_mcp_tool_calls_total{status="ok",tool="get-line-count"} 1`,
		`editor_mcp_agent_turns_total{outcome="ok"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("want %q in exposition:\n%s", want, text)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.SessionOpened()
	m.ObserveRPC("ping", "ok", 0)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("want 404 from nil metrics handler, got %d", rec.Code)
	}
}
