package memoryhost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/editor-mcp-go/sessions"
	"github.com/ggoodman/editor-mcp-go/sessions/sessionhosttest"
)

func TestMemorySessionHost(t *testing.T) {
	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessions.SessionHost {
		return New()
	})
}

func TestMaxMessagesTrimsReplayLog(t *testing.T) {
	h := New(WithMaxMessages(2))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, _ := h.PublishSession(ctx, "s", []byte("a"))
	_, _ = h.PublishSession(ctx, "s", []byte("b"))
	_, _ = h.PublishSession(ctx, "s", []byte("c"))

	err := h.SubscribeSession(ctx, "s", first, func(ctx context.Context, id string, msg []byte) error { return nil })
	if !errors.Is(err, sessions.ErrUnknownEventID) {
		t.Fatalf("want ErrUnknownEventID for trimmed cursor, got %v", err)
	}
}

func TestCleanupReleasesSessionState(t *testing.T) {
	h := New()
	ctx := context.Background()

	if _, err := h.PublishSession(ctx, "s1", []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := h.CleanupSession(ctx, "s1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := h.PublishSession(ctx, "s1", []byte("late")); !errors.Is(err, sessions.ErrSessionClosed) {
		t.Fatalf("want ErrSessionClosed, got %v", err)
	}

	h.mu.Lock()
	n := len(h.sessions)
	h.mu.Unlock()
	if want, got := 0, n; want != got {
		t.Fatalf("want %d retained sessions, got %d", want, got)
	}
}
