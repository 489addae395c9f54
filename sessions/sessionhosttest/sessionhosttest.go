// Package sessionhosttest is a conformance suite for sessions.SessionHost
// implementations.
package sessionhosttest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/editor-mcp-go/sessions"
)

// settle gives a live subscription time to attach before publishing.
const settle = 100 * time.Millisecond

// HostFactory returns a fresh host for one subtest.
type HostFactory func(t *testing.T) sessions.SessionHost

// RunSessionHostTests exercises the ordering, resume and cleanup contract of
// a SessionHost.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, h sessions.SessionHost)
	}{
		{"LiveDeliveryInOrder", testLiveDeliveryInOrder},
		{"LiveSubscriptionSkipsBacklog", testLiveSubscriptionSkipsBacklog},
		{"ResumeReplaysAfterCursor", testResumeReplaysAfterCursor},
		{"ResumeUnknownCursor", testResumeUnknownCursor},
		{"SessionsAreIsolated", testSessionsAreIsolated},
		{"HandlerErrorEndsSubscription", testHandlerErrorEndsSubscription},
		{"ContextEndsSubscription", testContextEndsSubscription},
		{"CleanupStopsSubscribers", testCleanupStopsSubscribers},
		{"CleanupRetiresSession", testCleanupRetiresSession},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, factory(t)) })
	}
}

// uniqueID keeps subtests apart on hosts backed by shared storage.
func uniqueID(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

// recorder collects delivered payloads and cancels once it has want of
// them.
type recorder struct {
	mu     sync.Mutex
	ids    []string
	got    []string
	want   int
	cancel context.CancelFunc
}

func (r *recorder) handle(_ context.Context, id string, msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	r.got = append(r.got, string(msg))
	if r.want > 0 && len(r.got) == r.want {
		r.cancel()
	}
	return nil
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...), append([]string(nil), r.got...)
}

func subscribe(ctx context.Context, h sessions.SessionHost, sessionID, lastEventID string, handler sessions.MessageHandlerFunction) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.SubscribeSession(ctx, sessionID, lastEventID, handler) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("subscription did not return")
		return nil
	}
}

func publish(t *testing.T, ctx context.Context, h sessions.SessionHost, sessionID string, payloads ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		id, err := h.PublishSession(ctx, sessionID, []byte(p))
		if err != nil {
			t.Fatalf("publish %q: %v", p, err)
		}
		if id == "" {
			t.Fatalf("publish %q returned an empty event id", p)
		}
		ids = append(ids, id)
	}
	return ids
}

func wantPayloads(t *testing.T, want, got []string) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}

func testLiveDeliveryInOrder(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sid := uniqueID(t)

	const n = 20
	rec := &recorder{want: n, cancel: cancel}
	done := subscribe(ctx, h, sid, "", rec.handle)
	time.Sleep(settle)

	want := make([]string, n)
	for i := range want {
		want[i] = `{"jsonrpc":"2.0","method":"notifications/message","params":{"seq":` + strconv.Itoa(i) + `}}`
	}
	ids := publish(t, ctx, h, sid, want...)

	if err := wait(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	gotIDs, got := rec.snapshot()
	wantPayloads(t, want, got)
	wantPayloads(t, ids, gotIDs)
}

func testLiveSubscriptionSkipsBacklog(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sid := uniqueID(t)

	publish(t, ctx, h, sid, "old")
	rec := &recorder{want: 1, cancel: cancel}
	done := subscribe(ctx, h, sid, "", rec.handle)
	time.Sleep(settle)
	publish(t, ctx, h, sid, "new")

	_ = wait(t, done)
	_, got := rec.snapshot()
	wantPayloads(t, []string{"new"}, got)
}

func testResumeReplaysAfterCursor(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sid := uniqueID(t)

	ids := publish(t, ctx, h, sid, "0", "1", "2", "3")
	rec := &recorder{want: 3, cancel: cancel}
	if err := h.SubscribeSession(ctx, sid, ids[0], rec.handle); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	gotIDs, got := rec.snapshot()
	wantPayloads(t, []string{"1", "2", "3"}, got)
	wantPayloads(t, ids[1:], gotIDs)
}

func testResumeUnknownCursor(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sid := uniqueID(t)

	publish(t, ctx, h, sid, "x")
	err := h.SubscribeSession(ctx, sid, "999999999-0", func(context.Context, string, []byte) error {
		t.Errorf("delivered a message for an unknown cursor")
		return nil
	})
	if !errors.Is(err, sessions.ErrUnknownEventID) {
		t.Fatalf("want ErrUnknownEventID, got %v", err)
	}
}

func testSessionsAreIsolated(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a, b := uniqueID(t)+"-a", uniqueID(t)+"-b"

	recA := &recorder{}
	recB := &recorder{}
	doneA := subscribe(ctx, h, a, "", recA.handle)
	doneB := subscribe(ctx, h, b, "", recB.handle)
	time.Sleep(settle)

	publish(t, ctx, h, a, "for-a")
	publish(t, ctx, h, b, "for-b")
	time.Sleep(2 * settle)
	cancel()
	_ = wait(t, doneA)
	_ = wait(t, doneB)

	_, gotA := recA.snapshot()
	_, gotB := recB.snapshot()
	wantPayloads(t, []string{"for-a"}, gotA)
	wantPayloads(t, []string{"for-b"}, gotB)
}

func testHandlerErrorEndsSubscription(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sid := uniqueID(t)

	errStop := errors.New("client went away")
	done := subscribe(ctx, h, sid, "", func(context.Context, string, []byte) error { return errStop })
	time.Sleep(settle)
	publish(t, ctx, h, sid, "x")

	if err := wait(t, done); !errors.Is(err, errStop) {
		t.Fatalf("want handler error, got %v", err)
	}
}

func testContextEndsSubscription(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := subscribe(ctx, h, uniqueID(t), "", func(context.Context, string, []byte) error { return nil })
	if err := wait(t, done); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want context.DeadlineExceeded, got %v", err)
	}
}

func testCleanupStopsSubscribers(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sid := uniqueID(t)

	publish(t, ctx, h, sid, "before")
	subCtx, subCancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer subCancel()
	rec := &recorder{}
	done := subscribe(subCtx, h, sid, "", rec.handle)
	time.Sleep(settle)

	if err := h.CleanupSession(ctx, sid); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	// A host may stop the subscriber at once or leave it idle until its
	// context ends. It must not deliver the earlier message either way.
	_ = wait(t, done)
	if _, got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("want no deliveries, got %v", got)
	}
}

func testCleanupRetiresSession(t *testing.T, h sessions.SessionHost) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sid := uniqueID(t)

	publish(t, ctx, h, sid, "before")
	if err := h.CleanupSession(ctx, sid); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if _, err := h.PublishSession(ctx, sid, []byte("late")); !errors.Is(err, sessions.ErrSessionClosed) {
		t.Fatalf("want ErrSessionClosed for publish after cleanup, got %v", err)
	}
	err := h.SubscribeSession(ctx, sid, "", func(context.Context, string, []byte) error {
		t.Errorf("delivered a message for a retired session")
		return nil
	})
	if !errors.Is(err, sessions.ErrSessionClosed) {
		t.Fatalf("want ErrSessionClosed for subscribe after cleanup, got %v", err)
	}
}
