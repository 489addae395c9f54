package sessions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is the per-session view handed to tool handlers. Implementations
// MUST be safe for concurrent use.
type Session interface {
	SessionID() string
	UserID() string
}

// State is the lifecycle state of a Transport.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var _ Session = (*Transport)(nil)

// Transport is the protocol endpoint bound to one session identifier. It
// moves UNINITIALIZED -> ACTIVE exactly once (on registration after a
// successful initialize) and ACTIVE -> CLOSED exactly once. Requests on a
// transport run one at a time in arrival order.
type Transport struct {
	id   string
	data any

	state atomic.Int32

	mu              sync.Mutex
	userID          string
	protocolVersion string
	inflight        map[string]context.CancelCauseFunc
	onClose         func(*Transport)
	closing         bool

	slot      fifo
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelCauseFunc

	lastActive atomic.Int64
}

// NewTransport constructs an UNINITIALIZED transport with a fresh identifier.
// data is the server-side state bound to the session for its whole lifetime.
func NewTransport(data any) *Transport {
	ctx, cancel := context.WithCancelCause(context.Background())
	t := &Transport{
		id:       uuid.NewString(),
		data:     data,
		inflight: make(map[string]context.CancelCauseFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
	t.touch(time.Now())
	return t
}

func (t *Transport) SessionID() string { return t.id }

func (t *Transport) UserID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userID
}

// ProtocolVersion is the version negotiated during initialize.
func (t *Transport) ProtocolVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protocolVersion
}

// Data returns the server-side state bound at construction.
func (t *Transport) Data() any { return t.data }

func (t *Transport) State() State { return State(t.state.Load()) }

// Done is closed once the transport has been closed.
func (t *Transport) Done() <-chan struct{} { return t.ctx.Done() }

// LastActive reports the last time a request began on the transport.
func (t *Transport) LastActive() time.Time { return time.Unix(0, t.lastActive.Load()) }

// SetIdentity records the negotiated protocol version and the authenticated
// principal. It is called by the initialize handler before registration.
func (t *Transport) SetIdentity(protocolVersion, userID string) {
	t.mu.Lock()
	t.protocolVersion = protocolVersion
	t.userID = userID
	t.mu.Unlock()
}

func (t *Transport) activate(onClose func(*Transport)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closing:
		return &SessionError{SessionID: t.id, Err: ErrSessionClosed}
	case t.State() == StateUninitialized:
	case t.State() == StateClosed:
		return &SessionError{SessionID: t.id, Err: ErrSessionClosed}
	default:
		return &SessionError{SessionID: t.id, Err: ErrAlreadyInitialized}
	}
	t.onClose = onClose
	t.state.Store(int32(StateActive))
	return nil
}

func (t *Transport) touch(now time.Time) { t.lastActive.Store(now.UnixNano()) }

// Begin admits one request onto the transport. It waits for the single-flight
// slot in arrival order and returns a context that is cancelled when the
// request is cancelled by the peer (Cancel) or the transport closes. The
// returned release function MUST be called exactly once.
func (t *Transport) Begin(ctx context.Context, requestID string) (context.Context, func(), error) {
	if t.State() == StateClosed {
		return nil, nil, &SessionError{SessionID: t.id, Err: ErrSessionClosed}
	}
	t.touch(time.Now())

	reqCtx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(t.ctx, func() { cancel(context.Cause(t.ctx)) })

	if requestID != "" {
		t.mu.Lock()
		t.inflight[requestID] = cancel
		t.mu.Unlock()
	}

	unregister := func() {
		stop()
		if requestID != "" {
			t.mu.Lock()
			delete(t.inflight, requestID)
			t.mu.Unlock()
		}
		cancel(nil)
	}

	if err := t.slot.acquire(reqCtx); err != nil {
		unregister()
		if t.State() == StateClosed {
			return nil, nil, &SessionError{SessionID: t.id, Err: ErrSessionClosed}
		}
		return nil, nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			t.slot.release()
			unregister()
		})
	}
	return reqCtx, release, nil
}

// Cancel cancels the in-flight (or queued) request with the given id. It
// reports whether such a request was found.
func (t *Transport) Cancel(requestID string) bool {
	t.mu.Lock()
	cancel, ok := t.inflight[requestID]
	t.mu.Unlock()
	if ok {
		cancel(ErrRequestCancelled)
	}
	return ok
}

// Close deregisters the transport and cancels every request context it owns
// with ErrSessionClosed. Close is idempotent.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closing = true
		onClose := t.onClose
		t.mu.Unlock()
		if onClose != nil {
			onClose(t)
		}
		t.state.Store(int32(StateClosed))
		t.cancel(ErrSessionClosed)
	})
}

// fifo is a binary semaphore whose waiters are admitted in arrival order.
type fifo struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func (f *fifo) acquire(ctx context.Context) error {
	f.mu.Lock()
	if !f.held {
		f.held = true
		f.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		for i, w := range f.waiters {
			if w == ch {
				f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
				f.mu.Unlock()
				return context.Cause(ctx)
			}
		}
		f.mu.Unlock()
		// The slot was handed to us concurrently; pass it on.
		f.release()
		return context.Cause(ctx)
	}
}

func (f *fifo) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.waiters) > 0 {
		next := f.waiters[0]
		f.waiters = f.waiters[1:]
		close(next)
		return
	}
	f.held = false
}
