package sessions

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry maps session identifiers to live transports. Its mutex is held
// only for lookup, insert and delete; request processing never runs under it.
type Registry struct {
	log         *slog.Logger
	idleTimeout time.Duration
	onClose     []func(*Transport)

	mu         sync.Mutex
	transports map[string]*Transport
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for lifecycle events.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// WithIdleTimeout closes sessions that see no request activity for longer
// than d when Sweep runs. Zero disables idle reaping.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithCloseHook registers fn to run after a transport is deregistered.
func WithCloseHook(fn func(*Transport)) RegistryOption {
	return func(r *Registry) { r.onClose = append(r.onClose, fn) }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		transports: make(map[string]*Transport),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds an initialized transport under its identifier and moves it
// to ACTIVE. A colliding identifier is regenerated before insertion.
func (r *Registry) Register(t *Transport) error {
	r.mu.Lock()
	for {
		if cur, taken := r.transports[t.id]; !taken || cur == t {
			break
		}
		t.id = uuid.NewString()
	}
	if err := t.activate(r.deregister); err != nil {
		r.mu.Unlock()
		return err
	}
	r.transports[t.id] = t
	r.mu.Unlock()

	r.log.Info("session.register", slog.String("session_id", t.id))
	return nil
}

// Lookup returns the live transport registered under id.
func (r *Registry) Lookup(id string) (*Transport, error) {
	if id == "" {
		return nil, &SessionError{Err: ErrNoSessionID}
	}
	r.mu.Lock()
	t, ok := r.transports[id]
	r.mu.Unlock()
	if !ok {
		return nil, &SessionError{SessionID: id, Err: ErrSessionNotFound}
	}
	if t.State() != StateActive {
		return nil, &SessionError{SessionID: id, Err: ErrSessionClosed}
	}
	return t, nil
}

// Delete tears down the session registered under id. Unknown identifiers
// yield a *SessionError without side effects.
func (r *Registry) Delete(id string) error {
	t, err := r.Lookup(id)
	if err != nil {
		return err
	}
	t.Close()
	return nil
}

// Snapshot returns the currently registered transports.
func (r *Registry) Snapshot() []*Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		out = append(out, t)
	}
	return out
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transports)
}

// CloseAll closes every registered transport.
func (r *Registry) CloseAll() {
	for _, t := range r.Snapshot() {
		t.Close()
	}
}

// Sweep closes every session idle since before now minus the idle timeout
// and returns how many were closed.
func (r *Registry) Sweep(now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTimeout)
	var n int
	for _, t := range r.Snapshot() {
		if t.LastActive().Before(cutoff) {
			r.log.Info("session.idle.reap", slog.String("session_id", t.id), slog.Time("last_active", t.LastActive()))
			t.Close()
			n++
		}
	}
	return n
}

// Run sweeps idle sessions until ctx ends. With idle reaping disabled it
// just waits for ctx.
func (r *Registry) Run(ctx context.Context) error {
	if r.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}
	interval := r.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func (r *Registry) deregister(t *Transport) {
	r.mu.Lock()
	cur, ok := r.transports[t.id]
	if ok && cur == t {
		delete(r.transports, t.id)
	}
	r.mu.Unlock()
	if !ok || cur != t {
		return
	}
	r.log.Info("session.deregister", slog.String("session_id", t.id))
	for _, fn := range r.onClose {
		fn(t)
	}
}
