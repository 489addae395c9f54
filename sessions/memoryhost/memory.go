package memoryhost

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/editor-mcp-go/sessions"
)

// DefaultMaxMessages bounds the replay log retained per session.
const DefaultMaxMessages = 1024

// retireFor is how long a cleaned-up session id keeps refusing messages.
const retireFor = 10 * time.Minute

// Host is an in-memory implementation of sessions.SessionHost.
type Host struct {
	maxMessages int

	mu       sync.Mutex
	sessions map[string]*sessionData
	retired  map[string]time.Time
	counter  atomic.Int64
}

type sessionData struct {
	mu       sync.Mutex
	messages []message
	// wake is closed and replaced on every publish.
	wake   chan struct{}
	closed chan struct{}
}

type message struct {
	id   string
	data []byte
}

// Option configures a Host.
type Option func(*Host)

// WithMaxMessages bounds how many messages are kept per session for resume.
func WithMaxMessages(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.maxMessages = n
		}
	}
}

func New(opts ...Option) *Host {
	h := &Host{
		maxMessages: DefaultMaxMessages,
		sessions:    make(map[string]*sessionData),
		retired:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// --- Messaging ---

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	evID := strconv.FormatInt(h.counter.Add(1), 10)
	msg := message{id: evID, data: append([]byte(nil), data...)}

	sd, err := h.ensureSession(sessionID)
	if err != nil {
		return "", err
	}

	sd.mu.Lock()
	sd.messages = append(sd.messages, msg)
	if over := len(sd.messages) - h.maxMessages; over > 0 {
		sd.messages = append(sd.messages[:0:0], sd.messages[over:]...)
	}
	close(sd.wake)
	sd.wake = make(chan struct{})
	sd.mu.Unlock()

	return evID, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunction) error {
	sd, err := h.ensureSession(sessionID)
	if err != nil {
		return err
	}

	// cursor is the id of the last message delivered; "" before any delivery.
	sd.mu.Lock()
	cursor := lastEventID
	if lastEventID == "" {
		if n := len(sd.messages); n > 0 {
			cursor = sd.messages[n-1].id
		}
	} else if indexOf(sd.messages, lastEventID) < 0 {
		sd.mu.Unlock()
		return fmt.Errorf("%w: %s", sessions.ErrUnknownEventID, lastEventID)
	}
	sd.mu.Unlock()

	for {
		sd.mu.Lock()
		start := 0
		if cursor != "" {
			start = indexOf(sd.messages, cursor) + 1
		}
		pending := append([]message(nil), sd.messages[start:]...)
		wake := sd.wake
		sd.mu.Unlock()

		for _, m := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := handler(ctx, m.id, m.data); err != nil {
				return err
			}
			cursor = m.id
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sd.closed:
			return nil
		case <-wake:
		}
	}
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	now := time.Now()
	h.mu.Lock()
	sd, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	for id, at := range h.retired {
		if now.Sub(at) > retireFor {
			delete(h.retired, id)
		}
	}
	h.retired[sessionID] = now
	h.mu.Unlock()
	if ok {
		close(sd.closed)
	}
	return nil
}

func (h *Host) ensureSession(sessionID string) (*sessionData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, gone := h.retired[sessionID]; gone {
		return nil, fmt.Errorf("%w: %s", sessions.ErrSessionClosed, sessionID)
	}
	sd, ok := h.sessions[sessionID]
	if !ok {
		sd = &sessionData{wake: make(chan struct{}), closed: make(chan struct{})}
		h.sessions[sessionID] = sd
	}
	return sd, nil
}

// indexOf finds id in msgs, or -1. A delivered cursor that has since been
// trimmed resolves to -1 as well, which restarts delivery at the oldest
// retained message.
func indexOf(msgs []message, id string) int {
	for i := range msgs {
		if msgs[i].id == id {
			return i
		}
	}
	return -1
}

// Ensure interface compliance
var _ sessions.SessionHost = (*Host)(nil)
