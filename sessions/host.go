package sessions

import (
	"context"
	"errors"
)

// ErrUnknownEventID is returned by SubscribeSession when a resume cursor does
// not match any retained message.
var ErrUnknownEventID = errors.New("unknown last event id")

// MessageHandlerFunction handles ordered messages for a session stream.
// If the handler returns an error, the subscription will terminate with that error.
type MessageHandlerFunction func(ctx context.Context, msgID string, msg []byte) error

// SessionHost provides the ordered server-to-client message log behind the
// GET side of a session. It works across in-memory and distributed
// implementations.
type SessionHost interface {
	// PublishSession appends data to the session's stream and returns the
	// event id assigned to it.
	PublishSession(ctx context.Context, sessionID string, data []byte) (eventID string, err error)
	// SubscribeSession delivers, in order, every message published after
	// lastEventID (or after the subscription starts when lastEventID is
	// empty) until ctx ends, the handler fails or the session is cleaned up.
	SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler MessageHandlerFunction) error
	// CleanupSession drops the session's stream and stops its subscribers.
	// The id is retired: later PublishSession and SubscribeSession calls for
	// it fail with ErrSessionClosed instead of starting a new stream.
	CleanupSession(ctx context.Context, sessionID string) error
}
