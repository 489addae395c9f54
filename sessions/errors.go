package sessions

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSessionID is reported when a non-initialize request arrives without
	// a session identifier.
	ErrNoSessionID = errors.New("no session id provided")
	// ErrSessionNotFound is reported for identifiers that are not registered.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is the cancellation cause of every request context
	// owned by a transport that has been closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrRequestCancelled is the cancellation cause applied when the peer
	// cancels an in-flight request.
	ErrRequestCancelled = errors.New("request cancelled by peer")
	// ErrAlreadyInitialized is reported when a transport is registered twice.
	ErrAlreadyInitialized = errors.New("session already initialized")
)

// SessionError reports a request that cannot be routed to a live session.
// Transports answer it with HTTP 400 and never create session state.
type SessionError struct {
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("session: %v", e.Err)
	}
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsSessionError reports whether err is, or wraps, a *SessionError.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}
