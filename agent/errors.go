package agent

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMaxRoundsExceeded is returned when the model keeps requesting tools
	// past the configured round limit.
	ErrMaxRoundsExceeded = errors.New("agent: maximum tool rounds exceeded")
	// ErrOrphanToolMessage is returned when a tool message does not answer a
	// tool call issued by an earlier assistant message.
	ErrOrphanToolMessage = errors.New("agent: tool message without matching tool call")
	// ErrInvalidRole is returned when appending a message with an unknown role.
	ErrInvalidRole = errors.New("agent: invalid message role")
	// ErrInvalidToolCall is returned when an assistant message carries a tool
	// call without an id, or two calls sharing one.
	ErrInvalidToolCall = errors.New("agent: invalid tool call id")
)

// BackendTransportError reports a failed call to the language-model backend:
// either a non-success HTTP status or a network-level failure.
type BackendTransportError struct {
	// StatusCode is the HTTP status returned by the backend, or 0 when no
	// response was received.
	StatusCode int
	// Status is the backend's status text.
	Status string
	Err    error
}

func (e *BackendTransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("backend: %s: %v", e.statusText(), e.Err)
	case e.StatusCode != 0:
		return "backend: " + e.statusText()
	case e.Err != nil:
		return "backend: " + e.Err.Error()
	default:
		return "backend: request failed"
	}
}

func (e *BackendTransportError) statusText() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *BackendTransportError) Unwrap() error { return e.Err }

// ToolArgumentError reports tool-call arguments that are not valid JSON or do
// not satisfy the tool's input schema.
type ToolArgumentError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("tool %q (call %s): invalid arguments: %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolArgumentError) Unwrap() error { return e.Err }

// ToolExecutionError reports a failed registry invocation.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("tools: %v", e.Err)
	}
	return fmt.Sprintf("tool %q (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
