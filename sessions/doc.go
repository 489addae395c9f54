// Package sessions defines the session registry and per-session transport
// shared by the streaming HTTP handler and the engine. A session represents
// one initialized MCP client: its negotiated protocol version, authenticated
// principal and the server-side state (conversation, schema cache) bound to
// it at construction.
//
// Layers & Roles
//
//	Registry    -> maps identifiers to live transports, reaps idle sessions
//	Transport   -> lifecycle state machine, FIFO single-flight, cancellation
//	SessionHost -> ordered server-to-client message log behind GET streams
//
// # Lifecycle
//
// A Transport starts UNINITIALIZED. Registry.Register moves it to ACTIVE once
// initialize succeeds; Transport.Close (or Registry.Delete) deregisters it and
// moves it to CLOSED, cancelling every in-flight request context with
// ErrSessionClosed. Identifiers are never reused while registered.
//
// # Errors
//
// Requests that cannot be routed to a live session fail with *SessionError,
// which wraps ErrNoSessionID, ErrSessionNotFound or ErrSessionClosed.
//
// # Host Implementations
//
//	memoryhost : in-memory reference used for tests / single-process servers
//	redishost  : Redis Streams backed implementation for durable resume
package sessions
