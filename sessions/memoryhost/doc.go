// Package memoryhost provides an in-memory sessions.SessionHost implementation
// suitable for tests, development, and the single-process editor server. All
// state is ephemeral and discarded on process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Ordering          : monotonic decimal IDs, delivered in publish order
//	Retention         : bounded per session (WithMaxMessages)
//
// Example:
//
//	host := memoryhost.New()
//	// transport wires this host into streaminghttp.New(...)
//
// Prefer redishost when session streams must survive a restart.
package memoryhost
