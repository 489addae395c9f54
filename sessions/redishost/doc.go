// Package redishost implements sessions.SessionHost using Redis Streams so a
// session's GET stream can be resumed with Last-Event-ID across server
// restarts.
//
// Design Notes
//   - Session streams: XADD + XREAD polling (no consumer groups); at-least-once
//   - Trimming: approximate MAXLEN bounds each stream
//   - Expiry: each publish refreshes the stream's TTL
//   - Cleanup: deleting a session drops its stream key
//
// Example:
//
//	host, _ := redishost.New(redishost.Config{RedisAddr: "localhost:6379"})
//	defer host.Close()
package redishost
