// Package streaminghttp implements the MCP streamable HTTP transport. It
// mounts as a standard net/http handler in front of an engine.Engine.
//
// Responsibilities
//   - Session creation on initialize and the Mcp-Session-Id header
//   - Rejecting requests that name no live session (HTTP 400)
//   - JSON or single-event SSE responses, chosen from the Accept header
//   - The per-session GET event stream with Last-Event-ID resumption
//   - Session teardown via DELETE
//   - Optional bearer authentication with RFC 6750 challenges
//
// Construction
//
//	eng := engine.NewEngine(memoryhost.New(), server, engine.WithLogger(log))
//	h, err := streaminghttp.New("http://localhost:3000/mcp", eng,
//	    streaminghttp.WithLogger(log),
//	)
//
// # Session errors
//
// A POST without a session header that is not an initialize request, or a
// POST naming an unknown or closed session, is answered with HTTP 400 and
// the body
//
//	{"jsonrpc":"2.0","error":{"code":-32000,"message":"Bad Request: No valid session ID provided"},"id":null}
//
// GET and DELETE answer the same condition with HTTP 400 and a plain-text
// body. No session state is created on any rejected request.
//
// # Protected Resource Metadata
//
// WithProtectedResource serves RFC 9728 metadata under
// /.well-known/oauth-protected-resource and points challenges at it.
//
// Example (mount in net/http):
//
//	mux := http.NewServeMux()
//	mux.Handle("/", h)
//	http.ListenAndServe(":3000", mux)
package streaminghttp
