// Package auth provides bearer token authentication for the streaming HTTP
// transport.
//
// An Authenticator validates an incoming bearer token string and returns a
// UserInfo (or an error). The transport extracts the token from the
// Authorization header and maps the sentinel errors into WWW-Authenticate
// challenges.
//
// Three constructors cover the supported deployments:
//
//   - NewHS256 verifies tokens signed with a shared secret. This suits a
//     single editor instance talking to a co-located client.
//   - NewJWKS verifies asymmetric signatures against a remote key set.
//   - NewOIDC discovers the key set from an OpenID Connect issuer and
//     enforces RFC 9068 access token rules.
//
// Example:
//
//	authn, err := auth.NewHS256([]byte(secret), auth.WithIssuer("editor-mcp"))
//	if err != nil { log.Fatal(err) }
//
//	ui, err := authn.CheckAuthentication(r.Context(), bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) { /* 401 */ }
//	if errors.Is(err, auth.ErrInsufficientScope) { /* 403 */ }
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience,
// etc.). ErrInsufficientScope signals successful authentication but missing
// required scope(s).
package auth
