package streaminghttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/editor-mcp-go/auth"
	"github.com/ggoodman/editor-mcp-go/internal/engine"
	"github.com/ggoodman/editor-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/editor-mcp-go/internal/logctx"
	"github.com/ggoodman/editor-mcp-go/internal/wellknown"
	"github.com/ggoodman/editor-mcp-go/sessions"
	"github.com/google/uuid"
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
)

const (
	headerSessionID       = "Mcp-Session-Id"
	headerProtocolVersion = "Mcp-Protocol-Version"
	headerLastEventID     = "Last-Event-ID"

	// badSessionMessage is the JSON-RPC error text for POSTs without a live
	// session; badSessionText is the plain body GET and DELETE answer with.
	badSessionMessage = "Bad Request: No valid session ID provided"
	badSessionText    = "Invalid or missing session ID"
)

type Option func(*options)

type options struct {
	serverName    string
	logger        *slog.Logger
	authenticator auth.Authenticator
	realm         string
	authServers   []string
	scopes        []string
}

// WithServerName sets resource_name in the protected resource metadata.
func WithServerName(name string) Option {
	return func(o *options) { o.serverName = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAuthenticator requires a bearer token on every request. Without one
// all callers share the anonymous identity.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *options) { o.authenticator = a }
}

// WithRealm sets the realm of WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(o *options) { o.realm = strings.TrimSpace(realm) }
}

// WithProtectedResource serves RFC 9728 metadata naming authServers and
// links it from every challenge. It requires WithAuthenticator.
func WithProtectedResource(authServers []string, scopes ...string) Option {
	return func(o *options) {
		o.authServers = append([]string(nil), authServers...)
		o.scopes = append([]string(nil), scopes...)
	}
}

// StreamingHTTPHandler serves the MCP streamable HTTP transport for one
// endpoint path.
type StreamingHTTPHandler struct {
	mux  *http.ServeMux
	log  *slog.Logger
	eng  *engine.Engine
	auth auth.Authenticator

	realm       string
	metadata    *wellknown.ProtectedResourceMetadata
	metadataURL string
}

var _ http.Handler = (*StreamingHTTPHandler)(nil)

// New mounts the transport at the path of publicEndpoint. The caller runs
// eng.
func New(publicEndpoint string, eng *engine.Engine, opts ...Option) (*StreamingHTTPHandler, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	endpoint, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", publicEndpoint, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("endpoint scheme must be http or https, got %q", endpoint.Scheme)
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.authServers) > 0 && o.authenticator == nil {
		return nil, errors.New("protected resource metadata requires an authenticator")
	}

	h := &StreamingHTTPHandler{
		mux:   http.NewServeMux(),
		log:   slog.New(logctx.Handler{Handler: o.logger.Handler()}),
		eng:   eng,
		auth:  o.authenticator,
		realm: o.realm,
	}

	path := endpoint.Path
	if path == "" {
		path = "/"
	}
	h.mux.HandleFunc("POST "+path, h.handlePost)
	h.mux.HandleFunc("GET "+path, h.handleStream)
	h.mux.HandleFunc("DELETE "+path, h.handleDelete)

	if len(o.authServers) > 0 {
		prm := wellknown.ProtectedResourceURL(endpoint)
		h.metadataURL = prm.String()
		h.metadata = &wellknown.ProtectedResourceMetadata{
			Resource:               endpoint.String(),
			AuthorizationServers:   o.authServers,
			ScopesSupported:        o.scopes,
			BearerMethodsSupported: []string{"header"},
			ResourceName:           o.serverName,
		}
		prmPath := strings.TrimSuffix(prm.Path, "/")
		h.mux.HandleFunc("GET "+prmPath, h.serveMetadata)
		h.mux.HandleFunc("OPTIONS "+prmPath, h.serveMetadataPreflight)
	}
	return h, nil
}

func (h *StreamingHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// session resolves the Mcp-Session-Id header. Sessions owned by another
// user are reported as not found.
func (h *StreamingHTTPHandler) session(r *http.Request, userID string) (*sessions.Transport, error) {
	id := r.Header.Get(headerSessionID)
	t, err := h.eng.Lookup(id)
	if err != nil {
		return nil, err
	}
	if t.UserID() != userID {
		return nil, &sessions.SessionError{SessionID: id, Err: sessions.ErrSessionNotFound}
	}
	return t, nil
}

func sessionData(t *sessions.Transport) *logctx.SessionData {
	return &logctx.SessionData{
		SessionID:       t.SessionID(),
		UserID:          t.UserID(),
		ProtocolVersion: t.ProtocolVersion(),
		State:           t.State().String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// writeHTTPError rejects a request before any JSON-RPC exchange.
func writeHTTPError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// writeRPCError answers with a JSON-RPC error whose id is null.
func writeRPCError(w http.ResponseWriter, status int, code jsonrpc.ErrorCode, msg string) {
	_ = writeJSON(w, status, jsonrpc.NewErrorResponse(nil, code, msg, nil))
}

func writeBadSession(w http.ResponseWriter) {
	writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeBadSession, badSessionMessage)
}
