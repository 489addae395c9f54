package streaminghttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggoodman/editor-mcp-go/auth"
)

// challenge is an RFC 6750 WWW-Authenticate value. A zero code yields a bare
// challenge, as required when the request had no credentials.
type challenge struct {
	code        string
	description string
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (h *StreamingHTTPHandler) challengeHeader(c challenge) string {
	var params []string
	add := func(k, v string) {
		if v != "" {
			params = append(params, k+`="`+quoteEscaper.Replace(v)+`"`)
		}
	}
	add("realm", h.realm)
	add("resource_metadata", h.metadataURL)
	add("error", c.code)
	add("error_description", c.description)
	if len(params) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(params, ", ")
}

func (h *StreamingHTTPHandler) reject(w http.ResponseWriter, status int, c challenge) {
	w.Header().Add("WWW-Authenticate", h.challengeHeader(c))
	w.WriteHeader(status)
}

var (
	errMalformedBearer = errors.New("malformed bearer authorization header")
	errEmptyBearer     = errors.New("empty bearer token")
)

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(header string) (string, error) {
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMalformedBearer
	}
	if tok = strings.TrimSpace(tok); tok == "" {
		return "", errEmptyBearer
	}
	return tok, nil
}

// authenticate returns the caller's user id, "" for everyone when no
// authenticator is set. When ok is false the rejection has been written.
func (h *StreamingHTTPHandler) authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request) (userID string, ok bool) {
	if h.auth == nil {
		return "", true
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		h.log.InfoContext(ctx, "auth.check.missing")
		h.reject(w, http.StatusUnauthorized, challenge{})
		return "", false
	}
	tok, err := bearerToken(header)
	if err != nil {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", err.Error()))
		h.reject(w, http.StatusBadRequest, challenge{"invalid_request", err.Error()})
		return "", false
	}

	user, err := h.auth.CheckAuthentication(ctx, tok)
	switch {
	case err == nil:
		h.log.DebugContext(ctx, "auth.ok", slog.String("user_id", user.UserID()))
		return user.UserID(), true
	case errors.Is(err, auth.ErrInsufficientScope):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		h.reject(w, http.StatusForbidden, challenge{"insufficient_scope", "insufficient scope"})
	case errors.Is(err, auth.ErrUnauthorized):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		h.reject(w, http.StatusUnauthorized, challenge{"invalid_token", "invalid token"})
	default:
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
	return "", false
}

func (h *StreamingHTTPHandler) serveMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Vary", "Origin")
	if err := writeJSON(w, http.StatusOK, h.metadata); err != nil {
		h.log.ErrorContext(r.Context(), "prm.write.fail", slog.String("err", err.Error()))
	}
}

func (h *StreamingHTTPHandler) serveMetadataPreflight(w http.ResponseWriter, _ *http.Request) {
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
	hdr.Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}
