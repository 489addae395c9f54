package streaminghttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/editor-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/editor-mcp-go/internal/logctx"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// responseMediaTypes is ordered by preference; JSON wins a tie.
var responseMediaTypes = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}

func (h *StreamingHTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	if ct, err := contenttype.GetMediaType(r); err != nil || !ct.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "content_type.unsupported")
		writeHTTPError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}
	userID, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}

	msg, ok := h.decodeMessage(ctx, w, r)
	if !ok {
		return
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: msg.Method, ID: msg.ID.String(), Type: msg.Type()})

	if r.Header.Get(headerSessionID) == "" {
		h.initialize(ctx, w, userID, msg, start)
		return
	}

	t, err := h.session(r, userID)
	if err != nil {
		h.log.InfoContext(ctx, "session.load.miss", slog.String("err", err.Error()))
		writeBadSession(w)
		return
	}
	ctx = logctx.WithSessionData(ctx, sessionData(t))

	if pv := r.Header.Get(headerProtocolVersion); pv != "" && pv != t.ProtocolVersion() {
		h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", pv))
		writeHTTPError(w, http.StatusBadRequest, "protocol version mismatch")
		return
	}
	w.Header().Set(headerProtocolVersion, t.ProtocolVersion())

	if msg.Type() != jsonrpc.KindRequest {
		if _, err := h.eng.Handle(ctx, t, msg); err != nil {
			h.log.InfoContext(ctx, "message.inbound.rejected", slog.String("err", err.Error()))
			writeBadSession(w)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "message.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	mt, _, err := contenttype.GetAcceptableMediaType(r, responseMediaTypes)
	if err != nil {
		h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
		writeHTTPError(w, http.StatusNotAcceptable, "accept must allow application/json or text/event-stream")
		return
	}
	if mt.Matches(eventStreamMediaType) {
		h.replyEvent(ctx, w, t, msg, start)
		return
	}
	h.replyJSON(ctx, w, t, msg, start)
}

// decodeMessage reads a single JSON-RPC message. Batches are rejected.
func (h *StreamingHTTPHandler) decodeMessage(ctx context.Context, w http.ResponseWriter, r *http.Request) (*jsonrpc.AnyMessage, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeParseError, "parse error")
		return nil, false
	}
	if len(raw) > 0 && raw[0] == '[' {
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		writeHTTPError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not accepted")
		return nil, false
	}
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, "invalid request")
		return nil, false
	}
	return &msg, true
}

// initialize creates a session. The reply is always JSON so the client sees
// the session id header before anything else.
func (h *StreamingHTTPHandler) initialize(ctx context.Context, w http.ResponseWriter, userID string, msg *jsonrpc.AnyMessage, start time.Time) {
	t, res, err := h.eng.Initialize(ctx, userID, msg.AsRequest())
	if err != nil {
		h.log.InfoContext(ctx, "session.initialize.rejected", slog.String("err", err.Error()))
		writeBadSession(w)
		return
	}
	if t != nil {
		ctx = logctx.WithSessionData(ctx, sessionData(t))
		w.Header().Set(headerSessionID, t.SessionID())
		w.Header().Set(headerProtocolVersion, t.ProtocolVersion())
	}
	if err := writeJSON(w, http.StatusOK, res); err != nil {
		h.log.ErrorContext(ctx, "session.initialize.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "http.initialize.ok", slog.Duration("dur", time.Since(start)))
}

// dispatch runs msg and converts engine failures into error responses.
func (h *StreamingHTTPHandler) dispatch(ctx context.Context, t *sessions.Transport, msg *jsonrpc.AnyMessage) (*jsonrpc.Response, bool) {
	res, err := h.eng.Handle(ctx, t, msg)
	if err == nil {
		return res, true
	}
	if sessions.IsSessionError(err) {
		h.log.InfoContext(ctx, "rpc.inbound.rejected", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeBadSession, badSessionMessage, nil), false
	}
	h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
	return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrorCodeInternalError, "internal server error", nil), true
}

func (h *StreamingHTTPHandler) replyJSON(ctx context.Context, w http.ResponseWriter, t *sessions.Transport, msg *jsonrpc.AnyMessage, start time.Time) {
	res, live := h.dispatch(ctx, t, msg)
	status := http.StatusOK
	if !live {
		status = http.StatusBadRequest
	}
	if err := writeJSON(w, status, res); err != nil {
		h.log.ErrorContext(ctx, "rpc.response.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

// replyEvent answers with a one-event stream. Headers are flushed before
// the request runs so a long agent turn holds the connection open.
func (h *StreamingHTTPHandler) replyEvent(ctx context.Context, w http.ResponseWriter, t *sessions.Transport, msg *jsonrpc.AnyMessage, start time.Time) {
	sw, ok := newSSEWriter(ctx, w)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	sw.open()

	res, _ := h.dispatch(ctx, t, msg)
	payload, err := json.Marshal(res)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if err := sw.event("", payload); err != nil {
		h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

func (h *StreamingHTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	userID, ok := h.authenticate(ctx, w, r)
	if !ok {
		return
	}
	t, err := h.session(r, userID)
	if err != nil {
		h.log.InfoContext(ctx, "session.load.miss", slog.String("err", err.Error()))
		http.Error(w, badSessionText, http.StatusBadRequest)
		return
	}
	ctx = logctx.WithSessionData(ctx, sessionData(t))

	if err := h.eng.Delete(ctx, t.SessionID()); err != nil {
		h.log.InfoContext(ctx, "session.delete.miss", slog.String("err", err.Error()))
		http.Error(w, badSessionText, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok", slog.Duration("dur", time.Since(start)))
}
