package streaminghttp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/editor-mcp-go/internal/logctx"
)

// sseWriter frames Server-Sent Events. Writes are serialized and stop once
// the request context ends.
type sseWriter struct {
	ctx context.Context
	w   http.ResponseWriter
	f   http.Flusher
	mu  sync.Mutex
}

func newSSEWriter(ctx context.Context, w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{ctx: ctx, w: w, f: f}, true
}

// open sends the stream headers.
func (s *sseWriter) open() {
	hdr := s.w.Header()
	hdr.Set("Content-Type", eventStreamMediaType.String())
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.f.Flush()
}

// event writes one frame. An empty id omits the id field.
func (s *sseWriter) event(id string, data []byte) error {
	var buf bytes.Buffer
	if id != "" {
		buf.WriteString("id: ")
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

var streamMediaTypes = []contenttype.MediaType{eventStreamMediaType}

// handleStream serves the session's server-to-client event stream,
// replaying after Last-Event-ID when given.
func (h *StreamingHTTPHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, streamMediaTypes); err != nil {
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		writeHTTPError(w, http.StatusNotAcceptable, "accept must allow text/event-stream")
		return
	}
	sw, ok := newSSEWriter(ctx, w)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
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

	w.Header().Set(headerProtocolVersion, t.ProtocolVersion())
	sw.open()
	h.log.InfoContext(ctx, "sse.stream.start")

	err = h.eng.Stream(ctx, t, r.Header.Get(headerLastEventID), func(ctx context.Context, id string, msg []byte) error {
		if err := sw.event(id, msg); err != nil {
			return err
		}
		h.log.DebugContext(ctx, "sse.message.deliver", slog.String("event_id", id))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
}
