package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ggoodman/editor-mcp-go/internal/jsonrpc"
)

// call tracks one request through a handler so that every exit path logs
// its outcome and duration the same way.
type call struct {
	ctx   context.Context
	log   *slog.Logger
	req   *jsonrpc.Request
	start time.Time
}

func (e *Engine) newCall(ctx context.Context, req *jsonrpc.Request) *call {
	return &call{ctx: ctx, log: e.log.With(slog.String("method", req.Method)), req: req, start: time.Now()}
}

func (c *call) elapsed() slog.Attr {
	return slog.Int64("dur_ms", time.Since(c.start).Milliseconds())
}

// decode unmarshals the request params into v. Absent params leave v zero
// unless required is set.
func (c *call) decode(v any, required bool) *jsonrpc.Response {
	if len(c.req.Params) == 0 && !required {
		return nil
	}
	if err := json.Unmarshal(c.req.Params, v); err != nil {
		return c.invalid(err.Error())
	}
	return nil
}

func (c *call) invalid(reason string) *jsonrpc.Response {
	c.log.InfoContext(c.ctx, "engine.handle_request.invalid", slog.String("err", reason), c.elapsed())
	return jsonrpc.NewErrorResponse(c.req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
}

func (c *call) unsupported(what string) *jsonrpc.Response {
	c.log.InfoContext(c.ctx, "engine.handle_request.unsupported", c.elapsed())
	return jsonrpc.NewErrorResponse(c.req.ID, jsonrpc.ErrorCodeMethodNotFound, what+" not supported", nil)
}

func (c *call) cancelled(err error) *jsonrpc.Response {
	c.log.InfoContext(c.ctx, "engine.handle_request.cancelled", slog.String("err", err.Error()), c.elapsed())
	return jsonrpc.NewErrorResponse(c.req.ID, jsonrpc.ErrorCodeRequestCancelled, "request cancelled", nil)
}

// fail logs err and answers with code. Internal errors hide err's text from
// the client.
func (c *call) fail(err error, code jsonrpc.ErrorCode, attrs ...any) *jsonrpc.Response {
	c.log.ErrorContext(c.ctx, "engine.handle_request.fail", append([]any{slog.String("err", err.Error()), c.elapsed()}, attrs...)...)
	msg := err.Error()
	if code == jsonrpc.ErrorCodeInternalError {
		msg = "internal error"
	}
	return jsonrpc.NewErrorResponse(c.req.ID, code, msg, nil)
}

func (c *call) ok(result any, attrs ...any) (*jsonrpc.Response, error) {
	c.log.InfoContext(c.ctx, "engine.handle_request.ok", append([]any{c.elapsed()}, attrs...)...)
	return jsonrpc.NewResultResponse(c.req.ID, result)
}
