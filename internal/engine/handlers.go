package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/editor-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/editor-mcp-go/internal/logctx"
	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

var errNoToolName = errors.New("missing tool name")

func (e *Engine) handleToolsList(ctx context.Context, t *sessions.Transport, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	c := e.newCall(ctx, req)

	var params mcp.ListToolsRequest
	if res := c.decode(&params, false); res != nil {
		return res, nil
	}
	tools, ok, err := e.srv.GetToolsCapability(ctx, t)
	if err != nil {
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}
	if !ok || tools == nil {
		return c.unsupported("tools capability"), nil
	}

	var cursor *string
	if params.Cursor != "" {
		cursor = &params.Cursor
	}
	page, err := tools.ListTools(ctx, t, cursor)
	if err != nil {
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}

	result := &mcp.ListToolsResult{Tools: page.Items}
	if result.Tools == nil {
		result.Tools = []mcp.Tool{}
	}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}
	return c.ok(result, slog.Int("tool_count", len(result.Tools)))
}

func (e *Engine) handleToolCall(ctx context.Context, t *sessions.Transport, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	c := e.newCall(ctx, req)

	var params mcp.CallToolRequestReceived
	if res := c.decode(&params, true); res != nil {
		return res, nil
	}
	if params.Name == "" {
		return c.invalid(errNoToolName.Error()), nil
	}
	c.ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name, CallID: req.ID.String()})

	tools, ok, err := e.srv.GetToolsCapability(c.ctx, t)
	if err != nil {
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}
	if !ok || tools == nil {
		return c.unsupported("tools capability"), nil
	}

	res, err := tools.CallTool(c.ctx, t, &params)
	e.metrics.ObserveTool(params.Name, toolStatus(res, err), time.Since(c.start))
	switch {
	case errors.Is(err, mcpservice.ErrToolNotFound):
		c.log.InfoContext(c.ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), c.elapsed())
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name), nil), nil
	case err != nil && c.ctx.Err() != nil:
		return c.cancelled(err), nil
	case err != nil:
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	case res == nil:
		res = &mcp.CallToolResult{}
	}
	return c.ok(res, slog.Bool("is_error", res.IsError))
}

func (e *Engine) handleSetLoggingLevel(ctx context.Context, t *sessions.Transport, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	c := e.newCall(ctx, req)

	var params mcp.SetLevelRequest
	if res := c.decode(&params, true); res != nil {
		return res, nil
	}
	logging, ok, err := e.srv.GetLoggingCapability(ctx, t)
	if err != nil {
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}
	if !ok || logging == nil {
		return c.unsupported("logging level"), nil
	}

	err = logging.SetLevel(ctx, t, params.Level)
	switch {
	case errors.Is(err, mcpservice.ErrInvalidLoggingLevel):
		return c.invalid(err.Error()), nil
	case err != nil:
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}
	return c.ok(&mcp.EmptyResult{}, slog.String("level", string(params.Level)))
}

// toolStatus is the metric label for a tool call outcome.
func toolStatus(res *mcp.CallToolResult, err error) string {
	if err != nil {
		return "fail"
	}
	if res != nil && res.IsError {
		return "error"
	}
	return "ok"
}
