package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/editor-mcp-go/agent"
	"github.com/ggoodman/editor-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/editor-mcp-go/internal/logctx"
	"github.com/ggoodman/editor-mcp-go/internal/metrics"
	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// sessionState is the server context bound to a transport at initialize.
// Requests on a transport are single-flight so its fields need no lock.
type sessionState struct {
	conv    *agent.Conversation
	adapter *agent.SchemaAdapter
	loop    *agent.Loop
	stop    context.CancelFunc
}

func stateOf(t *sessions.Transport) (*sessionState, error) {
	st, ok := t.Data().(*sessionState)
	if !ok || st == nil {
		return nil, fmt.Errorf("session %s has no bound state", t.SessionID())
	}
	return st, nil
}

func (e *Engine) handleChatSend(ctx context.Context, t *sessions.Transport, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	c := e.newCall(ctx, req)

	var params mcp.ChatSendRequest
	if res := c.decode(&params, true); res != nil {
		return res, nil
	}
	if strings.TrimSpace(params.Text) == "" {
		return c.invalid("missing text"), nil
	}
	st, err := stateOf(t)
	if err != nil {
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}
	if st.loop == nil {
		return c.unsupported("chat"), nil
	}

	c.ctx = logctx.WithTurnData(ctx, &logctx.TurnData{Model: params.Model})
	text, err := st.loop.Advance(c.ctx, st.conv, params.Text, params.Model)
	if err != nil {
		code, outcome := classifyTurnError(err)
		e.metrics.ObserveTurn(outcome, time.Since(c.start))
		if code == jsonrpc.ErrorCodeRequestCancelled {
			return c.cancelled(err), nil
		}
		return c.fail(err, code, slog.String("outcome", outcome)), nil
	}
	e.metrics.ObserveTurn("ok", time.Since(c.start))
	return c.ok(&mcp.ChatSendResult{Text: text}, slog.Int("messages", st.conv.Len()))
}

// classifyTurnError maps a turn failure to its JSON-RPC code and metric
// outcome label.
func classifyTurnError(err error) (jsonrpc.ErrorCode, string) {
	var (
		backendErr *agent.BackendTransportError
		argErr     *agent.ToolArgumentError
		execErr    *agent.ToolExecutionError
	)
	switch {
	case errors.Is(err, sessions.ErrRequestCancelled),
		errors.Is(err, sessions.ErrSessionClosed),
		errors.Is(err, context.Canceled):
		return jsonrpc.ErrorCodeRequestCancelled, "cancelled"
	case errors.As(err, &backendErr):
		return jsonrpc.ErrorCodeBackendTransport, "backend"
	case errors.As(err, &argErr):
		return jsonrpc.ErrorCodeToolArguments, "tool_arguments"
	case errors.As(err, &execErr):
		return jsonrpc.ErrorCodeToolExecution, "tool_execution"
	case errors.Is(err, agent.ErrMaxRoundsExceeded):
		return jsonrpc.ErrorCodeRoundLimit, "round_limit"
	default:
		return jsonrpc.ErrorCodeInternalError, "internal"
	}
}

func (e *Engine) handleChatClear(ctx context.Context, t *sessions.Transport, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	c := e.newCall(ctx, req)
	st, err := stateOf(t)
	if err != nil {
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}
	st.conv.Clear()
	return c.ok(&mcp.EmptyResult{})
}

func (e *Engine) handleChatHistory(ctx context.Context, t *sessions.Transport, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	c := e.newCall(ctx, req)
	st, err := stateOf(t)
	if err != nil {
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}

	msgs := st.conv.Messages()
	result := &mcp.ChatHistoryResult{Messages: make([]mcp.ChatMessage, 0, len(msgs))}
	for _, m := range msgs {
		cm := mcp.ChatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, mcp.ChatToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		result.Messages = append(result.Messages, cm)
	}
	return c.ok(result, slog.Int("messages", len(result.Messages)))
}

func (e *Engine) handleChatModels(ctx context.Context, _ *sessions.Transport, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	c := e.newCall(ctx, req)
	if e.models == nil {
		return c.unsupported("model listing"), nil
	}
	models, err := e.models.ListModels(ctx)
	if err != nil {
		var backendErr *agent.BackendTransportError
		if errors.As(err, &backendErr) {
			return c.fail(err, jsonrpc.ErrorCodeBackendTransport), nil
		}
		return c.fail(err, jsonrpc.ErrorCodeInternalError), nil
	}
	if models == nil {
		models = []string{}
	}
	return c.ok(&mcp.ChatModelsResult{Models: models}, slog.Int("model_count", len(models)))
}

// progressPublisher forwards agent tool activity to the session stream as
// notifications/message.
func (e *Engine) progressPublisher(t *sessions.Transport) func(context.Context, agent.ProgressEvent) {
	return func(ctx context.Context, ev agent.ProgressEvent) {
		e.publish(ctx, t, string(mcp.LoggingMessageNotificationMethod), &mcp.LoggingMessageNotification{
			Level:  mcp.LoggingLevelInfo,
			Logger: "agent",
			Data: map[string]any{
				"round":   ev.Round,
				"phase":   string(ev.Phase),
				"tool":    ev.Tool,
				"callId":  ev.CallID,
				"isError": ev.IsError,
			},
		})
	}
}

// noTools is the registry of a session whose server offers no tools.
type noTools struct{}

func (noTools) ListTools(context.Context) ([]mcp.Tool, error) { return nil, nil }

func (noTools) CallTool(_ context.Context, name string, _ json.RawMessage) (*mcp.CallToolResult, error) {
	return nil, fmt.Errorf("%w: %s", mcpservice.ErrToolNotFound, name)
}

// observedRegistry records tool call metrics for agent-driven calls.
type observedRegistry struct {
	inner   agent.CapabilityRegistry
	metrics *metrics.Metrics
}

func (r observedRegistry) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return r.inner.ListTools(ctx)
}

func (r observedRegistry) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	start := time.Now()
	res, err := r.inner.CallTool(ctx, name, args)
	r.metrics.ObserveTool(name, toolStatus(res, err), time.Since(start))
	return res, err
}
