// Package logctx carries request, session, RPC and agent-turn identifiers on
// a context.Context so that every log record emitted under that context is
// tagged with them.
package logctx

import (
	"context"
	"log/slog"
)

// group is implemented by each piece of context data. The attr it returns
// is appended to every record logged under the context.
type group interface {
	attr() slog.Attr
}

type key[T group] struct{}

func with[T group](ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, key[T]{}, v)
}

func lookup[T group](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(key[T]{}).(T)
	return v, ok
}

// Handler decorates an slog.Handler with the groups found on the record's
// context, outermost (HTTP request) first.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	addGroup[*RequestData](ctx, &r)
	addGroup[*SessionData](ctx, &r)
	addGroup[*RPCMessage](ctx, &r)
	addGroup[*TurnData](ctx, &r)
	addGroup[*ToolCallData](ctx, &r)
	return h.Handler.Handle(ctx, r)
}

func addGroup[T group](ctx context.Context, r *slog.Record) {
	if v, ok := lookup[T](ctx); ok {
		r.AddAttrs(v.attr())
	}
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

// RequestData describes the inbound HTTP request.
type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func (d *RequestData) attr() slog.Attr {
	return slog.Group("req",
		slog.String("id", d.RequestID),
		slog.String("method", d.Method),
		slog.String("user_agent", d.UserAgent),
		slog.String("remote_addr", d.RemoteAddr),
		slog.String("path", d.Path),
	)
}

func WithRequestData(ctx context.Context, d *RequestData) context.Context { return with(ctx, d) }

// SessionData identifies the editor session serving the request.
type SessionData struct {
	SessionID       string
	UserID          string
	ProtocolVersion string
	State           string
}

func (d *SessionData) attr() slog.Attr {
	return slog.Group("sess",
		slog.String("id", d.SessionID),
		slog.String("user_id", d.UserID),
		slog.String("protocol_version", d.ProtocolVersion),
		slog.String("state", d.State),
	)
}

func WithSessionData(ctx context.Context, d *SessionData) context.Context { return with(ctx, d) }

// RPCMessage identifies the JSON-RPC message being handled.
type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func (m *RPCMessage) attr() slog.Attr {
	return slog.Group("rpc",
		slog.String("method", m.Method),
		slog.String("id", m.ID),
		slog.String("type", m.Type),
	)
}

func WithRPCMessage(ctx context.Context, m *RPCMessage) context.Context { return with(ctx, m) }

// TurnData identifies one round of an agent turn.
type TurnData struct {
	Model string
	Round int
}

func (d *TurnData) attr() slog.Attr {
	return slog.Group("turn", slog.String("model", d.Model), slog.Int("round", d.Round))
}

func WithTurnData(ctx context.Context, d *TurnData) context.Context { return with(ctx, d) }

// ToolCallData identifies a single tool invocation.
type ToolCallData struct {
	ToolName string
	CallID   string
}

func (d *ToolCallData) attr() slog.Attr {
	return slog.Group("tool", slog.String("name", d.ToolName), slog.String("call_id", d.CallID))
}

func WithToolCallData(ctx context.Context, d *ToolCallData) context.Context { return with(ctx, d) }
