package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/editor-mcp-go/agent"
	"github.com/ggoodman/editor-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/editor-mcp-go/internal/logctx"
	"github.com/ggoodman/editor-mcp-go/internal/metrics"
	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// ErrInvalidInitialize is returned by Initialize for messages that are not a
// well-formed initialize request.
var ErrInvalidInitialize = errors.New("not an initialize request")

// ModelLister reports the model identifiers a backend offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Engine is the core of the server. It owns the session registry, binds the
// per-session agent state at initialize and routes JSON-RPC messages to the
// capability and chat handlers. It is transport-agnostic: streaminghttp
// drives it over HTTP.
type Engine struct {
	srv     mcpservice.ServerCapabilities
	host    sessions.SessionHost
	reg     *sessions.Registry
	log     *slog.Logger
	metrics *metrics.Metrics

	idleTimeout time.Duration
	schemaTTL   time.Duration

	backend  agent.Backend
	models   ModelLister
	loopOpts []agent.LoopOption
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used by the engine and the components it builds.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records session, request, turn and tool metrics on m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithIdleTimeout closes sessions idle for longer than d. Zero disables it.
func WithIdleTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.idleTimeout = d }
}

// WithSchemaTTL bounds how long each session's tool schema cache is reused.
func WithSchemaTTL(d time.Duration) EngineOption {
	return func(e *Engine) { e.schemaTTL = d }
}

// WithAgent enables the chat/* methods. Each session gets its own agent loop
// over backend configured with opts. models may be nil, in which case
// chat/models is not supported.
func WithAgent(backend agent.Backend, models ModelLister, opts ...agent.LoopOption) EngineOption {
	return func(e *Engine) {
		e.backend = backend
		e.models = models
		e.loopOpts = opts
	}
}

// NewEngine builds an engine serving srv. Server-to-client messages are
// published through host.
func NewEngine(host sessions.SessionHost, srv mcpservice.ServerCapabilities, opts ...EngineOption) *Engine {
	e := &Engine{
		srv:  srv,
		host: host,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reg = sessions.NewRegistry(
		sessions.WithRegistryLogger(e.log),
		sessions.WithIdleTimeout(e.idleTimeout),
		sessions.WithCloseHook(e.onSessionClosed),
	)
	return e
}

// Run reaps idle sessions until ctx ends and then closes every session.
func (e *Engine) Run(ctx context.Context) error {
	defer e.reg.CloseAll()
	return e.reg.Run(ctx)
}

// Sessions exposes the registry for inspection.
func (e *Engine) Sessions() *sessions.Registry { return e.reg }

// Lookup returns the live session registered under id.
func (e *Engine) Lookup(id string) (*sessions.Transport, error) {
	return e.reg.Lookup(id)
}

// Delete tears the session down. Unknown identifiers yield a
// *sessions.SessionError.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.reg.Delete(id); err != nil {
		return err
	}
	e.log.InfoContext(ctx, "session.delete.ok", slog.String("session_id", id))
	return nil
}

// Stream delivers the session's server-to-client messages to handler until
// ctx ends or the session closes.
func (e *Engine) Stream(ctx context.Context, t *sessions.Transport, lastEventID string, handler sessions.MessageHandlerFunction) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	err := e.host.SubscribeSession(ctx, t.SessionID(), lastEventID, handler)
	if errors.Is(err, sessions.ErrSessionClosed) {
		return nil
	}
	return err
}

// Initialize performs the initialize handshake for a fresh session. On
// success the returned transport is registered and ACTIVE. A malformed
// request yields an error response and no transport.
func (e *Engine) Initialize(ctx context.Context, userID string, req *jsonrpc.Request) (*sessions.Transport, *jsonrpc.Response, error) {
	start := time.Now()
	log := e.log.With(slog.String("method", string(mcp.InitializeMethod)))

	if req == nil || req.Method != string(mcp.InitializeMethod) || req.ID.IsNil() {
		return nil, nil, ErrInvalidInitialize
	}

	var params mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "session.initialize.invalid", slog.String("err", err.Error()))
			return nil, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	st := &sessionState{conv: agent.NewConversation()}
	t := sessions.NewTransport(st)
	t.SetIdentity(mcp.NegotiateProtocolVersion(params.ProtocolVersion), userID)

	info, err := e.srv.GetServerInfo(ctx, t)
	if err != nil {
		log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		return nil, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}

	result := &mcp.InitializeResult{
		ProtocolVersion: t.ProtocolVersion(),
		ServerInfo:      info,
	}
	if instr, ok, err := e.srv.GetInstructions(ctx, t); err != nil {
		log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		return nil, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	} else if ok {
		result.Instructions = instr
	}

	var registry agent.CapabilityRegistry = noTools{}
	toolsCap, hasTools, err := e.srv.GetToolsCapability(ctx, t)
	if err != nil {
		log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		return nil, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}
	var listChanged mcpservice.ToolListChangedCapability
	if hasTools && toolsCap != nil {
		registry = agent.NewLocalRegistry(toolsCap, t)
		result.Capabilities.Tools = &mcp.ToolsServerCapability{}
		if lc, ok, err := toolsCap.GetListChangedCapability(ctx, t); err == nil && ok && lc != nil {
			listChanged = lc
			result.Capabilities.Tools.ListChanged = true
		}
	}
	if _, ok, err := e.srv.GetLoggingCapability(ctx, t); err == nil && ok {
		result.Capabilities.Logging = &mcp.LoggingServerCapability{}
	}

	st.adapter = agent.NewSchemaAdapter(
		observedRegistry{inner: registry, metrics: e.metrics},
		agent.WithTTL(e.schemaTTL),
		agent.WithSchemaLogger(e.log),
	)
	if e.backend != nil {
		opts := append([]agent.LoopOption{agent.WithLogger(e.log)}, e.loopOpts...)
		opts = append(opts, agent.WithProgress(e.progressPublisher(t)))
		st.loop = agent.NewLoop(e.backend, st.adapter, opts...)
	}

	// stop is set before the session becomes visible to the registry, whose
	// close hook may run on another goroutine as soon as Register returns.
	emitCtx, stop := context.WithCancel(context.Background())
	st.stop = stop
	if err := e.reg.Register(t); err != nil {
		stop()
		log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		return nil, nil, err
	}
	e.metrics.SessionOpened()

	if listChanged != nil {
		if _, err := listChanged.Register(emitCtx, t, func(ctx context.Context, _ sessions.Session) {
			st.adapter.Invalidate()
			e.publish(ctx, t, string(mcp.ToolsListChangedNotificationMethod), nil)
		}); err != nil {
			log.WarnContext(ctx, "session.initialize.list_changed.fail", slog.String("err", err.Error()))
		}
	}

	log.InfoContext(ctx, "session.initialize.ok",
		slog.String("session_id", t.SessionID()),
		slog.String("user_id", userID),
		slog.String("protocol_version", result.ProtocolVersion),
		slog.String("client_name", params.ClientInfo.Name),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	e.metrics.ObserveRPC(req.Method, "ok", time.Since(start))

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		t.Close()
		return nil, nil, err
	}
	return t, res, nil
}

// Handle processes one message on an ACTIVE session. Requests are admitted
// one at a time in arrival order and always produce a response. Notifications
// and responses produce none.
func (e *Engine) Handle(ctx context.Context, t *sessions.Transport, msg *jsonrpc.AnyMessage) (*jsonrpc.Response, error) {
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       t.SessionID(),
		UserID:          t.UserID(),
		ProtocolVersion: t.ProtocolVersion(),
		State:           t.State().String(),
	})
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	switch msg.Type() {
	case jsonrpc.KindNotification:
		e.handleNotification(ctx, t, msg.AsRequest())
		return nil, nil
	case jsonrpc.KindResponse:
		e.log.DebugContext(ctx, "engine.handle_response.ignored")
		return nil, nil
	}

	req := msg.AsRequest()
	reqCtx, release, err := t.Begin(ctx, req.ID.String())
	if err != nil {
		if errors.Is(err, sessions.ErrRequestCancelled) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeRequestCancelled, "request cancelled", nil), nil
		}
		return nil, err
	}
	defer release()

	start := time.Now()
	res, err := e.route(reqCtx, t, req)
	if err != nil {
		e.metrics.ObserveRPC(req.Method, "fail", time.Since(start))
		return nil, err
	}
	outcome := "ok"
	if res != nil && res.Error != nil {
		outcome = "error"
	}
	e.metrics.ObserveRPC(req.Method, outcome, time.Since(start))
	return res, nil
}

func (e *Engine) route(ctx context.Context, t *sessions.Transport, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	switch mcp.Method(req.Method) {
	case mcp.PingMethod:
		return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	case mcp.InitializeMethod:
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", sessions.ErrAlreadyInitialized.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil), nil
	case mcp.ToolsListMethod:
		return e.handleToolsList(ctx, t, req)
	case mcp.ToolsCallMethod:
		return e.handleToolCall(ctx, t, req)
	case mcp.LoggingSetLevelMethod:
		return e.handleSetLoggingLevel(ctx, t, req)
	case mcp.ChatSendMethod:
		return e.handleChatSend(ctx, t, req)
	case mcp.ChatClearMethod:
		return e.handleChatClear(ctx, t, req)
	case mcp.ChatHistoryMethod:
		return e.handleChatHistory(ctx, t, req)
	case mcp.ChatModelsMethod:
		return e.handleChatModels(ctx, t, req)
	default:
		e.log.InfoContext(ctx, "engine.handle_request.unsupported", slog.String("method", req.Method))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil), nil
	}
}

func (e *Engine) handleNotification(ctx context.Context, t *sessions.Transport, note *jsonrpc.Request) {
	switch mcp.Method(note.Method) {
	case mcp.InitializedNotificationMethod:
		e.log.DebugContext(ctx, "engine.handle_notification.initialized")
	case mcp.CancelledNotificationMethod:
		var params mcp.CancelledNotification
		if err := json.Unmarshal(note.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		var id jsonrpc.RequestID
		if err := json.Unmarshal(params.RequestID, &id); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		found := t.Cancel(id.String())
		e.log.InfoContext(ctx, "engine.handle_notification.cancelled",
			slog.String("request_id", id.String()),
			slog.String("reason", params.Reason),
			slog.Bool("found", found),
		)
	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored", slog.String("method", note.Method))
	}
}

// publish appends a notification to the session's stream. Failures are
// logged; notifications are best effort.
func (e *Engine) publish(ctx context.Context, t *sessions.Transport, method string, params any) {
	if t.State() == sessions.StateClosed {
		return
	}
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		e.log.ErrorContext(ctx, "session.publish.fail", slog.String("method", method), slog.String("err", err.Error()))
		return
	}
	b, err := json.Marshal(note)
	if err != nil {
		e.log.ErrorContext(ctx, "session.publish.fail", slog.String("method", method), slog.String("err", err.Error()))
		return
	}
	if _, err := e.host.PublishSession(context.WithoutCancel(ctx), t.SessionID(), b); errors.Is(err, sessions.ErrSessionClosed) {
		e.log.DebugContext(ctx, "session.publish.closed", slog.String("method", method))
	} else if err != nil {
		e.log.WarnContext(ctx, "session.publish.fail", slog.String("method", method), slog.String("err", err.Error()))
	}
}

func (e *Engine) onSessionClosed(t *sessions.Transport) {
	if st, ok := t.Data().(*sessionState); ok && st.stop != nil {
		st.stop()
	}
	if err := e.host.CleanupSession(context.Background(), t.SessionID()); err != nil {
		e.log.Warn("session.cleanup.fail", slog.String("session_id", t.SessionID()), slog.String("err", err.Error()))
	}
	e.metrics.SessionClosed()
}
