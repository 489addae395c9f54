package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/editor-mcp-go/internal/logctx"
	"github.com/ggoodman/editor-mcp-go/mcp"
)

const (
	DefaultMaxRounds   = 10
	DefaultCallTimeout = 60 * time.Second
	DefaultMaxTokens   = 1000
)

// CompletionRequest is one chat-completions call.
type CompletionRequest struct {
	Model     string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
}

// Backend is a chat-completions language model. Implementations report
// transport failures as *BackendTransportError.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (Message, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req CompletionRequest) (Message, error)

func (f BackendFunc) Complete(ctx context.Context, req CompletionRequest) (Message, error) {
	return f(ctx, req)
}

// ProgressPhase tells whether a ProgressEvent precedes or follows a tool call.
type ProgressPhase string

const (
	PhaseToolCall   ProgressPhase = "call"
	PhaseToolResult ProgressPhase = "result"
)

// ProgressEvent describes one step of a running turn.
type ProgressEvent struct {
	Round   int
	Phase   ProgressPhase
	Tool    string
	CallID  string
	IsError bool
}

// Loop runs agent turns. A Loop carries no conversation state of its own and
// may run turns for different Conversations concurrently.
type Loop struct {
	backend      Backend
	adapter      *SchemaAdapter
	log          *slog.Logger
	maxRounds    int
	callTimeout  time.Duration
	maxTokens    int
	systemPrompt string
	defaultModel string
	progress     func(ctx context.Context, ev ProgressEvent)
}

type LoopOption func(*Loop)

// WithMaxRounds bounds the number of backend calls in one turn.
func WithMaxRounds(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxRounds = n
		}
	}
}

// WithCallTimeout bounds every backend call and every tool call. Zero
// disables the per-call timeout.
func WithCallTimeout(d time.Duration) LoopOption {
	return func(l *Loop) { l.callTimeout = d }
}

func WithMaxTokens(n int) LoopOption {
	return func(l *Loop) { l.maxTokens = n }
}

// WithSystemPrompt sets a system message sent ahead of the conversation on
// every backend call. It is not stored in the Conversation.
func WithSystemPrompt(p string) LoopOption {
	return func(l *Loop) { l.systemPrompt = p }
}

// WithDefaultModel sets the model used when Advance is given an empty one.
func WithDefaultModel(m string) LoopOption {
	return func(l *Loop) { l.defaultModel = m }
}

func WithLogger(lg *slog.Logger) LoopOption {
	return func(l *Loop) { l.log = lg }
}

// WithProgress registers a callback invoked around every tool call.
func WithProgress(fn func(ctx context.Context, ev ProgressEvent)) LoopOption {
	return func(l *Loop) { l.progress = fn }
}

func NewLoop(backend Backend, adapter *SchemaAdapter, opts ...LoopOption) *Loop {
	l := &Loop{
		backend:     backend,
		adapter:     adapter,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxRounds:   DefaultMaxRounds,
		callTimeout: DefaultCallTimeout,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Advance runs one turn: it appends userText to conv, then alternates
// between the backend and the tool registry until the model answers without
// requesting tools. It returns the trimmed final answer.
func (l *Loop) Advance(ctx context.Context, conv *Conversation, userText, model string) (string, error) {
	if model == "" {
		model = l.defaultModel
	}
	if err := conv.Append(Message{Role: RoleUser, Content: userText}); err != nil {
		return "", err
	}

	for round := 1; round <= l.maxRounds; round++ {
		rctx := logctx.WithTurnData(ctx, &logctx.TurnData{Model: model, Round: round})

		tools, err := l.adapter.Tools(rctx)
		if err != nil {
			if cerr := cancelled(ctx); cerr != nil {
				return "", cerr
			}
			return "", &ToolExecutionError{Err: fmt.Errorf("list tools: %w", err)}
		}

		reply, err := l.complete(rctx, CompletionRequest{
			Model:     model,
			Messages:  l.requestMessages(conv),
			Tools:     tools,
			MaxTokens: l.maxTokens,
		})
		if err != nil {
			return "", err
		}
		reply.Role = RoleAssistant
		if err := conv.Append(reply); err != nil {
			if errors.Is(err, ErrInvalidToolCall) {
				l.log.ErrorContext(rctx, "agent.round.fail", slog.String("err", err.Error()))
				return "", &BackendTransportError{Err: err}
			}
			return "", err
		}

		if len(reply.ToolCalls) == 0 {
			l.log.InfoContext(rctx, "agent.turn.ok", slog.Int("rounds", round))
			return strings.TrimSpace(reply.Content), nil
		}

		for _, tc := range reply.ToolCalls {
			msg, err := l.dispatch(rctx, round, tc)
			if err != nil {
				return "", err
			}
			if err := conv.Append(msg); err != nil {
				return "", err
			}
		}
	}

	l.log.WarnContext(ctx, "agent.turn.fail", slog.Int("max_rounds", l.maxRounds), slog.String("err", ErrMaxRoundsExceeded.Error()))
	return "", fmt.Errorf("%w (%d)", ErrMaxRoundsExceeded, l.maxRounds)
}

func (l *Loop) requestMessages(conv *Conversation) []Message {
	msgs := conv.Messages()
	if l.systemPrompt == "" {
		return msgs
	}
	return append([]Message{{Role: RoleSystem, Content: l.systemPrompt}}, msgs...)
}

func (l *Loop) complete(ctx context.Context, req CompletionRequest) (Message, error) {
	cctx, cancel := l.callContext(ctx)
	defer cancel()

	start := time.Now()
	reply, err := l.backend.Complete(cctx, req)
	if err != nil {
		if cerr := cancelled(ctx); cerr != nil {
			return Message{}, cerr
		}
		var bte *BackendTransportError
		if !errors.As(err, &bte) {
			bte = &BackendTransportError{Err: err}
		}
		l.log.ErrorContext(ctx, "agent.round.fail", slog.Duration("dur", time.Since(start)), slog.String("err", bte.Error()))
		return Message{}, bte
	}
	l.log.DebugContext(ctx, "agent.round.ok", slog.Duration("dur", time.Since(start)), slog.Int("tool_calls", len(reply.ToolCalls)))
	return reply, nil
}

func (l *Loop) dispatch(ctx context.Context, round int, tc ToolCall) (Message, error) {
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: tc.Name, CallID: tc.ID})

	raw := json.RawMessage(strings.TrimSpace(tc.Arguments))
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		l.log.WarnContext(ctx, "agent.tool.args.fail", slog.String("err", err.Error()))
		return Message{}, &ToolArgumentError{Tool: tc.Name, CallID: tc.ID, Err: err}
	}
	if err := l.adapter.Validate(ctx, tc.Name, decoded); err != nil {
		if cerr := cancelled(ctx); cerr != nil {
			return Message{}, cerr
		}
		l.log.WarnContext(ctx, "agent.tool.args.fail", slog.String("err", err.Error()))
		return Message{}, &ToolArgumentError{Tool: tc.Name, CallID: tc.ID, Err: err}
	}

	l.emit(ctx, ProgressEvent{Round: round, Phase: PhaseToolCall, Tool: tc.Name, CallID: tc.ID})

	cctx, cancel := l.callContext(ctx)
	defer cancel()
	start := time.Now()
	res, err := l.adapter.reg.CallTool(cctx, tc.Name, raw)
	if err != nil {
		if cerr := cancelled(ctx); cerr != nil {
			return Message{}, cerr
		}
		l.log.ErrorContext(ctx, "agent.tool.fail", slog.Duration("dur", time.Since(start)), slog.String("err", err.Error()))
		return Message{}, &ToolExecutionError{Tool: tc.Name, CallID: tc.ID, Err: err}
	}
	isError := res != nil && res.IsError
	l.log.InfoContext(ctx, "agent.tool.ok", slog.Duration("dur", time.Since(start)), slog.Bool("is_error", isError))
	l.emit(ctx, ProgressEvent{Round: round, Phase: PhaseToolResult, Tool: tc.Name, CallID: tc.ID, IsError: isError})

	return Message{
		Role:       RoleTool,
		Content:    SerializeResult(res),
		ToolCallID: tc.ID,
		Name:       tc.Name,
	}, nil
}

func (l *Loop) emit(ctx context.Context, ev ProgressEvent) {
	if l.progress != nil {
		l.progress(ctx, ev)
	}
}

func (l *Loop) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.callTimeout)
}

// cancelled returns the cancellation cause when the turn's own context is
// done, so that per-call failures caused by it are not misreported.
func cancelled(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("agent: turn cancelled: %w", context.Cause(ctx))
}

// SerializeResult renders a tool result as tool-message content: the text
// blocks joined by newlines, or the JSON content array when any block is not
// text. Error results are prefixed with "Error: ".
func SerializeResult(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var out string
	allText := true
	for _, b := range res.Content {
		if b.Type != mcp.ContentTypeText {
			allText = false
			break
		}
	}
	if allText {
		parts := make([]string, 0, len(res.Content))
		for _, b := range res.Content {
			parts = append(parts, b.Text)
		}
		out = strings.Join(parts, "\n")
	} else {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(res.Content); err == nil {
			out = strings.TrimSpace(buf.String())
		}
	}
	if res.IsError {
		return "Error: " + out
	}
	return out
}
