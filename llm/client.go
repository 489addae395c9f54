// Package llm talks to an OpenAI-compatible chat-completions backend and
// implements agent.Backend.
package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ggoodman/editor-mcp-go/agent"
	"github.com/ggoodman/editor-mcp-go/internal/metrics"
)

// DefaultEndpoint is the backend root; "/v1" is appended.
const DefaultEndpoint = "https://api.openai.com"

type Client struct {
	api       *openai.Client
	log       *slog.Logger
	metrics   *metrics.Metrics
	modelsTTL time.Duration
	now       func() time.Time

	mu        sync.Mutex
	models    []string
	modelsAt  time.Time
	modelsSet bool
}

var _ agent.Backend = (*Client)(nil)

type Option func(*options)

type options struct {
	httpClient *http.Client
	log        *slog.Logger
	metrics    *metrics.Metrics
	modelsTTL  time.Duration
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithModelsTTL bounds how long the model list is cached. Zero caches it for
// the life of the client.
func WithModelsTTL(d time.Duration) Option {
	return func(o *options) { o.modelsTTL = d }
}

// New returns a client for endpoint (for example "http://localhost:11434" or
// DefaultEndpoint). apiKey is sent as a bearer token.
func New(endpoint, apiKey string, opts ...Option) *Client {
	o := options{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(endpoint, "/") + "/v1"
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	return &Client{
		api:       openai.NewClientWithConfig(cfg),
		log:       o.log,
		metrics:   o.metrics,
		modelsTTL: o.modelsTTL,
		now:       time.Now,
	}
}

// Complete implements agent.Backend.
func (c *Client) Complete(ctx context.Context, req agent.CompletionRequest) (agent.Message, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		bte := transportError(err)
		c.observe("chat", bte.StatusCode, start)
		c.log.ErrorContext(ctx, "backend.request.fail", slog.String("op", "chat"), slog.Duration("dur", time.Since(start)), slog.String("err", bte.Error()))
		return agent.Message{}, bte
	}
	c.observe("chat", http.StatusOK, start)
	if len(resp.Choices) == 0 {
		return agent.Message{}, &agent.BackendTransportError{StatusCode: http.StatusOK, Err: errors.New("response has no choices")}
	}
	c.log.DebugContext(ctx, "backend.request.ok",
		slog.String("op", "chat"),
		slog.Duration("dur", time.Since(start)),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

// ListModels returns the backend's model identifiers, sorted. The list is
// fetched once and then cached (see WithModelsTTL).
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.modelsSet && (c.modelsTTL <= 0 || c.now().Sub(c.modelsAt) < c.modelsTTL) {
		return append([]string(nil), c.models...), nil
	}

	start := time.Now()
	list, err := c.api.ListModels(ctx)
	if err != nil {
		bte := transportError(err)
		c.observe("models", bte.StatusCode, start)
		c.log.ErrorContext(ctx, "backend.request.fail", slog.String("op", "models"), slog.String("err", bte.Error()))
		return nil, bte
	}
	c.observe("models", http.StatusOK, start)

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	c.models, c.modelsAt, c.modelsSet = ids, c.now(), true
	return append([]string(nil), ids...), nil
}

// InvalidateModels drops the cached model list.
func (c *Client) InvalidateModels() {
	c.mu.Lock()
	c.models, c.modelsSet = nil, false
	c.mu.Unlock()
}

func (c *Client) observe(op string, status int, start time.Time) {
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	c.metrics.ObserveBackend(op, label, time.Since(start))
}

// transportError classifies go-openai errors by HTTP status.
func transportError(err error) *agent.BackendTransportError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &agent.BackendTransportError{StatusCode: apiErr.HTTPStatusCode, Status: apiErr.HTTPStatus, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &agent.BackendTransportError{StatusCode: reqErr.HTTPStatusCode, Status: reqErr.HTTPStatus, Err: err}
	}
	return &agent.BackendTransportError{Err: err}
}

func toOpenAIMessages(msgs []agent.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) agent.Message {
	out := agent.Message{
		Role:    agent.RoleAssistant,
		Content: m.Content,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func toOpenAITools(defs []agent.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(defs))
	for i, d := range defs {
		var params any = d.Parameters
		if len(d.Parameters) == 0 {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		}
	}
	return out
}
