// Package mcpclient exposes a remote MCP server's tools as an
// agent.CapabilityRegistry using the official MCP Go SDK client.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ggoodman/editor-mcp-go/agent"
	"github.com/ggoodman/editor-mcp-go/mcp"
)

// DefaultEndpoint returns the local MCP endpoint for port.
func DefaultEndpoint(port int) string {
	return fmt.Sprintf("http://localhost:%d/mcp", port)
}

type Registry struct {
	cs  *sdk.ClientSession
	log *slog.Logger
}

var _ agent.CapabilityRegistry = (*Registry)(nil)

type Option func(*options)

type options struct {
	httpClient *http.Client
	log        *slog.Logger
	name       string
	version    string
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClientInfo sets the implementation info sent on initialize.
func WithClientInfo(name, version string) Option {
	return func(o *options) { o.name, o.version = name, version }
}

// Dial connects to the streamable-HTTP MCP endpoint and completes the
// initialize handshake.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Registry, error) {
	o := options{
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		name:    "editor-mcp-chat",
		version: "dev",
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := sdk.NewClient(&sdk.Implementation{Name: o.name, Version: o.version}, &sdk.ClientOptions{})
	transport := &sdk.StreamableClientTransport{Endpoint: endpoint}
	if o.httpClient != nil {
		transport.HTTPClient = o.httpClient
	}
	cs, err := client.Connect(ctx, transport, &sdk.ClientSessionOptions{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	o.log.InfoContext(ctx, "mcpclient.connect.ok",
		slog.String("endpoint", endpoint),
		slog.String("server", cs.InitializeResult().ServerInfo.Name),
	)
	return &Registry{cs: cs, log: o.log}, nil
}

// ServerName is the name the server reported on initialize.
func (r *Registry) ServerName() string {
	return r.cs.InitializeResult().ServerInfo.Name
}

func (r *Registry) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var out []mcp.Tool
	params := &sdk.ListToolsParams{}
	for {
		res, err := r.cs.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		for _, t := range res.Tools {
			tool, err := convertTool(t)
			if err != nil {
				return nil, err
			}
			out = append(out, tool)
		}
		if res.NextCursor == "" {
			return out, nil
		}
		params.Cursor = res.NextCursor
	}
}

func (r *Registry) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	res, err := r.cs.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	out := &mcp.CallToolResult{IsError: res.IsError}
	for _, c := range res.Content {
		block, err := convertContent(c)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, block)
	}
	return out, nil
}

func (r *Registry) Close() error { return r.cs.Close() }

// The SDK and local types share the wire format, so conversion goes
// through JSON.

func convertTool(t *sdk.Tool) (mcp.Tool, error) {
	out := mcp.Tool{Name: t.Name, Description: t.Description, InputSchema: mcp.ToolInputSchema{Type: "object"}}
	if t.InputSchema == nil {
		return out, nil
	}
	b, err := json.Marshal(t.InputSchema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("encode input schema for %q: %w", t.Name, err)
	}
	if err := json.Unmarshal(b, &out.InputSchema); err != nil {
		return mcp.Tool{}, fmt.Errorf("decode input schema for %q: %w", t.Name, err)
	}
	return out, nil
}

func convertContent(c sdk.Content) (mcp.ContentBlock, error) {
	var block mcp.ContentBlock
	b, err := json.Marshal(c)
	if err != nil {
		return block, fmt.Errorf("encode content: %w", err)
	}
	if err := json.Unmarshal(b, &block); err != nil {
		return block, fmt.Errorf("decode content: %w", err)
	}
	return block, nil
}
