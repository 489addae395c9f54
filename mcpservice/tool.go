package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/sessions"
	"github.com/invopop/jsonschema"
)

// ToolHandler runs one tools/call.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool is a tool descriptor plus the handler that serves it.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest carries the decoded arguments of a typed tool.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
	lenient     bool
}

// WithToolDescription sets the description shown in tools/list and sent to
// the language model.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties accepts argument fields A does not
// declare. Tools are strict by default.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.lenient = allow }
}

// NewTool builds a tool whose arguments decode into A. The input schema is
// reflected from A's json and jsonschema tags. Arguments that fail to decode
// produce an error result starting with "invalid arguments" without running
// fn; an error returned by fn fails the call itself.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	var cfg toolConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		r := &ToolRequest[A]{name: req.Name, raw: req.Arguments}
		if raw := bytes.TrimSpace(req.Arguments); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(raw))
			if !cfg.lenient {
				dec.DisallowUnknownFields()
			}
			if err := dec.Decode(&r.args); err != nil {
				return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}
		w := &resultWriter{ctx: ctx}
		if err := fn(ctx, session, w, r); err != nil {
			return nil, err
		}
		return w.result(), nil
	}

	return StaticTool{
		Descriptor: mcp.Tool{
			Name:        name,
			Description: cfg.description,
			InputSchema: inputSchemaFor[A](cfg.lenient),
		},
		Handler: handler,
	}
}

func inputSchemaFor[A any](lenient bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: lenient,
	}
	reflected := r.Reflect(new(A))

	out := mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	if !lenient {
		closed := false
		out.AdditionalProperties = &closed
	}
	if reflected == nil || reflected.Type != "object" {
		return out
	}
	out.Properties = schemaProperties(reflected)
	out.Required = append([]string(nil), reflected.Required...)
	return out
}

func schemaProperties(s *jsonschema.Schema) map[string]mcp.SchemaProperty {
	props := map[string]mcp.SchemaProperty{}
	if s.Properties == nil {
		return props
	}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = schemaProperty(pair.Value)
	}
	return props
}

func schemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{Type: s.Type, Description: s.Description, Enum: s.Enum}
	if v, err := s.Minimum.Float64(); s.Minimum != "" && err == nil {
		p.Minimum = &v
	}
	switch s.Type {
	case "array":
		if s.Items != nil {
			item := schemaProperty(s.Items)
			p.Items = &item
		}
	case "object":
		if s.Properties != nil {
			p.Properties = schemaProperties(s)
		}
	}
	return p
}

// ToolResponseWriter accumulates the content of a tool result. It is safe
// for concurrent use within one call; writes fail once ctx is done.
type ToolResponseWriter interface {
	AppendText(text string) error
	AppendBlocks(blocks ...mcp.ContentBlock) error
	// Fail appends msg and marks the result as an error result.
	Fail(msg string) error
}

type resultWriter struct {
	ctx     context.Context
	mu      sync.Mutex
	blocks  []mcp.ContentBlock
	isError bool
}

func (w *resultWriter) AppendText(text string) error {
	if text == "" {
		return nil
	}
	return w.AppendBlocks(mcp.ContentBlock{Type: mcp.ContentTypeText, Text: text})
}

func (w *resultWriter) AppendBlocks(blocks ...mcp.ContentBlock) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.blocks = append(w.blocks, blocks...)
	w.mu.Unlock()
	return nil
}

func (w *resultWriter) Fail(msg string) error {
	w.mu.Lock()
	w.isError = true
	w.mu.Unlock()
	return w.AppendText(msg)
}

func (w *resultWriter) result() *mcp.CallToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &mcp.CallToolResult{Content: append([]mcp.ContentBlock(nil), w.blocks...), IsError: w.isError}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: msg}}, IsError: true}
}

// ResultText joins the text blocks of res with newlines.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, b := range res.Content {
		if b.Type == mcp.ContentTypeText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
