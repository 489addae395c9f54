package agent

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// CapabilityRegistry is the set of tools the model may invoke.
type CapabilityRegistry interface {
	// ListTools returns every tool, following pagination internally.
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	// CallTool invokes the named tool. A non-nil error means the invocation
	// itself failed; a result with IsError set is a tool-level failure the
	// model should see.
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error)
}

// LocalRegistry adapts an in-process mcpservice.ToolsCapability.
type LocalRegistry struct {
	tools   mcpservice.ToolsCapability
	session sessions.Session
}

var _ CapabilityRegistry = (*LocalRegistry)(nil)

// NewLocalRegistry binds tools to session. session may be nil.
func NewLocalRegistry(tools mcpservice.ToolsCapability, session sessions.Session) *LocalRegistry {
	return &LocalRegistry{tools: tools, session: session}
}

func (r *LocalRegistry) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var (
		out    []mcp.Tool
		cursor *string
	)
	for {
		page, err := r.tools.ListTools(ctx, r.session, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.NextCursor == nil || *page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func (r *LocalRegistry) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	return r.tools.CallTool(ctx, r.session, &mcp.CallToolRequestReceived{Name: name, Arguments: args})
}
