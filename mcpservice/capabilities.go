package mcpservice

import (
	"context"

	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// ServerCapabilities is what the engine consults while initializing a
// session and routing its requests. The ok results say whether a capability
// is offered to that session at all; absent capabilities are not advertised.
type ServerCapabilities interface {
	GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)
	GetInstructions(ctx context.Context, session sessions.Session) (instructions string, ok bool, err error)
	GetToolsCapability(ctx context.Context, session sessions.Session) (cap ToolsCapability, ok bool, err error)
	GetLoggingCapability(ctx context.Context, session sessions.Session) (cap LoggingCapability, ok bool, err error)
}

// ToolsCapability is the capability registry the agent and remote clients
// call into. Implementations must be safe for concurrent use.
type ToolsCapability interface {
	// ListTools returns the page of tools starting at cursor (nil for the
	// first page).
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

	// CallTool runs the named tool. Unknown names yield ErrToolNotFound;
	// failures inside the tool come back as results with IsError set.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

	// GetListChangedCapability reports whether the tool set can change at
	// runtime and, if so, how to subscribe.
	GetListChangedCapability(ctx context.Context, session sessions.Session) (cap ToolListChangedCapability, ok bool, err error)
}

// NotifyToolsListChangedFunc runs after the tool set changed. Bursts of
// changes may be coalesced into one call.
type NotifyToolsListChangedFunc func(ctx context.Context, session sessions.Session)

// ToolListChangedCapability subscribes fn until ctx ends.
type ToolListChangedCapability interface {
	Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (ok bool, err error)
}

// LoggingCapability handles logging/setLevel.
type LoggingCapability interface {
	SetLevel(ctx context.Context, session sessions.Session, level mcp.LoggingLevel) error
}
