package mcpservice

import (
	"context"

	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// ServerOption configures the server returned by NewServer.
type ServerOption func(*server)

// server offers the same capabilities to every session.
type server struct {
	info         mcp.ImplementationInfo
	instructions string
	tools        ToolsCapability
	logging      LoggingCapability
}

// NewServer assembles ServerCapabilities from options.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *server) { s.info = info }
}

// WithInstructions sets the usage text returned by initialize.
func WithInstructions(text string) ServerOption {
	return func(s *server) { s.instructions = text }
}

func WithToolsCapability(tools ToolsCapability) ServerOption {
	return func(s *server) { s.tools = tools }
}

func WithLoggingCapability(logging LoggingCapability) ServerOption {
	return func(s *server) { s.logging = logging }
}

func (s *server) GetServerInfo(context.Context, sessions.Session) (mcp.ImplementationInfo, error) {
	return s.info, nil
}

func (s *server) GetInstructions(context.Context, sessions.Session) (string, bool, error) {
	return s.instructions, s.instructions != "", nil
}

func (s *server) GetToolsCapability(context.Context, sessions.Session) (ToolsCapability, bool, error) {
	return s.tools, s.tools != nil, nil
}

func (s *server) GetLoggingCapability(context.Context, sessions.Session) (LoggingCapability, bool, error) {
	return s.logging, s.logging != nil, nil
}
