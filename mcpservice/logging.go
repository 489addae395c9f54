package mcpservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// ErrInvalidLoggingLevel rejects a logging/setLevel value outside the
// protocol's level set.
var ErrInvalidLoggingLevel = errors.New("invalid logging level")

var slogLevels = map[mcp.LoggingLevel]slog.Level{
	mcp.LoggingLevelDebug:     slog.LevelDebug,
	mcp.LoggingLevelInfo:      slog.LevelInfo,
	mcp.LoggingLevelNotice:    slog.LevelInfo,
	mcp.LoggingLevelWarning:   slog.LevelWarn,
	mcp.LoggingLevelError:     slog.LevelError,
	mcp.LoggingLevelCritical:  slog.LevelError,
	mcp.LoggingLevelAlert:     slog.LevelError,
	mcp.LoggingLevelEmergency: slog.LevelError,
}

// levelVarLogging lets a client raise or lower the server's log verbosity.
// The level is process wide: every handler built on the LevelVar follows it.
type levelVarLogging struct{ lv *slog.LevelVar }

// NewSlogLevelVarLogging returns a LoggingCapability that sets lv.
func NewSlogLevelVarLogging(lv *slog.LevelVar) LoggingCapability {
	return levelVarLogging{lv: lv}
}

func (l levelVarLogging) SetLevel(_ context.Context, _ sessions.Session, level mcp.LoggingLevel) error {
	lvl, ok := slogLevels[level]
	if !ok {
		return ErrInvalidLoggingLevel
	}
	if l.lv != nil {
		l.lv.Set(lvl)
	}
	return nil
}
