package editor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// NoActiveEditorText is the tool error text used when no buffer is open.
const NoActiveEditorText = "No active editor"

// UsageText is returned by the show-usage tool.
const UsageText = "**Pulsar MCP Server Usage**\n\n" +
	"- **Row** and **Column** numbers start at **1** (not 0).\n" +
	"- When you call **move-cursor**, pass `row: 5, column: 1` to go to the very first character on line 5.\n" +
	"- For **select-range**, use the same 1-based indexing for `startRow`, `startColumn`, `endRow`, `endColumn`.\n" +
	"- If you need to insert or delete text, use the `insert-text` tool at your current cursor position.\n\n" +
	"Feel free to ask for \"help\" at any time!"

type MoveCursorArgs struct {
	Row    int `json:"row" jsonschema:"minimum=1,description=1-based row"`
	Column int `json:"column" jsonschema:"minimum=1,description=1-based column"`
}

type SelectRangeArgs struct {
	StartRow    int `json:"startRow" jsonschema:"minimum=1"`
	StartColumn int `json:"startColumn" jsonschema:"minimum=1"`
	EndRow      int `json:"endRow" jsonschema:"minimum=1"`
	EndColumn   int `json:"endColumn" jsonschema:"minimum=1"`
}

type InsertTextArgs struct {
	Text string `json:"text" jsonschema:"description=Text to insert at the cursor"`
}

type OpenFileArgs struct {
	FilePath string `json:"filePath" jsonschema:"description=Absolute path or path relative to the first project root"`
}

type noArgs struct{}

type bufferHandler[A any] func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, args A) error

// withActive wraps fn so that it only runs when a buffer is active.
func withActive[A any](ws *Workspace, fn bufferHandler[A]) func(context.Context, sessions.Session, mcpservice.ToolResponseWriter, *mcpservice.ToolRequest[A]) error {
	return func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[A]) error {
		b, err := ws.Active()
		if errors.Is(err, ErrNoActiveBuffer) {
			return w.Fail(NoActiveEditorText)
		}
		if err != nil {
			return err
		}
		return fn(ctx, b, w, r.Args())
	}
}

// Tools returns the editor tool set bound to ws.
func Tools(ws *Workspace) []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		mcpservice.NewTool("move-cursor", withActive(ws, func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, a MoveCursorArgs) error {
			b.SetCursor(a.Row, a.Column)
			return w.AppendText(fmt.Sprintf("Moved cursor to row %d, column %d", a.Row, a.Column))
		}), mcpservice.WithToolDescription("Move cursor to location in editor.")),

		mcpservice.NewTool("select-range", withActive(ws, func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, a SelectRangeArgs) error {
			b.Select(a.StartRow, a.StartColumn, a.EndRow, a.EndColumn)
			return w.AppendText(fmt.Sprintf("Selected text from row %d, column %d to %d, column %d", a.StartRow, a.StartColumn, a.EndRow, a.EndColumn))
		}), mcpservice.WithToolDescription("Select text from position to position.")),

		mcpservice.NewTool("insert-text", withActive(ws, func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, a InsertTextArgs) error {
			b.Insert(a.Text)
			return w.AppendText("Inserted text: " + a.Text)
		}), mcpservice.WithToolDescription("Insert text at current cursor position.")),

		mcpservice.NewTool("get-selection", withActive(ws, func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, _ noArgs) error {
			sel := b.SelectedText()
			if sel == "" {
				sel = "[no text selected]"
			}
			return w.AppendText(sel)
		}), mcpservice.WithToolDescription("Return the text currently selected in the active editor.")),

		mcpservice.NewTool("get-document", withActive(ws, func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, _ noArgs) error {
			// AppendText drops empty strings; an empty document still yields a block.
			return w.AppendBlocks(textBlock(b.Text()))
		}), mcpservice.WithToolDescription("Return the full text of the active editor.")),

		mcpservice.NewTool("get-line-count", withActive(ws, func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, _ noArgs) error {
			return w.AppendText(strconv.Itoa(b.LineCount()))
		}), mcpservice.WithToolDescription("Return the total number of lines in the active editor.")),

		mcpservice.NewTool("get-filename", withActive(ws, func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, _ noArgs) error {
			name := "[untitled]"
			if p := b.Path(); p != "" {
				name = filepath.Base(p)
			}
			return w.AppendText(name)
		}), mcpservice.WithToolDescription("Return the filename of the active editor (or [untitled] if none).")),

		mcpservice.NewTool("get-full-path", withActive(ws, func(ctx context.Context, b *Buffer, w mcpservice.ToolResponseWriter, _ noArgs) error {
			p := b.Path()
			if p == "" {
				p = "[untitled]"
			}
			return w.AppendText(p)
		}), mcpservice.WithToolDescription("Return the full absolute path of the active editor.")),

		mcpservice.NewTool("get-project-files", func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, _ *mcpservice.ToolRequest[noArgs]) error {
			files, err := ws.ProjectFiles(ctx)
			if err != nil {
				return w.Fail("Could not list project files: " + err.Error())
			}
			return w.AppendBlocks(textBlock(strings.Join(files, "\n")))
		}, mcpservice.WithToolDescription("Return a newline-separated list of all files under the current project roots.")),

		mcpservice.NewTool("open-file", func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[OpenFileArgs]) error {
			p := r.Args().FilePath
			if p == "" {
				return w.Fail("filePath is required")
			}
			if _, err := ws.Open(ctx, p); err != nil {
				return w.Fail("Could not open file: " + err.Error())
			}
			return w.AppendText("Opened file: " + p)
		}, mcpservice.WithToolDescription("Open (or switch to) a tab for the given file path.")),

		mcpservice.NewTool("save-file", withActive(ws, func(ctx context.Context, _ *Buffer, w mcpservice.ToolResponseWriter, _ noArgs) error {
			p, err := ws.Save(ctx)
			if err != nil {
				return w.Fail("Could not save file: " + err.Error())
			}
			return w.AppendText("Saved file: " + p)
		}), mcpservice.WithToolDescription("Save the active editor to its file path.")),

		mcpservice.NewTool("show-usage", func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, _ *mcpservice.ToolRequest[noArgs]) error {
			return w.AppendText(UsageText)
		}, mcpservice.WithToolDescription("Return a reminder of how to index rows & columns (1-based).")),
	}
}

// NewToolsContainer returns a tools container holding Tools(ws).
func NewToolsContainer(ws *Workspace) *mcpservice.ToolsContainer {
	return mcpservice.NewToolsContainer(Tools(ws)...)
}
