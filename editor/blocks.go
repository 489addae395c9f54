package editor

import "github.com/ggoodman/editor-mcp-go/mcp"

func textBlock(s string) mcp.ContentBlock {
	return mcp.ContentBlock{Type: mcp.ContentTypeText, Text: s}
}
