// Package mcp holds the wire types of the Model Context Protocol subset the
// editor server speaks: the initialize handshake, tools, logging
// notifications and the chat/* methods that drive the editing agent.
//
// Nothing here touches a transport. The engine decodes params into these
// types and encodes results from them; mcpservice and the editor tools build
// Tool and CallToolResult values.
//
// tools/list is paginated with an opaque cursor: ListToolsRequest.Cursor
// echoes the previous ListToolsResult.NextCursor, and an empty NextCursor
// ends the listing.
package mcp
