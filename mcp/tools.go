package mcp

import "encoding/json"

// ContentTypeText marks a ContentBlock carrying Text.
const ContentTypeText = "text"

// ContentBlock is one part of a tool result. Only the fields matching Type
// are set.
type ContentBlock struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitzero"`
	Data        string `json:"data,omitzero"`
	MimeType    string `json:"mimeType,omitzero"`
	URI         string `json:"uri,omitzero"`
	Name        string `json:"name,omitzero"`
	Description string `json:"description,omitzero"`
}

// Tool is a tools/list entry.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is the object schema a tool's arguments must satisfy.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties *bool                     `json:"additionalProperties,omitempty"`
}

// SchemaProperty covers the JSON Schema keywords editor tools use.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitzero"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
	Minimum     *float64                  `json:"minimum,omitempty"`
}

type ListToolsRequest struct {
	Cursor string `json:"cursor,omitzero"`
}

type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitzero"`
}

// CallToolRequestReceived is the params of tools/call as the server sees
// them; Arguments is decoded by the tool itself.
type CallToolRequestReceived struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult reports a tool outcome. IsError results are still
// successful JSON-RPC responses.
type CallToolResult struct {
	Content []ContentBlock `json:"content,omitempty"`
	IsError bool           `json:"isError,omitzero"`
}
