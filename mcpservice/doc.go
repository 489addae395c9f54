// Package mcpservice provides building blocks for implementing the server
// side of the editor MCP surface: the capability interfaces consumed by the
// engine, a static tools container, typed tool construction and change
// notifications.
//
// Quick start:
//
//	type MoveArgs struct {
//	    Row    int `json:"row" jsonschema:"minimum=1,description=1-based row"`
//	    Column int `json:"column" jsonschema:"minimum=1,description=1-based column"`
//	}
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool[MoveArgs]("move-cursor",
//	        func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[MoveArgs]) error {
//	            return w.AppendText(fmt.Sprintf("Moved cursor to row %d, column %d", r.Args().Row, r.Args().Column))
//	        },
//	        mcpservice.WithToolDescription("Move the cursor"),
//	    ),
//	)
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//
// Input schemas are reflected from the argument struct with
// github.com/invopop/jsonschema; unknown argument fields are rejected unless
// WithToolAllowAdditionalProperties(true) is given.
package mcpservice
