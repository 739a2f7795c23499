// Package mcpservice provides the registries an MCP server dispatches into:
// tools, resources (plus URI templates) and prompts. Registries are built
// once, keep their registration order for listings, reject duplicate names
// and are read-only afterwards, so a dispatcher may share them freely.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//	tools, err := mcpservice.NewToolRegistry(
//	    mcpservice.NewTool("echo", func(ctx context.Context, a EchoArgs) (any, error) {
//	        return "you said: " + a.Message, nil
//	    }, mcpservice.WithToolDescription("Echo a message back to the caller")),
//	)
//
//	resources, err := mcpservice.NewResourceRegistry(
//	    []mcpservice.Resource{
//	        mcpservice.NewTextResource(mcp.Resource{URI: "res://hello.txt", Name: "hello.txt", MimeType: "text/plain"}, "hello"),
//	    },
//	    nil,
//	)
//
// Tool handlers return any value. ToolResult turns that value into the
// tools/call result: strings are returned verbatim, other values are
// JSON-encoded, and errors (or maps carrying an "error" key) are reported as
// error results rather than protocol failures.
//
// Prompts may be declared in YAML and loaded with LoadPrompts.
package mcpservice
