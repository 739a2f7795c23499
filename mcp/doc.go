// Package mcp contains protocol data types and constants shared by the stdio
// client and server. It mirrors the wire representation specified by the
// Model Context Protocol while keeping the surface Go-friendly (exported
// structs with json tags, string constants for method names).
//
// The package is intentionally free of transport logic: the client package
// and the stdio server import these types but implement their own framing
// and process handling. Likewise mcpservice constructs results using these
// concrete types and hands them to the engine for JSON-RPC serialization.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod). Using the constants avoids typographical mistakes
// and ensures a single point of truth if the protocol evolves.
//
// # Capabilities
//
// ClientCapabilities and ServerCapabilities capture negotiated feature sets.
// Capability advertising happens during the initialize exchange; transports
// simply marshal these types.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
//
// # Compatibility
//
// ProtocolVersion20241105 is the revision spoken by default. Servers echo a
// client's requested revision when IsSupportedProtocolVersion reports it as
// known and fall back to their preferred revision otherwise.
package mcp
