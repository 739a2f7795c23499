// Package stdio implements a minimal single-connection MCP server transport
// over stdin/stdout. It is intended for servers spawned as child processes by
// a client such as the one in package client.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : one JSON-RPC message per line
//	Processing       : strictly sequential, one reply per request
//	Logging          : never on stdout; stdout carries only protocol lines
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	srv := mcpservice.NewServer(
//	    mcp.ImplementationInfo{Name: "my-stdio-server", Version: "0.1.0"},
//	    mcpservice.WithTools(tools),
//	)
//	h := stdio.NewHandler(srv)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
package stdio
