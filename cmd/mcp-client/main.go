// Command mcp-client spawns an MCP server over stdio, performs the
// handshake and runs one operation against it.
//
//	mcp-client --server ./weather-server tools
//	mcp-client --server ./weather-server call get_forecast '{"latitude":37.77,"longitude":-122.42}'
//	mcp-client --server python3 --arg server.py prompt weather_report location=Oslo
package main

import (
	"errors"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

func main() {
	opts, err := newOptions()
	handleError(err)

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	addCommands(parser, opts)

	_, err = parser.Parse()
	handleError(err)
}

func handleError(err error) {
	if err == nil {
		return
	}
	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
		fmt.Println(err)
		os.Exit(0)
	}
	var toolErr *toolError
	if errors.As(err, &toolErr) {
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", err)
	os.Exit(1)
}
