package mcpservice

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-stdio-go/mcp"
)

// TextResult returns a successful single text block result.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: text}},
	}
}

// ErrorResult returns a single text block result flagged as an error.
func ErrorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: text}},
		IsError: true,
	}
}

// Errorf formats an error result.
func Errorf(format string, args ...any) *mcp.CallToolResult {
	return ErrorResult(fmt.Sprintf(format, args...))
}

// ToolResult converts what a ToolHandler returned into the tools/call result:
//
//   - a non-nil err becomes an error result "Tool execution error: <err>"
//   - a map with an "error" key becomes an error result "Error: <value>"
//   - a string is returned verbatim
//   - a *mcp.CallToolResult is passed through
//   - anything else is JSON-encoded into a single text block
func ToolResult(v any, err error) *mcp.CallToolResult {
	if err != nil {
		return ErrorResult("Tool execution error: " + err.Error())
	}
	switch val := v.(type) {
	case *mcp.CallToolResult:
		if val == nil {
			return TextResult("null")
		}
		if val.Content == nil {
			val.Content = []mcp.ContentBlock{}
		}
		return val
	case string:
		return TextResult(val)
	case map[string]any:
		if e, ok := val["error"]; ok {
			return ErrorResult("Error: " + fmt.Sprint(e))
		}
	}
	text, encErr := EncodeText(v)
	if encErr != nil {
		return ErrorResult("Tool execution error: " + encErr.Error())
	}
	return TextResult(text)
}

// EncodeText JSON-encodes v without HTML escaping and without the trailing
// newline json.Encoder appends.
func EncodeText(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
