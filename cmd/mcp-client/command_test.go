package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/ggoodman/mcp-stdio-go/mcp"
	"github.com/ggoodman/mcp-stdio-go/mcpservice"
)

func TestPrintToolResult(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	if err := printToolResult(&buf, "get_time", mcpservice.TextResult("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "hello\n" {
		t.Fatalf("got %q", buf.String())
	}

	buf.Reset()
	err := printToolResult(&buf, "calculate", mcpservice.ErrorResult("Error: division by zero"))
	var te *toolError
	if !errors.As(err, &te) || te.name != "calculate" {
		t.Fatalf("expected *toolError, got %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("Error: division by zero")) {
		t.Fatalf("error text not printed: %q", buf.String())
	}

	buf.Reset()
	res := &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "image", Data: "AAAA", MimeType: "image/png"}}}
	if err := printToolResult(&buf, "draw", res); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"mimeType": "image/png"`)) {
		t.Fatalf("non-text block should print as JSON: %q", buf.String())
	}
}
