package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ggoodman/mcp-stdio-go/internal/metrics"
	"github.com/ggoodman/mcp-stdio-go/jsonrpc"
	"github.com/ggoodman/mcp-stdio-go/mcp"
	"github.com/ggoodman/mcp-stdio-go/mcpservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type echoArgs struct {
	Message string `json:"message"`
}

func testTools(t *testing.T) *mcpservice.ToolRegistry {
	t.Helper()
	reg, err := mcpservice.NewToolRegistry(
		mcpservice.NewTool("echo", func(ctx context.Context, a echoArgs) (any, error) {
			return a.Message, nil
		}),
		mcpservice.Tool{
			Descriptor: mcp.Tool{Name: "fail"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return nil, errors.New("boom")
			},
		},
		mcpservice.Tool{
			Descriptor: mcp.Tool{Name: "soft_fail"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{"error": "Invalid characters in expression"}, nil
			},
		},
		mcpservice.Tool{
			Descriptor: mcp.Tool{Name: "explode"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				panic("kaboom")
			},
		},
		mcpservice.Tool{
			Descriptor: mcp.Tool{Name: "structured"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{"a": "<b>", "n": args["n"]}, nil
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestEngine(t *testing.T, opts ...mcpservice.ServerOption) *Engine {
	t.Helper()
	base := []mcpservice.ServerOption{mcpservice.WithTools(testTools(t))}
	srv := mcpservice.NewServer(mcp.ImplementationInfo{Name: "weather-server", Version: "1.6.0"}, append(base, opts...)...)
	return New(srv, WithLogger(discardLogger))
}

func request(t *testing.T, id int64, method string, params any) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.NewRequest(jsonrpc.NewIntRequestID(id), method, params)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func mustHandle(t *testing.T, e *Engine, req *jsonrpc.Request) *jsonrpc.Response {
	t.Helper()
	resp, ok := e.HandleRequest(context.Background(), req)
	if !ok || resp == nil {
		t.Fatalf("expected a response for %s", req.Method)
	}
	if n, _ := resp.ID.Int64(); resp.ID.IsNil() || n != mustID(t, req) {
		t.Fatalf("response id %v does not match request id %v", resp.ID, req.ID)
	}
	return resp
}

func mustID(t *testing.T, req *jsonrpc.Request) int64 {
	t.Helper()
	n, ok := req.ID.Int64()
	if !ok {
		t.Fatalf("request has no integer id")
	}
	return n
}

func decodeResult[T any](t *testing.T, resp *jsonrpc.Response) T {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
	var v T
	if err := json.Unmarshal(resp.Result, &v); err != nil {
		t.Fatalf("decode result: %v (%s)", err, resp.Result)
	}
	return v
}

func TestInitialize(t *testing.T) {
	e := newTestEngine(t, mcpservice.WithInstructions("Ask about the weather."))
	resp := mustHandle(t, e, request(t, 0, "initialize", mcp.InitializeRequest{
		ProtocolVersion: "2024-11-05",
		Capabilities:    mcp.ClientCapabilities{Tools: &struct{}{}},
		ClientInfo:      mcp.ImplementationInfo{Name: "test-client", Version: "1.0.0"},
	}))
	res := decodeResult[mcp.InitializeResult](t, resp)
	if res.ProtocolVersion != "2024-11-05" {
		t.Fatalf("unexpected protocol version %q", res.ProtocolVersion)
	}
	if res.ServerInfo.Name != "weather-server" || res.ServerInfo.Version != "1.6.0" {
		t.Fatalf("unexpected server info %+v", res.ServerInfo)
	}
	if res.Instructions != "Ask about the weather." {
		t.Fatalf("unexpected instructions %q", res.Instructions)
	}
	raw := string(resp.Result)
	for _, want := range []string{
		`"experimental":{}`,
		`"prompts":{"listChanged":false}`,
		`"resources":{"subscribe":false,"listChanged":false}`,
		`"tools":{"listChanged":false}`,
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("initialize result missing %s: %s", want, raw)
		}
	}
}

func TestInitialize_VersionNegotiation(t *testing.T) {
	cases := []struct{ requested, want string }{
		{"2024-11-05", "2024-11-05"},
		{"2025-03-26", "2025-03-26"},
		{"2025-06-18", "2025-06-18"},
		{"1999-01-01", "2024-11-05"},
		{"", "2024-11-05"},
	}
	for _, tc := range cases {
		e := newTestEngine(t)
		res := decodeResult[mcp.InitializeResult](t, mustHandle(t, e, request(t, 1, "initialize", map[string]any{"protocolVersion": tc.requested})))
		if res.ProtocolVersion != tc.want {
			t.Fatalf("requested %q: got %q, want %q", tc.requested, res.ProtocolVersion, tc.want)
		}
	}
}

func TestInitializedNotification(t *testing.T) {
	e := newTestEngine(t)
	if e.Ready() {
		t.Fatalf("engine should not be ready before the handshake")
	}
	note, _ := jsonrpc.NewNotification("notifications/initialized", nil)
	if resp, ok := e.HandleRequest(context.Background(), note); ok || resp != nil {
		t.Fatalf("notifications must not be answered, got %+v", resp)
	}
	if !e.Ready() {
		t.Fatalf("engine should be ready after notifications/initialized")
	}
}

func TestNotifications_NeverAnswered(t *testing.T) {
	e := newTestEngine(t)
	for _, method := range []string{"notifications/cancelled", "notifications/unknown", "tools/call", "no/such/method"} {
		note, _ := jsonrpc.NewNotification(method, map[string]any{"name": "nope"})
		if resp, ok := e.HandleRequest(context.Background(), note); ok || resp != nil {
			t.Fatalf("%s: notifications must not be answered", method)
		}
	}
}

func TestPing(t *testing.T) {
	e := newTestEngine(t)
	resp := mustHandle(t, e, request(t, 3, "ping", nil))
	if string(resp.Result) != "{}" {
		t.Fatalf("expected empty object, got %s", resp.Result)
	}
}

func TestUnknownMethod(t *testing.T) {
	e := newTestEngine(t)
	resp := mustHandle(t, e, request(t, 4, "weather/teleport", nil))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
	if resp.Error.Message != "Method not found: weather/teleport" {
		t.Fatalf("unexpected message %q", resp.Error.Message)
	}
}

func TestToolsList(t *testing.T) {
	e := newTestEngine(t)
	res := decodeResult[mcp.ListToolsResult](t, mustHandle(t, e, request(t, 5, "tools/list", nil)))
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	if got := strings.Join(names, ","); got != "echo,fail,soft_fail,explode,structured" {
		t.Fatalf("unexpected tool order %q", got)
	}
}

func TestToolsList_EmptyRegistry(t *testing.T) {
	e := New(mcpservice.NewServer(mcp.ImplementationInfo{Name: "empty", Version: "0"}), WithLogger(discardLogger))
	resp := mustHandle(t, e, request(t, 6, "tools/list", nil))
	if string(resp.Result) != `{"tools":[]}` {
		t.Fatalf("expected empty tool list, got %s", resp.Result)
	}
}

func TestToolsCall(t *testing.T) {
	e := newTestEngine(t)
	cases := []struct {
		name    string
		params  any
		text    string
		isError bool
		raw     string
	}{
		{name: "string verbatim", params: map[string]any{"name": "echo", "arguments": map[string]any{"message": "a <b> & c"}}, text: "a <b> & c"},
		{name: "json encoded", params: map[string]any{"name": "structured", "arguments": map[string]any{"n": 2}}, text: `{"a":"<b>","n":2}`},
		{name: "missing arguments", params: map[string]any{"name": "echo"}, raw: `"content":[{"type":"text","text":""}]`},
		{name: "handler error", params: map[string]any{"name": "fail"}, text: "Tool execution error: boom", isError: true},
		{name: "error map", params: map[string]any{"name": "soft_fail"}, text: "Error: Invalid characters in expression", isError: true},
		{name: "panic", params: map[string]any{"name": "explode"}, text: "Tool execution error: panic: kaboom", isError: true},
		{name: "bad typed args", params: map[string]any{"name": "echo", "arguments": map[string]any{"message": 5}}, isError: true},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := mustHandle(t, e, request(t, int64(100+i), "tools/call", tc.params))
			res := decodeResult[mcp.CallToolResult](t, resp)
			if res.IsError != tc.isError {
				t.Fatalf("isError = %v, want %v (%s)", res.IsError, tc.isError, resp.Result)
			}
			if len(res.Content) != 1 || res.Content[0].Type != "text" {
				t.Fatalf("expected one text block: %s", resp.Result)
			}
			if tc.text != "" && res.Content[0].Text != tc.text {
				t.Fatalf("text = %q, want %q", res.Content[0].Text, tc.text)
			}
			if !strings.Contains(string(resp.Result), `"isError":`) {
				t.Fatalf("isError must always be present: %s", resp.Result)
			}
			if tc.raw != "" && !strings.Contains(string(resp.Result), tc.raw) {
				t.Fatalf("expected %s in %s", tc.raw, resp.Result)
			}
		})
	}
}

func TestToolsCall_UnknownTool(t *testing.T) {
	e := newTestEngine(t)
	resp := mustHandle(t, e, request(t, 7, "tools/call", map[string]any{"name": "nonexistent"}))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInternalError {
		t.Fatalf("expected -32603, got %+v", resp.Error)
	}
	if resp.Error.Message != "Tool not found: nonexistent" {
		t.Fatalf("unexpected message %q", resp.Error.Message)
	}
	if resp.Result != nil {
		t.Fatalf("error responses must not carry a result")
	}
}

func TestToolsCall_NoToolRegistry(t *testing.T) {
	srv := mcpservice.NewServer(mcp.ImplementationInfo{Name: "weather-server", Version: "1.6.0"})
	e := New(srv, WithLogger(discardLogger))
	resp := mustHandle(t, e, request(t, 8, "tools/call", map[string]any{"name": "get_time"}))
	if resp.Error == nil || resp.Error.Message != "Tool not found: get_time" {
		t.Fatalf("expected Tool not found, got %+v", resp.Error)
	}
}

func TestToolsCall_InvalidParams(t *testing.T) {
	e := newTestEngine(t)
	for i, params := range []any{
		map[string]any{"arguments": map[string]any{}},
		map[string]any{"name": "echo", "arguments": []int{1}},
		[]string{"not", "an", "object"},
	} {
		resp := mustHandle(t, e, request(t, int64(200+i), "tools/call", params))
		if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
			t.Fatalf("case %d: expected -32602, got %+v", i, resp.Error)
		}
	}
}

func TestResources(t *testing.T) {
	resources, err := mcpservice.NewResourceRegistry(
		[]mcpservice.Resource{
			mcpservice.NewTextResource(mcp.Resource{URI: "weather://stations", Name: "stations", MimeType: "text/plain"}, "KNYC"),
		},
		[]mcpservice.ResourceTemplate{{
			Descriptor: mcp.ResourceTemplate{URITemplate: "weather://alerts/{state}", Name: "alerts"},
			Handler: func(_ context.Context, uri string, vars map[string]string) ([]mcp.ResourceContents, error) {
				return []mcp.ResourceContents{{URI: uri, Text: "alerts for " + vars["state"]}}, nil
			},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, mcpservice.WithResources(resources))

	list := decodeResult[mcp.ListResourcesResult](t, mustHandle(t, e, request(t, 1, "resources/list", nil)))
	if len(list.Resources) != 1 || list.Resources[0].URI != "weather://stations" {
		t.Fatalf("unexpected resources %+v", list.Resources)
	}
	tpls := decodeResult[mcp.ListResourceTemplatesResult](t, mustHandle(t, e, request(t, 2, "resources/templates/list", nil)))
	if len(tpls.ResourceTemplates) != 1 {
		t.Fatalf("unexpected templates %+v", tpls.ResourceTemplates)
	}

	read := func(id int64, uri string) mcp.ReadResourceResult {
		return decodeResult[mcp.ReadResourceResult](t, mustHandle(t, e, request(t, id, "resources/read", map[string]any{"uri": uri})))
	}
	if got := read(3, "weather://stations"); got.Contents[0].Text != "KNYC" {
		t.Fatalf("exact read: %+v", got)
	}
	if got := read(4, "weather://alerts/CA"); got.Contents[0].Text != "alerts for CA" {
		t.Fatalf("template read: %+v", got)
	}
	if got := read(5, "file:///unknown"); got.Contents[0].Text != "Resource content for: file:///unknown" || got.Contents[0].MimeType != "text/plain" {
		t.Fatalf("placeholder read: %+v", got)
	}

	resp := mustHandle(t, e, request(t, 6, "resources/read", map[string]any{}))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected -32602 for missing uri, got %+v", resp.Error)
	}
}

func TestResources_EmptyTemplatesList(t *testing.T) {
	e := newTestEngine(t)
	resp := mustHandle(t, e, request(t, 1, "resources/templates/list", nil))
	if string(resp.Result) != `{"resourceTemplates":[]}` {
		t.Fatalf("unexpected result %s", resp.Result)
	}
}

func TestPrompts(t *testing.T) {
	defs, err := mcpservice.LoadPrompts([]byte(`
prompts:
  - name: weather_report
    description: Weather summary
    arguments:
      - name: location
        required: true
    messages:
      - role: user
        text: "Weather in {{.location}}?"
`))
	if err != nil {
		t.Fatal(err)
	}
	prompts, err := mcpservice.NewPromptRegistry(defs...)
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, mcpservice.WithPrompts(prompts))

	list := decodeResult[mcp.ListPromptsResult](t, mustHandle(t, e, request(t, 1, "prompts/list", nil)))
	if len(list.Prompts) != 1 || len(list.Prompts[0].Arguments) != 1 {
		t.Fatalf("unexpected prompts %+v", list.Prompts)
	}

	got := decodeResult[mcp.GetPromptResult](t, mustHandle(t, e, request(t, 2, "prompts/get", map[string]any{
		"name":      "weather_report",
		"arguments": map[string]string{"location": "Paris"},
	})))
	if got.Description != "Weather summary" || got.Messages[0].Content.Text != "Weather in Paris?" {
		t.Fatalf("unexpected prompt %+v", got)
	}

	resp := mustHandle(t, e, request(t, 3, "prompts/get", map[string]any{"name": "nope"}))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInternalError || resp.Error.Message != "Prompt not found: nope" {
		t.Fatalf("expected -32603 prompt not found, got %+v", resp.Error)
	}

	resp = mustHandle(t, e, request(t, 4, "prompts/get", map[string]any{"name": "weather_report"}))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected -32602 for missing argument, got %+v", resp.Error)
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.NewServer(prometheus.NewRegistry())
	srv := mcpservice.NewServer(mcp.ImplementationInfo{Name: "weather-server"}, mcpservice.WithTools(testTools(t)))
	e := New(srv, WithLogger(discardLogger), WithMetrics(m))

	mustHandle(t, e, request(t, 1, "tools/call", map[string]any{"name": "echo", "arguments": map[string]any{"message": "hi"}}))
	mustHandle(t, e, request(t, 2, "tools/call", map[string]any{"name": "fail"}))
	mustHandle(t, e, request(t, 3, "tools/call", map[string]any{"name": "nope"}))
	mustHandle(t, e, request(t, 4, "something/random", nil))

	checks := []struct {
		method, outcome string
	}{
		{"tools/call", metrics.OutcomeOK},
		{"tools/call", metrics.OutcomeToolError},
		{"tools/call", metrics.OutcomeNotFound},
		{"unknown", metrics.OutcomeNotFound},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(m.Requests.WithLabelValues(c.method, c.outcome)); got != 1 {
			t.Fatalf("%s/%s: got %v, want 1", c.method, c.outcome, got)
		}
	}
}
