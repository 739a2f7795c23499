package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/mcp-stdio-go/internal/logctx"
	"github.com/ggoodman/mcp-stdio-go/internal/metrics"
	"github.com/ggoodman/mcp-stdio-go/jsonrpc"
	"github.com/ggoodman/mcp-stdio-go/mcp"
	"github.com/ggoodman/mcp-stdio-go/mcpservice"
)

func (e *Engine) handleInitialize(ctx context.Context, log *slog.Logger, req *jsonrpc.Request) (*jsonrpc.Response, string) {
	var params mcp.InitializeRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return invalidParams(req.ID, err.Error())
	}

	version := e.srv.ProtocolVersion
	if version == "" {
		version = mcp.ProtocolVersion20241105
	}
	if mcp.IsSupportedProtocolVersion(params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	e.mu.Lock()
	e.negotiated = version
	e.clientInfo = params.ClientInfo
	e.mu.Unlock()

	log.InfoContext(ctx, "engine.initialize",
		slog.String("client", params.ClientInfo.Name),
		slog.String("requested_version", params.ProtocolVersion),
		slog.String("negotiated_version", version),
	)

	return e.result(req.ID, &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Experimental: map[string]any{},
			Prompts:      &mcp.ListChangedCapability{},
			Resources:    &mcp.ResourcesCapability{},
			Tools:        &mcp.ListChangedCapability{},
		},
		ServerInfo:   mcp.ImplementationInfo{Name: e.srv.Info.Name, Version: e.srv.Info.Version},
		Instructions: e.srv.Instructions,
	})
}

func (e *Engine) handleToolsCall(ctx context.Context, log *slog.Logger, req *jsonrpc.Request) (*jsonrpc.Response, string) {
	var params mcp.CallToolRequestReceived
	if err := decodeParams(req.Params, &params); err != nil {
		return invalidParams(req.ID, err.Error())
	}
	if params.Name == "" {
		return invalidParams(req.ID, "missing tool name")
	}
	args, err := decodeArguments(params.Arguments)
	if err != nil {
		return invalidParams(req.ID, err.Error())
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
	v, err := invokeTool(ctx, e.srv.Tools, params.Name, args)
	if errors.Is(err, mcpservice.ErrToolNotFound) {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "Tool not found: "+params.Name, nil), metrics.OutcomeNotFound
	}
	if err != nil {
		log.WarnContext(ctx, "engine.tools_call.handler_error", slog.String("err", err.Error()))
	}
	res := mcpservice.ToolResult(v, err)

	resp, outcome := e.result(req.ID, res)
	if outcome == metrics.OutcomeOK && res.IsError {
		outcome = metrics.OutcomeToolError
	}
	return resp, outcome
}

// invokeTool calls the named tool, reporting a handler panic as a handler
// error so the caller receives an error result instead of a protocol failure.
func invokeTool(ctx context.Context, tools *mcpservice.ToolRegistry, name string, args map[string]any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return tools.Call(ctx, name, args)
}

func (e *Engine) handleResourcesRead(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, string) {
	var params mcp.ReadResourceRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return invalidParams(req.ID, err.Error())
	}
	if params.URI == "" {
		return invalidParams(req.ID, "missing uri")
	}
	contents, err := e.srv.Resources.Read(ctx, params.URI)
	if err != nil {
		return internalError(req.ID, err), metrics.OutcomeInternal
	}
	if contents == nil {
		contents = []mcp.ResourceContents{}
	}
	return e.result(req.ID, &mcp.ReadResourceResult{Contents: contents})
}

func (e *Engine) handlePromptsGet(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, string) {
	var params mcp.GetPromptRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return invalidParams(req.ID, err.Error())
	}
	if params.Name == "" {
		return invalidParams(req.ID, "missing prompt name")
	}
	res, err := e.srv.Prompts.Get(ctx, params.Name, params.Arguments)
	switch {
	case errors.Is(err, mcpservice.ErrPromptNotFound):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "Prompt not found: "+params.Name, nil), metrics.OutcomeNotFound
	case errors.Is(err, mcpservice.ErrMissingArgument):
		return invalidParams(req.ID, err.Error())
	case err != nil:
		return internalError(req.ID, err), metrics.OutcomeInternal
	}
	return e.result(req.ID, res)
}

// decodeParams unmarshals raw into v. Absent or null params leave v at its
// zero value.
func decodeParams(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	return nil
}

// decodeArguments parses tools/call arguments, which must be a JSON object
// when present.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return args, nil
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("arguments must be an object")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
