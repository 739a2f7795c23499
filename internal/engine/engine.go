// Package engine is the protocol core of the stdio server: it maps one
// decoded JSON-RPC request or notification to at most one response. It owns
// no I/O; the stdio package frames lines and writes whatever comes back.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/mcp-stdio-go/internal/logctx"
	"github.com/ggoodman/mcp-stdio-go/internal/metrics"
	"github.com/ggoodman/mcp-stdio-go/jsonrpc"
	"github.com/ggoodman/mcp-stdio-go/mcp"
	"github.com/ggoodman/mcp-stdio-go/mcpservice"
)

// Engine dispatches MCP methods to the tool, resource and prompt registries
// of a mcpservice.Server. It is safe for concurrent use, although the stdio
// loop drives it from a single goroutine.
type Engine struct {
	srv *mcpservice.Server

	log     *slog.Logger
	metrics *metrics.Server

	mu         sync.Mutex
	ready      bool
	negotiated string
	clientInfo mcp.ImplementationInfo
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records dispatch outcomes into m.
func WithMetrics(m *metrics.Server) Option { return func(e *Engine) { e.metrics = m } }

// New constructs an Engine serving srv.
func New(srv *mcpservice.Server, opts ...Option) *Engine {
	if srv == nil {
		srv = mcpservice.NewServer(mcp.ImplementationInfo{})
	}
	e := &Engine{
		srv: srv,
		log: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Ready reports whether the client has sent notifications/initialized.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// HandleRequest dispatches req. The boolean result is false when nothing
// must be written back, which is always the case for notifications.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, bool) {
	start := time.Now()
	rt := parseRoute(req.Method)

	msgType := jsonrpc.TypeRequest
	if req.IsNotification() {
		msgType = jsonrpc.TypeNotification
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   string(msgType),
	})
	log := e.log.With(slog.String("method", req.Method))

	if req.IsNotification() {
		e.handleNotification(ctx, log, rt, req)
		e.metrics.Observe(rt.String(), metrics.OutcomeNoReply, time.Since(start))
		return nil, false
	}

	if rt != routeInitialize && rt != routePing && !e.Ready() {
		log.DebugContext(ctx, "engine.handle_request.before_initialized")
	}

	resp, outcome := e.dispatch(ctx, log, rt, req)
	dur := time.Since(start)
	e.metrics.Observe(rt.String(), outcome, dur)

	if resp.Error != nil {
		log.InfoContext(ctx, "engine.handle_request.fail",
			slog.Int("code", int(resp.Error.Code)),
			slog.String("err", resp.Error.Message),
			slog.Int64("dur_ms", dur.Milliseconds()),
		)
	} else {
		log.DebugContext(ctx, "engine.handle_request.ok", slog.String("outcome", outcome), slog.Int64("dur_ms", dur.Milliseconds()))
	}
	return resp, true
}

// dispatch runs the route handler, converting a panic anywhere below it into
// an internal error response.
func (e *Engine) dispatch(ctx context.Context, log *slog.Logger, rt route, req *jsonrpc.Request) (resp *jsonrpc.Response, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "engine.handle_request.panic", slog.Any("panic", r))
			resp = internalError(req.ID, fmt.Errorf("panic: %v", r))
			outcome = metrics.OutcomeInternal
		}
	}()

	switch rt {
	case routeInitialize:
		return e.handleInitialize(ctx, log, req)
	case routePing:
		return e.result(req.ID, &mcp.EmptyResult{})
	case routeToolsList:
		return e.result(req.ID, &mcp.ListToolsResult{Tools: e.srv.Tools.List()})
	case routeToolsCall:
		return e.handleToolsCall(ctx, log, req)
	case routeResourcesList:
		return e.result(req.ID, &mcp.ListResourcesResult{Resources: e.srv.Resources.List()})
	case routeResourcesRead:
		return e.handleResourcesRead(ctx, req)
	case routeResourcesTemplatesList:
		return e.result(req.ID, &mcp.ListResourceTemplatesResult{ResourceTemplates: e.srv.Resources.ListTemplates()})
	case routePromptsList:
		return e.result(req.ID, &mcp.ListPromptsResult{Prompts: e.srv.Prompts.List()})
	case routePromptsGet:
		return e.handlePromptsGet(ctx, req)
	case routeInitialized, routeCancelled:
		// Notification methods sent with an id: answer rather than leave the
		// caller waiting.
		return e.result(req.ID, &mcp.EmptyResult{})
	case routeUnknown:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+req.Method, nil), metrics.OutcomeNotFound
	}
	return internalError(req.ID, fmt.Errorf("unhandled route %d", rt)), metrics.OutcomeInternal
}

func (e *Engine) handleNotification(ctx context.Context, log *slog.Logger, rt route, req *jsonrpc.Request) {
	switch rt {
	case routeInitialized:
		e.mu.Lock()
		e.ready = true
		client, version := e.clientInfo, e.negotiated
		e.mu.Unlock()
		log.InfoContext(ctx, "engine.session.ready",
			slog.String("client", client.Name),
			slog.String("client_version", client.Version),
			slog.String("protocol_version", version),
		)
	case routeCancelled:
		// Requests are processed one at a time, so by the time this is read
		// the referenced request has already been answered.
		log.DebugContext(ctx, "engine.notification.cancelled", slog.String("params", string(req.Params)))
	default:
		log.DebugContext(ctx, "engine.notification.ignored")
	}
}

func (e *Engine) result(id *jsonrpc.RequestID, v any) (*jsonrpc.Response, string) {
	resp, err := jsonrpc.NewResultResponse(id, v)
	if err != nil {
		return internalError(id, err), metrics.OutcomeInternal
	}
	return resp, metrics.OutcomeOK
}

func internalError(id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "Internal error: "+err.Error(), nil)
}

func invalidParams(id *jsonrpc.RequestID, detail string) (*jsonrpc.Response, string) {
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidParams, "Invalid params: "+detail, nil), metrics.OutcomeBadParams
}
