package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-stdio-go/internal/engine"
	"github.com/ggoodman/mcp-stdio-go/internal/logctx"
	"github.com/ggoodman/mcp-stdio-go/internal/metrics"
	"github.com/ggoodman/mcp-stdio-go/jsonrpc"
	"github.com/ggoodman/mcp-stdio-go/mcpservice"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrAlreadyServing is returned when Serve is called more than once.
var ErrAlreadyServing = errors.New("stdio: handler already serving")

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
//
// The handler is transport-only; it delegates all MCP semantics to the
// dispatcher built from the provided mcpservice.Server.
type Handler struct {
	r   io.Reader
	w   io.Writer
	l   *slog.Logger
	reg prometheus.Registerer

	srv    *mcpservice.Server
	connID string
	served atomic.Bool
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(srv *mcpservice.Server, opts ...Option) *Handler {
	h := &Handler{
		r:      os.Stdin,
		w:      os.Stdout,
		l:      slog.Default(),
		srv:    srv,
		connID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It is safe to call at most once per Handler.
//
// Each input line holds one JSON-RPC message. Lines are handled strictly in
// order: a line that is not JSON is answered with a parse error, a line that
// is JSON but not a valid envelope with an invalid request error, and
// responses sent by the peer are ignored. Notifications are never answered.
// Every reply is written as one line and flushed before the next line is
// read.
//
// EOF ends the loop with a nil error.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.served.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	ctx = logctx.WithConnData(ctx, &logctx.ConnData{ConnID: h.connID, Role: "server"})
	log := h.l.With(slog.String("conn_id", h.connID))

	var m *metrics.Server
	if h.reg != nil {
		m = metrics.NewServer(h.reg)
	}
	eng := engine.New(h.srv, engine.WithLogger(h.l), engine.WithMetrics(m))
	wm := newWriteMux(h.w)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readLines(ctx, h.r, lines)
	}()

	log.InfoContext(ctx, "stdio.serve.start")
	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "stdio.serve.cancelled")
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				log.ErrorContext(ctx, "stdio.serve.read_fail", slog.String("err", err.Error()))
				return fmt.Errorf("read: %w", err)
			}
			log.InfoContext(ctx, "stdio.serve.eof")
			return nil
		case line := <-lines:
			if err := h.handleLine(ctx, log, eng, wm, line); err != nil {
				log.ErrorContext(ctx, "stdio.serve.write_fail", slog.String("err", err.Error()))
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, log *slog.Logger, eng *engine.Engine, wm *writeMux, line []byte) error {
	msg, err := jsonrpc.Decode(line)
	switch {
	case errors.Is(err, jsonrpc.ErrParse):
		log.WarnContext(ctx, "stdio.message.parse_error", slog.String("err", err.Error()))
		return wm.writeJSONRPC(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "Parse error: "+err.Error(), nil))
	case err != nil:
		log.WarnContext(ctx, "stdio.message.invalid", slog.String("err", err.Error()))
		return wm.writeJSONRPC(jsonrpc.NewErrorResponse(peekID(line), jsonrpc.ErrorCodeInvalidRequest, "Invalid Request: "+err.Error(), nil))
	}

	switch msg.Type() {
	case jsonrpc.TypeResponse:
		// This server never issues requests, so there is nothing to correlate.
		log.DebugContext(ctx, "stdio.message.unexpected_response", slog.String("id", msg.ID.String()))
		return nil
	default:
		resp, ok := eng.HandleRequest(ctx, msg.AsRequest())
		if !ok {
			return nil
		}
		return wm.writeJSONRPC(resp)
	}
}

// readLines sends each non-blank line of r on out until EOF, a read error or
// ctx is done. A trailing line without a newline is still delivered.
func readLines(ctx context.Context, r io.Reader, out chan<- []byte) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			select {
			case out <- line:
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// peekID recovers the id of an envelope that failed validation so the error
// can still be correlated by the peer.
func peekID(line []byte) *jsonrpc.RequestID {
	var probe struct {
		ID *jsonrpc.RequestID `json:"id"`
	}
	if json.Unmarshal(line, &probe) != nil {
		return nil
	}
	return probe.ID
}

// writeMux serializes writes so each JSON-RPC message occupies exactly one
// line on the output stream.
type writeMux struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newWriteMux(w io.Writer) *writeMux {
	return &writeMux{w: bufio.NewWriter(w)}
}

func (m *writeMux) writeJSONRPC(v any) error {
	b, err := jsonrpc.MarshalLine(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.Write(b); err != nil {
		return err
	}
	return m.w.Flush()
}
