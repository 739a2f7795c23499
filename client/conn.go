package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ggoodman/mcp-stdio-go/internal/logctx"
	"github.com/ggoodman/mcp-stdio-go/internal/metrics"
	"github.com/ggoodman/mcp-stdio-go/internal/pending"
	"github.com/ggoodman/mcp-stdio-go/jsonrpc"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Conn is one JSON-RPC connection over a line-oriented reader/writer pair.
// It owns a single reader goroutine that routes responses to the callers
// waiting in Call. Call and Notify are safe for concurrent use.
type Conn struct {
	id      string
	log     *slog.Logger
	clock   clock.Clock
	metrics *metrics.Client
	timeout time.Duration

	table *pending.Table

	wmu sync.Mutex
	bw  *bufio.Writer

	eg   errgroup.Group
	done chan struct{}
}

// NewConn starts a connection reading responses from r and writing requests
// to w. The reader runs until r reports EOF or an error; at that point every
// pending and future call fails with ErrClosed.
func NewConn(r io.Reader, w io.Writer, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newConn(r, w, o, newClientMetrics(o))
}

func newClientMetrics(o options) *metrics.Client {
	if o.metrics == nil {
		return nil
	}
	return metrics.NewClient(o.metrics)
}

func newConn(r io.Reader, w io.Writer, o options, m *metrics.Client) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:      id,
		log:     o.log.With(slog.String("conn_id", id)),
		clock:   o.clock,
		metrics: m,
		timeout: o.requestTimeout,
		table:   pending.New(),
		bw:      bufio.NewWriter(w),
		done:    make(chan struct{}),
	}
	c.eg.Go(func() error {
		defer close(c.done)
		return c.readLoop(r)
	})
	return c
}

// ID identifies the connection in logs.
func (c *Conn) ID() string { return c.id }

// Done is closed when the reader loop has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection stopped accepting calls, or nil while
// it is open.
func (c *Conn) Err() error { return c.table.Err() }

// Call sends a request and blocks until its response arrives, timeout
// elapses, ctx is done or the connection closes. A timeout <= 0 uses the
// connection default. The returned response may carry a JSON-RPC error.
func (c *Conn) Call(ctx context.Context, method string, params any, timeout time.Duration) (*jsonrpc.Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	id, ch, err := c.table.Register()
	if err != nil {
		c.metrics.Observe(method, metrics.OutcomeClosed)
		return nil, err
	}
	c.metrics.SetPending(c.table.Len())
	defer func() { c.metrics.SetPending(c.table.Len()) }()

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: method, ID: fmt.Sprint(id), Type: string(jsonrpc.TypeRequest)})

	req, err := jsonrpc.NewRequest(jsonrpc.NewIntRequestID(id), method, params)
	if err != nil {
		c.table.Cancel(id)
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	if err := c.write(req); err != nil {
		c.table.Cancel(id)
		c.metrics.Observe(method, metrics.OutcomeWriteError)
		c.log.WarnContext(ctx, "client.call.write_fail", slog.String("err", err.Error()))
		return nil, &WriteError{Method: method, Err: err}
	}

	timer := c.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		return c.finish(ctx, method, resp, ok)
	case <-timer.C():
		if c.table.Cancel(id) {
			c.metrics.Observe(method, metrics.OutcomeTimeout)
			c.log.WarnContext(ctx, "client.call.timeout", slog.Duration("timeout", timeout))
			return nil, fmt.Errorf("%w: %s (id %d) after %s", ErrTimeout, method, id, timeout)
		}
	case <-ctx.Done():
		if c.table.Cancel(id) {
			c.metrics.Observe(method, metrics.OutcomeCancelled)
			return nil, ctx.Err()
		}
	}
	// The reader won the race for the entry; its delivery is already on the
	// way.
	resp, ok := <-ch
	return c.finish(ctx, method, resp, ok)
}

func (c *Conn) finish(ctx context.Context, method string, resp *jsonrpc.Response, ok bool) (*jsonrpc.Response, error) {
	if !ok {
		c.metrics.Observe(method, metrics.OutcomeClosed)
		return nil, c.table.Err()
	}
	if resp.Error != nil {
		c.metrics.Observe(method, metrics.OutcomeRPCError)
		c.log.DebugContext(ctx, "client.call.rpc_error", slog.Int("code", int(resp.Error.Code)), slog.String("err", resp.Error.Message))
	} else {
		c.metrics.Observe(method, metrics.OutcomeOK)
	}
	return resp, nil
}

// Notify sends a notification. Nothing is awaited.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if err := c.table.Err(); err != nil {
		return err
	}
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	if err := c.write(note); err != nil {
		c.log.WarnContext(ctx, "client.notify.write_fail", slog.String("method", method), slog.String("err", err.Error()))
		return &WriteError{Method: method, Err: err}
	}
	return nil
}

// Close fails every pending call with ErrClosed and rejects new ones. It
// does not close the underlying reader or writer, which belong to the caller.
func (c *Conn) Close() error {
	c.table.Close(ErrClosed)
	return nil
}

// Wait blocks until the reader loop ends and returns its read error, if any.
func (c *Conn) Wait() error { return c.eg.Wait() }

// write emits v as one line. The write lock covers only the line write and
// flush, never the pending table.
func (c *Conn) write(v any) error {
	b, err := jsonrpc.MarshalLine(v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.bw.Write(b); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Conn) readLoop(r io.Reader) error {
	ctx := logctx.WithConnData(context.Background(), &logctx.ConnData{ConnID: c.id, Role: "client"})
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			c.handleLine(ctx, line)
		}
		if err != nil {
			// The owner closing the read side is a clean shutdown too.
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				c.log.DebugContext(ctx, "client.reader.eof")
				c.table.Close(ErrClosed)
				return nil
			}
			c.log.WarnContext(ctx, "client.reader.fail", slog.String("err", err.Error()))
			c.table.Close(fmt.Errorf("%w: %v", ErrClosed, err))
			return err
		}
	}
}

func (c *Conn) handleLine(ctx context.Context, line []byte) {
	msg, err := jsonrpc.Decode(line)
	if err != nil {
		c.log.WarnContext(ctx, "client.reader.parse_error", slog.String("err", err.Error()))
		return
	}
	switch msg.Type() {
	case jsonrpc.TypeResponse:
		if !c.table.Deliver(msg.AsResponse()) {
			c.metrics.DroppedResponse()
			c.log.DebugContext(ctx, "client.reader.unmatched_response", slog.String("id", msg.ID.String()))
		}
	default:
		// No client capabilities are advertised, so server-initiated
		// requests and notifications have nothing to act on.
		c.log.DebugContext(ctx, "client.reader.ignored", slog.String("method", msg.Method), slog.String("type", string(msg.Type())))
	}
}
