package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ggoodman/mcp-stdio-go/internal/metrics"
	"github.com/ggoodman/mcp-stdio-go/jsonrpc"
	"github.com/ggoodman/mcp-stdio-go/mcp"
	"github.com/hashicorp/go-multierror"
)

// exitSettle bounds how long a call that lost its connection waits for the
// child's exit status. The child's stdout reaches EOF slightly before Wait
// returns.
const exitSettle = 250 * time.Millisecond

// State is the lifecycle state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateInitialized:
		return "initialized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Client runs an MCP server as a child process and talks to it over the
// child's stdin and stdout. Stderr is diagnostics only.
//
// A Client moves Disconnected -> Connecting -> Initialized on Connect and back
// to Disconnected on Close, on a failed Connect or when the child exits. Only initialize may be sent
// before the handshake completes.
type Client struct {
	command string
	opts    options
	log     *slog.Logger
	metrics *metrics.Client

	mu         sync.Mutex
	state      State
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *os.File
	conn       *Conn
	exited     chan struct{}
	waitErr    error
	serverInfo *mcp.InitializeResult
}

// New prepares a client for command. Nothing is spawned until Connect.
func New(command string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		command: command,
		opts:    o,
		log:     o.log.With(slog.String("command", command)),
		metrics: newClientMetrics(o),
	}
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerInfo returns the initialize result of the current session, or nil
// before the handshake completes.
func (c *Client) ServerInfo() *mcp.InitializeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Done is closed when the child process exits. It returns nil when no
// process has been spawned.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited
}

// Connect spawns the server, waits out the startup grace period and performs
// the initialize handshake. On any failure the child is shut down and the
// client returns to Disconnected.
func (c *Client) Connect(ctx context.Context) (*mcp.InitializeResult, error) {
	c.mu.Lock()
	stale := c.state == StateDisconnected && c.cmd != nil
	c.mu.Unlock()
	if stale {
		// The previous child exited on its own; release its pipes first.
		if err := c.shutdown(); err != nil {
			c.log.DebugContext(ctx, "client.connect.reap", slog.String("err", err.Error()))
		}
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	res, err := c.connect(ctx)
	if err != nil {
		if cerr := c.shutdown(); cerr != nil {
			c.log.DebugContext(ctx, "client.connect.cleanup_fail", slog.String("err", cerr.Error()))
		}
		c.log.ErrorContext(ctx, "client.connect.fail", slog.String("err", err.Error()))
		return nil, err
	}
	return res, nil
}

func (c *Client) connect(ctx context.Context) (*mcp.InitializeResult, error) {
	if err := c.spawn(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	exited := c.exited
	c.mu.Unlock()

	if grace := c.opts.startupGrace; grace > 0 {
		select {
		case <-c.opts.clock.After(grace):
		case <-exited:
			return nil, c.exitedError()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	select {
	case <-exited:
		c.mu.Unlock()
		return nil, c.exitedError()
	default:
	}
	conn := newConn(c.stdout, c.stdin, c.opts, c.metrics)
	c.conn = conn
	c.mu.Unlock()

	params := mcp.InitializeRequest{
		ProtocolVersion: c.opts.protocolVersion,
		Capabilities:    mcp.ClientCapabilities{Tools: &struct{}{}},
		ClientInfo:      c.opts.clientInfo,
	}
	var res mcp.InitializeResult
	if err := c.call(ctx, conn, string(mcp.InitializeMethod), params, 0, &res); err != nil {
		if errors.Is(err, ErrClosed) {
			err = c.closedError(conn, exited, err)
		}
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := conn.Notify(ctx, string(mcp.InitializedNotificationMethod), nil); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}

	c.mu.Lock()
	if c.conn != conn {
		// Close ran while the handshake was in flight.
		c.mu.Unlock()
		return nil, ErrClosed
	}
	select {
	case <-exited:
		c.mu.Unlock()
		return nil, c.exitedError()
	default:
	}
	c.state = StateInitialized
	c.serverInfo = &res
	c.mu.Unlock()

	c.log.InfoContext(ctx, "client.connect.ok",
		slog.String("server", res.ServerInfo.Name),
		slog.String("server_version", res.ServerInfo.Version),
		slog.String("protocol_version", res.ProtocolVersion),
	)
	return &res, nil
}

func (c *Client) spawn(ctx context.Context) error {
	cmd := exec.Command(c.command, c.opts.args...)
	cmd.Env = c.opts.env
	cmd.Dir = c.opts.dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Command: c.command, Err: err}
	}
	// An os.Pipe rather than StdoutPipe so Wait may run while the reader is
	// still draining.
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return &SpawnError{Command: c.command, Err: err}
	}
	cmd.Stdout = pw
	if c.opts.stderr != nil {
		cmd.Stderr = c.opts.stderr
	} else {
		cmd.Stderr = &stderrLogger{log: c.log}
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pr.Close()
		_ = pw.Close()
		return &SpawnError{Command: c.command, Err: err}
	}
	_ = pw.Close()

	exited := make(chan struct{})
	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.stdout = pr
	c.exited = exited
	c.mu.Unlock()

	c.log.DebugContext(ctx, "client.spawn.ok", slog.Int("pid", cmd.Process.Pid))

	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		c.waitErr = err
		if c.exited == exited && c.state == StateInitialized {
			c.state = StateDisconnected
			c.serverInfo = nil
		}
		// Closed under mu so connect cannot mark a dead child Initialized.
		close(exited)
		c.mu.Unlock()
		c.log.Debug("client.process.exit", slog.Any("err", err))
	}()
	return nil
}

func (c *Client) exitedError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waitErr != nil {
		return fmt.Errorf("%w: %v", ErrProcessExited, c.waitErr)
	}
	return ErrProcessExited
}

// closedError reports a connection that closed under an in-flight call. If
// Close did not cause it and the child exits within exitSettle, the failure
// is the child's exit.
func (c *Client) closedError(conn *Conn, exited <-chan struct{}, err error) error {
	c.mu.Lock()
	current := c.conn == conn
	c.mu.Unlock()
	if !current {
		return err
	}
	select {
	case <-exited:
		return c.exitedError()
	case <-c.opts.clock.After(exitSettle):
		return err
	}
}

// SendRequest sends method with params and returns the raw response, which
// may carry a JSON-RPC error. A timeout <= 0 uses the configured request
// timeout. Once the child has exited every call fails with ErrProcessExited.
func (c *Client) SendRequest(ctx context.Context, method string, params any, timeout time.Duration) (*jsonrpc.Response, error) {
	c.mu.Lock()
	conn, state, exited := c.conn, c.state, c.exited
	c.mu.Unlock()

	if conn == nil {
		return nil, ErrNotInitialized
	}
	select {
	case <-exited:
		return nil, c.exitedError()
	default:
	}
	if state != StateInitialized && method != string(mcp.InitializeMethod) {
		return nil, ErrNotInitialized
	}
	resp, err := conn.Call(ctx, method, params, timeout)
	if errors.Is(err, ErrClosed) {
		return nil, c.closedError(conn, exited, err)
	}
	return resp, err
}

// call performs a request and decodes its result into out. JSON-RPC error
// responses are returned as *RPCError.
func (c *Client) call(ctx context.Context, conn *Conn, method string, params any, timeout time.Duration, out any) error {
	resp, err := conn.Call(ctx, method, params, timeout)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return newRPCError(method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func typedCall[T any](ctx context.Context, c *Client, method string, params any) (*T, error) {
	resp, err := c.SendRequest(ctx, method, params, 0)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, newRPCError(method, resp.Error)
	}
	var out T
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return &out, nil
}

// ListTools returns the server's tools.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := typedCall[mcp.ListToolsResult](ctx, c, string(mcp.ToolsListMethod), struct{}{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// CallTool invokes a tool. A tool that fails is reported through the
// result's IsError, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	return typedCall[mcp.CallToolResult](ctx, c, string(mcp.ToolsCallMethod), mcp.CallToolRequest{Name: name, Arguments: args})
}

// ListResources returns the server's concrete resources.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	res, err := typedCall[mcp.ListResourcesResult](ctx, c, string(mcp.ResourcesListMethod), struct{}{})
	if err != nil {
		return nil, err
	}
	return res.Resources, nil
}

// ListResourceTemplates returns the server's resource templates.
func (c *Client) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	res, err := typedCall[mcp.ListResourceTemplatesResult](ctx, c, string(mcp.ResourcesTemplatesListMethod), struct{}{})
	if err != nil {
		return nil, err
	}
	return res.ResourceTemplates, nil
}

// ReadResource reads the resource at uri.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return typedCall[mcp.ReadResourceResult](ctx, c, string(mcp.ResourcesReadMethod), mcp.ReadResourceRequest{URI: uri})
}

// ListPrompts returns the server's prompts.
func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	res, err := typedCall[mcp.ListPromptsResult](ctx, c, string(mcp.PromptsListMethod), struct{}{})
	if err != nil {
		return nil, err
	}
	return res.Prompts, nil
}

// GetPrompt renders a prompt with args.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	return typedCall[mcp.GetPromptResult](ctx, c, string(mcp.PromptsGetMethod), mcp.GetPromptRequest{Name: name, Arguments: args})
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := typedCall[mcp.EmptyResult](ctx, c, string(mcp.PingMethod), nil)
	return err
}

// Close fails pending requests, closes the child's stdin, asks it to
// terminate and kills it if it has not exited within the shutdown timeout.
// Close is idempotent.
func (c *Client) Close() error {
	err := c.shutdown()
	if err != nil {
		c.log.Warn("client.close.fail", slog.String("err", err.Error()))
	}
	return err
}

func (c *Client) shutdown() error {
	c.mu.Lock()
	c.state = StateDisconnected
	c.serverInfo = nil
	conn, cmd, stdin, stdout, exited := c.conn, c.cmd, c.stdin, c.stdout, c.exited
	c.conn, c.cmd, c.stdin, c.stdout = nil, nil, nil, nil
	c.mu.Unlock()

	if cmd == nil {
		return nil
	}

	var result *multierror.Error
	if conn != nil {
		_ = conn.Close()
	}
	if err := stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		result = multierror.Append(result, fmt.Errorf("close stdin: %w", err))
	}

	signalled := false
	select {
	case <-exited:
	default:
		if err := terminate(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			result = multierror.Append(result, fmt.Errorf("terminate: %w", err))
		}
		signalled = true
		select {
		case <-exited:
		case <-c.opts.clock.After(c.opts.shutdownTimeout):
			c.log.Warn("client.close.kill", slog.Duration("timeout", c.opts.shutdownTimeout))
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				result = multierror.Append(result, fmt.Errorf("kill: %w", err))
			}
			<-exited
		}
	}

	if err := stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		result = multierror.Append(result, fmt.Errorf("close stdout: %w", err))
	}
	if conn != nil {
		<-conn.Done()
	}

	c.mu.Lock()
	waitErr := c.waitErr
	c.mu.Unlock()
	var exitErr *exec.ExitError
	if waitErr != nil && !(signalled && errors.As(waitErr, &exitErr)) {
		result = multierror.Append(result, fmt.Errorf("wait: %w", waitErr))
	}
	return result.ErrorOrNil()
}

// stderrLogger logs each line the child writes to stderr.
type stderrLogger struct {
	log *slog.Logger
	buf []byte
}

func (s *stderrLogger) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		if line := string(s.buf[:i]); line != "" {
			s.log.Debug("client.process.stderr", slog.String("line", line))
		}
		s.buf = s.buf[i+1:]
	}
	return len(p), nil
}
