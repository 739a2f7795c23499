package client

import (
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-stdio-go/internal/pending"
	"github.com/ggoodman/mcp-stdio-go/jsonrpc"
)

var (
	// ErrClosed is returned to callers whose request can no longer complete
	// because the connection was closed or the server's output ended.
	ErrClosed = pending.ErrClosed
	// ErrTimeout is returned when no response arrives within the request
	// timeout. A response that arrives later is dropped.
	ErrTimeout = errors.New("request timed out")
	// ErrNotInitialized is returned for any request other than initialize
	// before the handshake has completed.
	ErrNotInitialized = errors.New("client not initialized")
	// ErrProcessExited is returned when the server process has exited, during
	// startup or after the handshake.
	ErrProcessExited = errors.New("server process exited")
	// ErrAlreadyConnected is returned by Connect on a client that is already
	// connecting or connected.
	ErrAlreadyConnected = errors.New("client already connected")
)

// SpawnError reports that the server command could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WriteError reports that a message could not be written to the server's
// stdin, typically because the pipe is closed.
type WriteError struct {
	Method string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Method, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// RPCError is a JSON-RPC error response returned by the server. It is kept
// distinct from transport failures: the connection is still usable.
type RPCError struct {
	Method  string
	Code    jsonrpc.ErrorCode
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

func newRPCError(method string, e *jsonrpc.Error) *RPCError {
	return &RPCError{Method: method, Code: e.Code, Message: e.Message, Data: e.Data}
}
