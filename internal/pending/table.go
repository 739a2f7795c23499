// Package pending owns the request/response correlation state of a single
// JSON-RPC connection: the identifier counter and the set of callers waiting
// for a reply. Both are guarded by one mutex that is only ever held for the
// bookkeeping itself, never across I/O or a wait.
package pending

import (
	"errors"
	"sync"

	"github.com/ggoodman/mcp-stdio-go/jsonrpc"
)

// ErrClosed indicates the table was closed and no longer accepts or
// completes requests.
var ErrClosed = errors.New("connection closed")

// Table correlates outgoing request identifiers with their responses.
// Identifiers start at 0 and are strictly increasing for the lifetime of the
// table; they are never reused.
//
// Every registered entry is removed exactly once, by whichever of Deliver,
// Cancel or Close reaches it first. The losers observe a missing entry and do
// nothing.
type Table struct {
	mu      sync.Mutex
	nextID  int64
	waiters map[int64]chan *jsonrpc.Response

	closed   bool
	closeErr error
}

// New constructs an empty Table.
func New() *Table {
	return &Table{waiters: make(map[int64]chan *jsonrpc.Response)}
}

// Register allocates the next identifier and returns the channel its response
// will be delivered on. The channel is closed without a value if the table is
// closed first; callers then consult Err.
func (t *Table) Register() (int64, <-chan *jsonrpc.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, nil, t.closeErr
	}
	id := t.nextID
	t.nextID++
	ch := make(chan *jsonrpc.Response, 1)
	t.waiters[id] = ch
	return id, ch, nil
}

// Deliver hands resp to the caller waiting on its identifier. It reports
// whether a waiter was found; responses for unknown, timed-out or already
// delivered identifiers are dropped.
func (t *Table) Deliver(resp *jsonrpc.Response) bool {
	if resp == nil {
		return false
	}
	id, ok := resp.ID.Int64()
	if !ok {
		return false
	}
	t.mu.Lock()
	ch, ok := t.waiters[id]
	if ok {
		delete(t.waiters, id)
	}
	t.mu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

// Cancel removes the entry for id. It reports whether the entry was still
// outstanding, i.e. whether the caller won the race against Deliver.
func (t *Table) Cancel(id int64) bool {
	t.mu.Lock()
	_, ok := t.waiters[id]
	if ok {
		delete(t.waiters, id)
	}
	t.mu.Unlock()
	return ok
}

// Close fails every outstanding entry and rejects further registrations. The
// first call wins; err defaults to ErrClosed.
func (t *Table) Close(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	t.closed = true
	t.closeErr = err
	for id, ch := range t.waiters {
		delete(t.waiters, id)
		close(ch)
	}
}

// Err returns the error the table was closed with, or nil while open.
func (t *Table) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeErr
}

// Len returns the number of outstanding entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
