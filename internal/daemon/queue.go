package daemon

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ProjectMoon/reed/internal/errs"
)

const (
	callPending int32 = iota
	callClaimed
	callAbandoned
)

// call is a data method deferred until the daemon is ready.
type call struct {
	ctx   context.Context
	fn    func(ctx context.Context, s *session) error
	state atomic.Int32
	done  chan error
}

func newCall(ctx context.Context, fn func(ctx context.Context, s *session) error) *call {
	return &call{ctx: ctx, fn: fn, done: make(chan error, 1)}
}

// run executes the call unless its caller already gave up.
func (c *call) run(s *session) {
	if !c.state.CompareAndSwap(callPending, callClaimed) {
		return
	}
	ctx, cancel := s.bind(c.ctx)
	defer cancel()
	c.done <- c.fn(ctx, s)
}

// fail completes the call with err without running it.
func (c *call) fail(err error) {
	if !c.state.CompareAndSwap(callPending, callClaimed) {
		return
	}
	c.done <- err
}

// wait blocks until the call completes. If ctx ends first and the call has
// not started, the call is abandoned; once started it is waited out so its
// results are never written after the caller returned.
func (c *call) wait() error {
	select {
	case err := <-c.done:
		return err
	case <-c.ctx.Done():
		if c.state.CompareAndSwap(callPending, callAbandoned) {
			return c.ctx.Err()
		}
		return <-c.done
	}
}

// callQueue is a bounded FIFO of deferred calls. It is guarded by the
// daemon's mutex.
type callQueue struct {
	calls []*call
	limit int
}

func newCallQueue(limit int) *callQueue {
	return &callQueue{limit: limit}
}

func (q *callQueue) push(c *call) error {
	if len(q.calls) >= q.limit {
		return fmt.Errorf("%w: %d calls already waiting", errs.ErrQueueFull, len(q.calls))
	}
	q.calls = append(q.calls, c)
	return nil
}

func (q *callQueue) drain() []*call {
	calls := q.calls
	q.calls = nil
	return calls
}

func (q *callQueue) size() int {
	return len(q.calls)
}
