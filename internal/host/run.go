package host

import (
	"context"
	"errors"
)

// ErrChainClosed is returned by Enqueue after Close.
var ErrChainClosed = errors.New("chain is closed")

// Enqueue hands a request to the Run loop. The returned channel receives
// exactly one Result.
func (c *Chain) Enqueue(req Request) (<-chan Result, error) {
	done := make(chan Result, 1)
	if !c.queue.Enqueue(pending{req: req, done: done}) {
		return nil, ErrChainClosed
	}
	return done, nil
}

// Run applies enqueued requests in arrival order until ctx is cancelled
// or Close is called. Requests still queued when Run stops fail with the
// stop reason.
func (c *Chain) Run(ctx context.Context) error {
	defer c.drain(ErrChainClosed)
	for {
		for {
			p, ok := c.queue.TryDequeue()
			if !ok {
				break
			}
			if err := ctx.Err(); err != nil {
				p.done <- Result{Err: err}
				return err
			}
			receipt, err := c.Submit(ctx, p.req)
			p.done <- Result{Receipt: receipt, Err: err}
		}
		if c.queue.Closed() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.queue.Wait():
		}
	}
}

// Close stops the Run loop once the queue is empty.
func (c *Chain) Close() {
	c.queue.Close()
}

func (c *Chain) drain(err error) {
	for {
		p, ok := c.queue.TryDequeue()
		if !ok {
			return
		}
		p.done <- Result{Err: err}
	}
}
