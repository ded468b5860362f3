package host

import (
	"sync"

	"github.com/roach88/stratagem/internal/metrics"
)

// pending is a submitted request waiting for the Run loop.
type pending struct {
	req  Request
	done chan Result
}

// Result is what Run delivers for an enqueued request.
type Result struct {
	Receipt Receipt
	Err     error
}

// requestQueue is a thread-safe FIFO of pending requests.
//
// HTTP handlers and CLI callers enqueue from any goroutine; the chain's
// Run loop is the only consumer, so transactions are applied one at a
// time in arrival order.
//
// The queue signals availability on a buffered channel so the Run loop
// can wait on it alongside ctx.Done().
type requestQueue struct {
	mu      sync.Mutex
	pending []pending
	closed  bool
	signal  chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		pending: make([]pending, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(p pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, p)
	metrics.SetQueueDepth(len(q.pending))

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *requestQueue) TryDequeue() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return pending{}, false
	}
	p := q.pending[0]
	q.pending[0] = pending{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	metrics.SetQueueDepth(len(q.pending))
	return p, true
}

// Wait returns a channel that signals when requests may be available.
// The channel is closed when the queue closes.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops further enqueues and wakes any waiter.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *requestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
