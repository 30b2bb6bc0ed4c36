package builder

import (
	"context"
	"sync"
)

// Dispatcher runs callbacks on the goroutine that owns the presentation
// layer.
type Dispatcher interface {
	Dispatch(fn func())
}

// ImmediateDispatcher runs callbacks on the calling goroutine. Use it when
// the presentation layer is safe for concurrent use.
type ImmediateDispatcher struct{}

// Dispatch implements Dispatcher.
func (ImmediateDispatcher) Dispatch(fn func()) { fn() }

// LoopDispatcher queues callbacks for a presentation goroutine that calls
// Run. Callbacks run in the order they were dispatched.
type LoopDispatcher struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// NewLoopDispatcher creates an empty dispatcher.
func NewLoopDispatcher() *LoopDispatcher {
	return &LoopDispatcher{wake: make(chan struct{}, 1)}
}

// Dispatch implements Dispatcher. It never blocks. Callbacks dispatched
// after Close are dropped.
func (d *LoopDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// RunPending runs every queued callback and returns how many ran.
func (d *LoopDispatcher) RunPending() int {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// Run executes callbacks until ctx is done or the dispatcher is closed.
func (d *LoopDispatcher) Run(ctx context.Context) {
	for {
		d.RunPending()

		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		if closed {
			d.RunPending()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}
	}
}

// Ready receives a value when callbacks are queued, for hosts that select
// on other input instead of calling Run.
func (d *LoopDispatcher) Ready() <-chan struct{} { return d.wake }

// Close stops Run after the queue drains.
func (d *LoopDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}
