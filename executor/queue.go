package executor

import (
	"errors"
	"sync"
)

// ErrQueueClosed is reported by TryRun once the queue is closed.
var ErrQueueClosed = errors.New("executor queue closed")

// Queue runs hand-offs one at a time on a single worker goroutine, like an
// event loop. Consecutive steps that share a Queue therefore share a goroutine.
// The backlog is unbounded so work queued from the worker itself never blocks.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
	onPanic func(any)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithPanicHandler receives panics escaping a queued function. Without it
// the panic is swallowed so the worker keeps serving the queue.
func WithPanicHandler(fn func(any)) QueueOption {
	return func(q *Queue) {
		q.onPanic = fn
	}
}

// NewQueue starts the worker goroutine.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	go q.loop()
	return q
}

func (q *Queue) ShouldRun() bool {
	if q == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed
}

// Run enqueues fn. Once the queue is closed fn runs inline instead so a run
// in flight is never dropped.
func (q *Queue) Run(fn func()) {
	if err := q.TryRun(fn); err != nil && fn != nil {
		fn()
	}
}

// TryRun enqueues fn or reports ErrQueueClosed.
func (q *Queue) TryRun(fn func()) error {
	if fn == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, fn)
	q.cond.Signal()
	return nil
}

// Len returns the number of queued functions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting work, lets the worker drain the backlog and waits
// for it to exit. Close must not be called from a queued function.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.invoke(fn)
	}
}

func (q *Queue) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil && q.onPanic != nil {
			q.onPanic(r)
		}
	}()
	fn()
}
