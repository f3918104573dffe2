package store

import (
	"context"
	"sync"

	saga "github.com/goliatone/go-saga"
)

// Operation names reported by Recorder.
const (
	OpSessionStarted     = "SessionStarted"
	OpStepPrepared       = "StepPrepared"
	OpStepReceding       = "StepReceding"
	OpRemoveSession      = "RemoveSession"
	OpRecoverTransaction = "RecoverTransaction"
)

// Call is one store invocation seen by a Recorder.
type Call struct {
	Op          string
	Transaction string
	SessionID   string
	StepIndex   int
	Err         error
}

// Recorder decorates a session store, keeping the ordered list of calls it
// receives. Failures can be injected per operation. With a nil inner store
// every call succeeds and recovery finds nothing.
type Recorder[TData any] struct {
	inner saga.SessionStore[TData]

	mu    sync.Mutex
	calls []Call
	fail  map[string]failure
}

type failure struct {
	err   error
	after int
	seen  int
}

// NewRecorder wraps inner.
func NewRecorder[TData any](inner saga.SessionStore[TData]) *Recorder[TData] {
	return &Recorder[TData]{inner: inner, fail: make(map[string]failure)}
}

// FailOn makes every call to op return err.
func (r *Recorder[TData]) FailOn(op string, err error) *Recorder[TData] {
	return r.FailAfter(op, 0, err)
}

// FailAfter lets the first n calls to op through, then returns err.
func (r *Recorder[TData]) FailAfter(op string, n int, err error) *Recorder[TData] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = failure{err: err, after: n}
	return r
}

// Calls returns a copy of the recorded calls.
func (r *Recorder[TData]) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops returns the recorded operation names in order.
func (r *Recorder[TData]) Ops() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}

// Count returns how many times op was called.
func (r *Recorder[TData]) Count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (r *Recorder[TData]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder[TData]) SessionStarted(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return r.forward(callFor(OpSessionStarted, snapshot), func(s saga.SessionStore[TData]) error {
		return s.SessionStarted(ctx, snapshot)
	})
}

func (r *Recorder[TData]) StepPrepared(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return r.forward(callFor(OpStepPrepared, snapshot), func(s saga.SessionStore[TData]) error {
		return s.StepPrepared(ctx, snapshot)
	})
}

func (r *Recorder[TData]) StepReceding(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return r.forward(callFor(OpStepReceding, snapshot), func(s saga.SessionStore[TData]) error {
		return s.StepReceding(ctx, snapshot)
	})
}

func (r *Recorder[TData]) RemoveSession(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return r.forward(callFor(OpRemoveSession, snapshot), func(s saga.SessionStore[TData]) error {
		return s.RemoveSession(ctx, snapshot)
	})
}

func (r *Recorder[TData]) RecoverTransaction(ctx context.Context, transaction string) (*saga.Snapshot[TData], error) {
	var out *saga.Snapshot[TData]
	call := Call{Op: OpRecoverTransaction, Transaction: transaction}
	err := r.forward(call, func(s saga.SessionStore[TData]) error {
		var err error
		out, err = s.RecoverTransaction(ctx, transaction)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func callFor[TData any](name string, snapshot saga.Snapshot[TData]) Call {
	return Call{
		Op:          name,
		Transaction: snapshot.Transaction,
		SessionID:   snapshot.SessionID,
		StepIndex:   snapshot.StepIndex,
	}
}

func (r *Recorder[TData]) forward(call Call, fn func(saga.SessionStore[TData]) error) error {
	r.mu.Lock()
	if f, ok := r.fail[call.Op]; ok {
		f.seen++
		r.fail[call.Op] = f
		if f.seen > f.after {
			call.Err = f.err
		}
	}
	inner := r.inner
	r.mu.Unlock()

	if call.Err == nil && inner != nil {
		call.Err = fn(inner)
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	return call.Err
}
