package saga

import (
	"sync"
	"time"

	apperrors "github.com/goliatone/go-errors"
)

// ResultKind is the terminal outcome of a run.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultCancelled
	ResultFailed
	ResultNoTransactionToRecover
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultCancelled:
		return "cancelled"
	case ResultFailed:
		return "failed"
	case ResultNoTransactionToRecover:
		return "no_transaction_to_recover"
	default:
		return "unknown"
	}
}

// Result is delivered exactly once per run.
type Result[TData any] struct {
	Kind        ResultKind
	Transaction string
	SessionID   string
	Data        TData
	Recovered   bool
	Errors      []error
	StartedAt   time.Time
	EndedAt     time.Time
}

// Succeeded reports whether the run completed with ResultSuccess.
func (r *Result[TData]) Succeeded() bool {
	return r != nil && r.Kind == ResultSuccess
}

// Err joins every captured error, or returns nil when there are none.
func (r *Result[TData]) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return apperrors.Join(r.Errors...)
}

// aggregator collects run errors in capture order.
type aggregator struct {
	mu   sync.Mutex
	errs []error
}

func (a *aggregator) add(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

func (a *aggregator) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs)
}

func (a *aggregator) errors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.errs) == 0 {
		return nil
	}
	out := make([]error, len(a.errs))
	copy(out, a.errs)
	return out
}

// resolve maps the intended outcome to the final one: any captured error
// turns success or cancellation into a failure.
func (a *aggregator) resolve(intent ResultKind) ResultKind {
	if a.len() > 0 {
		return ResultFailed
	}
	return intent
}
