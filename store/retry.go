package store

import (
	"context"
	"fmt"
	"math"
	"time"

	saga "github.com/goliatone/go-saga"
)

// RetryStrategy decides how long to wait before the next persistence attempt.
// attempt starts at 0 and grows after each failure.
type RetryStrategy interface {
	SleepDuration(attempt int, err error) time.Duration
}

// NoDelay retries immediately.
type NoDelay struct{}

func (NoDelay) SleepDuration(int, error) time.Duration { return 0 }

// ExponentialBackoff waits Base, Base*Factor, Base*Factor^2 ... capped at Max.
type ExponentialBackoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoff) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := e.Factor
	if factor <= 0 {
		factor = 1
	}
	delay := time.Duration(float64(e.Base) * math.Pow(factor, float64(attempt)))
	if e.Max > 0 && delay > e.Max {
		return e.Max
	}
	return delay
}

// Retrying retries failed persistence calls of the wrapped store. A call is
// tried at most 1+retries times; the last error is returned wrapped with the
// attempt count.
type Retrying[TData any] struct {
	inner    saga.SessionStore[TData]
	retries  int
	strategy RetryStrategy
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps inner. A nil strategy retries without delay.
func NewRetrying[TData any](inner saga.SessionStore[TData], retries int, strategy RetryStrategy) *Retrying[TData] {
	if retries < 0 {
		retries = 0
	}
	if strategy == nil {
		strategy = NoDelay{}
	}
	return &Retrying[TData]{inner: inner, retries: retries, strategy: strategy, sleep: sleepContext}
}

func (r *Retrying[TData]) SessionStarted(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return r.do(ctx, OpSessionStarted, func() error { return r.inner.SessionStarted(ctx, snapshot) })
}

func (r *Retrying[TData]) StepPrepared(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return r.do(ctx, OpStepPrepared, func() error { return r.inner.StepPrepared(ctx, snapshot) })
}

func (r *Retrying[TData]) StepReceding(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return r.do(ctx, OpStepReceding, func() error { return r.inner.StepReceding(ctx, snapshot) })
}

func (r *Retrying[TData]) RemoveSession(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return r.do(ctx, OpRemoveSession, func() error { return r.inner.RemoveSession(ctx, snapshot) })
}

func (r *Retrying[TData]) RecoverTransaction(ctx context.Context, transaction string) (*saga.Snapshot[TData], error) {
	var out *saga.Snapshot[TData]
	err := r.do(ctx, OpRecoverTransaction, func() error {
		var err error
		out, err = r.inner.RecoverTransaction(ctx, transaction)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Retrying[TData]) do(ctx context.Context, op string, fn func() error) error {
	if r == nil || r.inner == nil {
		return nil
	}
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == r.retries {
			break
		}
		if serr := r.sleep(ctx, r.strategy.SleepDuration(attempt, err)); serr != nil {
			return fmt.Errorf("%s interrupted after %d attempt(s): %w", op, attempt+1, err)
		}
	}
	return fmt.Errorf("%s failed after %d attempt(s): %w", op, r.retries+1, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
