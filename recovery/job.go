package recovery

import (
	"context"
	"fmt"

	saga "github.com/goliatone/go-saga"
)

// Transaction is the part of saga.Transaction a sweep drives.
type Transaction[TID comparable, TData any] interface {
	Name() string
	Run(ctx context.Context, configure func(*saga.RunSettings[TID, TData])) (*saga.Result[TData], error)
}

// JobOption configures a recovery job.
type JobOption[TData any] func(*jobConfig[TData])

type jobConfig[TData any] struct {
	onResult         func(*saga.Result[TData])
	logExecutionTime bool
}

// OnResult receives the result of every sweep, including
// NoTransactionToRecover.
func OnResult[TData any](fn func(*saga.Result[TData])) JobOption[TData] {
	return func(c *jobConfig[TData]) {
		c.onResult = fn
	}
}

// LogExecutionTime records execution time for every step of recovered runs.
func LogExecutionTime[TData any](enabled bool) JobOption[TData] {
	return func(c *jobConfig[TData]) {
		c.logExecutionTime = enabled
	}
}

// RecoverJob builds a sweep running tx in a recovery mode. A sweep that finds
// nothing to recover succeeds; a recovered run ending Failed reports its
// aggregated errors.
func RecoverJob[TID comparable, TData any](tx Transaction[TID, TData], mode saga.RunMode, opts ...JobOption[TData]) (Job, error) {
	if tx == nil {
		return nil, fmt.Errorf("recovery transaction cannot be nil")
	}
	if mode != saga.ModeRecoverAndContinue && mode != saga.ModeRecoverAndUndoAndRun {
		return nil, fmt.Errorf("recovery %q: mode %s does not recover a session", tx.Name(), mode)
	}

	cfg := jobConfig[TData]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(ctx context.Context) error {
		result, err := tx.Run(ctx, func(rs *saga.RunSettings[TID, TData]) {
			rs.Mode = mode
			rs.LogExecutionTime = cfg.logExecutionTime
		})
		if err != nil {
			return err
		}
		if cfg.onResult != nil {
			cfg.onResult(result)
		}
		if result.Kind == saga.ResultFailed {
			return result.Err()
		}
		return nil
	}, nil
}

// ScheduleRecovery registers a recurring recovery sweep of tx.
func ScheduleRecovery[TID comparable, TData any](s *Scheduler, expression string, tx Transaction[TID, TData], mode saga.RunMode, opts ...JobOption[TData]) (Handle, error) {
	if s == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	job, err := RecoverJob(tx, mode, opts...)
	if err != nil {
		return nil, err
	}
	return s.Schedule(tx.Name(), expression, job)
}
