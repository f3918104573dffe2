package config

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"

	saga "github.com/goliatone/go-saga"
	"github.com/goliatone/go-saga/executor"
	"github.com/goliatone/go-saga/recovery"
	"github.com/goliatone/go-saga/store"
)

// SQLiteDriverName is the database/sql driver used for the sqlite store.
// The host registers it, e.g. by importing github.com/mattn/go-sqlite3.
var SQLiteDriverName = "sqlite3"

// BuildContext bundles what Build needs beyond the config itself.
type BuildContext[TData any] struct {
	Handlers *HandlerRegistry[TData]
	// Store overrides the store described by the config.
	Store   saga.SessionStore[TData]
	Logger  saga.Logger
	Metrics saga.MetricsRecorder
	// Queue is shared by steps using the queue executor. Build creates and
	// owns one when nil.
	Queue *executor.Queue
}

// Built is a transaction assembled from config together with the resources
// it owns.
type Built[TData any] struct {
	Transaction *saga.Transaction[string, TData]
	Mode        saga.RunMode
	Store       saga.SessionStore[TData]

	cfg     TransactionConfig
	closers []func() error
}

// Build constructs a transaction from cfg.
func Build[TData any](ctx context.Context, cfg TransactionConfig, bctx BuildContext[TData]) (*Built[TData], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bctx.Handlers == nil {
		return nil, fmt.Errorf("transaction %s: handler registry is required", cfg.Name)
	}
	mode, err := saga.ParseRunMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	built := &Built[TData]{Mode: mode, cfg: cfg}

	sessionStore := bctx.Store
	if sessionStore == nil {
		var closer func() error
		sessionStore, closer, err = OpenStore[TData](ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", cfg.Name, err)
		}
		built.addCloser(closer)
	}
	built.Store = sessionStore

	opts := []saga.Option[string, TData]{
		saga.WithLogExecutionTime[string, TData](cfg.LogExecutionTime),
	}
	if sessionStore != nil {
		opts = append(opts, saga.WithStore[string, TData](sessionStore))
	}
	if bctx.Logger != nil {
		opts = append(opts, saga.WithLogger[string, TData](bctx.Logger))
	}
	if bctx.Metrics != nil {
		opts = append(opts, saga.WithMetrics[string, TData](bctx.Metrics))
	}
	tx := saga.New[string, TData](cfg.Name, opts...)

	queue := bctx.Queue
	steps := make([]saga.Step[string, TData], 0, len(cfg.Steps))
	for _, sc := range cfg.Steps {
		handlers, ok := bctx.Handlers.Lookup(sc.Handler)
		if !ok {
			_ = built.Close()
			return nil, fmt.Errorf("transaction %s step %s: handler %s not registered", cfg.Name, sc.ID, sc.Handler)
		}
		settings, err := saga.ParseStepSettings(sc.Settings)
		if err != nil {
			_ = built.Close()
			return nil, err
		}

		var exec saga.Executor
		switch strings.ToLower(strings.TrimSpace(sc.Executor)) {
		case ExecutorGoroutine:
			exec = executor.Goroutine{}
		case ExecutorQueue:
			if queue == nil {
				queue = executor.NewQueue()
				q := queue
				built.addCloser(func() error {
					q.Close()
					return nil
				})
			}
			exec = queue
		}

		steps = append(steps, saga.Step[string, TData]{
			ID:           sc.ID,
			Description:  sc.Description,
			Action:       handlers.Action,
			Undo:         handlers.Undo,
			Post:         handlers.Post,
			StepExecutor: exec,
			Settings:     settings,
		})
	}
	if err := tx.AddAll(steps...); err != nil {
		_ = built.Close()
		return nil, err
	}

	built.Transaction = tx
	return built, nil
}

// OpenStore opens the store described by cfg. It returns a nil store when no
// driver is configured, and a closer releasing the store's connections.
func OpenStore[TData any](ctx context.Context, cfg StoreConfig) (saga.SessionStore[TData], func() error, error) {
	s, closer, err := openDriver[TData](ctx, cfg)
	if err != nil || s == nil || cfg.Retry == nil || cfg.Retry.Retries == 0 {
		return s, closer, err
	}
	factor := cfg.Retry.Factor
	if factor == 0 {
		factor = 2
	}
	return store.NewRetrying[TData](s, cfg.Retry.Retries, store.ExponentialBackoff{
		Base:   cfg.Retry.Base,
		Factor: factor,
		Max:    cfg.Retry.Max,
	}), closer, nil
}

func openDriver[TData any](ctx context.Context, cfg StoreConfig) (saga.SessionStore[TData], func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "":
		return nil, nil, nil
	case DriverMemory:
		return store.NewMemory[TData](), nil, nil
	case DriverSQLite:
		db, err := sql.Open(SQLiteDriverName, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if strings.Contains(cfg.DSN, ":memory:") {
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store.NewSQLite[TData](db, cfg.Table), db.Close, nil
	case DriverRedis:
		client, err := store.DialRedis(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return store.NewRedis[TData](client, cfg.TTL).WithPrefix(cfg.KeyPrefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Run starts a run in the configured mode.
func (b *Built[TData]) Run(ctx context.Context, data TData, configure ...func(*saga.RunSettings[string, TData])) (*saga.Result[TData], error) {
	return b.Transaction.Run(ctx, func(rs *saga.RunSettings[string, TData]) {
		rs.Mode = b.Mode
		rs.Data = data
		for _, fn := range configure {
			if fn != nil {
				fn(rs)
			}
		}
	})
}

// ScheduleRecovery registers the configured recovery sweep with s. It
// returns nil when the config has no recovery section.
func (b *Built[TData]) ScheduleRecovery(s *recovery.Scheduler, opts ...recovery.JobOption[TData]) (recovery.Handle, error) {
	if b.cfg.Recovery == nil {
		return nil, nil
	}
	mode, err := b.cfg.Recovery.RunMode()
	if err != nil {
		return nil, err
	}
	return recovery.ScheduleRecovery[string, TData](s, b.cfg.Recovery.Schedule, b.Transaction, mode, opts...)
}

// Close releases the store connections and the queue owned by Build.
func (b *Built[TData]) Close() error {
	if b == nil {
		return nil
	}
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	if len(errs) > 0 {
		return apperrors.Join(errs...)
	}
	return nil
}

func (b *Built[TData]) addCloser(fn func() error) {
	if fn != nil {
		b.closers = append(b.closers, fn)
	}
}
