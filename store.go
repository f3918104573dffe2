package saga

import (
	"context"
	"time"
)

// Snapshot is the persisted progress of a session.
type Snapshot[TData any] struct {
	Transaction string    `json:"transaction"`
	SessionID   string    `json:"session_id"`
	StepIndex   int       `json:"step_index"`
	StartedAt   time.Time `json:"started_at"`
	Data        TData     `json:"data"`
}

// SessionStore durably records run progress so a crashed run can be recovered.
// A transaction without a store performs no persistence calls at all.
type SessionStore[TData any] interface {
	// SessionStarted is called once when a fresh run begins.
	SessionStarted(ctx context.Context, snapshot Snapshot[TData]) error
	// StepPrepared is called before each step body runs.
	StepPrepared(ctx context.Context, snapshot Snapshot[TData]) error
	// StepReceding is called after each successful undo body.
	StepReceding(ctx context.Context, snapshot Snapshot[TData]) error
	// RemoveSession is called once when the run ends, whatever the outcome.
	RemoveSession(ctx context.Context, snapshot Snapshot[TData]) error
	// RecoverTransaction returns the saved snapshot for the transaction, or
	// nil when there is nothing to recover.
	RecoverTransaction(ctx context.Context, transaction string) (*Snapshot[TData], error)
}

type storeOp string

const (
	opSessionStarted storeOp = "session_started"
	opStepPrepared   storeOp = "step_prepared"
	opStepReceding   storeOp = "step_receding"
	opRemoveSession  storeOp = "remove_session"
	opRecover        storeOp = "recover_transaction"
)

func callStore[TData any](ctx context.Context, store SessionStore[TData], op storeOp, snapshot Snapshot[TData]) error {
	switch op {
	case opSessionStarted:
		return store.SessionStarted(ctx, snapshot)
	case opStepPrepared:
		return store.StepPrepared(ctx, snapshot)
	case opStepReceding:
		return store.StepReceding(ctx, snapshot)
	case opRemoveSession:
		return store.RemoveSession(ctx, snapshot)
	default:
		return nil
	}
}
