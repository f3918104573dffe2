package saga

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// session is the mutable state of one run. Only the engine writes the cursor;
// hand-offs between executors serialize access to it.
type session[TID comparable, TData any] struct {
	tx       *Transaction[TID, TData]
	ctx      context.Context
	settings RunSettings[TID, TData]
	logger   Logger

	id        string
	startedAt time.Time
	index     int
	data      TData
	recovered bool

	// hasRecord is set once a session record may exist in the store.
	hasRecord bool

	cancelled atomic.Bool
	ended     atomic.Bool
	move      atomic.Pointer[moveRequest[TID]]

	errs   aggregator
	result chan *Result[TData]
}

func newSession[TID comparable, TData any](ctx context.Context, tx *Transaction[TID, TData], settings RunSettings[TID, TData]) *session[TID, TData] {
	s := &session[TID, TData]{
		tx:        tx,
		ctx:       ctx,
		settings:  settings,
		id:        tx.newID(),
		startedAt: tx.now(),
		data:      settings.Data,
		result:    make(chan *Result[TData], 1),
	}
	s.logger = scopedLogger(tx.logger, ctx, map[string]any{
		"transaction": tx.name,
		"session_id":  s.id,
	})
	return s
}

func (s *session[TID, TData]) current() (*stepEntry[TID, TData], bool) {
	return s.tx.definition.stepAt(s.index)
}

func (s *session[TID, TData]) increment() { s.index++ }

// decrement moves the cursor back one step and reports false when it is
// already on the first step.
func (s *session[TID, TData]) decrement() bool {
	if s.index <= 0 {
		s.index = 0
		return false
	}
	s.index--
	return true
}

func (s *session[TID, TData]) restart() { s.index = 0 }

func (s *session[TID, TData]) recover(snapshot Snapshot[TData]) {
	s.recovered = true
	s.hasRecord = true
	s.index = snapshot.StepIndex
	if s.index < 0 {
		s.index = 0
	}
	s.data = snapshot.Data
	if snapshot.SessionID != "" {
		s.id = snapshot.SessionID
	}
	if !snapshot.StartedAt.IsZero() {
		s.startedAt = snapshot.StartedAt
	}
	s.logger = scopedLogger(s.tx.logger, s.ctx, map[string]any{
		"transaction": s.tx.name,
		"session_id":  s.id,
		"recovered":   true,
	})
}

func (s *session[TID, TData]) snapshot() Snapshot[TData] {
	return Snapshot[TData]{
		Transaction: s.tx.name,
		SessionID:   s.id,
		StepIndex:   s.index,
		StartedAt:   s.startedAt,
		Data:        s.data,
	}
}

// skipForRecovery reports whether a step must be left alone in this session.
func (s *session[TID, TData]) skipForRecovery(step *stepEntry[TID, TData]) bool {
	return s.recovered && step.settings.NotRunOnRecovered()
}

func (s *session[TID, TData]) logExecutionTime(step *stepEntry[TID, TData]) bool {
	return step.settings.LogExecutionTime() || s.settings.LogExecutionTime || s.tx.logExecutionTime
}

func (s *session[TID, TData]) stepLogger(step *stepEntry[TID, TData], phase string) Logger {
	return scopedLogger(s.logger, nil, map[string]any{
		"step_id":    fmt.Sprint(step.id),
		"step_index": s.index,
		"phase":      phase,
	})
}

func (s *session[TID, TData]) fields(phase string) map[string]any {
	out := map[string]any{
		"transaction": s.tx.name,
		"session_id":  s.id,
		"step_index":  s.index,
		"phase":       phase,
	}
	if step, ok := s.current(); ok {
		out["step_id"] = fmt.Sprint(step.id)
	}
	return out
}

// persist calls the store and records any failure in the run errors.
func (s *session[TID, TData]) persist(op storeOp) error {
	if s.tx.store == nil {
		return nil
	}
	if err := callStore(s.ctx, s.tx.store, op, s.snapshot()); err != nil {
		wrapped := persistenceError(string(op), err, s.fields(string(op)))
		s.errs.add(wrapped)
		s.logger.Error("persistence %s failed: %v", op, err)
		return wrapped
	}
	return nil
}

// timed runs fn, recording its duration when the step or run asks for it.
func (s *session[TID, TData]) timed(step *stepEntry[TID, TData], phase string, fn func() error) error {
	if !s.logExecutionTime(step) {
		return fn()
	}
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	label := fmt.Sprintf("%s.%s.%v", s.tx.name, phase, step.id)
	s.stepLogger(step, phase).Info("execution time %s: %s", label, elapsed)
	s.tx.metrics.RecordDuration(label, elapsed)
	return err
}

func (s *session[TID, TData]) stepInfo() StepInfo[TID] {
	return stepView[TID, TData]{infoView[TID, TData]{s: s}}
}

func (s *session[TID, TData]) undoInfo() UndoInfo[TID] {
	return infoView[TID, TData]{s: s}
}

func (s *session[TID, TData]) postInfo() PostInfo[TID] {
	return infoView[TID, TData]{s: s}
}
