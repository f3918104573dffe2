package saga

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transaction runs an ordered list of steps against a shared payload,
// compensating completed steps on failure or cancellation.
type Transaction[TID comparable, TData any] struct {
	name       string
	definition *Definition[TID, TData]

	store            SessionStore[TData]
	logger           Logger
	metrics          MetricsRecorder
	now              func() time.Time
	newID            func() string
	logExecutionTime bool
}

// New creates a transaction with an empty definition.
func New[TID comparable, TData any](name string, opts ...Option[TID, TData]) *Transaction[TID, TData] {
	name = strings.TrimSpace(name)
	t := &Transaction[TID, TData]{
		name:       name,
		definition: newDefinition[TID, TData](name),
		logger:     defaultLogger(),
		metrics:    nopMetrics{},
		now:        func() time.Time { return time.Now().UTC() },
		newID:      newSessionID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func newSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Name returns the transaction name.
func (t *Transaction[TID, TData]) Name() string { return t.name }

// Definition returns the step registry.
func (t *Transaction[TID, TData]) Definition() *Definition[TID, TData] { return t.definition }

// Add validates and appends a step to the definition.
func (t *Transaction[TID, TData]) Add(step Step[TID, TData]) error {
	return t.definition.Add(step)
}

// AddAll appends a batch of steps, preserving order.
func (t *Transaction[TID, TData]) AddAll(steps ...Step[TID, TData]) error {
	return t.definition.AddAll(steps...)
}

// InsertAt inserts steps at the given index.
func (t *Transaction[TID, TData]) InsertAt(index int, steps ...Step[TID, TData]) error {
	return t.definition.InsertAt(index, steps...)
}

// InsertBefore inserts steps before the first step with the given id.
func (t *Transaction[TID, TData]) InsertBefore(id TID, steps ...Step[TID, TData]) error {
	return t.definition.InsertBefore(id, steps...)
}

// InsertBeforeFunc inserts steps before the first step matching eq.
func (t *Transaction[TID, TData]) InsertBeforeFunc(id TID, eq EqualFunc[TID], steps ...Step[TID, TData]) error {
	return t.definition.InsertBeforeFunc(id, eq, steps...)
}

// InsertAfter inserts steps after the first step with the given id.
func (t *Transaction[TID, TData]) InsertAfter(id TID, steps ...Step[TID, TData]) error {
	return t.definition.InsertAfter(id, steps...)
}

// InsertAfterFunc inserts steps after the first step matching eq.
func (t *Transaction[TID, TData]) InsertAfterFunc(id TID, eq EqualFunc[TID], steps ...Step[TID, TData]) error {
	return t.definition.InsertAfterFunc(id, eq, steps...)
}

// Run executes the transaction and blocks until the result is delivered.
// Executors may move the run to other goroutines; Run waits for them. The
// returned error is reserved for usage errors; run failures are reported in
// the Result.
func (t *Transaction[TID, TData]) Run(ctx context.Context, configure func(*RunSettings[TID, TData])) (*Result[TData], error) {
	done, err := t.Start(ctx, configure)
	if err != nil {
		return nil, err
	}
	return <-done, nil
}

// Start begins a run and returns a channel receiving its single result.
func (t *Transaction[TID, TData]) Start(ctx context.Context, configure func(*RunSettings[TID, TData])) (<-chan *Result[TData], error) {
	if t == nil || t.definition == nil {
		return nil, derive(ErrInvalidTransaction, "transaction is not initialized", nil, nil)
	}
	if configure == nil {
		return nil, derive(
			ErrInvalidTransaction,
			fmt.Sprintf("run configuration is required for transaction %q", t.name),
			nil,
			map[string]any{"transaction": t.name},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	settings := RunSettings[TID, TData]{Mode: ModeRun}
	configure(&settings)
	if !settings.Mode.valid() {
		return nil, derive(
			ErrInvalidRunMode,
			fmt.Sprintf("unknown run mode %s for transaction %q", settings.Mode, t.name),
			nil,
			map[string]any{"transaction": t.name, "mode": int(settings.Mode)},
		)
	}

	startIndex := 0
	if settings.Mode == ModeRunFromStep {
		startIndex = t.definition.IndexOfFunc(settings.StartStep, settings.StartStepEqual)
		if startIndex < 0 {
			return nil, stepNotFoundError(t.name, settings.StartStep)
		}
	}

	t.definition.notifyRunStarted()

	s := newSession(ctx, t, settings)
	if settings.Mode.recovering() {
		s.beginRecovery(settings.Mode == ModeRecoverAndUndoAndRun)
	} else {
		s.begin(startIndex)
	}
	return s.result, nil
}
