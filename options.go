package saga

import (
	"fmt"
	"strings"
	"time"
)

// Option configures a Transaction.
type Option[TID comparable, TData any] func(*Transaction[TID, TData])

// WithStore sets the persistence collaborator. nil disables persistence.
func WithStore[TID comparable, TData any](store SessionStore[TData]) Option[TID, TData] {
	return func(t *Transaction[TID, TData]) {
		t.store = store
	}
}

// WithLogger sets the logger; nil restores the default info-level stdout logger.
func WithLogger[TID comparable, TData any](logger Logger) Option[TID, TData] {
	return func(t *Transaction[TID, TData]) {
		if logger == nil {
			logger = defaultLogger()
		}
		t.logger = logger
	}
}

// WithMetrics sets the recorder receiving execution times and outcomes.
func WithMetrics[TID comparable, TData any](recorder MetricsRecorder) Option[TID, TData] {
	return func(t *Transaction[TID, TData]) {
		t.metrics = normalizeMetrics(recorder)
	}
}

// WithClock overrides the time source used for session timestamps.
func WithClock[TID comparable, TData any](now func() time.Time) Option[TID, TData] {
	return func(t *Transaction[TID, TData]) {
		if now != nil {
			t.now = now
		}
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator[TID comparable, TData any](next func() string) Option[TID, TData] {
	return func(t *Transaction[TID, TData]) {
		if next != nil {
			t.newID = next
		}
	}
}

// WithLogExecutionTime records execution time for every body of every step.
func WithLogExecutionTime[TID comparable, TData any](enabled bool) Option[TID, TData] {
	return func(t *Transaction[TID, TData]) {
		t.logExecutionTime = enabled
	}
}

// RunMode selects how a run obtains its session.
type RunMode int

const (
	// ModeRun starts a fresh session at the first step.
	ModeRun RunMode = iota
	// ModeRunFromStep starts a fresh session at RunSettings.StartStep.
	ModeRunFromStep
	// ModeRecoverAndUndoAndRun recovers a saved session, undoes the completed
	// steps and runs again from the first step.
	ModeRecoverAndUndoAndRun
	// ModeRecoverAndContinue recovers a saved session and resumes at its cursor.
	ModeRecoverAndContinue
)

var runModeNames = map[RunMode]string{
	ModeRun:                  "run",
	ModeRunFromStep:          "run_from_step",
	ModeRecoverAndUndoAndRun: "recover_and_undo_and_run",
	ModeRecoverAndContinue:   "recover_and_continue",
}

func (m RunMode) String() string {
	if name, ok := runModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("run_mode(%d)", int(m))
}

func (m RunMode) valid() bool {
	_, ok := runModeNames[m]
	return ok
}

func (m RunMode) recovering() bool {
	return m == ModeRecoverAndContinue || m == ModeRecoverAndUndoAndRun
}

// ParseRunMode resolves a config name such as "recover_and_continue".
func ParseRunMode(name string) (RunMode, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if key == "" {
		return ModeRun, nil
	}
	for mode, modeName := range runModeNames {
		if modeName == key {
			return mode, nil
		}
	}
	return ModeRun, derive(ErrInvalidRunMode, fmt.Sprintf("unknown run mode %q", name), nil, nil)
}

// RunSettings is filled by the configure callback passed to Run.
type RunSettings[TID comparable, TData any] struct {
	Mode RunMode
	// Data is the payload of a fresh run. Recovery modes use the saved payload.
	Data TData
	// StartStep and StartStepEqual select the first step for ModeRunFromStep.
	StartStep      TID
	StartStepEqual EqualFunc[TID]
	// OnResult receives the terminal result, through ResultExecutor when set.
	OnResult       func(*Result[TData])
	ResultExecutor Executor
	// LogExecutionTime records execution time for every step of this run.
	LogExecutionTime bool
}
