package saga_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saga "github.com/goliatone/go-saga"
)

func noop(context.Context, *trace, saga.StepInfo[string]) error { return nil }

func TestAddValidatesSteps(t *testing.T) {
	tx := saga.New[string, *trace]("orders")

	err := tx.Add(saga.Step[string, *trace]{ID: "a"})
	assert.True(t, saga.HasCode(err, saga.ErrCodeInvalidStep))

	err = tx.Add(saga.Step[string, *trace]{
		ID:     "a",
		Action: noop,
		AsyncAction: func(context.Context, *trace, saga.StepInfo[string]) <-chan error {
			return nil
		},
	})
	assert.True(t, saga.HasCode(err, saga.ErrCodeInvalidStep))

	err = tx.Add(saga.Step[string, *trace]{
		ID:     "a",
		Action: noop,
		Undo:   func(context.Context, *trace, saga.UndoInfo[string]) error { return nil },
		AsyncUndo: func(context.Context, *trace, saga.UndoInfo[string]) <-chan error {
			return nil
		},
	})
	assert.True(t, saga.HasCode(err, saga.ErrCodeInvalidStep))

	err = tx.AddAll(
		saga.Step[string, *trace]{ID: "ok", Action: noop},
		saga.Step[string, *trace]{ID: "broken"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Zero(t, tx.Definition().Len())
}

func TestInsertOperations(t *testing.T) {
	tx := saga.New[string, *trace]("orders")
	step := func(id string) saga.Step[string, *trace] {
		return saga.Step[string, *trace]{ID: id, Action: noop}
	}

	require.NoError(t, tx.AddAll(step("b"), step("d")))
	require.NoError(t, tx.InsertAt(0, step("a")))
	require.NoError(t, tx.InsertBefore("d", step("c")))
	require.NoError(t, tx.InsertAfter("d", step("e"), step("f")))
	require.NoError(t, tx.InsertAt(tx.Definition().Len(), step("g")))
	require.NoError(t, tx.InsertAfterFunc("B", strings.EqualFold, step("b2")))
	require.NoError(t, tx.InsertBeforeFunc("A", strings.EqualFold, step("start")))

	assert.Equal(t, []string{"start", "a", "b", "b2", "c", "d", "e", "f", "g"}, tx.Definition().IDs())
	assert.Equal(t, 5, tx.Definition().IndexOf("d"))
	assert.Equal(t, -1, tx.Definition().IndexOf("zz"))
	assert.Equal(t, 2, tx.Definition().IndexOfFunc("B", strings.EqualFold))

	err := tx.InsertAt(42, step("x"))
	assert.True(t, saga.HasCode(err, saga.ErrCodeIndexOutOfRange))
	err = tx.InsertAt(-1, step("x"))
	assert.True(t, saga.HasCode(err, saga.ErrCodeIndexOutOfRange))
	err = tx.InsertBefore("zz", step("x"))
	assert.True(t, saga.HasCode(err, saga.ErrCodeStepNotFound))
	err = tx.InsertAfter("zz", step("x"))
	assert.True(t, saga.HasCode(err, saga.ErrCodeStepNotFound))
	assert.Equal(t, 9, tx.Definition().Len())
}

func TestInsertBeforeUsesFirstMatch(t *testing.T) {
	tx := saga.New[string, *trace]("orders")
	step := func(id string) saga.Step[string, *trace] {
		return saga.Step[string, *trace]{ID: id, Action: noop}
	}
	require.NoError(t, tx.AddAll(step("a"), step("dup"), step("dup")))
	require.NoError(t, tx.InsertBefore("dup", step("x")))

	assert.Equal(t, []string{"a", "x", "dup", "dup"}, tx.Definition().IDs())
}

func TestDefinitionFreezesOnFirstRun(t *testing.T) {
	h := newHarness(t).add("a")
	assert.False(t, h.tx.Definition().Started())

	h.run(saga.ModeRun)
	assert.True(t, h.tx.Definition().Started())

	next := h.step("b", saga.StepSettingsNone)
	for name, err := range map[string]error{
		"add":           h.tx.Add(next),
		"add all":       h.tx.AddAll(next),
		"insert at":     h.tx.InsertAt(0, next),
		"insert before": h.tx.InsertBefore("a", next),
		"insert after":  h.tx.InsertAfter("a", next),
	} {
		assert.True(t, saga.HasCode(err, saga.ErrCodeDefinitionFrozen), name)
	}
	assert.Equal(t, []string{"a"}, h.tx.Definition().IDs())
}

func TestParseStepSettings(t *testing.T) {
	settings, err := saga.ParseStepSettings([]string{"undo_on_recover", "Log-Execution-Time"})
	require.NoError(t, err)
	assert.True(t, settings.UndoOnRecover())
	assert.True(t, settings.LogExecutionTime())
	assert.False(t, settings.NotRunOnRecovered())
	assert.False(t, settings.SameExecutorForAllActions())
	assert.Equal(t, "undo_on_recover|log_execution_time", settings.String())
	assert.Equal(t, "none", saga.StepSettingsNone.String())

	_, err = saga.ParseStepSettings([]string{"undo_on_recover", "turbo"})
	assert.Error(t, err)
}

func TestParseRunMode(t *testing.T) {
	cases := map[string]saga.RunMode{
		"":                         saga.ModeRun,
		"run":                      saga.ModeRun,
		"run-from-step":            saga.ModeRunFromStep,
		"RECOVER_AND_CONTINUE":     saga.ModeRecoverAndContinue,
		"recover_and_undo_and_run": saga.ModeRecoverAndUndoAndRun,
	}
	for name, want := range cases {
		got, err := saga.ParseRunMode(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := saga.ParseRunMode("sideways")
	assert.True(t, saga.HasCode(err, saga.ErrCodeInvalidRunMode))
	assert.Equal(t, "recover_and_continue", saga.ModeRecoverAndContinue.String())
}

func TestErrorCodeHelpers(t *testing.T) {
	assert.Equal(t, "", saga.ErrorCode(nil))
	assert.False(t, saga.HasCode(nil, saga.ErrCodeStepFailed))
	assert.False(t, saga.HasCode(saga.ErrStepFailed, ""))
	assert.Equal(t, saga.ErrCodeStepFailed, saga.ErrorCode(saga.ErrStepFailed))
	assert.Equal(t, "", saga.ErrorCode(context.Canceled))
}
