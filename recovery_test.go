package saga_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saga "github.com/goliatone/go-saga"
	"github.com/goliatone/go-saga/executor"
	"github.com/goliatone/go-saga/store"
)

func seedSession(t *testing.T, mem *store.Memory[*trace], tr *trace, index int) {
	t.Helper()
	require.NoError(t, mem.Put(saga.Snapshot[*trace]{
		Transaction: "orders",
		SessionID:   "crashed-session",
		StepIndex:   index,
		StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:        tr,
	}))
}

func TestRecoverAndContinueResumesAtCursor(t *testing.T) {
	mem := store.NewMemory[*trace]()
	h := newHarness(t, saga.WithStore[string, *trace](mem)).add(fiveSteps...)
	seedSession(t, mem, h.trace, 2)

	res := h.run(saga.ModeRecoverAndContinue)

	assert.Equal(t, saga.ResultSuccess, res.Kind)
	assert.True(t, res.Recovered)
	assert.Equal(t, "crashed-session", res.SessionID)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), res.StartedAt)
	assert.Equal(t, seq(events("do", "c", "d", "e"), events("post", fiveSteps...)), h.trace.list())
	assert.Empty(t, mem.Records("orders"))
}

func TestRecoverAndUndoAndRunStartsOver(t *testing.T) {
	mem := store.NewMemory[*trace]()
	h := newHarness(t, saga.WithStore[string, *trace](mem)).add(fiveSteps...)
	seedSession(t, mem, h.trace, 2)

	res := h.run(saga.ModeRecoverAndUndoAndRun)

	assert.Equal(t, saga.ResultSuccess, res.Kind)
	assert.True(t, res.Recovered)
	assert.Equal(t, seq(
		events("undo", "b", "a"),
		events("do", fiveSteps...),
		events("post", fiveSteps...),
	), h.trace.list())
}

func TestUndoOnRecoverUndoesRecoveredStep(t *testing.T) {
	t.Run("continue", func(t *testing.T) {
		mem := store.NewMemory[*trace]()
		h := newHarness(t, saga.WithStore[string, *trace](mem)).
			add("a", "b").
			addWith("c", saga.StepUndoOnRecover).
			add("d", "e")
		seedSession(t, mem, h.trace, 2)

		res := h.run(saga.ModeRecoverAndContinue)

		assert.Equal(t, saga.ResultSuccess, res.Kind)
		assert.Equal(t, seq(
			events("undo", "c"),
			events("do", "c", "d", "e"),
			events("post", fiveSteps...),
		), h.trace.list())
	})

	t.Run("undo and run", func(t *testing.T) {
		mem := store.NewMemory[*trace]()
		h := newHarness(t, saga.WithStore[string, *trace](mem)).
			add("a", "b").
			addWith("c", saga.StepUndoOnRecover).
			add("d", "e")
		seedSession(t, mem, h.trace, 2)

		res := h.run(saga.ModeRecoverAndUndoAndRun)

		assert.Equal(t, saga.ResultSuccess, res.Kind)
		assert.Equal(t, seq(
			events("undo", "c", "b", "a"),
			events("do", fiveSteps...),
			events("post", fiveSteps...),
		), h.trace.list())
	})
}

func TestNotRunOnRecoveredSkipsStepInRecoveredSessions(t *testing.T) {
	mem := store.NewMemory[*trace]()
	h := newHarness(t, saga.WithStore[string, *trace](mem)).
		add("a", "b", "c").
		addWith("d", saga.StepNotRunOnRecovered).
		add("e")
	seedSession(t, mem, h.trace, 2)

	res := h.run(saga.ModeRecoverAndContinue)

	assert.Equal(t, saga.ResultSuccess, res.Kind)
	assert.Equal(t, seq(events("do", "c", "e"), events("post", "a", "b", "c", "e")), h.trace.list())

	fresh := &trace{}
	res = h.run(saga.ModeRun, func(rs *saga.RunSettings[string, *trace]) { rs.Data = fresh })
	assert.Equal(t, saga.ResultSuccess, res.Kind)
	assert.Equal(t, seq(events("do", fiveSteps...), events("post", fiveSteps...)), fresh.list())
}

func TestRecoveredIndexPastEndIsClamped(t *testing.T) {
	t.Run("continue", func(t *testing.T) {
		mem := store.NewMemory[*trace]()
		h := newHarness(t, saga.WithStore[string, *trace](mem)).add("a", "b", "c")
		seedSession(t, mem, h.trace, 9)

		res := h.run(saga.ModeRecoverAndContinue)

		assert.Equal(t, saga.ResultSuccess, res.Kind)
		assert.Equal(t, events("post", "a", "b", "c"), h.trace.list())
	})

	t.Run("undo and run", func(t *testing.T) {
		mem := store.NewMemory[*trace]()
		h := newHarness(t, saga.WithStore[string, *trace](mem)).add("a", "b", "c")
		seedSession(t, mem, h.trace, 9)

		res := h.run(saga.ModeRecoverAndUndoAndRun)

		assert.Equal(t, saga.ResultSuccess, res.Kind)
		assert.Equal(t, seq(
			events("undo", "c", "b", "a"),
			events("do", "a", "b", "c"),
			events("post", "a", "b", "c"),
		), h.trace.list())
	})
}

func TestNothingToRecover(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		rec := store.NewRecorder[*trace](store.NewMemory[*trace]())
		h := newHarness(t, saga.WithStore[string, *trace](rec)).add("a")

		res := h.run(saga.ModeRecoverAndContinue)

		assert.Equal(t, saga.ResultNoTransactionToRecover, res.Kind)
		assert.Empty(t, h.trace.list())
		assert.Equal(t, []string{store.OpRecoverTransaction}, rec.Ops())
	})

	t.Run("no store", func(t *testing.T) {
		h := newHarness(t).add("a")

		res := h.run(saga.ModeRecoverAndUndoAndRun)

		assert.Equal(t, saga.ResultNoTransactionToRecover, res.Kind)
		assert.Empty(t, res.Errors)
	})
}

func TestRecoverReadFailure(t *testing.T) {
	rec := store.NewRecorder[*trace](nil).FailOn(store.OpRecoverTransaction, errors.New("disk gone"))
	h := newHarness(t, saga.WithStore[string, *trace](rec)).add("a")

	res := h.run(saga.ModeRecoverAndContinue)

	assert.Equal(t, saga.ResultFailed, res.Kind)
	assert.Equal(t, []string{saga.ErrCodePersistenceFailed}, codes(res))
	assert.Equal(t, []string{store.OpRecoverTransaction}, rec.Ops())
	assert.Empty(t, h.trace.list())
}

func TestPersistenceCallOrder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rec := store.NewRecorder[*trace](nil)
		h := newHarness(t, saga.WithStore[string, *trace](rec)).add("a", "b")

		res := h.run(saga.ModeRun)

		assert.Equal(t, saga.ResultSuccess, res.Kind)
		assert.Equal(t, []string{
			store.OpSessionStarted, store.OpStepPrepared, store.OpStepPrepared, store.OpRemoveSession,
		}, rec.Ops())
		calls := rec.Calls()
		assert.Equal(t, 0, calls[1].StepIndex)
		assert.Equal(t, 1, calls[2].StepIndex)
		for _, call := range calls {
			assert.Equal(t, "orders", call.Transaction)
			assert.Equal(t, res.SessionID, call.SessionID)
		}
	})

	t.Run("failure", func(t *testing.T) {
		rec := store.NewRecorder[*trace](nil)
		h := newHarness(t, saga.WithStore[string, *trace](rec)).add("a", "b")
		h.actions["b"] = failWith("nope")

		h.run(saga.ModeRun)

		assert.Equal(t, []string{
			store.OpSessionStarted, store.OpStepPrepared, store.OpStepPrepared,
			store.OpStepReceding, store.OpStepReceding, store.OpRemoveSession,
		}, rec.Ops())
	})
}

func TestSessionStartedFailureRunsPostsOnly(t *testing.T) {
	rec := store.NewRecorder[*trace](nil).FailOn(store.OpSessionStarted, errors.New("db locked"))
	h := newHarness(t, saga.WithStore[string, *trace](rec)).add("a", "b")

	res := h.run(saga.ModeRun)

	assert.Equal(t, saga.ResultFailed, res.Kind)
	assert.Equal(t, events("post", "a", "b"), h.trace.list())
	assert.Equal(t, []string{saga.ErrCodePersistenceFailed}, codes(res))
	assert.Equal(t, []string{store.OpSessionStarted, store.OpRemoveSession}, rec.Ops())
}

func TestStepPreparedFailureUndoesPreviousStep(t *testing.T) {
	rec := store.NewRecorder[*trace](nil).FailAfter(store.OpStepPrepared, 2, errors.New("db locked"))
	h := newHarness(t, saga.WithStore[string, *trace](rec)).add("a", "b", "c", "d")

	res := h.run(saga.ModeRun)

	assert.Equal(t, saga.ResultFailed, res.Kind)
	assert.Equal(t, []string{"do:a", "do:b", "undo:b"}, h.trace.list())
	assert.Equal(t, []string{saga.ErrCodePersistenceFailed}, codes(res))
	assert.Equal(t, []string{
		store.OpSessionStarted, store.OpStepPrepared, store.OpStepPrepared, store.OpStepPrepared,
		store.OpStepReceding, store.OpRemoveSession,
	}, rec.Ops())
}

func TestStepRecedingFailureKeepsUndoing(t *testing.T) {
	rec := store.NewRecorder[*trace](nil).FailOn(store.OpStepReceding, errors.New("db locked"))
	h := newHarness(t, saga.WithStore[string, *trace](rec)).add("a", "b", "c")
	h.actions["c"] = failWith("nope")

	res := h.run(saga.ModeRun)

	assert.Equal(t, saga.ResultFailed, res.Kind)
	assert.Equal(t, seq(events("do", "a", "b", "c"), events("undo", "c", "b", "a")), h.trace.list())
	assert.Equal(t, []string{
		saga.ErrCodeStepFailed,
		saga.ErrCodePersistenceFailed,
		saga.ErrCodePersistenceFailed,
		saga.ErrCodePersistenceFailed,
	}, codes(res))
}

func TestRemoveSessionFailureFailsSuccessfulRun(t *testing.T) {
	rec := store.NewRecorder[*trace](nil).FailOn(store.OpRemoveSession, errors.New("db locked"))
	h := newHarness(t, saga.WithStore[string, *trace](rec)).add("a", "b")

	res := h.run(saga.ModeRun)

	assert.Equal(t, saga.ResultFailed, res.Kind)
	assert.Equal(t, seq(events("do", "a", "b"), events("post", "a", "b")), h.trace.list())
	assert.Equal(t, []string{saga.ErrCodePersistenceFailed}, codes(res))
}

func TestInterruptedRunKeepsSessionRecord(t *testing.T) {
	mem := store.NewMemory[*trace]()
	h := newHarness(t, saga.WithStore[string, *trace](mem)).add("a", "b")

	release := make(chan struct{})
	blocked := h.step("c", saga.StepSettingsNone)
	blocked.StepExecutor = executor.Goroutine{}
	h.actions["c"] = func(saga.StepInfo[string]) error {
		<-release
		return nil
	}
	require.NoError(t, h.tx.Add(blocked))

	done, err := h.tx.Start(context.Background(), func(rs *saga.RunSettings[string, *trace]) {
		rs.Data = h.trace
	})
	require.NoError(t, err)

	records := mem.Records("orders")
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Snapshot.StepIndex)
	assert.Equal(t, store.StatusRunning, records[0].Status)

	close(release)
	select {
	case res := <-done:
		assert.Equal(t, saga.ResultSuccess, res.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected run to finish")
	}
	assert.Empty(t, mem.Records("orders"))
}
