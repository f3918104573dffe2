package saga

import (
	"fmt"
	"time"
)

// begin starts a fresh session at startIndex.
func (s *session[TID, TData]) begin(startIndex int) {
	s.index = startIndex
	s.hasRecord = true
	if err := s.persist(opSessionStarted); err != nil {
		// nothing ran yet so there is nothing to undo, post actions still run
		s.runPost(ResultFailed)
		return
	}
	s.logger.Debug("session started at step index %d", startIndex)
	s.processSteps()
}

// beginRecovery loads the saved session and either resumes it or undoes the
// completed steps and starts over from the first step.
func (s *session[TID, TData]) beginRecovery(undoFirst bool) {
	if s.tx.store == nil {
		s.logger.Debug("no session store configured, nothing to recover")
		s.end(ResultNoTransactionToRecover)
		return
	}
	snapshot, err := s.tx.store.RecoverTransaction(s.ctx, s.tx.name)
	if err != nil {
		s.errs.add(persistenceError(string(opRecover), err, map[string]any{"transaction": s.tx.name}))
		s.logger.Error("recover transaction failed: %v", err)
		s.end(ResultFailed)
		return
	}
	if snapshot == nil {
		s.logger.Debug("no transaction to recover")
		s.end(ResultNoTransactionToRecover)
		return
	}

	s.recover(*snapshot)
	s.logger.Debug("recovered session at step index %d", s.index)

	if undoFirst {
		s.undoRecovered()
		return
	}
	s.undoRecoveredStep(func() { s.processSteps() })
}

// undoRecovered undoes every completed step of a recovered session, plus the
// recovered step itself when it asks for it, then runs from the first step.
func (s *session[TID, TData]) undoRecovered() {
	restart := func(bool) {
		s.restart()
		s.processSteps()
	}

	if n := s.tx.definition.Len(); s.index >= n {
		s.index = n
	}
	step, ok := s.current()
	if !ok || !step.settings.UndoOnRecover() {
		if !s.decrement() {
			restart(false)
			return
		}
	}
	s.undoSteps(undoPlan[TID]{}, restart)
}

// undoRecoveredStep runs the undo body of the recovered step once when the
// step is flagged UndoOnRecover, leaving the cursor where it is.
func (s *session[TID, TData]) undoRecoveredStep(next func()) {
	step, ok := s.current()
	if !ok || !step.settings.UndoOnRecover() {
		next()
		return
	}
	s.undoSteps(undoPlan[TID]{single: true}, func(bool) { next() })
}

// processSteps is the forward loop. It iterates inline and only returns early
// after handing the rest of the loop to an executor.
func (s *session[TID, TData]) processSteps() {
	for {
		step, ok := s.current()
		if !ok {
			s.runPost(ResultSuccess)
			return
		}

		if err := s.persist(opStepPrepared); err != nil {
			s.compensatePrevious()
			return
		}

		if s.skipForRecovery(step) {
			s.stepLogger(step, "step").Debug("step %s skipped in recovered session", step.label())
			s.increment()
			continue
		}

		if handOff(step.stepExecutor, func() {
			if s.executeStep(step) {
				s.processSteps()
			}
		}) {
			return
		}
		if !s.executeStep(step) {
			return
		}
	}
}

// executeStep runs one step body and reports whether the forward loop should
// continue from the (possibly moved) cursor.
func (s *session[TID, TData]) executeStep(step *stepEntry[TID, TData]) bool {
	log := s.stepLogger(step, "step")
	log.Debug("running step %s", step.label())

	err := s.timed(step, "step", func() error {
		return invokeBody(s.ctx, step.action, s.data, s.stepInfo())
	})
	if err != nil {
		s.move.Store(nil)
		s.errs.add(derive(
			ErrStepFailed,
			fmt.Sprintf("step %v failed: %v", step.id, err),
			err,
			s.fields("step"),
		))
		log.Error("step %s failed: %v", step.label(), err)
		s.undoSteps(undoPlan[TID]{}, func(bool) { s.end(ResultFailed) })
		return false
	}

	if s.cancelled.Load() {
		s.move.Store(nil)
		log.Debug("session cancelled by step %s", step.label())
		s.undoSteps(undoPlan[TID]{}, func(bool) { s.end(ResultCancelled) })
		return false
	}

	if move := s.move.Swap(nil); move != nil {
		if move.direction == moveForward {
			return s.moveForward(move)
		}
		s.moveBack(move)
		return false
	}

	s.increment()
	return true
}

// compensatePrevious handles a failed StepPrepared: only the previous step is
// undone and the run fails without post actions.
func (s *session[TID, TData]) compensatePrevious() {
	if !s.decrement() {
		s.end(ResultFailed)
		return
	}
	s.undoSteps(undoPlan[TID]{single: true}, func(bool) { s.end(ResultFailed) })
}

// end removes the session record, builds the result and delivers it. Only the
// first call has any effect.
func (s *session[TID, TData]) end(intent ResultKind) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	if s.hasRecord {
		_ = s.persist(opRemoveSession)
	}

	kind := s.errs.resolve(intent)
	res := &Result[TData]{
		Kind:        kind,
		Transaction: s.tx.name,
		SessionID:   s.id,
		Data:        s.data,
		Recovered:   s.recovered,
		Errors:      s.errs.errors(),
		StartedAt:   s.startedAt,
		EndedAt:     s.tx.now(),
	}

	s.logger.Info("transaction %s ended: result=%s errors=%d duration=%s",
		s.tx.name, kind, len(res.Errors), res.EndedAt.Sub(res.StartedAt).Round(time.Microsecond))
	if kind == ResultSuccess {
		s.tx.metrics.RecordSuccess(s.tx.name + "." + kind.String())
	} else {
		s.tx.metrics.RecordError(s.tx.name + "." + kind.String())
	}

	deliver := func() {
		if s.settings.OnResult != nil {
			s.settings.OnResult(res)
		}
		s.result <- res
	}
	if !handOff(s.settings.ResultExecutor, deliver) {
		deliver()
	}
}
