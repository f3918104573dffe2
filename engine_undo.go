package saga

import "fmt"

// undoPlan bounds an undo walk.
type undoPlan[TID comparable] struct {
	// target stops the walk before undoing the first step matching it.
	target *moveRequest[TID]
	// single stops the walk after the step under the cursor.
	single bool
}

// undoSteps walks the cursor backward from its current position running undo
// bodies. next receives true when the walk stopped on plan.target and false
// when it ran out of steps (or finished a single-step walk). next is never
// called when an undo body fails: the run ends as failed instead.
func (s *session[TID, TData]) undoSteps(plan undoPlan[TID], next func(found bool)) {
	for {
		step, ok := s.current()
		if !ok {
			if !s.decrement() {
				next(false)
				return
			}
			continue
		}

		if plan.target != nil && plan.target.matches(step.id) {
			next(true)
			return
		}

		if !step.hasUndo() || s.skipForRecovery(step) {
			s.stepLogger(step, "undo").Debug("undo of step %s skipped", step.label())
			if !s.advanceUndo(plan) {
				next(false)
				return
			}
			continue
		}

		if handOff(step.resolvedUndoExecutor(), func() {
			if !s.undoStep(step) {
				return
			}
			if !s.advanceUndo(plan) {
				next(false)
				return
			}
			s.undoSteps(plan, next)
		}) {
			return
		}

		if !s.undoStep(step) {
			return
		}
		if !s.advanceUndo(plan) {
			next(false)
			return
		}
	}
}

// advanceUndo moves the cursor to the next step to undo and reports whether
// the walk continues.
func (s *session[TID, TData]) advanceUndo(plan undoPlan[TID]) bool {
	if plan.single {
		return false
	}
	return s.decrement()
}

// undoStep runs one undo body. A failing body ends the run and aborts the
// remaining chain; a failing StepReceding is recorded but the chain goes on.
func (s *session[TID, TData]) undoStep(step *stepEntry[TID, TData]) bool {
	log := s.stepLogger(step, "undo")
	log.Debug("undoing step %s", step.label())

	err := s.timed(step, "undo", func() error {
		return invokeBody(s.ctx, step.undo, s.data, s.undoInfo())
	})
	if err != nil {
		s.errs.add(derive(
			ErrUndoFailed,
			fmt.Sprintf("undo of step %v failed: %v", step.id, err),
			err,
			s.fields("undo"),
		))
		log.Error("undo of step %s failed: %v", step.label(), err)
		s.end(ResultFailed)
		return false
	}

	_ = s.persist(opStepReceding)
	return true
}
