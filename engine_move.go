package saga

import "fmt"

// moveForward jumps the cursor to the next step matching move without undoing
// anything. When no later step matches, the cursor returns to where it was,
// the completed steps are undone and the run fails.
func (s *session[TID, TData]) moveForward(move *moveRequest[TID]) bool {
	origin := s.index
	for {
		s.increment()
		step, ok := s.current()
		if !ok {
			break
		}
		if move.matches(step.id) {
			s.logger.Debug("moved forward from step index %d to %d", origin, s.index)
			return true
		}
	}

	s.index = origin
	s.errs.add(derive(
		ErrMoveForwardFailed,
		fmt.Sprintf("could not move forward to step %v", move.target),
		nil,
		moveFields(s.fields("move_forward"), move),
	))
	s.logger.Error("could not move forward to step %v", move.target)
	s.undoSteps(undoPlan[TID]{}, func(bool) { s.end(ResultFailed) })
	return false
}

// moveBack undoes steps from the cursor down to, but not including, the step
// matching move and resumes the forward loop on that step.
func (s *session[TID, TData]) moveBack(move *moveRequest[TID]) {
	origin := s.index
	s.undoSteps(undoPlan[TID]{target: move}, func(found bool) {
		if !found {
			s.errs.add(derive(
				ErrMoveBackFailed,
				fmt.Sprintf("could not move back to step %v", move.target),
				nil,
				moveFields(s.fields("move_back"), move),
			))
			s.logger.Error("could not move back to step %v", move.target)
			s.end(ResultFailed)
			return
		}
		s.logger.Debug("moved back from step index %d to %d", origin, s.index)
		s.processSteps()
	})
}

func moveFields[TID comparable](fields map[string]any, move *moveRequest[TID]) map[string]any {
	fields["target_step_id"] = fmt.Sprint(move.target)
	fields["direction"] = move.direction.String()
	return fields
}
