package saga

import "fmt"

// runPost restarts the cursor and runs every post body in forward order,
// then ends the run with intent.
func (s *session[TID, TData]) runPost(intent ResultKind) {
	s.restart()
	s.postSteps(intent)
}

func (s *session[TID, TData]) postSteps(intent ResultKind) {
	for {
		step, ok := s.current()
		if !ok {
			s.end(intent)
			return
		}

		if !step.hasPost() || s.skipForRecovery(step) {
			s.stepLogger(step, "post").Debug("post action of step %s skipped", step.label())
			s.increment()
			continue
		}

		if handOff(step.resolvedPostExecutor(), func() {
			if s.postStep(step) {
				s.increment()
				s.postSteps(intent)
			}
		}) {
			return
		}

		if !s.postStep(step) {
			return
		}
		s.increment()
	}
}

// postStep runs one post body; a failure ends the run and skips the rest.
func (s *session[TID, TData]) postStep(step *stepEntry[TID, TData]) bool {
	log := s.stepLogger(step, "post")
	log.Debug("running post action of step %s", step.label())

	err := s.timed(step, "post", func() error {
		return invokeBody(s.ctx, step.post, s.data, s.postInfo())
	})
	if err != nil {
		s.errs.add(derive(
			ErrPostFailed,
			fmt.Sprintf("post action of step %v failed: %v", step.id, err),
			err,
			s.fields("post"),
		))
		log.Error("post action of step %s failed: %v", step.label(), err)
		s.end(ResultFailed)
		return false
	}
	return true
}
