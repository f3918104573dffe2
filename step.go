package saga

import (
	"context"
	"fmt"
	"strings"
)

// StepFunc is the synchronous body of a step.
type StepFunc[TID comparable, TData any] func(ctx context.Context, data TData, info StepInfo[TID]) error

// AsyncStepFunc is the asynchronous body of a step. The first value received
// from the channel completes the body; a closed or nil channel means success.
type AsyncStepFunc[TID comparable, TData any] func(ctx context.Context, data TData, info StepInfo[TID]) <-chan error

type UndoFunc[TID comparable, TData any] func(ctx context.Context, data TData, info UndoInfo[TID]) error

type AsyncUndoFunc[TID comparable, TData any] func(ctx context.Context, data TData, info UndoInfo[TID]) <-chan error

type PostFunc[TID comparable, TData any] func(ctx context.Context, data TData, info PostInfo[TID]) error

type AsyncPostFunc[TID comparable, TData any] func(ctx context.Context, data TData, info PostInfo[TID]) <-chan error

// Step describes one unit of work. For each body only one of the synchronous
// and asynchronous forms may be set, and Action or AsyncAction is required.
type Step[TID comparable, TData any] struct {
	ID          TID
	Description string

	Action      StepFunc[TID, TData]
	AsyncAction AsyncStepFunc[TID, TData]
	Undo        UndoFunc[TID, TData]
	AsyncUndo   AsyncUndoFunc[TID, TData]
	Post        PostFunc[TID, TData]
	AsyncPost   AsyncPostFunc[TID, TData]

	StepExecutor Executor
	UndoExecutor Executor
	PostExecutor Executor

	Settings StepSettings
}

// body is the single internal shape every sync/async body is collapsed into.
type body[TData any, I any] func(ctx context.Context, data TData, info I) error

func syncBody[TData any, I any](fn func(context.Context, TData, I) error) body[TData, I] {
	if fn == nil {
		return nil
	}
	return body[TData, I](fn)
}

func asyncBody[TData any, I any](fn func(context.Context, TData, I) <-chan error) body[TData, I] {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, data TData, info I) error {
		done := fn(ctx, data, info)
		if done == nil {
			return nil
		}
		return <-done
	}
}

// stepEntry is a validated, immutable step as stored in the definition.
type stepEntry[TID comparable, TData any] struct {
	id          TID
	description string

	action body[TData, StepInfo[TID]]
	undo   body[TData, UndoInfo[TID]]
	post   body[TData, PostInfo[TID]]

	stepExecutor Executor
	undoExecutor Executor
	postExecutor Executor

	settings StepSettings
}

func newStepEntry[TID comparable, TData any](step Step[TID, TData]) (*stepEntry[TID, TData], error) {
	if step.Action == nil && step.AsyncAction == nil {
		return nil, invalidStep(step.ID, "step action is required")
	}
	if step.Action != nil && step.AsyncAction != nil {
		return nil, invalidStep(step.ID, "action and async action are mutually exclusive")
	}
	if step.Undo != nil && step.AsyncUndo != nil {
		return nil, invalidStep(step.ID, "undo and async undo are mutually exclusive")
	}
	if step.Post != nil && step.AsyncPost != nil {
		return nil, invalidStep(step.ID, "post and async post are mutually exclusive")
	}

	entry := &stepEntry[TID, TData]{
		id:           step.ID,
		description:  strings.TrimSpace(step.Description),
		stepExecutor: step.StepExecutor,
		undoExecutor: step.UndoExecutor,
		postExecutor: step.PostExecutor,
		settings:     step.Settings,
	}

	if step.Action != nil {
		entry.action = syncBody[TData, StepInfo[TID]](step.Action)
	} else {
		entry.action = asyncBody[TData, StepInfo[TID]](step.AsyncAction)
	}
	if step.Undo != nil {
		entry.undo = syncBody[TData, UndoInfo[TID]](step.Undo)
	} else {
		entry.undo = asyncBody[TData, UndoInfo[TID]](step.AsyncUndo)
	}
	if step.Post != nil {
		entry.post = syncBody[TData, PostInfo[TID]](step.Post)
	} else {
		entry.post = asyncBody[TData, PostInfo[TID]](step.AsyncPost)
	}
	return entry, nil
}

func invalidStep[TID any](id TID, reason string) error {
	return derive(
		ErrInvalidStep,
		fmt.Sprintf("invalid step %v: %s", id, reason),
		nil,
		map[string]any{"step_id": fmt.Sprint(id)},
	)
}

func (e *stepEntry[TID, TData]) hasUndo() bool { return e.undo != nil }

func (e *stepEntry[TID, TData]) hasPost() bool { return e.post != nil }

func (e *stepEntry[TID, TData]) resolvedUndoExecutor() Executor {
	if e.undoExecutor != nil {
		return e.undoExecutor
	}
	if e.settings.SameExecutorForAllActions() {
		return e.stepExecutor
	}
	return nil
}

func (e *stepEntry[TID, TData]) resolvedPostExecutor() Executor {
	if e.postExecutor != nil {
		return e.postExecutor
	}
	if e.settings.SameExecutorForAllActions() {
		return e.stepExecutor
	}
	return nil
}

func (e *stepEntry[TID, TData]) label() string {
	if e.description != "" {
		return fmt.Sprintf("%v (%s)", e.id, e.description)
	}
	return fmt.Sprint(e.id)
}
