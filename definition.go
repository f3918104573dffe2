package saga

import (
	"fmt"
	"sync"
)

// Definition is the ordered step registry of a transaction. It accepts steps
// until the first run starts and is frozen afterwards.
type Definition[TID comparable, TData any] struct {
	mu      sync.RWMutex
	name    string
	steps   []*stepEntry[TID, TData]
	started bool
}

func newDefinition[TID comparable, TData any](name string) *Definition[TID, TData] {
	return &Definition[TID, TData]{name: name}
}

// Add validates and appends a step.
func (d *Definition[TID, TData]) Add(step Step[TID, TData]) error {
	return d.AddAll(step)
}

// AddAll validates every step and appends them in order. Nothing is added
// when any step is invalid.
func (d *Definition[TID, TData]) AddAll(steps ...Step[TID, TData]) error {
	entries, err := validateSteps(steps)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return frozenError(d.name)
	}
	d.steps = append(d.steps, entries...)
	return nil
}

// InsertAt inserts steps at index, shifting later steps. index may equal Len.
func (d *Definition[TID, TData]) InsertAt(index int, steps ...Step[TID, TData]) error {
	entries, err := validateSteps(steps)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return frozenError(d.name)
	}
	if index < 0 || index > len(d.steps) {
		return derive(
			ErrIndexOutOfRange,
			fmt.Sprintf("insert index %d out of range [0,%d] in transaction %q", index, len(d.steps), d.name),
			nil,
			map[string]any{"transaction": d.name, "index": index, "len": len(d.steps)},
		)
	}
	d.insertUnlocked(index, entries)
	return nil
}

// InsertBefore inserts steps before the first step whose id equals id.
func (d *Definition[TID, TData]) InsertBefore(id TID, steps ...Step[TID, TData]) error {
	return d.InsertBeforeFunc(id, nil, steps...)
}

// InsertBeforeFunc is InsertBefore with a custom id comparer.
func (d *Definition[TID, TData]) InsertBeforeFunc(id TID, eq EqualFunc[TID], steps ...Step[TID, TData]) error {
	return d.insertRelative(id, eq, 0, steps)
}

// InsertAfter inserts steps after the first step whose id equals id.
func (d *Definition[TID, TData]) InsertAfter(id TID, steps ...Step[TID, TData]) error {
	return d.InsertAfterFunc(id, nil, steps...)
}

// InsertAfterFunc is InsertAfter with a custom id comparer.
func (d *Definition[TID, TData]) InsertAfterFunc(id TID, eq EqualFunc[TID], steps ...Step[TID, TData]) error {
	return d.insertRelative(id, eq, 1, steps)
}

func (d *Definition[TID, TData]) insertRelative(id TID, eq EqualFunc[TID], offset int, steps []Step[TID, TData]) error {
	entries, err := validateSteps(steps)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return frozenError(d.name)
	}
	idx := d.indexOfUnlocked(id, eq, 0)
	if idx < 0 {
		return stepNotFoundError(d.name, id)
	}
	d.insertUnlocked(idx+offset, entries)
	return nil
}

func (d *Definition[TID, TData]) insertUnlocked(index int, entries []*stepEntry[TID, TData]) {
	if len(entries) == 0 {
		return
	}
	next := make([]*stepEntry[TID, TData], 0, len(d.steps)+len(entries))
	next = append(next, d.steps[:index]...)
	next = append(next, entries...)
	next = append(next, d.steps[index:]...)
	d.steps = next
}

// Len returns the number of steps.
func (d *Definition[TID, TData]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.steps)
}

// IDs returns the step ids in order.
func (d *Definition[TID, TData]) IDs() []TID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]TID, len(d.steps))
	for i, step := range d.steps {
		out[i] = step.id
	}
	return out
}

// IndexOf returns the index of the first step with the given id, or -1.
func (d *Definition[TID, TData]) IndexOf(id TID) int {
	return d.IndexOfFunc(id, nil)
}

// IndexOfFunc is IndexOf with a custom id comparer.
func (d *Definition[TID, TData]) IndexOfFunc(id TID, eq EqualFunc[TID]) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.indexOfUnlocked(id, eq, 0)
}

// Started reports whether the definition has been frozen by a run.
func (d *Definition[TID, TData]) Started() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.started
}

func (d *Definition[TID, TData]) indexOfUnlocked(id TID, eq EqualFunc[TID], from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(d.steps); i++ {
		if matchID(id, d.steps[i].id, eq) {
			return i
		}
	}
	return -1
}

func (d *Definition[TID, TData]) stepAt(index int) (*stepEntry[TID, TData], bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if index < 0 || index >= len(d.steps) {
		return nil, false
	}
	return d.steps[index], true
}

func (d *Definition[TID, TData]) notifyRunStarted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
}

func validateSteps[TID comparable, TData any](steps []Step[TID, TData]) ([]*stepEntry[TID, TData], error) {
	entries := make([]*stepEntry[TID, TData], 0, len(steps))
	for _, step := range steps {
		entry, err := newStepEntry(step)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func matchID[TID comparable](target, candidate TID, eq EqualFunc[TID]) bool {
	if eq != nil {
		return eq(target, candidate)
	}
	return target == candidate
}
