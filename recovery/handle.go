package recovery

import (
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Status reports a sweep handle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusIdle      Status = "idle"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Final reports whether no further sweeps run under this status.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusStopped
}

// Handle controls one scheduled sweep.
type Handle interface {
	Name() string
	Cancel()
	Status() Status
	// Err is the error of the last sweep, nil when it succeeded.
	Err() error
	// Runs counts finished sweeps.
	Runs() int
	// Next is the next cron activation, zero for one-shot sweeps.
	Next() time.Time
	Done() <-chan struct{}
}

type handle struct {
	owner *Scheduler
	name  string
	entry rcron.EntryID
	done  chan struct{}

	mu     sync.Mutex
	status Status
	err    error
	runs   int
}

func newHandle(owner *Scheduler, name string) *handle {
	return &handle{owner: owner, name: name, status: StatusScheduled, done: make(chan struct{})}
}

func (h *handle) Name() string { return h.name }

func (h *handle) Cancel() {
	if h.owner != nil {
		h.owner.forget(h)
	}
	h.end(StatusCanceled)
}

func (h *handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *handle) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

func (h *handle) Next() time.Time {
	if h.entry == 0 || h.owner == nil {
		return time.Time{}
	}
	return h.owner.engine.Entry(h.entry).Next
}

func (h *handle) Done() <-chan struct{} { return h.done }

// enter marks a sweep as running. It fails once the handle ended.
func (h *handle) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Final() {
		return false
	}
	h.status = StatusRunning
	return true
}

// leave records a sweep outcome. A recurring handle goes idle or failed and
// stays scheduled.
func (h *handle) leave(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	h.err = err
	switch {
	case h.status.Final():
	case err != nil:
		h.status = StatusFailed
	default:
		h.status = StatusIdle
	}
}

// end sets a final status and closes Done. Only the first call wins.
func (h *handle) end(status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Final() {
		return
	}
	h.status = status
	h.closeDone()
}

// fail closes a one-shot handle after a failed sweep, keeping StatusFailed.
func (h *handle) fail() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Final() {
		return
	}
	h.status = StatusFailed
	h.closeDone()
}

func (h *handle) closeDone() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}
