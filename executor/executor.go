// Package executor provides saga.Executor implementations.
//
// An executor receives the remainder of a run as a single callable and decides
// where it resumes: inline, on a fresh goroutine, on a dedicated worker loop or
// under manual control.
package executor

// Inline never hands off; the engine keeps running on the current goroutine.
type Inline struct{}

func (Inline) ShouldRun() bool { return false }

func (Inline) Run(fn func()) {
	if fn != nil {
		fn()
	}
}

// Goroutine resumes every hand-off on a new goroutine.
type Goroutine struct{}

func (Goroutine) ShouldRun() bool { return true }

func (Goroutine) Run(fn func()) {
	if fn != nil {
		go fn()
	}
}

// Func hands off to an arbitrary scheduling function.
type Func func(fn func())

func (f Func) ShouldRun() bool { return f != nil }

func (f Func) Run(fn func()) {
	if f != nil && fn != nil {
		f(fn)
	}
}
