package saga

// Executor is a scheduling hand-off point. When ShouldRun reports false the
// engine continues inline on the current goroutine; otherwise the remainder of
// the run is passed to Run, which must invoke it exactly once on whatever
// goroutine, queue or loop the executor owns.
type Executor interface {
	ShouldRun() bool
	Run(fn func())
}

// ExecutorFunc adapts a function into an Executor that always hands off.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) ShouldRun() bool { return f != nil }

func (f ExecutorFunc) Run(fn func()) { f(fn) }

// handOff runs fn through ex when ex asks for it and reports whether it did.
// Callers must return right after a successful hand-off.
func handOff(ex Executor, fn func()) bool {
	if ex == nil || !ex.ShouldRun() {
		return false
	}
	ex.Run(fn)
	return true
}
