package executor

import "sync"

// Manual is a cooperative executor useful for orchestration and tests. While
// paused, hand-offs are queued; Resume, Step and Drain run them on the
// calling goroutine. While not paused, hand-offs run immediately.
type Manual struct {
	mu sync.Mutex

	paused  bool
	pending []func()
	handed  int
}

// NewManual creates a manual executor, optionally starting paused.
func NewManual(paused bool) *Manual {
	return &Manual{paused: paused}
}

func (m *Manual) ShouldRun() bool { return m != nil }

func (m *Manual) Run(fn func()) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.handed++
	if m.paused {
		m.pending = append(m.pending, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	fn()
}

// Pause queues future hand-offs until Resume is called.
func (m *Manual) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume stops queueing and drains everything already queued.
func (m *Manual) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.Drain()
}

// Step runs the oldest queued hand-off and reports whether there was one.
func (m *Manual) Step() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.pending[0]
	m.pending[0] = nil
	m.pending = m.pending[1:]
	m.mu.Unlock()

	fn()
	return true
}

// Drain runs queued hand-offs, including ones queued while draining, until
// none are left. It returns how many ran.
func (m *Manual) Drain() int {
	n := 0
	for m.Step() {
		n++
	}
	return n
}

// Pending returns the number of queued hand-offs.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Handed returns how many hand-offs the executor has received.
func (m *Manual) Handed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handed
}
