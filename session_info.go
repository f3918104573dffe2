package saga

import "time"

// EqualFunc compares two step ids.
type EqualFunc[TID any] func(a, b TID) bool

// SessionInfo is the read-only view of a running session shared by all bodies.
type SessionInfo[TID comparable] interface {
	TransactionName() string
	SessionID() string
	StartTimestamp() time.Time
	CurrentStepID() TID
	Recovered() bool
	Cancelled() bool
}

// StepInfo is handed to step bodies. Cancel and the move requests take effect
// once the body returns.
type StepInfo[TID comparable] interface {
	SessionInfo[TID]
	Cancel()
	GoForward(id TID)
	GoForwardFunc(id TID, eq EqualFunc[TID])
	GoBack(id TID)
	GoBackFunc(id TID, eq EqualFunc[TID])
}

// UndoInfo is handed to undo bodies.
type UndoInfo[TID comparable] interface {
	SessionInfo[TID]
}

// PostInfo is handed to post bodies.
type PostInfo[TID comparable] interface {
	SessionInfo[TID]
}

type moveDirection int

const (
	moveForward moveDirection = iota
	moveBack
)

func (d moveDirection) String() string {
	if d == moveBack {
		return "back"
	}
	return "forward"
}

type moveRequest[TID comparable] struct {
	target    TID
	eq        EqualFunc[TID]
	direction moveDirection
}

func (m *moveRequest[TID]) matches(id TID) bool {
	return matchID(m.target, id, m.eq)
}

// infoView exposes the read-only subset; stepView adds the step-only controls.
type infoView[TID comparable, TData any] struct {
	s *session[TID, TData]
}

func (v infoView[TID, TData]) TransactionName() string   { return v.s.tx.name }
func (v infoView[TID, TData]) SessionID() string         { return v.s.id }
func (v infoView[TID, TData]) StartTimestamp() time.Time { return v.s.startedAt }
func (v infoView[TID, TData]) Recovered() bool           { return v.s.recovered }
func (v infoView[TID, TData]) Cancelled() bool           { return v.s.cancelled.Load() }

func (v infoView[TID, TData]) CurrentStepID() TID {
	if step, ok := v.s.current(); ok {
		return step.id
	}
	var zero TID
	return zero
}

type stepView[TID comparable, TData any] struct {
	infoView[TID, TData]
}

func (v stepView[TID, TData]) Cancel() { v.s.cancelled.Store(true) }

func (v stepView[TID, TData]) GoForward(id TID) { v.GoForwardFunc(id, nil) }

func (v stepView[TID, TData]) GoForwardFunc(id TID, eq EqualFunc[TID]) {
	v.s.move.Store(&moveRequest[TID]{target: id, eq: eq, direction: moveForward})
}

func (v stepView[TID, TData]) GoBack(id TID) { v.GoBackFunc(id, nil) }

func (v stepView[TID, TData]) GoBackFunc(id TID, eq EqualFunc[TID]) {
	v.s.move.Store(&moveRequest[TID]{target: id, eq: eq, direction: moveBack})
}
