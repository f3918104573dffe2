package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	saga "github.com/goliatone/go-saga"
)

// Memory is a thread-safe in-memory session store. It survives nothing but a
// run, which makes it the store for tests and single-process hosts.
type Memory[TData any] struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Record[TData]
	now      func() time.Time
	last     time.Time
}

// NewMemory constructs an empty store.
func NewMemory[TData any]() *Memory[TData] {
	return &Memory[TData]{
		sessions: make(map[string]map[string]Record[TData]),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory[TData]) SessionStarted(_ context.Context, snapshot saga.Snapshot[TData]) error {
	return m.put(snapshot, StatusRunning)
}

func (m *Memory[TData]) StepPrepared(_ context.Context, snapshot saga.Snapshot[TData]) error {
	return m.put(snapshot, StatusRunning)
}

func (m *Memory[TData]) StepReceding(_ context.Context, snapshot saga.Snapshot[TData]) error {
	return m.put(snapshot, StatusReceding)
}

func (m *Memory[TData]) RemoveSession(_ context.Context, snapshot saga.Snapshot[TData]) error {
	if m == nil {
		return errors.New("in-memory store not configured")
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessions, ok := m.sessions[snapshot.Transaction]; ok {
		delete(sessions, snapshot.SessionID)
		if len(sessions) == 0 {
			delete(m.sessions, snapshot.Transaction)
		}
	}
	return nil
}

// RecoverTransaction returns the most recently updated session of the transaction.
func (m *Memory[TData]) RecoverTransaction(_ context.Context, transaction string) (*saga.Snapshot[TData], error) {
	if m == nil {
		return nil, errors.New("in-memory store not configured")
	}
	transaction = strings.TrimSpace(transaction)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Record[TData]
	for _, rec := range m.sessions[transaction] {
		if latest == nil || rec.UpdatedAt.After(latest.UpdatedAt) {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, nil
	}
	snapshot := latest.Snapshot
	return &snapshot, nil
}

// Put stores a snapshot directly, e.g. to seed a recovery.
func (m *Memory[TData]) Put(snapshot saga.Snapshot[TData]) error {
	return m.put(snapshot, StatusRunning)
}

// Records returns the stored records of a transaction.
func (m *Memory[TData]) Records(transaction string) []Record[TData] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record[TData], 0, len(m.sessions[transaction]))
	for _, rec := range m.sessions[transaction] {
		out = append(out, rec)
	}
	return out
}

func (m *Memory[TData]) put(snapshot saga.Snapshot[TData], status string) error {
	if m == nil {
		return errors.New("in-memory store not configured")
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, ok := m.sessions[snapshot.Transaction]
	if !ok {
		sessions = make(map[string]Record[TData])
		m.sessions[snapshot.Transaction] = sessions
	}
	// updates are strictly ordered so the latest session wins recovery
	updated := m.now()
	if !updated.After(m.last) {
		updated = m.last.Add(time.Nanosecond)
	}
	m.last = updated
	sessions[snapshot.SessionID] = Record[TData]{
		Snapshot:  snapshot,
		Status:    status,
		UpdatedAt: updated,
	}
	return nil
}
