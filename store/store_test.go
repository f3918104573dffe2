package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saga "github.com/goliatone/go-saga"
)

type booking struct {
	Flight string `json:"flight"`
	Hotel  string `json:"hotel"`
	Seats  int    `json:"seats"`
}

var (
	_ saga.SessionStore[booking] = (*Memory[booking])(nil)
	_ saga.SessionStore[booking] = (*SQLite[booking])(nil)
	_ saga.SessionStore[booking] = (*Redis[booking])(nil)
	_ saga.SessionStore[booking] = (*Recorder[booking])(nil)
	_ KeyValue                   = (*GoRedis)(nil)
)

func snapshot(tx, session string, index int) saga.Snapshot[booking] {
	return saga.Snapshot[booking]{
		Transaction: tx,
		SessionID:   session,
		StepIndex:   index,
		StartedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Data:        booking{Flight: "LH400", Hotel: "Ritz", Seats: index + 1},
	}
}

// exerciseStore runs the lifecycle every store must support.
func exerciseStore(t *testing.T, s saga.SessionStore[booking]) {
	t.Helper()
	ctx := context.Background()

	got, err := s.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SessionStarted(ctx, snapshot("trip", "s1", 0)))
	require.NoError(t, s.StepPrepared(ctx, snapshot("trip", "s1", 0)))
	require.NoError(t, s.StepPrepared(ctx, snapshot("trip", "s1", 2)))

	got, err = s.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "trip", got.Transaction)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 2, got.StepIndex)
	assert.Equal(t, booking{Flight: "LH400", Hotel: "Ritz", Seats: 3}, got.Data)
	assert.True(t, got.StartedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	require.NoError(t, s.StepReceding(ctx, snapshot("trip", "s1", 1)))
	got, err = s.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.StepIndex)

	other, err := s.RecoverTransaction(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, s.RemoveSession(ctx, snapshot("trip", "s1", 1)))
	got, err = s.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, s.SessionStarted(ctx, snapshot("", "s2", 0)))
	assert.Error(t, s.SessionStarted(ctx, snapshot("trip", " ", 0)))
}

func TestMemoryStoreLifecycle(t *testing.T) {
	exerciseStore(t, NewMemory[booking]())
}

func TestMemoryStoreRecoversMostRecentSession(t *testing.T) {
	s := NewMemory[booking]()
	ctx := context.Background()

	require.NoError(t, s.Put(snapshot("trip", "old", 1)))
	require.NoError(t, s.Put(snapshot("trip", "new", 3)))

	got, err := s.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.SessionID)

	require.NoError(t, s.StepReceding(ctx, snapshot("trip", "old", 0)))
	got, err = s.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, "old", got.SessionID)

	records := s.Records("trip")
	require.Len(t, records, 2)
	statuses := map[string]string{}
	for _, rec := range records {
		statuses[rec.Snapshot.SessionID] = rec.Status
	}
	assert.Equal(t, map[string]string{"old": StatusReceding, "new": StatusRunning}, statuses)
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	exerciseStore(t, NewSQLite[booking](openSQLite(t), ""))
}

func TestSQLiteStoreTracksStatus(t *testing.T) {
	s := NewSQLite[booking](openSQLite(t), "trip_sessions")
	ctx := context.Background()
	assert.Equal(t, "trip_sessions", s.Table())

	require.NoError(t, s.SessionStarted(ctx, snapshot("trip", "s1", 0)))
	status, err := s.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)

	require.NoError(t, s.StepReceding(ctx, snapshot("trip", "s1", 0)))
	status, err = s.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusReceding, status)

	status, err = s.Status(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestSQLiteStoreRecoversMostRecentSession(t *testing.T) {
	s := NewSQLite[booking](openSQLite(t), "")
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, s.SessionStarted(ctx, snapshot("trip", "a", 0)))
	require.NoError(t, s.SessionStarted(ctx, snapshot("trip", "b", 0)))
	require.NoError(t, s.StepPrepared(ctx, snapshot("trip", "a", 1)))

	got, err := s.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.SessionID)
	assert.Equal(t, 1, got.StepIndex)
}

func TestSQLiteStoreNotConfigured(t *testing.T) {
	var s *SQLite[booking]
	assert.Error(t, s.SessionStarted(context.Background(), snapshot("trip", "s1", 0)))
	_, err := NewSQLite[booking](nil, "").RecoverTransaction(context.Background(), "trip")
	assert.Error(t, err)
}

type fakeRedis struct {
	mu       sync.Mutex
	values   map[string][]byte
	ttls     map[string]time.Duration
	fetchErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Fetch(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, false, f.fetchErr
	}
	payload, ok := f.values[key]
	return payload, ok, nil
}

func (f *fakeRedis) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = payload
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	delete(f.ttls, key)
	return nil
}

func TestRedisStoreLifecycle(t *testing.T) {
	exerciseStore(t, NewRedis[booking](newFakeRedis(), time.Minute))
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	client := newFakeRedis()
	s := NewRedis[booking](client, time.Hour).WithPrefix("bookings:")
	ctx := context.Background()

	require.NoError(t, s.SessionStarted(ctx, snapshot("trip", "s1", 0)))
	assert.Contains(t, client.values, "bookings:trip")
	assert.Equal(t, time.Hour, client.ttls["bookings:trip"])

	rec, err := s.Load(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusRunning, rec.Status)
}

func TestRedisStoreRemoveKeepsNewerSession(t *testing.T) {
	client := newFakeRedis()
	s := NewRedis[booking](client, 0)
	ctx := context.Background()

	require.NoError(t, s.SessionStarted(ctx, snapshot("trip", "old", 0)))
	require.NoError(t, s.SessionStarted(ctx, snapshot("trip", "new", 0)))
	require.NoError(t, s.RemoveSession(ctx, snapshot("trip", "old", 0)))

	got, err := s.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.SessionID)
}

func TestRedisStorePropagatesClientErrors(t *testing.T) {
	client := newFakeRedis()
	client.fetchErr = errors.New("connection refused")
	s := NewRedis[booking](client, 0)

	_, err := s.RecoverTransaction(context.Background(), "trip")
	assert.EqualError(t, err, "connection refused")
}

func TestRecorderKeepsCallOrder(t *testing.T) {
	mem := NewMemory[booking]()
	r := NewRecorder[booking](mem)
	ctx := context.Background()

	require.NoError(t, r.SessionStarted(ctx, snapshot("trip", "s1", 0)))
	require.NoError(t, r.StepPrepared(ctx, snapshot("trip", "s1", 0)))
	require.NoError(t, r.StepReceding(ctx, snapshot("trip", "s1", 0)))
	got, err := r.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, r.RemoveSession(ctx, snapshot("trip", "s1", 0)))

	assert.Equal(t, []string{
		OpSessionStarted,
		OpStepPrepared,
		OpStepReceding,
		OpRecoverTransaction,
		OpRemoveSession,
	}, r.Ops())
	assert.Equal(t, 1, r.Count(OpStepPrepared))

	r.Reset()
	assert.Empty(t, r.Calls())
}

func TestRecorderInjectsFailures(t *testing.T) {
	boom := errors.New("disk full")
	mem := NewMemory[booking]()
	r := NewRecorder[booking](mem).FailAfter(OpStepPrepared, 1, boom)
	ctx := context.Background()

	require.NoError(t, r.StepPrepared(ctx, snapshot("trip", "s1", 0)))
	assert.ErrorIs(t, r.StepPrepared(ctx, snapshot("trip", "s1", 1)), boom)

	got, err := mem.RecoverTransaction(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.StepIndex)

	calls := r.Calls()
	require.Len(t, calls, 2)
	assert.NoError(t, calls[0].Err)
	assert.ErrorIs(t, calls[1].Err, boom)
	assert.Equal(t, 1, calls[1].StepIndex)
}

func TestRecorderWithoutInnerStore(t *testing.T) {
	r := NewRecorder[booking](nil).FailOn(OpRecoverTransaction, errors.New("offline"))
	ctx := context.Background()

	require.NoError(t, r.SessionStarted(ctx, snapshot("trip", "s1", 0)))
	got, err := r.RecoverTransaction(ctx, "trip")
	assert.Nil(t, got)
	assert.EqualError(t, err, "offline")
}
