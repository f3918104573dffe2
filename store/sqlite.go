package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	saga "github.com/goliatone/go-saga"
)

// SQLite persists one row per live session. Register a driver such as
// github.com/mattn/go-sqlite3 before opening the DB.
type SQLite[TData any] struct {
	db    *sql.DB
	table string
	now   func() time.Time

	schemaOnce sync.Once
	schemaErr  error
}

// NewSQLite builds a store using the given DB and table name.
func NewSQLite[TData any](db *sql.DB, table string) *SQLite[TData] {
	table = strings.TrimSpace(table)
	if table == "" {
		table = "saga_sessions"
	}
	return &SQLite[TData]{
		db:    db,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Table returns the table name backing the store.
func (s *SQLite[TData]) Table() string { return s.table }

func (s *SQLite[TData]) SessionStarted(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return s.upsert(ctx, snapshot, StatusRunning)
}

func (s *SQLite[TData]) StepPrepared(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return s.upsert(ctx, snapshot, StatusRunning)
}

func (s *SQLite[TData]) StepReceding(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return s.upsert(ctx, snapshot, StatusReceding)
}

func (s *SQLite[TData]) RemoveSession(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, s.table)
	_, err := s.db.ExecContext(ctx, q, snapshot.SessionID)
	return err
}

// RecoverTransaction returns the most recently updated session of the transaction.
func (s *SQLite[TData]) RecoverTransaction(ctx context.Context, transaction string) (*saga.Snapshot[TData], error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	transaction = strings.TrimSpace(transaction)
	if transaction == "" {
		return nil, nil
	}

	q := fmt.Sprintf(`SELECT transaction_name, session_id, step_index, started_at, data
		FROM %s WHERE transaction_name = ? ORDER BY updated_at DESC LIMIT 1`, s.table)
	var (
		snapshot     saga.Snapshot[TData]
		startedAtStr string
		dataJSON     string
	)
	err := s.db.QueryRowContext(ctx, q, transaction).Scan(
		&snapshot.Transaction,
		&snapshot.SessionID,
		&snapshot.StepIndex,
		&startedAtStr,
		&dataJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ts, ok := parseTimestamp(startedAtStr); ok {
		snapshot.StartedAt = ts
	}
	data, err := decodeData[TData](dataJSON)
	if err != nil {
		return nil, fmt.Errorf("decode session %s data: %w", snapshot.SessionID, err)
	}
	snapshot.Data = data
	return &snapshot, nil
}

// Status returns the recorded status of a session, or "" when it is absent.
func (s *SQLite[TData]) Status(ctx context.Context, sessionID string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	q := fmt.Sprintf(`SELECT status FROM %s WHERE session_id = ?`, s.table)
	var status string
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return status, err
}

func (s *SQLite[TData]) upsert(ctx context.Context, snapshot saga.Snapshot[TData], status string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	dataJSON, err := encodeData(snapshot.Data)
	if err != nil {
		return fmt.Errorf("encode session %s data: %w", snapshot.SessionID, err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (session_id, transaction_name, step_index, started_at, data, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			step_index = excluded.step_index,
			data = excluded.data,
			status = excluded.status,
			updated_at = excluded.updated_at`, s.table)
	_, err = s.db.ExecContext(ctx, q,
		snapshot.SessionID,
		snapshot.Transaction,
		snapshot.StepIndex,
		formatTimestamp(snapshot.StartedAt),
		dataJSON,
		status,
		s.now().UnixNano(),
	)
	return err
}

func (s *SQLite[TData]) ready(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not configured")
	}
	s.schemaOnce.Do(func() {
		s.schemaErr = s.ensureSchema(ctx)
	})
	return s.schemaErr
}

func (s *SQLite[TData]) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		session_id TEXT PRIMARY KEY,
		transaction_name TEXT NOT NULL,
		step_index INTEGER NOT NULL,
		started_at TEXT,
		data TEXT,
		status TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_transaction_idx ON %s (transaction_name, updated_at)`, s.table, s.table)
	_, err := s.db.ExecContext(ctx, idx)
	return err
}
