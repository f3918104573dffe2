// Package store provides saga.SessionStore implementations backed by memory,
// SQLite and Redis.
package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	saga "github.com/goliatone/go-saga"
)

// Session statuses recorded alongside a snapshot.
const (
	StatusRunning  = "running"
	StatusReceding = "receding"
)

// Record is a stored snapshot plus bookkeeping.
type Record[TData any] struct {
	Snapshot  saga.Snapshot[TData] `json:"snapshot"`
	Status    string               `json:"status"`
	UpdatedAt time.Time            `json:"updated_at"`
}

var (
	errTransactionRequired = errors.New("snapshot transaction required")
	errSessionRequired     = errors.New("snapshot session id required")
)

func validateSnapshot[TData any](snapshot saga.Snapshot[TData]) error {
	if strings.TrimSpace(snapshot.Transaction) == "" {
		return errTransactionRequired
	}
	if strings.TrimSpace(snapshot.SessionID) == "" {
		return errSessionRequired
	}
	return nil
}

func encodeData[TData any](data TData) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeData[TData any](raw string) (TData, error) {
	var data TData
	if strings.TrimSpace(raw) == "" {
		return data, nil
	}
	err := json.Unmarshal([]byte(raw), &data)
	return data, err
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}
