package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saga "github.com/goliatone/go-saga"
	"github.com/goliatone/go-saga/store"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("sagactl"), kong.Exit(func(int) { t.Fatalf("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	rt := &runtime{
		ctx:    context.Background(),
		out:    out,
		logger: saga.NopLogger{},
		exit:   func(int) { t.Fatalf("unexpected crash") },
	}
	err = kctx.Run(rt)
	return out.String(), err
}

func lines(out string, prefix string) []string {
	var got []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			got = append(got, strings.TrimSpace(strings.TrimPrefix(line, prefix)))
		}
	}
	return got
}

func TestRunSucceeds(t *testing.T) {
	out, err := runCLI(t, "run", "--traveler", "grace")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"flight for grace", "hotel for grace", "car for grace", "payment for grace", "notify for grace",
	}, lines(out, "->"))
	assert.Len(t, lines(out, "   post"), 5)
	assert.Contains(t, out, "result: success")
}

func TestRunFailureCompensatesInReverse(t *testing.T) {
	out, err := runCLI(t, "run", "--fail-at", "car", "--executor", "goroutine")
	require.Error(t, err)

	assert.Equal(t, []string{"undo car", "undo hotel", "undo flight"}, lines(out, "<-"))
	assert.Empty(t, lines(out, "   post"))
	assert.Contains(t, out, "result: failed")
	assert.Contains(t, out, "car unavailable")
}

func TestRunCancel(t *testing.T) {
	out, err := runCLI(t, "run", "--cancel-at", "hotel", "--executor", "queue")
	require.NoError(t, err)

	assert.Equal(t, []string{"undo hotel", "undo flight"}, lines(out, "<-"))
	assert.Contains(t, out, "result: cancelled")
}

func TestRunGoForwardStillPostsEveryStep(t *testing.T) {
	out, err := runCLI(t, "run", "--go-forward", "flight=payment")
	require.NoError(t, err)

	assert.Equal(t, []string{"flight for ada", "payment for ada", "notify for ada"}, lines(out, "->"))
	assert.Equal(t, []string{
		"flight", "hotel (none)", "car (none)", "payment", "notify",
	}, trimCodes(lines(out, "   post")))
}

func trimCodes(in []string) []string {
	out := make([]string, len(in))
	for i, line := range in {
		if strings.HasSuffix(line, "(none)") {
			out[i] = line
			continue
		}
		if idx := strings.Index(line, " ("); idx >= 0 {
			line = line[:idx]
		}
		out[i] = line
	}
	return out
}

func TestRunGoBackReRunsTarget(t *testing.T) {
	out, err := runCLI(t, "run", "--go-back", "car=hotel")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"flight for ada", "hotel for ada", "car for ada", "hotel for ada", "car for ada", "payment for ada", "notify for ada",
	}, lines(out, "->"))
	assert.Equal(t, []string{"undo car"}, lines(out, "<-"))
}

func TestRunFromStep(t *testing.T) {
	out, err := runCLI(t, "run", "--from", "payment")
	require.NoError(t, err)
	assert.Equal(t, []string{"payment for ada", "notify for ada"}, lines(out, "->"))

	_, err = runCLI(t, "run", "--from", "spaceship")
	assert.Error(t, err)
}

func TestRecoverFromSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	sessions := store.NewSQLite[*Booking](db, "")
	require.NoError(t, sessions.StepPrepared(context.Background(), saga.Snapshot[*Booking]{
		Transaction: "booking",
		SessionID:   "0190-crashed-session",
		StepIndex:   2,
		Data: &Booking{
			Traveler:      "linus",
			Confirmations: map[string]string{"flight": "flight-1", "hotel": "hotel-1"},
		},
	}))
	require.NoError(t, db.Close())

	out, err := runCLI(t, "recover", "--store-driver", "sqlite", "--store-dsn", path)
	require.NoError(t, err)

	assert.Equal(t, []string{"car for linus", "payment for linus", "notify for linus"}, lines(out, "->"))
	assert.Contains(t, out, "recovered=true")
	assert.Contains(t, out, "flight=flight-1")

	out, err = runCLI(t, "recover", "--store-driver", "sqlite", "--store-dsn", path)
	require.NoError(t, err)
	assert.Contains(t, out, "result: no_transaction_to_recover")
}

func TestRecoverRequiresStore(t *testing.T) {
	_, err := runCLI(t, "recover")
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booking.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: booking
steps:
  - id: flight
    handler: booking::flight
  - id: hotel
    handler: booking::hotel
    settings: [undo_on_recover]
`), 0o600))

	out, err := runCLI(t, "validate", path)
	require.NoError(t, err)
	assert.Equal(t, "booking: 2 step(s) ok\n", out)

	out, err = runCLI(t, "run", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"flight for ada", "hotel for ada"}, lines(out, "->"))
}

func TestGlogLoggerWritesStructuredFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newLogger(buf, "json", "debug")

	tx := saga.New[string, *Booking]("booking", saga.WithLogger[string, *Booking](logger))
	sc := &scenario{out: &bytes.Buffer{}}
	reg, err := sc.registry()
	require.NoError(t, err)
	handlers, ok := reg.Lookup("booking::flight")
	require.True(t, ok)
	require.NoError(t, tx.Add(saga.Step[string, *Booking]{
		ID:       "flight",
		Action:   handlers.Action,
		Settings: saga.StepLogExecutionTime,
	}))

	result, err := tx.Run(context.Background(), func(rs *saga.RunSettings[string, *Booking]) {
		rs.Data = &Booking{Traveler: "ada"}
	})
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	logged := buf.String()
	require.NotEmpty(t, strings.TrimSpace(logged))
	assert.Contains(t, logged, "session_id")
	assert.Contains(t, logged, "execution time")

	text := &bytes.Buffer{}
	plain := newLogger(text, "text", "warn")
	_, isWriter := plain.(*saga.WriterLogger)
	require.True(t, isWriter)
	plain.Info("dropped")
	plain.Warn("kept %d", 1)
	assert.NotContains(t, text.String(), "dropped")
	assert.Contains(t, text.String(), "WARN  kept 1")
}
