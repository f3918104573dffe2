package saga

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger is the logging contract used by the engine. Messages are printf
// formats.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger is implemented by loggers that can carry structured fields.
// The engine attaches transaction, session and step fields through it.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

// Level is a log severity for WriterLogger.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < LevelTrace || l > LevelFatal {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel resolves names such as "debug" or "WARN".
func ParseLevel(name string) (Level, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if key == "WARNING" {
		key = "WARN"
	}
	for i, candidate := range levelNames {
		if candidate == key {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// WriterLogger writes one line per record: timestamp, level, message and the
// sorted key=value fields. Records below the minimum level are dropped.
type WriterLogger struct {
	out    io.Writer
	mu     *sync.Mutex
	min    Level
	fields map[string]any
}

// NewWriterLogger logs to out, or to stdout when out is nil.
func NewWriterLogger(out io.Writer, min Level) *WriterLogger {
	if out == nil {
		out = os.Stdout
	}
	return &WriterLogger{out: out, mu: &sync.Mutex{}, min: min}
}

func (l *WriterLogger) Trace(msg string, args ...any) { l.write(LevelTrace, msg, args) }
func (l *WriterLogger) Debug(msg string, args ...any) { l.write(LevelDebug, msg, args) }
func (l *WriterLogger) Info(msg string, args ...any)  { l.write(LevelInfo, msg, args) }
func (l *WriterLogger) Warn(msg string, args ...any)  { l.write(LevelWarn, msg, args) }
func (l *WriterLogger) Error(msg string, args ...any) { l.write(LevelError, msg, args) }
func (l *WriterLogger) Fatal(msg string, args ...any) { l.write(LevelFatal, msg, args) }

// WithContext returns l; records carry no context values.
func (l *WriterLogger) WithContext(context.Context) Logger { return l }

// WithFields returns a logger sharing l's writer with fields added.
func (l *WriterLogger) WithFields(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &WriterLogger{out: l.out, mu: l.mu, min: l.min, fields: merged}
}

func (l *WriterLogger) write(level Level, msg string, args []any) {
	if level < l.min {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, " %-5s %s", level, strings.TrimSpace(msg))
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}

// NopLogger discards every record.
type NopLogger struct{}

func (NopLogger) Trace(string, ...any)                 {}
func (NopLogger) Debug(string, ...any)                 {}
func (NopLogger) Info(string, ...any)                  {}
func (NopLogger) Warn(string, ...any)                  {}
func (NopLogger) Error(string, ...any)                 {}
func (NopLogger) Fatal(string, ...any)                 {}
func (n NopLogger) WithContext(context.Context) Logger { return n }

func defaultLogger() Logger { return NewWriterLogger(nil, LevelInfo) }

// scopedLogger binds ctx and fields to base, tolerating loggers without
// field support.
func scopedLogger(base Logger, ctx context.Context, fields map[string]any) Logger {
	if base == nil {
		base = defaultLogger()
	}
	if ctx != nil {
		base = base.WithContext(ctx)
	}
	if fl, ok := base.(FieldsLogger); ok && len(fields) > 0 {
		return fl.WithFields(fields)
	}
	return base
}
