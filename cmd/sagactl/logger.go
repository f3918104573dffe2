package main

import (
	"context"
	"io"

	"github.com/goliatone/go-logger/glog"

	saga "github.com/goliatone/go-saga"
)

// glogLogger adapts a go-logger logger to saga.Logger.
type glogLogger struct {
	logger glog.Logger
}

func (l glogLogger) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l glogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l glogLogger) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l glogLogger) WithContext(ctx context.Context) saga.Logger {
	return glogLogger{logger: l.logger.WithContext(ctx)}
}

func (l glogLogger) WithFields(fields map[string]any) saga.Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogLogger{logger: fl.WithFields(fields)}
	}
	return l
}

// newLogger builds the CLI logger. The json format goes through go-logger,
// text through the plain saga writer logger.
func newLogger(out io.Writer, format, level string) saga.Logger {
	if format == "text" {
		min, err := saga.ParseLevel(level)
		if err != nil {
			min = saga.LevelInfo
		}
		return saga.NewWriterLogger(out, min)
	}
	return glogLogger{logger: glog.NewLogger(
		glog.WithWriter(out),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel(level),
	)}
}
