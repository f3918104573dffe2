package recovery

import (
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Option configures a Scheduler.
type Option func(*settings)

type settings struct {
	location *time.Location
	logger   Logger
	onError  func(error)
	seconds  bool
	cronLogs bool
	timeout  time.Duration
}

// WithLocation sets the timezone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) { s.location = loc }
}

// WithLogger sets the logger receiving sweep outcomes.
func WithLogger(logger Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithErrorHandler receives sweep errors and recovered panics instead of the
// logger.
func WithErrorHandler(handler func(error)) Option {
	return func(s *settings) { s.onError = handler }
}

// WithSeconds accepts six field expressions with a leading seconds field.
func WithSeconds() Option {
	return func(s *settings) { s.seconds = true }
}

// WithCronLogs forwards the cron engine's own scheduling messages to the
// logger. Errors are always forwarded.
func WithCronLogs(enabled bool) Option {
	return func(s *settings) { s.cronLogs = enabled }
}

// WithTimeout bounds every sweep with a context deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) { s.timeout = timeout }
}

func (s settings) cronOptions(report func(error)) []rcron.Option {
	fields := rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor
	if s.seconds {
		fields |= rcron.Second
	}

	var engineLog rcron.Logger = rcron.DiscardLogger
	if s.logger != nil {
		engineLog = cronLogger{logger: s.logger, info: s.cronLogs}
	}

	opts := []rcron.Option{
		rcron.WithParser(rcron.NewParser(fields)),
		rcron.WithLogger(engineLog),
		rcron.WithChain(
			rcron.Recover(panicReporter(report)),
			rcron.SkipIfStillRunning(engineLog),
		),
	}
	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}
	return opts
}

// cronLogger forwards robfig/cron messages.
type cronLogger struct {
	logger Logger
	info   bool
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	if c.info {
		c.logger.Info("cron: %s %v", msg, keysAndValues)
	}
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error("cron: %s %v: %v", msg, keysAndValues, err)
}

// panicReporter hands panics recovered by the cron chain to report.
type panicReporter func(error)

func (panicReporter) Info(string, ...any) {}

func (p panicReporter) Error(err error, msg string, keysAndValues ...any) {
	if err == nil {
		err = fmt.Errorf("%s %v", msg, keysAndValues)
	}
	p(err)
}
