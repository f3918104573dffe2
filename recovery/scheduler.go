// Package recovery runs saga recovery sweeps on a cron schedule, so sessions
// left behind by a crashed process are resumed or compensated.
package recovery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Logger is the subset of saga.Logger the scheduler writes to.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Job is one sweep. It returns an error when the sweep failed.
type Job func(ctx context.Context) error

// Scheduler runs recovery sweeps on robfig/cron. A recurring sweep that is
// still running when its next activation fires is skipped.
type Scheduler struct {
	settings settings
	engine   *rcron.Cron

	mu   sync.Mutex
	live map[*handle]struct{}
}

// NewScheduler creates a scheduler. Expressions use the five field cron
// syntax plus descriptors such as "@every 5m" unless WithSeconds is set.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{live: map[*handle]struct{}{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&s.settings)
		}
	}
	s.engine = rcron.New(s.settings.cronOptions(s.report)...)
	return s
}

// Schedule registers a recurring sweep under expression.
func (s *Scheduler) Schedule(name, expression string, job Job) (Handle, error) {
	if job == nil {
		return nil, fmt.Errorf("recovery %q: job cannot be nil", name)
	}
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("recovery %q: cron expression cannot be empty", name)
	}

	h := newHandle(s, name)
	entry, err := s.engine.AddFunc(expression, func() { s.sweep(h, job) })
	if err != nil {
		return nil, fmt.Errorf("recovery %q: invalid schedule %q: %w", name, expression, err)
	}
	h.entry = entry
	s.track(h)
	return h, nil
}

// ScheduleAfter runs a single sweep after delay, e.g. once at startup. It does
// not need Start.
func (s *Scheduler) ScheduleAfter(name string, delay time.Duration, job Job) (Handle, error) {
	if job == nil {
		return nil, fmt.Errorf("recovery %q: job cannot be nil", name)
	}

	h := newHandle(s, name)
	s.track(h)
	go func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-h.Done():
				return
			}
		}

		ran, err := s.sweep(h, job)
		s.untrack(h)
		switch {
		case !ran:
		case err != nil:
			h.fail()
		default:
			h.end(StatusCompleted)
		}
	}()
	return h, nil
}

// Start begins executing recurring sweeps.
func (s *Scheduler) Start(context.Context) error {
	s.engine.Start()
	return nil
}

// Stop halts the cron engine and marks every live handle stopped. It waits
// for running sweeps until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	halted := s.engine.Stop()

	s.mu.Lock()
	live := s.live
	s.live = map[*handle]struct{}{}
	s.mu.Unlock()

	for h := range live {
		if h.entry != 0 {
			s.engine.Remove(h.entry)
		}
		h.end(StatusStopped)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-halted.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handles returns the handles that can still run.
func (s *Scheduler) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handle, 0, len(s.live))
	for h := range s.live {
		out = append(out, h)
	}
	return out
}

// sweep runs job once under h. It reports false when h already ended.
func (s *Scheduler) sweep(h *handle, job Job) (bool, error) {
	if !h.enter() {
		return false, nil
	}

	ctx := context.Background()
	if s.settings.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.timeout)
		defer cancel()
	}

	began := time.Now()
	err := job(ctx)
	h.leave(err)
	if err != nil {
		s.report(fmt.Errorf("recovery %q: %w", h.name, err))
		return true, err
	}
	if s.settings.logger != nil {
		s.settings.logger.Info("recovery sweep %s finished in %s", h.name, time.Since(began))
	}
	return true, nil
}

func (s *Scheduler) report(err error) {
	switch {
	case s.settings.onError != nil:
		s.settings.onError(err)
	case s.settings.logger != nil:
		s.settings.logger.Error("recovery sweep failed: %v", err)
	default:
		log.Printf("recovery sweep failed: %v", err)
	}
}

func (s *Scheduler) track(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[h] = struct{}{}
}

func (s *Scheduler) untrack(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, h)
}

// forget drops h and its cron entry.
func (s *Scheduler) forget(h *handle) {
	s.untrack(h)
	if h.entry != 0 {
		s.engine.Remove(h.entry)
	}
}
