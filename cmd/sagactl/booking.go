package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	saga "github.com/goliatone/go-saga"
	"github.com/goliatone/go-saga/config"
)

const bookingNamespace = "booking"

var bookingSteps = []string{"flight", "hotel", "car", "payment", "notify"}

// Booking is the payload shared by every booking step.
type Booking struct {
	Traveler      string            `json:"traveler"`
	Confirmations map[string]string `json:"confirmations,omitempty"`
}

// scenario steers the demo handlers.
type scenario struct {
	out      io.Writer
	failAt   string
	cancelAt string
	crashAt  string
	forward  map[string]string
	back     map[string]string
	delay    time.Duration
	crash    func(step string)

	mu    sync.Mutex
	moved map[string]bool
}

func (sc *scenario) printf(format string, args ...any) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	fmt.Fprintf(sc.out, format+"\n", args...)
}

// moveOnce reports whether the step's move should fire, firing a back move
// only once so the re-run step does not loop.
func (sc *scenario) moveOnce(step string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.moved == nil {
		sc.moved = make(map[string]bool)
	}
	if sc.moved[step] {
		return false
	}
	sc.moved[step] = true
	return true
}

func (sc *scenario) registry() (*config.HandlerRegistry[*Booking], error) {
	reg := config.NewHandlerRegistry[*Booking]()
	for _, name := range bookingSteps {
		if err := reg.RegisterNamespaced(bookingNamespace, name, sc.handlers(name)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (sc *scenario) handlers(name string) config.StepHandlers[*Booking] {
	return config.StepHandlers[*Booking]{
		Action: func(ctx context.Context, b *Booking, info saga.StepInfo[string]) error {
			if sc.delay > 0 {
				select {
				case <-time.After(sc.delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			sc.printf("-> %s for %s", name, b.Traveler)
			if name == sc.crashAt && sc.crash != nil {
				sc.crash(name)
			}
			if name == sc.failAt {
				return fmt.Errorf("%s unavailable", name)
			}
			b.confirm(name, fmt.Sprintf("%s-%s", name, shortID(info.SessionID())))
			if name == sc.cancelAt {
				sc.printf("   cancel requested at %s", name)
				info.Cancel()
			}
			if target, ok := sc.forward[name]; ok {
				sc.printf("   jumping forward to %s", target)
				info.GoForward(target)
			}
			if target, ok := sc.back[name]; ok && sc.moveOnce(name) {
				sc.printf("   going back to %s", target)
				info.GoBack(target)
			}
			return nil
		},
		Undo: func(_ context.Context, b *Booking, _ saga.UndoInfo[string]) error {
			sc.printf("<- undo %s", name)
			b.release(name)
			return nil
		},
		Post: func(_ context.Context, b *Booking, _ saga.PostInfo[string]) error {
			sc.printf("   post %s (%s)", name, b.confirmation(name))
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

func (b *Booking) confirm(step, code string) {
	if b.Confirmations == nil {
		b.Confirmations = make(map[string]string)
	}
	b.Confirmations[step] = code
}

func (b *Booking) release(step string) {
	delete(b.Confirmations, step)
}

func (b *Booking) confirmation(step string) string {
	if code, ok := b.Confirmations[step]; ok {
		return code
	}
	return "none"
}

// defaultConfig describes the booking transaction when no config file is given.
func defaultConfig(executor string, logTime bool) config.TransactionConfig {
	cfg := config.TransactionConfig{
		Name:             "booking",
		LogExecutionTime: logTime,
	}
	for _, name := range bookingSteps {
		cfg.Steps = append(cfg.Steps, config.StepConfig{
			ID:          name,
			Description: "book " + name,
			Handler:     bookingNamespace + "::" + name,
			Executor:    executor,
			Settings:    []string{"same_executor_for_all_actions"},
		})
	}
	return cfg
}
