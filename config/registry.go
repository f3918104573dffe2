package config

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	saga "github.com/goliatone/go-saga"
)

// StepHandlers are the bodies a config step binds to by handler name.
type StepHandlers[TData any] struct {
	Action saga.StepFunc[string, TData]
	Undo   saga.UndoFunc[string, TData]
	Post   saga.PostFunc[string, TData]
}

// HandlerRegistry maps handler names used in config files to step bodies.
// It is safe for concurrent use.
type HandlerRegistry[TData any] struct {
	mu    sync.RWMutex
	byKey map[string]StepHandlers[TData]
	join  func(namespace, name string) string
}

func NewHandlerRegistry[TData any]() *HandlerRegistry[TData] {
	return &HandlerRegistry[TData]{byKey: map[string]StepHandlers[TData]{}, join: JoinName}
}

// SetNamespacer replaces JoinName for later registrations.
func (r *HandlerRegistry[TData]) SetNamespacer(join func(namespace, name string) string) {
	if join == nil {
		return
	}
	r.mu.Lock()
	r.join = join
	r.mu.Unlock()
}

// Register binds handlers to name without a namespace.
func (r *HandlerRegistry[TData]) Register(name string, h StepHandlers[TData]) error {
	return r.RegisterNamespaced("", name, h)
}

// RegisterNamespaced binds handlers to the joined namespace and name. A name
// can be bound once.
func (r *HandlerRegistry[TData]) RegisterNamespaced(namespace, name string, h StepHandlers[TData]) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return fmt.Errorf("handler name is required")
	case h.Action == nil:
		return fmt.Errorf("handler %s has no action", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := name
	if strings.TrimSpace(namespace) != "" {
		key = r.join(namespace, name)
	}
	if _, taken := r.byKey[key]; taken {
		return fmt.Errorf("handler %s is already registered", key)
	}
	r.byKey[key] = h
	return nil
}

// Lookup finds handlers by their joined name.
func (r *HandlerRegistry[TData]) Lookup(name string) (StepHandlers[TData], bool) {
	if r == nil {
		return StepHandlers[TData]{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byKey[strings.TrimSpace(name)]
	return h, ok
}

// Names lists the registered names in order.
func (r *HandlerRegistry[TData]) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byKey))
	for name := range r.byKey {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// JoinName is the default namespacer: "booking" and "flight" become
// "booking::flight".
func JoinName(namespace, name string) string {
	return strings.TrimSpace(namespace) + "::" + strings.TrimSpace(name)
}
