// Package handler implements the name→handler registry that the
// scheduler dispatches work to by topic prefix.
package handler

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get when no handler is registered under
// the requested name.
var ErrNotFound = errors.New("handler: not found")

// DefaultName is used when a topic is empty.
const DefaultName = "echo"

// Handler is the capability set every registered handler exposes.
// Execute is cooperative and may suspend; it must not block the
// caller's goroutine on unbounded CPU work.
type Handler interface {
	Name() string
	Execute(ctx context.Context, payload interface{}) (interface{}, error)
}

// Registry is a thread-safe name→handler map. Registration replaces
// any prior handler of the same name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler under its own Name().
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

// Unregister removes the handler with the given name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// List returns the names of every registered handler, for capability
// advertisement.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// NameForTopic derives the handler name from a topic's ':'-delimited
// prefix (or the whole topic, if it carries none), defaulting to
// DefaultName when the topic is empty or begins with ':'.
func NameForTopic(topic string) string {
	if i := strings.Index(topic, ":"); i >= 0 {
		if i == 0 {
			return DefaultName
		}
		return topic[:i]
	}
	if topic == "" {
		return DefaultName
	}
	return topic
}
