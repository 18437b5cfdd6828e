// Package echo provides the built-in "echo" handler, the default
// handler name when a topic is empty.
package echo

import "context"

// Handler returns its payload unchanged.
type Handler struct{}

// New constructs the echo handler.
func New() Handler { return Handler{} }

// Name implements handler.Handler.
func (Handler) Name() string { return "echo" }

// Execute implements handler.Handler: it returns payload unchanged.
func (Handler) Execute(_ context.Context, payload interface{}) (interface{}, error) {
	return payload, nil
}
