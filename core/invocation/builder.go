// Package invocation implements the Invocation Builder (spec §4.5): it
// registers middleware and the terminal handler, and composes them into
// the per-invocation pipeline the Lifecycle Orchestrator runs.
package invocation

import (
	"errors"

	"github.com/lambdahost/runtime/core/middleware"
)

// ErrTerminalAlreadySet is returned by a second Handle call — spec's Open
// Question on this point is resolved in favor of a hard error at build
// time (spec §4.5/§9).
var ErrTerminalAlreadySet = errors.New("invocation: Handle already called; a second terminal delegate is a build-time error")

// ErrNoTerminal is returned by Build when Handle was never called.
var ErrNoTerminal = errors.New("invocation: no terminal handler registered; call Handle before Build")

// Builder accumulates middleware (outer-to-inner order) and exactly one
// terminal handler, then composes them into a single middleware.Handler.
type Builder struct {
	middlewares []middleware.Middleware
	terminal    middleware.Handler
	terminalSet bool
}

// NewBuilder creates an empty Invocation Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Use appends a middleware. The first middleware registered is the
// outermost: it sees the invocation first on entry and last on exit, per
// spec §4.5.
func (b *Builder) Use(mw middleware.Middleware) *Builder {
	b.middlewares = append(b.middlewares, mw)
	return b
}

// Handle sets the innermost terminal delegate. A second call is a
// hard error, per spec's Open Question resolution — it does NOT silently
// replace the previous terminal.
func (b *Builder) Handle(terminal middleware.Handler) error {
	if b.terminalSet {
		return ErrTerminalAlreadySet
	}
	b.terminal = terminal
	b.terminalSet = true
	return nil
}

// Build composes the registered middleware around the terminal handler.
func (b *Builder) Build() (middleware.Handler, error) {
	if !b.terminalSet {
		return nil, ErrNoTerminal
	}
	return middleware.Chain(b.middlewares, b.terminal), nil
}
