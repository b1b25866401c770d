// Package cancel implements the Cancellation Factory (spec §4.1): it
// produces a deadline-bounded cancellation handle from a remaining-time
// signal, scheduled to fire strictly before the orchestrator's hard
// deadline.
package cancel

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidContext is returned when remaining time is not strictly
// positive.
var ErrInvalidContext = errors.New("cancel: remaining time must be positive")

// ErrInsufficientBudget is returned when remaining time does not exceed
// the configured buffer.
var ErrInsufficientBudget = errors.New("cancel: remaining time does not exceed cancellation buffer")

// Handle wraps a context.Context/CancelFunc pair scheduled to fire at
// deadline-minus-buffer. It may be canceled early by the caller (e.g. once
// a handler returns) to release the underlying timer.
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	fireAt time.Time
}

// Context returns the cancellation context. Done() closes at fireAt or
// when Release is called, whichever comes first.
func (h *Handle) Context() context.Context { return h.ctx }

// FireAt returns the absolute time the handle is scheduled to fire.
func (h *Handle) FireAt() time.Time { return h.fireAt }

// Release cancels the handle early, stopping its underlying timer. Safe
// to call multiple times.
func (h *Handle) Release() { h.cancel() }

// Factory produces cancellation handles bound to a parent context (the
// process stop signal is threaded in via parent, per spec §5: "every
// per-invocation handle is linked so either cause fires the effective
// handle").
type Factory struct {
	buffer time.Duration
}

// NewFactory builds a Factory bound to a fixed cancellation buffer.
func NewFactory(buffer time.Duration) *Factory {
	return &Factory{buffer: buffer}
}

// New produces a cancel.Handle derived from parent, firing at
// now+remaining-buffer. now is injected for testability.
func (f *Factory) New(parent context.Context, now time.Time, remaining time.Duration) (*Handle, error) {
	if remaining <= 0 {
		return nil, ErrInvalidContext
	}
	if remaining <= f.buffer {
		return nil, ErrInsufficientBudget
	}

	fireAt := now.Add(remaining - f.buffer)
	ctx, cancel := context.WithDeadline(parent, fireAt)
	return &Handle{ctx: ctx, cancel: cancel, fireAt: fireAt}, nil
}

// NewFromDeadline is a convenience over New for callers that only have an
// absolute deadline rather than a precomputed remaining duration.
func (f *Factory) NewFromDeadline(parent context.Context, now, deadline time.Time) (*Handle, error) {
	return f.New(parent, now, deadline.Sub(now))
}
