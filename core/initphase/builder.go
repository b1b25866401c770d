// Package initphase implements the Init Builder (spec §4.5): it registers
// and composes Init delegates, run sequentially and bounded by a shared
// init timeout.
package initphase

import (
	"context"
	"time"

	"github.com/lambdahost/runtime/core/lifecycle"
)

// Delegate is the Init Delegate shape from spec §3:
// `(lifecycle-context) -> awaitable<bool>`, collapsed to Go's synchronous
// `(context) -> (bool, error)`: a thrown exception in the source language
// maps to a non-nil error here, and both have "the same effect" per spec.
// props is the same *lifecycle.Properties map every invocation's Lifecycle
// Context carries, per spec §6's recommendation to use it only from Init;
// Init is the one place that guidance names, so it must be reachable here.
type Delegate func(ctx context.Context, props *lifecycle.Properties) (bool, error)

// Builder accumulates Init delegates in registration order.
type Builder struct {
	delegates []Delegate
}

// NewBuilder creates an empty Init Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// OnInit appends a delegate, run in registration order.
func (b *Builder) OnInit(d Delegate) *Builder {
	b.delegates = append(b.delegates, d)
	return b
}

// Build returns a composed delegate bounded by timeout. Per spec §4.5:
// handlers run strictly sequentially in registration order; if one
// returns false or errors, the REMAINING handlers still run; the overall
// result is false and the first error is remembered and returned
// alongside it.
func (b *Builder) Build(timeout time.Duration) func(parent context.Context, props *lifecycle.Properties) (bool, error) {
	delegates := b.delegates
	return func(parent context.Context, props *lifecycle.Properties) (bool, error) {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		ok := true
		var firstErr error

		for _, d := range delegates {
			succeeded, err := runOne(ctx, props, d)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if err != nil || !succeeded {
				ok = false
			}
		}

		return ok, firstErr
	}
}

// runOne recovers a panicking delegate into an error, since spec §4.5
// states "throwing has the same effect [as returning false]" and a Go
// panic is this host's closest analogue to an unchecked throw.
func runOne(ctx context.Context, props *lifecycle.Properties, d Delegate) (succeeded bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			succeeded = false
			err = panicToError(r)
		}
	}()
	return d(ctx, props)
}
