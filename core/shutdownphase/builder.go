// Package shutdownphase implements the Shutdown Builder (spec §4.5): it
// registers and composes Shutdown delegates, run CONCURRENTLY and bounded
// by a budget — spec's Open Question on ordering is explicitly resolved
// in favor of concurrent execution with aggregated errors.
package shutdownphase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Delegate is the Shutdown Delegate shape from spec §3:
// `(lifecycle-context) → awaitable<void>`.
type Delegate func(ctx context.Context) error

// Builder accumulates Shutdown delegates. No ordering among them is
// guaranteed or meaningful, per spec §5.
type Builder struct {
	delegates []Delegate
}

// NewBuilder creates an empty Shutdown Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// OnShutdown appends a delegate.
func (b *Builder) OnShutdown(d Delegate) *Builder {
	b.delegates = append(b.delegates, d)
	return b
}

// Build returns a composed function bounded by budget. All registered
// delegates run concurrently; a handler blocking on an external flush
// does not hold up the others. Every delegate runs to completion or until
// budget expires — errors are collected from whichever finished and
// joined into a single aggregate error, per spec §4.5/§7 ("all exceptions
// are collected and re-surfaced as an aggregate").
//
// golang.org/x/sync/errgroup provides the shared-context/goroutine
// bookkeeping; its fail-fast Wait() semantics are deliberately NOT relied
// on for the aggregate — every goroutine captures its own error into a
// slot rather than returning it to the group, so one delegate erroring
// does not cancel the others' context early.
func (b *Builder) Build(budget time.Duration) func(parent context.Context) error {
	delegates := b.delegates
	return func(parent context.Context) error {
		ctx, cancel := context.WithTimeout(parent, budget)
		defer cancel()

		errs := make([]error, len(delegates))
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		_ = gctx // each delegate gets the shared ctx directly below

		for i, d := range delegates {
			i, d := i, d
			g.Go(func() error {
				err := runOne(ctx, d)
				if err != nil {
					mu.Lock()
					errs[i] = err
					mu.Unlock()
				}
				return nil // never propagate to errgroup; we aggregate ourselves
			})
		}

		done := make(chan struct{})
		go func() {
			_ = g.Wait() // always nil: goroutines never return non-nil
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}

		mu.Lock()
		joined := errors.Join(errs...)
		mu.Unlock()
		if ctx.Err() != nil && joined == nil {
			// Budget overrun with no delegate error recorded still isn't
			// reported as a failure of Stop itself; per spec §4.5 "budget
			// overrun does not kill the process; the orchestrator will."
			return nil
		}
		return joined
	}
}

func runOne(ctx context.Context, d Delegate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdownphase: delegate panicked: %v", r)
		}
	}()
	return d(ctx)
}
