package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lambdahost/runtime/core/cancel"
	"github.com/lambdahost/runtime/core/feature"
)

// Properties is the per-process, cross-invocation string-keyed map (spec
// §3/§5): read/write from any handler, concurrency safety is the caller's
// responsibility. The host documents its intended use as Init-time only.
type Properties struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewProperties builds an empty Properties map.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]any)}
}

// Get returns the value stored under key, if any.
func (p *Properties) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Set stores a value under key, replacing any prior value.
func (p *Properties) Set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Context is the view seen by middleware, the handler, and lifecycle
// callbacks (spec §4.3).
type Context struct {
	context.Context

	record       Record
	cancelHandle *cancel.Handle
	features     *feature.Collection
	properties   *Properties
	scopeFactory ScopeFactory

	scratchpad map[any]any

	scopeOnce sync.Once
	scope     Scope
	scopeErr  error
	disposed  atomic.Bool
}

// New builds a Lifecycle Context for one invocation. The dependency scope
// is NOT created here; it materializes lazily the first time Services is
// read, per spec §4.3.
func New(
	record Record,
	scopeFactory ScopeFactory,
	properties *Properties,
	features *feature.Collection,
	cancelHandle *cancel.Handle,
) *Context {
	return &Context{
		Context:      cancelHandle.Context(),
		record:       record,
		cancelHandle: cancelHandle,
		features:     features,
		properties:   properties,
		scopeFactory: scopeFactory,
		scratchpad:   make(map[any]any),
	}
}

// Record returns the read-only invocation metadata.
func (c *Context) Record() Record { return c.record }

// Cancel returns the invocation's cancellation handle.
func (c *Context) Cancel() *cancel.Handle { return c.cancelHandle }

// Features returns the per-invocation feature collection. Not safe for
// concurrent use within one invocation, per spec §4.3's invariant.
func (c *Context) Features() *feature.Collection { return c.features }

// Properties returns the per-process cross-invocation map.
func (c *Context) Properties() *Properties { return c.properties }

// Scratch returns the per-invocation scratchpad, an arbitrary
// key-to-value map cleared when the context is disposed.
func (c *Context) Scratch() map[any]any { return c.scratchpad }

// Services lazily materializes (at most once) and returns the dependency
// scope for this invocation.
func (c *Context) Services() (Scope, error) {
	c.scopeOnce.Do(func() {
		if c.scopeFactory == nil {
			c.scope, c.scopeErr = NoopScope{}, nil
			return
		}
		c.scope, c.scopeErr = c.scopeFactory.NewScope()
	})
	return c.scope, c.scopeErr
}

// Dispose releases the dependency scope (if materialized) and clears the
// scratchpad. Exactly-once; subsequent calls are no-ops, satisfying spec
// §4.3's "disposed exactly once" invariant.
func (c *Context) Dispose() error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}
	for k := range c.scratchpad {
		delete(c.scratchpad, k)
	}
	if c.scope != nil {
		return c.scope.Close()
	}
	return nil
}

// current stores the process-wide "current" Lifecycle Context. A simple
// atomic.Pointer suffices (rather than a goroutine-local/async-local):
// spec §5 mandates that invocations within one process are serialized, so
// at most one Context is ever "current" at a time.
var current atomic.Pointer[Context]

// SetCurrent installs ctx as the process-wide "current" context. Called by
// the orchestrator before dispatch and cleared (nil) just before disposal. This
// is a convenience for deep code that can't have the context threaded to
// it, not a requirement — see spec §9's design note on async-locals.
func SetCurrent(ctx *Context) { current.Store(ctx) }

// Current returns the process-wide "current" Lifecycle Context, or nil if
// none is in flight.
func Current() *Context { return current.Load() }
