// Package feature implements the Feature Collection (spec §4.2): a
// per-invocation typed property bag with lazy provider fallback, keyed by
// reflect.Type rather than any host-language-specific type tag, per the
// design note in spec §9 ("use a type descriptor... never require
// host-language type reflection [beyond registration time]").
package feature

import (
	"errors"
	"reflect"
)

// ErrMissingFeature is returned by GetRequired when no stored instance and
// no provider can produce the requested type.
var ErrMissingFeature = errors.New("feature: no instance or provider for requested type")

// Provider lazily creates a feature instance for a requested type. It
// returns ok=false if it doesn't claim the type.
type Provider interface {
	TryCreate(t reflect.Type) (any, bool)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(t reflect.Type) (any, bool)

// TryCreate implements Provider.
func (f ProviderFunc) TryCreate(t reflect.Type) (any, bool) { return f(t) }

// Collection is a per-invocation, single-threaded property bag. It must
// not be shared across invocations or accessed concurrently within one.
type Collection struct {
	instances map[reflect.Type]any
	providers []Provider
}

// NewCollection builds an empty Collection with the given ordered provider
// list. Providers are consulted in order; the first to claim a type wins.
func NewCollection(providers ...Provider) *Collection {
	return &Collection{
		instances: make(map[reflect.Type]any),
		providers: providers,
	}
}

// typeTag returns the reflect.Type for the generic parameter T.
func typeTag[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Get returns the stored instance of T, or invokes providers in order
// until one claims T, memoizing the result. It returns the zero value and
// false if absent.
func Get[T any](c *Collection) (T, bool) {
	var zero T
	t := typeTag[T]()

	if v, ok := c.instances[t]; ok {
		typed, ok := v.(T)
		return typed, ok
	}

	for _, p := range c.providers {
		if v, ok := p.TryCreate(t); ok {
			typed, ok := v.(T)
			if !ok {
				continue
			}
			c.instances[t] = typed
			return typed, true
		}
	}

	return zero, false
}

// TryGet is an alias of Get kept for parity with spec §4.2's
// `TryGet<T>() → (bool, T?)` operation name; the boolean/value order
// matches Go convention rather than the spec's pseudo-code order.
func TryGet[T any](c *Collection) (T, bool) { return Get[T](c) }

// GetRequired returns the instance of T or ErrMissingFeature.
func GetRequired[T any](c *Collection) (T, error) {
	v, ok := Get[T](c)
	if !ok {
		var zero T
		return zero, ErrMissingFeature
	}
	return v, nil
}

// Set installs or replaces the stored instance of T.
func Set[T any](c *Collection, v T) {
	c.instances[typeTag[T]()] = v
}

// GetByType is the type-erased counterpart of Get, for callers (like the
// Handler Composer) that only have a reflect.Type in hand, not a compile
// time type parameter.
func GetByType(c *Collection, t reflect.Type) (any, bool) {
	if v, ok := c.instances[t]; ok {
		return v, true
	}
	for _, p := range c.providers {
		if v, ok := p.TryCreate(t); ok {
			c.instances[t] = v
			return v, true
		}
	}
	return nil, false
}

// SetByType is the type-erased counterpart of Set.
func SetByType(c *Collection, t reflect.Type, v any) {
	c.instances[t] = v
}

// AddProvider appends a provider to this Collection's provider list. Safe
// to call mid-invocation since a Collection is never shared across
// invocations or accessed concurrently within one, per spec §4.2/§4.3.
func (c *Collection) AddProvider(p Provider) {
	c.providers = append(c.providers, p)
}

// Entry is one (type, instance) pair surfaced by Collection.All.
type Entry struct {
	Type     reflect.Type
	Instance any
}

// All iterates the already-materialized (type, instance) pairs. It does
// not trigger provider creation.
func (c *Collection) All() []Entry {
	entries := make([]Entry, 0, len(c.instances))
	for t, v := range c.instances {
		entries = append(entries, Entry{Type: t, Instance: v})
	}
	return entries
}

// WithInvocationProviders returns a new Collection sharing this
// Collection's base providers plus the given per-invocation providers
// appended after them, per spec §4.2: "process-wide providers take
// priority". Any already-materialized instances are NOT carried over;
// this is meant to be called once per invocation against a fresh
// Collection produced by a Factory, not to clone mid-flight state.
func (c *Collection) WithInvocationProviders(extra ...Provider) *Collection {
	providers := make([]Provider, 0, len(c.providers)+len(extra))
	providers = append(providers, c.providers...)
	providers = append(providers, extra...)
	return NewCollection(providers...)
}

// Factory builds feature collections for each invocation from a shared
// base provider list (process-wide), optionally appending a per-invocation
// provider list, per spec §4.2.
type Factory struct {
	base []Provider
}

// NewFactory builds a Factory over the given process-wide provider list.
func NewFactory(base ...Provider) *Factory {
	return &Factory{base: base}
}

// New builds a fresh Collection for one invocation, appending per-call
// providers after the process-wide ones.
func (f *Factory) New(perInvocation ...Provider) *Collection {
	providers := make([]Provider, 0, len(f.base)+len(perInvocation))
	providers = append(providers, f.base...)
	providers = append(providers, perInvocation...)
	return NewCollection(providers...)
}
