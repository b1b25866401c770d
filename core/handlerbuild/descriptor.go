// Package handlerbuild implements the Handler Composer (spec §4.6) — the
// central piece of the host: it binds an arbitrary user callable into the
// uniform `(lifecycle-context) → error` delegate the pipeline runs.
//
// Spec §9's design notes mandate replacing the source language's
// reflection/attribute-based parameter binding with "explicit
// registration with a tagged union of parameter descriptors": the caller
// builds a small table of (source, type, key?) tuples with the
// combinators below, and Compose reads that table once, at registration
// time, rather than re-deriving it per invocation.
package handlerbuild

import (
	"reflect"

	"github.com/lambdahost/runtime/core/cancel"
	"github.com/lambdahost/runtime/core/lifecycle"
)

// Source is the classification a parameter is bound to, per spec §4.6's
// five-rule algorithm.
type Source int

const (
	// SourceEvent binds the parameter to the decoded event. At most one
	// parameter may carry this source.
	SourceEvent Source = iota
	// SourceKeyedService binds the parameter to a keyed dependency
	// resolution.
	SourceKeyedService
	// SourceCancellation binds the parameter to the invocation's
	// cancellation handle. At most one parameter may carry this source.
	SourceCancellation
	// SourceContext binds the parameter to the Lifecycle Context itself.
	// At most one parameter may carry this source.
	SourceContext
	// SourceService binds the parameter to an unkeyed dependency
	// resolution — the default when nothing else matches.
	SourceService
)

func (s Source) String() string {
	switch s {
	case SourceEvent:
		return "event"
	case SourceKeyedService:
		return "keyed-service"
	case SourceCancellation:
		return "cancellation"
	case SourceContext:
		return "context"
	case SourceService:
		return "service"
	default:
		return "unknown"
	}
}

// ParamSpec is one entry of the parameter descriptor table: the source a
// positional parameter is bound from, its declared Go type, and (for
// keyed services) the lookup key.
type ParamSpec struct {
	Source Source
	Type   reflect.Type
	Key    any
}

func typeTag[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// FromEvent declares a parameter of type T bound to the decoded event
// (spec §4.6 rule 1). At most one parameter in a Compose call may use
// this.
func FromEvent[T any]() ParamSpec {
	return ParamSpec{Source: SourceEvent, Type: typeTag[T]()}
}

// FromService declares a parameter of type T resolved from the
// invocation's dependency scope (the default, spec §4.6 rule 5 — spelled
// out explicitly here since Go registration is exhaustive, not
// inference-by-absence).
func FromService[T any]() ParamSpec {
	return ParamSpec{Source: SourceService, Type: typeTag[T]()}
}

// FromKeyedService declares a parameter of type T resolved from the
// dependency scope by a key literal (spec §4.6 rule 2). The key must be a
// representable constant: string, integer, or bool; anything else is
// rejected at registration time by Compose.
func FromKeyedService[T any](key any) ParamSpec {
	return ParamSpec{Source: SourceKeyedService, Type: typeTag[T](), Key: key}
}

// FromContext declares a parameter bound to the Lifecycle Context itself
// (spec §4.6 rule 4). At most one parameter in a Compose call may use
// this.
func FromContext() ParamSpec {
	return ParamSpec{Source: SourceContext, Type: reflect.TypeOf((*lifecycle.Context)(nil))}
}

// FromCancel declares a parameter bound to the invocation's cancellation
// handle (spec §4.6 rule 3). At most one parameter in a Compose call may
// use this.
func FromCancel() ParamSpec {
	return ParamSpec{Source: SourceCancellation, Type: reflect.TypeOf((*cancel.Handle)(nil))}
}
