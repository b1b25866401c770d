// Package middleware implements the Middleware Delegate and its
// composition (spec §3 "Middleware Delegate", §4.5 Invocation Builder
// composition rule), adapted from the teacher's root chain.go.
package middleware

import "github.com/lambdahost/runtime/core/lifecycle"

// Handler is the uniform `(lifecycle-context) → error` shape the pipeline
// composes down to, matching the composed Handler Delegate in spec §3.
type Handler func(ctx *lifecycle.Context) error

// Middleware wraps a Handler to add cross-cutting functionality, matching
// spec §3's `(lifecycle-context, next) → awaitable<void>` shape collapsed
// to Go's explicit next-handler-closure idiom.
type Middleware func(next Handler) Handler

// Chain builds a single Handler from a middleware stack and a terminal
// endpoint. The first middleware in the slice sees the invocation first
// (outermost); the last sees it just before the handler, per spec §4.5.
//
// Adapted directly from the teacher's root chain.go: same reverse-order
// wrap algorithm, generalized from HandlerFunc[C Context] to this
// package's lifecycle.Context-shaped Handler.
func Chain(middlewares []Middleware, endpoint Handler) Handler {
	handler := endpoint
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
