// Package lifecycle implements the Invocation Record and Lifecycle
// Context (spec §3/§4.3): the per-invocation state threaded through
// middleware, the handler, and lifecycle callbacks.
package lifecycle

import "time"

// Record is the unit of work dequeued from the Runtime API Client's
// `/next` call. It is never retained across invocations.
type Record struct {
	RequestID           string
	InvokedFunctionARN  string
	Deadline            time.Time
	TraceID             string
	TenantID             string
	ClientContext       string
	Identity             string
	RemainingAtDispatch time.Duration
	EventBytes          []byte
}

// Remaining returns the time left until Deadline, as observed at `now`.
func (r Record) Remaining(now time.Time) time.Duration {
	return r.Deadline.Sub(now)
}
