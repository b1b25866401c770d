// Package envelope implements the Envelope Protocol (spec §4 "Envelope
// Protocol"): a contract for two-stage payload extraction/packing inside
// events. Concrete envelope formats (API Gateway, SQS, SNS, ...) are
// plug-ins implementing this interface; the core only depends on the
// contract.
package envelope

// Envelope unwraps an outer event's inner payload (and any carried
// metadata) before decoding, and wraps an encoded response back into the
// outer shape the invoker expects.
type Envelope interface {
	// Unwrap extracts the inner payload bytes and any metadata (e.g.
	// headers, query string) from a raw outer event.
	Unwrap(raw []byte) (inner []byte, meta map[string]string, err error)

	// Wrap packs an encoded inner response (plus any metadata the handler
	// produced) back into the outer envelope shape.
	Wrap(inner []byte, meta map[string]string) ([]byte, error)
}

// Passthrough is the default Envelope: the event bytes ARE the inner
// payload, with no metadata extraction. Most direct-invoke handlers (as
// opposed to API-Gateway-fronted ones) use this.
type Passthrough struct{}

// Unwrap implements Envelope.
func (Passthrough) Unwrap(raw []byte) ([]byte, map[string]string, error) {
	return raw, nil, nil
}

// Wrap implements Envelope.
func (Passthrough) Wrap(inner []byte, _ map[string]string) ([]byte, error) {
	return inner, nil
}

var _ Envelope = Passthrough{}
