package testharness

import (
	"context"
	"fmt"

	"github.com/lambdahost/runtime/core/serializer"
)

// Client is the Test Harness Client (spec §4.8): a thin façade over Server
// that encodes/decodes through the same Serializer port production uses,
// so a test reads and writes typed Go values rather than raw bytes.
type Client struct {
	server *Server
	ser    serializer.Serializer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientSerializer overrides the Serializer used to encode requests and
// decode responses (defaults to JSON, matching the production default).
func WithClientSerializer(s serializer.Serializer) ClientOption {
	return func(c *Client) { c.ser = s }
}

// NewClient wraps a started (or about-to-be-started) Server.
func NewClient(server *Server, opts ...ClientOption) *Client {
	c := &Client{server: server, ser: serializer.JSON{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke encodes event, sends it through the loopback Runtime API, and
// returns the raw Result. Callers that want a typed response should use
// the package-level Invoke function instead.
func (c *Client) Invoke(ctx context.Context, event any) (Result, error) {
	body, err := c.ser.Encode(event)
	if err != nil {
		return Result{}, fmt.Errorf("testharness: encoding event: %w", err)
	}
	return c.server.Invoke(ctx, body)
}

// Invoke sends event through client and decodes a successful response into
// T. On failure it returns an error describing the posted error body,
// matching spec §7's `{WasSuccess:false, Error:{...}}` surface.
func Invoke[T any](ctx context.Context, c *Client, event any) (T, error) {
	var zero T

	res, err := c.Invoke(ctx, event)
	if err != nil {
		return zero, err
	}
	if !res.WasSuccess {
		if res.Error != nil {
			return zero, fmt.Errorf("%s: %s", res.Error.ErrorType, res.Error.ErrorMessage)
		}
		return zero, fmt.Errorf("testharness: invocation failed with no error body")
	}

	var out T
	if err := c.ser.Decode(res.Response, &out); err != nil {
		return zero, fmt.Errorf("testharness: decoding response: %w", err)
	}
	return out, nil
}
