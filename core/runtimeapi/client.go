// Package runtimeapi implements the Runtime API Client (spec §4.4): the
// HTTP long-poll client speaking the Lambda Custom Runtime wire protocol
// against a local orchestrator.
package runtimeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lambdahost/runtime/core/lifecycle"
	"github.com/lambdahost/runtime/internal/obslog"
)

const apiVersion = "2018-06-01"

// Header names on the /next response, bit-exact per spec §4.4.
const (
	HeaderRequestID  = "Lambda-Runtime-Aws-Request-Id"
	HeaderDeadlineMS = "Lambda-Runtime-Deadline-Ms"
	HeaderARN        = "Lambda-Runtime-Invoked-Function-Arn"
	HeaderTraceID    = "Lambda-Runtime-Trace-Id"
	HeaderClientCtx  = "Lambda-Runtime-Client-Context"
	HeaderIdentity   = "Lambda-Runtime-Cognito-Identity"
)

// ErrorBody is the JSON object posted to /error and /init/error.
type ErrorBody struct {
	ErrorType    string   `json:"errorType"`
	ErrorMessage string   `json:"errorMessage"`
	StackTrace   []string `json:"stackTrace"`
}

// Client speaks the Runtime API wire protocol over a single keep-alive
// HTTP client, per spec §4.4's "connection reuse is required" rule.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger

	// retryPolicy bounds the backoff applied to transport-level failures
	// on Next and PostResponse; once it gives up, the error is returned to
	// the caller. PostInvocationError and PostInitError make a single
	// attempt and do not use it.
	retryPolicy func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport (Host Options'
// transport-client-override).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetryPolicy overrides the default backoff policy used around
// transport-level retries.
func WithRetryPolicy(policy func() backoff.BackOff) Option {
	return func(c *Client) { c.retryPolicy = policy }
}

// New builds a Client targeting the given runtime-api-endpoint
// (host:port, e.g. "127.0.0.1:9001" — AWS_LAMBDA_RUNTIME_API's value).
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: 0, // the /next long-poll is intentionally unbounded
		},
		baseURL: fmt.Sprintf("http://%s/%s", endpoint, apiVersion),
		logger:  obslog.New(),
		retryPolicy: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 5 * time.Second
			b.InitialInterval = 25 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next performs the long-poll /runtime/invocation/next call and decodes
// the response into a lifecycle.Record. It is NOT cancellable by any
// per-invocation cancellation handle — only by ctx, which should carry the
// process stop signal, per spec §4.4/§5.
func (c *Client) Next(ctx context.Context) (*lifecycle.Record, error) {
	url := c.baseURL + "/runtime/invocation/next"

	var record *lifecycle.Record
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err // retryable transport error
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("runtimeapi: next: unexpected status %d: %s", resp.StatusCode, body))
		}

		rec, err := parseNextResponse(resp)
		if err != nil {
			return backoff.Permanent(err)
		}
		record = rec
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(c.retryPolicy(), ctx)); err != nil {
		return nil, fmt.Errorf("runtimeapi: next: %w", err)
	}
	return record, nil
}

func parseNextResponse(resp *http.Response) (*lifecycle.Record, error) {
	deadlineMS, err := strconv.ParseInt(resp.Header.Get(HeaderDeadlineMS), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("runtimeapi: invalid %s header: %w", HeaderDeadlineMS, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("runtimeapi: reading event body: %w", err)
	}

	requestID := resp.Header.Get(HeaderRequestID)
	deadline := time.UnixMilli(deadlineMS)

	return &lifecycle.Record{
		RequestID:           requestID,
		InvokedFunctionARN:  resp.Header.Get(HeaderARN),
		Deadline:            deadline,
		TraceID:             resp.Header.Get(HeaderTraceID),
		ClientContext:       resp.Header.Get(HeaderClientCtx),
		Identity:            resp.Header.Get(HeaderIdentity),
		RemainingAtDispatch: time.Until(deadline),
		EventBytes:          body,
	}, nil
}

// PostResponse posts a successful invocation result.
func (c *Client) PostResponse(ctx context.Context, requestID string, body []byte) error {
	url := fmt.Sprintf("%s/runtime/invocation/%s/response", c.baseURL, requestID)
	return c.post(ctx, url, body, "application/json")
}

// PostInvocationError posts a structured error for one invocation, per
// spec §4.4. A failure here is logged and NOT retried; the loop continues
// with the next /next regardless.
func (c *Client) PostInvocationError(ctx context.Context, requestID string, body ErrorBody) error {
	url := fmt.Sprintf("%s/runtime/invocation/%s/error", c.baseURL, requestID)
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("runtimeapi: marshal error body: %w", err)
	}
	if err := c.postOnce(ctx, url, data, "application/json"); err != nil {
		c.logger.ErrorContext(ctx, "failed to post invocation error",
			obslog.RequestID(requestID), obslog.Err(err))
		return err
	}
	return nil
}

// PostInitError posts a structured error aborting startup. Like
// PostInvocationError, a transport failure here is logged and not
// retried.
func (c *Client) PostInitError(ctx context.Context, body ErrorBody) error {
	url := c.baseURL + "/runtime/init/error"
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("runtimeapi: marshal init error body: %w", err)
	}
	if err := c.postOnce(ctx, url, data, "application/json"); err != nil {
		c.logger.Error("failed to post init error", obslog.Err(err))
		return err
	}
	return nil
}

// post performs a bounded-retry POST, used for PostResponse where a
// transport hiccup should not cost the invocation its result. Only
// connection-level failures are retried; a non-2xx status or a malformed
// request is permanent.
func (c *Client) post(ctx context.Context, url string, body []byte, contentType string) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.http.Do(req)
		if err != nil {
			return err // retryable
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("runtimeapi: post %s: unexpected status %d", url, resp.StatusCode))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(c.retryPolicy(), ctx))
}

// postOnce performs a single POST attempt with no retry, used directly by
// the error-posting paths per spec §4.4/§7 ("a failure to post an error is
// logged and does not retry; the loop continues with the next /next").
func (c *Client) postOnce(ctx context.Context, url string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("runtimeapi: post %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
