package testharness_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lambdahost "github.com/lambdahost/runtime"
	"github.com/lambdahost/runtime/core/cancel"
	"github.com/lambdahost/runtime/core/handlerbuild"
	"github.com/lambdahost/runtime/core/invocation"
	"github.com/lambdahost/runtime/core/lifecycle"
	"github.com/lambdahost/runtime/core/middleware"
	"github.com/lambdahost/runtime/core/orchestrator"
	"github.com/lambdahost/runtime/testharness"
)

func greetingHandler(name string) (string, error) {
	if name == "" {
		return "", errors.New("Name is required. (Parameter 'name')")
	}
	return "Hello " + name + "!", nil
}

func buildGreetingPipeline(t *testing.T) middleware.Handler {
	t.Helper()
	h, err := handlerbuild.Compose(greetingHandler, []handlerbuild.ParamSpec{handlerbuild.FromEvent[string]()})
	require.NoError(t, err)
	b := invocation.NewBuilder()
	require.NoError(t, b.Handle(h))
	pipeline, err := b.Build()
	require.NoError(t, err)
	return pipeline
}

func startGreetingHarness(t *testing.T) (*testharness.Server, *testharness.Client) {
	t.Helper()
	pipeline := buildGreetingPipeline(t)
	server := testharness.NewServer()
	err := server.Start(context.Background(), nil, pipeline, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server, testharness.NewClient(server)
}

// Scenario #1: (name) -> "Hello "+name+"!" on "Jonas" succeeds.
func TestHarness_HelloJonas(t *testing.T) {
	t.Parallel()
	_, client := startGreetingHarness(t)

	got, err := testharness.Invoke[string](context.Background(), client, "Jonas")
	require.NoError(t, err)
	assert.Equal(t, "Hello Jonas!", got)
}

// Scenario #2: the handler throws on an empty string with the exact
// message "Name is required. (Parameter 'name')".
func TestHarness_EmptyNameFails(t *testing.T) {
	t.Parallel()
	_, client := startGreetingHarness(t)

	_, err := testharness.Invoke[string](context.Background(), client, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name is required. (Parameter 'name')")
}

// Scenario #3: five concurrent callers all succeed correctly paired.
func TestHarness_FiveConcurrentInvocations(t *testing.T) {
	t.Parallel()
	_, client := startGreetingHarness(t)

	var wg sync.WaitGroup
	results := make([]string, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("User%d", i+1)
			got, err := testharness.Invoke[string](context.Background(), client, name)
			results[i] = got
			errs[i] = err
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("Hello User%d!", i+1), results[i])
	}
}

// Scenario #4: an Init delegate returning false never issues /next and
// reaches Stopped with InitStatus == InitFailed.
func TestHarness_InitFailureReachesStoppedWithoutInvocation(t *testing.T) {
	t.Parallel()

	server := testharness.NewServer()
	err := server.Start(context.Background(),
		func(ctx context.Context, props *lifecycle.Properties) (bool, error) { return false, nil },
		nil, nil,
	)
	require.NoError(t, err)

	assert.Equal(t, testharness.InitFailed, server.InitStatus())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, server.Stop(ctx), "Stop surfaces Run's init-failure error")
	assert.Equal(t, orchestrator.Stopped, server.Orchestrator().State())
}

// Scenario #5: a handler that blocks past its deadline is canceled at
// deadline-minus-buffer and the failure is surfaced as a cancellation-kind
// error.
func TestHarness_CancellationFiresBeforeDeadline(t *testing.T) {
	t.Parallel()

	handler := func(name string, h *cancel.Handle) (string, error) {
		select {
		case <-time.After(60 * time.Second):
			return "too slow", nil
		case <-h.Context().Done():
			return "", lambdahost.NewCancellationError("CancellationError", "invocation exceeded its deadline", h.Context().Err())
		}
	}
	composed, err := handlerbuild.Compose(handler, []handlerbuild.ParamSpec{
		handlerbuild.FromEvent[string](),
		handlerbuild.FromCancel(),
	})
	require.NoError(t, err)
	b := invocation.NewBuilder()
	require.NoError(t, b.Handle(composed))
	pipeline, err := b.Build()
	require.NoError(t, err)

	server := testharness.NewServer(testharness.WithInvocationBudget(time.Second))
	err = server.Start(context.Background(), nil, pipeline, nil,
		orchestrator.WithCancelFactory(cancel.NewFactory(100*time.Millisecond)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})

	client := testharness.NewClient(server)
	start := time.Now()
	_, invokeErr := testharness.Invoke[string](context.Background(), client, "x")
	elapsed := time.Since(start)

	require.Error(t, invokeErr)
	assert.Contains(t, invokeErr.Error(), "CancellationError")
	assert.Less(t, elapsed, 1200*time.Millisecond, "cancellation should fire well before the 60s sleep completes")
}

// Scenario #6: two middleware (outer logging "A", inner logging "B") wrap
// a handler returning "H"; order is A-before, B-before, handler, B-after,
// A-after, and the response is unaffected.
func TestHarness_MiddlewareOrdering(t *testing.T) {
	t.Parallel()

	var order []string
	outer := func(next middleware.Handler) middleware.Handler {
		return func(ctx *lifecycle.Context) error {
			order = append(order, "A-before")
			err := next(ctx)
			order = append(order, "A-after")
			return err
		}
	}
	inner := func(next middleware.Handler) middleware.Handler {
		return func(ctx *lifecycle.Context) error {
			order = append(order, "B-before")
			err := next(ctx)
			order = append(order, "B-after")
			return err
		}
	}

	handler := func() (string, error) {
		order = append(order, "handler")
		return "H", nil
	}
	composed, err := handlerbuild.Compose(handler, nil)
	require.NoError(t, err)

	b := invocation.NewBuilder()
	b.Use(outer)
	b.Use(inner)
	require.NoError(t, b.Handle(composed))
	pipeline, err := b.Build()
	require.NoError(t, err)

	server := testharness.NewServer()
	require.NoError(t, server.Start(context.Background(), nil, pipeline, nil))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})

	client := testharness.NewClient(server)
	got, err := testharness.Invoke[string](context.Background(), client, nil)
	require.NoError(t, err)
	assert.Equal(t, "H", got)
	assert.Equal(t, []string{"A-before", "B-before", "handler", "B-after", "A-after"}, order)
}
