package invocation_test

import (
	"testing"

	"github.com/lambdahost/runtime/core/invocation"
	"github.com/lambdahost/runtime/core/lifecycle"
	"github.com/lambdahost/runtime/core/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_MiddlewareOrder(t *testing.T) {
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

	b := invocation.NewBuilder()
	b.Use(outer)
	b.Use(inner)
	require.NoError(t, b.Handle(func(ctx *lifecycle.Context) error {
		order = append(order, "handler")
		return nil
	}))

	h, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, h(nil))

	assert.Equal(t, []string{"A-before", "B-before", "handler", "B-after", "A-after"}, order)
}

func TestBuilder_SecondHandleIsHardError(t *testing.T) {
	t.Parallel()

	b := invocation.NewBuilder()
	require.NoError(t, b.Handle(func(ctx *lifecycle.Context) error { return nil }))
	err := b.Handle(func(ctx *lifecycle.Context) error { return nil })
	assert.ErrorIs(t, err, invocation.ErrTerminalAlreadySet)
}

func TestBuilder_BuildWithoutHandleFails(t *testing.T) {
	t.Parallel()

	b := invocation.NewBuilder()
	_, err := b.Build()
	assert.ErrorIs(t, err, invocation.ErrNoTerminal)
}
