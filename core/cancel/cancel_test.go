package cancel_test

import (
	"context"
	"testing"
	"time"

	"github.com/lambdahost/runtime/core/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_New(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-positive remaining time", func(t *testing.T) {
		t.Parallel()
		f := cancel.NewFactory(100 * time.Millisecond)
		_, err := f.New(context.Background(), time.Now(), 0)
		assert.ErrorIs(t, err, cancel.ErrInvalidContext)
	})

	t.Run("rejects remaining time at or below buffer", func(t *testing.T) {
		t.Parallel()
		f := cancel.NewFactory(time.Second)
		_, err := f.New(context.Background(), time.Now(), time.Second)
		assert.ErrorIs(t, err, cancel.ErrInsufficientBudget)
	})

	t.Run("fires at now+remaining-buffer", func(t *testing.T) {
		t.Parallel()
		f := cancel.NewFactory(100 * time.Millisecond)
		now := time.Now()
		h, err := f.New(context.Background(), now, time.Second)
		require.NoError(t, err)
		defer h.Release()

		expected := now.Add(900 * time.Millisecond)
		assert.WithinDuration(t, expected, h.FireAt(), 5*time.Millisecond)
	})

	t.Run("fires handle context within deadline", func(t *testing.T) {
		t.Parallel()
		f := cancel.NewFactory(10 * time.Millisecond)
		h, err := f.New(context.Background(), time.Now(), 30*time.Millisecond)
		require.NoError(t, err)
		defer h.Release()

		select {
		case <-h.Context().Done():
		case <-time.After(100 * time.Millisecond):
			t.Fatal("handle did not fire in time")
		}
	})

	t.Run("release stops the timer early", func(t *testing.T) {
		t.Parallel()
		f := cancel.NewFactory(10 * time.Millisecond)
		h, err := f.New(context.Background(), time.Now(), time.Hour)
		require.NoError(t, err)
		h.Release()

		select {
		case <-h.Context().Done():
		case <-time.After(50 * time.Millisecond):
			t.Fatal("handle was not released")
		}
	})

	t.Run("process stop signal propagates through parent", func(t *testing.T) {
		t.Parallel()
		f := cancel.NewFactory(10 * time.Millisecond)
		parent, stop := context.WithCancel(context.Background())
		h, err := f.New(parent, time.Now(), time.Hour)
		require.NoError(t, err)
		defer h.Release()

		stop()

		select {
		case <-h.Context().Done():
		case <-time.After(50 * time.Millisecond):
			t.Fatal("handle did not observe parent cancellation")
		}
	})
}
