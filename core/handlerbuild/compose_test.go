package handlerbuild_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/lambdahost/runtime/core/cancel"
	"github.com/lambdahost/runtime/core/envelope"
	"github.com/lambdahost/runtime/core/feature"
	"github.com/lambdahost/runtime/core/handlerbuild"
	"github.com/lambdahost/runtime/core/lifecycle"
	"github.com/lambdahost/runtime/core/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Name string `json:"name"`
}

type database struct{ label string }

type fakeScope struct {
	byType  map[string]any
	byKeyed map[string]any
}

func (f *fakeScope) Resolve(tag any) (any, error) {
	if v, ok := f.byType[typeKey(tag)]; ok {
		return v, nil
	}
	return nil, lifecycle.ErrServiceNotRegistered{Tag: tag}
}

func (f *fakeScope) ResolveKeyed(tag any, key any) (any, error) {
	k := typeKey(tag) + ":" + keyKey(key)
	if v, ok := f.byKeyed[k]; ok {
		return v, nil
	}
	return nil, lifecycle.ErrServiceNotRegistered{Tag: tag, Key: key}
}

func (f *fakeScope) Close() error { return nil }

// typeKey/keyKey stringify a reflect.Type tag or a key literal for use as
// a map key in this fake in-memory scope.
func typeKey(tag any) string { return fmt.Sprintf("%v", tag) }
func keyKey(key any) string  { return fmt.Sprintf("%v", key) }

func newContextForTest(t *testing.T, eventBytes []byte, scope *fakeScope) *lifecycle.Context {
	t.Helper()
	factory := cancel.NewFactory(100 * time.Millisecond)
	handle, err := factory.New(context.Background(), time.Now(), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(handle.Release)

	rec := lifecycle.Record{RequestID: "req-1", EventBytes: eventBytes}
	features := feature.NewCollection()

	var scopeFactory lifecycle.ScopeFactory
	if scope != nil {
		scopeFactory = fakeScopeFactory{scope: scope}
	}

	return lifecycle.New(rec, scopeFactory, lifecycle.NewProperties(), features, handle)
}

type fakeScopeFactory struct{ scope *fakeScope }

func (f fakeScopeFactory) NewScope() (lifecycle.Scope, error) { return f.scope, nil }

func TestCompose_EventAndResponse(t *testing.T) {
	t.Parallel()

	fn := func(evt greeting) (string, error) {
		if evt.Name == "" {
			return "", errors.New("Name is required.")
		}
		return "Hello " + evt.Name + "!", nil
	}

	handler, err := handlerbuild.Compose(fn, []handlerbuild.ParamSpec{
		handlerbuild.FromEvent[greeting](),
	})
	require.NoError(t, err)

	ctx := newContextForTest(t, []byte(`{"name":"Jonas"}`), nil)
	require.NoError(t, handler(ctx))

	body, err := handlerbuild.EncodeResponse(ctx, serializer.JSON{})
	require.NoError(t, err)
	assert.Equal(t, `"Hello Jonas!"`, string(body))
}

func TestCompose_EventError(t *testing.T) {
	t.Parallel()

	fn := func(evt greeting) (string, error) {
		if evt.Name == "" {
			return "", errors.New("Name is required.")
		}
		return "Hello " + evt.Name + "!", nil
	}
	handler, err := handlerbuild.Compose(fn, []handlerbuild.ParamSpec{handlerbuild.FromEvent[greeting]()})
	require.NoError(t, err)

	ctx := newContextForTest(t, []byte(`{"name":""}`), nil)
	err = handler(ctx)
	require.Error(t, err)
	assert.Equal(t, "Name is required.", err.Error())
}

func TestCompose_NoEventParam_FeatureStillInstalled(t *testing.T) {
	t.Parallel()

	called := false
	fn := func() error {
		called = true
		return nil
	}
	handler, err := handlerbuild.Compose(fn, nil)
	require.NoError(t, err)

	ctx := newContextForTest(t, []byte(`"ignored"`), nil)
	require.NoError(t, handler(ctx))
	assert.True(t, called)

	entries := ctx.Features().All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rawEventMarker", entries[0].Type.Name())
}

func TestCompose_ContextAndCancelParams(t *testing.T) {
	t.Parallel()

	var gotCtx *lifecycle.Context
	var gotCancelFired bool

	fn := func(lc *lifecycle.Context, h *cancel.Handle) error {
		gotCtx = lc
		select {
		case <-h.Context().Done():
			gotCancelFired = true
		default:
		}
		return nil
	}

	handler, err := handlerbuild.Compose(fn, []handlerbuild.ParamSpec{
		handlerbuild.FromContext(),
		handlerbuild.FromCancel(),
	})
	require.NoError(t, err)

	ctx := newContextForTest(t, nil, nil)
	require.NoError(t, handler(ctx))
	assert.Same(t, ctx, gotCtx)
	assert.False(t, gotCancelFired)
}

func TestCompose_RegistrationInvariants(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-function", func(t *testing.T) {
		t.Parallel()
		_, err := handlerbuild.Compose(42, nil)
		assert.ErrorIs(t, err, handlerbuild.ErrNotAFunc)
	})

	t.Run("rejects arity mismatch", func(t *testing.T) {
		t.Parallel()
		fn := func(evt greeting) error { return nil }
		_, err := handlerbuild.Compose(fn, nil)
		assert.ErrorIs(t, err, handlerbuild.ErrArityMismatch)
	})

	t.Run("rejects two event params", func(t *testing.T) {
		t.Parallel()
		fn := func(a greeting, b greeting) error { return nil }
		_, err := handlerbuild.Compose(fn, []handlerbuild.ParamSpec{
			handlerbuild.FromEvent[greeting](),
			handlerbuild.FromEvent[greeting](),
		})
		assert.ErrorIs(t, err, handlerbuild.ErrMultipleEventParams)
	})

	t.Run("rejects invalid keyed-service key", func(t *testing.T) {
		t.Parallel()
		fn := func(db database) error { return nil }
		_, err := handlerbuild.Compose(fn, []handlerbuild.ParamSpec{
			handlerbuild.FromKeyedService[database](3.14),
		})
		assert.ErrorIs(t, err, handlerbuild.ErrInvalidKeyLiteral)
	})
}

// fieldEnvelope is a test Envelope that unwraps a {"inner": "..."} outer
// shape, standing in for something like an API Gateway proxy envelope.
type fieldEnvelope struct{}

func (fieldEnvelope) Unwrap(raw []byte) ([]byte, map[string]string, error) {
	var outer struct {
		Inner string `json:"inner"`
	}
	if err := (serializer.JSON{}).Decode(raw, &outer); err != nil {
		return nil, nil, err
	}
	return []byte(outer.Inner), map[string]string{"x-test": "1"}, nil
}

func (fieldEnvelope) Wrap(inner []byte, _ map[string]string) ([]byte, error) {
	return inner, nil
}

var _ envelope.Envelope = fieldEnvelope{}

func TestCompose_EnvelopeUnwrap(t *testing.T) {
	t.Parallel()

	fn := func(evt greeting) (string, error) {
		return "Hello " + evt.Name + "!", nil
	}

	handler, err := handlerbuild.Compose(fn, []handlerbuild.ParamSpec{
		handlerbuild.FromEvent[greeting](),
	}, handlerbuild.WithEnvelope(fieldEnvelope{}))
	require.NoError(t, err)

	outer := []byte(`{"inner":"{\"name\":\"Jonas\"}"}`)
	ctx := newContextForTest(t, outer, nil)
	require.NoError(t, handler(ctx))

	body, err := handlerbuild.EncodeResponse(ctx, serializer.JSON{})
	require.NoError(t, err)
	assert.Equal(t, `"Hello Jonas!"`, string(body))
}

func TestCompose_KeyedService(t *testing.T) {
	t.Parallel()

	primary := database{label: "primary"}
	scope := &fakeScope{
		byKeyed: map[string]any{
			typeKey(reflect.TypeOf(database{})) + ":" + keyKey("primary"): primary,
		},
	}

	var got database
	fn := func(db database) error {
		got = db
		return nil
	}
	handler, err := handlerbuild.Compose(fn, []handlerbuild.ParamSpec{
		handlerbuild.FromKeyedService[database]("primary"),
	})
	require.NoError(t, err)

	ctx := newContextForTest(t, nil, scope)
	require.NoError(t, handler(ctx))
	assert.Equal(t, primary, got)
}
