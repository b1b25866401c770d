package handlerbuild

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/lambdahost/runtime/core/envelope"
	"github.com/lambdahost/runtime/core/feature"
	"github.com/lambdahost/runtime/core/lifecycle"
	"github.com/lambdahost/runtime/core/middleware"
	"github.com/lambdahost/runtime/core/serializer"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// rawEventMarker is the type the "event is installed regardless" feature
// is keyed on when a handler declares zero event parameters (spec §4.6:
// "the event feature is still installed in the collection but the
// handler is invoked without it").
type rawEventMarker struct{ Bytes []byte }

// ComposeOption configures a Compose call.
type ComposeOption func(*composeConfig)

type composeConfig struct {
	names      []string
	serializer serializer.Serializer
	envelope   envelope.Envelope
}

// WithParamNames attaches diagnostic names to each positional parameter,
// checked against the reserved-prefix rule (spec §4.6). Go function values
// carry no parameter names at runtime, so these names are used only for
// that check: a name with the reserved prefix makes Compose fail, and the
// name appears in the error message.
func WithParamNames(names ...string) ComposeOption {
	return func(c *composeConfig) { c.names = names }
}

// WithSerializer overrides the Serializer used to decode the event
// parameter (defaults to JSON).
func WithSerializer(s serializer.Serializer) ComposeOption {
	return func(c *composeConfig) { c.serializer = s }
}

// WithEnvelope overrides the Envelope the event parameter is unwrapped
// through before decoding (defaults to envelope.Passthrough, i.e. the raw
// event bytes ARE the inner payload). A handler behind e.g. an API
// Gateway proxy event supplies the matching Envelope here.
func WithEnvelope(e envelope.Envelope) ComposeOption {
	return func(c *composeConfig) { c.envelope = e }
}

// Compose binds fn — an arbitrary function whose parameters are described
// positionally by specs — into a middleware.Handler. All registration
// invariants (spec §4.6) are validated immediately; Compose returns an
// error rather than panicking, so a caller can surface it as a
// ConfigError-class failure at build time.
func Compose(fn any, specs []ParamSpec, opts ...ComposeOption) (middleware.Handler, error) {
	cfg := &composeConfig{serializer: serializer.JSON{}, envelope: envelope.Passthrough{}}
	for _, opt := range opts {
		opt(cfg)
	}

	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return nil, ErrNotAFunc
	}
	if fnType.NumIn() != len(specs) {
		return nil, fmt.Errorf("%w: handler declares %d parameters, got %d specs", ErrArityMismatch, fnType.NumIn(), len(specs))
	}

	var eventType reflect.Type
	sawEvent, sawCancel, sawCtx := false, false, false

	for i, spec := range specs {
		paramType := fnType.In(i)
		if spec.Type != nil && spec.Type != paramType && !paramType.AssignableTo(spec.Type) {
			return nil, fmt.Errorf("%w: position %d: handler declares %s, spec declares %s",
				ErrParamTypeMismatch, i, paramType, spec.Type)
		}
		if i < len(cfg.names) && strings.HasPrefix(cfg.names[i], reservedPrefix) {
			return nil, fmt.Errorf("%w: position %d (%q)", ErrReservedParamName, i, cfg.names[i])
		}

		switch spec.Source {
		case SourceEvent:
			if sawEvent {
				return nil, ErrMultipleEventParams
			}
			sawEvent = true
			eventType = paramType
		case SourceCancellation:
			if sawCancel {
				return nil, ErrMultipleCancelParams
			}
			sawCancel = true
		case SourceContext:
			if sawCtx {
				return nil, ErrMultipleCtxParams
			}
			sawCtx = true
		case SourceKeyedService:
			switch spec.Key.(type) {
			case string, int, int32, int64, bool:
			default:
				return nil, ErrInvalidKeyLiteral
			}
		case SourceService:
			// no extra invariant
		}
	}

	if fnType.NumOut() > 2 {
		return nil, ErrTooManyReturns
	}
	if fnType.NumOut() == 2 && !fnType.Out(1).Implements(errorType) {
		return nil, fmt.Errorf("%w: second return value must be error", ErrTooManyReturns)
	}

	return func(ctx *lifecycle.Context) error {
		return invoke(ctx, cfg.serializer, cfg.envelope, fnVal, fnType, specs, eventType)
	}, nil
}

func invoke(
	ctx *lifecycle.Context,
	ser serializer.Serializer,
	env envelope.Envelope,
	fnVal reflect.Value,
	fnType reflect.Type,
	specs []ParamSpec,
	eventType reflect.Type,
) error {
	inner, _, err := env.Unwrap(ctx.Record().EventBytes)
	if err != nil {
		return fmt.Errorf("handlerbuild: unwrapping envelope: %w", err)
	}

	// The event feature is always installed, even when the handler
	// declares no event parameter (spec §4.6).
	if eventType == nil {
		feature.SetByType(ctx.Features(), reflect.TypeOf(rawEventMarker{}), rawEventMarker{Bytes: inner})
	}

	args := make([]reflect.Value, len(specs))
	for i, spec := range specs {
		switch spec.Source {
		case SourceEvent:
			v, err := resolveEvent(ctx, ser, inner, spec.Type)
			if err != nil {
				return err
			}
			args[i] = v
		case SourceCancellation:
			args[i] = reflect.ValueOf(ctx.Cancel())
		case SourceContext:
			args[i] = reflect.ValueOf(ctx)
		case SourceKeyedService, SourceService:
			v, err := resolveService(ctx, spec)
			if err != nil {
				return err
			}
			args[i] = v
		}
	}

	results := fnVal.Call(args)
	return handleResults(ctx, results, fnType)
}

// resolveEvent decodes the event lazily on first access and memoizes it
// in the feature collection, per spec §4.2/§4.6. inner is the event's
// payload after the Envelope's Unwrap stage.
func resolveEvent(ctx *lifecycle.Context, ser serializer.Serializer, inner []byte, t reflect.Type) (reflect.Value, error) {
	if v, ok := feature.GetByType(ctx.Features(), t); ok {
		return reflect.ValueOf(v), nil
	}

	ptr := reflect.New(t)
	if err := ser.Decode(inner, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("handlerbuild: decoding event into %s: %w", t, err)
	}
	val := ptr.Elem().Interface()
	feature.SetByType(ctx.Features(), t, val)
	return reflect.ValueOf(val), nil
}

func resolveService(ctx *lifecycle.Context, spec ParamSpec) (reflect.Value, error) {
	scope, err := ctx.Services()
	if err != nil {
		return reflect.Value{}, fmt.Errorf("handlerbuild: resolving service scope: %w", err)
	}

	var resolved any
	if spec.Source == SourceKeyedService {
		resolved, err = scope.ResolveKeyed(spec.Type, spec.Key)
	} else {
		resolved, err = scope.Resolve(spec.Type)
	}
	if err != nil {
		return reflect.Value{}, fmt.Errorf("handlerbuild: resolving %s: %w", spec.Type, err)
	}
	return reflect.ValueOf(resolved), nil
}

// handleResults classifies fn's return values per spec §4.6: void /
// value / error / (value, error).
func handleResults(ctx *lifecycle.Context, results []reflect.Value, fnType reflect.Type) error {
	switch len(results) {
	case 0:
		return nil
	case 1:
		if fnType.Out(0).Implements(errorType) {
			if err, _ := results[0].Interface().(error); err != nil {
				return err
			}
			return nil
		}
		installResponse(ctx, results[0].Interface())
		return nil
	case 2:
		if err, _ := results[1].Interface().(error); err != nil {
			return err
		}
		installResponse(ctx, results[0].Interface())
		return nil
	default:
		return nil
	}
}

// ResponseEncoder is the Response Feature's narrow contract: encode the
// handler's produced value into response bytes on demand, per spec §4.6's
// "SerializeToStream" operation.
type ResponseEncoder interface {
	SerializeToStream(ser serializer.Serializer) ([]byte, error)
}

type responseFeature struct{ value any }

// SerializeToStream implements ResponseEncoder.
func (r responseFeature) SerializeToStream(ser serializer.Serializer) ([]byte, error) {
	return ser.Encode(r.value)
}

func installResponse(ctx *lifecycle.Context, value any) {
	feature.Set[ResponseEncoder](ctx.Features(), responseFeature{value: value})
}

// EncodeResponse asks the feature collection for an installed Response
// Feature and serializes it; if none was installed (e.g. the handler
// returned only an error, or nothing), the response bytes are empty, per
// spec §4.6.
func EncodeResponse(ctx *lifecycle.Context, ser serializer.Serializer) ([]byte, error) {
	enc, ok := feature.Get[ResponseEncoder](ctx.Features())
	if !ok {
		return nil, nil
	}
	return enc.SerializeToStream(ser)
}
