// Package orchestrator implements the Lifecycle Orchestrator (spec §4.7):
// the state machine driving Init → invocation loop → Shutdown, owning the
// process lifetime and the stop signal.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	lambdahost "github.com/lambdahost/runtime"
	"github.com/lambdahost/runtime/core/cancel"
	"github.com/lambdahost/runtime/core/feature"
	"github.com/lambdahost/runtime/core/handlerbuild"
	"github.com/lambdahost/runtime/core/lifecycle"
	"github.com/lambdahost/runtime/core/middleware"
	"github.com/lambdahost/runtime/core/runtimeapi"
	"github.com/lambdahost/runtime/core/serializer"
	"github.com/lambdahost/runtime/internal/obslog"
)

// InitFunc is the composed Init Builder output. It receives the same
// *lifecycle.Properties map every invocation's Lifecycle Context carries,
// since spec.md recommends populating it only from Init.
type InitFunc func(ctx context.Context, props *lifecycle.Properties) (bool, error)

// ShutdownFunc is the composed Shutdown Builder output.
type ShutdownFunc func(ctx context.Context) error

// Stats mirrors the teacher's DispatcherStats/WorkerStats observability
// shape (spec's supplemented feature), adapted to invocation counters.
type Stats struct {
	InvocationsProcessed int64
	InvocationsFailed    int64
	State                State
	LastActivityAt       time.Time
}

// Orchestrator drives the three-phase lifecycle against a Runtime API
// Client and a composed invocation pipeline.
type Orchestrator struct {
	client         *runtimeapi.Client
	initFn         InitFunc
	pipeline       middleware.Handler
	shutdownFn     ShutdownFunc
	cancelFactory  *cancel.Factory
	featureFactory *feature.Factory
	properties     *lifecycle.Properties
	scopeFactory   lifecycle.ScopeFactory
	serializer     serializer.Serializer
	logger         *slog.Logger

	initTimeout    time.Duration
	shutdownBudget time.Duration

	state                atomic.Int32
	invocationsProcessed atomic.Int64
	invocationsFailed    atomic.Int64
	lastActivityAt       atomic.Int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClient(c *runtimeapi.Client) Option   { return func(o *Orchestrator) { o.client = c } }
func WithInit(fn InitFunc) Option              { return func(o *Orchestrator) { o.initFn = fn } }
func WithPipeline(h middleware.Handler) Option  { return func(o *Orchestrator) { o.pipeline = h } }
func WithShutdown(fn ShutdownFunc) Option       { return func(o *Orchestrator) { o.shutdownFn = fn } }
func WithCancelFactory(f *cancel.Factory) Option {
	return func(o *Orchestrator) { o.cancelFactory = f }
}
func WithFeatureFactory(f *feature.Factory) Option {
	return func(o *Orchestrator) { o.featureFactory = f }
}
func WithProperties(p *lifecycle.Properties) Option {
	return func(o *Orchestrator) { o.properties = p }
}
func WithScopeFactory(sf lifecycle.ScopeFactory) Option {
	return func(o *Orchestrator) { o.scopeFactory = sf }
}
func WithSerializer(s serializer.Serializer) Option {
	return func(o *Orchestrator) { o.serializer = s }
}
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }
func WithInitTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.initTimeout = d }
}
func WithShutdownBudget(d time.Duration) Option {
	return func(o *Orchestrator) { o.shutdownBudget = d }
}

// New builds an Orchestrator from options.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		properties:   lifecycle.NewProperties(),
		scopeFactory: lifecycle.NoopScopeFactory{},
		serializer:   serializer.JSON{},
		logger:       obslog.New(),
		initTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cancelFactory == nil {
		o.cancelFactory = cancel.NewFactory(3 * time.Second)
	}
	if o.featureFactory == nil {
		o.featureFactory = feature.NewFactory()
	}
	o.state.Store(int32(Created))
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Stats returns a snapshot of the orchestrator's observability counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		InvocationsProcessed: o.invocationsProcessed.Load(),
		InvocationsFailed:    o.invocationsFailed.Load(),
		State:                o.State(),
		LastActivityAt:       time.Unix(0, o.lastActivityAt.Load()),
	}
}

// Run drives Created → InitRunning → LoopRunning → ... → Stopped. It
// blocks until ctx is canceled (the stop signal) or an unrecoverable
// failure occurs (init failure, repeated transport failure), per spec
// §4.7/§6 ("exit code 0 on clean shutdown; non-zero on init failure or
// unhandled orchestrator loop exception").
func (o *Orchestrator) Run(ctx context.Context) error {
	o.state.Store(int32(InitRunning))

	ok, err := o.runInit(ctx)
	if err != nil || !ok {
		o.state.Store(int32(InitFailed))
		o.postInitError(ctx, err)
		o.state.Store(int32(Stopped))
		if err != nil {
			return err
		}
		return errors.New("orchestrator: init delegate returned false")
	}

	o.state.Store(int32(LoopRunning))
	loopErr := o.loop(ctx)

	o.state.Store(int32(ShutdownRunning))
	shutdownErr := o.runShutdown()

	o.state.Store(int32(Stopped))

	if loopErr != nil {
		return loopErr
	}
	return shutdownErr
}

func (o *Orchestrator) runInit(ctx context.Context) (bool, error) {
	if o.initFn == nil {
		return true, nil
	}
	initCtx, cancelInit := context.WithTimeout(ctx, o.initTimeout)
	defer cancelInit()
	return o.initFn(initCtx, o.properties)
}

func (o *Orchestrator) postInitError(ctx context.Context, err error) {
	if o.client == nil {
		return
	}
	if err == nil {
		err = lambdahost.NewInitError("InitAborted", "init delegate returned false", nil)
	}
	body := toWireErrorBody(lambdahost.ToRuntimeErrorBody(err))
	if pErr := o.client.PostInitError(ctx, body); pErr != nil {
		o.logger.ErrorContext(ctx, "failed to post init error", obslog.Err(pErr))
	}
}

// toWireErrorBody adapts the root package's RuntimeErrorBody to the
// runtimeapi package's identically-shaped wire type, keeping the two
// packages decoupled per spec §4's narrow-port design.
func toWireErrorBody(b lambdahost.RuntimeErrorBody) runtimeapi.ErrorBody {
	return runtimeapi.ErrorBody{
		ErrorType:    b.ErrorType,
		ErrorMessage: b.ErrorMessage,
		StackTrace:   b.StackTrace,
	}
}

// loop runs the long-poll dispatch cycle until ctx is canceled (the stop
// signal) or the Runtime API Client gives up after repeated transport
// failures.
func (o *Orchestrator) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		record, err := o.client.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Error("runtime API next failed, exiting loop", obslog.Err(err))
			return err
		}

		o.state.Store(int32(Dispatching))
		o.dispatch(ctx, record)
		o.state.Store(int32(LoopRunning))
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, record *lifecycle.Record) {
	now := time.Now()
	handle, err := o.cancelFactory.NewFromDeadline(ctx, now, record.Deadline)
	if err != nil {
		o.logger.ErrorContext(ctx, "invalid invocation deadline", obslog.RequestID(record.RequestID), obslog.Err(err))
		o.postInvocationError(ctx, record.RequestID, err)
		o.invocationsFailed.Add(1)
		return
	}
	defer handle.Release()

	features := o.featureFactory.New()
	lc := lifecycle.New(*record, o.scopeFactory, o.properties, features, handle)
	lifecycle.SetCurrent(lc)
	defer func() {
		lifecycle.SetCurrent(nil)
		_ = lc.Dispose()
	}()

	o.lastActivityAt.Store(time.Now().UnixNano())

	runErr := o.runPipeline(lc)
	if runErr != nil {
		o.invocationsFailed.Add(1)
		o.postInvocationError(ctx, record.RequestID, runErr)
		return
	}

	body, encErr := handlerbuild.EncodeResponse(lc, o.serializer)
	if encErr != nil {
		o.invocationsFailed.Add(1)
		o.postInvocationError(ctx, record.RequestID, encErr)
		return
	}

	if postErr := o.client.PostResponse(ctx, record.RequestID, body); postErr != nil {
		o.logger.ErrorContext(ctx, "failed to post response", obslog.RequestID(record.RequestID), obslog.Err(postErr))
	}
	o.invocationsProcessed.Add(1)
}

func (o *Orchestrator) runPipeline(lc *lifecycle.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	if o.pipeline == nil {
		return nil
	}
	return o.pipeline(lc)
}

func (o *Orchestrator) postInvocationError(ctx context.Context, requestID string, err error) {
	body := toWireErrorBody(lambdahost.ToRuntimeErrorBody(err))
	if pErr := o.client.PostInvocationError(ctx, requestID, body); pErr != nil {
		o.logger.ErrorContext(ctx, "failed to post invocation error", obslog.RequestID(requestID), obslog.Err(pErr))
	}
}

func (o *Orchestrator) runShutdown() error {
	if o.shutdownFn == nil {
		return nil
	}
	ctx, cancelShutdown := context.WithTimeout(context.Background(), o.shutdownBudget)
	defer cancelShutdown()
	return o.shutdownFn(ctx)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("orchestrator: handler panicked")
}
