package lambdahost

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lambdahost/runtime/core/initphase"
	"github.com/lambdahost/runtime/core/invocation"
	"github.com/lambdahost/runtime/core/lifecycle"
	"github.com/lambdahost/runtime/core/middleware"
	"github.com/lambdahost/runtime/core/orchestrator"
	"github.com/lambdahost/runtime/core/runtimeapi"
	"github.com/lambdahost/runtime/core/serializer"
	"github.com/lambdahost/runtime/core/shutdownphase"
	"github.com/lambdahost/runtime/internal/hostconfig"
	"github.com/lambdahost/runtime/internal/obslog"
)

// Host is the top-level facade: it wires the Init/Invocation/Shutdown
// builders, the Runtime API Client, and the Lifecycle Orchestrator from a
// single set of functional options, mirroring the teacher's
// app.NewApp(opts...) construction style.
type Host struct {
	options hostconfig.Options
	logger  *slog.Logger

	init     *initphase.Builder
	invoke   *invocation.Builder
	shutdown *shutdownphase.Builder

	scopeFactory lifecycle.ScopeFactory
	serializer   serializer.Serializer

	buildErr error
	orch     *orchestrator.Orchestrator
}

// Option configures a Host.
type Option func(*Host)

// WithOptions overrides the Host Options (by default loaded from the
// environment via hostconfig.Load).
func WithOptions(o hostconfig.Options) Option {
	return func(h *Host) { h.options = o }
}

// WithLogger attaches a logger shared by every host component.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithScopeFactory wires a dependency container's scope port.
func WithScopeFactory(sf lifecycle.ScopeFactory) Option {
	return func(h *Host) { h.scopeFactory = sf }
}

// WithSerializer overrides the default JSON Serializer.
func WithSerializer(s serializer.Serializer) Option {
	return func(h *Host) { h.serializer = s }
}

// New builds a Host from environment-loaded Host Options and the given
// overrides. It returns a ConfigError (spec §7) if the effective Options
// fail validation.
func New(opts ...Option) (*Host, error) {
	options, err := hostconfig.Load()
	if err != nil {
		return nil, NewConfigError("env_parse_failed", "loading host options from environment", err)
	}

	h := &Host{
		options:      options,
		logger:       obslog.New(),
		init:         initphase.NewBuilder(),
		invoke:       invocation.NewBuilder(),
		shutdown:     shutdownphase.NewBuilder(),
		scopeFactory: lifecycle.NoopScopeFactory{},
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.options.Validate(); err != nil {
		return nil, NewConfigError("invalid_options", "host options failed validation", err)
	}

	// WithSerializer, if given, wins; otherwise the default is derived from
	// the Host Options' ClearOutputFormatting knob.
	if h.serializer == nil {
		if h.options.ClearOutputFormatting {
			h.serializer = serializer.JSON{}
		} else {
			h.serializer = serializer.NewJSON(true)
		}
	}
	return h, nil
}

// OnInit registers an Init delegate, run sequentially before the
// invocation loop starts (spec §4.5).
func (h *Host) OnInit(d initphase.Delegate) *Host {
	h.init.OnInit(d)
	return h
}

// Use registers invocation middleware, outer-to-inner in registration
// order (spec §4.5).
func (h *Host) Use(mw middleware.Middleware) *Host {
	h.invoke.Use(mw)
	return h
}

// Handle registers the terminal handler. A second call is a hard error,
// surfaced from Run/RunFromEnv as a ConfigError.
func (h *Host) Handle(terminal middleware.Handler) *Host {
	if err := h.invoke.Handle(terminal); err != nil && h.buildErr == nil {
		h.buildErr = err
	}
	return h
}

// OnShutdown registers a Shutdown delegate, run concurrently with the
// others once the stop signal arrives (spec §4.5).
func (h *Host) OnShutdown(d shutdownphase.Delegate) *Host {
	h.shutdown.OnShutdown(d)
	return h
}

// Stats exposes the running Orchestrator's observability counters. Valid
// only after Run/RunFromEnv has started the loop.
func (h *Host) Stats() orchestrator.Stats {
	if h.orch == nil {
		return orchestrator.Stats{}
	}
	return h.orch.Stats()
}

// Run builds the composed Init/invocation/Shutdown delegates, constructs
// the Lifecycle Orchestrator, and drives it until ctx is canceled or
// SIGTERM arrives, matching the teacher's Worker.Run(ctx) convention
// (core/queue/worker.go) generalized from an errgroup-style closure to a
// direct blocking call, since the host owns the process's entire lifetime
// rather than sharing it with sibling goroutines.
func (h *Host) Run(ctx context.Context) error {
	if h.buildErr != nil {
		return NewConfigError("handler_registration_failed", "registering the invocation handler", h.buildErr)
	}

	pipeline, err := h.invoke.Build()
	if err != nil {
		return NewConfigError("invocation_build_failed", "building the invocation pipeline", err)
	}

	initFn := h.init.Build(h.options.InitTimeout)
	shutdownFn := h.shutdown.Build(h.options.EffectiveShutdownBudget())

	client := runtimeapi.New(h.options.RuntimeAPIEndpoint,
		runtimeapi.WithLogger(h.logger),
		runtimeapi.WithHTTPClient(h.options.TransportClientOverride),
	)

	h.orch = orchestrator.New(
		orchestrator.WithClient(client),
		orchestrator.WithInit(orchestrator.InitFunc(initFn)),
		orchestrator.WithPipeline(pipeline),
		orchestrator.WithShutdown(orchestrator.ShutdownFunc(shutdownFn)),
		orchestrator.WithScopeFactory(h.scopeFactory),
		orchestrator.WithSerializer(h.serializer),
		orchestrator.WithLogger(h.logger),
		orchestrator.WithInitTimeout(h.options.InitTimeout),
		orchestrator.WithShutdownBudget(h.options.EffectiveShutdownBudget()),
	)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	return h.orch.Run(runCtx)
}

// RunFromEnv builds a Host from the environment, lets configure register
// Init/middleware/Handle/Shutdown delegates, and runs it. This is the
// common entry point for a function's main().
func RunFromEnv(ctx context.Context, configure func(h *Host)) error {
	h, err := New()
	if err != nil {
		return err
	}
	if configure != nil {
		configure(h)
	}
	return h.Run(ctx)
}
