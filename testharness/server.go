// Package testharness implements the Testing Harness (spec §4.8): an
// in-process loopback orchestrator that speaks the same Runtime API wire
// contract as production, so a user handler can be exercised end-to-end
// without a real Lambda orchestrator.
package testharness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lambdahost/runtime/core/lifecycle"
	"github.com/lambdahost/runtime/core/middleware"
	"github.com/lambdahost/runtime/core/orchestrator"
	"github.com/lambdahost/runtime/core/runtimeapi"
	"github.com/lambdahost/runtime/internal/obslog"
)

// InitStatus reports whether the harness's Init phase has settled, and how.
type InitStatus int32

const (
	// InitPending means Start has not yet observed an Init outcome.
	InitPending InitStatus = iota
	// InitSucceeded means the Init delegate returned true; the loop is live.
	InitSucceeded
	// InitFailed means the Init delegate returned false or threw.
	InitFailed
)

func (s InitStatus) String() string {
	switch s {
	case InitSucceeded:
		return "InitSucceeded"
	case InitFailed:
		return "InitFailed"
	default:
		return "InitPending"
	}
}

// Result is the outcome of one Invoke call, mirroring spec §7's
// user-visible Test Harness surface:
// `{WasSuccess:true, Response:T}` or `{WasSuccess:false, Error:{...}}`.
type Result struct {
	WasSuccess bool
	Response   []byte
	Error      *runtimeapi.ErrorBody
}

type pendingInvocation struct {
	requestID  string
	eventBytes []byte
	deadline   time.Time
	resultCh   chan Result
}

// Server is the loopback Runtime API implementation: it answers `/next`
// long-polls from a FIFO queue fed by Invoke callers, and correlates
// `/response`/`/error` posts back to the waiting caller by request id.
type Server struct {
	logger *slog.Logger

	invocationBudget time.Duration

	queue chan *pendingInvocation

	mu      sync.Mutex
	pending map[string]*pendingInvocation

	initMu     sync.Mutex
	initCond   *sync.Cond
	initDone   bool
	initStatus InitStatus

	httpServer *httptest.Server
	orch       *orchestrator.Orchestrator
	runDone    chan error
	stopOnce   sync.Once
	stopCancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithQueueSize bounds how many invocations may be enqueued ahead of the
// orchestrator's `/next` consumption (default 16).
func WithQueueSize(n int) Option {
	return func(s *Server) { s.queue = make(chan *pendingInvocation, n) }
}

// WithInvocationBudget sets the synthetic deadline duration each Invoke
// call is given (default 30s), mirroring a Lambda function's timeout.
func WithInvocationBudget(d time.Duration) Option {
	return func(s *Server) { s.invocationBudget = d }
}

// WithLogger attaches a logger to the harness.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds an unstarted harness Server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		queue:            make(chan *pendingInvocation, 16),
		pending:          make(map[string]*pendingInvocation),
		invocationBudget: 30 * time.Second,
		logger:           obslog.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initCond = sync.NewCond(&s.initMu)
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/2018-06-01/runtime/invocation/next", s.handleNext)
	r.Post("/2018-06-01/runtime/invocation/{requestId}/response", s.handleResponse)
	r.Post("/2018-06-01/runtime/invocation/{requestId}/error", s.handleError)
	r.Post("/2018-06-01/runtime/init/error", s.handleInitError)
	return r
}

// Start brings up the loopback HTTP listener and drives a real
// orchestrator.Orchestrator against it, using the given Init/pipeline/
// Shutdown delegates. It blocks until the Init phase settles (success or
// failure), so InitStatus is meaningful immediately after Start returns.
func (s *Server) Start(
	ctx context.Context,
	initFn orchestrator.InitFunc,
	pipeline middleware.Handler,
	shutdownFn orchestrator.ShutdownFunc,
	opts ...orchestrator.Option,
) error {
	s.httpServer = httptest.NewServer(s.router())

	client := runtimeapi.New(s.httpServer.Listener.Addr().String())

	wrappedInit := func(c context.Context, props *lifecycle.Properties) (bool, error) {
		ok, err := true, error(nil)
		if initFn != nil {
			ok, err = initFn(c, props)
		}
		s.settleInit(ok, err)
		return ok, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.stopCancel = cancel

	baseOpts := []orchestrator.Option{
		orchestrator.WithClient(client),
		orchestrator.WithInit(wrappedInit),
		orchestrator.WithPipeline(pipeline),
		orchestrator.WithShutdown(shutdownFn),
	}
	s.orch = orchestrator.New(append(baseOpts, opts...)...)

	s.runDone = make(chan error, 1)
	go func() { s.runDone <- s.orch.Run(runCtx) }()

	s.waitForInit()
	return nil
}

func (s *Server) settleInit(ok bool, err error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initDone {
		return
	}
	s.initDone = true
	if ok && err == nil {
		s.initStatus = InitSucceeded
	} else {
		s.initStatus = InitFailed
	}
	s.initCond.Broadcast()
}

func (s *Server) waitForInit() {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	for !s.initDone {
		s.initCond.Wait()
	}
}

// InitStatus reports the outcome of the Init phase. Safe to call any time
// after Start returns.
func (s *Server) InitStatus() InitStatus {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.initStatus
}

// Orchestrator exposes the underlying Orchestrator, mostly for Stats().
func (s *Server) Orchestrator() *orchestrator.Orchestrator { return s.orch }

// Stop signals the orchestrator to begin its Shutdown phase and waits for
// Run to return, then tears down the loopback listener.
func (s *Server) Stop(ctx context.Context) error {
	var runErr error
	s.stopOnce.Do(func() {
		if s.stopCancel != nil {
			s.stopCancel()
		}
		select {
		case runErr = <-s.runDone:
		case <-ctx.Done():
			runErr = ctx.Err()
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		}
	})
	return runErr
}

// Invoke enqueues one synthetic event and blocks until a correlated
// `/response` or `/error` is posted back for it, supporting concurrent
// callers (spec §4.8).
func (s *Server) Invoke(ctx context.Context, eventBytes []byte) (Result, error) {
	pend := &pendingInvocation{
		requestID:  uuid.NewString(),
		eventBytes: eventBytes,
		deadline:   time.Now().Add(s.invocationBudget),
		resultCh:   make(chan Result, 1),
	}

	select {
	case s.queue <- pend:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-pend.resultCh:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	select {
	case pend := <-s.queue:
		s.mu.Lock()
		s.pending[pend.requestID] = pend
		s.mu.Unlock()

		w.Header().Set(runtimeapi.HeaderRequestID, pend.requestID)
		w.Header().Set(runtimeapi.HeaderDeadlineMS, fmt.Sprintf("%d", pend.deadline.UnixMilli()))
		w.Header().Set(runtimeapi.HeaderARN, "arn:aws:lambda:testharness:0:function:harness")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pend.eventBytes)
	case <-r.Context().Done():
	}
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	pend := s.takePending(requestID)
	if pend == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("testharness: reading posted response body", obslog.Err(err))
	}
	pend.resultCh <- Result{WasSuccess: true, Response: body}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	pend := s.takePending(requestID)
	if pend == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body runtimeapi.ErrorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Error("testharness: decoding posted error body", obslog.Err(err))
	}
	pend.resultCh <- Result{WasSuccess: false, Error: &body}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleInitError(w http.ResponseWriter, r *http.Request) {
	var body runtimeapi.ErrorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Error("testharness: decoding posted init error body", obslog.Err(err))
	}
	s.settleInit(false, fmt.Errorf("%s: %s", body.ErrorType, body.ErrorMessage))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) takePending(requestID string) *pendingInvocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	pend, ok := s.pending[requestID]
	if !ok {
		return nil
	}
	delete(s.pending, requestID)
	return pend
}
