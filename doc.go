// Package lambdahost implements a runtime host for executing a function
// handler against the AWS Lambda Custom Runtime API: it long-polls for an
// invocation, dispatches it through a composable middleware pipeline to a
// user handler, and posts the result or error back, bracketed by one-shot
// Init and Shutdown phases.
//
// # Package Organization
//
// The host is organized into a root facade and a set of core/ packages,
// each owning one narrow concern of the lifecycle:
//
//	github.com/lambdahost/runtime                       - Host facade, error taxonomy
//	github.com/lambdahost/runtime/core/runtimeapi       - Runtime API HTTP client (/next, /response, /error, /init/error)
//	github.com/lambdahost/runtime/core/lifecycle        - Per-invocation Context, Record, Properties, Scope port
//	github.com/lambdahost/runtime/core/feature          - Typed per-invocation feature collection (generics)
//	github.com/lambdahost/runtime/core/cancel           - Deadline-derived cancellation handles
//	github.com/lambdahost/runtime/core/serializer       - Event/response (de)serialization port
//	github.com/lambdahost/runtime/core/envelope         - Two-stage event unwrap/response wrap port
//	github.com/lambdahost/runtime/core/middleware       - Middleware chain composition
//	github.com/lambdahost/runtime/core/handlerbuild     - Reflection-based handler composer and parameter binding
//	github.com/lambdahost/runtime/core/initphase        - Init delegate registration and sequential composition
//	github.com/lambdahost/runtime/core/invocation       - Middleware/terminal-handler registration and composition
//	github.com/lambdahost/runtime/core/shutdownphase    - Shutdown delegate registration and concurrent composition
//	github.com/lambdahost/runtime/core/orchestrator     - Lifecycle Orchestrator: Init → loop → Shutdown state machine
//	github.com/lambdahost/runtime/internal/hostconfig   - Environment-driven Host Options
//	github.com/lambdahost/runtime/internal/obslog       - Structured logging built on slog
//	github.com/lambdahost/runtime/testharness           - In-process loopback harness for handler tests
//
// # Example Usage
//
//	import (
//		"context"
//		"log"
//
//		lambdahost "github.com/lambdahost/runtime"
//		"github.com/lambdahost/runtime/core/handlerbuild"
//	)
//
//	func greet(name string) (string, error) {
//		return "Hello " + name + "!", nil
//	}
//
//	func main() {
//		handler, err := handlerbuild.Compose(greet, []handlerbuild.ParamSpec{
//			handlerbuild.FromEvent[string](),
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		ctx := context.Background()
//		err = lambdahost.RunFromEnv(ctx, func(h *lambdahost.Host) {
//			h.Handle(handler)
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//	}
//
// For the handler-composition helpers (FromEvent, FromService, FromCancel)
// and the Test Harness used to exercise a handler without a real Lambda
// orchestrator, see the core/handlerbuild and testharness package
// documentation.
package lambdahost
