// Package hostconfig loads the Host Options recognized by the runtime
// host from the process environment, using caarlos0/env the same way the
// teacher library's core/config package does.
package hostconfig

import (
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Options holds the Host Options recognized by spec §3/§6.
type Options struct {
	// InitTimeout bounds the composed Init delegate. Default 5s: the
	// spec's source material disagreed across modules (5s in one options
	// struct, unset in another); 5s is the most frequently observed
	// default and is the one this host documents and uses.
	InitTimeout time.Duration `env:"LAMBDAHOST_INIT_TIMEOUT" envDefault:"5s"`

	// InvocationCancellationBuffer is subtracted from the deadline to
	// produce the per-invocation cancellation handle's fire time.
	InvocationCancellationBuffer time.Duration `env:"LAMBDAHOST_CANCELLATION_BUFFER" envDefault:"3s"`

	// ShutdownDuration is the orchestrator-granted SIGTERM-to-SIGKILL
	// window.
	ShutdownDuration time.Duration `env:"LAMBDAHOST_SHUTDOWN_DURATION" envDefault:"500ms"`

	// ShutdownDurationBuffer is subtracted from ShutdownDuration to leave
	// headroom for the process to actually exit.
	ShutdownDurationBuffer time.Duration `env:"LAMBDAHOST_SHUTDOWN_BUFFER" envDefault:"50ms"`

	// RuntimeAPIEndpoint is host:port of the orchestrator. AWS_LAMBDA_RUNTIME_API
	// is read directly (not prefixed) because it's part of the fixed
	// external contract, not a host-specific setting.
	RuntimeAPIEndpoint string `env:"AWS_LAMBDA_RUNTIME_API"`

	// ClearOutputFormatting disables any pretty-printing of encoded
	// responses (kept minimal/raw bytes).
	ClearOutputFormatting bool `env:"LAMBDAHOST_CLEAR_OUTPUT_FORMATTING" envDefault:"false"`

	// FunctionName, FunctionVersion, MemorySizeMB, Region, LogGroupName,
	// LogStreamName, and TaskRoot are loaded here only: the host's own
	// logic never reads them, and they are not copied into the invocation
	// Record or the Lifecycle Context.
	FunctionName    string `env:"AWS_LAMBDA_FUNCTION_NAME"`
	FunctionVersion string `env:"AWS_LAMBDA_FUNCTION_VERSION"`
	MemorySizeMB    int    `env:"AWS_LAMBDA_FUNCTION_MEMORY_SIZE"`
	Region          string `env:"AWS_REGION" envDefault:""`
	DefaultRegion   string `env:"AWS_DEFAULT_REGION" envDefault:""`
	LogGroupName    string `env:"AWS_LAMBDA_LOG_GROUP_NAME"`
	LogStreamName   string `env:"AWS_LAMBDA_LOG_STREAM_NAME"`
	TaskRoot        string `env:"LAMBDA_TASK_ROOT"`

	// TransportClientOverride lets callers supply a pre-built HTTP client
	// (e.g. for tests). Never populated from the environment.
	TransportClientOverride *http.Client `env:"-"`
}

// EffectiveRegion returns Region, falling back to DefaultRegion, matching
// the AWS CLI/SDK convention of preferring AWS_REGION over
// AWS_DEFAULT_REGION.
func (o Options) EffectiveRegion() string {
	if o.Region != "" {
		return o.Region
	}
	return o.DefaultRegion
}

// Load reads Options from the process environment, loading a .env file
// first if one is present in the working directory, matching the
// teacher's core/config package, which "automatically loads .env files on
// first use" before parsing. A Lambda execution environment never carries
// a .env file, so a missing file is not an error; a malformed one is.
func Load() (Options, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Options{}, err
	}

	var o Options
	if err := env.Parse(&o); err != nil {
		return Options{}, err
	}
	return o, nil
}

// MustLoad is Load, panicking on failure. Intended for use at process
// startup before any recoverable error handling is in play, matching the
// teacher's config.MustLoad convention.
func MustLoad() Options {
	o, err := Load()
	if err != nil {
		panic(err)
	}
	return o
}

// Validate enforces the ConfigError-class invariants from spec §7: a
// negative buffer or non-positive timeout should keep the process from
// starting at all.
func (o Options) Validate() error {
	switch {
	case o.InitTimeout <= 0:
		return &ValidationError{Field: "InitTimeout", Reason: "must be positive"}
	case o.InvocationCancellationBuffer < 0:
		return &ValidationError{Field: "InvocationCancellationBuffer", Reason: "must not be negative"}
	case o.ShutdownDuration <= 0:
		return &ValidationError{Field: "ShutdownDuration", Reason: "must be positive"}
	case o.ShutdownDurationBuffer < 0:
		return &ValidationError{Field: "ShutdownDurationBuffer", Reason: "must not be negative"}
	case o.ShutdownDurationBuffer >= o.ShutdownDuration:
		return &ValidationError{Field: "ShutdownDurationBuffer", Reason: "must be smaller than ShutdownDuration"}
	}
	return nil
}

// EffectiveShutdownBudget is the usable window after subtracting the
// buffer from the granted duration.
func (o Options) EffectiveShutdownBudget() time.Duration {
	return o.ShutdownDuration - o.ShutdownDurationBuffer
}

// ValidationError describes a single invalid Option field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "hostconfig: " + e.Field + ": " + e.Reason
}
