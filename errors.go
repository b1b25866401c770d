package lambdahost

import "fmt"

// Kind classifies a host-level failure into the taxonomy from spec §7.
type Kind string

const (
	// KindConfig marks invalid Host Options; the process should not start.
	KindConfig Kind = "config_error"
	// KindInit marks an Init delegate returning false or throwing.
	KindInit Kind = "init_error"
	// KindInvocation marks a handler, middleware, or decode failure during
	// an invocation; the loop continues after this.
	KindInvocation Kind = "invocation_error"
	// KindCancellation marks an invocation that didn't complete before its
	// deadline.
	KindCancellation Kind = "cancellation_error"
	// KindTransport marks a network-level failure talking to the Runtime
	// API.
	KindTransport Kind = "transport_error"
)

// Error is the host's structured error type, modeled on the teacher's
// root Error (gokit.Error): a machine-readable Kind/Code plus a
// human-readable Message and an optional wrapped Cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// WithCause returns a copy of e with Cause set, matching the teacher's
// copy-and-modify WithMessage/WithDetails helpers.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// NewConfigError builds a KindConfig error.
func NewConfigError(code, message string, cause error) *Error {
	return &Error{Kind: KindConfig, Code: code, Message: message, Cause: cause}
}

// NewInitError builds a KindInit error.
func NewInitError(code, message string, cause error) *Error {
	return &Error{Kind: KindInit, Code: code, Message: message, Cause: cause}
}

// NewInvocationError builds a KindInvocation error.
func NewInvocationError(code, message string, cause error) *Error {
	return &Error{Kind: KindInvocation, Code: code, Message: message, Cause: cause}
}

// NewCancellationError builds a KindCancellation error.
func NewCancellationError(code, message string, cause error) *Error {
	return &Error{Kind: KindCancellation, Code: code, Message: message, Cause: cause}
}

// NewTransportError builds a KindTransport error.
func NewTransportError(code, message string, cause error) *Error {
	return &Error{Kind: KindTransport, Code: code, Message: message, Cause: cause}
}

// RuntimeErrorBody is the JSON body posted to /error and /init/error, per
// spec §4.4.
type RuntimeErrorBody struct {
	ErrorType    string   `json:"errorType"`
	ErrorMessage string   `json:"errorMessage"`
	StackTrace   []string `json:"stackTrace"`
}

// ToRuntimeErrorBody converts any error into the wire error body. Errors
// that aren't *Error get a generic "HandlerError" type.
func ToRuntimeErrorBody(err error) RuntimeErrorBody {
	if err == nil {
		return RuntimeErrorBody{ErrorType: "UnknownError", ErrorMessage: "unknown error", StackTrace: nil}
	}
	var code string
	if he, ok := err.(*Error); ok && he.Code != "" {
		code = he.Code
	} else {
		code = "HandlerError"
	}
	return RuntimeErrorBody{
		ErrorType:    code,
		ErrorMessage: err.Error(),
		StackTrace:   nil,
	}
}
