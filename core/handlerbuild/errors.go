package handlerbuild

import "errors"

// Registration-time invariant violations (spec §4.6: "each violation is a
// hard error surfaced as a diagnostic at build time").
var (
	ErrNotAFunc             = errors.New("handlerbuild: handler must be a function")
	ErrArityMismatch        = errors.New("handlerbuild: number of param specs does not match handler's parameter count")
	ErrParamTypeMismatch    = errors.New("handlerbuild: param spec type does not match handler's declared parameter type")
	ErrMultipleEventParams  = errors.New("handlerbuild: at most one event parameter is allowed")
	ErrMultipleCancelParams = errors.New("handlerbuild: at most one cancellation parameter is allowed")
	ErrMultipleCtxParams    = errors.New("handlerbuild: at most one context parameter is allowed")
	ErrInvalidKeyLiteral    = errors.New("handlerbuild: keyed-service key must be a string, integer, or bool constant")
	ErrTooManyReturns       = errors.New("handlerbuild: handler may return at most (value, error)")
	ErrReservedParamName    = errors.New("handlerbuild: parameter name uses a reserved sentinel prefix")
)

// reservedPrefix is checked against descriptor labels supplied via
// WithParamNames (see compose.go); it mirrors spec §4.6's "no parameter
// name may start with a reserved sentinel prefix" rule, adapted to Go's
// lack of named-parameter reflection: names are optional labels used only
// for diagnostics, since Go function values don't retain parameter names
// at runtime.
const reservedPrefix = "__lambdahost_"
