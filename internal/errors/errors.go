package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes of a make pass
type ErrorCode string

const (
	// ResolveFailed indicates a dependency could not be factorized into a module
	ResolveFailed ErrorCode = "RESOLVE_FAILED"
	// BuildFailed indicates a module's content build returned an error
	BuildFailed ErrorCode = "BUILD_FAILED"
	// TaskPanicked indicates a worker task panicked; always fatal
	TaskPanicked ErrorCode = "TASK_PANICKED"
	// HookFailed indicates a plugin hook returned an error
	HookFailed ErrorCode = "HOOK_FAILED"
	// GraphInvariant indicates the module graph is in a state the protocol rules out
	GraphInvariant ErrorCode = "GRAPH_INVARIANT"
	// PassCanceled indicates the caller's context ended the pass
	PassCanceled ErrorCode = "PASS_CANCELED"
	// ConfigInvalid indicates invalid configuration
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// CacheFailed indicates the build cache could not be read or written
	CacheFailed ErrorCode = "CACHE_FAILED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// BundleError represents an error with a stable code, the module it concerns and its cause
type BundleError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Module  string    `json:"module,omitempty"`
	cause   error     // Underlying error (not exported to JSON)
}

// New creates a BundleError without a cause
func New(code ErrorCode, message string) *BundleError {
	return &BundleError{Code: code, Message: message}
}

// Wrap creates a BundleError around cause
func Wrap(code ErrorCode, message string, cause error) *BundleError {
	return &BundleError{Code: code, Message: message, cause: cause}
}

// Error implements the error interface
func (e *BundleError) Error() string {
	prefix := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Module != "" {
		prefix = fmt.Sprintf("%s (module %s)", prefix, e.Module)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// Unwrap returns the underlying error
func (e *BundleError) Unwrap() error {
	return e.cause
}

// WithModule records the module the error concerns
func (e *BundleError) WithModule(identifier string) *BundleError {
	e.Module = identifier
	return e
}

// CodeOf returns the code of the first BundleError in err's chain, or InternalError
func CodeOf(err error) ErrorCode {
	var be *BundleError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return InternalError
}

// Invariant panics with a GraphInvariant error. It marks states that indicate a bug in the
// scheduler rather than bad input.
func Invariant(format string, args ...any) {
	panic(New(GraphInvariant, fmt.Sprintf(format, args...)))
}
