package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across crewflow.
type ErrorCode string

// Configuration error codes. These are produced while a crew is being built
// or while run inputs are validated, never after the first task started.
const (
	ErrConfiguration         ErrorCode = "CONFIGURATION"
	ErrCyclicDependency      ErrorCode = "CYCLIC_DEPENDENCY"
	ErrUnknownTask           ErrorCode = "UNKNOWN_TASK"
	ErrUnknownAgent          ErrorCode = "UNKNOWN_AGENT"
	ErrUnknownCapability     ErrorCode = "UNKNOWN_CAPABILITY"
	ErrUnresolvedPlaceholder ErrorCode = "UNRESOLVED_PLACEHOLDER"
	ErrDelegationDenied      ErrorCode = "DELEGATION_DENIED"
)

// Run error codes
const (
	ErrCapabilityFailure ErrorCode = "CAPABILITY_FAILURE"
	ErrGenerationFailure ErrorCode = "GENERATION_FAILURE"
	ErrArchive           ErrorCode = "ARCHIVE_ERROR"
	ErrNoConvergence     ErrorCode = "NO_CONVERGENCE"
	ErrKnowledgeMissing  ErrorCode = "KNOWLEDGE_MISSING"
	ErrDependencyFailed  ErrorCode = "DEPENDENCY_FAILED"
	ErrCancelled         ErrorCode = "CANCELLED"
)

// Upstream error codes used by the generation and capability boundaries.
const (
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

var configurationCodes = map[ErrorCode]struct{}{
	ErrConfiguration:         {},
	ErrCyclicDependency:      {},
	ErrUnknownTask:           {},
	ErrUnknownAgent:          {},
	ErrUnknownCapability:     {},
	ErrUnresolvedPlaceholder: {},
	ErrDelegationDenied:      {},
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	TaskID     string    `json:"task_id,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.TaskID != "" {
		prefix = fmt.Sprintf("[%s] task %q", e.Code, e.TaskID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithTask sets the failing task id.
func (e *Error) WithTask(taskID string) *Error {
	e.TaskID = taskID
	return e
}

// Clone returns a shallow copy of e, sharing its cause.
func (e *Error) Clone() *Error {
	c := *e
	return &c
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError returns the outermost *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if IsCode(inner, code) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsConfiguration reports whether err is a build-time configuration error.
func IsConfiguration(err error) bool {
	if e, ok := AsError(err); ok {
		_, isConfig := configurationCodes[e.Code]
		return isConfig
	}
	return false
}

// TaskIDOf returns the task id of the first *Error in err's chain that has one.
func TaskIDOf(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.TaskID != "" {
			return e.TaskID
		}
		err = errors.Unwrap(err)
	}
	return ""
}
