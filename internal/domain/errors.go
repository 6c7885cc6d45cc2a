package domain

import "fmt"

type ErrorCode string

const (
	CodeInvalidArgument    ErrorCode = "invalid_argument"
	CodeNotFound           ErrorCode = "not_found"
	CodeUnauthenticated    ErrorCode = "unauthenticated"
	CodeFailedPrecondition ErrorCode = "failed_precondition"
	CodeUnsupported        ErrorCode = "unsupported"
	CodeInternal           ErrorCode = "internal"
)

type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// InvalidArgument covers malformed summaries and policy/rule validation
// failures.
func InvalidArgument(message string) *AppError {
	return &AppError{Code: CodeInvalidArgument, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// Unauthenticated covers signatures rejected by the security validator.
func Unauthenticated(message string) *AppError {
	return &AppError{Code: CodeUnauthenticated, Message: message}
}

// NotInitialized covers operations attempted before start-up completes.
func NotInitialized(message string) *AppError {
	return &AppError{Code: CodeFailedPrecondition, Message: message}
}

// UnsupportedTaskType covers the cloud-execution branch receiving a task
// type no executor is registered for.
func UnsupportedTaskType(message string) *AppError {
	return &AppError{Code: CodeUnsupported, Message: message}
}

func Internal(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Cause: cause}
}

func AsAppError(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	typed, ok := err.(*AppError)
	return typed, ok
}
