package utils

import (
	"errors"
	"fmt"
)

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, so errors.Is(err, ErrConflict)
// holds for any conflict regardless of message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithErr create application error with original error
func NewErrorWithErr(code ResponseCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapError wrap error
func WrapError(err error, code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Errorf builds an AppError with a formatted message
func Errorf(code ResponseCode, format string, args ...interface{}) *AppError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Predefined errors
var (
	// Caller errors, never retried
	ErrInvalidParam      = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized      = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden         = NewError(CodeForbidden, "forbidden")
	ErrNotFound          = NewError(CodeNotFound, "not found")
	ErrInvalidTransition = NewError(CodeInvalidTransition, "invalid status transition")
	ErrRateLimit         = NewError(CodeRateLimit, "rate limit exceeded")

	// Optimistic concurrency, re-read and retry
	ErrConflict = NewError(CodeConflict, "record was modified concurrently")

	// Domain errors
	ErrOrderNotFound        = NewError(CodeOrderNotFound, "order not found")
	ErrVendorNotFound       = NewError(CodeVendorNotFound, "vendor not found")
	ErrVendorExists         = NewError(CodeVendorExists, "vendor profile already exists")
	ErrVendorInactive       = NewError(CodeVendorInactive, "vendor is not approved")
	ErrConversationNotFound = NewError(CodeConversationNotFound, "conversation not found")
	ErrTicketNotFound       = NewError(CodeTicketNotFound, "ticket not found")

	// System errors, safe to retry with backoff
	ErrInternalError         = NewError(CodeInternalError, "internal server error")
	ErrDependencyUnavailable = NewError(CodeDependencyUnavailable, "dependency unavailable")
	ErrDatabaseError         = NewError(CodeDatabaseError, "database error")
	ErrRedisError            = NewError(CodeRedisError, "redis error")
)

// IsAppError check if it's an application error
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage get error message
func GetErrorMessage(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}

// IsRetryable reports whether err belongs to a retryable error kind
func IsRetryable(err error) bool {
	return GetErrorCode(err).Retryable()
}

// Unavailable wraps a store or collaborator failure as a retryable error
func Unavailable(err error, message string) *AppError {
	return WrapError(err, CodeDependencyUnavailable, message)
}
