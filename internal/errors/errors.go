// Package errors provides coded application errors for Knowbase Core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"
	ErrDecode    ErrorCode = "DECODE_FAILED"

	// Cache/offline errors
	ErrCacheMiss   ErrorCode = "CACHE_MISS"
	ErrUnavailable ErrorCode = "DATA_UNAVAILABLE"

	// Write queue errors
	ErrQueueFull        ErrorCode = "QUEUE_FULL"
	ErrWriteConflict    ErrorCode = "WRITE_CONFLICT"
	ErrWriteNotFound    ErrorCode = "WRITE_NOT_FOUND"
	ErrExecutionFailed  ErrorCode = "EXECUTION_FAILED"
	ErrQueueUnavailable ErrorCode = "QUEUE_UNAVAILABLE"

	// Sync errors
	ErrSyncFailed  ErrorCode = "SYNC_FAILED"
	ErrSyncSkipped ErrorCode = "SYNC_SKIPPED"
	ErrSyncTimeout ErrorCode = "SYNC_TIMEOUT"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
