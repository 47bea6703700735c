package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while the worker processes an
// event or request.
//
// Runtime errors are logged by the Run loop and never stop it.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// AppID identifies the affected application, if any.
	AppID string

	// Token correlates a mutation request across log lines.
	Token string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDatabaseUnavailable indicates the backing database cannot be
	// reached. The cache keeps serving what it already holds.
	ErrCodeDatabaseUnavailable RuntimeErrorCode = "DATABASE_UNAVAILABLE"

	// ErrCodeUnknownEvent indicates an event with an unknown type or a
	// missing payload.
	ErrCodeUnknownEvent RuntimeErrorCode = "UNKNOWN_EVENT"

	// ErrCodeFetchFailed indicates a property fetch or mutation call on the
	// backing database failed.
	ErrCodeFetchFailed RuntimeErrorCode = "FETCH_FAILED"

	// ErrCodeQueueClosed indicates the worker has been stopped.
	ErrCodeQueueClosed RuntimeErrorCode = "QUEUE_CLOSED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.AppID != "" {
		msg += fmt.Sprintf(" (app=%s)", e.AppID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsUnavailable returns true if err reports an unavailable database.
// Uses errors.As to handle wrapped errors.
func IsUnavailable(err error) bool {
	return hasCode(err, ErrCodeDatabaseUnavailable)
}

// IsQueueClosed returns true if err reports a stopped worker.
func IsQueueClosed(err error) bool {
	return hasCode(err, ErrCodeQueueClosed)
}

// IsFetchFailed returns true if err reports a failed backing database call.
func IsFetchFailed(err error) bool {
	return hasCode(err, ErrCodeFetchFailed)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewUnavailableError creates a RuntimeError for an unreachable database.
func NewUnavailableError(err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDatabaseUnavailable,
		Message: "backing application database unavailable",
		Err:     err,
	}
}

// NewFetchError creates a RuntimeError for a failed backing database call.
func NewFetchError(op, appID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeFetchFailed,
		Message: op + " failed",
		AppID:   appID,
		Err:     err,
	}
}
