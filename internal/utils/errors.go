package utils

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

// Unwrap exposes the origin so errors.Is can see driver sentinels.
func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound          = "NOT_FOUND"
	ErrInvalidInput      = "INVALID_INPUT"
	ErrDuplicateUsername = "DUPLICATE_USERNAME"

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"
	// The request's deadline passed before any write was made
	ErrDeadlineExceeded = "DEADLINE_EXCEEDED"

	ErrDatabase = "database_error"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewValidationError(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: fmt.Sprintf(format, args...),
	}
}

func NewUserNotFoundError(userID int64) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("User not found: %d", userID),
	}
}

func NewPostNotFoundError(postID int64) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("Post not found: %d", postID),
	}
}

func NewDuplicateUsernameError(username string) *AppError {
	return &AppError{
		Code:    ErrDuplicateUsername,
		Message: "Username already exists: " + username,
	}
}

func NewActorTimeoutError(actorName string, err error) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
		Origin:  err,
	}
}

// NewDeadlineError reports a request that was refused because its deadline
// had passed. Nothing was written.
func NewDeadlineError(operation string, err error) *AppError {
	return &AppError{
		Code:    ErrDeadlineExceeded,
		Message: "Request deadline exceeded before " + operation,
		Origin:  err,
	}
}

// IsErrorCode reports whether err, or anything it wraps, is an AppError with the given code.
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrNotFound)
}

// AsAppError returns err as an AppError, wrapping unknown errors as internal failures.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(ErrDatabase, "internal error", err)
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
// Duplicate usernames are reported as 400, like any other rejected registration.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidInput, ErrDuplicateUsername:
		return http.StatusBadRequest
	case ErrActorTimeout, ErrDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
