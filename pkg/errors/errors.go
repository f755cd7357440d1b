package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents an error code
type ErrorCode string

const (
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeStateConflict       ErrorCode = "STATE_CONFLICT"
	ErrCodeDuplicateSubmission ErrorCode = "DUPLICATE_SUBMISSION"
	ErrCodeConfiguration       ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeUpstream            ErrorCode = "UPSTREAM_FAILURE"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotFound reports a missing entity, e.g. NotFound("prospectus").
func NotFound(entity string) *AppError {
	return New(ErrCodeNotFound, entity+" not found")
}

// Validation reports a missing or malformed input.
func Validation(format string, args ...any) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// StateConflict reports an action attempted from the wrong lifecycle state.
func StateConflict(format string, args ...any) *AppError {
	return New(ErrCodeStateConflict, fmt.Sprintf(format, args...))
}

// Upstream wraps a store, email or asset backend failure.
func Upstream(message string, err error) *AppError {
	return Wrap(ErrCodeUpstream, message, err)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsNotFound checks if error is NotFound
func IsNotFound(err error) bool {
	return Is(err, ErrCodeNotFound)
}

// IsUnauthorized checks if error is Unauthorized
func IsUnauthorized(err error) bool {
	return Is(err, ErrCodeUnauthorized)
}

// IsForbidden checks if error is Forbidden
func IsForbidden(err error) bool {
	return Is(err, ErrCodeForbidden)
}

// HTTPStatus maps an error to the status code the handler boundary returns.
// Errors without a code are treated as internal failures.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeValidation, ErrCodeStateConflict:
		return http.StatusBadRequest
	case ErrCodeDuplicateSubmission:
		return http.StatusConflict
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show to the caller. Internal and
// upstream failures are collapsed to a generic message.
func PublicMessage(err error) string {
	appErr, ok := As(err)
	if !ok {
		return "internal server error"
	}
	switch appErr.Code {
	case ErrCodeUpstream:
		return "upstream service failure"
	case ErrCodeConfiguration:
		return "service is not configured for this action"
	}
	return appErr.Message
}
