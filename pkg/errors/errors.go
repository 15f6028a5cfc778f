package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents the category of a failed backend call
type ErrorCode string

const (
	ErrCodeNetwork      ErrorCode = "NETWORK_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeDecode       ErrorCode = "DECODE_ERROR"
)

// AppError is the error type surfaced by the API client.
// HTTPStatus is 0 when no response was received.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Path       string
	Cause      error
	Context    map[string]interface{}

	// serverMessage is true when Message came from the response body
	serverMessage bool
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// HasServerMessage reports whether the backend supplied the message.
func (e *AppError) HasServerMessage() bool {
	return e.serverMessage
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// NewNetworkError is returned when the backend could not be reached at all.
func NewNetworkError(path string, cause error) *AppError {
	e := WrapError(cause, ErrCodeNetwork, "network error", 0)
	e.Path = path
	return e
}

// FromStatus classifies a non-2xx response. serverMessage may be empty.
func FromStatus(status int, path, serverMessage string) *AppError {
	code := CodeForStatus(status)
	msg := serverMessage
	if msg == "" {
		msg = http.StatusText(status)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
	}
	e := NewAppError(code, msg, status)
	e.Path = path
	e.serverMessage = serverMessage != ""
	return e
}

// CodeForStatus maps an HTTP status to an error category.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrCodeForbidden
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status >= 500:
		return ErrCodeInternal
	default:
		return ErrCodeInvalidInput
	}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

// IsAppError checks if err or anything it wraps is an AppError
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}

// MessageOr returns the server-supplied message carried by err, or fallback.
func MessageOr(err error, fallback string) string {
	appErr := GetAppError(err)
	if appErr != nil && appErr.serverMessage && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
