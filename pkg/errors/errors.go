package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"camcast/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeDeviceUnavailable  ErrorCode = "DEVICE_UNAVAILABLE"
	ErrCodeInvalidState       ErrorCode = "INVALID_STATE"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
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

// Common error constructors
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// FromDomain maps a domain-layer error onto an AppError with the matching
// HTTP status. Unknown errors become internal errors so handlers never
// leak raw failures to clients.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}

	var vErr *domain.ValidationError
	if stderrors.As(err, &vErr) {
		return WrapError(err, ErrCodeInvalidInput, vErr.Error(), http.StatusBadRequest).
			WithContext("field", vErr.Field)
	}

	var devErr *domain.DeviceError
	if stderrors.As(err, &devErr) {
		code := ErrCodeDeviceUnavailable
		status := http.StatusConflict
		if devErr.Kind == domain.DevicePermissionDenied || devErr.Kind == domain.DeviceInsecureContext {
			status = http.StatusForbidden
		}
		return WrapError(err, code, devErr.UserMessage(), status).
			WithContext("device_error_kind", string(devErr.Kind))
	}

	var remErr *domain.RemoteError
	if stderrors.As(err, &remErr) {
		switch remErr.Kind {
		case domain.RemoteNotFound:
			return WrapError(err, ErrCodeNotFound, "broadcast not found", http.StatusNotFound)
		case domain.RemotePermissionDenied:
			return WrapError(err, ErrCodeForbidden, "operation not permitted", http.StatusForbidden)
		case domain.RemoteConflict:
			return WrapError(err, ErrCodeConflict, "broadcast already live", http.StatusConflict)
		case domain.RemoteNetwork:
			return WrapError(err, ErrCodeServiceUnavailable, "broadcast store unreachable", http.StatusServiceUnavailable)
		default:
			return WrapError(err, ErrCodeInternal, "broadcast store failure", http.StatusInternalServerError)
		}
	}

	var stErr *domain.StateError
	if stderrors.As(err, &stErr) {
		return WrapError(err, ErrCodeInvalidState, stErr.Error(), http.StatusConflict).
			WithContext("phase", string(stErr.Phase))
	}

	switch {
	case stderrors.Is(err, domain.ErrBroadcastNotFound):
		return WrapError(err, ErrCodeNotFound, "broadcast not found", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrOwnerAlreadyLive):
		return WrapError(err, ErrCodeConflict, "broadcast already live", http.StatusConflict)
	case stderrors.Is(err, domain.ErrNotSignedIn):
		return WrapError(err, ErrCodeUnauthorized, "not signed in", http.StatusUnauthorized)
	case stderrors.Is(err, domain.ErrEmptyTitle):
		return WrapError(err, ErrCodeInvalidInput, "title must not be empty", http.StatusBadRequest)
	}

	return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
