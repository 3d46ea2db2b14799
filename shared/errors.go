package shared

import (
	"errors"
	"net/http"
)

// Error kinds surfaced to the HTTP layer. Handlers and services return
// AppError values; anything else is treated as an internal error.
const (
	KindValidation        = "VALIDATION_ERROR"
	KindNotFound          = "NOT_FOUND"
	KindConflict          = "CONFLICT"
	KindRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	KindAuthorization     = "AUTHORIZATION_ERROR"
	KindUnauthorized      = "UNAUTHORIZED"
	KindDependencyTimeout = "DEPENDENCY_TIMEOUT"
	KindInternal          = "INTERNAL_ERROR"
)

type AppError struct {
	StatusCode int         `json:"-"`
	Kind       string      `json:"kind"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Err        error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Kind: KindValidation, Message: message, Err: err}
}

// NewBadRequestError is an alias kept for handler ergonomics.
func NewBadRequestError(err error, message string) *AppError {
	return NewValidationError(err, message)
}

func NewNotFoundError(message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Kind: KindNotFound, Message: message}
}

func NewConflictError(message string) *AppError {
	return &AppError{StatusCode: http.StatusConflict, Kind: KindConflict, Message: message}
}

func NewRateLimitError(message string, retryAfterSeconds int) *AppError {
	return &AppError{
		StatusCode: http.StatusTooManyRequests,
		Kind:       KindRateLimitExceeded,
		Message:    message,
		Data:       map[string]interface{}{"retry_after": retryAfterSeconds},
	}
}

func NewAuthorizationError(message string) *AppError {
	return &AppError{StatusCode: http.StatusForbidden, Kind: KindAuthorization, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{StatusCode: http.StatusUnauthorized, Kind: KindUnauthorized, Message: message}
}

func NewDependencyTimeoutError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusGatewayTimeout, Kind: KindDependencyTimeout, Message: message, Err: err}
}

func NewInternalError(err error) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, Kind: KindInternal, Message: "Internal Server Error", Err: err}
}

// GetAppError unwraps err looking for an AppError.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
