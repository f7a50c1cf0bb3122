// Package errors defines unified error types for the embedding service.
// Every failure surfaced at the HTTP boundary is mapped to one of these
// standard error kinds.
package errors

import (
	"fmt"
	"net/http"
)

// ServiceError represents a standardized embedding service error.
// It contains all necessary information for error handling, logging,
// and the client response.
type ServiceError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s] %s (model=%s, code=%d)",
		e.Type, e.Message, e.Model, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *ServiceError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Error types as constants for consistency.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeModelLoad      = "model_load_error"
	TypeEncoding       = "encoding_error"
	TypeServiceBusy    = "service_busy_error"
	TypeNotLoaded      = "model_not_loaded_error"
	TypeInternalError  = "internal_error"
)

// NewInvalidRequestError creates an invalid request error (400).
// Caller error: not retryable.
func NewInvalidRequestError(model, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Model:      model,
		Retryable:  false,
	}
}

// NewModelLoadError creates a model load error (500).
// The service does not retry internally; callers may retry with backoff.
func NewModelLoadError(model, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeModelLoad,
		Model:      model,
		Retryable:  true,
	}
}

// NewEncodingError creates an inference-time error (500). Not retried.
func NewEncodingError(model, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeEncoding,
		Model:      model,
		Retryable:  false,
	}
}

// NewServiceBusyError creates a busy error (409) for a conflicting model
// transition already in flight. Callers should retry after a short delay.
func NewServiceBusyError(model, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusConflict,
		Message:    message,
		Type:       TypeServiceBusy,
		Model:      model,
		Retryable:  true,
	}
}

// NewNotLoadedError creates a not-loaded error (503).
func NewNotLoadedError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeNotLoaded,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error (500).
func NewInternalError(model, message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternalError,
		Model:      model,
		Retryable:  false,
	}
}

// IsRetryable reports whether the error is a ServiceError marked retryable.
func IsRetryable(err error) bool {
	if se, ok := err.(*ServiceError); ok {
		return se.Retryable
	}
	return false
}
