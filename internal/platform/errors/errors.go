// Package errors maps failures of the status server onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	// TypeUnavailable: nothing is followed yet, or the view is not seeded (HTTP 503)
	TypeUnavailable ErrorType = "unavailable"
	// TypeInternal: server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error is a categorised failure with optional structured context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code for the error's type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func UnavailableError(message string) *Error {
	return &Error{Type: TypeUnavailable, Message: message, Context: make(map[string]any)}
}

func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause, Context: make(map[string]any)}
}

// WithContext adds a context field and returns e.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent for an Error.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Type: e.Type, Context: e.Context}
}

// AsStructuredError returns err's *Error, or wraps err as an internal error.
// The cause of an internal error never reaches the response body.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}
	return InternalError("internal server error", err)
}
