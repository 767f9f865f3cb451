// Package apperr defines the error taxonomy shared by every service.
//
// Errors carry a stable machine-readable code so the HTTP layer can map them
// to status codes and the standard error envelope without inspecting message
// text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable error code carried across service boundaries.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindConflict           Kind = "CONFLICT"
	KindNotFound           Kind = "NOT_FOUND"
	KindLocked             Kind = "LOCKED"
	KindLifecycle          Kind = "LIFECYCLE_ERROR"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindGatewayTimeout     Kind = "GATEWAY_TIMEOUT"
	KindBadGateway         Kind = "BAD_GATEWAY"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// Error is the application error type. Message is safe to return to callers;
// Details is optional structured context for the envelope.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New creates an application error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an application error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an application error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, wrapped: err}
}

// WithDetails returns a copy of the error carrying structured details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// KindOf extracts the Kind from an error chain, defaulting to INTERNAL_ERROR.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MessageOf returns the safe message for an error chain. Non-application
// errors collapse to a generic message so internals never leak to clients.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}

// DetailsOf returns structured details if the error carries any.
func DetailsOf(err error) map[string]interface{} {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Details
	}
	return nil
}

// HTTPStatus maps an error kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindLocked:
		return http.StatusLocked
	case KindLifecycle:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	case KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
