// Package domain provides canonical error types for the gateway.
package domain

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the category of a gateway error.
type ErrorType string

const (
	// ErrorTypeInvalidSpec indicates a malformed or unrecognized API document.
	// It is fatal for that document only.
	ErrorTypeInvalidSpec ErrorType = "invalid_spec"

	// ErrorTypeRouteNotFound indicates no path template matched the request.
	ErrorTypeRouteNotFound ErrorType = "route_not_found"

	// ErrorTypeMethodNotAllowed indicates the path matched but the method did not.
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"

	// ErrorTypePayloadTooLarge indicates the request body exceeded the parser limit.
	ErrorTypePayloadTooLarge ErrorType = "payload_too_large"

	// ErrorTypeBadRequest indicates a malformed request body.
	ErrorTypeBadRequest ErrorType = "bad_request"

	// ErrorTypeValidation indicates one or more parameters failed validation.
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeNoPipelineMatched indicates no mounted document claimed the request.
	ErrorTypeNoPipelineMatched ErrorType = "no_pipeline_matched"

	// ErrorTypeConfiguration indicates a startup configuration problem.
	// It aborts the process before listening.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeServer indicates an internal failure, usually in a controller.
	ErrorTypeServer ErrorType = "server"
)

// FieldError describes a single failing parameter.
type FieldError struct {
	Name    string `json:"name"`
	In      string `json:"in,omitempty"`
	Message string `json:"message"`
}

// Error is the canonical gateway error. Every stage failure is converted into
// one before it is written to the client.
type Error struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Source names the document or path the error relates to (if applicable)
	Source string `json:"-"`

	// Fields lists the failing parameters of a validation error
	Fields []FieldError `json:"fields,omitempty"`

	// Allow lists the methods accepted on a path for method_not_allowed
	Allow []string `json:"-"`

	// StatusCode overrides the status derived from Type
	StatusCode int `json:"-"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Source != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Source)
	}
	if len(e.Fields) > 0 {
		names := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			names[i] = f.Name
		}
		msg += " [" + strings.Join(names, ", ") + "]"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is a *Error of the same type, so that
// errors.Is(err, domain.ErrValidation("")) style checks work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeRouteNotFound, ErrorTypeNoPipelineMatched:
		return http.StatusNotFound
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorTypePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeBadRequest, ErrorTypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new gateway error.
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// WithSource records the document or path the error relates to.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithField appends a failing parameter.
func (e *Error) WithField(name, in, message string) *Error {
	e.Fields = append(e.Fields, FieldError{Name: name, In: in, Message: message})
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// Convenience constructors for the taxonomy

// ErrInvalidSpec creates an invalid document error naming the offending source.
func ErrInvalidSpec(source, message string) *Error {
	return NewError(ErrorTypeInvalidSpec, message).WithSource(source)
}

// ErrRouteNotFound creates a route not found error.
func ErrRouteNotFound(path string) *Error {
	return NewError(ErrorTypeRouteNotFound, "no route matches "+path)
}

// ErrMethodNotAllowed creates a method not allowed error.
func ErrMethodNotAllowed(method, path string, allow []string) *Error {
	e := NewError(ErrorTypeMethodNotAllowed, fmt.Sprintf("method %s not allowed on %s", method, path))
	e.Allow = allow
	return e
}

// ErrPayloadTooLarge creates a payload too large error.
func ErrPayloadTooLarge(limit int64) *Error {
	return NewError(ErrorTypePayloadTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
}

// ErrBadRequest creates a bad request error.
func ErrBadRequest(message string) *Error {
	return NewError(ErrorTypeBadRequest, message)
}

// ErrValidation creates a validation error. Failing fields are added with WithField.
func ErrValidation(message string) *Error {
	if message == "" {
		message = "request validation failed"
	}
	return NewError(ErrorTypeValidation, message)
}

// ErrNoPipelineMatched creates a no pipeline matched error.
func ErrNoPipelineMatched(host, path string) *Error {
	return NewError(ErrorTypeNoPipelineMatched, fmt.Sprintf("no mounted API serves %s%s", host, path))
}

// ErrConfiguration creates a startup configuration error.
func ErrConfiguration(message string) *Error {
	return NewError(ErrorTypeConfiguration, message)
}

// ErrServer creates a server error.
func ErrServer(message string) *Error {
	return NewError(ErrorTypeServer, message)
}
