package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "type and message",
			err:      ErrBadRequest("malformed JSON body"),
			expected: "bad_request: malformed JSON body",
		},
		{
			name:     "with source",
			err:      ErrInvalidSpec("api.yaml", "unrecognized document"),
			expected: "invalid_spec: unrecognized document (api.yaml)",
		},
		{
			name:     "with fields",
			err:      ErrValidation("").WithField("id", "path", "expected integer").WithField("q", "query", "required"),
			expected: "validation: request validation failed [id, q]",
		},
		{
			name:     "with cause",
			err:      ErrInvalidSpec("api.yaml", "read document").WithCause(errors.New("no such file")),
			expected: "invalid_spec: read document (api.yaml): no such file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected int
	}{
		{"route not found", ErrRouteNotFound("/x"), http.StatusNotFound},
		{"no pipeline matched", ErrNoPipelineMatched("h", "/x"), http.StatusNotFound},
		{"method not allowed", ErrMethodNotAllowed("POST", "/pets", []string{"GET"}), http.StatusMethodNotAllowed},
		{"payload too large", ErrPayloadTooLarge(10), http.StatusRequestEntityTooLarge},
		{"bad request", ErrBadRequest("x"), http.StatusBadRequest},
		{"validation", ErrValidation("x"), http.StatusBadRequest},
		{"server", ErrServer("x"), http.StatusInternalServerError},
		{"configuration", ErrConfiguration("x"), http.StatusInternalServerError},
		{"explicit status", ErrServer("x").WithStatusCode(http.StatusTeapot), http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestError_IsAndAs(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("mount: %w", ErrInvalidSpec("a.yaml", "bad").WithCause(cause))

	if !errors.Is(err, ErrInvalidSpec("", "")) {
		t.Error("expected errors.Is to match on error type")
	}
	if errors.Is(err, ErrConfiguration("")) {
		t.Error("expected errors.Is not to match a different type")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatal("expected errors.As to find *Error")
	}
	if gwErr.Source != "a.yaml" {
		t.Errorf("Source = %q, want a.yaml", gwErr.Source)
	}
}

func TestErrMethodNotAllowed_Allow(t *testing.T) {
	err := ErrMethodNotAllowed("POST", "/pets", []string{"GET", "PUT"})
	if len(err.Allow) != 2 || err.Allow[0] != "GET" {
		t.Errorf("Allow = %v", err.Allow)
	}
}
