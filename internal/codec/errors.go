// Package codec provides the JSON encoding of gateway responses and the
// mapping from arbitrary errors to canonical domain errors.
package codec

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tjfontaine/openapi-gateway/internal/domain"
)

// ErrorResponse is an encoded error ready to be written.
type ErrorResponse struct {
	StatusCode int
	Body       []byte
}

// errorEnvelope is the wire shape of every gateway error.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    domain.ErrorType    `json:"type"`
	Message string              `json:"message"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

// ToCanonicalError converts any error to a *domain.Error.
// If the error already is (or wraps) one, it is returned directly.
// Otherwise the error is hidden behind a generic server error.
func ToCanonicalError(err error) *domain.Error {
	var gwErr *domain.Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return domain.ErrServer("internal server error").WithCause(err)
}

// FormatError encodes err as the gateway error envelope.
func FormatError(err error) *ErrorResponse {
	gwErr := ToCanonicalError(err)

	body, _ := json.Marshal(errorEnvelope{Error: errorBody{
		Type:    gwErr.Type,
		Message: gwErr.Message,
		Fields:  gwErr.Fields,
	}})

	return &ErrorResponse{
		StatusCode: gwErr.HTTPStatusCode(),
		Body:       body,
	}
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, err error) {
	gwErr := ToCanonicalError(err)
	if len(gwErr.Allow) > 0 {
		w.Header().Set("Allow", strings.Join(gwErr.Allow, ", "))
	}

	resp := FormatError(gwErr)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// WriteJSON writes v as a JSON response with the given status.
// A nil value with a 2xx status writes no body.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	if v == nil {
		w.WriteHeader(status)
		return nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}
