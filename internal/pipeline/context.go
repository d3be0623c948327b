package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tjfontaine/openapi-gateway/internal/controller"
	"github.com/tjfontaine/openapi-gateway/internal/router"
	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

// RequestContext is the per-request state threaded through a chain. It is
// owned by a single dispatch and never shared.
type RequestContext struct {
	Request   *http.Request
	Writer    http.ResponseWriter
	RequestID string
	// Path is the request path relative to the document base path.
	Path     string
	Pipeline string

	// Route and Operation stay nil until resolved.
	Route      *router.Route
	Operation  *spec.Operation
	PathParams map[string]string

	Body    any
	HasBody bool
	Form    url.Values

	Params controller.Params
	Errors []error
	Logger *slog.Logger

	ctx       context.Context
	validated bool
	// allow is set when an OPTIONS request matched a path that does not
	// declare OPTIONS.
	allow      []string
	failedAt   string
	statusCode int
	written    bool
}

// NewRequestContext creates the context of one request.
func NewRequestContext(w http.ResponseWriter, r *http.Request, path string, logger *slog.Logger) *RequestContext {
	rc := &RequestContext{
		Request: r,
		Path:    path,
		Logger:  logger,
		ctx:     r.Context(),
	}
	rc.Writer = &statusWriter{ResponseWriter: w, rc: rc}
	return rc
}

// Context returns the request context, including the current stage span.
func (rc *RequestContext) Context() context.Context {
	return rc.ctx
}

// Status returns the status code written so far, or 0.
func (rc *RequestContext) Status() int {
	return rc.statusCode
}

// Written reports whether a response header has been sent.
func (rc *RequestContext) Written() bool {
	return rc.written
}

// FailedStage returns the name of the stage that halted the chain.
func (rc *RequestContext) FailedStage() string {
	return rc.failedAt
}

// statusWriter records the status code so the chain knows whether a
// response was produced.
type statusWriter struct {
	http.ResponseWriter
	rc *RequestContext
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.rc.written {
		w.rc.written = true
		w.rc.statusCode = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.rc.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
