// Package server hosts the HTTP listener and its ambient middleware: request
// IDs, structured request logging, timeouts, panic recovery and tracing.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// VersionHeader reports the gateway version on every response.
const VersionHeader = "X-Server-Version"

// Options configures New.
type Options struct {
	Timeout time.Duration
	Version string
	// Operation names the otelhttp server span.
	Operation string
}

type Server struct {
	Router *chi.Mux
	logger *slog.Logger

	mu  sync.Mutex
	srv *http.Server
}

// New wraps handler in the middleware chain. Every method and path reaches
// handler, which owns routing and error responses.
func New(opts Options, logger *slog.Logger, handler http.Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Operation == "" {
		opts.Operation = "openapi-gateway"
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(VersionMiddleware(opts.Version))
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(opts.Timeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, opts.Operation)
	})

	r.Handle("/", handler)
	r.Handle("/*", handler)
	r.NotFound(handler.ServeHTTP)
	r.MethodNotAllowed(handler.ServeHTTP)

	return &Server{
		Router: r,
		logger: logger,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Serve accepts connections on l until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		l.Close()
		return errors.New("server already started")
	}
	s.srv = &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	s.logger.Info("starting server", slog.String("addr", l.Addr().String()))
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down server")
	return srv.Shutdown(ctx)
}
