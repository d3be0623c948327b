// Package runtime provides the Gateway struct and its lifecycle: mounting
// API documents, serving them and shutting down.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/openapi-gateway/internal/config"
	"github.com/tjfontaine/openapi-gateway/internal/controller"
	"github.com/tjfontaine/openapi-gateway/internal/dispatch"
	"github.com/tjfontaine/openapi-gateway/internal/domain"
	"github.com/tjfontaine/openapi-gateway/internal/metrics"
	"github.com/tjfontaine/openapi-gateway/internal/pipeline"
	"github.com/tjfontaine/openapi-gateway/internal/router"
	"github.com/tjfontaine/openapi-gateway/internal/server"
	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

// ErrNothingMounted is returned by Mount when no document could be mounted.
var ErrNothingMounted = errors.New("no API documents mounted")

// Gateway serves every mounted API document behind one HTTP listener.
// It can be embedded in larger applications or run standalone.
type Gateway struct {
	cfg      *config.Config
	registry *controller.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	version  string

	mu         sync.Mutex
	instances  []*pipeline.Instance
	failures   []error
	dispatcher *dispatch.Dispatcher
	server     *server.Server
	metricsSrv *http.Server
	addr       net.Addr
	metricAddr net.Addr
	errc       chan error
}

// New creates a Gateway with the given options. Without options it uses
// config.Default(), an empty registry and fresh metrics.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		cfg:      config.Default(),
		registry: controller.NewRegistry(),
		metrics:  metrics.New(),
		logger:   slog.Default(),
		errc:     make(chan error, 2),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if gw.logger == nil {
		gw.logger = slog.Default()
	}

	return gw, nil
}

// Registry returns the controller registry. Controllers must be registered
// before Mount.
func (g *Gateway) Registry() *controller.Registry { return g.registry }

// Metrics returns the collectors the gateway records into.
func (g *Gateway) Metrics() *metrics.Metrics { return g.metrics }

// Mount loads paths and mounts every API document they contain, in order.
// Documents that fail to load or build are logged and skipped; they are
// reported by Failures. A configuration error aborts the mount. Mount fails
// with ErrNothingMounted when no document could be mounted.
func (g *Gateway) Mount(ctx context.Context, paths ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.addr != nil {
		return errors.New("gateway already started")
	}

	loader := spec.NewLoader(g.logger)
	var docs []*spec.Document
	for _, res := range loader.LoadAll(ctx, paths) {
		if res.Err != nil {
			g.logger.Error("failed to load API document",
				slog.String("path", res.Path),
				slog.String("error", res.Err.Error()))
			g.failures = append(g.failures, res.Err)
			continue
		}
		if len(res.Documents) == 0 {
			g.logger.Warn("no API documents found", slog.String("path", res.Path))
			continue
		}
		docs = append(docs, res.Documents...)
	}

	instances, err := g.assemble(ctx, docs)
	if err != nil {
		return err
	}

	g.instances = append(g.instances, instances...)
	g.metrics.SetMounted(len(g.instances))
	if len(g.instances) == 0 {
		return ErrNothingMounted
	}

	g.dispatcher = dispatch.New(g.instances, g.cfg.CORS, g.logger, g.metrics)
	g.server = server.New(server.Options{
		Timeout:   g.cfg.Server.Timeout,
		Version:   g.version,
		Operation: g.cfg.Tracing.ServiceName,
	}, g.logger, g.dispatcher)

	return nil
}

// assemble builds the route table and pipeline instance of each document
// concurrently. Results keep the order of docs.
func (g *Gateway) assemble(ctx context.Context, docs []*spec.Document) ([]*pipeline.Instance, error) {
	built := make([]*pipeline.Instance, len(docs))
	errs := make([]error, len(docs))

	anyPipes := router.WithAnyPipes(g.cfg.AnyPipes()...)

	eg, ctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			table, err := router.Build(doc, anyPipes)
			if err != nil {
				errs[i] = err
				return nil
			}

			inst, err := pipeline.Assemble(g.cfg.Pipelines, table, g.registry, pipeline.Options{
				CORS:        g.cfg.CORS,
				Parser:      g.cfg.Parser,
				DefaultPipe: g.cfg.Router.DefaultPipe,
				MockMode:    g.cfg.Router.MockMode,
				Logger:      g.logger,
				Metrics:     g.metrics,
			})
			if err != nil {
				if errors.Is(err, domain.ErrConfiguration("")) {
					return err
				}
				errs[i] = err
				return nil
			}
			built[i] = inst
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	instances := make([]*pipeline.Instance, 0, len(docs))
	for i, doc := range docs {
		if errs[i] != nil {
			g.logger.Error("failed to mount API document",
				slog.String("source", doc.Source),
				slog.String("error", errs[i].Error()))
			g.failures = append(g.failures, errs[i])
			continue
		}
		g.logger.Info("mounted API document",
			slog.String("source", doc.Source),
			slog.String("title", doc.Title),
			slog.String("format", string(doc.Format)),
			slog.String("base_path", doc.BasePath),
			slog.Int("operations", len(doc.Operations())))
		instances = append(instances, built[i])
	}
	return instances, nil
}

// Instances returns the mounted pipeline instances in mount order.
func (g *Gateway) Instances() []*pipeline.Instance {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*pipeline.Instance(nil), g.instances...)
}

// Failures returns the errors of documents that could not be mounted.
func (g *Gateway) Failures() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.failures...)
}

// Handler returns the full HTTP handler, middleware included. It is nil
// until a document has been mounted.
func (g *Gateway) Handler() http.Handler {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server == nil {
		return nil
	}
	return g.server
}

// Start listens on the configured port, and on the metrics address when
// one is configured, and serves in the background. Serve failures are
// delivered on Errors.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.server == nil {
		return ErrNothingMounted
	}
	if g.addr != nil {
		return errors.New("gateway already started")
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", g.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", g.cfg.Port, err)
	}

	if g.cfg.Metrics.Addr != "" {
		if err := g.startMetrics(ctx); err != nil {
			l.Close()
			return err
		}
	}

	g.addr = l.Addr()
	srv := g.server
	go func() {
		if err := srv.Serve(l); err != nil {
			g.errc <- fmt.Errorf("server: %w", err)
		}
	}()

	g.logger.Info("gateway started",
		slog.String("addr", g.addr.String()),
		slog.Int("documents", len(g.instances)))
	return nil
}

func (g *Gateway) startMetrics(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", g.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen on metrics address %s: %w", g.cfg.Metrics.Addr, err)
	}

	r := chi.NewRouter()
	r.Handle(g.cfg.Metrics.Path, g.metrics.Handler())

	g.metricAddr = l.Addr()
	g.metricsSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := g.metricsSrv
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.errc <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	g.logger.Info("metrics listener started",
		slog.String("addr", l.Addr().String()),
		slog.String("path", g.cfg.Metrics.Path))
	return nil
}

// Addr returns the address the gateway listens on, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// MetricsAddr returns the address of the metrics listener, or nil when it
// is disabled or not started.
func (g *Gateway) MetricsAddr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metricAddr
}

// Errors delivers failures of the background listeners.
func (g *Gateway) Errors() <-chan error { return g.errc }

// Shutdown gracefully stops the listeners, draining in-flight requests
// until ctx expires.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	var errs []error
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if g.metricsSrv != nil {
		if err := g.metricsSrv.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown metrics server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	g.logger.Info("gateway shutdown complete")
	return errors.Join(errs...)
}
