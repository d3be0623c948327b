// Package dispatch routes each inbound request to the pipeline instance of
// the mounted document that owns it.
package dispatch

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/openapi-gateway/internal/config"
	"github.com/tjfontaine/openapi-gateway/internal/domain"
	"github.com/tjfontaine/openapi-gateway/internal/metrics"
	"github.com/tjfontaine/openapi-gateway/internal/pipeline"
	"github.com/tjfontaine/openapi-gateway/internal/server"
)

// noPipeline labels metrics of requests no instance claimed.
const noPipeline = "none"

// Dispatcher holds the mounted instances. It is read-only after New.
type Dispatcher struct {
	instances []*pipeline.Instance
	fallback  *pipeline.Executor
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a dispatcher over instances, in mount order. The CORS
// configuration serves pre-flights of requests no instance claims.
func New(instances []*pipeline.Instance, cors config.CORSConfig, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		instances: append([]*pipeline.Instance(nil), instances...),
		fallback:  pipeline.NewExecutor(noPipeline, pipeline.NewCORS(cors)),
		logger:    logger,
		metrics:   m,
	}
}

// Instances returns the mounted instances in mount order.
func (d *Dispatcher) Instances() []*pipeline.Instance {
	return d.instances
}

// Selection is the instance owning a request.
type Selection struct {
	Instance *pipeline.Instance
	// Path is the request path relative to the base path.
	Path string
	// Outside is set when a lone instance was selected for a path outside
	// its base path; such requests resolve to route_not_found.
	Outside bool
}

// Select returns the instance owning r. A single mounted instance is selected
// unconditionally; otherwise the first instance whose host and base path
// match wins.
func (d *Dispatcher) Select(r *http.Request) (Selection, bool) {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	if len(d.instances) == 1 {
		inst := d.instances[0]
		if rel, ok := inst.Table().StripBasePath(path); ok {
			return Selection{Instance: inst, Path: rel}, true
		}
		return Selection{Instance: inst, Outside: true}, true
	}

	host := requestHost(r)
	for _, inst := range d.instances {
		doc := inst.Document()
		if doc.Host != "" && !strings.EqualFold(stripPort(doc.Host), host) {
			continue
		}
		if rel, ok := inst.Table().StripBasePath(path); ok {
			return Selection{Instance: inst, Path: rel}, true
		}
	}
	return Selection{}, false
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	sel, ok := d.Select(r)
	if !ok {
		rc := pipeline.NewRequestContext(w, r, r.URL.Path, d.logger)
		rc.RequestID = server.GetRequestID(r.Context())
		server.AddLogField(r.Context(), "pipeline", noPipeline)

		// Pre-flights still get their CORS headers
		err := d.fallback.Run(rc)
		if err == nil {
			err = domain.ErrNoPipelineMatched(requestHost(r), r.URL.Path)
		}
		pipeline.Fail(rc, err, d.metrics)
		d.metrics.ObserveRequest(noPipeline, rc.Status(), time.Since(start))
		return
	}

	var rc *pipeline.RequestContext
	if sel.Outside {
		rc = sel.Instance.ServeUnrouted(w, r)
	} else {
		rc = sel.Instance.Serve(w, r, sel.Path)
	}
	d.metrics.ObserveRequest(rc.Pipeline, rc.Status(), time.Since(start))
}

func requestHost(r *http.Request) string {
	return strings.ToLower(stripPort(r.Host))
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
