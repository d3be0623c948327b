// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records dispatch outcomes. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	StageErrors      *prometheus.CounterVec
	MountedDocuments prometheus.Gauge
	registry         *prometheus.Registry
}

// New creates the collectors on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apigw_requests_total",
				Help: "Total number of dispatched requests",
			},
			[]string{"pipeline", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apigw_request_duration_seconds",
				Help:    "Dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pipeline"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apigw_stage_errors_total",
				Help: "Total number of requests halted by a pipeline stage",
			},
			[]string{"stage", "type"},
		),
		MountedDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "apigw_mounted_documents",
				Help: "Number of API documents being served",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.RequestCounter,
		m.LatencyHistogram,
		m.StageErrors,
		m.MountedDocuments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveRequest records one finished dispatch.
func (m *Metrics) ObserveRequest(pipeline string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(pipeline, strconv.Itoa(status)).Inc()
	m.LatencyHistogram.WithLabelValues(pipeline).Observe(d.Seconds())
}

// IncStageError records a request halted by stage with an error of errType.
func (m *Metrics) IncStageError(stage, errType string) {
	if m == nil {
		return
	}
	m.StageErrors.WithLabelValues(stage, errType).Inc()
}

// SetMounted records the number of mounted documents.
func (m *Metrics) SetMounted(n int) {
	if m == nil {
		return
	}
	m.MountedDocuments.Set(float64(n))
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
