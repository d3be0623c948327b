package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveRequest("swagger_controllers", 200, 10*time.Millisecond)
	m.ObserveRequest("swagger_controllers", 200, 20*time.Millisecond)
	m.ObserveRequest("swagger_controllers", 404, time.Millisecond)
	m.IncStageError("router", "validation")
	m.SetMounted(3)

	if got := testutil.ToFloat64(m.RequestCounter.WithLabelValues("swagger_controllers", "200")); got != 2 {
		t.Errorf("requests{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StageErrors.WithLabelValues("router", "validation")); got != 1 {
		t.Errorf("stage errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MountedDocuments); got != 3 {
		t.Errorf("mounted = %v, want 3", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `apigw_requests_total{pipeline="swagger_controllers",status="404"} 1`) {
		t.Errorf("scrape output missing request counter:\n%s", body)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	// Must not panic
	m.ObserveRequest("p", 200, time.Second)
	m.IncStageError("cors", "server")
	m.SetMounted(1)
}

func TestNewIsolated(t *testing.T) {
	// Each instance owns its registry, so two can coexist
	a, b := New(), New()
	a.SetMounted(1)
	if got := testutil.ToFloat64(b.MountedDocuments); got != 0 {
		t.Errorf("registries are shared: %v", got)
	}
}
