package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/openapi-gateway/internal/testutil"
	"github.com/tjfontaine/openapi-gateway/pkg/gateway"
)

const widgets = `
swagger: "2.0"
info: {title: Widgets, version: "1"}
paths:
  /widgets/{name}:
    x-swagger-router-controller: widgets
    get:
      operationId: getWidget
      parameters:
        - {name: name, in: path, type: string, required: true}
`

func TestEmbedding(t *testing.T) {
	path := testutil.WriteSpec(t, "widgets.yaml", widgets)

	cfg := gateway.DefaultConfig()
	cfg.Router.MockMode = false

	registry := gateway.NewRegistry()
	registry.Register("widgets.getWidget", func(ctx context.Context, p gateway.Params) (any, error) {
		if p["name"] == "missing" {
			return nil, gateway.NewError("route_not_found", "no such widget").WithStatusCode(http.StatusNotFound)
		}
		return &gateway.Response{
			Status: http.StatusOK,
			Header: http.Header{"X-Widget": []string{p["name"].(string)}},
			Body:   map[string]any{"name": p["name"]},
		}, nil
	})

	gw, err := gateway.New(
		gateway.WithConfig(cfg),
		gateway.WithRegistry(registry),
		gateway.WithLogger(testutil.DiscardLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := gw.Mount(context.Background(), path); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/sprocket", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Widget") != "sprocket" {
		t.Errorf("status = %d, headers = %v", rec.Code, rec.Header())
	}

	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/missing", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "no such widget") {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
	}
}
