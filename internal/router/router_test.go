package router

import (
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/tjfontaine/openapi-gateway/internal/domain"
	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

const petstore = `
swagger: "2.0"
info: {title: pets, version: "1"}
basePath: /v1
paths:
  /pets:
    get:
      operationId: listPets
    post:
      operationId: createPet
  /pets/{id}:
    get:
      operationId: getPet
  /pets/mine:
    get:
      operationId: myPets
  /pets/mine/{id}:
    put:
      operationId: updateMine
  /pets/{id}/toys:
    get:
      operationId: petToys
  /{kind}/{id}/toys:
    delete:
      operationId: deleteToys
  /files:
    x-swagger-pipe: any_controllers
    x-swagger-router-controller: files
    get:
      operationId: listFiles
`

func mustTable(t *testing.T, src string) *Table {
	t.Helper()
	docs, err := spec.NewLoader(nil).Parse("test.yaml", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	table, err := Build(docs[0])
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return table
}

func TestTableMatch(t *testing.T) {
	table := mustTable(t, petstore)

	tests := []struct {
		name       string
		method     string
		path       string
		wantOp     string
		wantParams map[string]string
	}{
		{"literal route", http.MethodGet, "/pets", "listPets", nil},
		{"trailing slash", http.MethodGet, "/pets/", "listPets", nil},
		{"post on same route", http.MethodPost, "/pets", "createPet", nil},
		{"param route", http.MethodGet, "/pets/42", "getPet", map[string]string{"id": "42"}},
		{"literal beats param", http.MethodGet, "/pets/mine", "myPets", nil},
		{"percent decoded", http.MethodGet, "/pets/a%20b", "getPet", map[string]string{"id": "a b"}},
		{"earliest literal wins", http.MethodGet, "/pets/7/toys", "petToys", map[string]string{"id": "7"}},
		{"falls back to less specific with method", http.MethodDelete, "/pets/7/toys", "deleteToys",
			map[string]string{"kind": "pets", "id": "7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := table.Match(tt.method, tt.path)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if m.Operation.OperationID != tt.wantOp {
				t.Errorf("operation = %q, want %q", m.Operation.OperationID, tt.wantOp)
			}
			if !reflect.DeepEqual(m.PathParams, tt.wantParams) {
				t.Errorf("params = %v, want %v", m.PathParams, tt.wantParams)
			}
		})
	}
}

func TestTableMatch_Errors(t *testing.T) {
	table := mustTable(t, petstore)

	tests := []struct {
		name      string
		method    string
		path      string
		wantType  domain.ErrorType
		wantAllow []string
	}{
		{"unknown path", http.MethodGet, "/owners", domain.ErrorTypeRouteNotFound, nil},
		{"segment count differs", http.MethodGet, "/pets/1/2/3", domain.ErrorTypeRouteNotFound, nil},
		{"empty param segment", http.MethodGet, "/pets//toys", domain.ErrorTypeRouteNotFound, nil},
		{"method not declared", http.MethodPost, "/pets/42", domain.ErrorTypeMethodNotAllowed,
			[]string{"GET", "OPTIONS"}},
		{"post on list only route", http.MethodDelete, "/pets", domain.ErrorTypeMethodNotAllowed,
			[]string{"GET", "OPTIONS", "POST"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Match(tt.method, tt.path)
			var gwErr *domain.Error
			if !errors.As(err, &gwErr) {
				t.Fatalf("expected *domain.Error, got %v", err)
			}
			if gwErr.Type != tt.wantType {
				t.Errorf("type = %q, want %q", gwErr.Type, tt.wantType)
			}
			if !reflect.DeepEqual(gwErr.Allow, tt.wantAllow) {
				t.Errorf("allow = %v, want %v", gwErr.Allow, tt.wantAllow)
			}
		})
	}
}

func TestTableMatch_Idempotent(t *testing.T) {
	table := mustTable(t, petstore)

	first, err := table.Match(http.MethodGet, "/pets/9")
	if err != nil {
		t.Fatal(err)
	}
	second, err := table.Match(http.MethodGet, "/pets/9")
	if err != nil {
		t.Fatal(err)
	}
	if first.Route != second.Route || first.Operation != second.Operation {
		t.Error("expected identical route resolution")
	}
	if !reflect.DeepEqual(first.PathParams, second.PathParams) {
		t.Errorf("params differ: %v vs %v", first.PathParams, second.PathParams)
	}
}

func TestBuild_Ambiguous(t *testing.T) {
	src := `
swagger: "2.0"
info: {title: dup, version: "1"}
paths:
  /pets/{id}:
    get: {operationId: a}
  /pets/{petId}:
    put: {operationId: b}
`
	docs, err := spec.NewLoader(nil).Parse("dup.yaml", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Build(docs[0])
	if !errors.Is(err, domain.ErrInvalidSpec("", "")) {
		t.Fatalf("expected invalid_spec error, got %v", err)
	}
}

func TestBuild_AnyRoute(t *testing.T) {
	table := mustTable(t, petstore)

	route, _ := table.Lookup("/files")
	if route == nil {
		t.Fatal("expected /files route")
	}
	if route.Any == nil {
		t.Fatal("expected any-method operation on any_controllers route")
	}
	if route.Any.OperationID != "files" || route.Any.Method != AnyMethod {
		t.Errorf("unexpected any operation %+v", route.Any)
	}
	if route.PipeFor(http.MethodGet) != "any_controllers" {
		t.Errorf("PipeFor = %q", route.PipeFor(http.MethodGet))
	}

	// any-method operations are never matched by method resolution
	if _, err := table.Match(http.MethodPatch, "/files"); !errors.Is(err, domain.ErrMethodNotAllowed("", "", nil)) {
		t.Errorf("expected method_not_allowed, got %v", err)
	}

	pets, _ := table.Lookup("/pets")
	if pets.Any != nil {
		t.Error("swagger_controllers route should not get an any-method operation")
	}
}

func TestStripBasePath(t *testing.T) {
	table := mustTable(t, petstore)

	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"/v1/pets", "/pets", true},
		{"/v1", "/", true},
		{"/v1/", "/", true},
		{"/v10/pets", "", false},
		{"/v2/pets", "", false},
	}
	for _, tt := range tests {
		got, ok := table.StripBasePath(tt.path)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("StripBasePath(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.wantOK)
		}
	}
}
