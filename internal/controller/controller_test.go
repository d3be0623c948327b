package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"testing"

	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

func named(name string) Func {
	return func(ctx context.Context, params Params) (any, error) { return name, nil }
}

func TestRegistryLookup(t *testing.T) {
	op := &spec.Operation{Method: "GET", Path: "/pets/{id}", OperationID: "getPet", Controller: "pets"}

	tests := []struct {
		name     string
		register []string
		want     string
		wantOK   bool
	}{
		{"qualified wins", []string{"GET /pets/{id}", "getPet", "pets.getPet"}, "pets.getPet", true},
		{"operation id", []string{"GET /pets/{id}", "getPet"}, "getPet", true},
		{"method and template", []string{"GET /pets/{id}"}, "GET /pets/{id}", true},
		{"unrelated", []string{"listPets"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, key := range tt.register {
				r.Register(key, named(key))
			}

			fn, ok := r.Lookup(op)
			if ok != tt.wantOK {
				t.Fatalf("Lookup() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			got, _ := fn(context.Background(), nil)
			if got != tt.want {
				t.Errorf("resolved %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegisterOperation(t *testing.T) {
	r := NewRegistry()
	r.RegisterOperation(http.MethodPost, "/pets", named("create"))

	if _, ok := r.Lookup(&spec.Operation{Method: "POST", Path: "/pets"}); !ok {
		t.Error("expected lookup by method and template")
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"POST /pets"}) {
		t.Errorf("List() = %v", got)
	}
}

func TestRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil controller")
		}
	}()
	NewRegistry().Register("x", nil)
}

func TestKeys(t *testing.T) {
	tests := []struct {
		op   *spec.Operation
		want []string
	}{
		{&spec.Operation{Method: "GET", Path: "/a", OperationID: "a", Controller: "c"}, []string{"c.a", "a", "GET /a"}},
		{&spec.Operation{Method: "GET", Path: "/a", OperationID: "a"}, []string{"a", "GET /a"}},
		{&spec.Operation{Method: "*", Path: "/files", OperationID: "files", Controller: "files"}, []string{"files", "* /files"}},
		{&spec.Operation{Method: "GET", Path: "/a"}, []string{"GET /a"}},
	}
	for _, tt := range tests {
		if got := Keys(tt.op); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Keys(%v) = %v, want %v", tt.op, got, tt.want)
		}
	}
}

const mockDoc = `
swagger: "2.0"
info: {title: mock, version: "1"}
paths:
  /pets:
    get:
      operationId: listPets
      responses:
        "200":
          description: ok
          schema:
            type: array
            items: {$ref: "#/definitions/Pet"}
    post:
      operationId: createPet
      responses:
        "400": {description: bad}
        "201":
          description: created
          examples:
            application/json: {id: 1, name: rex}
        "202": {description: accepted}
    delete:
      operationId: deletePets
      responses:
        "204": {description: gone}
definitions:
  Pet:
    type: object
    properties:
      id: {type: integer, format: int64}
      name: {type: string, example: rex}
      born: {type: string, format: date-time}
      kind: {type: string, enum: [dog, cat]}
`

func TestMock(t *testing.T) {
	docs, err := spec.NewLoader(nil).Parse("mock.yaml", []byte(mockDoc))
	if err != nil {
		t.Fatal(err)
	}
	doc := docs[0]
	ops := map[string]*spec.Operation{}
	for _, op := range doc.Operations() {
		ops[op.OperationID] = op
	}

	tests := []struct {
		op         string
		wantStatus int
		wantBody   any
	}{
		{"listPets", 200, []any{map[string]any{
			"id":   json.Number("0"),
			"name": "rex",
			"born": "1970-01-01T00:00:00Z",
			"kind": "dog",
		}}},
		{"createPet", 201, map[string]any{"id": json.Number("1"), "name": "rex"}},
		{"deletePets", 204, nil},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			got, err := Mock(doc, ops[tt.op])(context.Background(), nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, ok := got.(*Response)
			if !ok {
				t.Fatalf("expected *Response, got %T", got)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.Status, tt.wantStatus)
			}
			if !reflect.DeepEqual(resp.Body, tt.wantBody) {
				t.Errorf("body = %#v, want %#v", resp.Body, tt.wantBody)
			}
		})
	}
}
