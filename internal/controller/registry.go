// Package controller maps operations to the handler functions supplied by the
// embedding application.
//
// # Registering a Controller
//
// Controllers are registered under one of three keys, tried in this order
// when an operation is resolved:
//
//	registry.Register("pets.getPet", fn)   // <x-swagger-router-controller>.<operationId>
//	registry.Register("getPet", fn)        // operationId
//	registry.Register("GET /pets/{id}", fn) // METHOD template
//
// Resolution happens once, when pipelines are assembled.
package controller

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

// Params is the validated parameter mapping handed to a controller.
type Params map[string]any

// Func handles one operation. The returned value is written as the JSON
// response body; a *Response controls status and headers; nil yields 204.
// A *domain.Error keeps its status code, any other error becomes a 500.
type Func func(ctx context.Context, params Params) (any, error)

// Response lets a controller choose the status code and headers.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

// Registry holds controllers by key. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under key, replacing any previous registration.
// Panics if key is empty or fn is nil.
func (r *Registry) Register(key string, fn Func) {
	if key == "" {
		panic("controller key cannot be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("controller %q must not be nil", key))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key] = fn
}

// RegisterOperation adds fn for a method and path template.
func (r *Registry) RegisterOperation(method, template string, fn Func) {
	r.Register(method+" "+template, fn)
}

// Lookup resolves the controller of op.
func (r *Registry) Lookup(op *spec.Operation) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range Keys(op) {
		if fn, ok := r.funcs[key]; ok {
			return fn, true
		}
	}
	return nil, false
}

// List returns the registered keys, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Keys returns the lookup keys of op, most specific first.
func Keys(op *spec.Operation) []string {
	var keys []string
	if op.OperationID != "" {
		if op.Controller != "" && op.Controller != op.OperationID {
			keys = append(keys, op.Controller+"."+op.OperationID)
		}
		keys = append(keys, op.OperationID)
	}
	return append(keys, op.Method+" "+op.Path)
}
