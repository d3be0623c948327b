// Package router compiles the paths of an API document into a route table and
// matches request paths against it.
package router

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tjfontaine/openapi-gateway/internal/config"
	"github.com/tjfontaine/openapi-gateway/internal/domain"
	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

// AnyMethod is the Method of the operation bound by the any_handler stage.
const AnyMethod = "*"

// Segment is one element of a tokenized path template.
type Segment struct {
	Literal string
	Param   string // non-empty for a {name} segment
}

// IsParam reports whether s matches any non-empty value.
func (s Segment) IsParam() bool { return s.Param != "" }

// Route is one path template with the operations declared on it.
type Route struct {
	Template   string
	Segments   []Segment
	Pipe       string
	Operations map[string]*spec.Operation
	// Any is the any-method operation, set for routes whose pipe serves
	// arbitrary methods.
	Any *spec.Operation
}

// Allow returns the methods declared on the route, sorted, with OPTIONS.
func (r *Route) Allow() []string {
	allow := make([]string, 0, len(r.Operations)+1)
	for m := range r.Operations {
		allow = append(allow, m)
	}
	if _, ok := r.Operations[http.MethodOptions]; !ok {
		allow = append(allow, http.MethodOptions)
	}
	sort.Strings(allow)
	return allow
}

// PipeFor returns the pipe serving method on this route: the operation's
// own pipe if it declares one, else the route's.
func (r *Route) PipeFor(method string) string {
	if op, ok := r.Operations[method]; ok && op.Pipe != "" {
		return op.Pipe
	}
	return r.Pipe
}

// Match is the result of a successful route resolution.
type Match struct {
	Route      *Route
	Operation  *spec.Operation
	PathParams map[string]string
}

// Table is the compiled, read-only route table of one document.
type Table struct {
	doc *spec.Document
	// routes is ordered most specific first.
	routes []*Route
}

type buildOptions struct {
	anyPipes map[string]bool
}

// Option configures Build.
type Option func(*buildOptions)

// WithAnyPipes names the pipes whose routes get an any-method operation.
// The default is any_controllers.
func WithAnyPipes(names ...string) Option {
	return func(o *buildOptions) {
		o.anyPipes = make(map[string]bool, len(names))
		for _, n := range names {
			o.anyPipes[n] = true
		}
	}
}

// Build compiles every path template × method of doc.
func Build(doc *spec.Document, opts ...Option) (*Table, error) {
	o := buildOptions{anyPipes: map[string]bool{config.PipeAnyControllers: true}}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Table{doc: doc}
	shapes := make(map[string]string, len(doc.Paths))

	for _, item := range doc.Paths {
		segments, err := tokenize(item.Template)
		if err != nil {
			return nil, domain.ErrInvalidSpec(doc.Source, err.Error())
		}

		shape := shapeKey(segments)
		if prev, ok := shapes[shape]; ok {
			return nil, domain.ErrInvalidSpec(doc.Source,
				fmt.Sprintf("path templates %s and %s are ambiguous", prev, item.Template))
		}
		shapes[shape] = item.Template

		route := &Route{
			Template:   item.Template,
			Segments:   segments,
			Pipe:       item.Pipe,
			Operations: make(map[string]*spec.Operation, len(item.Operations)),
		}
		for _, op := range item.Operations {
			route.Operations[op.Method] = op
		}
		if o.anyPipes[item.Pipe] {
			route.Any = &spec.Operation{
				Method:      AnyMethod,
				Path:        item.Template,
				OperationID: item.Controller,
				Controller:  item.Controller,
				Pipe:        item.Pipe,
				Parameters:  item.Parameters,
			}
		}
		t.routes = append(t.routes, route)
	}

	sort.SliceStable(t.routes, func(i, j int) bool {
		return moreSpecific(t.routes[i].Segments, t.routes[j].Segments)
	})

	return t, nil
}

// Document returns the document the table was built from.
func (t *Table) Document() *spec.Document { return t.doc }

// Routes returns the routes, most specific first.
func (t *Table) Routes() []*Route { return t.routes }

// Lookup returns the most specific route matching path, regardless of method.
func (t *Table) Lookup(path string) (*Route, map[string]string) {
	segs, ok := splitPath(path)
	if !ok {
		return nil, nil
	}
	for _, r := range t.routes {
		if params, ok := matchSegments(r.Segments, segs); ok {
			return r, params
		}
	}
	return nil, nil
}

// Match resolves method and path (relative to the base path) to an operation.
//
// Candidates are tried most specific first and the first one declaring method
// wins. No candidate is a route_not_found error; candidates without the method
// produce method_not_allowed carrying the most specific candidate's methods.
func (t *Table) Match(method, path string) (*Match, error) {
	segs, ok := splitPath(path)
	if !ok {
		return nil, domain.ErrRouteNotFound(path)
	}

	var first *Route
	for _, r := range t.routes {
		params, ok := matchSegments(r.Segments, segs)
		if !ok {
			continue
		}
		if first == nil {
			first = r
		}
		if op, ok := r.Operations[method]; ok {
			return &Match{Route: r, Operation: op, PathParams: params}, nil
		}
	}

	if first == nil {
		return nil, domain.ErrRouteNotFound(path)
	}
	return nil, domain.ErrMethodNotAllowed(method, path, first.Allow())
}

// StripBasePath returns path relative to the document's base path, or false
// if path is not under it. The comparison is segment-wise.
func (t *Table) StripBasePath(path string) (string, bool) {
	base := t.doc.BasePath
	if base == "" {
		return path, true
	}
	if path == base {
		return "/", true
	}
	if strings.HasPrefix(path, base+"/") {
		return path[len(base):], true
	}
	return "", false
}

func tokenize(template string) ([]Segment, error) {
	trimmed := strings.Trim(template, "/")
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.Split(trimmed, "/")
	segments := make([]Segment, len(parts))
	seen := make(map[string]bool)
	for i, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			name := p[1 : len(p)-1]
			if name == "" || strings.ContainsAny(name, "{}") {
				return nil, fmt.Errorf("path %s: malformed parameter segment %q", template, p)
			}
			if seen[name] {
				return nil, fmt.Errorf("path %s: duplicate parameter %q", template, name)
			}
			seen[name] = true
			segments[i] = Segment{Param: name}
			continue
		}
		segments[i] = Segment{Literal: p}
	}
	return segments, nil
}

// shapeKey identifies templates that match exactly the same paths.
func shapeKey(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		if s.IsParam() {
			b.WriteString("{}")
		} else {
			b.WriteString(url.PathEscape(s.Literal))
		}
	}
	return b.String()
}

// moreSpecific orders templates by segment count, then literal-first at the
// earliest position where their kinds differ, then lexically.
func moreSpecific(a, b []Segment) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i].IsParam() != b[i].IsParam() {
			return !a[i].IsParam()
		}
	}
	return shapeKey(a) < shapeKey(b)
}

// splitPath splits a request path into percent-decoded segments. A single
// trailing slash is ignored.
func splitPath(path string) ([]string, bool) {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil, true
	}

	parts := strings.Split(path, "/")
	for i, p := range parts {
		decoded, err := url.PathUnescape(p)
		if err != nil {
			return nil, false
		}
		parts[i] = decoded
	}
	return parts, true
}

func matchSegments(template []Segment, segs []string) (map[string]string, bool) {
	if len(template) != len(segs) {
		return nil, false
	}
	var params map[string]string
	for i, s := range template {
		if s.IsParam() {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[s.Param] = segs[i]
			continue
		}
		if s.Literal != segs[i] {
			return nil, false
		}
	}
	return params, true
}
