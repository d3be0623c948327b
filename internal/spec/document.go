// Package spec loads OpenAPI/Swagger documents, directly or from AWS
// API-Gateway CloudFormation templates, and normalizes them into Documents.
//
// A Document is the immutable, format-independent view of one API: its base
// path, host, and the ordered set of Operations with their parameter
// contracts. The raw JSON-compatible tree is kept alongside so schema
// references can be resolved when validation rules are compiled.
package spec

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Format identifies the family of an API document.
type Format string

const (
	FormatSwagger2  Format = "swagger-2.0"
	FormatOpenAPI30 Format = "openapi-3.0"
	FormatOpenAPI31 Format = "openapi-3.1"
)

// Location is where a parameter value is read from.
type Location string

const (
	InPath     Location = "path"
	InQuery    Location = "query"
	InHeader   Location = "header"
	InCookie   Location = "cookie"
	InBody     Location = "body"
	InFormData Location = "formData"
)

// Vendor extensions understood by the gateway.
const (
	ExtRouterController = "x-swagger-router-controller"
	ExtPipe             = "x-swagger-pipe"
)

// methods lists the operation keys of a path item in registration order.
var methods = []string{
	http.MethodGet,
	http.MethodPut,
	http.MethodPost,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodHead,
	http.MethodPatch,
	http.MethodTrace,
}

// Document is a parsed API description.
type Document struct {
	Format   Format
	Version  string
	Title    string
	Host     string
	BasePath string
	// Source names where the document came from: a file path, or
	// path#LogicalId for a CloudFormation resource.
	Source string
	// Tree is the raw document with JSON-compatible values.
	Tree  map[string]any
	Paths []*PathItem
}

// PathItem groups the operations declared under one path template.
type PathItem struct {
	Template   string
	Controller string
	Pipe       string
	Parameters []*Parameter
	Operations []*Operation
}

// Operation is one method + path template with its parameter contract.
type Operation struct {
	Method      string
	Path        string
	OperationID string
	Controller  string
	Pipe        string
	Parameters  []*Parameter
	// Responses is the raw responses object, used by mock controllers.
	Responses map[string]any
	// Pointer is the JSON pointer of the operation inside Document.Tree.
	Pointer string
}

// Parameter is one declared input of an operation.
type Parameter struct {
	Name             string
	In               Location
	Type             string
	ItemType         string
	CollectionFormat string
	Required         bool
	Default          any
	HasDefault       bool
	// Schema is the JSON Schema the coerced value must satisfy. Local
	// $refs point into the owning Document.Tree.
	Schema map[string]any
}

// Operations returns every operation of the document in path order.
func (d *Document) Operations() []*Operation {
	var ops []*Operation
	for _, p := range d.Paths {
		ops = append(ops, p.Operations...)
	}
	return ops
}

// String implements fmt.Stringer.
func (o *Operation) String() string {
	if o.OperationID != "" {
		return fmt.Sprintf("%s %s (%s)", o.Method, o.Path, o.OperationID)
	}
	return o.Method + " " + o.Path
}

// parseDocument builds a Document from a decoded OpenAPI tree.
func parseDocument(tree map[string]any, source string) (*Document, error) {
	doc := &Document{Source: source, Tree: tree}

	switch {
	case tree["swagger"] != nil:
		doc.Version = fmt.Sprint(tree["swagger"])
		if doc.Version != "2.0" && doc.Version != "2" {
			return nil, fmt.Errorf("unsupported swagger version %q", doc.Version)
		}
		doc.Format = FormatSwagger2
		doc.Host = str(tree["host"])
		doc.BasePath = str(tree["basePath"])
	case tree["openapi"] != nil:
		doc.Version = fmt.Sprint(tree["openapi"])
		switch {
		case strings.HasPrefix(doc.Version, "3.0"):
			doc.Format = FormatOpenAPI30
		case strings.HasPrefix(doc.Version, "3.1"):
			doc.Format = FormatOpenAPI31
		default:
			return nil, fmt.Errorf("unsupported openapi version %q", doc.Version)
		}
		doc.Host, doc.BasePath = serverLocation(tree)
	default:
		return nil, fmt.Errorf("missing swagger or openapi version field")
	}

	doc.BasePath = normalizeBasePath(doc.BasePath)
	if info, ok := tree["info"].(map[string]any); ok {
		doc.Title = str(info["title"])
	}

	paths, _ := tree["paths"].(map[string]any)
	templates := make([]string, 0, len(paths))
	for t := range paths {
		templates = append(templates, t)
	}
	sort.Strings(templates)

	for _, template := range templates {
		raw, ok := paths[template].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %s: expected an object", template)
		}
		item, err := doc.parsePathItem(template, raw)
		if err != nil {
			return nil, fmt.Errorf("path %s: %w", template, err)
		}
		doc.Paths = append(doc.Paths, item)
	}

	return doc, nil
}

func (d *Document) parsePathItem(template string, raw map[string]any) (*PathItem, error) {
	if ref := str(raw["$ref"]); ref != "" {
		resolved, ok := resolveRef(d.Tree, ref).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unresolvable path item $ref %q", ref)
		}
		raw = resolved
	}

	item := &PathItem{
		Template:   template,
		Controller: str(raw[ExtRouterController]),
		Pipe:       str(raw[ExtPipe]),
	}

	shared, err := d.parseParameters(raw["parameters"], "/paths/"+escapePointer(template)+"/parameters")
	if err != nil {
		return nil, err
	}
	item.Parameters = shared

	for _, method := range methods {
		rawOp, ok := raw[strings.ToLower(method)].(map[string]any)
		if !ok {
			continue
		}
		pointer := "/paths/" + escapePointer(template) + "/" + strings.ToLower(method)

		op := &Operation{
			Method:      method,
			Path:        template,
			OperationID: str(rawOp["operationId"]),
			Controller:  item.Controller,
			Pipe:        item.Pipe,
			Pointer:     pointer,
		}
		if c := str(rawOp[ExtRouterController]); c != "" {
			op.Controller = c
		}
		if p := str(rawOp[ExtPipe]); p != "" {
			op.Pipe = p
		}
		op.Responses, _ = rawOp["responses"].(map[string]any)

		own, err := d.parseParameters(rawOp["parameters"], pointer+"/parameters")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		op.Parameters = mergeParameters(shared, own)

		if body, ok := rawOp["requestBody"]; ok && d.Format != FormatSwagger2 {
			p, err := d.parseRequestBody(body, rawOp)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", method, err)
			}
			if p != nil {
				op.Parameters = append(op.Parameters, p)
			}
		}

		item.Operations = append(item.Operations, op)
	}

	return item, nil
}

// mergeParameters returns shared overlaid by own, keyed by (name, in).
func mergeParameters(shared, own []*Parameter) []*Parameter {
	out := make([]*Parameter, 0, len(shared)+len(own))
	overridden := make(map[string]bool, len(own))
	for _, p := range own {
		overridden[string(p.In)+":"+p.Name] = true
	}
	for _, p := range shared {
		if !overridden[string(p.In)+":"+p.Name] {
			out = append(out, p)
		}
	}
	return append(out, own...)
}

func (d *Document) parseParameters(raw any, pointer string) ([]*Parameter, error) {
	list, _ := raw.([]any)
	params := make([]*Parameter, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parameter %d: expected an object", i)
		}
		if ref := str(m["$ref"]); ref != "" {
			if m, ok = resolveRef(d.Tree, ref).(map[string]any); !ok {
				return nil, fmt.Errorf("parameter %d: unresolvable $ref %q", i, ref)
			}
		}

		p, err := d.parseParameter(m)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", str(m["name"]), err)
		}
		params = append(params, p)
	}
	return params, nil
}

func (d *Document) parseParameter(m map[string]any) (*Parameter, error) {
	p := &Parameter{
		Name:     str(m["name"]),
		In:       Location(str(m["in"])),
		Required: m["required"] == true,
	}
	if p.Name == "" {
		return nil, fmt.Errorf("missing name")
	}

	switch p.In {
	case InPath:
		// Path parameters are always required
		p.Required = true
	case InQuery, InHeader, InCookie:
	case InBody, InFormData:
		if d.Format != FormatSwagger2 {
			return nil, fmt.Errorf("location %q is only valid in swagger 2.0", p.In)
		}
	default:
		return nil, fmt.Errorf("unknown location %q", p.In)
	}

	var schema map[string]any
	switch {
	case p.In == InBody:
		schema, _ = m["schema"].(map[string]any)
		if schema == nil {
			schema = map[string]any{}
		}
	case d.Format == FormatSwagger2:
		schema = swagger2ParamSchema(m)
		p.CollectionFormat = str(m["collectionFormat"])
	default:
		schema, _ = m["schema"].(map[string]any)
		if schema == nil {
			schema = map[string]any{}
		}
		p.CollectionFormat = openAPI3Collection(p.In, str(m["style"]), m["explode"])
	}
	p.Schema = schema

	resolved := d.ResolveSchema(schema)
	p.Type = str(resolved["type"])
	if p.Type == "" && p.In == InBody {
		p.Type = "object"
	}
	if items, ok := resolved["items"].(map[string]any); ok {
		p.ItemType = str(d.ResolveSchema(items)["type"])
	}
	if p.Type == "array" && p.CollectionFormat == "" {
		p.CollectionFormat = "csv"
	}

	if def, ok := resolved["default"]; ok {
		p.Default, p.HasDefault = def, true
	} else if def, ok := m["default"]; ok {
		p.Default, p.HasDefault = def, true
	}

	return p, nil
}

// parseRequestBody turns an OpenAPI 3 requestBody into a body Parameter.
func (d *Document) parseRequestBody(raw any, op map[string]any) (*Parameter, error) {
	body, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("requestBody: expected an object")
	}
	if ref := str(body["$ref"]); ref != "" {
		if body, ok = resolveRef(d.Tree, ref).(map[string]any); !ok {
			return nil, fmt.Errorf("requestBody: unresolvable $ref %q", ref)
		}
	}

	content, _ := body["content"].(map[string]any)
	if len(content) == 0 {
		return nil, nil
	}

	name := "body"
	for _, ext := range []string{"x-codegen-request-body-name", "x-name"} {
		if n := str(op[ext]); n != "" {
			name = n
			break
		}
	}

	media := pickJSONMedia(content)
	schema, _ := media["schema"].(map[string]any)
	if schema == nil {
		schema = map[string]any{}
	}
	p := &Parameter{
		Name:     name,
		In:       InBody,
		Required: body["required"] == true,
		Schema:   schema,
	}
	p.Type = str(d.ResolveSchema(schema)["type"])
	if p.Type == "" {
		p.Type = "object"
	}
	return p, nil
}

func pickJSONMedia(content map[string]any) map[string]any {
	if m, ok := content["application/json"].(map[string]any); ok {
		return m
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(k, "json") {
			m, _ := content[k].(map[string]any)
			return m
		}
	}
	m, _ := content[keys[0]].(map[string]any)
	return m
}

// schemaKeywords are the validation keywords a swagger 2.0 non-body
// parameter shares with JSON Schema.
var schemaKeywords = []string{
	"type", "format", "items", "enum", "default",
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "multipleOf",
	"minLength", "maxLength", "pattern",
	"minItems", "maxItems", "uniqueItems",
}

func swagger2ParamSchema(m map[string]any) map[string]any {
	schema := make(map[string]any)
	for _, k := range schemaKeywords {
		if v, ok := m[k]; ok {
			schema[k] = v
		}
	}
	if schema["type"] == "file" {
		delete(schema, "type")
	}
	return schema
}

// openAPI3Collection maps style/explode to a swagger 2.0 collection format.
func openAPI3Collection(in Location, style string, explode any) string {
	if style == "" {
		style = "simple"
		if in == InQuery || in == InCookie {
			style = "form"
		}
	}
	exploded := style == "form"
	if b, ok := explode.(bool); ok {
		exploded = b
	}

	switch style {
	case "form":
		if exploded {
			return "multi"
		}
		return "csv"
	case "spaceDelimited":
		return "ssv"
	case "pipeDelimited":
		return "pipes"
	default:
		return "csv"
	}
}

// ResolveSchema follows a chain of local $refs inside the document.
func (d *Document) ResolveSchema(schema map[string]any) map[string]any {
	for i := 0; i < 32; i++ {
		ref := str(schema["$ref"])
		if ref == "" {
			return schema
		}
		next, ok := resolveRef(d.Tree, ref).(map[string]any)
		if !ok {
			return schema
		}
		schema = next
	}
	return schema
}

// resolveRef resolves a local JSON reference ("#/a/b") against tree.
func resolveRef(tree map[string]any, ref string) any {
	if !strings.HasPrefix(ref, "#") {
		return nil
	}
	ptr := strings.TrimPrefix(ref, "#")
	if ptr == "" {
		return tree
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil
	}

	var cur any = tree
	for _, token := range strings.Split(ptr[1:], "/") {
		if unescaped, err := url.PathUnescape(token); err == nil {
			token = unescaped
		}
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")

		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[token]; !ok {
			return nil
		}
	}
	return cur
}

func escapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

// serverLocation extracts host and base path from the first OpenAPI 3 server.
func serverLocation(tree map[string]any) (host, basePath string) {
	servers, _ := tree["servers"].([]any)
	if len(servers) == 0 {
		return "", ""
	}
	server, _ := servers[0].(map[string]any)
	raw := str(server["url"])

	vars, _ := server["variables"].(map[string]any)
	for name, v := range vars {
		if vm, ok := v.(map[string]any); ok {
			raw = strings.ReplaceAll(raw, "{"+name+"}", fmt.Sprint(vm["default"]))
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	return u.Host, u.Path
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
