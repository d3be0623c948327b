// Package params extracts, coerces and validates operation parameters.
//
// Validation rules are compiled once per document with
// santhosh-tekuri/jsonschema; a Binder is then shared read-only by every
// request for its operation.
package params

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tjfontaine/openapi-gateway/internal/domain"
	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

var printer = message.NewPrinter(language.English)

// Compiler compiles parameter schemas for the operations of one document.
type Compiler struct {
	compiler *jsonschema.Compiler
	docURL   string
	next     int
}

// NewCompiler prepares a compiler whose schemas can reference the document's
// definitions and components.
func NewCompiler(doc *spec.Document) (*Compiler, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	switch doc.Format {
	case spec.FormatOpenAPI31:
		c.DefaultDraft(jsonschema.Draft2020)
	default:
		c.DefaultDraft(jsonschema.Draft4)
	}

	docURL := "mem://api/document.json"
	root := map[string]any{}
	if defs, ok := doc.Tree["definitions"]; ok {
		root["definitions"] = defs
	}
	if components, ok := doc.Tree["components"].(map[string]any); ok {
		if schemas, ok := components["schemas"]; ok {
			root["components"] = map[string]any{"schemas": schemas}
		}
	}
	if err := c.AddResource(docURL, root); err != nil {
		return nil, domain.ErrInvalidSpec(doc.Source, "add schema definitions").WithCause(err)
	}

	return &Compiler{compiler: c, docURL: docURL}, nil
}

// Binder returns the binder for op, compiling every parameter schema.
func (c *Compiler) Binder(op *spec.Operation) (*Binder, error) {
	b := &Binder{params: make([]boundParam, 0, len(op.Parameters))}
	for _, p := range op.Parameters {
		schema, err := c.compile(p.Schema)
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %q: %w", op, p.Name, err)
		}
		b.params = append(b.params, boundParam{Parameter: p, schema: schema})
	}
	return b, nil
}

func (c *Compiler) compile(schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	c.next++
	loc := fmt.Sprintf("mem://api/params/%d.json", c.next)
	if err := c.compiler.AddResource(loc, rebaseRefs(schema, c.docURL)); err != nil {
		return nil, err
	}
	return c.compiler.Compile(loc)
}

// rebaseRefs copies v, pointing local $refs at the document resource.
func rebaseRefs(v any, docURL string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok && k == "$ref" && strings.HasPrefix(s, "#") {
				out[k] = docURL + s
				continue
			}
			out[k] = rebaseRefs(val, docURL)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = rebaseRefs(val, docURL)
		}
		return out
	default:
		return v
	}
}

// Input carries the raw request values a Binder reads from.
type Input struct {
	PathParams map[string]string
	Query      url.Values
	Header     http.Header
	Cookies    []*http.Cookie
	Form       url.Values
	Body       any
	HasBody    bool
}

// Binder validates and coerces the parameters of one operation.
type Binder struct {
	params []boundParam
}

type boundParam struct {
	*spec.Parameter
	schema *jsonschema.Schema
}

// Bind returns the validated parameter mapping: one entry for every declared
// parameter that was supplied or has a default, and nothing else. All failing
// parameters are reported in a single validation error.
func (b *Binder) Bind(in Input) (map[string]any, error) {
	values := make(map[string]any, len(b.params))
	var verr *domain.Error

	fail := func(p boundParam, msg string) {
		if verr == nil {
			verr = domain.ErrValidation("")
		}
		verr.WithField(p.Name, string(p.In), msg)
	}

	for _, p := range b.params {
		raw, present := p.lookup(in)

		var (
			value any
			err   error
		)
		switch {
		case present:
			value, err = p.coerce(raw)
			if err != nil {
				fail(p, err.Error())
				continue
			}
		case p.HasDefault:
			value = p.coerceDefault(p.Default)
		case p.Required:
			fail(p, "required parameter is missing")
			continue
		default:
			continue
		}

		if p.schema != nil {
			if err := p.schema.Validate(instance(value)); err != nil {
				fail(p, schemaMessage(err))
				continue
			}
		}
		values[p.Name] = value
	}

	if verr != nil {
		return nil, verr
	}
	return values, nil
}

// lookup returns the raw value of p: a []string for string-typed locations,
// the decoded body for body parameters.
func (p boundParam) lookup(in Input) (any, bool) {
	var vals []string
	switch p.In {
	case spec.InBody:
		return in.Body, in.HasBody
	case spec.InPath:
		v, ok := in.PathParams[p.Name]
		if !ok {
			return nil, false
		}
		vals = []string{v}
	case spec.InQuery:
		vals = in.Query[p.Name]
	case spec.InHeader:
		vals = in.Header.Values(p.Name)
	case spec.InCookie:
		for _, c := range in.Cookies {
			if c.Name == p.Name {
				vals = append(vals, c.Value)
			}
		}
	case spec.InFormData:
		vals = in.Form[p.Name]
	}

	if len(vals) == 0 {
		return nil, false
	}
	// An empty value only counts for strings
	if len(vals) == 1 && vals[0] == "" && p.Type != "string" && p.Type != "" {
		return nil, false
	}
	return vals, true
}

func (p boundParam) coerce(raw any) (any, error) {
	vals, ok := raw.([]string)
	if !ok {
		return raw, nil
	}

	if p.Type == "array" {
		items := splitCollection(vals, p.CollectionFormat)
		out := make([]any, len(items))
		for i, item := range items {
			v, err := coerceScalar(item, p.ItemType)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}

	return coerceScalar(vals[0], p.Type)
}

func (p boundParam) coerceDefault(def any) any {
	switch d := def.(type) {
	case json.Number:
		if v, err := coerceScalar(d.String(), p.Type); err == nil {
			return v
		}
	case []any:
		out := make([]any, len(d))
		for i, item := range d {
			out[i] = item
			if n, ok := item.(json.Number); ok {
				if v, err := coerceScalar(n.String(), p.ItemType); err == nil {
					out[i] = v
				}
			}
		}
		return out
	case string:
		if p.Type != "string" && p.Type != "" && p.Type != "array" {
			if v, err := coerceScalar(d, p.Type); err == nil {
				return v
			}
		}
	}
	return def
}

func splitCollection(vals []string, format string) []string {
	var sep string
	switch format {
	case "multi":
		return vals
	case "ssv":
		sep = " "
	case "tsv":
		sep = "\t"
	case "pipes":
		sep = "|"
	default:
		sep = ","
	}
	if vals[0] == "" {
		return nil
	}
	return strings.Split(vals[0], sep)
}

func coerceScalar(s, typ string) (any, error) {
	switch typ {
	case "integer":
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", s)
		}
		return v, nil
	case "number":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", s)
		}
		return v, nil
	case "boolean":
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", s)
		}
		return v, nil
	case "object":
		var v any
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("expected JSON object, got %q", s)
		}
		return v, nil
	default:
		return s, nil
	}
}

// instance converts coerced Go values to the JSON value model the schema
// validator works on.
func instance(v any) any {
	switch t := v.(type) {
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case float64:
		return json.Number(strconv.FormatFloat(t, 'g', -1, 64))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = instance(item)
		}
		return out
	default:
		return v
	}
}

// schemaMessage flattens a schema validation error into one line, naming
// the location of each leaf failure inside the value.
func schemaMessage(err error) string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			msg := e.ErrorKind.LocalizedString(printer)
			if len(e.InstanceLocation) > 0 {
				msg = "at /" + strings.Join(e.InstanceLocation, "/") + ": " + msg
			}
			msgs = append(msgs, msg)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)

	return strings.Join(msgs, "; ")
}
