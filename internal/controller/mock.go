package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

// maxSampleDepth bounds sample generation for recursive schemas.
const maxSampleDepth = 8

// Mock returns a controller answering op from its documented success
// response: the JSON example when one is declared, otherwise a sample value
// generated from the response schema.
func Mock(doc *spec.Document, op *spec.Operation) Func {
	status, resp := successResponse(op.Responses)
	body := mockBody(doc, resp)

	return func(ctx context.Context, params Params) (any, error) {
		if body == nil {
			return &Response{Status: status}, nil
		}
		return &Response{Status: status, Body: body}, nil
	}
}

// successResponse picks the lowest declared 2xx response, falling back to
// "default" with 200.
func successResponse(responses map[string]any) (int, map[string]any) {
	var codes []int
	for code := range responses {
		if n, err := strconv.Atoi(code); err == nil && n >= 200 && n < 300 {
			codes = append(codes, n)
		}
	}
	if len(codes) > 0 {
		sort.Ints(codes)
		resp, _ := responses[strconv.Itoa(codes[0])].(map[string]any)
		return codes[0], resp
	}
	if resp, ok := responses["2XX"].(map[string]any); ok {
		return http.StatusOK, resp
	}
	if resp, ok := responses["default"].(map[string]any); ok {
		return http.StatusOK, resp
	}
	return http.StatusOK, nil
}

func mockBody(doc *spec.Document, resp map[string]any) any {
	if resp == nil {
		return nil
	}
	// Response objects may be shared through $ref like schemas
	resp = doc.ResolveSchema(resp)

	// swagger 2.0
	if examples, ok := resp["examples"].(map[string]any); ok {
		if ex, ok := examples["application/json"]; ok {
			return ex
		}
	}
	if schema, ok := resp["schema"].(map[string]any); ok {
		return sample(doc, schema, 0)
	}

	// openapi 3
	content, _ := resp["content"].(map[string]any)
	media := jsonMedia(content)
	if media == nil {
		return nil
	}
	if ex, ok := media["example"]; ok {
		return ex
	}
	if examples, ok := media["examples"].(map[string]any); ok {
		names := make([]string, 0, len(examples))
		for n := range examples {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if ex, ok := examples[n].(map[string]any); ok {
				if v, ok := ex["value"]; ok {
					return v
				}
			}
		}
	}
	if schema, ok := media["schema"].(map[string]any); ok {
		return sample(doc, schema, 0)
	}
	return nil
}

func jsonMedia(content map[string]any) map[string]any {
	if m, ok := content["application/json"].(map[string]any); ok {
		return m
	}
	for k, v := range content {
		if strings.Contains(k, "json") {
			m, _ := v.(map[string]any)
			return m
		}
	}
	return nil
}

// sample generates a value satisfying the common constraints of schema.
func sample(doc *spec.Document, schema map[string]any, depth int) any {
	schema = doc.ResolveSchema(schema)
	if depth > maxSampleDepth {
		return nil
	}

	for _, k := range []string{"example", "default"} {
		if v, ok := schema[k]; ok {
			return v
		}
	}
	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		return enum[0]
	}
	for _, k := range []string{"allOf", "oneOf", "anyOf"} {
		subs, ok := schema[k].([]any)
		if !ok || len(subs) == 0 {
			continue
		}
		if k != "allOf" {
			sub, _ := subs[0].(map[string]any)
			return sample(doc, sub, depth+1)
		}
		merged := make(map[string]any)
		for _, s := range subs {
			sub, _ := s.(map[string]any)
			if m, ok := sample(doc, sub, depth+1).(map[string]any); ok {
				for key, v := range m {
					merged[key] = v
				}
			}
		}
		return merged
	}

	typ, _ := schema["type"].(string)
	if typ == "" {
		if _, ok := schema["properties"]; ok {
			typ = "object"
		}
	}

	switch typ {
	case "object":
		out := make(map[string]any)
		props, _ := schema["properties"].(map[string]any)
		for name, p := range props {
			if ps, ok := p.(map[string]any); ok {
				out[name] = sample(doc, ps, depth+1)
			}
		}
		return out
	case "array":
		items, _ := schema["items"].(map[string]any)
		if items == nil {
			return []any{}
		}
		return []any{sample(doc, items, depth+1)}
	case "integer":
		if v, ok := schema["minimum"].(json.Number); ok {
			return v
		}
		return json.Number("0")
	case "number":
		if v, ok := schema["minimum"].(json.Number); ok {
			return v
		}
		return json.Number("0")
	case "boolean":
		return false
	case "string":
		switch schema["format"] {
		case "date-time":
			return "1970-01-01T00:00:00Z"
		case "date":
			return "1970-01-01"
		case "uuid":
			return "00000000-0000-0000-0000-000000000000"
		}
		return "string"
	default:
		return nil
	}
}
