package spec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// decode parses YAML (or JSON) into a JSON-compatible tree: map[string]any,
// []any, string, bool, json.Number and nil. CloudFormation short-form tags
// are expanded to their long form.
func decode(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return convertNode(&root, 0)
}

// maxDepth bounds alias expansion.
const maxDepth = 512

func convertNode(n *yaml.Node, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("line %d: document nested too deeply", n.Line)
	}

	var (
		v   any
		err error
	)
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return convertNode(n.Content[0], depth+1)
	case yaml.AliasNode:
		return convertNode(n.Alias, depth+1)
	case yaml.MappingNode:
		v, err = convertMapping(n, depth)
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := convertNode(c, depth+1)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		v = items
	case yaml.ScalarNode:
		v, err = convertScalar(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
	if err != nil {
		return nil, err
	}

	return expandIntrinsic(n, v), nil
}

func convertMapping(n *yaml.Node, depth int) (map[string]any, error) {
	out := make(map[string]any, len(n.Content)/2)
	var merges []map[string]any

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, val := n.Content[i], n.Content[i+1]

		if k.ShortTag() == "!!merge" {
			merged, err := convertNode(val, depth+1)
			if err != nil {
				return nil, err
			}
			switch m := merged.(type) {
			case map[string]any:
				merges = append(merges, m)
			case []any:
				for _, item := range m {
					if mm, ok := item.(map[string]any); ok {
						merges = append(merges, mm)
					}
				}
			}
			continue
		}

		converted, err := convertNode(val, depth+1)
		if err != nil {
			return nil, err
		}
		out[k.Value] = converted
	}

	// Explicit keys win over merged ones
	for _, m := range merges {
		for k, v := range m {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}

	return out, nil
}

func convertScalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int":
		if isJSONNumber(n.Value) {
			return json.Number(n.Value), nil
		}
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatInt(i, 10)), nil
	case "!!float":
		if isJSONNumber(n.Value) {
			return json.Number(n.Value), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return n.Value, nil
		}
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
	default:
		return n.Value, nil
	}
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}

// expandIntrinsic rewrites CloudFormation short-form tags:
//
//	!Ref Foo         -> {"Ref": "Foo"}
//	!GetAtt Foo.Arn  -> {"Fn::GetAtt": ["Foo", "Arn"]}
//	!Sub "x-${Y}"    -> {"Fn::Sub": "x-${Y}"}
func expandIntrinsic(n *yaml.Node, v any) any {
	tag := n.Tag
	if !strings.HasPrefix(tag, "!") || strings.HasPrefix(tag, "!!") {
		return v
	}
	name := strings.TrimPrefix(tag, "!")

	switch name {
	case "Ref", "Condition":
		return map[string]any{name: v}
	case "GetAtt":
		if s, ok := v.(string); ok {
			parts := strings.SplitN(s, ".", 2)
			items := make([]any, len(parts))
			for i, p := range parts {
				items[i] = p
			}
			return map[string]any{"Fn::GetAtt": items}
		}
	}
	return map[string]any{"Fn::" + name: v}
}
