package microapi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// shapeMode selects how values are reshaped before they are checked.
type shapeMode struct {
	stripUnknown bool // drop keys an object schema does not declare
	coerce       bool // convert strings to the declared scalar type
}

var (
	requestShape  = shapeMode{stripUnknown: true, coerce: true}
	responseShape = shapeMode{}
)

// shape returns a reshaped copy of v: unknown keys stripped (when asked),
// absent fields defaulted, and scalars coerced. It never mutates v.
func shape(v any, s *Schema, m shapeMode) any {
	if s == nil {
		return v
	}
	if v == nil {
		return cloneValue(s.Default)
	}

	switch {
	case s.Properties != nil || s.Type == "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return v
		}
		return shapeObject(obj, s, m)

	case s.Items != nil || s.Type == "array":
		if str, ok := v.(string); ok && m.coerce {
			v = []any{str}
		}
		arr, ok := v.([]any)
		if !ok {
			return v
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = shape(item, s.Items, m)
		}
		return out

	case m.coerce:
		return coerce(v, s.Type)
	}

	return v
}

func shapeObject(obj map[string]any, s *Schema, m shapeMode) map[string]any {
	out := make(map[string]any, len(obj))
	for key, val := range obj {
		child, known := s.Properties[key]
		if !known {
			if m.stripUnknown && s.Properties != nil {
				continue
			}
			out[key] = val
			continue
		}
		out[key] = shape(val, child, m)
	}

	for key, child := range s.Properties {
		if _, ok := out[key]; ok || child == nil || child.Default == nil {
			continue
		}
		out[key] = cloneValue(child.Default)
	}

	return out
}

// coerce converts string inputs (path, query and header values) to the
// declared scalar type. Integers and numbers are read as plain decimals and
// booleans only as true or false. Values that do not convert are left for
// the checker to reject.
func coerce(v any, typ string) any {
	str, ok := v.(string)
	if !ok {
		return v
	}

	switch typ {
	case "integer":
		if n, err := strconv.ParseInt(str, 10, 64); err == nil {
			return n
		}
	case "number":
		if strings.ContainsAny(str, "xX_") {
			return v
		}
		if f, err := strconv.ParseFloat(str, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
	case "boolean":
		switch str {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return v
}

// cloneValue deep-copies decoded JSON containers so defaults taken from a
// shared schema are never aliased by a request.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// normalize converts an arbitrary handler value into its decoded JSON form
// so it can be shaped and checked.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response body: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return out, nil
}
