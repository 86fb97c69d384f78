package textai

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Replies are decoded into `any` fields first; these helpers coerce them
// into typed values. The model sometimes quotes numbers or booleans, so
// strings are accepted where they parse cleanly.

// Float returns v as a float64.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns v as a bool.
func Bool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	default:
		return false, false
	}
}

// String returns v as a trimmed string; non-strings yield "".
func String(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// Strings returns the non-empty strings of a JSON array. A bare string
// becomes a one-element slice. The result is never nil.
func Strings(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, el := range t {
			if s := String(el); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Objects returns the object elements of a JSON array.
func Objects(v any) []map[string]any {
	arr, _ := v.([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Clamp bounds f to [lo, hi].
func Clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
