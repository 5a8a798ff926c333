package tools

import (
	"bytes"
	"encoding/json"
	"math"
)

// Arguments is a leniently decoded argument bag. Missing or wrong-typed fields
// read as zero values instead of failing the call.
type Arguments map[string]any

// ParseArguments decodes raw into an argument bag. Anything that is not a JSON
// object yields an empty bag.
func ParseArguments(raw json.RawMessage) Arguments {
	args := Arguments{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return Arguments{}
	}
	return args
}

// String returns the string field key, or "" when missing or not a string.
func (a Arguments) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Strings returns the string elements of the array field key. Non-string
// elements are skipped; a missing or non-array field yields an empty slice.
func (a Arguments) Strings(key string) []string {
	items, _ := a[key].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Int returns the integral number field key, or def when missing, not a
// number, or not a whole number.
func (a Arguments) Int(key string, def int) int {
	f, ok := a[key].(float64)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return def
	}
	return int(f)
}
