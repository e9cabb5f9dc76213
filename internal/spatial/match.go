package spatial

import (
	"encoding/json"
	"reflect"

	"github.com/paulmach/orb/geojson"
)

// matches reports whether props holds every key of want with an equal
// value. Numbers compare by value whatever their Go type.
func matches(props geojson.Properties, want map[string]any) bool {
	for k, w := range want {
		v, ok := props[k]
		if !ok || !equal(v, w) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
