package payment

import (
	"encoding/json"
	"strconv"
	"strings"
)

// lookup walks a dotted key path through decoded JSON. Numeric segments index
// into arrays, so "paymentDetails.0.transactionId" reads the first element.
func lookup(root map[string]any, path string) (any, bool) {
	var cur any = root
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// firstString returns the first path holding a non-empty string or number.
func firstString(root map[string]any, paths ...string) string {
	for _, path := range paths {
		v, ok := lookup(root, path)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case json.Number:
			return s.String()
		}
	}
	return ""
}

// firstNumber returns the first path holding a number.
func firstNumber(root map[string]any, paths ...string) (float64, bool) {
	for _, path := range paths {
		v, ok := lookup(root, path)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func stringOrDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
