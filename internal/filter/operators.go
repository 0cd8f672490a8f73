package filter

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/notifyhub/step-engine/internal/domain"
)

// lookupPath walks a dotted path ("data.plan.tier") through nested maps.
// The second return value is false when any segment is missing or nil.
func lookupPath(doc map[string]any, path string) (any, bool) {
	if doc == nil || path == "" {
		return nil, false
	}
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// compare applies op to a resolved operand and the condition's raw value.
// Anything that cannot be compared evaluates to false.
func compare(op domain.Operator, actual any, expected string) bool {
	switch op {
	case domain.OpIsDefined:
		return true
	case domain.OpEqual, "":
		return equals(actual, expected)
	case domain.OpNotEqual:
		return !equals(actual, expected)
	case domain.OpLarger, domain.OpSmaller, domain.OpLargerEqual, domain.OpSmallerEqual:
		a, okA := toNumber(actual)
		e, okE := parseNumber(expected)
		if !okA || !okE {
			return false
		}
		switch op {
		case domain.OpLarger:
			return a > e
		case domain.OpSmaller:
			return a < e
		case domain.OpLargerEqual:
			return a >= e
		default:
			return a <= e
		}
	case domain.OpIn:
		return inList(actual, expected)
	case domain.OpNotIn:
		return !inList(actual, expected)
	case domain.OpBetween:
		return between(actual, expected)
	case domain.OpNotBetween:
		if _, ok := toNumber(actual); !ok {
			return false
		}
		return !between(actual, expected)
	case domain.OpLike:
		return strings.Contains(stringify(actual), expected)
	case domain.OpNotLike:
		return !strings.Contains(stringify(actual), expected)
	}
	return false
}

func equals(actual any, expected string) bool {
	if a, ok := toNumber(actual); ok {
		if e, ok := parseNumber(expected); ok {
			return a == e
		}
	}
	return stringify(actual) == expected
}

func inList(actual any, expected string) bool {
	members := splitList(expected)
	if arr, ok := actual.([]any); ok {
		for _, v := range arr {
			if contains(members, stringify(v)) {
				return true
			}
		}
		return false
	}
	return contains(members, stringify(actual))
}

func between(actual any, expected string) bool {
	bounds := splitList(expected)
	if len(bounds) != 2 {
		return false
	}
	a, ok := toNumber(actual)
	if !ok {
		return false
	}
	lo, okLo := parseNumber(bounds[0])
	hi, okHi := parseNumber(bounds[1])
	if !okLo || !okHi {
		return false
	}
	return a >= lo && a <= hi
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func toNumber(v any) (float64, bool) {
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseNumber(n)
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
