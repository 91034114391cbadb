package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/crm-insights/server/internal/query"
)

// SanitizeArguments repairs common model mistakes in tool arguments before
// execution: stray whitespace, numbers sent as strings and the reverse, and
// out-of-range list limits. It never fails; input it cannot decode is passed
// through untouched and rejected by the tool itself.
func SanitizeArguments(_ context.Context, name, arguments string) (string, error) {
	if name != ToolQueryCRM {
		return arguments, nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments, nil
	}

	for _, k := range []string{"entity", "operation", "field", "group_by"} {
		if v, ok := m[k]; ok {
			if s, ok := asString(v); ok {
				m[k] = s
			} else {
				delete(m, k)
			}
		}
	}

	if v, ok := m["percentile_value"]; ok {
		if f, ok := asNumber(v); ok {
			m["percentile_value"] = f
		} else {
			delete(m, "percentile_value")
		}
	}

	if v, ok := m["limit"]; ok {
		if f, ok := asNumber(v); ok {
			m["limit"] = clampInt(int(f), 0, query.MaxListLimit)
		} else {
			delete(m, "limit")
		}
	}

	if v, ok := m["filters"]; ok {
		m["filters"] = sanitizeFilters(v)
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}

// sanitizeFilters stringifies the values of object entries. Anything else is
// left as sent so decoding rejects the query instead of running it unfiltered.
func sanitizeFilters(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		f, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		for _, k := range []string{"field", "op", "value"} {
			if s, ok := asString(f[k]); ok {
				f[k] = s
			} else {
				f[k] = ""
			}
		}
		out = append(out, f)
	}
	return out
}

func asString(v any) (string, bool) {
	switch vv := v.(type) {
	case string:
		return strings.TrimSpace(vv), true
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(vv), true
	case nil:
		return "", false
	default:
		return strings.TrimSpace(fmt.Sprint(vv)), true
	}
}

func asNumber(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, !math.IsNaN(vv) && !math.IsInf(vv, 0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
