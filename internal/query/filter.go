package query

import (
	"strings"

	"github.com/crm-insights/server/internal/crm"
)

var dateFields = map[string]bool{
	"closeDate":  true,
	"Close Date": true,
}

func isDateField(field string) bool {
	return dateFields[field]
}

// matches evaluates one filter. Numeric and date fields compare parsed values
// for eq/neq/gte/lte; an unparseable comparison value never matches. Substring
// operators on those fields fall back to text matching.
func matches(r row, f Filter) bool {
	switch {
	case crm.IsAmountField(f.Field):
		want, ok := crm.ParseNumber(f.Value)
		if !ok {
			return false
		}
		got, ok := r.number(f.Field)
		if !ok {
			got = 0
		}
		if isOrdered(f.Op) {
			return compareOrdered(got, want, f.Op)
		}
	case isDateField(f.Field):
		want, ok := crm.ParseCloseDate(f.Value)
		if !ok {
			return false
		}
		got, ok := r.date(f.Field)
		if !ok {
			return false
		}
		if isOrdered(f.Op) {
			return compareOrdered(got.Unix(), want.Unix(), f.Op)
		}
	}
	return matchString(r.text(f.Field), f)
}

func isOrdered(op Operator) bool {
	return op == Eq || op == Neq || op == Gte || op == Lte
}

func compareOrdered[T int64 | float64](got, want T, op Operator) bool {
	switch op {
	case Eq:
		return got == want
	case Neq:
		return got != want
	case Gte:
		return got >= want
	case Lte:
		return got <= want
	}
	return false
}

func matchString(raw string, f Filter) bool {
	got := strings.ToLower(raw)
	want := strings.ToLower(f.Value)
	switch f.Op {
	case Eq:
		return got == want
	case Neq:
		return got != want
	case Contains:
		return strings.Contains(got, want)
	case NotContains:
		return !strings.Contains(got, want)
	case Gte:
		return got >= want
	case Lte:
		return got <= want
	}
	return false
}

// applyFilters returns the rows passing every filter, in input order.
func applyFilters(rows []row, filters []Filter) []row {
	if len(filters) == 0 {
		return rows
	}
	out := make([]row, 0, len(rows))
next:
	for _, r := range rows {
		for _, f := range filters {
			if !matches(r, f) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}
