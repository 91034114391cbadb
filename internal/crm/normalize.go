package crm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CanonicalStages is the preferred display order of pipeline stages.
var CanonicalStages = []string{
	"Introduction",
	"Discovery",
	"Specification",
	"Estimate/Quote",
	"Finalize/Negotiate",
	"Closed Won",
	"Closed Lost",
}

var monthNames = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

var currencyStripper = strings.NewReplacer("$", "", ",", "", " ", "", "\t", "", "\u00a0", "")

// ParseNumber strips currency formatting and parses raw as a finite float.
func ParseNumber(raw string) (float64, bool) {
	s := currencyStripper.Replace(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseAmount is the load-time amount normalization: failures floor to 0.
func ParseAmount(raw string) float64 {
	v, ok := ParseNumber(raw)
	if !ok {
		return 0
	}
	return v
}

// ParseCloseDate parses M/D/Y where Y is two digits (offset from 2000) or four.
func ParseCloseDate(raw string) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}
	month, day, year := nums[0], nums[1], nums[2]
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 0 {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// MonthKey identifies a calendar month for chart bucketing.
type MonthKey struct {
	Label   string
	SortKey int
}

func monthKeyOfTime(t time.Time) MonthKey {
	return MonthKey{
		Label:   fmt.Sprintf("%s '%02d", monthNames[t.Month()-1], t.Year()%100),
		SortKey: t.Year()*100 + int(t.Month()),
	}
}

// MonthKey returns the bucket of the opportunity's close date, e.g. "Jan '24".
func (o Opportunity) MonthKey() (MonthKey, bool) {
	if !o.closeOK {
		return MonthKey{}, false
	}
	return monthKeyOfTime(o.closeAt), true
}

// OrderStages returns the distinct non-empty stages from seen, canonical stages
// first and the rest in first-seen order.
func OrderStages(seen []string) []string {
	present := make(map[string]bool, len(seen))
	for _, s := range seen {
		if s != "" {
			present[s] = true
		}
	}

	out := make([]string, 0, len(present))
	added := make(map[string]bool, len(present))
	for _, s := range CanonicalStages {
		if present[s] {
			out = append(out, s)
			added[s] = true
		}
	}
	for _, s := range seen {
		if s == "" || added[s] {
			continue
		}
		out = append(out, s)
		added[s] = true
	}
	return out
}
