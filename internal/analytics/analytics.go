package analytics

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/crm-insights/server/internal/crm"
)

// StageRevenue is one bar of the revenue-by-stage chart.
type StageRevenue struct {
	Stage   string  `json:"stage" yaml:"stage"`
	Revenue float64 `json:"revenue" yaml:"revenue"`
}

// MonthPoint is one point of the cumulative revenue line.
type MonthPoint struct {
	Month      string  `json:"month" yaml:"month"`
	SortKey    int     `json:"sortKey" yaml:"sortKey"`
	Amount     float64 `json:"amount" yaml:"amount"`
	Cumulative float64 `json:"cumulative" yaml:"cumulative"`
}

// StatusCount is one slice of the lead status chart.
type StatusCount struct {
	Status string `json:"status" yaml:"status"`
	Count  int    `json:"count" yaml:"count"`
}

// UnknownStatus labels leads without a status.
const UnknownStatus = "Unknown"

// Stages returns the stage filter options present in opps.
func Stages(opps []crm.Opportunity) []string {
	seen := make([]string, 0, len(opps))
	for _, o := range opps {
		seen = append(seen, o.Stage)
	}
	return crm.OrderStages(seen)
}

// RevenueByStage sums amounts per stage, rounded to whole units, in canonical
// stage order followed by other stages as first seen.
func RevenueByStage(opps []crm.Opportunity) []StageRevenue {
	totals := make(map[string]float64)
	seen := make([]string, 0, len(opps))
	for _, o := range opps {
		if _, ok := totals[o.Stage]; !ok {
			seen = append(seen, o.Stage)
		}
		totals[o.Stage] += o.Amount
	}

	order := crm.OrderStages(seen)
	// an empty stage still carries revenue; keep it last
	if _, ok := totals[""]; ok {
		order = append(order, "")
	}

	out := make([]StageRevenue, 0, len(order))
	for _, s := range order {
		out = append(out, StageRevenue{Stage: s, Revenue: math.Round(totals[s])})
	}
	return out
}

// CumulativeByMonth buckets opportunities by close month and returns a running
// total in chronological order. Opportunities without a valid close date are skipped.
func CumulativeByMonth(opps []crm.Opportunity) []MonthPoint {
	byKey := make(map[int]*MonthPoint)
	for _, o := range opps {
		k, ok := o.MonthKey()
		if !ok {
			continue
		}
		p, exists := byKey[k.SortKey]
		if !exists {
			p = &MonthPoint{Month: k.Label, SortKey: k.SortKey}
			byKey[k.SortKey] = p
		}
		p.Amount += o.Amount
	}

	out := make([]MonthPoint, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortKey < out[j].SortKey })

	var running float64
	for i := range out {
		running += out[i].Amount
		out[i].Cumulative = running
	}
	return out
}

// NormalizeStatus capitalizes the first letter and lower-cases the rest.
func NormalizeStatus(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return UnknownStatus
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// LeadStatusDistribution counts leads per normalized "Lead Status", in first-seen order.
func LeadStatusDistribution(leads []crm.Record) []StatusCount {
	counts := make(map[string]int)
	var order []string
	for _, l := range leads {
		s := NormalizeStatus(l.Get("Lead Status"))
		if _, ok := counts[s]; !ok {
			order = append(order, s)
		}
		counts[s]++
	}

	out := make([]StatusCount, 0, len(order))
	for _, s := range order {
		out = append(out, StatusCount{Status: s, Count: counts[s]})
	}
	return out
}
