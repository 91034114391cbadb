package query

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/crm-insights/server/internal/crm"
)

// Engine evaluates queries against one immutable dataset snapshot.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	data *crm.Dataset
}

// NewEngine binds an engine to ds.
func NewEngine(ds *crm.Dataset) *Engine {
	return &Engine{data: ds}
}

// Execute runs q. Invalid requests come back as ErrorResult rather than a Go
// error; unparseable values are dropped from samples instead of failing.
func (e *Engine) Execute(q Query) Result {
	rows, ok := rowsOf(e.data, q.Entity)
	if !ok {
		return ErrorResult{
			Kind:    ErrInvalidEntity,
			Message: fmt.Sprintf("Unknown entity: %s", q.Entity),
		}
	}

	filtered := applyFilters(rows, q.Filters)

	switch q.Operation {
	case OpCount:
		return CountResult{Operation: OpCount, Result: len(filtered)}

	case OpSum, OpAvg, OpMin, OpMax:
		if q.Field == "" {
			return missing("'field' is required for operation '%s'", q.Operation)
		}
		return aggregate(q.Operation, q.Field, numericSample(filtered, q.Field))

	case OpPercentile:
		if q.Field == "" {
			return missing("'field' is required for percentile")
		}
		p := q.PercentileValue
		if p == nil {
			return missing("'percentile_value' must be between 0 and 100")
		}
		if math.IsNaN(*p) || *p < 0 || *p > 100 {
			return ErrorResult{Kind: ErrInvalidParameter, Message: "'percentile_value' must be between 0 and 100"}
		}
		return percentile(q.Field, *p, numericSample(filtered, q.Field))

	case OpDistribution:
		if q.GroupBy == "" {
			return missing("'group_by' is required for distribution")
		}
		return distribution(filtered, q.GroupBy)

	case OpList:
		limit := DefaultListLimit
		if q.Limit != nil {
			limit = *q.Limit
		}
		limit = min(max(limit, 0), MaxListLimit, len(filtered))
		out := make([]any, limit)
		for i := range out {
			out[i] = filtered[i].value()
		}
		return ListResult{Operation: OpList, Result: out, TotalMatched: len(filtered)}
	}

	return ErrorResult{
		Kind:    ErrUnknownOperation,
		Message: fmt.Sprintf("Unknown operation: %s", q.Operation),
	}
}

func numericSample(rows []row, field string) []float64 {
	nums := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.number(field); ok {
			nums = append(nums, v)
		}
	}
	return nums
}

func aggregate(op Operation, field string, nums []float64) AggregateResult {
	res := AggregateResult{Operation: op, Field: field}
	if len(nums) == 0 {
		return res
	}

	var v float64
	switch op {
	case OpSum, OpAvg:
		for _, n := range nums {
			v += n
		}
		if op == OpAvg {
			v /= float64(len(nums))
		}
	case OpMin:
		v = nums[0]
		for _, n := range nums[1:] {
			v = math.Min(v, n)
		}
	case OpMax:
		v = nums[0]
		for _, n := range nums[1:] {
			v = math.Max(v, n)
		}
	}
	v = round2(v)
	res.Result = &v
	return res
}

func percentile(field string, p float64, nums []float64) PercentileResult {
	res := PercentileResult{Operation: OpPercentile, Field: field, Percentile: p}
	if len(nums) == 0 {
		return res
	}
	sort.Float64s(nums)
	idx := int(math.Ceil(p/100*float64(len(nums)))) - 1
	idx = min(max(idx, 0), len(nums)-1)
	v := round2(nums[idx])
	res.Result = &v
	return res
}

func distribution(rows []row, groupBy string) DistributionResult {
	counts := make(map[string]int)
	var order []string
	for _, r := range rows {
		key := strings.TrimSpace(r.text(groupBy))
		if key == "" {
			key = EmptyGroup
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	buckets := make([]Bucket, 0, len(order))
	for _, k := range order {
		buckets = append(buckets, Bucket{Value: k, Count: counts[k]})
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Count > buckets[j].Count
	})
	return DistributionResult{Operation: OpDistribution, Result: buckets}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
