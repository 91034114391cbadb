package query

import (
	"github.com/crm-insights/server/internal/crm"
)

// Operation selects what Execute computes over the filtered records.
type Operation string

const (
	OpList         Operation = "list"
	OpCount        Operation = "count"
	OpSum          Operation = "sum"
	OpAvg          Operation = "avg"
	OpMin          Operation = "min"
	OpMax          Operation = "max"
	OpPercentile   Operation = "percentile"
	OpDistribution Operation = "distribution"
)

// Operations lists every supported operation in schema order.
var Operations = []Operation{OpList, OpCount, OpSum, OpAvg, OpMin, OpMax, OpPercentile, OpDistribution}

// Operator is a filter comparison.
type Operator string

const (
	Eq          Operator = "eq"
	Neq         Operator = "neq"
	Gte         Operator = "gte"
	Lte         Operator = "lte"
	Contains    Operator = "contains"
	NotContains Operator = "not_contains"
)

// Operators lists every supported filter operator in schema order.
var Operators = []Operator{Eq, Neq, Gte, Lte, Contains, NotContains}

const (
	// DefaultListLimit applies when a list query omits limit.
	DefaultListLimit = 20
	// MaxListLimit caps how many records a list query returns.
	MaxListLimit = 100
	// EmptyGroup replaces blank grouping keys in distributions.
	EmptyGroup = "(empty)"
)

// Filter is one predicate; a query's filters are ANDed.
type Filter struct {
	Field string   `json:"field" yaml:"field"`
	Op    Operator `json:"op" yaml:"op"`
	Value string   `json:"value" yaml:"value"`
}

// Query is the structured request accepted by the query_crm tool.
type Query struct {
	Entity          crm.Entity `json:"entity" yaml:"entity"`
	Operation       Operation  `json:"operation" yaml:"operation"`
	Field           string     `json:"field,omitempty" yaml:"field,omitempty"`
	Filters         []Filter   `json:"filters,omitempty" yaml:"filters,omitempty"`
	GroupBy         string     `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	PercentileValue *float64   `json:"percentile_value,omitempty" yaml:"percentile_value,omitempty"`
	Limit           *int       `json:"limit,omitempty" yaml:"limit,omitempty"`
}
