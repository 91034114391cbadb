package query

import "fmt"

// Result is the outcome of Execute. Exactly one of the concrete types below is
// returned, selected by the query's operation.
type Result interface {
	resultKind() string
}

// CountResult answers OpCount.
type CountResult struct {
	Operation Operation `json:"operation" yaml:"operation"`
	Result    int       `json:"result" yaml:"result"`
}

// AggregateResult answers sum, avg, min and max. Result is nil when no record
// had a numeric value for Field.
type AggregateResult struct {
	Operation Operation `json:"operation" yaml:"operation"`
	Result    *float64  `json:"result" yaml:"result"`
	Field     string    `json:"field" yaml:"field"`
}

// PercentileResult answers OpPercentile.
type PercentileResult struct {
	Operation  Operation `json:"operation" yaml:"operation"`
	Result     *float64  `json:"result" yaml:"result"`
	Field      string    `json:"field" yaml:"field"`
	Percentile float64   `json:"percentile" yaml:"percentile"`
}

// Bucket is one group of a distribution.
type Bucket struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// DistributionResult answers OpDistribution, largest group first.
type DistributionResult struct {
	Operation Operation `json:"operation" yaml:"operation"`
	Result    []Bucket  `json:"result" yaml:"result"`
}

// ListResult answers OpList. TotalMatched counts every filtered record, not
// only the returned page.
type ListResult struct {
	Operation    Operation `json:"operation" yaml:"operation"`
	Result       []any     `json:"result" yaml:"result"`
	TotalMatched int       `json:"total_matched" yaml:"total_matched"`
}

// ErrorKind classifies a rejected query.
type ErrorKind string

const (
	ErrMissingParameter ErrorKind = "missing_parameter"
	ErrInvalidParameter ErrorKind = "invalid_parameter"
	ErrInvalidEntity    ErrorKind = "invalid_entity"
	ErrUnknownOperation ErrorKind = "unknown_operation"
)

// ErrorResult reports a query that could not be evaluated. It is returned to
// the caller as data so an agent can correct the request and retry.
type ErrorResult struct {
	Kind    ErrorKind `json:"-" yaml:"-"`
	Message string    `json:"error" yaml:"error"`
}

func (CountResult) resultKind() string        { return string(OpCount) }
func (r AggregateResult) resultKind() string  { return string(r.Operation) }
func (PercentileResult) resultKind() string   { return string(OpPercentile) }
func (DistributionResult) resultKind() string { return string(OpDistribution) }
func (ListResult) resultKind() string         { return string(OpList) }
func (ErrorResult) resultKind() string        { return "error" }

// Kind returns the operation name of r, or "error".
func Kind(r Result) string {
	if r == nil {
		return ""
	}
	return r.resultKind()
}

func missing(format string, args ...any) ErrorResult {
	return ErrorResult{Kind: ErrMissingParameter, Message: fmt.Sprintf(format, args...)}
}
