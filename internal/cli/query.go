package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crm-insights/server/internal/crm"
	"github.com/crm-insights/server/internal/query"
)

type queryOptions struct {
	request    string
	entity     string
	operation  string
	field      string
	filters    []string
	groupBy    string
	percentile float64
	limit      int
	output     string
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	qo := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query_crm request against the CSV data",
		Example: `  crm query --entity opportunities --operation sum --field amount --filter "stage:eq:Closed Won"
  crm query --request '{"entity":"leads","operation":"distribution","group_by":"Lead Status"}' -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qo.build(cmd)
			if err != nil {
				return err
			}

			ds, err := loadDataset(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}

			res := query.NewEngine(ds).Execute(q)
			if err := writeOutput(cmd.OutOrStdout(), qo.output, res); err != nil {
				return err
			}
			if e, ok := res.(query.ErrorResult); ok {
				return fmt.Errorf("query rejected (%s): %s", e.Kind, e.Message)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&qo.request, "request", "", "whole request as JSON or YAML; other query flags are ignored")
	f.StringVar(&qo.entity, "entity", "", "opportunities, leads, accounts or contacts")
	f.StringVar(&qo.operation, "operation", "", "list, count, sum, avg, min, max, percentile or distribution")
	f.StringVar(&qo.field, "field", "", "field to aggregate")
	f.StringArrayVar(&qo.filters, "filter", nil, "filter as field:op:value (repeatable, ANDed)")
	f.StringVar(&qo.groupBy, "group-by", "", "grouping field for distribution")
	f.Float64Var(&qo.percentile, "percentile", 0, "percentile between 0 and 100")
	f.IntVar(&qo.limit, "limit", query.DefaultListLimit, "max records for list")
	f.StringVarP(&qo.output, "output", "o", outputJSON, "output format: json or yaml")
	return cmd
}

func (qo *queryOptions) build(cmd *cobra.Command) (query.Query, error) {
	var q query.Query
	if qo.request != "" {
		// YAML is a superset of JSON, so one decoder covers both.
		if err := yaml.Unmarshal([]byte(qo.request), &q); err != nil {
			return q, fmt.Errorf("parse --request: %w", err)
		}
		return q, nil
	}

	if e := crm.Entity(qo.entity); !e.Valid() {
		return q, fmt.Errorf("--entity must be one of %v, got %q", crm.Entities, qo.entity)
	}
	q = query.Query{
		Entity:    crm.Entity(qo.entity),
		Operation: query.Operation(qo.operation),
		Field:     qo.field,
		GroupBy:   qo.groupBy,
	}
	for _, raw := range qo.filters {
		f, err := parseFilter(raw)
		if err != nil {
			return q, err
		}
		q.Filters = append(q.Filters, f)
	}
	if cmd.Flags().Changed("percentile") {
		p := qo.percentile
		q.PercentileValue = &p
	}
	if cmd.Flags().Changed("limit") {
		l := qo.limit
		q.Limit = &l
	}
	return q, nil
}

// parseFilter splits "field:op:value"; the value may itself contain colons.
func parseFilter(raw string) (query.Filter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return query.Filter{}, fmt.Errorf("filter %q: want field:op:value", raw)
	}
	return query.Filter{
		Field: strings.TrimSpace(parts[0]),
		Op:    query.Operator(strings.TrimSpace(parts[1])),
		Value: parts[2],
	}, nil
}
