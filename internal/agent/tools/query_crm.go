package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/crm-insights/server/internal/crm"
	"github.com/crm-insights/server/internal/query"
)

// ===================================
// Query CRM Tool
// ===================================

const ToolQueryCRM = "query_crm"

// Executor evaluates a structured CRM query.
type Executor interface {
	Execute(q query.Query) query.Result
}

// QueryTool exposes an Executor to the model as the query_crm tool.
// It never returns a Go error: bad requests become {"error": ...} payloads so
// the model can correct itself in the next round.
type QueryTool struct {
	exec Executor
}

var _ tool.InvokableTool = (*QueryTool)(nil)

func NewQueryTool(exec Executor) *QueryTool {
	return &QueryTool{exec: exec}
}

func (t *QueryTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return queryToolInfo(), nil
}

func (t *QueryTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var q query.Query
	if err := json.Unmarshal([]byte(argumentsInJSON), &q); err != nil {
		return errorPayload(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	b, err := json.Marshal(t.exec.Execute(q))
	if err != nil {
		return errorPayload(err.Error()), nil
	}
	return string(b), nil
}

func errorPayload(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

func enumOf[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

func queryToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolQueryCRM,
		Desc: "Query the CRM database. Always use this tool to answer data questions, never guess or estimate. " +
			"You may call it multiple times in sequence to build up an answer.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"entity": {
				Type:     schema.String,
				Desc:     "Which dataset to query.",
				Enum:     enumOf(crm.Entities),
				Required: true,
			},
			"operation": {
				Type: schema.String,
				Desc: "list: return matching records. count: count them. " +
					"sum/avg/min/max: aggregate a numeric field. " +
					"percentile: Nth percentile of a numeric field (requires percentile_value). " +
					"distribution: group by a field and count records (requires group_by).",
				Enum:     enumOf(query.Operations),
				Required: true,
			},
			"field": {
				Type: schema.String,
				Desc: "Field to aggregate. Required for sum/avg/min/max/percentile. " +
					"Opportunities: 'amount' or 'closeDate'. " +
					"Leads: 'Lead Status', 'Company', 'First Name', 'Last Name'. " +
					"Accounts: 'Company Name', 'City', 'State'. " +
					"Contacts: 'first_name', 'last_name', 'email'.",
			},
			"filters": {
				Type: schema.Array,
				Desc: "Optional filter conditions, ANDed together.",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"field": {
							Type:     schema.String,
							Desc:     "Field name to filter on.",
							Required: true,
						},
						"op": {
							Type: schema.String,
							Desc: "eq/neq: equality (case-insensitive for strings). " +
								"gte/lte: numeric or date comparison. " +
								"contains/not_contains: substring match.",
							Enum:     enumOf(query.Operators),
							Required: true,
						},
						"value": {
							Type:     schema.String,
							Desc:     "Value to compare against.",
							Required: true,
						},
					},
				},
			},
			"group_by": {
				Type: schema.String,
				Desc: "Required for distribution. Field whose distinct values form the groups.",
			},
			"percentile_value": {
				Type: schema.Number,
				Desc: "Required for percentile. A number between 0 and 100.",
			},
			"limit": {
				Type: schema.Integer,
				Desc: fmt.Sprintf("For list only. Max records to return. Default %d, max %d.", query.DefaultListLimit, query.MaxListLimit),
			},
		}),
	}
}
