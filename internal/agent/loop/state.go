package loop

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/crm-insights/server/internal/agent/model"
)

// finish reasons that end a turn normally, compared case-insensitively.
// Covers Gemini (STOP, MAX_TOKENS, FINISH_REASON_UNSPECIFIED) and the
// OpenAI/Anthropic spellings some gateways pass through.
var naturalStops = map[string]bool{
	"":                          true,
	"stop":                      true,
	"end_turn":                  true,
	"max_tokens":                true,
	"length":                    true,
	"finish_reason_unspecified": true,
}

var toolStops = map[string]bool{
	"tool_use":      true,
	"tool_calls":    true,
	"function_call": true,
}

// NextState classifies a model response. Tool calls always win over the
// reported finish reason; unrecognised reasons such as SAFETY abort the run.
func NextState(msg *schema.Message) model.LoopState {
	if msg == nil {
		return model.Aborted
	}
	if len(msg.ToolCalls) > 0 {
		return model.ExecutingTools
	}

	var reason string
	if msg.ResponseMeta != nil {
		reason = strings.ToLower(strings.TrimSpace(msg.ResponseMeta.FinishReason))
	}
	switch {
	case toolStops[reason]:
		return model.ExecutingTools
	case naturalStops[reason]:
		return model.Done
	default:
		return model.Aborted
	}
}
