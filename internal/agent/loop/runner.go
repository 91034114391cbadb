package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/crm-insights/server/internal/agent/conversations"
	"github.com/crm-insights/server/internal/agent/model"
	"github.com/crm-insights/server/internal/agent/prompts"
	errx "github.com/crm-insights/server/internal/core/error"
	logx "github.com/crm-insights/server/pkg/logger"
)

// Config wires a Runner.
type Config struct {
	ModelName    string
	Conversation model.ConversationConfig
	// Callbacks observe model, tool and prompt lifecycle events.
	Callbacks []callbacks.Handler
}

// Runner drives one chat request through the model/tool cycle:
//
//	AWAITING_MODEL -> DONE | EXECUTING_TOOLS | ABORTED
//	EXECUTING_TOOLS -> AWAITING_MODEL
//
// until DONE, ABORTED or the round budget runs out.
type Runner struct {
	chat      einomodel.BaseChatModel
	tools     *compose.ToolsNode
	modelName string
	cfg       model.ConversationConfig
	handlers  []callbacks.Handler
}

// NewRunner expects chat to already have the tool schemas bound.
func NewRunner(chat einomodel.BaseChatModel, tools *compose.ToolsNode, cfg Config) (*Runner, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if tools == nil {
		return nil, fmt.Errorf("tools node is nil")
	}
	return &Runner{
		chat:      chat,
		tools:     tools,
		modelName: cfg.ModelName,
		cfg:       cfg.Conversation.Normalized(),
		handlers:  cfg.Callbacks,
	}, nil
}

// run holds per-request bookkeeping.
type run struct {
	out        *model.Outcome
	toolCallID int
}

// Run answers the conversation in history. The returned error is an
// *errx.AppError when the model could not be reached; running out of rounds
// or an unsupported stop is not an error and yields AbortedReply.
func (r *Runner) Run(ctx context.Context, history []*schema.Message) (*model.Outcome, error) {
	if len(r.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{Name: "crm_agent", Type: "Loop"}, r.handlers...)
	}

	system, err := prompts.RenderSystem(callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      "system_prompt",
		Type:      "GoTemplate",
		Component: components.ComponentOfPrompt,
	}))
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}

	st := &run{out: &model.Outcome{State: model.AwaitingModel}}
	st.out.Transcript = append([]*schema.Message{schema.SystemMessage(system)},
		conversations.TrimTail(history, r.cfg.MaxHistory)...)

	for st.out.Rounds < r.cfg.MaxRounds && !st.out.State.Terminal() {
		st.out.Rounds++
		if err := r.round(ctx, st); err != nil {
			return nil, err
		}
	}

	if st.out.State != model.Done {
		logx.Warn().
			Int("rounds", st.out.Rounds).
			Str("state", string(st.out.State)).
			Msg("Agent loop ended without an answer")
		st.out.State = model.Aborted
		st.out.Reply = model.AbortedReply
	}
	return st.out, nil
}

func (r *Runner) round(ctx context.Context, st *run) error {
	if r.cfg.RoundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RoundTimeout)
		defer cancel()
	}

	st.out.State = model.AwaitingModel
	msg, err := r.chat.Generate(callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      r.modelName,
		Type:      "ChatModel",
		Component: components.ComponentOfChatModel,
	}), st.out.Transcript)
	if err != nil {
		logx.Error().Err(err).Int("round", st.out.Rounds).Msg("Chat model call failed")
		return errx.WrapModel(err)
	}
	if msg == nil {
		msg = schema.AssistantMessage("", nil)
	}
	if msg.Role == "" {
		msg.Role = schema.Assistant
	}

	r.assignToolCallIDs(st, msg)
	r.recordUsage(st, msg)
	st.out.Transcript = append(st.out.Transcript, msg)

	st.out.State = NextState(msg)
	switch st.out.State {
	case model.Done:
		st.out.Reply = strings.TrimSpace(msg.Content)
		if st.out.Reply == "" {
			st.out.Reply = model.NoAnswerReply
		}
		logx.Debug().Int("round", st.out.Rounds).Msg("AI response ready")

	case model.ExecutingTools:
		results := r.executeTools(ctx, msg)
		st.out.ToolCalls += len(msg.ToolCalls)
		st.out.Transcript = append(st.out.Transcript, results...)

	case model.Aborted:
		var reason string
		if msg.ResponseMeta != nil {
			reason = msg.ResponseMeta.FinishReason
		}
		logx.Warn().Str("finish_reason", reason).Int("round", st.out.Rounds).Msg("Unsupported stop reason")
	}
	return nil
}

// executeTools runs every call of msg in order. A failing tools node never
// fails the round: each call gets an error payload instead.
func (r *Runner) executeTools(ctx context.Context, msg *schema.Message) []*schema.Message {
	if len(msg.ToolCalls) == 0 {
		return nil
	}
	logx.Debug().Int("tool_count", len(msg.ToolCalls)).Msg("Calling tools")

	results, err := r.tools.Invoke(ctx, msg)
	if err == nil && len(results) == len(msg.ToolCalls) {
		return results
	}
	if err == nil {
		err = fmt.Errorf("tools node returned %d results for %d calls", len(results), len(msg.ToolCalls))
	}
	logx.Error().Err(err).Msg("Tool execution failed")

	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	out := make([]*schema.Message, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		tm := schema.ToolMessage(string(b), tc.ID)
		tm.ToolName = tc.Function.Name
		out = append(out, tm)
	}
	return out
}

// assignToolCallIDs synthesizes call_<n> ids for providers that omit them.
func (r *Runner) assignToolCallIDs(st *run, msg *schema.Message) {
	for i := range msg.ToolCalls {
		if strings.TrimSpace(msg.ToolCalls[i].ID) == "" {
			st.toolCallID++
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d", st.toolCallID)
		}
	}
}

func (r *Runner) recordUsage(st *run, msg *schema.Message) {
	c, ok := model.CostOf(r.modelName, msg)
	if !ok {
		return
	}
	st.out.TotalCostUSD += c.TotalCost

	if msg.Extra == nil {
		msg.Extra = map[string]any{}
	}
	msg.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             c.Model,
		"prompt_tokens":     c.PromptTokens,
		"completion_tokens": c.CompletionTokens,
		"total_tokens":      c.TotalTokens,
		"input_cost":        c.InputCost,
		"output_cost":       c.OutputCost,
		"total_cost":        c.TotalCost,
	}
	msg.Extra["usage_cost_total_usd"] = st.out.TotalCostUSD

	logx.Debug().
		Int("round", st.out.Rounds).
		Str("model", c.Model).
		Int("prompt_tokens", c.PromptTokens).
		Int("completion_tokens", c.CompletionTokens).
		Int("total_tokens", c.TotalTokens).
		Float64("input_cost_usd", c.InputCost).
		Float64("output_cost_usd", c.OutputCost).
		Float64("total_cost_usd", c.TotalCost).
		Msg("LLM usage")
}
