package loop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crm-insights/server/internal/agent/model"
	"github.com/crm-insights/server/internal/agent/tools"
	errx "github.com/crm-insights/server/internal/core/error"
	"github.com/crm-insights/server/internal/crm"
	"github.com/crm-insights/server/internal/query"
)

// fakeChatModel replays scripted responses and records every input it saw.
type fakeChatModel struct {
	mu      sync.Mutex
	respond func(call int, input []*schema.Message) (*schema.Message, error)
	inputs  [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, append([]*schema.Message(nil), input...))
	call := len(f.inputs)
	f.mu.Unlock()
	return f.respond(call, input)
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

// stallingChatModel answers the first call with a tool call and then waits
// for its context to end on every later call.
type stallingChatModel struct {
	fakeChatModel
}

func (s *stallingChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, input)
	call := len(s.inputs)
	s.mu.Unlock()
	if call == 1 {
		return withFinish(schema.AssistantMessage("", []schema.ToolCall{
			toolCall("", `{"entity":"opportunities","operation":"count"}`),
		}), "STOP"), nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func withFinish(msg *schema.Message, reason string) *schema.Message {
	msg.ResponseMeta = &schema.ResponseMeta{FinishReason: reason}
	return msg
}

func toolCall(id, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: tools.ToolQueryCRM, Arguments: args}}
}

func newTestRunner(t *testing.T, chat einomodel.BaseChatModel) *Runner {
	t.Helper()
	return newTestRunnerWith(t, chat, model.ConversationConfig{MaxHistory: 6, MaxRounds: 8, RoundTimeout: time.Second})
}

func newTestRunnerWith(t *testing.T, chat einomodel.BaseChatModel, conv model.ConversationConfig) *Runner {
	t.Helper()
	ctx := context.Background()
	opps := []crm.Opportunity{
		crm.NewOpportunity("C1", 100, "Roof", "Closed Won", "1/5/24"),
		crm.NewOpportunity("C2", 250.5, "Deck", "Closed Won", "2/5/24"),
		crm.NewOpportunity("C3", 0, "Shed", "Closed Won", "3/5/24"),
	}
	node, err := tools.NewToolsNode(ctx, tools.GetQueryTools(query.NewEngine(crm.NewDataset(opps, nil, nil, nil))))
	require.NoError(t, err)

	r, err := NewRunner(chat, node, Config{
		ModelName:    "gemini-2.5-flash",
		Conversation: conv,
	})
	require.NoError(t, err)
	return r
}

func history(n int) []*schema.Message {
	out := make([]*schema.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, schema.UserMessage(fmt.Sprintf("q%d", i)))
	}
	return out
}

func TestRunAnswersAfterToolCall(t *testing.T) {
	chat := &fakeChatModel{respond: func(call int, input []*schema.Message) (*schema.Message, error) {
		if call == 1 {
			return withFinish(schema.AssistantMessage("", []schema.ToolCall{
				toolCall("", `{"entity":"opportunities","operation":"sum","field":"amount","filters":[{"field":"stage","op":"eq","value":"Closed Won"}]}`),
			}), "STOP"), nil
		}
		return withFinish(schema.AssistantMessage("Closed Won revenue is $350.50.", nil), "STOP"), nil
	}}
	r := newTestRunner(t, chat)

	out, err := r.Run(context.Background(), history(1))
	require.NoError(t, err)
	assert.Equal(t, model.Done, out.State)
	assert.Equal(t, "Closed Won revenue is $350.50.", out.Reply)
	assert.Equal(t, 2, out.Rounds)
	assert.Equal(t, 1, out.ToolCalls)

	// system, user, assistant(tool call), tool, assistant(answer)
	require.Len(t, out.Transcript, 5)
	assert.Equal(t, schema.System, out.Transcript[0].Role)
	call := out.Transcript[2].ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)

	result := out.Transcript[3]
	assert.Equal(t, schema.Tool, result.Role)
	assert.Equal(t, "call_1", result.ToolCallID)
	assert.JSONEq(t, `{"operation":"sum","result":350.5,"field":"amount"}`, result.Content)

	// the second round saw the tool result
	require.Equal(t, 2, chat.calls())
	assert.Len(t, chat.inputs[1], 4)
}

func TestRunTerminatesWhenModelAlwaysCallsTools(t *testing.T) {
	chat := &fakeChatModel{respond: func(call int, _ []*schema.Message) (*schema.Message, error) {
		return withFinish(schema.AssistantMessage("", []schema.ToolCall{
			toolCall(fmt.Sprintf("t%d", call), `{"entity":"opportunities","operation":"count"}`),
		}), "tool_use"), nil
	}}
	r := newTestRunner(t, chat)

	out, err := r.Run(context.Background(), history(1))
	require.NoError(t, err)
	assert.Equal(t, model.Aborted, out.State)
	assert.Equal(t, model.AbortedReply, out.Reply)
	assert.Equal(t, 8, out.Rounds)
	assert.Equal(t, 8, out.ToolCalls)
	assert.Equal(t, 8, chat.calls())
}

func TestRunFeedsQueryErrorsBackToModel(t *testing.T) {
	chat := &fakeChatModel{respond: func(call int, input []*schema.Message) (*schema.Message, error) {
		if call == 1 {
			return schema.AssistantMessage("", []schema.ToolCall{
				toolCall("p1", `{"entity":"opportunities","operation":"percentile","field":"amount","percentile_value":150}`),
			}), nil
		}
		last := input[len(input)-1]
		return schema.AssistantMessage("tool said: "+last.Content, nil), nil
	}}
	r := newTestRunner(t, chat)

	out, err := r.Run(context.Background(), history(1))
	require.NoError(t, err)
	assert.Equal(t, model.Done, out.State)
	assert.Contains(t, out.Reply, "'percentile_value' must be between 0 and 100")
}

func TestRunUnsupportedStop(t *testing.T) {
	chat := &fakeChatModel{respond: func(int, []*schema.Message) (*schema.Message, error) {
		return withFinish(schema.AssistantMessage("partial", nil), "SAFETY"), nil
	}}
	r := newTestRunner(t, chat)

	out, err := r.Run(context.Background(), history(1))
	require.NoError(t, err)
	assert.Equal(t, model.Aborted, out.State)
	assert.Equal(t, model.AbortedReply, out.Reply)
	assert.Equal(t, 1, out.Rounds)
}

func TestRunEmptyAnswer(t *testing.T) {
	chat := &fakeChatModel{respond: func(int, []*schema.Message) (*schema.Message, error) {
		return withFinish(schema.AssistantMessage("  ", nil), "MAX_TOKENS"), nil
	}}
	r := newTestRunner(t, chat)

	out, err := r.Run(context.Background(), history(1))
	require.NoError(t, err)
	assert.Equal(t, model.Done, out.State)
	assert.Equal(t, model.NoAnswerReply, out.Reply)
}

func TestRunModelError(t *testing.T) {
	boom := errors.New("upstream 503")
	chat := &fakeChatModel{respond: func(int, []*schema.Message) (*schema.Message, error) {
		return nil, boom
	}}
	r := newTestRunner(t, chat)

	out, err := r.Run(context.Background(), history(1))
	assert.Nil(t, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	status, msg := errx.Resolve(err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, errx.ModelErrorMessage, msg)
}

func TestRunTrimsHistory(t *testing.T) {
	chat := &fakeChatModel{respond: func(int, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("ok", nil), nil
	}}
	r := newTestRunner(t, chat)

	_, err := r.Run(context.Background(), history(10))
	require.NoError(t, err)
	require.Equal(t, 1, chat.calls())

	in := chat.inputs[0]
	require.Len(t, in, 7)
	assert.Equal(t, schema.System, in[0].Role)
	assert.Contains(t, in[0].Content, tools.ToolQueryCRM)
	assert.Equal(t, "q4", in[1].Content)
	assert.Equal(t, "q9", in[6].Content)
}

func TestRunRecordsCost(t *testing.T) {
	chat := &fakeChatModel{respond: func(int, []*schema.Message) (*schema.Message, error) {
		msg := schema.AssistantMessage("ok", nil)
		msg.ResponseMeta = &schema.ResponseMeta{
			FinishReason: "STOP",
			Usage:        &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 0, TotalTokens: 1_000_000},
		}
		return msg, nil
	}}
	r := newTestRunner(t, chat)

	out, err := r.Run(context.Background(), history(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.30, out.TotalCostUSD, 1e-9)
	assert.Contains(t, out.Transcript[len(out.Transcript)-1].Extra, "usage_cost")
}

func TestNextState(t *testing.T) {
	tests := []struct {
		reason string
		calls  bool
		want   model.LoopState
	}{
		{"STOP", false, model.Done},
		{"end_turn", false, model.Done},
		{"MAX_TOKENS", false, model.Done},
		{"length", false, model.Done},
		{"", false, model.Done},
		{"FINISH_REASON_UNSPECIFIED", false, model.Done},
		{"tool_use", false, model.ExecutingTools},
		{"STOP", true, model.ExecutingTools},
		{"SAFETY", false, model.Aborted},
		{"RECITATION", false, model.Aborted},
	}
	for _, tt := range tests {
		msg := withFinish(schema.AssistantMessage("x", nil), tt.reason)
		if tt.calls {
			msg.ToolCalls = []schema.ToolCall{toolCall("a", "{}")}
		}
		assert.Equal(t, tt.want, NextState(msg), "reason %q calls %v", tt.reason, tt.calls)
	}
	assert.Equal(t, model.Aborted, NextState(nil))
}

func TestRunRoundTimeout(t *testing.T) {
	chat := &stallingChatModel{}
	timeout := 50 * time.Millisecond
	r := newTestRunnerWith(t, chat, model.ConversationConfig{MaxHistory: 6, MaxRounds: 8, RoundTimeout: timeout})

	start := time.Now()
	out, err := r.Run(context.Background(), history(1))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var appErr *errx.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Equal(t, errx.ModelErrorMessage, appErr.Message)

	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 20*timeout)
	assert.Equal(t, 2, chat.calls(), "no round runs after the timed out one")
}
