package model

import (
	"github.com/cloudwego/eino/schema"
)

// LoopState is the agent loop's position in its request/tool cycle.
type LoopState string

const (
	AwaitingModel  LoopState = "AWAITING_MODEL"
	ExecutingTools LoopState = "EXECUTING_TOOLS"
	Done           LoopState = "DONE"
	Aborted        LoopState = "ABORTED"
)

// Terminal reports whether no further rounds follow s.
func (s LoopState) Terminal() bool {
	return s == Done || s == Aborted
}

// Replies shown to the user when the model produced no usable answer.
const (
	NoAnswerReply = "I was unable to produce an answer."
	AbortedReply  = "I was unable to complete the analysis. Please try again."
)

// ChatMessage is one client-side conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Outcome summarizes one agent run.
type Outcome struct {
	Reply        string
	State        LoopState
	Rounds       int
	ToolCalls    int
	TotalCostUSD float64

	// Transcript holds every message sent to or received from the model,
	// starting with the system instruction.
	Transcript []*schema.Message
}
