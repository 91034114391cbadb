package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// TranscriptRepository archives the messages exchanged during chat requests,
// keyed by conversation id.
type TranscriptRepository interface {
	// Append adds messages to the end of the conversation's transcript
	Append(ctx context.Context, conversationID string, messages ...*schema.Message) error

	// Load retrieves the whole transcript; an unknown id yields an empty one
	Load(ctx context.Context, conversationID string) (*Transcript, error)

	// Clear removes the transcript
	Clear(ctx context.Context, conversationID string) error

	// Count returns the number of archived messages
	Count(ctx context.Context, conversationID string) (int, error)
}

// Transcript is an archived conversation.
type Transcript struct {
	ConversationID string
	Messages       []*schema.Message
}
