package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/crm-insights/server/internal/agent/model"
	logx "github.com/crm-insights/server/pkg/logger"
)

var (
	ErrNoMessages  = errors.New("no messages provided")
	ErrInvalidRole = errors.New("invalid message role")
)

type MessagesManager struct {
	transcriptRepo model.TranscriptRepository
	maxHistory     int
}

// NewMessagesManager builds a manager. A nil repository disables archiving.
func NewMessagesManager(transcriptRepo model.TranscriptRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		transcriptRepo: transcriptRepo,
		maxHistory:     config.Normalized().MaxHistory,
	}
}

// BuildHistory converts client turns into model messages, keeping only the
// most recent maxHistory of them.
func (cm *MessagesManager) BuildHistory(msgs []model.ChatMessage) ([]*schema.Message, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}

	out := make([]*schema.Message, 0, len(msgs))
	for i, m := range msgs {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case string(schema.User):
			out = append(out, schema.UserMessage(m.Content))
		case string(schema.Assistant):
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			return nil, fmt.Errorf("%w %q at index %d", ErrInvalidRole, m.Role, i)
		}
	}
	return TrimTail(out, cm.maxHistory), nil
}

// Archive stores the transcript of one chat request, minus the system
// instruction. Failures are logged and swallowed.
func (cm *MessagesManager) Archive(ctx context.Context, conversationID string, transcript []*schema.Message) {
	if cm.transcriptRepo == nil || conversationID == "" {
		return
	}
	msgs := make([]*schema.Message, 0, len(transcript))
	for _, m := range transcript {
		if m == nil || m.Role == schema.System {
			continue
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return
	}
	if err := cm.transcriptRepo.Append(ctx, conversationID, msgs...); err != nil {
		logx.Error().
			Err(err).
			Str("conversation_id", conversationID).
			Msg("Error archiving conversation transcript")
		return
	}
	ev := logx.Debug().
		Str("conversation_id", conversationID).
		Int("messages", len(msgs))
	if total, err := cm.transcriptRepo.Count(ctx, conversationID); err == nil {
		ev = ev.Int("archived_total", total)
	}
	ev.Msg("Archived conversation transcript")
}

// History returns the archived transcript for conversationID.
func (cm *MessagesManager) History(ctx context.Context, conversationID string) (*model.Transcript, error) {
	if cm.transcriptRepo == nil {
		return &model.Transcript{ConversationID: conversationID, Messages: []*schema.Message{}}, nil
	}
	return cm.transcriptRepo.Load(ctx, conversationID)
}

// Forget deletes the archived transcript for conversationID.
func (cm *MessagesManager) Forget(ctx context.Context, conversationID string) error {
	if cm.transcriptRepo == nil {
		return nil
	}
	return cm.transcriptRepo.Clear(ctx, conversationID)
}

// ====================== Helper function ======================

// TrimTail returns a copy of the last maxTurns messages.
func TrimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns < 0 {
		maxTurns = 0
	}
	source := messages
	if len(messages) > maxTurns {
		source = messages[len(messages)-maxTurns:]
	}
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
