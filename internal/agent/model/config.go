package model

import "time"

// ================ Config ================
type ChatModelConfig struct {
	Model          string  `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"CHAT_MAX_TOKENS" default:"1024"`
	Temperature    float32 `envconfig:"CHAT_TEMPERATURE" default:"0.2"`
	ThinkingBudget int32   `envconfig:"CHAT_THINKING_BUDGET" default:"0"`
}

type ConversationConfig struct {
	// MaxHistory is how many trailing client messages reach the model.
	MaxHistory int `envconfig:"CONVERSATION_MAX_HISTORY" default:"6"`
	// MaxRounds bounds model calls per chat request.
	MaxRounds    int           `envconfig:"CONVERSATION_MAX_ROUNDS" default:"8"`
	RoundTimeout time.Duration `envconfig:"CONVERSATION_ROUND_TIMEOUT" default:"30s"`
	ArchiveTTL   time.Duration `envconfig:"CONVERSATION_ARCHIVE_TTL" default:"24h"`
}

const (
	DefaultMaxHistory = 6
	DefaultMaxRounds  = 8
)

// Normalized replaces non-positive limits with their defaults.
func (c ConversationConfig) Normalized() ConversationConfig {
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	return c
}
