package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/crm-insights/server/internal/agent/model"
	logx "github.com/crm-insights/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Chat    model.ChatModelConfig
}

// NewChatModel creates the Gemini chat model and binds tools to it.
func NewChatModel(ctx context.Context, config ChatModelConfig, tools []*schema.ToolInfo) (*gemini.ChatModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, geminiConfig(client, config.Chat))
	if err != nil {
		logx.Error().Err(err).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}

	if len(tools) > 0 {
		if err := cm.BindTools(tools); err != nil {
			logx.Error().Err(err).Msg("Failed to bind tools")
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
		logx.Debug().Int("tools", len(tools)).Str("model", config.Chat.Model).Msg("Successfully bound tools to chat model")
	}

	return cm, nil
}

// geminiConfig always sends a thinking budget; zero turns thinking off so it
// cannot consume the MaxTokens budget meant for the answer.
func geminiConfig(client *genai.Client, chat model.ChatModelConfig) *gemini.Config {
	return &gemini.Config{
		Client:      client,
		Model:       chat.Model,
		Temperature: &chat.Temperature,
		MaxTokens:   &chat.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(max(chat.ThinkingBudget, 0)),
		},
	}
}
