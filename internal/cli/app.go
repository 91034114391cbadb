package cli

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"

	"github.com/crm-insights/server/internal/agent/llm"
	"github.com/crm-insights/server/internal/agent/loop"
	"github.com/crm-insights/server/internal/agent/model"
	"github.com/crm-insights/server/internal/agent/observers"
	"github.com/crm-insights/server/internal/agent/repo"
	"github.com/crm-insights/server/internal/agent/tools"
	"github.com/crm-insights/server/internal/crm"
	"github.com/crm-insights/server/internal/query"
	logx "github.com/crm-insights/server/pkg/logger"
)

func loadDataset(ctx context.Context, cfg *AppConfig) (*crm.Dataset, error) {
	return crm.NewLoader(cfg.Data).Load(ctx)
}

// newAgent wires the query engine, tools, chat model and loop runner.
func newAgent(ctx context.Context, cfg *AppConfig, ds *crm.Dataset) (*loop.Runner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	queryTools := tools.GetQueryTools(query.NewEngine(ds))
	toolInfos, err := tools.GetToolInfos(ctx, queryTools)
	if err != nil {
		return nil, err
	}

	chat, err := llm.NewChatModel(ctx, llm.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Chat:    cfg.Chat,
	}, toolInfos)
	if err != nil {
		return nil, err
	}

	toolsNode, err := tools.NewToolsNode(ctx, queryTools)
	if err != nil {
		return nil, err
	}

	return loop.NewRunner(chat, toolsNode, loop.Config{
		ModelName:    cfg.Chat.Model,
		Conversation: cfg.Conversation,
		Callbacks:    []callbacks.Handler{observers.NewAllCallbacks()},
	})
}

// newTranscriptRepo picks Redis when configured and falls back to memory.
// The returned close func is never nil.
func newTranscriptRepo(ctx context.Context, cfg *AppConfig) (model.TranscriptRepository, func(), error) {
	if !cfg.Redis.Enabled() {
		logx.Info().Msg("REDIS_URL not set; archiving transcripts in memory")
		return repo.NewMemoryTranscriptRepository(cfg.Conversation.ArchiveTTL), func() {}, nil
	}

	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logx.Info().Msg("Connected to Redis successfully")
	return repo.NewRedisTranscriptRepository(rdb, cfg.Conversation.ArchiveTTL), func() { _ = rdb.Close() }, nil
}
