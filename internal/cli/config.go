package cli

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/crm-insights/server/internal/agent/model"
	"github.com/crm-insights/server/internal/core"
	"github.com/crm-insights/server/internal/crm"
	"github.com/crm-insights/server/internal/server"
	logx "github.com/crm-insights/server/pkg/logger"
	pkgredis "github.com/crm-insights/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config
	HTTP  server.Config
	Data  crm.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Chat         model.ChatModelConfig
	Conversation model.ConversationConfig
}

// LoadConfig reads envFile if present, then the process environment.
func LoadConfig(envFile string) (*AppConfig, error) {
	envErr := godotenv.Load(envFile)

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.Environment = core.ParseEnvironment(string(cfg.Environment))

	logx.Init(logx.LoggerOpts{Environment: cfg.Environment})
	if envErr != nil {
		logx.Debug().Str("file", envFile).Msg("No env file loaded")
	}
	return &cfg, nil
}
