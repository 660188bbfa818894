package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/adapters/bedrock"
	"github.com/nfraser/mail-triage/internal/adapters/gemini"
	"github.com/nfraser/mail-triage/internal/adapters/openai"
	"github.com/nfraser/mail-triage/internal/config"
	"github.com/nfraser/mail-triage/internal/core"
)

// LLMFactory creates completion clients
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCompletionClient creates a new completion client based on the configuration
func (f *LLMFactory) CreateCompletionClient() (core.CompletionClient, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "bedrock":
		factory := bedrock.NewFactory(f.cfg, f.logger)
		return factory.CreateClient()
	case "gemini":
		factory := gemini.NewFactory(f.cfg, f.logger)
		return factory.CreateClient()
	case "openai":
		factory := openai.NewFactory(f.cfg, f.logger)
		return factory.CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
