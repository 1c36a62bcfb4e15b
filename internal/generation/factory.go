package generation

import (
	"fmt"
	"time"

	"github.com/hyperjump/strata/internal/config"
)

// NewGenerator creates the generator selected by cfg.Provider.
// Supported providers: "openai" (default), "langchain", "mock".
func NewGenerator(cfg config.LLMConfig, timeout time.Duration) (Generator, error) {
	var (
		g   Generator
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		g, err = NewOpenAIGenerator(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.TemperatureOrDefault(),
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
		})
	case config.ProviderLangchain:
		g, err = NewLangChainGenerator(LangChainConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.TemperatureOrDefault(),
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
		})
	case config.ProviderMock:
		g = NewMockGenerator("")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: openai, langchain, mock)", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s generator: %w", cfg.Provider, err)
	}
	return g, nil
}
