package embedding

import (
	"fmt"
	"time"

	"github.com/hyperjump/strata/internal/config"
)

// NewEmbedder creates the embedder selected by cfg.Provider and wraps it in a
// CachedEmbedder when cfg.CacheSize is positive.
// Supported providers: "openai" (default), "langchain", "mock".
func NewEmbedder(cfg config.EmbeddingConfig, timeout time.Duration) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    timeout,
		})
	case config.ProviderLangchain:
		e, err = NewLangChainEmbedder(LangChainConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    timeout,
		})
	case config.ProviderMock:
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, langchain, mock)", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Provider, err)
	}
	if cfg.CacheSize <= 0 {
		return e, nil
	}
	cached, err := NewCachedEmbedder(e, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return cached, nil
}
