package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hyperjump/strata/internal/models"
)

// LangChainConfig configures an embedder built on langchaingo's OpenAI client.
type LangChainConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// LangChainEmbedder embeds text through langchaingo's embeddings abstraction.
type LangChainEmbedder struct {
	embedder   embeddings.Embedder
	dimensions int
	timeout    time.Duration
}

// NewLangChainEmbedder creates a langchaingo-backed embedder.
func NewLangChainEmbedder(cfg LangChainConfig) (*LangChainEmbedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		// Self-hosted OpenAI-compatible servers accept any token.
		apiKey = "placeholder"
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	embOpts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if cfg.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(llm, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return newLangChainEmbedder(embedder, cfg.Dimensions, cfg.Timeout), nil
}

func newLangChainEmbedder(e embeddings.Embedder, dimensions int, timeout time.Duration) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: e, dimensions: dimensions, timeout: timeout}
}

// Embed embeds a single text as a query.
func (e *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()
	v, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, models.NewError(models.KindEmbedding, "embed query", err)
	}
	if err := checkVectors("embed query", [][]float32{v}, 1, e.dimensions); err != nil {
		return nil, err
	}
	return v, nil
}

// EmbedBatch embeds texts as documents.
func (e *LangChainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()
	vectors, err := e.embedder.EmbedDocuments(ctx, append([]string(nil), texts...))
	if err != nil {
		return nil, models.NewError(models.KindEmbedding, "embed documents", err)
	}
	if err := checkVectors("embed documents", vectors, len(texts), e.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimensions returns the configured embedding dimension.
func (e *LangChainEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *LangChainEmbedder) Close() error {
	return nil
}
