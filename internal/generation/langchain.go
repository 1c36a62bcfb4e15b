package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hyperjump/strata/internal/models"
)

// LangChainConfig configures a generator built on langchaingo's OpenAI client.
type LangChainConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// LangChainGenerator completes prompts through any llms.Model.
type LangChainGenerator struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// NewLangChainGenerator creates a langchaingo-backed generator.
func NewLangChainGenerator(cfg LangChainConfig) (*LangChainGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return NewLangChainGeneratorFromModel(llm, cfg), nil
}

// NewLangChainGeneratorFromModel wraps an existing model.
func NewLangChainGeneratorFromModel(llm llms.Model, cfg LangChainConfig) *LangChainGenerator {
	return &LangChainGenerator{
		llm:         llm,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

// Generate calls the model with the prompt as a single human message.
func (g *LangChainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, opts...)
	if err != nil {
		return "", models.NewError(models.KindGeneration, "generate", err)
	}
	return strings.TrimSpace(out), nil
}

// Model returns the model name.
func (g *LangChainGenerator) Model() string {
	return g.model
}
