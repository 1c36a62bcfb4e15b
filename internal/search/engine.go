// Package search runs retrieval and citation-grounded answer generation.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/embedding"
	"github.com/hyperjump/strata/internal/generation"
	"github.com/hyperjump/strata/internal/metrics"
	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/internal/vector"
	"github.com/hyperjump/strata/pkg/utils"
)

// NoInformationAnswer is returned when no stored record clears the similarity threshold.
const NoInformationAnswer = "No information found."

// Result is the outcome of one question. Exactly one of Answer and Err is meaningful.
type Result struct {
	Answer  string
	Sources []*models.Match
	Err     error
}

// OK reports whether an answer was produced.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Text renders the result for textual consumers, failures as "Error: <message>".
func (r *Result) Text() string {
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}
	return r.Answer
}

// Engine answers questions from the vector store.
type Engine struct {
	embedder  embedding.Embedder
	store     vector.Store
	generator generation.Generator
	prompt    *PromptBuilder
	cfg       config.RetrievalConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = utils.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine with the given dependencies.
// The embedder must be the one used to ingest the store's records.
func NewEngine(
	embedder embedding.Embedder,
	store vector.Store,
	generator generation.Generator,
	cfg config.RetrievalConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		embedder:  embedder,
		store:     store,
		generator: generator,
		prompt:    NewPromptBuilder(),
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Answer embeds the question, retrieves matches and asks the model for a cited answer.
// When nothing clears the threshold the model is not called and the answer is NoInformationAnswer.
// Every failure, including a panic in a dependency, is returned in Result.Err.
func (e *Engine) Answer(ctx context.Context, question string) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("answer panicked", zap.Any("panic", r))
			res = &Result{Err: models.NewError(models.KindInternal, "answer", fmt.Errorf("panic: %v", r))}
		}
		if res.Err != nil {
			e.metrics.ObserveAnswer(metrics.OutcomeError)
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return &Result{Err: models.NewError(models.KindInvalidInput, "answer", errors.New("question cannot be empty"))}
	}

	matches, err := e.Retrieve(ctx, question, e.cfg.MatchThreshold, e.cfg.MatchCount)
	if err != nil {
		e.logger.Warn("retrieval failed", zap.Error(err))
		return &Result{Err: err}
	}
	if len(matches) == 0 {
		e.metrics.ObserveAnswer(metrics.OutcomeNoMatch)
		e.logger.Debug("no matches above threshold", zap.Float64("threshold", e.cfg.MatchThreshold))
		return &Result{Answer: NoInformationAnswer}
	}

	prompt, err := e.prompt.Build(AssembleContext(matches), question)
	if err != nil {
		return &Result{Sources: matches, Err: models.NewError(models.KindInternal, "build prompt", err)}
	}

	start := time.Now()
	answer, err := e.generator.Generate(ctx, prompt)
	e.metrics.ObserveStage(metrics.StageGenerate, start)
	if err != nil {
		e.logger.Warn("generation failed", zap.String("model", e.generator.Model()), zap.Error(err))
		return &Result{Sources: matches, Err: models.Classify(models.KindGeneration, "generate", err)}
	}

	e.metrics.ObserveAnswer(metrics.OutcomeAnswered)
	e.logger.Debug("answered",
		zap.Int("sources", len(matches)),
		zap.Duration("generate", time.Since(start)),
	)
	return &Result{Answer: answer, Sources: matches}
}

// Retrieve embeds text and returns stored records scoring at least threshold, best first.
func (e *Engine) Retrieve(ctx context.Context, text string, threshold float64, limit int) ([]*models.Match, error) {
	start := time.Now()
	vec, err := e.embedder.Embed(ctx, text)
	e.metrics.ObserveStage(metrics.StageEmbed, start)
	if err != nil {
		return nil, models.Classify(models.KindEmbedding, "embed query", err)
	}

	start = time.Now()
	matches, err := e.store.Search(ctx, vec, threshold, limit)
	e.metrics.ObserveStage(metrics.StageSearch, start)
	if err != nil {
		return nil, models.Classify(models.KindStore, "search", err)
	}
	return matches, nil
}

// Search runs a retrieval-only query without calling the model.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.cfg); err != nil {
		return nil, err
	}
	matches, err := e.Retrieve(ctx, query.Query, query.Threshold, query.Limit)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	return &models.SearchResponse{
		Query:     query.Query,
		Matches:   matches,
		Total:     len(matches),
		QueryTime: time.Since(startTime).Milliseconds(),
	}, nil
}
