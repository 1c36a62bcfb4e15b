package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/embedding"
	"github.com/hyperjump/strata/internal/generation"
	"github.com/hyperjump/strata/internal/metrics"
	"github.com/hyperjump/strata/internal/models"
)

type fakeStore struct {
	matches   []*models.Match
	err       error
	panic     bool
	threshold float64
	limit     int
	calls     int
}

func (s *fakeStore) Upsert(ctx context.Context, records []*models.StoredRecord) error { return nil }

func (s *fakeStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error) {
	s.calls++
	s.threshold, s.limit = threshold, limit
	if s.panic {
		panic("store exploded")
	}
	return s.matches, s.err
}

func (s *fakeStore) Close() error { return nil }

type failingEmbedder struct{ *embedding.MockEmbedder }

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("quota exceeded")
}

var retrievalCfg = config.RetrievalConfig{MatchThreshold: 0.5, MatchCount: 5, MaxMatchCount: 50}

func oneMatch() []*models.Match {
	return []*models.Match{{
		Record: &models.StoredRecord{
			ID:       "r1",
			Content:  "X",
			Metadata: map[string]interface{}{models.MetaTitle: "T", models.MetaURL: "U"},
		},
		Similarity: 0.7,
		Rank:       1,
	}}
}

func TestEngine_Answer_noMatchesSkipsModel(t *testing.T) {
	store := &fakeStore{}
	gen := generation.NewMockGenerator("should not be used")
	m := metrics.New()
	engine := NewEngine(embedding.NewMockEmbedder(8), store, gen, retrievalCfg, WithMetrics(m))

	res := engine.Answer(context.Background(), "Who won?")
	require.True(t, res.OK())
	assert.Equal(t, NoInformationAnswer, res.Answer)
	assert.Equal(t, "No information found.", res.Text())
	assert.Empty(t, gen.Prompts())
	assert.Equal(t, 0.5, store.threshold)
	assert.Equal(t, 5, store.limit)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnswersTotal.WithLabelValues(metrics.OutcomeNoMatch)))
}

func TestEngine_Answer_groundsPromptInContext(t *testing.T) {
	gen := generation.NewMockGenerator("According to [T](U), X.")
	engine := NewEngine(embedding.NewMockEmbedder(8), &fakeStore{matches: oneMatch()}, gen, retrievalCfg)

	res := engine.Answer(context.Background(), "  What is X?  ")
	require.NoError(t, res.Err)
	assert.Equal(t, "According to [T](U), X.", res.Text())
	assert.Len(t, res.Sources, 1)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	block := "Source: T\nLink: U\nContent: X\n---"
	assert.Contains(t, prompts[0], block)
	assert.Contains(t, prompts[0], "Question: What is X?")
}

func TestEngine_Answer_failures(t *testing.T) {
	tests := []struct {
		name     string
		embedder embedding.Embedder
		store    *fakeStore
		gen      *generation.MockGenerator
		question string
		wantKind models.ErrorKind
	}{
		{"empty question", embedding.NewMockEmbedder(8), &fakeStore{}, generation.NewMockGenerator("a"), "   ", models.KindInvalidInput},
		{"embedding", failingEmbedder{embedding.NewMockEmbedder(8)}, &fakeStore{}, generation.NewMockGenerator("a"), "q", models.KindEmbedding},
		{"store", embedding.NewMockEmbedder(8), &fakeStore{err: errors.New("connection refused")}, generation.NewMockGenerator("a"), "q", models.KindStore},
		{"generation", embedding.NewMockEmbedder(8), &fakeStore{matches: oneMatch()}, &generation.MockGenerator{Err: errors.New("rate limited")}, "q", models.KindGeneration},
		{"panic", embedding.NewMockEmbedder(8), &fakeStore{panic: true}, generation.NewMockGenerator("a"), "q", models.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			engine := NewEngine(tt.embedder, tt.store, tt.gen, retrievalCfg, WithMetrics(m))
			res := engine.Answer(context.Background(), tt.question)
			require.Error(t, res.Err)
			assert.False(t, res.OK())
			assert.Equal(t, tt.wantKind, models.KindOf(res.Err))
			assert.True(t, strings.HasPrefix(res.Text(), "Error: "), res.Text())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.AnswersTotal.WithLabelValues(metrics.OutcomeError)))
		})
	}
}

func TestEngine_Search(t *testing.T) {
	store := &fakeStore{matches: oneMatch()}
	engine := NewEngine(embedding.NewMockEmbedder(8), store, generation.NewMockGenerator(""), retrievalCfg)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: " X ", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, "X", resp.Query)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 0.5, store.threshold)
	assert.Equal(t, 50, store.limit)

	store.matches = nil
	resp, err = engine.Search(context.Background(), &models.SearchQuery{Query: "nothing", Threshold: 0.9, Limit: 3})
	require.NoError(t, err)
	assert.NotNil(t, resp.Matches)
	assert.Empty(t, resp.Matches)
	assert.Equal(t, 0.9, store.threshold)
	assert.Equal(t, 3, store.limit)

	_, err = engine.Search(context.Background(), &models.SearchQuery{Query: ""})
	assert.Equal(t, models.KindInvalidInput, models.KindOf(err))
}
