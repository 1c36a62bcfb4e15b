package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/corpus"
	"github.com/hyperjump/strata/internal/embedding"
	"github.com/hyperjump/strata/internal/metrics"
	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/internal/vector"
)

type recordingStore struct {
	batches [][]*models.StoredRecord
	calls   int
	failOn  map[int]error
}

func (s *recordingStore) Upsert(ctx context.Context, records []*models.StoredRecord) error {
	s.calls++
	if err := s.failOn[s.calls]; err != nil {
		return err
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *recordingStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error) {
	return nil, nil
}

func (s *recordingStore) Close() error { return nil }

func (s *recordingStore) sizes() []int {
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

type pauses []time.Duration

func (p *pauses) sleep(ctx context.Context, d time.Duration) error {
	*p = append(*p, d)
	return nil
}

var testIngest = config.IngestConfig{
	ChunkSize:     1000,
	ChunkOverlap:  200,
	BatchSize:     5,
	BatchPause:    3 * time.Second,
	FailurePause:  10 * time.Second,
	MaxAttempts:   1,
	RetryInterval: time.Millisecond,
}

func articles(n int) []models.Article {
	out := make([]models.Article, n)
	for i := range out {
		out[i] = models.Article{
			Title: fmt.Sprintf("Article %d", i),
			URL:   fmt.Sprintf("https://example.com/%d", i),
			Body:  fmt.Sprintf("Body of article %d.", i),
		}
	}
	return out
}

func TestIndexer_Run_batchesAndPauses(t *testing.T) {
	store := &recordingStore{}
	var p pauses
	m := metrics.New()
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "The Geostrata",
		WithSleeper(p.sleep), WithMetrics(m))

	report, err := idx.Run(context.Background(), articles(12))
	require.NoError(t, err)

	assert.Equal(t, []int{5, 5, 2}, store.sizes())
	assert.Equal(t, pauses{3 * time.Second, 3 * time.Second}, p)
	assert.Equal(t, 12, report.Articles)
	assert.Equal(t, 12, report.Chunks)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 12, report.StoredRecords)
	assert.True(t, report.Complete())
	assert.Equal(t, 12.0, testutil.ToFloat64(m.RecordsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(metrics.BatchStored)))
}

func TestIndexer_Run_recordsCarryMetadata(t *testing.T) {
	store := &recordingStore{}
	var p pauses
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "The Geostrata", WithSleeper(p.sleep))

	_, err := idx.Run(context.Background(), articles(1))
	require.NoError(t, err)
	require.Len(t, store.batches, 1)
	rec := store.batches[0][0]
	assert.Equal(t, "Body of article 0.", rec.Content)
	assert.Len(t, rec.Embedding, 8)
	assert.Equal(t, map[string]interface{}{
		models.MetaTitle:  "Article 0",
		models.MetaURL:    "https://example.com/0",
		models.MetaSource: "The Geostrata",
	}, rec.Metadata)
	assert.Len(t, rec.ID, 64)
	assert.Empty(t, p)
}

func TestIndexer_Run_failedBatchIsSkipped(t *testing.T) {
	store := &recordingStore{failOn: map[int]error{2: errors.New("429 too many requests")}}
	var p pauses
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "src", WithSleeper(p.sleep))

	report, err := idx.Run(context.Background(), articles(12))
	require.NoError(t, err)

	assert.Equal(t, 3, store.calls)
	assert.Equal(t, []int{5, 2}, store.sizes())
	assert.Equal(t, []int{2}, report.FailedBatches)
	assert.Equal(t, 7, report.StoredRecords)
	assert.True(t, report.Partial())
	assert.Equal(t, pauses{3 * time.Second, 10 * time.Second}, p)
}

func TestIndexer_Run_allBatchesFail(t *testing.T) {
	boom := errors.New("unauthorized")
	store := &recordingStore{failOn: map[int]error{1: boom, 2: boom}}
	var p pauses
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "src", WithSleeper(p.sleep))

	report, err := idx.Run(context.Background(), articles(6))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, report.FailedBatches)
	assert.False(t, report.Partial())
	assert.False(t, report.Complete())
	assert.Zero(t, report.StoredRecords)
}

func TestIndexer_Run_retriesBatch(t *testing.T) {
	cfg := testIngest
	cfg.MaxAttempts = 3
	store := &recordingStore{failOn: map[int]error{1: errors.New("connection reset")}}
	var p pauses
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, cfg, "src", WithSleeper(p.sleep))

	report, err := idx.Run(context.Background(), articles(3))
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
	assert.True(t, report.Complete())
	assert.Equal(t, 3, report.StoredRecords)
}

func TestIndexer_Run_doesNotRetryPermanentFailure(t *testing.T) {
	cfg := testIngest
	cfg.MaxAttempts = 3
	bad := models.NewError(models.KindInvalidInput, "upsert", errors.New("bad row"))
	store := &recordingStore{failOn: map[int]error{1: bad}}
	var p pauses
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, cfg, "src", WithSleeper(p.sleep))

	report, err := idx.Run(context.Background(), articles(3))
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, []int{1}, report.FailedBatches)
}

func TestIndexer_Run_skipsBlankChunks(t *testing.T) {
	store := &recordingStore{}
	var p pauses
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "src", WithSleeper(p.sleep))

	report, err := idx.Run(context.Background(), []models.Article{
		{Title: "Header only", URL: "u"},
		{Title: "Real", Body: "text"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, []int{1}, store.sizes())
}

func TestIndexer_Run_emptyCorpus(t *testing.T) {
	store := &recordingStore{}
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "src")
	report, err := idx.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Batches)
	assert.True(t, report.Complete())
	assert.Zero(t, store.calls)
}

func TestIndexer_Run_cancelledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &recordingStore{}
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "src",
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	report, err := idx.Run(ctx, articles(12))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 5, report.StoredRecords)
}

func TestIndexer_Run_rerunIsIdempotent(t *testing.T) {
	store, err := vector.NewMemoryStore(8)
	require.NoError(t, err)
	var p pauses
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "src", WithSleeper(p.sleep))

	_, err = idx.Run(context.Background(), articles(7))
	require.NoError(t, err)
	_, err = idx.Run(context.Background(), articles(7))
	require.NoError(t, err)
	assert.Equal(t, 7, store.Size())
}

func TestIndexer_IngestFile(t *testing.T) {
	corpusText := "Title: A\nURL: u1\nBody1\n" + corpus.DefaultDelimiter + "\nTitle: B\nURL: u2\nBody2\n"
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(corpusText), 0644))

	store := &recordingStore{}
	var p pauses
	idx := NewIndexer(embedding.NewMockEmbedder(8), store, testIngest, "src", WithSleeper(p.sleep))

	report, err := idx.IngestFile(context.Background(), corpus.NewParser(""), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Articles)
	require.Len(t, store.batches, 1)
	assert.Equal(t, "Body1", store.batches[0][0].Content)
	assert.Equal(t, "B", store.batches[0][1].MetaString(models.MetaTitle))

	_, err = idx.IngestFile(context.Background(), corpus.NewParser(""), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Equal(t, models.KindParse, models.KindOf(err))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepContext(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled), err)
	assert.False(t, strings.Contains(err.Error(), "deadline"))
}
