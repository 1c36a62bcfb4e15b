package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/corpus"
	"github.com/hyperjump/strata/internal/embedding"
	"github.com/hyperjump/strata/internal/metrics"
	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/internal/vector"
	"github.com/hyperjump/strata/pkg/utils"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Indexer embeds chunks and writes them to the vector store in paced batches.
type Indexer struct {
	embedder embedding.Embedder
	store    vector.Store
	chunker  *Chunker
	config   config.IngestConfig
	source   string
	sleep    Sleeper
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for per-batch progress.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = utils.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithSleeper replaces the pause implementation.
func WithSleeper(s Sleeper) IndexerOption {
	return func(idx *Indexer) { idx.sleep = s }
}

// NewIndexer creates an indexer. source is the tag recorded in every chunk's metadata.
func NewIndexer(
	embedder embedding.Embedder,
	store vector.Store,
	cfg config.IngestConfig,
	source string,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		embedder: embedder,
		store:    store,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		config:   cfg,
		source:   source,
		sleep:    sleepContext,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Plan chunks articles and drops chunks with no visible text.
// It returns the chunks to embed and the number skipped.
func (idx *Indexer) Plan(articles []models.Article) ([]models.Chunk, int) {
	all := idx.chunker.ChunkAll(articles, idx.source)
	chunks := all[:0]
	skipped := 0
	for _, c := range all {
		if strings.TrimSpace(c.Text) == "" {
			skipped++
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, skipped
}

// IngestFile parses the corpus at path and runs an ingestion pass over it.
func (idx *Indexer) IngestFile(ctx context.Context, parser *corpus.Parser, path string) (*models.IngestReport, error) {
	articles, err := parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	idx.logger.Info("parsed corpus", zap.String("path", path), zap.Int("articles", len(articles)))
	return idx.Run(ctx, articles)
}

// Run chunks the articles and uploads them in batches of config.BatchSize.
// A failed batch is retried up to MaxAttempts times; if it still fails it is recorded,
// the indexer waits FailurePause and continues with the next batch.
// Successful batches are followed by BatchPause. The returned error is non-nil only
// when ctx ends the pass early; the report covers the batches processed so far.
func (idx *Indexer) Run(ctx context.Context, articles []models.Article) (*models.IngestReport, error) {
	start := time.Now()
	chunks, skipped := idx.Plan(articles)
	report := &models.IngestReport{
		Articles: len(articles),
		Chunks:   len(chunks),
		Skipped:  skipped,
		Batches:  batchCount(len(chunks), idx.config.BatchSize),
	}
	idx.logger.Info("chunked corpus",
		zap.Int("articles", report.Articles),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped", report.Skipped),
		zap.Int("batches", report.Batches),
	)

	for n := 0; n < report.Batches; n++ {
		lo := n * idx.config.BatchSize
		hi := min(lo+idx.config.BatchSize, len(chunks))
		batch := chunks[lo:hi]

		attempts, err := idx.uploadBatch(ctx, batch)
		pause := idx.config.BatchPause
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				report.Duration = time.Since(start)
				return report, ctxErr
			}
			report.FailedBatches = append(report.FailedBatches, n+1)
			idx.metrics.ObserveBatch(false, 0)
			idx.logger.Error("batch failed",
				zap.Int("batch", n+1),
				zap.Int("size", len(batch)),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			pause = idx.config.FailurePause
		} else {
			report.StoredRecords += len(batch)
			idx.metrics.ObserveBatch(true, len(batch))
			idx.logger.Info("batch stored",
				zap.Int("batch", n+1),
				zap.Int("size", len(batch)),
				zap.Int("attempts", attempts),
			)
		}

		if n == report.Batches-1 {
			break
		}
		if err := idx.sleep(ctx, pause); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	idx.logger.Info("ingestion complete",
		zap.Int("stored", report.StoredRecords),
		zap.Int("failed_batches", len(report.FailedBatches)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// uploadBatch embeds and upserts one batch with bounded retry. It returns the number of attempts made.
func (idx *Indexer) uploadBatch(ctx context.Context, batch []models.Chunk) (int, error) {
	b := backoff.NewExponentialBackOff()
	if idx.config.RetryInterval > 0 {
		b.InitialInterval = idx.config.RetryInterval
	}
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		err := idx.storeBatch(ctx, batch)
		if err != nil && (ctx.Err() != nil || !retryable(err)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(idx.config.MaxAttempts, 1))),
		backoff.WithNotify(func(err error, next time.Duration) {
			idx.logger.Warn("batch attempt failed, retrying",
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	return attempts, err
}

func (idx *Indexer) storeBatch(ctx context.Context, batch []models.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	start := time.Now()
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	idx.metrics.ObserveStage(metrics.StageEmbed, start)
	if err != nil {
		return models.Classify(models.KindEmbedding, "embed batch", err)
	}
	if len(vectors) != len(batch) {
		return models.NewError(models.KindEmbedding, "embed batch",
			fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(batch)))
	}

	records := make([]*models.StoredRecord, len(batch))
	for i, c := range batch {
		records[i] = &models.StoredRecord{
			ID:        c.ID,
			Embedding: vectors[i],
			Content:   c.Text,
			Metadata:  c.Metadata.Map(),
		}
	}

	start = time.Now()
	err = idx.store.Upsert(ctx, records)
	idx.metrics.ObserveStage(metrics.StageUpsert, start)
	if err != nil {
		return models.Classify(models.KindStore, "upsert batch", err)
	}
	return nil
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	var e *models.Error
	return errors.As(err, &e) && e.Retryable()
}

func batchCount(n, size int) int {
	if n == 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
