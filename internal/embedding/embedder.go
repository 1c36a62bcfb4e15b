// Package embedding provides text embedding via OpenAI-compatible APIs and caching.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/strata/internal/models"
)

// Embedder produces vector embeddings for text.
// The same Embedder must serve both corpus chunks and queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// checkVectors verifies one vector per input, each of the expected dimension (0 skips the check).
func checkVectors(op string, vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return models.NewError(models.KindEmbedding, op, fmt.Errorf("got %d embeddings for %d texts", len(vectors), want))
	}
	if dims <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dims {
			return models.NewError(models.KindEmbedding, op, fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), dims))
		}
	}
	return nil
}
