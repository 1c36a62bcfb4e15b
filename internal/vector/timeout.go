package vector

import (
	"context"
	"time"

	"github.com/hyperjump/strata/internal/models"
)

// timeoutStore bounds each Upsert and Search on the wrapped store with its own deadline,
// independent of how long the caller's context lives.
type timeoutStore struct {
	Store
	timeout time.Duration
}

// WithTimeout wraps s so every call runs under context.WithTimeout(ctx, timeout).
// A non-positive timeout returns s unchanged.
func WithTimeout(s Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return s
	}
	return &timeoutStore{Store: s, timeout: timeout}
}

// Unwrap returns the store beneath any timeout wrapper.
func Unwrap(s Store) Store {
	if t, ok := s.(*timeoutStore); ok {
		return t.Store
	}
	return s
}

func (s *timeoutStore) Upsert(ctx context.Context, records []*models.StoredRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return models.Classify(models.KindStore, "upsert", s.Store.Upsert(ctx, records))
}

func (s *timeoutStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	matches, err := s.Store.Search(ctx, query, threshold, limit)
	if err != nil {
		return nil, models.Classify(models.KindStore, "search", err)
	}
	return matches, nil
}
