package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/pkg/utils"
)

// MemoryStore is an in-memory store using brute-force cosine search.
// Suitable for tests and dry runs.
type MemoryStore struct {
	dimensions int
	order      []string
	records    map[string]*models.StoredRecord
	mu         sync.RWMutex
}

// NewMemoryStore creates an in-memory store with the given dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		dimensions: dimensions,
		records:    make(map[string]*models.StoredRecord),
	}, nil
}

// Upsert stores copies of records, replacing any with the same ID.
func (m *MemoryStore) Upsert(ctx context.Context, records []*models.StoredRecord) error {
	for _, r := range records {
		if len(r.Embedding) != m.dimensions {
			return models.NewError(models.KindStore, "upsert",
				fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Embedding), m.dimensions))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		rec := *r
		rec.Embedding = append([]float32(nil), r.Embedding...)
		if _, ok := m.records[rec.ID]; !ok {
			m.order = append(m.order, rec.ID)
		}
		m.records[rec.ID] = &rec
	}
	return nil
}

// Search scores every record against query.
func (m *MemoryStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error) {
	if len(query) != m.dimensions {
		return nil, models.NewError(models.KindStore, "search",
			fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions))
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]*models.Match, 0, len(m.order))
	for _, id := range m.order {
		rec := *m.records[id]
		matches = append(matches, &models.Match{Record: &rec, Similarity: utils.CosineSimilarity(query, rec.Embedding)})
	}
	return rank(matches, threshold, limit), nil
}

// Size returns the number of stored records.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
