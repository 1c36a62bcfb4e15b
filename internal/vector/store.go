// Package vector provides vector stores for embedded chunks and a factory for creating them.
package vector

import (
	"context"
	"encoding/binary"
	"math"
	"sort"

	"github.com/hyperjump/strata/internal/models"
)

// Store persists embedded chunks and answers similarity queries.
type Store interface {
	// Upsert writes records keyed by ID; an existing ID is overwritten.
	Upsert(ctx context.Context, records []*models.StoredRecord) error
	// Search returns records with cosine similarity >= threshold, best first, at most limit.
	// No match is an empty result, not an error.
	Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error)
	Close() error
}

// rank filters matches below threshold, sorts by descending similarity, truncates to limit,
// and assigns 1-based ranks.
func rank(matches []*models.Match, threshold float64, limit int) []*models.Match {
	kept := matches[:0]
	for _, m := range matches {
		if m.Similarity >= threshold {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Similarity > kept[j].Similarity })
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	for i, m := range kept {
		m.Rank = i + 1
	}
	return kept
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
