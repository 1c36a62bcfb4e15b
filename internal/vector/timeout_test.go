package vector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/models"
)

// stalledStore never answers until its context ends, like a hung database connection.
type stalledStore struct{}

func (stalledStore) Upsert(ctx context.Context, _ []*models.StoredRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledStore) Search(ctx context.Context, _ []float32, _ float64, _ int) ([]*models.Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledStore) Close() error { return nil }

func TestWithTimeout_boundsEachCall(t *testing.T) {
	s := WithTimeout(stalledStore{}, 50*time.Millisecond)

	done := make(chan error, 2)
	go func() {
		_, err := s.Search(context.Background(), []float32{1}, 0.5, 5)
		done <- err
	}()
	go func() {
		done <- s.Upsert(context.Background(), []*models.StoredRecord{record("a", "x", 1)})
	}()

	for range 2 {
		select {
		case err := <-done:
			require.Error(t, err)
			assert.True(t, errors.Is(err, context.DeadlineExceeded))
			assert.Equal(t, models.KindStore, models.KindOf(err))
		case <-time.After(2 * time.Second):
			t.Fatal("store call still blocked after 2s")
		}
	}
}

func TestWithTimeout_callerCancelWins(t *testing.T) {
	s := WithTimeout(stalledStore{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, []float32{1}, 0.5, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeout_passesResultsThrough(t *testing.T) {
	mem, err := NewMemoryStore(3)
	require.NoError(t, err)
	s := WithTimeout(mem, time.Second)

	require.NoError(t, s.Upsert(context.Background(), []*models.StoredRecord{record("a", "alpha", 1, 0, 0)}))
	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 0.5, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].Record.ID)
}

func TestWithTimeout_zeroIsNoop(t *testing.T) {
	mem, err := NewMemoryStore(3)
	require.NoError(t, err)
	assert.Same(t, mem, WithTimeout(mem, 0))
	assert.Same(t, mem, Unwrap(mem))
}

func TestNewStore_appliesTimeout(t *testing.T) {
	s, err := NewStore(context.Background(), config.StoreConfig{Type: config.StoreMemory}, 3, time.Second)
	require.NoError(t, err)
	defer s.Close()

	_, wrapped := s.(*timeoutStore)
	assert.True(t, wrapped, "store should carry a per-call timeout, got %T", s)
	_, ok := Unwrap(s).(*MemoryStore)
	assert.True(t, ok)
}
