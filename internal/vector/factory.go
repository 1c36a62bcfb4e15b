package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/strata/internal/config"
)

// NewStore creates the store selected by cfg.Type.
// Supported types: "supabase" (default), "pgvector", "qdrant", "sqlite", "memory".
// timeout bounds connection setup and every Upsert and Search on the returned store.
func NewStore(ctx context.Context, cfg config.StoreConfig, dimensions int, timeout time.Duration) (Store, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var (
		s   Store
		err error
	)
	switch cfg.Type {
	case config.StoreSupabase, "":
		s, err = NewSupabaseStore(SupabaseConfig{
			URL:       cfg.Supabase.URL,
			Key:       cfg.Supabase.Key,
			Table:     cfg.Supabase.Table,
			QueryName: cfg.Supabase.QueryName,
		})
	case config.StorePostgres:
		s, err = NewPGVectorStore(ctx, PGVectorConfig{
			DSN:        cfg.Postgres.DSN,
			Table:      cfg.Postgres.Table,
			Dimensions: dimensions,
		})
	case config.StoreQdrant:
		s, err = NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			Dimensions: dimensions,
		})
	case config.StoreSQLite:
		s, err = NewSQLiteStore(cfg.SQLite.Path, dimensions)
	case config.StoreMemory:
		s, err = NewMemoryStore(dimensions)
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: supabase, pgvector, qdrant, sqlite, memory)", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Type, err)
	}
	return WithTimeout(s, timeout), nil
}
