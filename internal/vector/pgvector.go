package vector

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/hyperjump/strata/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorConfig configures a PGVectorStore.
type PGVectorConfig struct {
	DSN        string
	Table      string
	Dimensions int
}

// PGVectorStore stores records in a Postgres table with a pgvector column and
// searches with the cosine distance operator.
type PGVectorStore struct {
	pool    *pgxpool.Pool
	queries pgQueries
}

type pgQueries struct {
	extension string
	schema    string
	upsert    string
	search    string
}

func newPGQueries(table string, dimensions int) (pgQueries, error) {
	if !identifierPattern.MatchString(table) {
		return pgQueries{}, fmt.Errorf("invalid table name %q", table)
	}
	if dimensions <= 0 {
		return pgQueries{}, fmt.Errorf("dimensions must be positive")
	}
	t := pgx.Identifier{table}.Sanitize()
	return pgQueries{
		extension: `CREATE EXTENSION IF NOT EXISTS vector`,
		schema: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t, dimensions),
		upsert: fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding,
				updated_at = EXCLUDED.updated_at`, t),
		search: fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
			FROM %s
			WHERE 1 - (embedding <=> $1) >= $2
			ORDER BY embedding <=> $1
			LIMIT $3`, t),
	}, nil
}

// NewPGVectorStore connects to cfg.DSN, creates the vector extension and table if missing,
// and registers the vector codec on every pooled connection.
func NewPGVectorStore(ctx context.Context, cfg PGVectorConfig) (*PGVectorStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	queries, err := newPGQueries(cfg.Table, cfg.Dimensions)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	_, err = conn.Exec(ctx, queries.extension)
	_ = conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if _, err := pool.Exec(ctx, queries.schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PGVectorStore{pool: pool, queries: queries}, nil
}

// Upsert writes the batch in one transaction.
func (s *PGVectorStore) Upsert(ctx context.Context, records []*models.StoredRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.upsert(ctx, records); err != nil {
		return models.NewError(models.KindStore, "upsert", err)
	}
	return nil
}

func (s *PGVectorStore) upsert(ctx context.Context, records []*models.StoredRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		batch.Queue(s.queries.upsert, r.ID, r.Content, meta, pgvector.NewVector(r.Embedding))
	}
	br := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Search runs the cosine query in the database.
func (s *PGVectorStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error) {
	rows, err := s.pool.Query(ctx, s.queries.search, pgvector.NewVector(query), threshold, limit)
	if err != nil {
		return nil, models.NewError(models.KindStore, "search", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		var (
			rec   models.StoredRecord
			score float64
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.Metadata, &score); err != nil {
			return nil, models.NewError(models.KindStore, "search", err)
		}
		matches = append(matches, &models.Match{Record: &rec, Similarity: score})
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewError(models.KindStore, "search", err)
	}
	return rank(matches, threshold, limit), nil
}

// Close closes the pool.
func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}
