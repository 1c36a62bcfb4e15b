package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/pkg/utils"
)

// SQLiteStore keeps records in a local SQLite file and searches them by brute-force cosine.
// Suitable for a single-node deployment of a modest corpus.
type SQLiteStore struct {
	db         *sql.DB
	dimensions int
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, dimensions int) (*SQLiteStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dimensions: dimensions}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert writes all records in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, records []*models.StoredRecord) error {
	if err := s.upsert(ctx, records); err != nil {
		return models.NewError(models.KindStore, "upsert", err)
	}
	return nil
}

func (s *SQLiteStore) upsert(ctx context.Context, records []*models.StoredRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, content, metadata, embedding, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   content = excluded.content,
		   metadata = excluded.metadata,
		   embedding = excluded.embedding,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range records {
		if len(r.Embedding) != s.dimensions {
			return fmt.Errorf("record %s: vector dimension mismatch: got %d, expected %d", r.ID, len(r.Embedding), s.dimensions)
		}
		metadataJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Content, string(metadataJSON), float32SliceToBytes(r.Embedding), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search loads every stored embedding and ranks by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error) {
	if len(query) != s.dimensions {
		return nil, models.NewError(models.KindStore, "search",
			fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), s.dimensions))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM documents`)
	if err != nil {
		return nil, models.NewError(models.KindStore, "search", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		var (
			rec          models.StoredRecord
			metadataJSON sql.NullString
			blob         []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &metadataJSON, &blob); err != nil {
			return nil, models.NewError(models.KindStore, "search", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
				return nil, models.NewError(models.KindStore, "search", fmt.Errorf("failed to unmarshal metadata: %w", err))
			}
		}
		rec.Embedding = bytesToFloat32Slice(blob)
		score := utils.CosineSimilarity(query, rec.Embedding)
		if score < threshold {
			continue
		}
		matches = append(matches, &models.Match{Record: &rec, Similarity: score})
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewError(models.KindStore, "search", err)
	}
	return rank(matches, threshold, limit), nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
