package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/strata/internal/config"
)

func TestNewStore_Memory(t *testing.T) {
	s, err := NewStore(context.Background(), config.StoreConfig{Type: config.StoreMemory}, 3, 0)
	if err != nil {
		t.Fatalf("NewStore(memory): %v", err)
	}
	defer s.Close()
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}
}

func TestNewStore_SQLite(t *testing.T) {
	cfg := config.StoreConfig{Type: config.StoreSQLite, SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "s.db")}}
	s, err := NewStore(context.Background(), cfg, 3, 0)
	if err != nil {
		t.Fatalf("NewStore(sqlite): %v", err)
	}
	defer s.Close()
}

func TestNewStore_SupabaseRequiresCredentials(t *testing.T) {
	s, err := NewStore(context.Background(), config.StoreConfig{Type: config.StoreSupabase}, 3, 0)
	if err == nil {
		t.Error("expected error without url and key")
	}
	if s != nil {
		t.Errorf("store should be nil on error, got %T", s)
	}
}

func TestNewStore_Unknown(t *testing.T) {
	_, err := NewStore(context.Background(), config.StoreConfig{Type: "pinecone"}, 3, 0)
	if err == nil {
		t.Error("expected error for unknown store type")
	}
}

func TestNewStore_InvalidDimension(t *testing.T) {
	_, err := NewStore(context.Background(), config.StoreConfig{Type: config.StoreMemory}, 0, 0)
	if err == nil {
		t.Error("expected error for zero dimension")
	}
}
