package vector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPGQueries(t *testing.T) {
	q, err := newPGQueries("documents", 768)
	require.NoError(t, err)
	assert.Contains(t, q.schema, `"documents"`)
	assert.Contains(t, q.schema, "vector(768)")
	assert.Contains(t, q.upsert, "ON CONFLICT (id) DO UPDATE")
	assert.Contains(t, q.search, "1 - (embedding <=> $1)")
	assert.True(t, strings.Contains(q.search, "LIMIT $3"))
}

func TestNewPGQueries_rejectsBadInput(t *testing.T) {
	_, err := newPGQueries("docs; DROP TABLE x", 768)
	assert.Error(t, err)
	_, err = newPGQueries("documents", 0)
	assert.Error(t, err)
}

func TestNewPGVectorStore_requiresDSN(t *testing.T) {
	_, err := NewPGVectorStore(context.Background(), PGVectorConfig{Table: "documents", Dimensions: 3})
	assert.Error(t, err)
}
