// Package chunkid provides deterministic record IDs for corpus chunks, so that
// re-ingesting the same corpus overwrites rows instead of duplicating them.
package chunkid

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

// ChunkID returns a stable ID for the chunk at index within the article identified by url and title.
// Same inputs always yield the same ID.
func ChunkID(url, title string, index int, text string) string {
	h := sha256.New()
	for _, part := range []string{url, title, strconv.Itoa(index), text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// UUID maps an ID to a name-based UUID for stores that only accept UUID or integer point IDs.
func UUID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("strata:"+id)).String()
}
