// Package indexer provides article chunking and the batched ingestion pipeline.
package indexer

import (
	"strings"
	"unicode"

	"github.com/hyperjump/strata/internal/chunkid"
	"github.com/hyperjump/strata/internal/models"
)

// Chunker splits article bodies into overlapping character windows.
// Sizes are counted in runes. Adjacent chunks of one body share exactly overlap runes.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// Overlap is clamped to [0, chunkSize).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits the article body and tags every chunk with the article's metadata.
func (c *Chunker) Chunk(a models.Article, source string) []models.Chunk {
	meta := a.Metadata(source)
	texts := c.Split(a.Body)
	chunks := make([]models.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, models.Chunk{
			ID:         chunkid.ChunkID(a.URL, a.Title, i, text),
			Text:       text,
			ChunkIndex: i,
			Metadata:   meta,
		})
	}
	return chunks
}

// ChunkAll chunks every article in order.
func (c *Chunker) ChunkAll(articles []models.Article, source string) []models.Chunk {
	var chunks []models.Chunk
	for _, a := range articles {
		chunks = append(chunks, c.Chunk(a, source)...)
	}
	return chunks
}

// Split returns the chunk texts for body. A body no longer than the chunk size,
// including an empty one, yields exactly one chunk.
func (c *Chunker) Split(body string) []string {
	r := []rune(body)
	n := len(r)
	if n <= c.chunkSize {
		return []string{body}
	}

	var out []string
	start := 0
	for n-start > c.chunkSize {
		end := c.cut(r, start)
		out = append(out, string(r[start:end]))
		start = end - c.chunkOverlap
	}
	return append(out, string(r[start:]))
}

// cut picks the end of the chunk starting at start, in (start+overlap, start+size].
func (c *Chunker) cut(r []rune, start int) int {
	hi := start + c.chunkSize
	lo := start + c.chunkOverlap + 1
	for _, at := range []func([]rune, int) bool{paragraphEnd, sentenceEnd, wordEnd} {
		for end := hi; end >= lo; end-- {
			if at(r, end) {
				return end
			}
		}
	}
	return hi
}

func paragraphEnd(r []rune, end int) bool {
	return end >= 2 && r[end-1] == '\n' && r[end-2] == '\n'
}

func sentenceEnd(r []rune, end int) bool {
	if r[end-1] == '\n' {
		return true
	}
	return end >= 2 && unicode.IsSpace(r[end-1]) && strings.ContainsRune(".!?", r[end-2])
}

func wordEnd(r []rune, end int) bool {
	return unicode.IsSpace(r[end-1])
}
