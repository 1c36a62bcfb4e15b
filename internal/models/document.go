// Package models defines core data structures for articles, chunks, stored records, and results.
package models

// Metadata keys shared by chunks and stored records.
const (
	MetaTitle  = "title"
	MetaURL    = "url"
	MetaDate   = "date"
	MetaSource = "source"
)

// Article is one delimited block of the raw corpus.
type Article struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date,omitempty"`
	Body  string `json:"body"`
}

// Metadata returns the citation metadata for the article tagged with source.
func (a Article) Metadata(source string) Metadata {
	return Metadata{Title: a.Title, URL: a.URL, Date: a.Date, Source: source}
}

// Metadata is the citation information copied into every chunk of an article.
type Metadata struct {
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Date   string `json:"date,omitempty"`
	Source string `json:"source,omitempty"`
}

// Map returns the metadata as the key/value payload persisted with a record.
// Empty fields are omitted.
func (m Metadata) Map() map[string]interface{} {
	out := make(map[string]interface{}, 4)
	if m.Title != "" {
		out[MetaTitle] = m.Title
	}
	if m.URL != "" {
		out[MetaURL] = m.URL
	}
	if m.Date != "" {
		out[MetaDate] = m.Date
	}
	if m.Source != "" {
		out[MetaSource] = m.Source
	}
	return out
}

// Chunk is a bounded slice of an article body, the unit of embedding and retrieval.
type Chunk struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	ChunkIndex int      `json:"chunk_index"`
	Metadata   Metadata `json:"metadata"`
}

// StoredRecord is what the vector store persists for each chunk.
type StoredRecord struct {
	ID        string                 `json:"id"`
	Embedding []float32              `json:"-"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// MetaString returns metadata[key] as a string, or "" when absent or not a string.
func (r *StoredRecord) MetaString(key string) string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata[key].(string)
	return s
}
