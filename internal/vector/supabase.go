package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/supabase-community/postgrest-go"

	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/pkg/utils"
)

// SupabaseConfig configures a SupabaseStore.
type SupabaseConfig struct {
	URL       string
	Key       string
	Table     string
	QueryName string
	// Transport carries the requests; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// SupabaseStore talks to a Supabase project's PostgREST API: batched upserts into a table
// and similarity search through a SQL function called over RPC.
type SupabaseStore struct {
	restURL   string
	key       string
	table     string
	queryName string
	transport http.RoundTripper
}

type supabaseRow struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"embedding"`
}

type matchRequest struct {
	QueryEmbedding []float32 `json:"query_embedding"`
	MatchThreshold float64   `json:"match_threshold"`
	MatchCount     int       `json:"match_count"`
}

type matchRow struct {
	ID         rowID                  `json:"id"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity float64                `json:"similarity"`
}

// rowID accepts text, uuid or bigint primary keys.
type rowID string

func (id *rowID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = rowID(s)
		return nil
	}
	*id = rowID(strings.TrimSpace(string(b)))
	return nil
}

// NewSupabaseStore creates a store for the project at cfg.URL.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase url is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("supabase key is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}
	if cfg.Table == "" {
		cfg.Table = "documents"
	}
	if cfg.QueryName == "" {
		cfg.QueryName = "match_documents"
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &SupabaseStore{
		restURL:   strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		key:       cfg.Key,
		table:     cfg.Table,
		queryName: cfg.QueryName,
		transport: transport,
	}, nil
}

// client returns a PostgREST client whose requests carry ctx.
// postgrest-go keeps per-call errors on the client, so each call gets its own.
func (s *SupabaseStore) client(ctx context.Context) (*postgrest.Client, error) {
	c := postgrest.NewClient(s.restURL, "", nil)
	if c.ClientError != nil {
		return nil, c.ClientError
	}
	c.Transport.Parent = contextTransport{ctx: ctx, next: s.transport}
	return c.SetApiKey(s.key).SetAuthToken(s.key), nil
}

// Upsert inserts the batch in one request, merging rows whose id already exists.
func (s *SupabaseStore) Upsert(ctx context.Context, records []*models.StoredRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]supabaseRow, len(records))
	for i, r := range records {
		rows[i] = supabaseRow{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Embedding: r.Embedding}
		if rows[i].Metadata == nil {
			rows[i].Metadata = map[string]interface{}{}
		}
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return models.NewError(models.KindStore, "upsert", fmt.Errorf("failed to marshal rows: %w", err))
	}

	c, err := s.client(ctx)
	if err != nil {
		return models.NewError(models.KindStore, "upsert", err)
	}
	if _, _, err := c.From(s.table).Upsert(json.RawMessage(payload), "id", "minimal", "").Execute(); err != nil {
		return models.NewError(models.KindStore, "upsert", err)
	}
	return nil
}

// Search calls the match function and returns its rows as ranked matches.
func (s *SupabaseStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error) {
	c, err := s.client(ctx)
	if err != nil {
		return nil, models.NewError(models.KindStore, "search", err)
	}
	body := c.Rpc(s.queryName, "", matchRequest{QueryEmbedding: query, MatchThreshold: threshold, MatchCount: limit})
	if c.ClientError != nil {
		return nil, models.NewError(models.KindStore, "search", c.ClientError)
	}
	rows, err := decodeMatchRows(body)
	if err != nil {
		return nil, models.NewError(models.KindStore, "search", err)
	}

	matches := make([]*models.Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, &models.Match{
			Record: &models.StoredRecord{
				ID:       string(row.ID),
				Content:  row.Content,
				Metadata: row.Metadata,
			},
			Similarity: row.Similarity,
		})
	}
	return rank(matches, threshold, limit), nil
}

// decodeMatchRows decodes an RPC result. Rpc does not check the status code,
// so a PostgREST error object in place of the row array becomes an error.
func decodeMatchRows(body string) ([]matchRow, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	var rows []matchRow
	err := json.Unmarshal([]byte(body), &rows)
	if err == nil {
		return rows, nil
	}
	var e postgrest.ExecuteError
	if json.Unmarshal([]byte(body), &e) == nil && e.Message != "" {
		if e.Hint != "" {
			return nil, fmt.Errorf("(%s) %s (%s)", e.Code, e.Message, e.Hint)
		}
		return nil, fmt.Errorf("(%s) %s", e.Code, e.Message)
	}
	return nil, fmt.Errorf("unexpected match response %q: %w", utils.Truncate(body, 200), err)
}

// Close releases idle connections held by the transport.
func (s *SupabaseStore) Close() error {
	if c, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
	return nil
}

// contextTransport binds a request to ctx; postgrest-go builds its requests without one.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}
