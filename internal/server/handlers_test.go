package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/corpus"
	"github.com/hyperjump/strata/internal/embedding"
	"github.com/hyperjump/strata/internal/generation"
	"github.com/hyperjump/strata/internal/indexer"
	"github.com/hyperjump/strata/internal/metrics"
	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/internal/search"
	"github.com/hyperjump/strata/internal/vector"
)

const knownQuestion = "What is the Quad?"

type fixture struct {
	server    *Server
	handler   http.Handler
	generator *generation.MockGenerator
	store     *vector.MemoryStore
}

func newFixture(t *testing.T, mutate func(*config.Config), job func(*indexer.Indexer) *indexer.Job) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.Embedding.Provider = config.ProviderMock
	cfg.LLM.Provider = config.ProviderMock
	cfg.Store.Type = config.StoreMemory
	config.ApplyDefaults(cfg)
	if mutate != nil {
		mutate(cfg)
	}

	emb := embedding.NewMockEmbedder(256)
	store, err := vector.NewMemoryStore(256)
	require.NoError(t, err)
	vec, err := emb.Embed(context.Background(), knownQuestion)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), []*models.StoredRecord{{
		ID:        "quad-0",
		Embedding: vec,
		Content:   "The Quad is a strategic dialogue.",
		Metadata:  map[string]interface{}{models.MetaTitle: "The Quad", models.MetaURL: "https://example.com/quad"},
	}}))

	gen := generation.NewMockGenerator("According to [The Quad](https://example.com/quad), it is a dialogue.")
	m := metrics.New()
	engine := search.NewEngine(emb, store, gen, cfg.Retrieval, search.WithMetrics(m))

	var j *indexer.Job
	if job != nil {
		j = job(indexer.NewIndexer(emb, store, cfg.Ingest, cfg.Corpus.SourceTag,
			indexer.WithSleeper(func(context.Context, time.Duration) error { return nil })))
	}
	s := NewServer(engine, j, m, cfg, nil)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return &fixture{server: s, handler: s.Router(), generator: gen, store: store}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandleRoot(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"message": "Geostrata AI is Awake"}, decode[map[string]string](t, rec))
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, config.StoreMemory, body["store"])
}

func TestHandleChat_answers(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(http.MethodPost, "/chat", `{"question": "What is the Quad?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "According to [The Quad](https://example.com/quad), it is a dialogue.",
		decode[models.ChatResponse](t, rec).Answer)

	prompts := f.generator.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Source: The Quad\nLink: https://example.com/quad\nContent: The Quad is a strategic dialogue.\n---")
}

func TestHandleChat_noInformation(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(http.MethodPost, "/chat", `{"question": "Something unrelated entirely"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No information found.", decode[models.ChatResponse](t, rec).Answer)
	assert.Empty(t, f.generator.Prompts())
}

func TestHandleChat_badInput(t *testing.T) {
	f := newFixture(t, nil, nil)
	for _, body := range []string{`{"question": "   "}`, `not json`, `{}`} {
		rec := f.do(http.MethodPost, "/chat", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		resp := decode[models.ErrorResponse](t, rec)
		assert.Equal(t, string(models.KindInvalidInput), resp.Kind)
		assert.False(t, resp.Retryable)
		assert.NotEmpty(t, resp.Detail)
	}
}

func TestHandleChat_upstreamFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.generator.Err = errors.New("groq unavailable")
	rec := f.do(http.MethodPost, "/chat", `{"question": "What is the Quad?"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, string(models.KindGeneration), resp.Kind)
	assert.True(t, resp.Retryable)
	assert.Contains(t, resp.Detail, "groq unavailable")
}

func TestHandleSearch(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(http.MethodPost, "/api/v1/search", `{"query": "What is the Quad?", "limit": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.SearchResponse](t, rec)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "quad-0", resp.Matches[0].Record.ID)
	assert.Equal(t, 1, resp.Matches[0].Rank)
	assert.Empty(t, f.generator.Prompts())

	rec = f.do(http.MethodPost, "/api/v1/search", `{"query": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Server.RateLimit = 0.001
		c.Server.RateBurst = 1
	}, nil)
	first := f.do(http.MethodPost, "/chat", `{"question": "What is the Quad?"}`)
	assert.Equal(t, http.StatusOK, first.Code)
	second := f.do(http.MethodPost, "/chat", `{"question": "What is the Quad?"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	body := decode[models.ErrorResponse](t, second)
	assert.True(t, body.Retryable)
	assert.Equal(t, string(models.KindRateLimited), body.Kind)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/", "").Code, "root is not rate limited")
}

func TestCORS(t *testing.T) {
	f := newFixture(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://frontend.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.do(http.MethodPost, "/chat", `{"question": "What is the Quad?"}`)
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `strata_answers_total{outcome="answered"} 1`))
}

func TestIngestEndpoints_disabled(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Equal(t, http.StatusNotImplemented, f.do(http.MethodGet, "/api/v1/ingest", "").Code)
	assert.Equal(t, http.StatusNotImplemented, f.do(http.MethodPost, "/api/v1/ingest", "").Code)
}

func TestIngestEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	text := "Title: New\nURL: https://example.com/new\nFresh body\n" + corpus.DefaultDelimiter + "\n"
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))

	var job *indexer.Job
	f := newFixture(t, nil, func(idx *indexer.Indexer) *indexer.Job {
		job = indexer.NewJob(idx, corpus.NewParser(""), path)
		return job
	})

	rec := f.do(http.MethodPost, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	job.Wait()

	rec = f.do(http.MethodGet, "/api/v1/ingest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[indexer.JobStatus](t, rec)
	assert.False(t, st.Running)
	require.NotNil(t, st.LastReport)
	assert.Equal(t, 1, st.LastReport.StoredRecords)
	assert.Equal(t, 2, f.store.Size())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewError(models.KindInvalidInput, "", errors.New("x")), http.StatusBadRequest},
		{models.NewError(models.KindEmbedding, "", errors.New("x")), http.StatusBadGateway},
		{models.NewError(models.KindStore, "", errors.New("x")), http.StatusBadGateway},
		{models.NewError(models.KindGeneration, "", errors.New("x")), http.StatusBadGateway},
		{models.NewError(models.KindRateLimited, "", errors.New("x")), http.StatusTooManyRequests},
		{models.NewError(models.KindInternal, "", errors.New("x")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
