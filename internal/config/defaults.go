package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"

	"github.com/hyperjump/strata/internal/corpus"
)

const (
	defaultTemperature  = 0.3
	defaultChunkOverlap = 200

	googleOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	groqBaseURL         = "https://api.groq.com/openai/v1"
)

// Store types accepted by store.type.
const (
	StoreSupabase = "supabase"
	StorePostgres = "pgvector"
	StoreQdrant   = "qdrant"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Provider names accepted by embedding.provider and llm.provider.
const (
	ProviderOpenAI    = "openai"
	ProviderLangchain = "langchain"
	ProviderMock      = "mock"
)

// defaultValues is the base layer Load puts under the file and the environment,
// so an explicit zero from either source survives. Base URLs and the chunk
// overlap depend on other settings and are filled in by applyDerived.
var defaultValues = map[string]interface{}{
	"request_timeout":           60 * time.Second,
	"server.host":               "0.0.0.0",
	"server.port":               8000,
	"server.allowed_origins":    []string{"*"},
	"corpus.path":               "data.txt",
	"corpus.delimiter":          corpus.DefaultDelimiter,
	"corpus.source_tag":         "The Geostrata",
	"embedding.provider":        ProviderOpenAI,
	"embedding.model":           "text-embedding-004",
	"embedding.dimensions":      768,
	"embedding.cache_size":      10000,
	"llm.provider":              ProviderOpenAI,
	"llm.model":                 "llama-3.3-70b-versatile",
	"store.type":                StoreSupabase,
	"store.supabase.table":      "documents",
	"store.supabase.query_name": "match_documents",
	"store.postgres.table":      "documents",
	"store.qdrant.host":         "localhost",
	"store.qdrant.port":         6334,
	"store.qdrant.collection":   "documents",
	"store.sqlite.path":         "./strata.db",
	"ingest.chunk_size":         1000,
	"ingest.batch_size":         5,
	"ingest.batch_pause":        3 * time.Second,
	"ingest.failure_pause":      10 * time.Second,
	"ingest.max_attempts":       1,
	"ingest.retry_interval":     2 * time.Second,
	"retrieval.match_threshold": 0.5,
	"retrieval.match_count":     5,
	"retrieval.max_match_count": 50,
}

// defaultsProvider exposes defaultValues as a koanf provider.
func defaultsProvider() *confmap.Confmap {
	return confmap.Provider(defaultValues, ".")
}

// Default returns a config holding only the default values.
func Default() *Config {
	k := koanf.New(".")
	if err := k.Load(defaultsProvider(), nil); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	applyDerived(&cfg, false, false)
	return &cfg
}

// defaultOverlap returns the overlap used when chunk_overlap is not set:
// 200 characters, or a fifth of a smaller chunk.
func defaultOverlap(chunkSize int) int {
	return min(defaultChunkOverlap, chunkSize/5)
}

// applyDerived fills settings whose default depends on other settings.
// overlapSet and burstSet report whether the operator chose those values.
func applyDerived(cfg *Config, overlapSet, burstSet bool) {
	if cfg.Embedding.BaseURL == "" && cfg.Embedding.Provider != ProviderMock {
		cfg.Embedding.BaseURL = googleOpenAIBaseURL
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider != ProviderMock {
		cfg.LLM.BaseURL = groqBaseURL
	}
	if !overlapSet {
		cfg.Ingest.ChunkOverlap = defaultOverlap(cfg.Ingest.ChunkSize)
	}
	if !burstSet && cfg.Server.RateLimit > 0 {
		cfg.Server.RateBurst = max(1, int(cfg.Server.RateLimit))
	}
}

// ApplyDefaults sets default values for any zero values in a config built in code.
// A zero cannot be told apart from unset here; Load keeps explicit zeros.
func ApplyDefaults(cfg *Config) {
	d := Default()
	setIfZero(&cfg.RequestTimeout, d.RequestTimeout)
	setIfZero(&cfg.Server.Host, d.Server.Host)
	setIfZero(&cfg.Server.Port, d.Server.Port)
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = d.Server.AllowedOrigins
	}
	setIfZero(&cfg.Corpus.Path, d.Corpus.Path)
	setIfZero(&cfg.Corpus.Delimiter, d.Corpus.Delimiter)
	setIfZero(&cfg.Corpus.SourceTag, d.Corpus.SourceTag)

	setIfZero(&cfg.Embedding.Provider, d.Embedding.Provider)
	setIfZero(&cfg.Embedding.Model, d.Embedding.Model)
	setIfZero(&cfg.Embedding.Dimensions, d.Embedding.Dimensions)
	setIfZero(&cfg.Embedding.CacheSize, d.Embedding.CacheSize)
	setIfZero(&cfg.LLM.Provider, d.LLM.Provider)
	setIfZero(&cfg.LLM.Model, d.LLM.Model)

	setIfZero(&cfg.Store.Type, d.Store.Type)
	setIfZero(&cfg.Store.Supabase.Table, d.Store.Supabase.Table)
	setIfZero(&cfg.Store.Supabase.QueryName, d.Store.Supabase.QueryName)
	setIfZero(&cfg.Store.Postgres.Table, d.Store.Postgres.Table)
	setIfZero(&cfg.Store.Qdrant.Host, d.Store.Qdrant.Host)
	setIfZero(&cfg.Store.Qdrant.Port, d.Store.Qdrant.Port)
	setIfZero(&cfg.Store.Qdrant.Collection, d.Store.Qdrant.Collection)
	setIfZero(&cfg.Store.SQLite.Path, d.Store.SQLite.Path)

	setIfZero(&cfg.Ingest.ChunkSize, d.Ingest.ChunkSize)
	setIfZero(&cfg.Ingest.BatchSize, d.Ingest.BatchSize)
	setIfZero(&cfg.Ingest.BatchPause, d.Ingest.BatchPause)
	setIfZero(&cfg.Ingest.FailurePause, d.Ingest.FailurePause)
	setIfZero(&cfg.Ingest.MaxAttempts, d.Ingest.MaxAttempts)
	setIfZero(&cfg.Ingest.RetryInterval, d.Ingest.RetryInterval)

	setIfZero(&cfg.Retrieval.MatchThreshold, d.Retrieval.MatchThreshold)
	setIfZero(&cfg.Retrieval.MatchCount, d.Retrieval.MatchCount)
	setIfZero(&cfg.Retrieval.MaxMatchCount, d.Retrieval.MaxMatchCount)

	applyDerived(cfg, cfg.Ingest.ChunkOverlap != 0, cfg.Server.RateBurst != 0)
}

func setIfZero[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate reports configuration that no component could run with.
// Provider credentials are checked when the provider is constructed.
func (c *Config) Validate() error {
	var errs []error
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize))
	}
	if c.Ingest.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("ingest.max_attempts must be at least 1, got %d", c.Ingest.MaxAttempts))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit must not be negative, got %g", c.Server.RateLimit))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("server.rate_burst must be at least 1 when rate_limit is set, got %d", c.Server.RateBurst))
	}
	if c.Retrieval.MatchThreshold < 0 || c.Retrieval.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.match_threshold must be in [0, 1], got %g", c.Retrieval.MatchThreshold))
	}
	if c.Retrieval.MatchCount <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.match_count must be positive, got %d", c.Retrieval.MatchCount))
	}
	if c.Retrieval.MaxMatchCount < c.Retrieval.MatchCount {
		errs = append(errs, fmt.Errorf("retrieval.max_match_count (%d) is below match_count (%d)",
			c.Retrieval.MaxMatchCount, c.Retrieval.MatchCount))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}
	switch c.Store.Type {
	case StoreSupabase, StorePostgres, StoreQdrant, StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.type %q", c.Store.Type))
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderLangchain, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderLangchain, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	if t := c.LLM.TemperatureOrDefault(); t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be in [0, 2], got %g", t))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Address returns the host:port the HTTP server listens on.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
