// Package config provides configuration loading and structs for the strata service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug          bool            `yaml:"debug"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	Server         ServerConfig    `yaml:"server"`
	Corpus         CorpusConfig    `yaml:"corpus"`
	Embedding      EmbeddingConfig `yaml:"embedding"`
	LLM            LLMConfig       `yaml:"llm"`
	Store          StoreConfig     `yaml:"store"`
	Ingest         IngestConfig    `yaml:"ingest"`
	Retrieval      RetrievalConfig `yaml:"retrieval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// RateLimit caps question and search requests per second across all clients; 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// CorpusConfig describes the raw article file.
type CorpusConfig struct {
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter"`
	SourceTag string `yaml:"source_tag"`
}

// EmbeddingConfig selects and configures the embedding provider.
// The same settings embed corpus chunks and queries.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// LLMConfig selects and configures the answer-generation model.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// TemperatureOrDefault returns the configured temperature; defaults to 0.3 when unset.
func (l *LLMConfig) TemperatureOrDefault() float64 {
	if l.Temperature != nil {
		return *l.Temperature
	}
	return defaultTemperature
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Type     string         `yaml:"type"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Postgres PostgresConfig `yaml:"postgres"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// SupabaseConfig holds the PostgREST endpoint, key, table and match function name.
type SupabaseConfig struct {
	URL       string `yaml:"url"`
	Key       string `yaml:"key"`
	Table     string `yaml:"table"`
	QueryName string `yaml:"query_name"`
}

// PostgresConfig holds a direct pgvector connection.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// SQLiteConfig holds the local database path.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig holds chunking and batch upload settings.
type IngestConfig struct {
	ChunkSize     int           `yaml:"chunk_size"`
	ChunkOverlap  int           `yaml:"chunk_overlap"`
	BatchSize     int           `yaml:"batch_size"`
	BatchPause    time.Duration `yaml:"batch_pause"`
	FailurePause  time.Duration `yaml:"failure_pause"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// RetrievalConfig holds similarity search settings.
type RetrievalConfig struct {
	MatchThreshold float64 `yaml:"match_threshold"`
	MatchCount     int     `yaml:"match_count"`
	MaxMatchCount  int     `yaml:"max_match_count"`
}

// envKeys maps recognized environment variables to config keys.
var envKeys = map[string]string{
	"STRATA_DEBUG":         "debug",
	"REQUEST_TIMEOUT":      "request_timeout",
	"SERVER_HOST":          "server.host",
	"SERVER_PORT":          "server.port",
	"RATE_LIMIT":           "server.rate_limit",
	"RATE_BURST":           "server.rate_burst",
	"CORPUS_PATH":          "corpus.path",
	"SOURCE_TAG":           "corpus.source_tag",
	"EMBEDDING_PROVIDER":   "embedding.provider",
	"EMBEDDING_BASE_URL":   "embedding.base_url",
	"EMBEDDING_API_KEY":    "embedding.api_key",
	"GOOGLE_API_KEY":       "embedding.api_key",
	"EMBEDDING_MODEL":      "embedding.model",
	"EMBEDDING_DIMENSIONS": "embedding.dimensions",
	"EMBEDDING_CACHE_SIZE": "embedding.cache_size",
	"LLM_PROVIDER":         "llm.provider",
	"LLM_BASE_URL":         "llm.base_url",
	"LLM_API_KEY":          "llm.api_key",
	"GROQ_API_KEY":         "llm.api_key",
	"LLM_MODEL":            "llm.model",
	"LLM_TEMPERATURE":      "llm.temperature",
	"VECTOR_STORE":         "store.type",
	"SUPABASE_URL":         "store.supabase.url",
	"SUPABASE_KEY":         "store.supabase.key",
	"SUPABASE_TABLE":       "store.supabase.table",
	"SUPABASE_QUERY_NAME":  "store.supabase.query_name",
	"DATABASE_URL":         "store.postgres.dsn",
	"QDRANT_HOST":          "store.qdrant.host",
	"QDRANT_PORT":          "store.qdrant.port",
	"QDRANT_API_KEY":       "store.qdrant.api_key",
	"QDRANT_COLLECTION":    "store.qdrant.collection",
	"SQLITE_PATH":          "store.sqlite.path",
	"CHUNK_SIZE":           "ingest.chunk_size",
	"CHUNK_OVERLAP":        "ingest.chunk_overlap",
	"BATCH_SIZE":           "ingest.batch_size",
	"BATCH_PAUSE":          "ingest.batch_pause",
	"FAILURE_PAUSE":        "ingest.failure_pause",
	"MAX_ATTEMPTS":         "ingest.max_attempts",
	"RETRY_INTERVAL":       "ingest.retry_interval",
	"MATCH_THRESHOLD":      "retrieval.match_threshold",
	"MATCH_COUNT":          "retrieval.match_count",
}

// shadowedBy lists provider-specific variables that lose to their generic counterpart when both are set.
var shadowedBy = map[string]string{
	"GOOGLE_API_KEY": "EMBEDDING_API_KEY",
	"GROQ_API_KEY":   "LLM_API_KEY",
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into the process
// environment without overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the optional YAML file at path, overlays recognized environment variables
// on top of the defaults, and validates the result. An empty path skips the file.
// Values set explicitly, zero included, override the defaults.
func Load(path string) (*Config, error) {
	set := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := set.Load(rawbytes.Provider(data), koanfyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := set.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(defaultsProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Merge(set); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDerived(&cfg, set.Exists("ingest.chunk_overlap"), set.Exists("server.rate_burst"))

	configDir := "."
	if path != "" {
		configDir = filepath.Dir(path)
	}
	cfg.Corpus.Path = expandPath(cfg.Corpus.Path, configDir)
	cfg.Store.SQLite.Path = expandPath(cfg.Store.SQLite.Path, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey translates an environment variable name to a config key; "" drops the variable.
func envKey(name string) string {
	key, ok := envKeys[name]
	if !ok {
		return ""
	}
	if generic, shadowed := shadowedBy[name]; shadowed && os.Getenv(generic) != "" {
		return ""
	}
	return key
}

// Save writes the config to path as YAML. Used by "strata config init".
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath resolves "./" paths against configDir and "~/" paths against the home directory.
// Other paths are returned unchanged.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
