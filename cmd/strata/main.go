// Package main is the Strata CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/strata/internal/cli"
	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/corpus"
	"github.com/hyperjump/strata/internal/embedding"
	"github.com/hyperjump/strata/internal/generation"
	"github.com/hyperjump/strata/internal/indexer"
	"github.com/hyperjump/strata/internal/metrics"
	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/internal/search"
	"github.com/hyperjump/strata/internal/server"
	"github.com/hyperjump/strata/internal/vector"
	"github.com/hyperjump/strata/internal/watcher"
	"github.com/hyperjump/strata/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	configEnvVar      = "STRATA_CONFIG"
	localConfigPath   = "strata.yaml"
	shutdownTimeout   = 10 * time.Second
	defaultConfigInit = "strata.yaml"
)

// resolveConfigPath picks the config file: the explicit flag, then $STRATA_CONFIG, then
// ./strata.yaml when it exists. An empty result means environment-only configuration.
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(configEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(localConfigPath); err == nil {
		return localConfigPath
	}
	return ""
}

// loadConfig loads .env, then the resolved config file and environment overrides.
// Returns the config and the path that was actually loaded ("" for none).
func loadConfig(flagPath string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}
	path := resolveConfigPath(flagPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "config":
		runConfig()
	case "version", "--version", "-v":
		fmt.Printf("strata version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger shared by every subcommand.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("store", cfg.Store.Type),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("llm_model", cfg.LLM.Model),
	)
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (default: $STRATA_CONFIG or ./strata.yaml)")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "re-ingest the corpus whenever the file changes")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if *watch {
		w, err := startCorpusWatcher(ctx, components.Job, logger)
		if err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, components.Job, components.Metrics, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	components.Job.Wait()
}

// startCorpusWatcher triggers an ingestion pass whenever the corpus file is written.
// A change that arrives while a pass is running is logged and dropped.
func startCorpusWatcher(ctx context.Context, job *indexer.Job, logger *zap.Logger) (*watcher.Watcher, error) {
	path := job.Status().Corpus
	w, err := watcher.NewWatcher([]string{path}, func(changed string) {
		if !job.Trigger(ctx) {
			logger.Warn("corpus changed during ingestion; change ignored", zap.String("path", changed))
			return
		}
		logger.Info("corpus changed; ingestion started", zap.String("path", changed))
	}, watcher.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func printIngestUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: strata ingest [flags]\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Exit status is 0 when every batch was stored, 2 when some batches failed and 1 when all failed.

Examples:
  strata ingest
  strata ingest --corpus ./data.txt --format json
  strata ingest --dry-run                 # parse and chunk only
  strata ingest --watch                   # ingest, then re-ingest on every change
`)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	corpusPath := fs.String("corpus", "", "corpus file (default from config)")
	watch := fs.Bool("watch", false, "keep running and re-ingest when the corpus changes")
	dryRun := fs.Bool("dry-run", false, "parse and chunk without embedding or storing")
	outputFormat := fs.String("format", "text", "output format: text or json")
	fs.Usage = func() { printIngestUsage(fs) }
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *corpusPath != "" {
		cfg.Corpus.Path = *corpusPath
	}

	if *dryRun {
		report, err := planCorpus(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteIngestReport(os.Stdout, report, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Job.Run(ctx)
	if report != nil {
		if werr := cli.WriteIngestReport(os.Stdout, report, format); werr != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", werr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	if !*watch {
		if code := cli.IngestExitCode(report); code != 0 {
			os.Exit(code)
		}
		return
	}

	w, err := startCorpusWatcher(ctx, components.Job, logger)
	if err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()
	logger.Info("watching corpus", zap.Strings("files", w.Files()))
	<-ctx.Done()
	components.Job.Wait()
}

// planCorpus parses and chunks the corpus without touching any provider.
func planCorpus(cfg *config.Config) (*models.IngestReport, error) {
	articles, err := corpus.NewParser(cfg.Corpus.Delimiter).ParseFile(cfg.Corpus.Path)
	if err != nil {
		return nil, err
	}
	idx := indexer.NewIndexer(nil, nil, cfg.Ingest, cfg.Corpus.SourceTag)
	chunks, skipped := idx.Plan(articles)
	return &models.IngestReport{
		Articles: len(articles),
		Chunks:   len(chunks),
		Skipped:  skipped,
		Batches:  (len(chunks) + cfg.Ingest.BatchSize - 1) / cfg.Ingest.BatchSize,
	}, nil
}

// reorderArgs moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse sees them. Go's flag package stops at
// the first non-flag argument, so `strata ask "question" --format json` would
// otherwise leave --format unparsed.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args with spaces so multi-word input works with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("format", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: strata ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	question := joinArgs(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	res := components.Engine.Answer(ctx, question)
	if err := cli.WriteAnswer(os.Stdout, question, res, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if !res.OK() {
		os.Exit(1)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	limit := fs.Int("limit", 0, "number of matches (default from config)")
	threshold := fs.Float64("threshold", 0, "minimum similarity in [0,1] (default from config)")
	outputFormat := fs.String("format", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: strata search [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	queryStr := joinArgs(fs.Args())
	if queryStr == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	response, err := components.Engine.Search(ctx, &models.SearchQuery{
		Query:     queryStr,
		Threshold: *threshold,
		Limit:     *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runConfig() {
	if len(os.Args) < 3 || os.Args[2] != "init" {
		fmt.Println("Usage: strata config init [path]")
		os.Exit(1)
	}
	path := defaultConfigInit
	if len(os.Args) > 3 {
		path = os.Args[3]
	}
	if err := writeDefaultConfig(path); err != nil {
		fmt.Printf("Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", path)
}

// writeDefaultConfig writes a config holding every default to path. It refuses to overwrite.
// Secrets are left empty; they are expected from the environment.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return config.Save(path, config.Default())
}

// Components holds initialized services.
type Components struct {
	Embedder  embedding.Embedder
	Store     vector.Store
	Generator generation.Generator
	Metrics   *metrics.Metrics
	Engine    *search.Engine
	Indexer   *indexer.Indexer
	Job       *indexer.Job
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents builds the provider clients once and hands them to both pipelines.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder, err := embedding.NewEmbedder(cfg.Embedding, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	store, err := vector.NewStore(ctx, cfg.Store, embedder.Dimensions(), cfg.RequestTimeout)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	generator, err := generation.NewGenerator(cfg.LLM, cfg.RequestTimeout)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	m := metrics.New()
	logger.Info("components initialized",
		zap.String("store", cfg.Store.Type),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", embedder.Dimensions()),
		zap.String("llm_model", generator.Model()),
	)

	engine := search.NewEngine(embedder, store, generator, cfg.Retrieval,
		search.WithLogger(logger),
		search.WithMetrics(m),
	)
	idx := indexer.NewIndexer(embedder, store, cfg.Ingest, cfg.Corpus.SourceTag,
		indexer.WithLogger(logger),
		indexer.WithMetrics(m),
	)
	job := indexer.NewJob(idx, corpus.NewParser(cfg.Corpus.Delimiter), cfg.Corpus.Path)

	return &Components{
		Embedder:  embedder,
		Store:     store,
		Generator: generator,
		Metrics:   m,
		Engine:    engine,
		Indexer:   idx,
		Job:       job,
	}, nil
}

func printUsage() {
	fmt.Println(`strata - Geostrata AI retrieval-augmented question answering

Usage:
  strata server [flags]             Start the HTTP server
  strata ingest [flags]             Parse, chunk, embed and store the corpus
  strata ask [flags] <question>     Answer a question with citations
  strata search [flags] <query>     Show matching chunks without calling the model
  strata config init [path]         Write a default config file (default: ./strata.yaml)
  strata version                    Show version
  strata help                       Show this help

Common Flags:
  --config string    Config file path (default: $STRATA_CONFIG, then ./strata.yaml if present)
  --debug            Enable debug logging

Server Flags:
  --watch            Re-ingest the corpus whenever it changes

Ingest Flags:
  --corpus string    Corpus file (default from config)
  --watch            Keep running and re-ingest on change
  --dry-run          Parse and chunk only
  --format string    Output format: text or json (default: text)

Ask Flags:
  --format string    Output format: text or json (default: text)

Search Flags:
  --limit int          Number of matches (default from config)
  --threshold float    Minimum similarity (default from config)
  --format string      Output format: text or json (default: text)

Environment:
  Secrets and most settings come from the environment or a .env file, e.g.
  GOOGLE_API_KEY, GROQ_API_KEY, SUPABASE_URL, SUPABASE_KEY, VECTOR_STORE.

Examples:
  strata config init
  strata ingest
  strata ask "What is the Quad?"
  strata ask --format json "Who wrote about semiconductors?"
  strata search --limit 3 critical minerals
  strata server --watch`)
}
