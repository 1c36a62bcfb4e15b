// Package server provides the HTTP API for strata.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/indexer"
	"github.com/hyperjump/strata/internal/metrics"
	"github.com/hyperjump/strata/internal/search"
	"github.com/hyperjump/strata/pkg/utils"
)

// Server is the HTTP server for the question-answering API.
type Server struct {
	engine  *search.Engine
	job     *indexer.Job
	metrics *metrics.Metrics
	config  *config.Config
	logger  *zap.Logger
	limiter *rate.Limiter
	server  *http.Server

	// ctx outlives individual requests; background ingestion runs under it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server with the given dependencies. job and m may be nil, which
// disables the ingest and metrics endpoints.
func NewServer(
	engine *search.Engine,
	job *indexer.Job,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine:  engine,
		job:     job,
		metrics: m,
		config:  cfg,
		logger:  utils.OrNop(logger),
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), max(cfg.Server.RateBurst, 1))
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		// Embedding, search and generation each get a full request timeout.
		r.Use(middleware.Timeout(3 * s.config.RequestTimeout))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/chat", s.handleChat)
		r.Post("/api/v1/search", s.handleSearch)
	})

	r.Get("/api/v1/ingest", s.handleIngestStatus)
	r.Post("/api/v1/ingest", s.handleIngestTrigger)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Address()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server and cancels background ingestion.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.respondError(w, statusFor(errRateLimited), errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
