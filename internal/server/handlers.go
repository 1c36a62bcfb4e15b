package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/strata/internal/models"
)

const awakeMessage = "Geostrata AI is Awake"

var (
	errBadBody      = models.NewError(models.KindInvalidInput, "decode", errors.New("invalid request body"))
	errRateLimited  = models.NewError(models.KindRateLimited, "rate limit", errors.New("rate limit exceeded"))
	errNoIngest     = models.NewError(models.KindInternal, "ingest", errors.New("ingestion not enabled"))
	errIngestActive = models.NewError(models.KindInternal, "ingest", errors.New("ingestion already running"))
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": awakeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":          "ok",
		"store":           s.config.Store.Type,
		"embedding_model": s.config.Embedding.Model,
		"llm_model":       s.config.LLM.Model,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errBadBody)
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Debug("chat request", zap.String("question", req.Question))
	res := s.engine.Answer(r.Context(), req.Question)
	if !res.OK() {
		s.logger.Error("answer failed", zap.Error(res.Err))
		s.respondError(w, statusFor(res.Err), res.Err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.ChatResponse{Answer: res.Answer})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, errBadBody)
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusFor(err), err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	if s.job == nil {
		s.respondError(w, http.StatusNotImplemented, errNoIngest)
		return
	}
	s.respondJSON(w, http.StatusOK, s.job.Status())
}

func (s *Server) handleIngestTrigger(w http.ResponseWriter, r *http.Request) {
	if s.job == nil {
		s.respondError(w, http.StatusNotImplemented, errNoIngest)
		return
	}
	if !s.job.Trigger(s.ctx) {
		s.respondError(w, http.StatusConflict, errIngestActive)
		return
	}
	s.logger.Info("ingestion triggered over http")
	s.respondJSON(w, http.StatusAccepted, s.job.Status())
}

// statusFor maps a pipeline error to an HTTP status: 400 for bad input, 429 when throttled,
// 502 for provider failures and 500 for everything else.
func statusFor(err error) int {
	switch models.KindOf(err) {
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindRateLimited:
		return http.StatusTooManyRequests
	case models.KindEmbedding, models.KindStore, models.KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	resp := models.ErrorResponse{Detail: err.Error()}
	var e *models.Error
	if errors.As(err, &e) {
		resp.Detail = e.Err.Error()
		resp.Kind = string(e.Kind)
		resp.Retryable = e.Retryable()
	}
	s.respondJSON(w, status, resp)
}
