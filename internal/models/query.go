package models

import (
	"fmt"
	"strings"
)

// ChatRequest is the body of a question to the answer endpoint.
type ChatRequest struct {
	Question string `json:"question"`
}

// Validate trims the question and rejects an empty one.
func (r *ChatRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return NewError(KindInvalidInput, "validate", fmt.Errorf("question cannot be empty"))
	}
	return nil
}

// ChatResponse is the successful answer payload.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// SearchQuery is a retrieval-only request. Zero Threshold and Limit mean "use configured defaults".
type SearchQuery struct {
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

// Validate ensures the search query has valid fields and applies defaults.
func (q *SearchQuery) Validate(defaultThreshold float64, defaultLimit, maxLimit int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return NewError(KindInvalidInput, "validate", fmt.Errorf("query cannot be empty"))
	}
	if q.Threshold < 0 || q.Threshold > 1 {
		return NewError(KindInvalidInput, "validate", fmt.Errorf("threshold must be within [0,1], got %v", q.Threshold))
	}
	if q.Threshold == 0 {
		q.Threshold = defaultThreshold
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}

// SearchResponse is the result of a retrieval-only query.
type SearchResponse struct {
	Query     string   `json:"query"`
	Matches   []*Match `json:"matches"`
	Total     int      `json:"total"`
	QueryTime int64    `json:"query_time_ms"`
}

// ErrorResponse is the JSON body returned when a request fails.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable"`
}
