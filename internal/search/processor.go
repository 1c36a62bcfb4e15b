package search

import (
	"github.com/hyperjump/strata/internal/config"
	"github.com/hyperjump/strata/internal/models"
)

// ProcessQuery validates the search query and applies the configured retrieval defaults.
func ProcessQuery(query *models.SearchQuery, cfg config.RetrievalConfig) error {
	return query.Validate(cfg.MatchThreshold, cfg.MatchCount, cfg.MaxMatchCount)
}
