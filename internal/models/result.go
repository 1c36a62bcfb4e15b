package models

import "time"

// Match is a stored record returned by similarity search, with its score.
type Match struct {
	Record     *StoredRecord `json:"record"`
	Similarity float64       `json:"similarity"`
	Rank       int           `json:"rank"`
}

// IngestReport summarizes one ingestion pass.
type IngestReport struct {
	Articles      int           `json:"articles"`
	Chunks        int           `json:"chunks"`
	Skipped       int           `json:"skipped"`
	Batches       int           `json:"batches"`
	FailedBatches []int         `json:"failed_batches,omitempty"`
	StoredRecords int           `json:"stored_records"`
	Duration      time.Duration `json:"duration_ns"`
}

// Complete reports whether every batch was stored.
func (r *IngestReport) Complete() bool {
	return len(r.FailedBatches) == 0
}

// Partial reports whether some, but not all, batches failed.
func (r *IngestReport) Partial() bool {
	return len(r.FailedBatches) > 0 && len(r.FailedBatches) < r.Batches
}
