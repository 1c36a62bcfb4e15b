package indexer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/strata/internal/corpus"
	"github.com/hyperjump/strata/internal/models"
)

// ErrIngestRunning is returned when a pass is requested while another is in progress.
var ErrIngestRunning = errors.New("ingestion already running")

// JobStatus describes the current and most recent ingestion pass of a Job.
type JobStatus struct {
	Corpus     string               `json:"corpus"`
	Running    bool                 `json:"running"`
	LastRun    time.Time            `json:"last_run,omitempty"`
	LastReport *models.IngestReport `json:"last_report,omitempty"`
	LastError  string               `json:"last_error,omitempty"`
}

// Job runs ingestion passes over one corpus file, at most one at a time.
type Job struct {
	indexer *Indexer
	parser  *corpus.Parser
	path    string
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	status  JobStatus
	wg      sync.WaitGroup
}

// NewJob creates a job ingesting the corpus at path.
func NewJob(idx *Indexer, parser *corpus.Parser, path string) *Job {
	return &Job{
		indexer: idx,
		parser:  parser,
		path:    path,
		logger:  idx.logger,
		status:  JobStatus{Corpus: path},
	}
}

// Run performs one pass synchronously.
func (j *Job) Run(ctx context.Context) (*models.IngestReport, error) {
	if !j.begin() {
		return nil, ErrIngestRunning
	}
	return j.run(ctx)
}

// Trigger starts a pass in the background and reports whether one was started.
// The pass is not tied to any request context; it ends when ctx is cancelled.
func (j *Job) Trigger(ctx context.Context) bool {
	if !j.begin() {
		j.logger.Info("ingestion already running, trigger ignored", zap.String("corpus", j.path))
		return false
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		_, _ = j.run(ctx)
	}()
	return true
}

// Wait blocks until background passes started by Trigger have finished.
func (j *Job) Wait() {
	j.wg.Wait()
}

// Status returns a snapshot of the job state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := j.status
	st.Running = j.running
	return st
}

func (j *Job) begin() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return false
	}
	j.running = true
	return true
}

func (j *Job) run(ctx context.Context) (*models.IngestReport, error) {
	started := time.Now()
	report, err := j.indexer.IngestFile(ctx, j.parser, j.path)
	if err != nil {
		j.logger.Error("ingestion failed", zap.String("corpus", j.path), zap.Error(err))
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = false
	j.status.LastRun = started
	j.status.LastReport = report
	j.status.LastError = ""
	if err != nil {
		j.status.LastError = err.Error()
	}
	return report, err
}
