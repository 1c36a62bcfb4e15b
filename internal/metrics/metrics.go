// Package metrics exposes Prometheus counters and histograms for ingestion and answering.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch statuses.
const (
	BatchStored = "stored"
	BatchFailed = "failed"
)

// Answer outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeNoMatch  = "no_match"
	OutcomeError    = "error"
)

// Pipeline stages timed by StageDuration.
const (
	StageEmbed    = "embed"
	StageSearch   = "search"
	StageGenerate = "generate"
	StageUpsert   = "upsert"
)

// Metrics holds the collectors for one process. A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - strata_ingest_batches_total{status}
//   - strata_ingest_records_total
//   - strata_answers_total{outcome}
//   - strata_stage_duration_seconds{stage}
type Metrics struct {
	registry *prometheus.Registry

	BatchesTotal  *prometheus.CounterVec
	RecordsTotal  prometheus.Counter
	AnswersTotal  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
}

// New creates collectors registered on a fresh registry, together with Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		BatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_ingest_batches_total",
				Help: "Ingestion batches by final status",
			},
			[]string{"status"},
		),
		RecordsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "strata_ingest_records_total",
			Help: "Records written to the vector store",
		}),
		AnswersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_answers_total",
				Help: "Answered questions by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strata_stage_duration_seconds",
				Help:    "Latency of external pipeline calls",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
	}
}

// ObserveBatch records one finished batch; stored is the number of records written.
func (m *Metrics) ObserveBatch(ok bool, stored int) {
	if m == nil {
		return
	}
	if !ok {
		m.BatchesTotal.WithLabelValues(BatchFailed).Inc()
		return
	}
	m.BatchesTotal.WithLabelValues(BatchStored).Inc()
	m.RecordsTotal.Add(float64(stored))
}

// ObserveAnswer counts one answer by outcome.
func (m *Metrics) ObserveAnswer(outcome string) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records the time elapsed since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
