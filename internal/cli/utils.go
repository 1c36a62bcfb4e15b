// Package cli provides output formatting for the strata command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/internal/search"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; anything else is an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes retrieval matches to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d matches in %dms\n\n", response.Total, response.QueryTime)
	for _, m := range response.Matches {
		writeMatch(w, m)
	}
	return nil
}

func writeMatch(w io.Writer, m *models.Match) {
	rec := m.Record
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Similarity: %.4f\n", m.Rank, m.Similarity)
	if title := rec.MetaString(models.MetaTitle); title != "" {
		fmt.Fprintf(w, "Title: %s\n", title)
	}
	if url := rec.MetaString(models.MetaURL); url != "" {
		fmt.Fprintf(w, "URL: %s\n", url)
	}
	fmt.Fprintf(w, "\n%s\n\n", search.Snippet(rec.Content, 200))
}

type answerOutput struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer,omitempty"`
	Error    string          `json:"error,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	Sources  []*models.Match `json:"sources,omitempty"`
}

// WriteAnswer writes the outcome of a question. Text output matches what the chat
// endpoint's users would read, including "Error: <message>" on failure.
func WriteAnswer(w io.Writer, question string, res *search.Result, format OutputFormat) error {
	if format == OutputJSON {
		out := answerOutput{Question: question, Answer: res.Answer, Sources: res.Sources}
		if res.Err != nil {
			out.Error = res.Err.Error()
			out.Kind = string(models.KindOf(res.Err))
		}
		return writeJSON(w, out)
	}
	fmt.Fprintln(w, res.Text())
	if res.OK() && len(res.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, m := range res.Sources {
			fmt.Fprintf(w, "  %d. %s <%s> (%.3f)\n", m.Rank,
				m.Record.MetaString(models.MetaTitle), m.Record.MetaString(models.MetaURL), m.Similarity)
		}
	}
	return nil
}

// WriteIngestReport writes an ingestion summary.
func WriteIngestReport(w io.Writer, report *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Articles:       %d\n", report.Articles)
	fmt.Fprintf(w, "Chunks:         %d (%d blank skipped)\n", report.Chunks, report.Skipped)
	fmt.Fprintf(w, "Batches:        %d\n", report.Batches)
	fmt.Fprintf(w, "Stored records: %d\n", report.StoredRecords)
	if len(report.FailedBatches) > 0 {
		fmt.Fprintf(w, "Failed batches: %v\n", report.FailedBatches)
	}
	fmt.Fprintf(w, "Duration:       %s\n", report.Duration.Round(time.Millisecond))
	switch {
	case report.Complete():
		fmt.Fprintln(w, "Ingestion complete.")
	case report.Partial():
		fmt.Fprintln(w, "Ingestion partially complete; re-run to retry failed batches.")
	default:
		fmt.Fprintln(w, "Ingestion failed.")
	}
	return nil
}

// IngestExitCode maps a report to a process exit status: 0 complete, 2 partial, 1 failed.
func IngestExitCode(report *models.IngestReport) int {
	switch {
	case report == nil:
		return 1
	case report.Complete():
		return 0
	case report.Partial():
		return 2
	default:
		return 1
	}
}
