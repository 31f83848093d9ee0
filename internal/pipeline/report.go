package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/xtxerr/tickstore/internal/align"
	"github.com/xtxerr/tickstore/internal/backpressure"
	"github.com/xtxerr/tickstore/internal/compaction"
	"github.com/xtxerr/tickstore/internal/export"
)

// Run modes.
const (
	ModeIngest  = "ingest"
	ModeCompact = "compact"
)

// Report summarizes one run.
type Report struct {
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	Symbol     string        `json:"symbol"`
	Backend    string        `json:"backend"`
	StorePath  string        `json:"store_path"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`

	Reference  *ReferenceSummary `json:"reference,omitempty"`
	Assignment Assignment        `json:"assignment"`
	Tables     []string          `json:"tables_created"`
	Files      []FileResult      `json:"files"`

	Writer       *WriterSummary        `json:"writer,omitempty"`
	Backpressure *backpressure.Summary `json:"backpressure,omitempty"`
	Compaction   []compaction.Result   `json:"compaction"`
	Exports      []export.Result       `json:"exports,omitempty"`

	Error string `json:"error,omitempty"`
}

// ReferenceSummary describes the reference series a run aligned against.
type ReferenceSummary struct {
	Path       string        `json:"path"`
	Timestamps int           `json:"timestamps"`
	Window     time.Duration `json:"window_ns"`
	First      time.Time     `json:"first"`
	Last       time.Time     `json:"last"`

	// Covered is the total time inside at least one window.
	Covered time.Duration `json:"covered_ns"`
}

func summarizeReference(path string, ref *align.ReferenceSeries) *ReferenceSummary {
	s := &ReferenceSummary{Path: path, Timestamps: ref.Len(), Window: ref.Delta()}

	times := ref.Times()
	if len(times) == 0 {
		return s
	}
	s.First, s.Last = times[0], times[len(times)-1]

	// windows are ordered by start; overlaps count once
	var end time.Time
	for i, w := range ref.Windows() {
		switch {
		case i == 0 || w.Start.After(end):
			s.Covered += w.End.Sub(w.Start)
			end = w.End
		case w.End.After(end):
			s.Covered += w.End.Sub(end)
			end = w.End
		}
	}
	return s
}

func newReport(backend string) *Report {
	return &Report{
		RunID:     newRunID(),
		Backend:   backend,
		StartedAt: time.Now().UTC(),
	}
}

func (r *Report) finish(err error) {
	r.FinishedAt = time.Now().UTC()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	if err != nil {
		r.Error = err.Error()
	}
}

// File returns the result for path.
func (r *Report) File(path string) (FileResult, bool) {
	for _, f := range r.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileResult{}, false
}

// Missing returns the files that did not exist.
func (r *Report) Missing() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Status == StatusMissing {
			out = append(out, f)
		}
	}
	return out
}

// WriteJSON writes the report as indented JSON to path.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
