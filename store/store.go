/*
store.go - Run history persistence

PURPOSE:
  Defines the interface between the pipeline and the database. A Run is
  one finished pipeline invocation: its summary counters, the scored
  analysis rows it produced, and any region values the quarantine policy
  held out. Runs are immutable once saved; a re-run saves a new Run.

KEY INTERFACES:
  RunStore: persist, list, reload, delete and prune runs

IMPLEMENTATIONS:
  - store/memory.go: In-memory for tests and --persist-less runs
  - store/sqlite/sqlite.go: SQLite-backed production store

SEE ALSO:
  - pipeline/runner.go: produces the Result a Run snapshots
  - api/server.go: persists a Run per refresh and serves /api/v1/runs
*/
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/haldar/aadhaar-sentinel/anomaly"
	"github.com/haldar/aadhaar-sentinel/pipeline"
)

// ErrRunNotFound is returned when a run id does not exist in the store.
var ErrRunNotFound = errors.New("run not found")

// =============================================================================
// TYPES
// =============================================================================

// Run is one pipeline invocation's persisted summary.
type Run struct {
	ID         string
	DataDir    string
	StartedAt  time.Time
	FinishedAt time.Time

	// Row counters across the stages.
	AnalysisRows int
	ScoredRows   int
	FlaggedRows  int

	// Detector configuration the scores were produced under.
	Trees         int
	Contamination float64
	Seed          int64

	Stats []CategoryStats
}

// CategoryStats mirrors one category's load counters.
type CategoryStats struct {
	Category           string `json:"category"`
	FilesRead          int    `json:"files_read"`
	FilesSkipped       int    `json:"files_skipped"`
	RowsRead           int    `json:"rows_read"`
	RowsKept           int    `json:"rows_kept"`
	RowsDroppedBadDate int    `json:"rows_dropped_bad_date"`
	RowsQuarantined    int    `json:"rows_quarantined"`
}

// Record is one scored analysis row as persisted with its run.
type Record struct {
	Date     time.Time
	State    string
	District string
	Pincode  string
	Attrs    map[string]string
	Counts   map[string]int64
	Score    float64
	Flagged  bool
	Reason   string
}

// Quarantine is one region value held out of a run, with the number of
// raw rows it covered.
type Quarantine struct {
	Value string
	Rows  int
}

// =============================================================================
// RUN STORE
// =============================================================================

// RunStore persists finished pipeline runs.
type RunStore interface {
	// SaveRun persists a run with its records and quarantined values.
	// Saving an existing id replaces the run wholesale.
	SaveRun(ctx context.Context, run Run, records []Record, quarantined []Quarantine) error

	// GetRun returns one run summary. ErrRunNotFound if absent.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns run summaries, newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// GetRecords returns a run's scored rows in saved order.
	GetRecords(ctx context.Context, runID string) ([]Record, error)

	// GetQuarantine returns a run's held-out region values.
	GetQuarantine(ctx context.Context, runID string) ([]Quarantine, error)

	// DeleteRun removes a run and everything saved with it.
	DeleteRun(ctx context.Context, id string) error

	// Prune deletes all but the newest keep runs, returning the number
	// removed.
	Prune(ctx context.Context, keep int) (int, error)
}

// =============================================================================
// SNAPSHOT BUILDER
// =============================================================================

// NewRun snapshots a finished pipeline result and its scoring into the
// persisted form. The returned records copy their count maps, so the
// live result stays untouched by whatever the store does with them.
func NewRun(res *pipeline.Result, scored anomaly.Result, cfg anomaly.Config, dataDir string) (Run, []Record, []Quarantine) {
	run := Run{
		ID:            uuid.NewString(),
		DataDir:       dataDir,
		StartedAt:     res.Started,
		FinishedAt:    res.Finished,
		AnalysisRows:  res.Table.Len(),
		FlaggedRows:   scored.Flagged(),
		Trees:         cfg.Trees,
		Contamination: cfg.Contamination,
		Seed:          cfg.Seed,
	}
	if scored.Scored {
		run.ScoredRows = res.Table.Len()
	}

	for _, s := range res.Stats {
		run.Stats = append(run.Stats, CategoryStats{
			Category:           s.Category.String(),
			FilesRead:          s.FilesRead,
			FilesSkipped:       s.FilesSkipped,
			RowsRead:           s.RowsRead,
			RowsKept:           s.RowsKept,
			RowsDroppedBadDate: s.RowsDroppedBadDate,
			RowsQuarantined:    s.RowsQuarantined,
		})
	}

	records := make([]Record, 0, res.Table.Len())
	for i, row := range res.Table.Rows {
		rec := Record{
			Date:     row.Date,
			State:    row.State,
			District: row.District,
			Pincode:  row.Pincode,
			Counts:   make(map[string]int64, len(row.Counts)),
		}
		for col, v := range row.Counts {
			rec.Counts[col] = v
		}
		if len(row.Attrs) > 0 {
			rec.Attrs = make(map[string]string, len(row.Attrs))
			for a, v := range row.Attrs {
				rec.Attrs[a] = v
			}
		}
		if i < len(scored.Scores) {
			rec.Score = scored.Scores[i]
		}
		if i < len(scored.Flags) {
			rec.Flagged = scored.Flags[i]
		}
		if i < len(scored.Reasons) {
			rec.Reason = scored.Reasons[i]
		}
		records = append(records, rec)
	}

	held := res.QuarantinedStates()
	quarantined := make([]Quarantine, 0, len(held))
	for value, rows := range held {
		quarantined = append(quarantined, Quarantine{Value: value, Rows: rows})
	}
	sort.Slice(quarantined, func(i, j int) bool { return quarantined[i].Value < quarantined[j].Value })

	return run, records, quarantined
}
