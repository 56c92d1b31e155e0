/*
Package pipeline turns raw category files into the merged analysis table.

PURPOSE:
  This package owns the run: load each category through the dataset
  loader, aggregate to the grouping key, outer-join the categories and
  derive totals. A Result carries the table plus everything a caller
  needs to report on the run.

KEY CONCEPTS IN THIS FILE (runner.go):
  - Runner: configured once, runs many times
  - Result: the analysis table plus per-category load stats

SEE ALSO:
  - aggregate.go: the per-category reduction
  - merge.go: the outer join and totals
  - anomaly/: scoring over the Result's table
*/
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/haldar/aadhaar-sentinel/dataset"
	"github.com/haldar/aadhaar-sentinel/metrics"
	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// RESULT - Output of one pipeline run
// =============================================================================

// Result is the output of one pipeline run. The table is complete and
// sorted; stats are in category load order.
type Result struct {
	Table    *table.Table
	Stats    []*dataset.LoadStats
	Started  time.Time
	Finished time.Time
}

func (r *Result) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// StatsFor returns the load stats for a category, nil if the category
// was not part of the run.
func (r *Result) StatsFor(cat dataset.Category) *dataset.LoadStats {
	for _, s := range r.Stats {
		if s.Category == cat {
			return s
		}
	}
	return nil
}

// QuarantinedStates merges the per-category quarantine counts into one
// state-to-rows map for reporting.
func (r *Result) QuarantinedStates() map[string]int {
	out := make(map[string]int)
	for _, s := range r.Stats {
		for state, n := range s.QuarantinedStates {
			out[state] += n
		}
	}
	return out
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes the load, aggregate and merge stages.
type Runner struct {
	Loader  *dataset.Loader
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

func NewRunner(loader *dataset.Loader) *Runner {
	return &Runner{
		Loader: loader,
		Logger: log.Default(),
	}
}

// Run executes one full pass over the dataset directory. Bad files and
// bad rows were already screened by the loader, so the only error here
// is cancellation between stages.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{Started: time.Now()}

	aggregated := make([]*table.Table, 0, len(dataset.Categories()))
	for _, cat := range dataset.Categories() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, stats := r.Loader.LoadCategory(cat)
		agg := Aggregate(raw, cat.Prefix())
		r.logf("category %s: %d raw rows across %d files, %d aggregated",
			cat, stats.RowsKept, stats.FilesRead, agg.Len())
		r.Metrics.ObserveLoad(metrics.LoadObservation{
			Category:           cat.String(),
			FilesRead:          stats.FilesRead,
			FilesSkipped:       stats.FilesSkipped,
			RowsRead:           stats.RowsRead,
			RowsKept:           stats.RowsKept,
			RowsDroppedBadDate: stats.RowsDroppedBadDate,
			RowsQuarantined:    stats.RowsQuarantined,
		})
		aggregated = append(aggregated, agg)
		result.Stats = append(result.Stats, stats)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Table = Merge(aggregated...)
	result.Finished = time.Now()

	r.logf("pipeline complete: %d analysis rows in %s", result.Table.Len(), result.Duration().Round(time.Millisecond))
	r.Metrics.ObservePipelineRun(result.Table.Len(), result.Duration())
	return result, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}
