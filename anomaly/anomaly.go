/*
Package anomaly scores analysis rows for unusual update activity.

PURPOSE:
  This package answers "which of these records look wrong?". An isolation
  forest scores every row of the merged analysis table against the rest;
  the contamination fraction fixes how much of the score distribution is
  treated as anomalous. A separate explanation pass turns statistics into
  reviewer-readable reasons, because a bare score convinces nobody at a
  district office.

KEY CONCEPTS IN THIS FILE (anomaly.go):
  - Detector: configuration plus entry points; fitting is cheap enough to
    run fresh on every view, so there is no persisted model
  - Result: scores, flags and reasons aligned with the table's rows
  - Feature columns: every count column carrying a category prefix. The
    derived total columns stay out of the feature matrix.

SEE ALSO:
  - forest.go: the isolation forest itself
  - explain.go: the district z-score explanations
*/
package anomaly

import (
	"log"
	"math/rand"
	"sort"
	"strings"

	"github.com/haldar/aadhaar-sentinel/dataset"
	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config are the forest's tuning knobs. The defaults are fixed and
// explicit so two runs over the same table flag the same rows.
type Config struct {
	Trees         int
	SampleCap     int
	Contamination float64
	Seed          int64

	// Threshold is the multiple of the district spread (or of the
	// district mean, on the fold-change path) a count must exceed before
	// the explanation calls it a spike.
	Threshold float64
}

func DefaultConfig() Config {
	return Config{
		Trees:         100,
		SampleCap:     256,
		Contamination: 0.01,
		Seed:          42,
		Threshold:     3,
	}
}

// =============================================================================
// DETECTOR
// =============================================================================

// Detector scores tables. Safe to reuse across views; every call fits a
// fresh forest on exactly the rows it is given.
type Detector struct {
	Config Config
	Logger *log.Logger
}

func NewDetector() *Detector {
	return &Detector{Config: DefaultConfig()}
}

// Result carries the outcome of one scoring pass, index-aligned with the
// scored table's rows. When Scored is false the table was too small or
// had no feature columns; Scores and Flags are nil and every reason
// falls back to the statistical pass.
type Result struct {
	Scored  bool
	Scores  []float64
	Flags   []bool
	Reasons []string
}

// Flagged counts the rows marked anomalous.
func (r *Result) Flagged() int {
	n := 0
	for _, f := range r.Flags {
		if f {
			n++
		}
	}
	return n
}

// Annotate scores the table and fills in explanations. This is the entry
// point the API and CLI use.
func (d *Detector) Annotate(t *table.Table) *Result {
	res := d.Detect(t)
	res.Reasons = explain(t, res.Flags, d.Config.Threshold)
	return res
}

// Detect fits an isolation forest on the table's feature columns and
// scores every row. The score is a decision value: negative means
// anomalous, with the contamination fraction fixing the cutoff.
func (d *Detector) Detect(t *table.Table) *Result {
	res := &Result{}
	cols := featureColumns(t)
	if t.Len() < 2 || len(cols) == 0 {
		d.logf("anomaly scoring skipped: %d rows, %d feature columns", t.Len(), len(cols))
		return res
	}

	X := featureMatrix(t, cols)
	rng := rand.New(rand.NewSource(d.Config.Seed))
	forest := growForest(rng, X, d.Config)

	raw := make([]float64, len(X))
	for i, x := range X {
		raw[i] = forest.score(x)
	}

	sorted := append([]float64(nil), raw...)
	sort.Float64s(sorted)
	offset := percentile(sorted, d.Config.Contamination*100)

	res.Scores = make([]float64, len(raw))
	res.Flags = make([]bool, len(raw))
	for i, s := range raw {
		res.Scores[i] = s - offset
		res.Flags[i] = res.Scores[i] < 0
	}
	res.Scored = true
	d.logf("anomaly scoring: %d rows, %d features, %d flagged", len(X), len(cols), res.Flagged())
	return res
}

func (d *Detector) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// =============================================================================
// FEATURE EXTRACTION
// =============================================================================

// featureColumns selects the count columns the forest trains on: any
// column carrying a category prefix. Totals do not match a prefix, which
// keeps them out; they are linear in the buckets and would add nothing.
func featureColumns(t *table.Table) []string {
	var cols []string
	for _, c := range t.Columns {
		for _, cat := range dataset.Categories() {
			if strings.Contains(c, cat.Prefix()) {
				cols = append(cols, c)
				break
			}
		}
	}
	return cols
}

func featureMatrix(t *table.Table, cols []string) [][]float64 {
	X := make([][]float64, t.Len())
	for i, r := range t.Rows {
		x := make([]float64, len(cols))
		for j, c := range cols {
			x[j] = float64(r.Value(c))
		}
		X[i] = x
	}
	return X
}

// percentile is the linear-interpolation quantile over an ascending
// slice, matching the convention the offset cutoff was calibrated with.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
