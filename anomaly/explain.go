/*
explain.go - Reviewer-readable reasons

PURPOSE:
  Turns each row's standing within its district into a sentence. A record
  whose biometric or demographic total sits far above the district
  average gets a spike reason; a forest-flagged record with no single
  standout count gets the generic fallback. Everything else is "Normal".
*/
package anomaly

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/haldar/aadhaar-sentinel/table"
)

const fallbackReason = "Unusual combination of update types detected by AI."

type districtStats struct {
	meanBio  float64
	stdBio   float64
	meanDemo float64
	stdDemo  float64
}

// explain builds one reason string per row, index-aligned with t.Rows.
// flags may be nil when the forest did not run; the statistical reasons
// still apply. threshold gates the spike sentences; non-positive values
// fall back to the default.
func explain(t *table.Table, flags []bool, threshold float64) []string {
	if threshold <= 0 {
		threshold = DefaultConfig().Threshold
	}
	var byDistrict map[string]districtStats
	if t.Keys.Has(table.KeyDistrict) {
		byDistrict = districtActivity(t)
	}

	reasons := make([]string, t.Len())
	for i, r := range t.Rows {
		var parts []string
		if s, ok := byDistrict[r.District]; ok {
			if reason, spiked := spikeReason("Biometric Updates", r.Value("total_bio"), s.meanBio, s.stdBio, threshold); spiked {
				parts = append(parts, reason)
			}
			if reason, spiked := spikeReason("Demographic Updates", r.Value("total_demo"), s.meanDemo, s.stdDemo, threshold); spiked {
				parts = append(parts, reason)
			}
		}
		if len(parts) == 0 && i < len(flags) && flags[i] {
			parts = append(parts, fallbackReason)
		}
		if len(parts) == 0 {
			reasons[i] = "Normal"
		} else {
			reasons[i] = strings.Join(parts, " | ")
		}
	}
	return reasons
}

// districtActivity computes each district's mean and sample standard
// deviation of the biometric and demographic totals. A single-row
// district keeps a zero std, which disables the z-score path.
func districtActivity(t *table.Table) map[string]districtStats {
	bio := make(map[string][]float64)
	demo := make(map[string][]float64)
	for _, r := range t.Rows {
		bio[r.District] = append(bio[r.District], float64(r.Value("total_bio")))
		demo[r.District] = append(demo[r.District], float64(r.Value("total_demo")))
	}

	out := make(map[string]districtStats, len(bio))
	for d, xs := range bio {
		s := districtStats{
			meanBio:  stat.Mean(xs, nil),
			meanDemo: stat.Mean(demo[d], nil),
		}
		if len(xs) > 1 {
			s.stdBio = stat.StdDev(xs, nil)
			s.stdDemo = stat.StdDev(demo[d], nil)
		}
		out[d] = s
	}
	return out
}

// spikeReason reports a count far above its district average: first by
// z-score, then by fold change for the case where one huge value inflates
// the spread enough to hide itself.
func spikeReason(label string, v int64, mean, std, threshold float64) (string, bool) {
	if std > 0 {
		if z := (float64(v) - mean) / std; z > threshold {
			return fmt.Sprintf("%s (%d) are %.1fx above district avg.", label, v, z), true
		}
	}
	if mean > 0 {
		if fold := float64(v) / mean; fold > threshold {
			return fmt.Sprintf("%s (%d) are %.1fx above district avg.", label, v, fold), true
		}
	}
	return "", false
}
