package anomaly_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/haldar/aadhaar-sentinel/anomaly"
	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// activityTable builds an analysis-shaped table with one row per value:
// the category's 0-5 bucket plus its total column. With sharedDistrict
// every row lands in the same district; otherwise each row gets its own.
func activityTable(category string, vals []int64, sharedDistrict bool) *table.Table {
	bucket := category + "_0_5"
	total := "total_" + category
	t := table.New(table.AllKeys, bucket, total)
	for i, v := range vals {
		district := "Ernakulam"
		if !sharedDistrict {
			district = fmt.Sprintf("District %d", i)
		}
		t.Append(table.Row{
			Date:     table.Date(2025, time.March, 1),
			State:    "Kerala",
			District: district,
			Pincode:  fmt.Sprintf("68%04d", i),
			Counts:   map[string]int64{bucket: v, total: v},
		})
	}
	return t
}

func spikedValues(n int, spikeAt int, spike int64) []int64 {
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = int64(1 + i%9)
	}
	vals[spikeAt] = spike
	return vals
}

// =============================================================================
// FOREST TESTS
// =============================================================================

func TestDetect_FlagsTheExtremeRow(t *testing.T) {
	// GIVEN: 101 rows of small biometric counts with one enormous outlier
	// WHEN: Scoring with the default contamination of 1%
	// THEN: Exactly the outlier ends up with a negative decision value

	spikeAt := 57
	tbl := activityTable("bio", spikedValues(101, spikeAt, 10000), true)

	res := anomaly.NewDetector().Detect(tbl)

	if !res.Scored {
		t.Fatal("expected the table to be scored")
	}
	if !res.Flags[spikeAt] {
		t.Errorf("outlier row not flagged, score %v", res.Scores[spikeAt])
	}
	if got := res.Flagged(); got != 1 {
		t.Errorf("expected exactly 1 flagged row, got %d", got)
	}
	for i, s := range res.Scores {
		if i != spikeAt && s < res.Scores[spikeAt] {
			t.Errorf("row %d scored below the outlier: %v < %v", i, s, res.Scores[spikeAt])
		}
	}
}

func TestDetect_SameSeedSameScores(t *testing.T) {
	// GIVEN: The same table scored twice
	// WHEN: Using the default fixed seed
	// THEN: Scores, flags and reasons are identical run to run

	tbl := activityTable("bio", spikedValues(60, 11, 5000), true)
	d := anomaly.NewDetector()

	first := d.Annotate(tbl)
	second := d.Annotate(tbl)

	for i := range first.Scores {
		if first.Scores[i] != second.Scores[i] {
			t.Fatalf("score %d differs between runs: %v vs %v", i, first.Scores[i], second.Scores[i])
		}
		if first.Flags[i] != second.Flags[i] {
			t.Fatalf("flag %d differs between runs", i)
		}
		if first.Reasons[i] != second.Reasons[i] {
			t.Fatalf("reason %d differs between runs: %q vs %q", i, first.Reasons[i], second.Reasons[i])
		}
	}
}

func TestDetect_SkipsSingleRowTable(t *testing.T) {
	// GIVEN: A table with one row
	// WHEN: Scoring
	// THEN: The pass is skipped and the row still explains as Normal

	tbl := activityTable("bio", []int64{7}, true)

	res := anomaly.NewDetector().Annotate(tbl)

	if res.Scored {
		t.Error("a single row cannot be scored against itself")
	}
	if res.Flags != nil || res.Scores != nil {
		t.Error("expected nil scores and flags on a skipped pass")
	}
	if len(res.Reasons) != 1 || res.Reasons[0] != "Normal" {
		t.Errorf("expected a single Normal reason, got %v", res.Reasons)
	}
}

func TestDetect_SkipsWithoutFeatureColumns(t *testing.T) {
	// GIVEN: A table carrying only derived totals, no category buckets
	// WHEN: Scoring
	// THEN: The pass is skipped rather than fit on nothing

	tbl := table.New(table.AllKeys, "total_bio")
	for i := 0; i < 5; i++ {
		tbl.Append(table.Row{
			Date: table.Date(2025, time.March, 1), State: "Kerala", District: "Ernakulam",
			Pincode: fmt.Sprintf("68%04d", i),
			Counts:  map[string]int64{"total_bio": int64(i)},
		})
	}

	res := anomaly.NewDetector().Detect(tbl)

	if res.Scored {
		t.Error("expected scoring to be skipped with no feature columns")
	}
}

// =============================================================================
// EXPLANATION TESTS
// =============================================================================

func TestAnnotate_ExplainsDistrictSpike(t *testing.T) {
	// GIVEN: A district of nine postal areas, eight reporting 1 biometric
	//        update and one reporting 100
	// WHEN: Annotating
	// THEN: The spike explains as a multiple of the district average and
	//       every other row reads Normal

	vals := []int64{1, 1, 1, 1, 1, 1, 1, 1, 100}
	tbl := activityTable("bio", vals, true)

	res := anomaly.NewDetector().Annotate(tbl)

	want := "Biometric Updates (100) are 8.3x above district avg."
	if res.Reasons[8] != want {
		t.Errorf("spike reason = %q, want %q", res.Reasons[8], want)
	}
	for i := 0; i < 8; i++ {
		if res.Reasons[i] != "Normal" {
			t.Errorf("row %d: expected Normal, got %q", i, res.Reasons[i])
		}
	}
	if !res.Flags[8] {
		t.Error("the spiked row should also carry the anomaly flag")
	}
}

func TestAnnotate_ThresholdTunesTheSpikeCutoff(t *testing.T) {
	// GIVEN: A spike 8.3x above its district average
	// WHEN: Annotating with the cutoff below and then above that multiple
	// THEN: The spike sentence appears only when the multiple clears the
	//       configured cutoff

	vals := []int64{1, 1, 1, 1, 1, 1, 1, 1, 100}
	tbl := activityTable("bio", vals, true)

	lenient := anomaly.NewDetector()
	lenient.Config.Threshold = 5
	res := lenient.Annotate(tbl)
	if !strings.Contains(res.Reasons[8], "8.3x above district avg.") {
		t.Errorf("cutoff 5: reason = %q, want the 8.3x spike sentence", res.Reasons[8])
	}

	strict := anomaly.NewDetector()
	strict.Config.Threshold = 9
	res = strict.Annotate(tbl)
	if strings.Contains(res.Reasons[8], "above district avg.") {
		t.Errorf("cutoff 9: reason = %q, want no spike sentence", res.Reasons[8])
	}
}

func TestAnnotate_ZScorePathUsesStandardDeviations(t *testing.T) {
	// GIVEN: A tight district where one demographic count sits just over
	//        three standard deviations out but nowhere near 3x the mean
	// WHEN: Annotating
	// THEN: The reason reports the z multiple

	vals := []int64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 11}
	tbl := activityTable("demo", vals, true)

	res := anomaly.NewDetector().Annotate(tbl)

	want := "Demographic Updates (11) are 3.0x above district avg."
	if res.Reasons[10] != want {
		t.Errorf("z-score reason = %q, want %q", res.Reasons[10], want)
	}
}

func TestAnnotate_FallsBackToModelReason(t *testing.T) {
	// GIVEN: Every row in its own district, so no district statistics can
	//        single anything out, and one row is still a clear outlier
	// WHEN: Annotating
	// THEN: The flagged row gets the generic model reason

	spikeAt := 33
	tbl := activityTable("bio", spikedValues(101, spikeAt, 10000), false)

	res := anomaly.NewDetector().Annotate(tbl)

	if !res.Flags[spikeAt] {
		t.Fatal("outlier row not flagged")
	}
	want := "Unusual combination of update types detected by AI."
	if res.Reasons[spikeAt] != want {
		t.Errorf("fallback reason = %q, want %q", res.Reasons[spikeAt], want)
	}
	for i, reason := range res.Reasons {
		if i != spikeAt && reason != "Normal" {
			t.Errorf("row %d: expected Normal, got %q", i, reason)
		}
	}
}

func TestAnnotate_ReasonsJoinWithPipe(t *testing.T) {
	// GIVEN: A row spiking in both biometric and demographic totals
	// WHEN: Annotating
	// THEN: Both reasons appear joined by a pipe

	tbl := table.New(table.AllKeys, "bio_0_5", "demo_0_5", "total_bio", "total_demo")
	for i := 0; i < 9; i++ {
		v := int64(1)
		if i == 8 {
			v = 100
		}
		tbl.Append(table.Row{
			Date: table.Date(2025, time.March, 1), State: "Kerala", District: "Ernakulam",
			Pincode: fmt.Sprintf("68%04d", i),
			Counts: map[string]int64{
				"bio_0_5": v, "demo_0_5": v,
				"total_bio": v, "total_demo": v,
			},
		})
	}

	res := anomaly.NewDetector().Annotate(tbl)

	want := "Biometric Updates (100) are 8.3x above district avg." +
		" | Demographic Updates (100) are 8.3x above district avg."
	if res.Reasons[8] != want {
		t.Errorf("joined reason = %q, want %q", res.Reasons[8], want)
	}
}
