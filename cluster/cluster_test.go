package cluster_test

import (
	"errors"
	"testing"
	"time"

	"github.com/haldar/aadhaar-sentinel/cluster"
	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type districtDay struct {
	district string
	enrol    int64
	bio      int64
	demo     int64
}

func analysisTable(days []districtDay) *table.Table {
	t := table.New(table.AllKeys, "total_enrol", "total_bio", "total_demo")
	for i, d := range days {
		t.Append(table.Row{
			Date:     table.Date(2025, time.March, 1+i%28),
			State:    "Maharashtra",
			District: d.district,
			Pincode:  "400001",
			Counts: map[string]int64{
				"total_enrol": d.enrol,
				"total_bio":   d.bio,
				"total_demo":  d.demo,
			},
		})
	}
	return t
}

func labelOf(clusters []cluster.DistrictCluster, district string) string {
	for _, c := range clusters {
		if c.District == district {
			return c.Label
		}
	}
	return ""
}

// =============================================================================
// CLUSTERING TESTS
// =============================================================================

func TestCluster_SeparatesActivityTiers(t *testing.T) {
	// GIVEN: Nine districts in three clearly separated volume tiers
	// WHEN: Clustering
	// THEN: Each tier maps to its matching label

	var days []districtDay
	for i, d := range []string{"Quiet A", "Quiet B", "Quiet C"} {
		days = append(days, districtDay{d, int64(10 + i), 5, 5})
	}
	for i, d := range []string{"Steady A", "Steady B", "Steady C"} {
		days = append(days, districtDay{d, int64(1000 + 10*i), 500, 500})
	}
	for i, d := range []string{"Busy A", "Busy B", "Busy C"} {
		days = append(days, districtDay{d, int64(100000 + 100*i), 50000, 50000})
	}

	clusters, err := cluster.NewClusterer().Cluster(analysisTable(days))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(clusters) != 9 {
		t.Fatalf("expected 9 district profiles, got %d", len(clusters))
	}
	for _, d := range []string{"Quiet A", "Quiet B", "Quiet C"} {
		if got := labelOf(clusters, d); got != "Low Activity" {
			t.Errorf("%s labelled %q, want Low Activity", d, got)
		}
	}
	for _, d := range []string{"Steady A", "Steady B", "Steady C"} {
		if got := labelOf(clusters, d); got != "Medium Activity" {
			t.Errorf("%s labelled %q, want Medium Activity", d, got)
		}
	}
	for _, d := range []string{"Busy A", "Busy B", "Busy C"} {
		if got := labelOf(clusters, d); got != "High Activity" {
			t.Errorf("%s labelled %q, want High Activity", d, got)
		}
	}
}

func TestCluster_ProfilesAverageAcrossDays(t *testing.T) {
	// GIVEN: One district reporting two days of different volume
	// WHEN: Profiling
	// THEN: The profile means the days and derives the update ratio

	days := []districtDay{
		{"Pune", 10, 4, 2},
		{"Pune", 30, 8, 10},
	}

	clusters, err := cluster.NewClusterer().Cluster(analysisTable(days))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(clusters) != 1 {
		t.Fatalf("expected a single district, got %d", len(clusters))
	}
	p := clusters[0]
	if p.MeanEnrol != 20 || p.MeanBio != 6 || p.MeanDemo != 6 {
		t.Errorf("means = %v/%v/%v, want 20/6/6", p.MeanEnrol, p.MeanBio, p.MeanDemo)
	}
	// (6 + 6) / (20 + 1)
	if want := 12.0 / 21.0; p.UpdateRatio != want {
		t.Errorf("update ratio = %v, want %v", p.UpdateRatio, want)
	}
}

func TestCluster_DegradesBelowThreeDistricts(t *testing.T) {
	// GIVEN: A single district
	// WHEN: Clustering with the default three tiers
	// THEN: One cluster comes back, labelled from the bottom of the scale

	clusters, err := cluster.NewClusterer().Cluster(analysisTable([]districtDay{{"Solo", 100, 10, 10}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(clusters) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(clusters))
	}
	if clusters[0].Label != "Low Activity" {
		t.Errorf("label = %q, want Low Activity", clusters[0].Label)
	}
}

func TestCluster_EmptyTableIsRejected(t *testing.T) {
	// GIVEN: An empty analysis table
	// WHEN: Clustering
	// THEN: ErrNoDistricts comes back

	_, err := cluster.NewClusterer().Cluster(table.New(table.AllKeys, "total_enrol"))

	if !errors.Is(err, cluster.ErrNoDistricts) {
		t.Errorf("expected ErrNoDistricts, got %v", err)
	}
}

func TestCluster_Deterministic(t *testing.T) {
	// GIVEN: The same table clustered twice
	// WHEN: Comparing assignments
	// THEN: Clusters and labels match exactly

	days := []districtDay{
		{"A", 10, 5, 5}, {"B", 14, 5, 5}, {"C", 900, 400, 400},
		{"D", 1100, 600, 400}, {"E", 90000, 40000, 40000}, {"F", 110000, 60000, 40000},
	}

	first, err := cluster.NewClusterer().Cluster(analysisTable(days))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cluster.NewClusterer().Cluster(analysisTable(days))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("profile %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
