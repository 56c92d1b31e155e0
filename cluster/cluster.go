/*
Package cluster groups districts into activity tiers.

PURPOSE:
  The dashboard's region view wants districts bucketed into low, medium
  and high activity rather than ranked by a single number. Each district
  reduces to three features (mean daily enrolment, mean biometric
  updates, and the update-to-enrolment ratio), standardized and clustered
  with k-means. Labels follow enrolment volume: the cluster with the
  lowest mean enrolment reads "Low Activity".

KEY CONCEPTS IN THIS FILE (cluster.go):
  - District profile: per-district means over the analysis table, so a
    district reporting 40 days weighs the same as one reporting 4
  - Update ratio: update pressure relative to enrolment, the feature that
    separates "busy because growing" from "busy because churning"
  - Degraded k: fewer districts than clusters clusters what is there
*/
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/haldar/aadhaar-sentinel/table"
)

// ErrNoDistricts is returned when the table carries nothing to cluster.
var ErrNoDistricts = errors.New("no district activity to cluster")

var tierLabels = []string{"Low Activity", "Medium Activity", "High Activity"}

// DistrictCluster is one district's profile and assignment.
type DistrictCluster struct {
	District    string  `json:"district"`
	MeanEnrol   float64 `json:"mean_enrol"`
	MeanBio     float64 `json:"mean_bio"`
	MeanDemo    float64 `json:"mean_demo"`
	UpdateRatio float64 `json:"update_ratio"`
	Cluster     int     `json:"cluster"`
	Label       string  `json:"label"`
}

// Clusterer is the k-means configuration. Defaults give three tiers with
// a fixed seed, so the same table always tiers the same way.
type Clusterer struct {
	K        int
	Restarts int
	Seed     int64
}

func NewClusterer() *Clusterer {
	return &Clusterer{K: 3, Restarts: 10, Seed: 42}
}

// Cluster profiles every district and assigns each to a tier. Districts
// come back sorted by name. K degrades to the district count when there
// are fewer districts than tiers.
func (c *Clusterer) Cluster(t *table.Table) ([]DistrictCluster, error) {
	if !t.Keys.Has(table.KeyDistrict) || t.Empty() {
		return nil, ErrNoDistricts
	}
	if !t.HasColumn("total_enrol") {
		return nil, fmt.Errorf("%w: table carries no totals", ErrNoDistricts)
	}

	profiles := districtProfiles(t)
	if len(profiles) == 0 {
		return nil, ErrNoDistricts
	}

	k := c.K
	if len(profiles) < k {
		k = len(profiles)
	}

	X := make([][]float64, len(profiles))
	for i, p := range profiles {
		X[i] = []float64{p.MeanEnrol, p.MeanBio, p.UpdateRatio}
	}
	standardize(X)

	rng := rand.New(rand.NewSource(c.Seed))
	assignment := kmeans(rng, X, k, c.Restarts)

	for i := range profiles {
		profiles[i].Cluster = assignment[i]
	}
	labelByEnrolment(profiles, k)
	return profiles, nil
}

// districtProfiles reduces the table to one row per district: the mean of
// each total plus the update ratio. Sorted by district name.
func districtProfiles(t *table.Table) []DistrictCluster {
	type sums struct {
		enrol, bio, demo int64
		rows             int
	}
	byDistrict := make(map[string]*sums)
	for _, r := range t.Rows {
		s := byDistrict[r.District]
		if s == nil {
			s = &sums{}
			byDistrict[r.District] = s
		}
		s.enrol += r.Value("total_enrol")
		s.bio += r.Value("total_bio")
		s.demo += r.Value("total_demo")
		s.rows++
	}

	out := make([]DistrictCluster, 0, len(byDistrict))
	for district, s := range byDistrict {
		n := float64(s.rows)
		p := DistrictCluster{
			District:  district,
			MeanEnrol: float64(s.enrol) / n,
			MeanBio:   float64(s.bio) / n,
			MeanDemo:  float64(s.demo) / n,
		}
		p.UpdateRatio = (p.MeanBio + p.MeanDemo) / (p.MeanEnrol + 1)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].District < out[j].District })
	return out
}

// standardize centers each feature and scales by its population standard
// deviation, in place. A constant feature scales by one so it simply
// zeroes out.
func standardize(X [][]float64) {
	if len(X) == 0 {
		return
	}
	features := len(X[0])
	for f := 0; f < features; f++ {
		var mean float64
		for _, x := range X {
			mean += x[f]
		}
		mean /= float64(len(X))

		var variance float64
		for _, x := range X {
			d := x[f] - mean
			variance += d * d
		}
		variance /= float64(len(X))

		scale := math.Sqrt(variance)
		if scale == 0 {
			scale = 1
		}
		for _, x := range X {
			x[f] = (x[f] - mean) / scale
		}
	}
}

// labelByEnrolment orders clusters by their mean enrolment and assigns
// tier labels in ascending order.
func labelByEnrolment(profiles []DistrictCluster, k int) {
	sums := make([]float64, k)
	counts := make([]int, k)
	for _, p := range profiles {
		sums[p.Cluster] += p.MeanEnrol
		counts[p.Cluster]++
	}

	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ma, mb := math.Inf(1), math.Inf(1)
		if counts[order[a]] > 0 {
			ma = sums[order[a]] / float64(counts[order[a]])
		}
		if counts[order[b]] > 0 {
			mb = sums[order[b]] / float64(counts[order[b]])
		}
		return ma < mb
	})

	labels := make(map[int]string, k)
	for rank, cluster := range order {
		if rank < len(tierLabels) {
			labels[cluster] = tierLabels[rank]
		}
	}
	for i := range profiles {
		profiles[i].Label = labels[profiles[i].Cluster]
	}
}

// =============================================================================
// K-MEANS
// =============================================================================

// kmeans runs Lloyd's algorithm with k-means++ seeding, keeping the best
// of several restarts by within-cluster squared error.
func kmeans(rng *rand.Rand, X [][]float64, k, restarts int) []int {
	var best []int
	bestInertia := math.Inf(1)
	for r := 0; r < restarts; r++ {
		assignment, inertia := kmeansOnce(rng, X, k)
		if inertia < bestInertia {
			bestInertia = inertia
			best = assignment
		}
	}
	return best
}

func kmeansOnce(rng *rand.Rand, X [][]float64, k int) ([]int, float64) {
	centers := seedCenters(rng, X, k)
	assignment := make([]int, len(X))

	for iter := 0; iter < 300; iter++ {
		changed := false
		for i, x := range X {
			c := nearest(centers, x)
			if c != assignment[i] {
				assignment[i] = c
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		counts := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, len(X[0]))
		}
		for i, x := range X {
			c := assignment[i]
			counts[c]++
			for f, v := range x {
				next[c][f] += v
			}
		}
		for c := range next {
			if counts[c] == 0 {
				// An emptied cluster restarts on the point farthest from
				// its current center.
				next[c] = append([]float64(nil), X[farthest(centers, X, assignment)]...)
				continue
			}
			for f := range next[c] {
				next[c][f] /= float64(counts[c])
			}
		}
		centers = next
	}

	var inertia float64
	for i, x := range X {
		inertia += distSq(x, centers[assignment[i]])
	}
	return assignment, inertia
}

// seedCenters is k-means++: the first center uniform, each further one
// weighted by squared distance to the nearest chosen center.
func seedCenters(rng *rand.Rand, X [][]float64, k int) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), X[rng.Intn(len(X))]...))

	d2 := make([]float64, len(X))
	for len(centers) < k {
		var total float64
		for i, x := range X {
			d2[i] = distSq(x, centers[0])
			for _, c := range centers[1:] {
				if d := distSq(x, c); d < d2[i] {
					d2[i] = d
				}
			}
			total += d2[i]
		}

		pick := 0
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range d2 {
				target -= d
				if target <= 0 {
					pick = i
					break
				}
			}
		} else {
			pick = rng.Intn(len(X))
		}
		centers = append(centers, append([]float64(nil), X[pick]...))
	}
	return centers
}

func nearest(centers [][]float64, x []float64) int {
	best := 0
	bestD := distSq(x, centers[0])
	for c := 1; c < len(centers); c++ {
		if d := distSq(x, centers[c]); d < bestD {
			best = c
			bestD = d
		}
	}
	return best
}

func farthest(centers [][]float64, X [][]float64, assignment []int) int {
	best := 0
	bestD := -1.0
	for i, x := range X {
		if d := distSq(x, centers[assignment[i]]); d > bestD {
			best = i
			bestD = d
		}
	}
	return best
}

func distSq(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
