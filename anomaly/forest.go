/*
forest.go - Isolation forest

PURPOSE:
  A from-scratch isolation forest. Each tree recursively splits a random
  subsample on a random feature at a random threshold; anomalous points
  isolate in few splits, so short average path lengths mean outliers.
  Scores follow the standard normalization: -2^(-E[h(x)]/c(psi)), where
  c(n) is the average path length of an unsuccessful binary search, so
  values near -1 are the most anomalous and values near -0.4 are typical.
*/
package anomaly

import (
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649015329

type forest struct {
	trees []*treeNode
	psi   int
}

// treeNode is one node of an isolation tree. Internal nodes carry the
// split; leaves carry how many subsample points landed there, which
// feeds the path-length adjustment for early termination.
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	size      int
}

func (n *treeNode) leaf() bool { return n.left == nil }

func growForest(rng *rand.Rand, X [][]float64, cfg Config) *forest {
	psi := cfg.SampleCap
	if len(X) < psi {
		psi = len(X)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	f := &forest{trees: make([]*treeNode, cfg.Trees), psi: psi}
	for i := range f.trees {
		perm := rng.Perm(len(X))
		sample := make([][]float64, psi)
		for j := 0; j < psi; j++ {
			sample[j] = X[perm[j]]
		}
		f.trees[i] = growTree(rng, sample, 0, maxDepth)
	}
	return f
}

func growTree(rng *rand.Rand, points [][]float64, depth, maxDepth int) *treeNode {
	if depth >= maxDepth || len(points) <= 1 {
		return &treeNode{size: len(points)}
	}

	feature, lo, hi, ok := pickSplitFeature(rng, points)
	if !ok {
		return &treeNode{size: len(points)}
	}
	threshold := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, p := range points {
		if p[feature] <= threshold {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	// Float rounding can push the threshold onto the max of a very tight
	// range, emptying one side.
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{size: len(points)}
	}
	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      growTree(rng, left, depth+1, maxDepth),
		right:     growTree(rng, right, depth+1, maxDepth),
	}
}

// pickSplitFeature chooses uniformly among the features that still vary
// within this node; a node where every feature is constant cannot split.
func pickSplitFeature(rng *rand.Rand, points [][]float64) (feature int, lo, hi float64, ok bool) {
	type span struct {
		feature int
		lo, hi  float64
	}
	var candidates []span
	for f := range points[0] {
		min, max := points[0][f], points[0][f]
		for _, p := range points[1:] {
			if p[f] < min {
				min = p[f]
			}
			if p[f] > max {
				max = p[f]
			}
		}
		if min < max {
			candidates = append(candidates, span{feature: f, lo: min, hi: max})
		}
	}
	if len(candidates) == 0 {
		return 0, 0, 0, false
	}
	c := candidates[rng.Intn(len(candidates))]
	return c.feature, c.lo, c.hi, true
}

// score returns the normalized anomaly score for one point, in (-1, 0].
func (f *forest) score(x []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += pathLength(t, x)
	}
	mean := sum / float64(len(f.trees))
	return -math.Pow(2, -mean/avgPathLength(f.psi))
}

func pathLength(node *treeNode, x []float64) float64 {
	var edges float64
	for !node.leaf() {
		if x[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
		edges++
	}
	return edges + avgPathLength(node.size)
}

// avgPathLength is c(n), the expected path length of an unsuccessful
// search in a binary search tree over n points.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	nf := float64(n)
	return 2*(math.Log(nf-1)+eulerGamma) - 2*(nf-1)/nf
}
