// Package detect implements the unsupervised models behind the anomaly
// pipeline: an isolation forest for outlier scoring and k-means for pattern
// clustering, plus the store that owns their persisted artifacts.
package detect

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	defaultTreeCount    = 100
	defaultSubsampleCap = 256

	// minFitRows guards against self-calibrating a detector on a batch too
	// small to carry any distribution. Fitting below this is a hard error.
	minFitRows = 10
)

// treeNode is a node of one isolation tree. Leaves carry the number of
// training samples that ended there; internal nodes carry the split.
type treeNode struct {
	SplitFeature int       `json:"f,omitempty"`
	SplitValue   float64   `json:"v,omitempty"`
	Left         *treeNode `json:"l,omitempty"`
	Right        *treeNode `json:"r,omitempty"`
	Size         int       `json:"n,omitempty"`
}

func (n *treeNode) leaf() bool { return n.Left == nil && n.Right == nil }

// IsolationForest isolates outliers by random recursive partitioning:
// anomalous rows take shorter paths to isolation. The decision threshold is
// calibrated once, at fit time, from the training batch's own score
// distribution and the configured contamination rate; live classification
// enforces no bound.
type IsolationForest struct {
	Trees         []*treeNode `json:"trees"`
	SubsampleSize int         `json:"subsample_size"`
	Contamination float64     `json:"contamination"`
	Threshold     float64     `json:"threshold"`
	Seed          int64       `json:"seed"`
}

// FitIsolationForest trains a forest on the given matrix. Degenerate input
// (too few rows, non-finite values, ragged rows) is a hard error with no
// silent fallback.
func FitIsolationForest(matrix [][]float64, contamination float64, seed int64) (*IsolationForest, error) {
	if err := validateMatrix(matrix, minFitRows); err != nil {
		return nil, fmt.Errorf("isolation forest fit: %w", err)
	}
	if contamination <= 0 || contamination >= 0.5 {
		return nil, fmt.Errorf("isolation forest fit: contamination %v outside (0, 0.5)", contamination)
	}

	n := len(matrix)
	subsample := defaultSubsampleCap
	if n < subsample {
		subsample = n
	}
	depthLimit := int(math.Ceil(math.Log2(float64(subsample))))

	rng := rand.New(rand.NewSource(seed))
	forest := &IsolationForest{
		Trees:         make([]*treeNode, 0, defaultTreeCount),
		SubsampleSize: subsample,
		Contamination: contamination,
		Seed:          seed,
	}
	for t := 0; t < defaultTreeCount; t++ {
		idx := rng.Perm(n)[:subsample]
		forest.Trees = append(forest.Trees, buildTree(matrix, idx, 0, depthLimit, rng))
	}

	// Calibrate the threshold so roughly the contamination fraction of the
	// training batch scores above it.
	scores := make([]float64, n)
	for i, row := range matrix {
		scores[i] = forest.Score(row)
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	cut := int(math.Ceil(float64(n)*(1-contamination))) - 1
	if cut < 0 {
		cut = 0
	}
	if cut >= n {
		cut = n - 1
	}
	forest.Threshold = sorted[cut]

	return forest, nil
}

func buildTree(matrix [][]float64, idx []int, depth, limit int, rng *rand.Rand) *treeNode {
	if depth >= limit || len(idx) <= 1 {
		return &treeNode{Size: len(idx)}
	}

	cols := len(matrix[0])
	// Pick a random split feature among those not constant on this subset.
	candidates := rng.Perm(cols)
	var feature int
	var lo, hi float64
	found := false
	for _, f := range candidates {
		lo, hi = matrix[idx[0]][f], matrix[idx[0]][f]
		for _, i := range idx[1:] {
			v := matrix[i][f]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			feature = f
			found = true
			break
		}
	}
	if !found {
		// Every remaining feature is constant; nothing left to isolate.
		return &treeNode{Size: len(idx)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []int
	for _, i := range idx {
		if matrix[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		SplitFeature: feature,
		SplitValue:   split,
		Left:         buildTree(matrix, left, depth+1, limit, rng),
		Right:        buildTree(matrix, right, depth+1, limit, rng),
	}
}

// Score returns the anomaly score of a single row in (0, 1); higher is more
// anomalous.
func (f *IsolationForest) Score(row []float64) float64 {
	var total float64
	for _, tree := range f.Trees {
		total += pathLength(tree, row, 0)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/avgPathLength(f.SubsampleSize))
}

// Anomalous classifies a row against the frozen fit-time threshold.
func (f *IsolationForest) Anomalous(row []float64) bool {
	return f.Score(row) > f.Threshold
}

func pathLength(node *treeNode, row []float64, depth int) float64 {
	if node.leaf() {
		return float64(depth) + avgPathLength(node.Size)
	}
	if row[node.SplitFeature] < node.SplitValue {
		return pathLength(node.Left, row, depth+1)
	}
	return pathLength(node.Right, row, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n samples, used to normalize isolation depths.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		h := math.Log(float64(n-1)) + 0.5772156649015329
		return 2*h - 2*float64(n-1)/float64(n)
	}
}

func validateMatrix(matrix [][]float64, minRows int) error {
	if len(matrix) < minRows {
		return fmt.Errorf("need at least %d rows, got %d", minRows, len(matrix))
	}
	cols := len(matrix[0])
	if cols == 0 {
		return fmt.Errorf("zero-width feature matrix")
	}
	for i, row := range matrix {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d column %d is not finite", i, j)
			}
		}
	}
	return nil
}
