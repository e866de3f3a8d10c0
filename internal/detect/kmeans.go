package detect

import (
	"fmt"
	"math"
	"math/rand"
)

const kmeansMaxIterations = 100

// KMeans assigns every row to its nearest centroid. Centroids are fixed at
// fit time; later batches are assigned against them without refitting.
type KMeans struct {
	K         int         `json:"k"`
	Centroids [][]float64 `json:"centroids"`
	Seed      int64       `json:"seed"`
}

// FitKMeans trains a k-means model with k-means++ seeding and Lloyd
// iterations. The caller is responsible for the fewer-rows-than-clusters
// policy; fitting with n < k is a hard error here.
func FitKMeans(matrix [][]float64, k int, seed int64) (*KMeans, error) {
	if k <= 0 {
		return nil, fmt.Errorf("kmeans fit: cluster count %d must be positive", k)
	}
	if err := validateMatrix(matrix, k); err != nil {
		return nil, fmt.Errorf("kmeans fit: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := seedCentroids(matrix, k, rng)
	assignments := make([]int, len(matrix))

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, row := range matrix {
			c := nearest(centroids, row)
			if assignments[i] != c {
				assignments[i] = c
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(matrix[0]))
		}
		for i, row := range matrix {
			c := assignments[i]
			counts[c]++
			for j, v := range row {
				sums[c][j] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Re-seed an emptied cluster on a random row.
				centroids[c] = append([]float64(nil), matrix[rng.Intn(len(matrix))]...)
				continue
			}
			for j := range centroids[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}

	return &KMeans{K: k, Centroids: centroids, Seed: seed}, nil
}

// Assign returns the nearest-centroid index for every row, in order.
func (m *KMeans) Assign(matrix [][]float64) []int {
	out := make([]int, len(matrix))
	for i, row := range matrix {
		out[i] = nearest(m.Centroids, row)
	}
	return out
}

// seedCentroids implements k-means++: each new centroid is drawn with
// probability proportional to the squared distance from the nearest
// already-chosen centroid.
func seedCentroids(matrix [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), matrix[rng.Intn(len(matrix))]...))

	for len(centroids) < k {
		dists := make([]float64, len(matrix))
		var total float64
		for i, row := range matrix {
			d := math.MaxFloat64
			for _, c := range centroids {
				if sq := squaredDistance(row, c); sq < d {
					d = sq
				}
			}
			dists[i] = d
			total += d
		}
		if total == 0 {
			// All remaining rows coincide with existing centroids.
			centroids = append(centroids, append([]float64(nil), matrix[rng.Intn(len(matrix))]...))
			continue
		}
		target := rng.Float64() * total
		var acc float64
		pick := len(matrix) - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), matrix[pick]...))
	}
	return centroids
}

func nearest(centroids [][]float64, row []float64) int {
	best, bestDist := 0, math.MaxFloat64
	for c, centroid := range centroids {
		if d := squaredDistance(row, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
