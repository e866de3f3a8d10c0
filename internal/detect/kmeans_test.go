package detect

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeBlobs returns rows drawn around three well-separated centers; the
// first n rows belong to center 0, the next n to center 1, and so on.
func threeBlobs(n int) [][]float64 {
	rng := rand.New(rand.NewSource(3))
	centers := [][]float64{{0, 0}, {100, 0}, {0, 100}}
	var matrix [][]float64
	for _, c := range centers {
		for i := 0; i < n; i++ {
			matrix = append(matrix, []float64{c[0] + rng.NormFloat64(), c[1] + rng.NormFloat64()})
		}
	}
	return matrix
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	matrix := threeBlobs(30)
	model, err := FitKMeans(matrix, 3, 42)
	require.NoError(t, err)

	got := model.Assign(matrix)
	require.Len(t, got, len(matrix))

	// Every blob must map onto a single cluster, and the three blobs onto
	// three distinct clusters.
	blobCluster := make([]int, 3)
	for b := 0; b < 3; b++ {
		blobCluster[b] = got[b*30]
		for i := 0; i < 30; i++ {
			assert.Equal(t, blobCluster[b], got[b*30+i], "blob %d split across clusters", b)
		}
	}
	assert.NotEqual(t, blobCluster[0], blobCluster[1])
	assert.NotEqual(t, blobCluster[1], blobCluster[2])
	assert.NotEqual(t, blobCluster[0], blobCluster[2])
}

func TestKMeansRejectsFewerRowsThanClusters(t *testing.T) {
	_, err := FitKMeans([][]float64{{1, 1}, {2, 2}}, 5, 42)
	require.Error(t, err)
}

func TestKMeansAssignIsStable(t *testing.T) {
	matrix := threeBlobs(20)
	model, err := FitKMeans(matrix, 3, 42)
	require.NoError(t, err)

	first := model.Assign(matrix)
	second := model.Assign(matrix)
	assert.Equal(t, first, second)
}
