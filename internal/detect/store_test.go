package detect

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

func testStoreConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		DetectorPath:  filepath.Join(dir, "isolation_forest.json"),
		ClusterPath:   filepath.Join(dir, "kmeans.json"),
		Contamination: 0.05,
		Clusters:      3,
		Seed:          42,
	}
}

func TestDetectTrainsOnceAcrossBatches(t *testing.T) {
	cfg := testStoreConfig(t)
	store := NewStore(cfg)
	matrix := clusteredMatrix(100, 3)

	first, err := store.Detect(matrix)
	require.NoError(t, err)
	require.Len(t, first, len(matrix))
	assert.Equal(t, 1, store.detectorFits)

	second, err := store.Detect(clusteredMatrix(50, 1))
	require.NoError(t, err)
	require.Len(t, second, 51)
	assert.Equal(t, 1, store.detectorFits, "second batch must reuse the frozen model")
}

func TestFreshStoreLoadsPersistedArtifact(t *testing.T) {
	cfg := testStoreConfig(t)
	matrix := clusteredMatrix(100, 3)

	first := NewStore(cfg)
	labels, err := first.Detect(matrix)
	require.NoError(t, err)

	// A second process against the same artifacts classifies identically
	// and never refits.
	second := NewStore(cfg)
	again, err := second.Detect(matrix)
	require.NoError(t, err)
	assert.Equal(t, labels, again)
	assert.Zero(t, second.detectorFits)
}

func TestDetectEmptyBatch(t *testing.T) {
	store := NewStore(testStoreConfig(t))
	labels, err := store.Detect(nil)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestDetectDegenerateFirstBatchFailsHard(t *testing.T) {
	store := NewStore(testStoreConfig(t))
	_, err := store.Detect([][]float64{{1, 2, 3}})
	require.Error(t, err)
}

func TestClusterSentinelBelowClusterCount(t *testing.T) {
	store := NewStore(testStoreConfig(t))

	got, err := store.Cluster([][]float64{{1, 1}, {2, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int{SkippedCluster, SkippedCluster}, got)
	assert.Zero(t, store.clusterFits, "sentinel path must never invoke fitting")
}

func TestClusterEmptyBatch(t *testing.T) {
	store := NewStore(testStoreConfig(t))
	got, err := store.Cluster(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClusterTrainsOnceAcrossBatches(t *testing.T) {
	store := NewStore(testStoreConfig(t))

	first, err := store.Cluster(threeBlobs(20))
	require.NoError(t, err)
	require.Len(t, first, 60)
	assert.Equal(t, 1, store.clusterFits)

	_, err = store.Cluster(threeBlobs(10))
	require.NoError(t, err)
	assert.Equal(t, 1, store.clusterFits)
}

func TestConcurrentFirstUseTrainsSingleWriter(t *testing.T) {
	store := NewStore(testStoreConfig(t))
	matrix := clusteredMatrix(100, 3)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			labels, err := store.Detect(matrix)
			assert.NoError(t, err)
			assert.Len(t, labels, len(matrix))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.detectorFits, "racing first batches must share one fit")
}

func TestDetectLabelsAreYesNo(t *testing.T) {
	store := NewStore(testStoreConfig(t))
	labels, err := store.Detect(clusteredMatrix(80, 4))
	require.NoError(t, err)
	for _, l := range labels {
		assert.Contains(t, []string{domain.AnomalyYes, domain.AnomalyNo}, l)
	}
}
