package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// SkippedCluster is the sentinel cluster id assigned when a batch has fewer
// rows than the configured cluster count: clustering is statistically
// meaningless there and fitting is never invoked.
const SkippedCluster = -1

// Config parameterizes the model store.
type Config struct {
	DetectorPath  string
	ClusterPath   string
	Contamination float64
	Clusters      int
	Seed          int64
}

// Store owns the process-wide detector and clusterer. Each model is loaded
// from its persisted artifact, or lazily trained on the first batch seen and
// persisted, then frozen for the process lifetime. Initial training is
// serialized under a mutex: a single writer fits and persists, concurrent
// callers wait and reuse its result, so two racing batches can never persist
// incompatible models over each other.
type Store struct {
	mu  sync.Mutex
	cfg Config

	detector  *IsolationForest
	clusterer *KMeans

	// Fit counters, observable in white-box tests.
	detectorFits int
	clusterFits  int
}

func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Detect returns one Yes/No label per row, order-preserving. An empty batch
// yields an empty result without touching the model.
func (s *Store) Detect(matrix [][]float64) ([]string, error) {
	if len(matrix) == 0 {
		return nil, nil
	}
	detector, err := s.ensureDetector(matrix)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(matrix))
	anomalies := 0
	for i, row := range matrix {
		if detector.Anomalous(row) {
			labels[i] = domain.AnomalyYes
			anomalies++
		} else {
			labels[i] = domain.AnomalyNo
		}
	}
	log.Info().Int("rows", len(matrix)).Int("anomalies", anomalies).Msg("anomaly detection complete")
	return labels, nil
}

// Cluster returns one cluster id per row. Batches smaller than the
// configured cluster count get the sentinel id for every row.
func (s *Store) Cluster(matrix [][]float64) ([]int, error) {
	if len(matrix) == 0 {
		return []int{}, nil
	}
	if len(matrix) < s.cfg.Clusters {
		log.Warn().Int("rows", len(matrix)).Int("clusters", s.cfg.Clusters).
			Msg("skipping clustering, fewer rows than clusters")
		out := make([]int, len(matrix))
		for i := range out {
			out[i] = SkippedCluster
		}
		return out, nil
	}

	clusterer, err := s.ensureClusterer(matrix)
	if err != nil {
		return nil, err
	}
	return clusterer.Assign(matrix), nil
}

func (s *Store) ensureDetector(matrix [][]float64) (*IsolationForest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detector != nil {
		return s.detector, nil
	}

	var forest IsolationForest
	loaded, err := loadArtifact(s.cfg.DetectorPath, &forest)
	if err != nil {
		return nil, err
	}
	if loaded {
		s.detector = &forest
		log.Info().Str("path", s.cfg.DetectorPath).Msg("loaded isolation forest artifact")
		return s.detector, nil
	}

	log.Info().Int("rows", len(matrix)).Float64("contamination", s.cfg.Contamination).
		Msg("training isolation forest on first batch")
	fitted, err := FitIsolationForest(matrix, s.cfg.Contamination, s.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := saveArtifact(s.cfg.DetectorPath, fitted); err != nil {
		return nil, fmt.Errorf("persist isolation forest: %w", err)
	}
	s.detector = fitted
	s.detectorFits++
	return s.detector, nil
}

func (s *Store) ensureClusterer(matrix [][]float64) (*KMeans, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clusterer != nil {
		return s.clusterer, nil
	}

	var model KMeans
	loaded, err := loadArtifact(s.cfg.ClusterPath, &model)
	if err != nil {
		return nil, err
	}
	if loaded {
		s.clusterer = &model
		log.Info().Str("path", s.cfg.ClusterPath).Msg("loaded kmeans artifact")
		return s.clusterer, nil
	}

	log.Info().Int("rows", len(matrix)).Int("clusters", s.cfg.Clusters).
		Msg("training kmeans on first batch")
	fitted, err := FitKMeans(matrix, s.cfg.Clusters, s.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := saveArtifact(s.cfg.ClusterPath, fitted); err != nil {
		return nil, fmt.Errorf("persist kmeans: %w", err)
	}
	s.clusterer = fitted
	s.clusterFits++
	return s.clusterer, nil
}

// loadArtifact reads a persisted model; a missing file is not an error.
func loadArtifact(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return true, nil
}

func saveArtifact(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
