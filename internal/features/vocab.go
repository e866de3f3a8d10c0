package features

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// UnknownDeskCode is assigned to desk names absent from the persisted
// vocabulary. Unseen desks are a warning, never an error: code assignments
// must stay stable for the lifetime of the artifact.
const UnknownDeskCode = -1

// Vocabulary maps desk names to stable integer codes. It is built once from
// the first batch seen without a persisted artifact and never retrained
// automatically afterwards.
type Vocabulary struct {
	Codes map[string]int `json:"codes"`
}

// buildVocabulary assigns codes to the distinct desk names of a batch in
// lexicographic order, so the assignment does not depend on row order.
func buildVocabulary(deskNames []string) *Vocabulary {
	seen := make(map[string]struct{}, len(deskNames))
	distinct := make([]string, 0, len(deskNames))
	for _, name := range deskNames {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		distinct = append(distinct, name)
	}
	sort.Strings(distinct)

	codes := make(map[string]int, len(distinct))
	for i, name := range distinct {
		codes[name] = i
	}
	return &Vocabulary{Codes: codes}
}

// Encode returns the code for a desk name, or UnknownDeskCode with a logged
// warning when the name was not part of the vocabulary at build time.
func (v *Vocabulary) Encode(deskName string) int {
	code, ok := v.Codes[deskName]
	if !ok {
		log.Warn().Str("desk", deskName).Msg("unseen desk name, encoding with sentinel")
		return UnknownDeskCode
	}
	return code
}

// VocabStore owns the persisted vocabulary artifact. First use without an
// artifact builds and persists one under an exclusive lock; every later
// call reuses the frozen vocabulary.
type VocabStore struct {
	mu    sync.Mutex
	path  string
	vocab *Vocabulary
}

func NewVocabStore(path string) *VocabStore {
	return &VocabStore{path: path}
}

// Ensure returns the process-wide vocabulary, loading the persisted artifact
// or lazily building one from the given batch of desk names.
func (s *VocabStore) Ensure(deskNames []string) (*Vocabulary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vocab != nil {
		return s.vocab, nil
	}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var v Vocabulary
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode vocabulary %s: %w", s.path, err)
		}
		s.vocab = &v
		log.Info().Str("path", s.path).Int("desks", len(v.Codes)).Msg("loaded desk vocabulary")
	case os.IsNotExist(err):
		v := buildVocabulary(deskNames)
		if err := writeJSONArtifact(s.path, v); err != nil {
			return nil, fmt.Errorf("persist vocabulary: %w", err)
		}
		s.vocab = v
		log.Info().Str("path", s.path).Int("desks", len(v.Codes)).Msg("built and persisted desk vocabulary")
	default:
		return nil, fmt.Errorf("read vocabulary %s: %w", s.path, err)
	}

	return s.vocab, nil
}

func writeJSONArtifact(path string, v any) error {
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
