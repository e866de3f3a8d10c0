// Package validation applies the deterministic materiality gate that keeps
// low-value anomalies away from the LLM and ticketing collaborators.
package validation

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// FilterConsistent keeps only anomalies whose absolute quantity difference
// is below the configured threshold. Pure and idempotent: re-running it on
// its own output is a no-op.
func FilterConsistent(anomalies []domain.AnomalyRecord, threshold float64) []domain.AnomalyRecord {
	kept := make([]domain.AnomalyRecord, 0, len(anomalies))
	for _, rec := range anomalies {
		if math.Abs(rec.QuantityDifference) < threshold {
			kept = append(kept, rec)
		}
	}
	log.Info().Int("in", len(anomalies)).Int("kept", len(kept)).
		Float64("threshold", threshold).Msg("consistency filter applied")
	return kept
}
