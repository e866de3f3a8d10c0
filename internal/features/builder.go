// Package features turns raw trade-reconciliation records into the
// fixed-width numeric feature matrix the anomaly models consume.
package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// rollingWindows are the trailing window sizes for the mean of
// QUANTITYDIFFERENCE and the standard deviation of IMPACT_PRICE.
var rollingWindows = []int{7, 14, 30}

// Builder computes feature vectors over a time-ordered batch. The desk-name
// vocabulary it encodes with is process-wide, persisted state.
type Builder struct {
	vocab *VocabStore
}

func NewBuilder(vocab *VocabStore) *Builder {
	return &Builder{vocab: vocab}
}

// Build sorts the batch by RISKDATE ascending and computes one feature
// vector per record. The returned record slice is the sorted batch; feature
// vectors align with it by position. Rolling and lag positions before a
// window is full are zero-filled rather than dropped, so the output row
// count always equals the input row count.
//
// Any failure here is a hard pipeline error: no partial feature frame is
// ever returned.
func (b *Builder) Build(records []domain.TradeRecord) ([]domain.TradeRecord, []domain.FeatureVector, error) {
	if len(records) == 0 {
		return nil, nil, nil
	}

	sorted := make([]domain.TradeRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RiskDate.Before(sorted[j].RiskDate)
	})

	for i, rec := range sorted {
		if rec.RiskDate.IsZero() {
			return nil, nil, fmt.Errorf("record %d (trade %d): missing RISKDATE", i, rec.TradeID)
		}
		if hasBadValue(rec.QuantityDifference, rec.ImpactPrice, rec.ImpactQuantity) {
			return nil, nil, fmt.Errorf("record %d (trade %d): non-finite numeric field", i, rec.TradeID)
		}
	}

	deskNames := make([]string, len(sorted))
	quantity := make([]float64, len(sorted))
	price := make([]float64, len(sorted))
	for i, rec := range sorted {
		deskNames[i] = rec.DeskName
		quantity[i] = rec.QuantityDifference
		price[i] = rec.ImpactPrice
	}

	vocab, err := b.vocab.Ensure(deskNames)
	if err != nil {
		return nil, nil, fmt.Errorf("desk vocabulary: %w", err)
	}

	quantityMeans := make(map[int][]float64, len(rollingWindows))
	priceStds := make(map[int][]float64, len(rollingWindows))
	for _, w := range rollingWindows {
		quantityMeans[w] = rollingMean(quantity, w)
		priceStds[w] = rollingStd(price, w)
	}
	lag1 := lagDiff(quantity)

	vectors := make([]domain.FeatureVector, len(sorted))
	for i, rec := range sorted {
		vectors[i] = domain.FeatureVector{
			QuantityDifference: rec.QuantityDifference,
			ImpactPrice:        rec.ImpactPrice,
			ImpactQuantity:     rec.ImpactQuantity,
			DayOfWeek:          float64(rec.RiskDate.Weekday()),
			Month:              float64(rec.RiskDate.Month()),
			DeskNameEncoded:    float64(vocab.Encode(rec.DeskName)),
			QuantityMean7d:     quantityMeans[7][i],
			QuantityMean14d:    quantityMeans[14][i],
			QuantityMean30d:    quantityMeans[30][i],
			PriceStd7d:         priceStds[7][i],
			PriceStd14d:        priceStds[14][i],
			PriceStd30d:        priceStds[30][i],
			QuantityDiffLag1:   lag1[i],
		}
	}

	log.Info().Int("rows", len(vectors)).Msg("feature frame built")
	return sorted, vectors, nil
}

func hasBadValue(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// rollingMean computes the trailing mean over a window of size w. Positions
// with fewer than w trailing samples yield 0.
func rollingMean(series []float64, w int) []float64 {
	out := make([]float64, len(series))
	var sum float64
	for i, v := range series {
		sum += v
		if i >= w {
			sum -= series[i-w]
		}
		if i >= w-1 {
			out[i] = sum / float64(w)
		}
	}
	return out
}

// rollingStd computes the trailing sample standard deviation (ddof=1) over a
// window of size w. Positions with fewer than w trailing samples yield 0.
func rollingStd(series []float64, w int) []float64 {
	out := make([]float64, len(series))
	if w < 2 {
		return out
	}
	for i := w - 1; i < len(series); i++ {
		window := series[i-w+1 : i+1]
		var mean float64
		for _, v := range window {
			mean += v
		}
		mean /= float64(w)
		var ss float64
		for _, v := range window {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(w-1))
	}
	return out
}

// lagDiff computes the first difference; the first position has no
// predecessor and yields 0.
func lagDiff(series []float64) []float64 {
	out := make([]float64, len(series))
	for i := 1; i < len(series); i++ {
		out[i] = series[i] - series[i-1]
	}
	return out
}
