package features

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

func testRecords(n int, desk func(i int) string) []domain.TradeRecord {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	records := make([]domain.TradeRecord, n)
	for i := range records {
		records[i] = domain.TradeRecord{
			TradeID:            int64(1000 + i),
			RiskDate:           base.AddDate(0, 0, i),
			DeskName:           desk(i),
			QuantityDifference: float64(i + 1),
			ImpactPrice:        100 + float64(i)*0.5,
			ImpactQuantity:     float64(i * 10),
			Comment:            "settlement lag",
		}
	}
	return records
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder(NewVocabStore(filepath.Join(t.TempDir(), "desk_vocab.json")))
}

func TestBuildRowCountStable(t *testing.T) {
	builder := newTestBuilder(t)
	records := testRecords(35, func(i int) string { return "RATES" })

	sorted, vectors, err := builder.Build(records)
	require.NoError(t, err)
	assert.Len(t, sorted, 35)
	assert.Len(t, vectors, 35)
}

func TestBuildSortsByRiskDate(t *testing.T) {
	builder := newTestBuilder(t)
	records := testRecords(10, func(i int) string { return "FX" })
	// Shuffle deterministically: reverse the batch.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	sorted, vectors, err := builder.Build(records)
	require.NoError(t, err)
	for i := 1; i < len(sorted); i++ {
		assert.False(t, sorted[i].RiskDate.Before(sorted[i-1].RiskDate))
	}
	// Lag of the second row reflects date order, not input order.
	assert.Equal(t, 1.0, vectors[1].QuantityDiffLag1)
}

func TestWarmupPositionsAreZeroFilled(t *testing.T) {
	builder := newTestBuilder(t)
	records := testRecords(10, func(i int) string { return "CREDIT" })

	_, vectors, err := builder.Build(records)
	require.NoError(t, err)

	assert.Zero(t, vectors[0].QuantityDiffLag1)
	for i := 0; i < 6; i++ {
		assert.Zero(t, vectors[i].QuantityMean7d, "row %d inside 7d warmup", i)
		assert.Zero(t, vectors[i].PriceStd7d, "row %d inside 7d warmup", i)
	}
	// Windows larger than the batch never fill.
	for i := range vectors {
		assert.Zero(t, vectors[i].QuantityMean14d)
		assert.Zero(t, vectors[i].QuantityMean30d)
	}

	// First full 7d window: mean of 1..7.
	assert.InDelta(t, 4.0, vectors[6].QuantityMean7d, 1e-9)
	assert.Greater(t, vectors[6].PriceStd7d, 0.0)
}

func TestUnseenDeskEncodesToSentinel(t *testing.T) {
	store := NewVocabStore(filepath.Join(t.TempDir(), "desk_vocab.json"))
	builder := NewBuilder(store)

	_, _, err := builder.Build(testRecords(5, func(i int) string { return "EQUITIES" }))
	require.NoError(t, err)

	// Second batch introduces a desk the persisted vocabulary never saw.
	_, vectors, err := builder.Build(testRecords(5, func(i int) string { return "COMMODITIES" }))
	require.NoError(t, err)
	for _, v := range vectors {
		assert.Equal(t, float64(UnknownDeskCode), v.DeskNameEncoded)
	}
}

func TestVocabularyCodesAreStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk_vocab.json")
	store := NewVocabStore(path)
	builder := NewBuilder(store)

	desks := []string{"RATES", "FX", "CREDIT"}
	_, first, err := builder.Build(testRecords(9, func(i int) string { return desks[i%3] }))
	require.NoError(t, err)

	// A fresh store against the same artifact must yield the same codes.
	rebuilt := NewBuilder(NewVocabStore(path))
	_, second, err := rebuilt.Build(testRecords(9, func(i int) string { return desks[i%3] }))
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].DeskNameEncoded, second[i].DeskNameEncoded)
	}
}

func TestBuildRejectsNonFiniteValues(t *testing.T) {
	builder := newTestBuilder(t)

	tests := []struct {
		name   string
		mutate func(*domain.TradeRecord)
	}{
		{"NaN quantity difference", func(r *domain.TradeRecord) { r.QuantityDifference = math.NaN() }},
		{"infinite impact price", func(r *domain.TradeRecord) { r.ImpactPrice = math.Inf(1) }},
		{"NaN impact quantity", func(r *domain.TradeRecord) { r.ImpactQuantity = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := testRecords(10, func(i int) string { return "RATES" })
			tt.mutate(&records[4])

			sorted, vectors, err := builder.Build(records)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "non-finite")
			assert.Nil(t, sorted)
			assert.Nil(t, vectors)
		})
	}
}

func TestBuildRejectsMissingRiskDate(t *testing.T) {
	builder := newTestBuilder(t)
	records := testRecords(10, func(i int) string { return "RATES" })
	records[7].RiskDate = time.Time{}

	sorted, vectors, err := builder.Build(records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RISKDATE")
	assert.Nil(t, sorted)
	assert.Nil(t, vectors)
}

func TestBuildEmptyBatch(t *testing.T) {
	builder := newTestBuilder(t)
	sorted, vectors, err := builder.Build(nil)
	require.NoError(t, err)
	assert.Empty(t, sorted)
	assert.Empty(t, vectors)
}

func TestRollingStdMatchesSampleVariance(t *testing.T) {
	got := rollingStd([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 4)
	assert.Zero(t, got[2])
	// std of {2,4,4,4} with ddof=1 is 1.
	assert.InDelta(t, 1.0, got[3], 1e-9)
}
