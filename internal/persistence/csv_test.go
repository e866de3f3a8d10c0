package persistence

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

func TestCSVStoreWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "anomalies.csv")
	records := []domain.AnomalyRecord{
		{
			TradeRecord: domain.TradeRecord{
				TradeID:            42,
				RiskDate:           time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
				DeskName:           "RATES",
				QuantityDifference: 3.5,
				Comment:            "late fixing",
			},
			Anomaly:         domain.AnomalyYes,
			PatternCluster:  2,
			Feedback:        domain.FeedbackPendingReview,
			AnomalyCategory: domain.CategoryTimingIssue,
		},
	}

	require.NoError(t, NewCSVStore().Save(records, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "42", rows[1][0])
	assert.Equal(t, "RATES", rows[1][2])
	assert.Equal(t, "Timing Issue", rows[1][13])
}

func TestCSVStoreEmptySetStillWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomalies.csv")
	require.NoError(t, NewCSVStore().Save(nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TRADEID")
}

func TestOutputPathExpandsTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	got := OutputPath("out/detected_anomalies_{timestamp}.csv", now)
	assert.Equal(t, "out/detected_anomalies_20250601_093000.csv", got)
}
