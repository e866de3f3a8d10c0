// Package persistence writes computed anomaly sets to their output sinks: a
// timestamped CSV dump for the operations team and, when configured, a
// Postgres table for downstream reporting.
package persistence

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// Saver is the persistence collaborator contract: a write-once dump whose
// failure is logged by the caller, never fatal to the pipeline.
type Saver interface {
	Save(records []domain.AnomalyRecord, path string) error
}

// CSVStore dumps anomaly records to a CSV file, creating parent directories
// as needed.
type CSVStore struct{}

func NewCSVStore() *CSVStore {
	return &CSVStore{}
}

var csvHeader = []string{
	"TRADEID", "RISKDATE", "DESKNAME", "QUANTITYDIFFERENCE", "IMPACT_PRICE",
	"IMPACT_QUANTITY", "COMMENT", "Anomaly", "Pattern_Cluster", "Feedback",
	"Feedback_Details", "Ticket_ID", "Resolution_Task_ID", "Anomaly_Category",
	"Resolution_Summary",
}

func (s *CSVStore) Save(records []domain.AnomalyRecord, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.TradeID, 10),
			rec.RiskDate.Format(time.RFC3339),
			rec.DeskName,
			strconv.FormatFloat(rec.QuantityDifference, 'f', -1, 64),
			strconv.FormatFloat(rec.ImpactPrice, 'f', -1, 64),
			strconv.FormatFloat(rec.ImpactQuantity, 'f', -1, 64),
			rec.Comment,
			rec.Anomaly,
			strconv.Itoa(rec.PatternCluster),
			string(rec.Feedback),
			rec.FeedbackDetails,
			rec.TicketID,
			rec.ResolutionTaskID,
			rec.AnomalyCategory,
			rec.ResolutionSummary,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("rows", len(records)).Msg("anomalies saved")
	return nil
}

// OutputPath expands the {timestamp} placeholder of the configured anomaly
// output template.
func OutputPath(template string, now time.Time) string {
	return strings.ReplaceAll(template, "{timestamp}", now.Format("20060102_150405"))
}
