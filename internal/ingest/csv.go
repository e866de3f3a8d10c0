// Package ingest parses trade-reconciliation CSV exports into records.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// riskDateLayouts are tried in order when parsing RISKDATE values.
var riskDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ReadRecords parses a reconciliation CSV. A malformed schema or value is a
// hard error: partial batches never reach the pipeline.
func ReadRecords(path string) ([]domain.TradeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("rows", len(records)).Msg("trade records ingested")
	return records, nil
}

func parse(r io.Reader) ([]domain.TradeRecord, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToUpper(name))] = i
	}
	for _, required := range []string{
		"TRADEID", "RISKDATE", "DESKNAME", "QUANTITYDIFFERENCE",
		"IMPACT_PRICE", "IMPACT_QUANTITY", "COMMENT",
	} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %s", required)
		}
	}

	var out []domain.TradeRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		tradeID, err := strconv.ParseInt(strings.TrimSpace(row[col["TRADEID"]]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: TRADEID: %w", line, err)
		}
		riskDate, err := parseRiskDate(strings.TrimSpace(row[col["RISKDATE"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: RISKDATE: %w", line, err)
		}
		quantityDiff, err := parseFloat(row[col["QUANTITYDIFFERENCE"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: QUANTITYDIFFERENCE: %w", line, err)
		}
		impactPrice, err := parseFloat(row[col["IMPACT_PRICE"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: IMPACT_PRICE: %w", line, err)
		}
		impactQty, err := parseFloat(row[col["IMPACT_QUANTITY"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: IMPACT_QUANTITY: %w", line, err)
		}

		out = append(out, domain.TradeRecord{
			TradeID:            tradeID,
			RiskDate:           riskDate,
			DeskName:           strings.TrimSpace(row[col["DESKNAME"]]),
			QuantityDifference: quantityDiff,
			ImpactPrice:        impactPrice,
			ImpactQuantity:     impactQty,
			Comment:            row[col["COMMENT"]],
		})
	}
	return out, nil
}

func parseRiskDate(value string) (time.Time, error) {
	for _, layout := range riskDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func parseFloat(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}
