package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// Schema of the anomalies table:
//
//	CREATE TABLE IF NOT EXISTS anomalies (
//	    id                  BIGSERIAL PRIMARY KEY,
//	    trade_id            BIGINT NOT NULL,
//	    risk_date           TIMESTAMPTZ NOT NULL,
//	    desk_name           TEXT NOT NULL,
//	    quantity_difference DOUBLE PRECISION NOT NULL,
//	    impact_price        DOUBLE PRECISION NOT NULL,
//	    impact_quantity     DOUBLE PRECISION NOT NULL,
//	    comment             TEXT NOT NULL,
//	    anomaly             TEXT NOT NULL,
//	    pattern_cluster     INT NOT NULL,
//	    feedback            TEXT NOT NULL,
//	    feedback_details    TEXT NOT NULL,
//	    ticket_id           TEXT NOT NULL,
//	    resolution_task_id  TEXT NOT NULL,
//	    anomaly_category    TEXT NOT NULL,
//	    resolution_summary  TEXT NOT NULL,
//	    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
//	);

// PostgresRepo persists anomaly records for downstream reporting.
type PostgresRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresRepo(dsn string, timeout time.Duration) (*PostgresRepo, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresRepo{db: db, timeout: timeout}, nil
}

const insertAnomaly = `
	INSERT INTO anomalies
	(trade_id, risk_date, desk_name, quantity_difference, impact_price,
	 impact_quantity, comment, anomaly, pattern_cluster, feedback,
	 feedback_details, ticket_id, resolution_task_id, anomaly_category,
	 resolution_summary)
	VALUES (:trade_id, :risk_date, :desk_name, :quantity_difference,
	 :impact_price, :impact_quantity, :comment, :anomaly, :pattern_cluster,
	 :feedback, :feedback_details, :ticket_id, :resolution_task_id,
	 :anomaly_category, :resolution_summary)`

// InsertBatch writes all records in one transaction.
func (r *PostgresRepo) InsertBatch(ctx context.Context, records []domain.AnomalyRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, rec := range records {
		if _, err := tx.NamedExecContext(ctx, insertAnomaly, rec); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert anomaly %d: %w", rec.TradeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit anomalies: %w", err)
	}

	log.Info().Int("rows", len(records)).Msg("anomalies persisted to postgres")
	return nil
}

func (r *PostgresRepo) Close() error {
	return r.db.Close()
}
