// Package resolution carries anomalies through the feedback and
// auto-resolution state machine.
package resolution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
	"github.com/ewfx/sradg-ai-innovators/internal/ticketing"
)

// InitFeedback puts every anomaly into the initial review state. Applied
// unconditionally to each flagged record before categorization.
func InitFeedback(anomalies []domain.AnomalyRecord) {
	for i := range anomalies {
		anomalies[i].Feedback = domain.FeedbackPendingReview
		anomalies[i].FeedbackDetails = ""
		anomalies[i].TicketID = ""
		anomalies[i].ResolutionTaskID = ""
	}
}

// Resolver applies the rule-based auto-resolution step, minting resolution
// task ids and requesting tickets for auto-resolvable anomalies.
type Resolver struct {
	tickets ticketing.Client
}

func NewResolver(tickets ticketing.Client) *Resolver {
	return &Resolver{tickets: tickets}
}

// AutoResolve transitions every anomaly whose category is auto-resolvable
// to "Resolved by Agent". Each resolved record gets a fresh resolution task
// id, and a ticket is requested from the ticketing collaborator; when that
// fails or returns no id, a locally minted id keeps the record from ever
// being ticket-less. Records in any other category are left pending review.
func (r *Resolver) AutoResolve(ctx context.Context, anomalies []domain.AnomalyRecord) {
	resolved := 0
	for i := range anomalies {
		rec := &anomalies[i]
		if !domain.AutoResolvable(rec.AnomalyCategory) {
			continue
		}

		rec.Feedback = domain.FeedbackResolvedByAgent
		rec.FeedbackDetails = string(domain.FeedbackResolvedByAgent)
		rec.ResolutionTaskID = uuid.NewString()

		summary := fmt.Sprintf("Anomaly Detected: %d - %s", rec.TradeID, rec.AnomalyCategory)
		description := fmt.Sprintf(
			"Trade ID: %d\nDesk: %s\nComment: %s\nCategory: %s\nResolution: %s",
			rec.TradeID, rec.DeskName, rec.Comment, rec.AnomalyCategory, rec.ResolutionSummary,
		)

		ticketID, err := r.tickets.CreateTicket(ctx, summary, description)
		if err != nil || ticketID == "" {
			if err != nil {
				log.Warn().Err(err).Int64("trade_id", rec.TradeID).
					Msg("ticket creation failed, minting local ticket id")
			}
			ticketID = uuid.NewString()
		}
		rec.TicketID = ticketID
		resolved++
	}
	log.Info().Int("resolved", resolved).Msg("auto-resolution applied")
}
