// Package domain holds the reconciliation record types shared across the
// detection pipeline, transports and persistence.
package domain

import "time"

// Anomaly labels emitted by the detector.
const (
	AnomalyYes = "Yes"
	AnomalyNo  = "No"
)

// FeedbackStatus tracks where an anomaly sits in the review workflow.
type FeedbackStatus string

const (
	FeedbackPendingReview   FeedbackStatus = "Pending User Review"
	FeedbackResolvedByAgent FeedbackStatus = "Resolved by Agent"
)

// Anomaly categories. The first five form the fixed taxonomy the
// categorization capability is prompted with; the rest are capability
// failure sentinels that land in Anomaly_Category as terminal labels.
const (
	CategoryRoundingError  = "Rounding Error"
	CategoryTimingIssue    = "Timing Issue"
	CategoryDataEntryError = "Data Entry Error"
	CategorySystemError    = "System Error"
	CategoryNewIssue       = "New Issue"

	CategoryRateLimited   = "Rate Limit Exceeded"
	CategoryQuotaExceeded = "Quota Exceeded"
	CategoryAPIError      = "API Error"
	CategoryUncategorized = "Uncategorized"
	CategoryLLMDisabled   = "LLM Disabled"
)

// Summary sentinels used when the summarization capability cannot produce
// real text for a row.
const (
	SummaryUnavailable = "Resolution summary unavailable."
	SummaryLLMDisabled = "LLM Disabled"
)

// CapabilityFailure reports whether a category is a capability failure
// sentinel rather than a real classification. Sentinels are terminal for
// the row they land on but must never outlive it: a later attempt at the
// same comment gets a fresh model call.
func CapabilityFailure(category string) bool {
	switch category {
	case CategoryRateLimited, CategoryQuotaExceeded, CategoryAPIError, CategoryLLMDisabled:
		return true
	}
	return false
}

// AutoResolvable reports whether a category short-circuits to agent
// resolution without human review. Timing issues are the only such
// category in the current taxonomy.
func AutoResolvable(category string) bool {
	return category == CategoryTimingIssue
}

// TradeRecord is a single trade-reconciliation break as ingested from the
// upstream systems. Immutable once ingested.
type TradeRecord struct {
	TradeID            int64     `json:"TRADEID" db:"trade_id"`
	RiskDate           time.Time `json:"RISKDATE" db:"risk_date"`
	DeskName           string    `json:"DESKNAME" db:"desk_name"`
	QuantityDifference float64   `json:"QUANTITYDIFFERENCE" db:"quantity_difference"`
	ImpactPrice        float64   `json:"IMPACT_PRICE" db:"impact_price"`
	ImpactQuantity     float64   `json:"IMPACT_QUANTITY" db:"impact_quantity"`
	Comment            string    `json:"COMMENT" db:"comment"`
}

// AnomalyRecord is a TradeRecord the detector flagged, augmented with the
// feedback, categorization and resolution fields the pipeline fills in.
type AnomalyRecord struct {
	TradeRecord

	Anomaly           string         `json:"Anomaly" db:"anomaly"`
	PatternCluster    int            `json:"Pattern_Cluster" db:"pattern_cluster"`
	Feedback          FeedbackStatus `json:"Feedback" db:"feedback"`
	FeedbackDetails   string         `json:"Feedback_Details" db:"feedback_details"`
	TicketID          string         `json:"Ticket_ID" db:"ticket_id"`
	ResolutionTaskID  string         `json:"Resolution_Task_ID" db:"resolution_task_id"`
	AnomalyCategory   string         `json:"Anomaly_Category" db:"anomaly_category"`
	ResolutionSummary string         `json:"Resolution_Summary" db:"resolution_summary"`
}
