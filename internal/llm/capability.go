// Package llm provides the categorization/summarization capability the
// resolution pipeline depends on: a chat-completions client with rate
// limiting, retries and a circuit breaker, a content-hash response cache,
// and a disabled stand-in for deployments without an API key.
package llm

import (
	"context"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// Capability is the categorization/summarization contract. Implementations
// may return domain sentinel values in place of failing; an error from
// either call means the caller should degrade that row to its fallback
// sentinel. Calls either succeed with a value or fail; they never block
// beyond their own timeout/retry budget.
type Capability interface {
	// Categorize buckets an anomaly comment into the fixed taxonomy.
	Categorize(ctx context.Context, comment string) (string, error)
	// Summarize proposes a resolution for the full anomaly row.
	Summarize(ctx context.Context, rec domain.AnomalyRecord) (string, error)
}

// Disabled satisfies Capability with fixed sentinels, used when the
// capability is switched off in configuration.
type Disabled struct{}

func (Disabled) Categorize(ctx context.Context, comment string) (string, error) {
	return domain.CategoryLLMDisabled, nil
}

func (Disabled) Summarize(ctx context.Context, rec domain.AnomalyRecord) (string, error) {
	return domain.SummaryLLMDisabled, nil
}
