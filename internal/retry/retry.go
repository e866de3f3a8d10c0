// Package retry provides the exponential-backoff combinator applied at
// collaborator boundaries (notification, LLM transport). It is independent
// of the pipeline's own error taxonomy: callers decide what is retryable.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Do runs op with exponential backoff until it succeeds, the attempt cap is
// reached, or the context is done. maxAttempts counts the first try.
func Do(ctx context.Context, name string, op func() error, maxAttempts uint64, baseDelay time.Duration) error {
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseDelay

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil {
			log.Warn().Err(err).Str("op", name).Int("attempt", attempt).Msg("operation failed, backing off")
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx))
}
