package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "ok", func() error {
		calls++
		return nil
	}, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtAttemptCap(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "down", func() error {
		calls++
		return errors.New("still down")
	}, 3, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, "cancelled", func() error {
		calls++
		return errors.New("nope")
	}, 10, 50*time.Millisecond)
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
