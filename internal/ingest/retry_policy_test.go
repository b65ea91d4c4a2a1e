package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldRetryLimits(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(2)
	err := errors.New("transient")

	require.False(t, p.ShouldRetry(nil, 0))
	require.True(t, p.ShouldRetry(err, 0))
	require.True(t, p.ShouldRetry(err, 1))
	// Two retries allowed: the attempt after the second retry is final.
	require.False(t, p.ShouldRetry(err, 2))
}

func TestShouldRetryContextErrors(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3)
	require.False(t, p.ShouldRetry(context.Canceled, 0))
	// Per-call deadlines are transient and stay retryable.
	require.True(t, p.ShouldRetry(context.DeadlineExceeded, 0))
}

func TestBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5)
	prevCeiling := time.Duration(0)
	for attempt := 0; attempt < 8; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 5*time.Second)
		if d > prevCeiling {
			prevCeiling = d
		}
	}
	require.Greater(t, prevCeiling, time.Duration(0))
}

func TestZeroRetriesFailsFirstAttempt(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(0)
	require.False(t, p.ShouldRetry(errors.New("boom"), 0))
}
