package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mkarpis/linkmind/internal/ingest"
	"github.com/mkarpis/linkmind/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, LinkID: "l1", Old: "", New: ingest.StatusPending, TS: now},
		{RunID: runID, LinkID: "l1", Old: ingest.StatusPending, New: ingest.StatusFetching, TS: now},
		{RunID: runID, LinkID: "l1", Old: ingest.StatusFetching, New: ingest.StatusFetching, TS: now}, // retry
		{RunID: runID, LinkID: "l1", Old: ingest.StatusFetching, New: ingest.StatusFetchComplete, TS: now},
		{RunID: runID, LinkID: "l1", Old: ingest.StatusFetchComplete, New: ingest.StatusClassifying, TS: now},
		{RunID: runID, LinkID: "l1", Old: ingest.StatusClassifying, New: ingest.StatusSuccess, TS: now},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.transitions.WithLabelValues(string(ingest.StatusFetching))))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.transitions.WithLabelValues(string(ingest.StatusSuccess))))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.retries))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.terminal.WithLabelValues(string(ingest.StatusSuccess))))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.inFlight))
}

func TestPrometheusSinkInFlightBalancesForResumedLinks(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Now()
	// A resumed link enters at FETCH_COMPLETE without ever passing PENDING.
	batch := []progress.Event{
		{RunID: runID, LinkID: "r1", Old: "", New: ingest.StatusFetchComplete, TS: now},
		{RunID: runID, LinkID: "r1", Old: ingest.StatusFetchComplete, New: ingest.StatusClassifying, TS: now},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.inFlight))

	terminal := []progress.Event{
		{RunID: runID, LinkID: "r1", Old: ingest.StatusClassifying, New: ingest.StatusFailed, TS: now},
	}
	require.NoError(t, sink.Consume(context.Background(), terminal))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.inFlight))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.terminal.WithLabelValues(string(ingest.StatusFailed))))
}
