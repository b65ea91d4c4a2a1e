package topicmem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkarpis/linkmind/internal/ingest"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-12)
	require.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)
	require.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-12)

	// Degenerate inputs collapse to zero.
	require.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	require.Zero(t, CosineSimilarity([]float64{1}, []float64{1, 2}))
	require.Zero(t, CosineSimilarity(nil, nil))
}

func TestMeanUpdateIsRunningMean(t *testing.T) {
	t.Parallel()

	vectors := [][]float64{
		{1, 2, 3},
		{3, 2, 1},
		{-1, 0, 5},
		{2, 2, 2},
	}

	centroid := append([]float64(nil), vectors[0]...)
	for i := 1; i < len(vectors); i++ {
		centroid = MeanUpdate(centroid, i, vectors[i])
	}

	for dim := 0; dim < 3; dim++ {
		var sum float64
		for _, v := range vectors {
			sum += v[dim]
		}
		require.InDelta(t, sum/float64(len(vectors)), centroid[dim], 1e-9)
	}
}

func TestMeanUpdateDegenerateCounts(t *testing.T) {
	t.Parallel()

	v := []float64{4, 5}
	require.Equal(t, v, MeanUpdate(nil, 0, v))
	require.Equal(t, v, MeanUpdate([]float64{1}, 3, v)) // length mismatch resets
}

func TestNearestPicksHighestSimilarity(t *testing.T) {
	t.Parallel()

	topics := []ingest.TopicEntry{
		{ID: 1, Centroid: []float64{1, 0}},
		{ID: 2, Centroid: []float64{0, 1}},
		{ID: 3, Centroid: []float64{1, 1}},
	}
	best, sim, ok := Nearest(topics, []float64{0, 2})
	require.True(t, ok)
	require.Equal(t, int64(2), best.ID)
	require.InDelta(t, 1.0, sim, 1e-12)
}

func TestNearestTieBreaksLowestID(t *testing.T) {
	t.Parallel()

	topics := []ingest.TopicEntry{
		{ID: 7, Centroid: []float64{2, 0}},
		{ID: 3, Centroid: []float64{5, 0}},
		{ID: 9, Centroid: []float64{1, 0}},
	}
	best, _, ok := Nearest(topics, []float64{1, 0})
	require.True(t, ok)
	require.Equal(t, int64(3), best.ID)
}

func TestNearestSkipsZeroNormCentroids(t *testing.T) {
	t.Parallel()

	topics := []ingest.TopicEntry{
		{ID: 1, Centroid: []float64{0, 0}},
		{ID: 2, Centroid: []float64{1, 0}},
	}
	best, _, ok := Nearest(topics, []float64{1, 0})
	require.True(t, ok)
	require.Equal(t, int64(2), best.ID)

	_, _, ok = Nearest([]ingest.TopicEntry{{ID: 1, Centroid: []float64{0, 0}}}, []float64{1, 0})
	require.False(t, ok)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	t.Parallel()

	v := []float64{0, 1.5, -2.25, math.Pi, math.MaxFloat64, math.SmallestNonzeroFloat64}
	decoded := DecodeVector(EncodeVector(v))
	require.Equal(t, v, decoded)

	require.Empty(t, DecodeVector(nil))
	// Trailing partial values are dropped.
	require.Len(t, DecodeVector(make([]byte, 20)), 2)
}
