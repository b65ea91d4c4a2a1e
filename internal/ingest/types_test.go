package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkIDStable(t *testing.T) {
	t.Parallel()

	a := LinkID("https://example.com/post")
	b := LinkID("https://example.com/post")
	c := LinkID("https://example.com/other")

	require.Len(t, a, 16)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, StatusSuccess.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusFetching.Terminal())
	require.False(t, StatusFetchComplete.Terminal())
	require.False(t, StatusClassifying.Terminal())
}

func TestClassificationResultValidate(t *testing.T) {
	t.Parallel()

	valid := ClassificationResult{
		Category:     "programming",
		Tags:         []string{"go"},
		Summary:      "short",
		Confidence:   0.9,
		QualityScore: 7,
	}
	require.NoError(t, valid.Validate())

	missingCategory := valid
	missingCategory.Category = ""
	require.Error(t, missingCategory.Validate())

	badConfidence := valid
	badConfidence.Confidence = 1.2
	require.Error(t, badConfidence.Validate())

	badQuality := valid
	badQuality.QualityScore = 0
	require.Error(t, badQuality.Validate())

	badQualityHigh := valid
	badQualityHigh.QualityScore = 11
	require.Error(t, badQualityHigh.Validate())
}
