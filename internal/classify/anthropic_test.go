package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validPayload = `{"category":"programming","tags":["go","sqlite"],"summary":"A post.","confidence":0.85,"quality_score":7}`

func TestParseResultPlainJSON(t *testing.T) {
	t.Parallel()

	result, err := ParseResult(validPayload)
	require.NoError(t, err)
	require.Equal(t, "programming", result.Category)
	require.Equal(t, []string{"go", "sqlite"}, result.Tags)
	require.InDelta(t, 0.85, result.Confidence, 1e-9)
	require.Equal(t, 7, result.QualityScore)
}

func TestParseResultStripsCodeFence(t *testing.T) {
	t.Parallel()

	fenced := "```json\n" + validPayload + "\n```"
	result, err := ParseResult(fenced)
	require.NoError(t, err)
	require.Equal(t, "programming", result.Category)
}

func TestParseResultIgnoresSurroundingProse(t *testing.T) {
	t.Parallel()

	wrapped := "Here is the classification you asked for:\n" + validPayload + "\nLet me know if you need anything else."
	result, err := ParseResult(wrapped)
	require.NoError(t, err)
	require.Equal(t, "programming", result.Category)
}

func TestParseResultHandlesBracesInStrings(t *testing.T) {
	t.Parallel()

	payload := `{"category":"notes","tags":[],"summary":"uses { and } inline","confidence":0.5,"quality_score":5}`
	result, err := ParseResult(payload)
	require.NoError(t, err)
	require.Equal(t, "uses { and } inline", result.Summary)
}

func TestParseResultRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"no json here",
		"{unterminated",
		`{"category":"x","confidence":"high","quality_score":5}`,
	}
	for _, tc := range cases {
		_, err := ParseResult(tc)
		require.Error(t, err, "input %q", tc)
	}
}

func TestParseResultRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"category":"","tags":[],"summary":"","confidence":0.5,"quality_score":5}`,
		`{"category":"x","tags":[],"summary":"","confidence":1.5,"quality_score":5}`,
		`{"category":"x","tags":[],"summary":"","confidence":0.5,"quality_score":0}`,
		`{"category":"x","tags":[],"summary":"","confidence":0.5,"quality_score":11}`,
	}
	for _, tc := range cases {
		_, err := ParseResult(tc)
		require.Error(t, err, "input %q", tc)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	c, err := New(Config{APIKey: "test-key"})
	require.NoError(t, err)
	require.NotNil(t, c)
}
