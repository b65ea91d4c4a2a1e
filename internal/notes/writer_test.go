package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)
	return w, root
}

func sampleNote() LinkNote {
	return LinkNote{
		URL:        "https://example.com/article",
		Title:      "An Article",
		Category:   "programming",
		Tags:       []string{"go", "testing"},
		Confidence: 0.92,
		Quality:    8,
		TopicID:    3,
		TopicTitle: "Go Programming",
		Summary:    "A short write-up about Go.",
		AddedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteLinkNote(t *testing.T) {
	t.Parallel()

	w, root := newWriter(t)
	rel, err := w.WriteLinkNote("abc123", sampleNote())
	require.NoError(t, err)
	require.Equal(t, filepath.Join("links", "abc123.md"), rel)

	raw, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	text := string(raw)

	require.True(t, strings.HasPrefix(text, "---\n"))
	require.Contains(t, text, "url: https://example.com/article")
	require.Contains(t, text, "topic: Go Programming")
	require.Contains(t, text, "added_at: \"2026-08-01T12:00:00Z\"")
	require.Contains(t, text, "# An Article")
	require.Contains(t, text, "A short write-up about Go.")
}

func TestWriteLinkNoteIdempotentOverwrite(t *testing.T) {
	t.Parallel()

	w, root := newWriter(t)
	note := sampleNote()
	_, err := w.WriteLinkNote("abc123", note)
	require.NoError(t, err)

	note.Summary = "Updated summary."
	rel, err := w.WriteLinkNote("abc123", note)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	require.Contains(t, string(raw), "Updated summary.")
	require.NotContains(t, string(raw), "A short write-up about Go.")

	entries, err := os.ReadDir(filepath.Join(root, "links"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "rewrite must converge on one canonical note")
}

func TestWriteLinkNoteRejectsBadID(t *testing.T) {
	t.Parallel()

	w, _ := newWriter(t)
	for _, id := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := w.WriteLinkNote(id, sampleNote())
		require.Error(t, err, "id %q", id)
	}
}

func TestAppendTopicEntryCreatesFileWithHeader(t *testing.T) {
	t.Parallel()

	w, root := newWriter(t)
	err := w.AppendTopicEntry("topic-0003-go.md", 3, "Go Programming", TopicEntry{
		LinkID:  "abc123",
		URL:     "https://example.com/article",
		Title:   "An Article",
		Summary: "A short write-up.\nSecond line ignored in bullet.",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(root, "topics", "topic-0003-go.md"))
	require.NoError(t, err)
	text := string(raw)

	require.Contains(t, text, "topic: Go Programming")
	require.Contains(t, text, "# Go Programming")
	require.Contains(t, text, "[An Article](../links/abc123.md)")
	require.Contains(t, text, "<!-- link:abc123 -->")
	require.Contains(t, text, "A short write-up.")
	require.NotContains(t, text, "Second line ignored")
}

func TestAppendTopicEntryDeduplicates(t *testing.T) {
	t.Parallel()

	w, root := newWriter(t)
	entry := TopicEntry{LinkID: "abc123", URL: "https://example.com", Title: "A"}
	require.NoError(t, w.AppendTopicEntry("topic-0001-t.md", 1, "T", entry))
	require.NoError(t, w.AppendTopicEntry("topic-0001-t.md", 1, "T", entry))

	other := TopicEntry{LinkID: "def456", URL: "https://example.org", Title: "B"}
	require.NoError(t, w.AppendTopicEntry("topic-0001-t.md", 1, "T", other))

	raw, err := os.ReadFile(filepath.Join(root, "topics", "topic-0001-t.md"))
	require.NoError(t, err)
	text := string(raw)

	require.Equal(t, 1, strings.Count(text, "<!-- link:abc123 -->"))
	require.Equal(t, 1, strings.Count(text, "<!-- link:def456 -->"))
}

func TestAppendTopicEntryConcurrentAppendsKeepEveryEntry(t *testing.T) {
	t.Parallel()

	w, root := newWriter(t)
	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("link%02d", i)
			errs[i] = w.AppendTopicEntry("topic-0001-t.md", 1, "T", TopicEntry{
				LinkID: id,
				URL:    "https://example.com/" + id,
				Title:  "Entry " + id,
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	raw, err := os.ReadFile(filepath.Join(root, "topics", "topic-0001-t.md"))
	require.NoError(t, err)
	text := string(raw)
	for i := 0; i < n; i++ {
		marker := fmt.Sprintf("<!-- link:link%02d -->", i)
		require.Equal(t, 1, strings.Count(text, marker), "entry %d must survive concurrent appends", i)
	}
}

func TestAppendTopicEntryRejectsBadPath(t *testing.T) {
	t.Parallel()

	w, _ := newWriter(t)
	err := w.AppendTopicEntry("../outside.md", 1, "T", TopicEntry{LinkID: "x"})
	require.Error(t, err)
}
