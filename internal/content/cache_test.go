package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	cache, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	body := []byte("<html><title>hi</title></html>")
	ref, err := cache.Put("abcd1234", body)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("ab", "abcd1234.body"), ref)

	got, err := cache.Get(ref)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestPutOverwrites(t *testing.T) {
	t.Parallel()

	cache, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = cache.Put("abcd1234", []byte("old"))
	require.NoError(t, err)
	ref, err := cache.Put("abcd1234", []byte("new"))
	require.NoError(t, err)

	got, err := cache.Get(ref)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
}

func TestPutRejectsBadLinkID(t *testing.T) {
	t.Parallel()

	cache, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	for _, id := range []string{"", "a", "../escape", "a/b", ".hidden"} {
		_, err := cache.Put(id, []byte("x"))
		require.Error(t, err, "id %q", id)
	}
}

func TestGetRejectsTraversal(t *testing.T) {
	t.Parallel()

	cache, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = cache.Get("../../etc/passwd")
	require.Error(t, err)
	_, err = cache.Get("")
	require.Error(t, err)
}
