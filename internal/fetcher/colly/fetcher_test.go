package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkarpis/linkmind/internal/ingest"
)

func TestFetchExtractsTitle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>  Hello Page  </title></head><body>ok</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	got, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Hello Page", got.Title)
	require.Contains(t, got.ContentType, "text/html")
	require.Contains(t, string(got.Body), "ok")
}

func TestFetchNonHTMLSkipsTitle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"not a page title"}`))
	}))
	defer srv.Close()

	f := New(Config{})
	got, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Empty(t, got.Title)
}

func TestFetchErrorOnServerFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fetchErr *ingest.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, srv.URL, fetchErr.URL)
}

func TestFetchErrorOnUnreachableHost(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/nothing")
	require.Error(t, err)

	var fetchErr *ingest.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 10 * time.Second})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
