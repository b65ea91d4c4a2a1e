package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbedRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"hello world"}, req.Input)
		require.Equal(t, "test-model", req.Model)

		resp := map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{0.1, 0.2, 0.3}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "test-model"})
	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := client.Embed(context.Background(), "")
	require.Error(t, err)
}

func TestEmbedAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Embed(context.Background(), "text")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestEmbedEmptyResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{})
	require.Equal(t, DefaultBaseURL, client.baseURL)
	require.Equal(t, DefaultModel, client.model)
}
