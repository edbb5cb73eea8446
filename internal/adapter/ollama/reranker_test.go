package ollama_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campus-compass/internal/adapter/ollama"
	"campus-compass/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRerank_MapsIndicesBackToCandidateIDs(t *testing.T) {
	var gotReq ollama.RerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(ollama.RerankResponse{
			Results: []ollama.RerankResponseResult{
				{Index: 1, Score: 0.95},
				{Index: 0, Score: 0.42},
			},
			Model: "bge-reranker-v2-m3",
		})
	}))
	defer server.Close()

	client := ollama.NewRerankerClient(server.URL, "bge-reranker-v2-m3", 5*time.Second, discardLogger(), nil)
	candidates := []domain.RerankCandidate{
		{ID: "chunk-a", Content: "text a", Score: 0.8},
		{ID: "chunk-b", Content: "text b", Score: 0.7},
	}

	results, err := client.Rerank(context.Background(), "hostel fee", candidates)
	assert.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk-b", results[0].ID)
	assert.Equal(t, 0.95, results[0].Score)
	assert.Equal(t, "chunk-a", results[1].ID)

	assert.Equal(t, "hostel fee", gotReq.Query)
	assert.Equal(t, []string{"text a", "text b"}, gotReq.Candidates)
	assert.Equal(t, "bge-reranker-v2-m3", gotReq.Model)
}

func TestRerank_EmptyCandidatesSkipCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("endpoint must not be called for empty candidates")
	}))
	defer server.Close()

	client := ollama.NewRerankerClient(server.URL, "m", 5*time.Second, discardLogger(), nil)
	results, err := client.Rerank(context.Background(), "q", nil)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestRerank_BadStatusReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := ollama.NewRerankerClient(server.URL, "m", 5*time.Second, discardLogger(), nil)
	_, err := client.Rerank(context.Background(), "q", []domain.RerankCandidate{{ID: "a", Content: "x"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRerank_OutOfRangeIndexRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollama.RerankResponse{
			Results: []ollama.RerankResponseResult{{Index: 5, Score: 0.9}},
		})
	}))
	defer server.Close()

	client := ollama.NewRerankerClient(server.URL, "m", 5*time.Second, discardLogger(), nil)
	_, err := client.Rerank(context.Background(), "q", []domain.RerankCandidate{{ID: "a", Content: "x"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid result index")
}
