package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeEmbeddings serves /v1/embeddings, answering each input i with a vector
// of dim values all equal to len(input[i]).
func fakeEmbeddings(t *testing.T, dim int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if requests != nil {
			requests.Add(1)
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			vec := make([]float64, dim)
			for j := range vec {
				vec[j] = float64(len(text))
			}
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func newTestEmbedder(url string, opts Options) *Embedder {
	e := NewEmbedder(NewClient(url+"/v1/", "ollama"), opts)
	e.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return e
}

func TestEmbed_SingleText(t *testing.T) {
	srv := fakeEmbeddings(t, 4, nil)
	defer srv.Close()

	e := newTestEmbedder(srv.URL, Options{Dimension: 4})
	vec, err := e.Embed(context.Background(), "MongoDB")
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 7, 7, 7}, vec)
	assert.Equal(t, 4, e.Dimension())
}

func TestEmbedBatch_SplitsIntoBatches(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddings(t, 3, &requests)
	defer srv.Close()

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("%0*d", i+1, 0)
	}

	e := newTestEmbedder(srv.URL, Options{Dimension: 3, BatchSize: 4})
	vectors, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, int32(3), requests.Load())
	require.Len(t, vectors, 10)
	for i, vec := range vectors {
		assert.Equal(t, float32(i+1), vec[0], "vector %d is in input order", i)
	}
}

func TestEmbedBatch_DimensionMismatch(t *testing.T) {
	srv := fakeEmbeddings(t, 5, nil)
	defer srv.Close()

	e := newTestEmbedder(srv.URL, Options{Dimension: 768})
	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingService)
	assert.Contains(t, err.Error(), "dimension 5")
}

func TestEmbedBatch_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	ok := fakeEmbeddings(t, 2, nil)
	defer ok.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		ok.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	e := newTestEmbedder(srv.URL, Options{Dimension: 2})
	vec, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 3}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedBatch_OtherErrorsArePermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e := newTestEmbedder(srv.URL, Options{Dimension: 2})
	_, err := e.Embed(context.Background(), "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingService)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := newTestEmbedder("http://127.0.0.1:1", Options{})
	vectors, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestNewEmbedder_Defaults(t *testing.T) {
	e := NewEmbedder(NewClient("http://localhost:11434/v1/", "ollama"), Options{})
	assert.Equal(t, DefaultModel, e.model)
	assert.Equal(t, DefaultDimension, e.dimension)
	assert.Equal(t, DefaultBatchSize, e.batchSize)
	assert.NotNil(t, e.client.Client())
}
