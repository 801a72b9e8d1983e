// Package embedding turns text into fixed-dimension vectors through an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the Ollama embedding model.
	DefaultModel = "nomic-embed-text"

	// DefaultDimension is the vector dimension of nomic-embed-text.
	DefaultDimension = 768

	// DefaultBatchSize is the number of texts sent per request.
	DefaultBatchSize = 64
)

// ErrEmbeddingService is returned for any embedding failure, including
// vectors of the wrong count or dimension.
var ErrEmbeddingService = errors.New("embedding service error")

// Options configures an Embedder. Zero values take the defaults above.
type Options struct {
	Model     string
	Dimension int
	BatchSize int
	Logger    *slog.Logger
}

// Embedder generates embeddings in batches and retries with exponential
// backoff on rate limit errors.
type Embedder struct {
	client     *Client
	model      string
	dimension  int
	batchSize  int
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// NewEmbedder creates a new Embedder with the given client.
func NewEmbedder(client *Client, opts Options) *Embedder {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Embedder{
		client:     client,
		model:      opts.Model,
		dimension:  opts.Dimension,
		batchSize:  opts.BatchSize,
		logger:     opts.Logger,
		newBackOff: defaultBackOff,
	}
}

// Dimension returns the length of every vector this embedder produces.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed generates the embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		vectors, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", ErrEmbeddingService, i, end, err)
		}
		all = append(all, vectors...)
		e.logger.Debug("Embedded batch", "from", i, "to", end, "model", e.model)
	}

	return all, nil
}

// embedBatchWithRetry generates embeddings for a single batch. Rate limit
// errors (HTTP 429) are retried; anything else fails immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				e.logger.Warn("Embedding rate limited, backing off", "model", e.model)
				return err
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("expected %d vectors, got %d", len(texts), len(resp.Data)))
		}

		data := resp.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		vectors = make([][]float32, len(data))
		for i, d := range data {
			if len(d.Embedding) != e.dimension {
				return backoff.Permanent(fmt.Errorf("vector %d has dimension %d, expected %d", i, len(d.Embedding), e.dimension))
			}
			vectors[i] = toFloat32(d.Embedding)
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(e.newBackOff(), ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, err
	}
	return vectors, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// The API returns float64, but storage uses float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
