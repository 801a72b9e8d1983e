// Package retrieval answers free-text queries with the most similar indexed chunks.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/bull/ragchat/internal/storage"
)

// DefaultK is the number of chunks returned per query.
const DefaultK = 4

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the read side of a vector index.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]storage.ScoredRecord, error)
}

// Retriever embeds a query and searches the index with a fixed k. It holds
// no per-session state, so the same query gets the same answer for everyone.
type Retriever struct {
	embedder Embedder
	index    Searcher
	k        int
}

// New creates a Retriever. k <= 0 uses DefaultK.
func New(embedder Embedder, index Searcher, k int) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{embedder: embedder, index: index, k: k}
}

// K returns the number of chunks requested per query.
func (r *Retriever) K() int { return r.k }

// Retrieve returns up to k records ordered by descending similarity.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]storage.ScoredRecord, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, vector, r.k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}

// JoinTexts joins record texts, in order, with a blank line.
func JoinTexts(hits []storage.ScoredRecord) string {
	texts := make([]string, len(hits))
	for i, hit := range hits {
		texts[i] = hit.Text
	}
	return strings.Join(texts, "\n\n")
}
