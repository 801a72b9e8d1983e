// Package storage holds the vector index: embedded chunks and nearest-neighbour search over them.
package storage

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/bull/ragchat/internal/chunker"
)

// DefaultCollection is the Qdrant collection used when none is configured.
const DefaultCollection = "data"

// Record is an embedded chunk as held by the index.
type Record struct {
	ID         string    // UUID
	SourceURI  string    // Document the chunk was cut from
	Index      int       // Position in document (0, 1, 2...)
	Text       string    // Chunk text
	Start      int       // Rune offset of the chunk in the normalized document
	End        int       // Rune offset one past the chunk
	Overlap    int       // Runes shared with the previous chunk
	HeaderPath string    // Section hierarchy: "# Title > ## Section"
	Vector     []float32 // Embedding
	Seq        int64     // Insertion order, assigned by the store
}

// ScoredRecord is a search hit. Vector is not populated.
type ScoredRecord struct {
	Record
	Score float64 // Cosine similarity
}

// NewRecord builds a record with a fresh ID for chunk and its embedding.
func NewRecord(chunk chunker.Chunk, vector []float32) Record {
	return Record{
		ID:         uuid.NewString(),
		SourceURI:  chunk.SourceURI,
		Index:      chunk.Index,
		Text:       chunk.Text,
		Start:      chunk.Start,
		End:        chunk.End,
		Overlap:    chunk.Overlap,
		HeaderPath: chunk.HeaderPath,
		Vector:     vector,
	}
}

// VectorStore is implemented by QdrantStorage and MemoryStorage.
type VectorStore interface {
	// Reset drops every record and recreates the index for vectors of dim.
	Reset(ctx context.Context, dim int) error
	// Upsert stores records in order.
	Upsert(ctx context.Context, records []Record) error
	// Search returns up to k records by descending cosine similarity, ties
	// broken by insertion order. An empty index yields an empty result.
	Search(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// sortHits orders hits by descending score, then ascending Seq.
func sortHits(hits []ScoredRecord) {
	slices.SortStableFunc(hits, func(a, b ScoredRecord) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}
