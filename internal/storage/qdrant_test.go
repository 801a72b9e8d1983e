//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ragchat/internal/chunker"
)

// setupTestStorage creates a storage instance on a throwaway collection.
// Skips test if Qdrant is not running.
func setupTestStorage(t *testing.T, dim int) *QdrantStorage {
	collection := "test-" + uuid.New().String()
	storage, err := NewQdrantStorage(context.Background(), "localhost", 6334, collection, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	err = storage.Reset(context.Background(), dim)
	require.NoError(t, err, "Failed to reset collection")

	t.Cleanup(func() {
		_ = storage.client.DeleteCollection(context.Background(), collection)
		storage.Close()
	})
	return storage
}

func TestQdrantRecordRoundTrip(t *testing.T) {
	storage := setupTestStorage(t, 3)
	ctx := context.Background()

	record := NewRecord(chunker.Chunk{
		SourceURI:  "https://en.wikipedia.org/wiki/MongoDB",
		Index:      2,
		Text:       "MongoDB is a NoSQL database.",
		Start:      1600,
		End:        1628,
		Overlap:    200,
		HeaderPath: "# MongoDB > ## History",
	}, []float32{0.1, 0.2, 0.3})

	require.NoError(t, storage.Upsert(ctx, []Record{record}))

	hits, err := storage.Search(ctx, []float32{0.1, 0.2, 0.3}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hit := hits[0]
	assert.Equal(t, record.ID, hit.ID)
	assert.Equal(t, record.SourceURI, hit.SourceURI)
	assert.Equal(t, record.Index, hit.Index)
	assert.Equal(t, record.Text, hit.Text)
	assert.Equal(t, record.Start, hit.Start)
	assert.Equal(t, record.End, hit.End)
	assert.Equal(t, record.Overlap, hit.Overlap)
	assert.Equal(t, record.HeaderPath, hit.HeaderPath)
	assert.InDelta(t, 1.0, hit.Score, 1e-5)
}

func TestQdrantSearchOrdering(t *testing.T) {
	storage := setupTestStorage(t, 2)
	ctx := context.Background()

	records := []Record{
		NewRecord(chunker.Chunk{Text: "east"}, []float32{1, 0}),
		NewRecord(chunker.Chunk{Text: "north"}, []float32{0, 1}),
		NewRecord(chunker.Chunk{Text: "also east"}, []float32{2, 0}),
	}
	require.NoError(t, storage.Upsert(ctx, records))

	hits, err := storage.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "east", hits[0].Text)
	assert.Equal(t, "also east", hits[1].Text)
	assert.Equal(t, "north", hits[2].Text)

	n, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestQdrantSearchTieAcrossCut(t *testing.T) {
	storage := setupTestStorage(t, 2)
	ctx := context.Background()

	records := []Record{NewRecord(chunker.Chunk{Text: "north"}, []float32{0, 1})}
	for i := range 3 * searchTieSlack {
		records = append(records, NewRecord(chunker.Chunk{Text: fmt.Sprintf("east %d", i)}, []float32{1, 0}))
	}
	require.NoError(t, storage.Upsert(ctx, records))

	for range 5 {
		hits, err := storage.Search(ctx, []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "east 0", hits[0].Text)
		assert.Equal(t, "east 1", hits[1].Text)
	}
}

func TestQdrantEmptyAndMismatch(t *testing.T) {
	storage := setupTestStorage(t, 4)
	ctx := context.Background()

	hits, err := storage.Search(ctx, []float32{1, 0, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = storage.Search(ctx, []float32{1, 0}, 4)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = storage.Upsert(ctx, []Record{NewRecord(chunker.Chunk{Text: "x"}, []float32{1})})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQdrantResetDropsRecords(t *testing.T) {
	storage := setupTestStorage(t, 2)
	ctx := context.Background()

	require.NoError(t, storage.Upsert(ctx, []Record{NewRecord(chunker.Chunk{Text: "x"}, []float32{1, 1})}))
	require.NoError(t, storage.Reset(ctx, 2))

	n, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
