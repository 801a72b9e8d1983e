package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ragchat/internal/chunker"
	"github.com/bull/ragchat/internal/storage"
)

// keywordEmbedder maps text onto a small fixed vocabulary, one dimension per word.
type keywordEmbedder struct {
	vocab []string
	err   error
}

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.vocab))
	for i, word := range e.vocab {
		vec[i] = float32(strings.Count(lower, word))
	}
	return vec, nil
}

var vocab = []string{"mongodb", "nosql", "bank", "america", "telephone"}

func buildIndex(t *testing.T, texts ...string) *storage.MemoryStorage {
	t.Helper()
	e := keywordEmbedder{vocab: vocab}
	index := storage.NewMemoryStorage()
	require.NoError(t, index.Reset(context.Background(), len(vocab)))

	records := make([]storage.Record, 0, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		records = append(records, storage.NewRecord(chunker.Chunk{SourceURI: "doc", Index: i, Text: text}, vec))
	}
	require.NoError(t, index.Upsert(context.Background(), records))
	return index
}

func TestRetrieve_FindsIndexedSentence(t *testing.T) {
	index := buildIndex(t,
		"Bank of America is a bank.",
		"MongoDB is a NoSQL database.",
		"AT&T started as a telephone company.",
	)
	r := New(keywordEmbedder{vocab: vocab}, index, 0)
	assert.Equal(t, DefaultK, r.K())

	hits, err := r.Retrieve(context.Background(), "What is MongoDB?")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "MongoDB is a NoSQL database.", hits[0].Text)
	assert.Contains(t, JoinTexts(hits), "MongoDB is a NoSQL database.")
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	r := New(keywordEmbedder{vocab: vocab}, buildIndex(t), 4)

	hits, err := r.Retrieve(context.Background(), "What is MongoDB?")
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, "", JoinTexts(hits))
}

func TestRetrieve_Deterministic(t *testing.T) {
	index := buildIndex(t,
		"MongoDB MongoDB",
		"MongoDB and NoSQL",
		"NoSQL only",
		"Bank of America",
		"MongoDB at a bank",
	)
	r := New(keywordEmbedder{vocab: vocab}, index, 3)

	first, err := r.Retrieve(context.Background(), "mongodb nosql")
	require.NoError(t, err)
	require.Len(t, first, 3)
	for range 10 {
		again, err := r.Retrieve(context.Background(), "mongodb nosql")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	boom := errors.New("connection refused")
	r := New(keywordEmbedder{vocab: vocab, err: boom}, buildIndex(t, "x"), 4)

	_, err := r.Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, boom)

	_, err = r.Context(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}

func TestJoinTexts(t *testing.T) {
	hits := []storage.ScoredRecord{
		{Record: storage.Record{Text: "one"}},
		{Record: storage.Record{Text: "two"}},
	}
	assert.Equal(t, "one\n\ntwo", JoinTexts(hits))
	assert.Equal(t, "", JoinTexts(nil))
}
