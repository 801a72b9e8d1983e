// Package indexer builds the vector index from the configured sources.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/ragchat/internal/chunker"
	"github.com/bull/ragchat/internal/loader"
	"github.com/bull/ragchat/internal/normalize"
	"github.com/bull/ragchat/internal/storage"
)

// ErrNoDocuments is returned when no source produced an indexable document.
var ErrNoDocuments = errors.New("no documents indexed")

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc represents a source or document that was skipped.
type FailedDoc struct {
	URI    string
	Reason string
}

// DocumentLoader fetches raw documents, reporting the sources it skipped.
type DocumentLoader interface {
	Load(ctx context.Context) ([]loader.Document, []loader.FailedSource)
}

// Embedder produces one vector per text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Index is the write side of a vector store.
type Index interface {
	Reset(ctx context.Context, dim int) error
	Upsert(ctx context.Context, records []storage.Record) error
}

// Pipeline orchestrates the full indexing process from fetching to storage.
type Pipeline struct {
	loader     DocumentLoader
	normalizer *normalize.Normalizer
	chunker    *chunker.Chunker
	embedder   Embedder
	index      Index
	logger     *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(
	loader DocumentLoader,
	normalizer *normalize.Normalizer,
	chunker *chunker.Chunker,
	embedder Embedder,
	index Index,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = normalize.New(logger)
	}
	return &Pipeline{
		loader:     loader,
		normalizer: normalizer,
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		logger:     logger,
	}
}

// IndexAll drops the index, then fetches, chunks, embeds and stores every
// document. Unreachable sources and empty documents are skipped and listed
// in FailedDocs; embedding and storage failures abort the run. The returned
// result is never nil.
func (p *Pipeline) IndexAll(ctx context.Context) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}
	defer func() { result.Duration = time.Since(start) }()

	// 1. Recreate the index
	if err := p.index.Reset(ctx, p.embedder.Dimension()); err != nil {
		return result, fmt.Errorf("reset index: %w", err)
	}

	// 2. Fetch all sources
	docs, failed := p.loader.Load(ctx)
	for _, f := range failed {
		result.FailedDocs = append(result.FailedDocs, FailedDoc{URI: f.URI, Reason: f.Reason})
	}
	result.TotalDocs = len(docs)
	docs = p.normalizer.NormalizeAll(docs)
	p.logger.Info("Starting indexing", "documents", len(docs), "failed_sources", len(failed))

	// 3. Process each document
	for _, doc := range docs {
		chunks, err := p.processDocument(ctx, doc)
		if err != nil {
			return result, fmt.Errorf("index %s: %w", doc.URI, err)
		}
		if chunks == 0 {
			p.logger.Warn("Document has no content", "uri", doc.URI)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{URI: doc.URI, Reason: "no content"})
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += chunks
	}

	if result.SuccessfulDocs == 0 {
		return result, ErrNoDocuments
	}

	p.logger.Info("Indexing complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", time.Since(start),
	)
	return result, nil
}

// processDocument chunks, embeds and stores one normalized document.
// Returns the number of chunks created for the document.
func (p *Pipeline) processDocument(ctx context.Context, doc loader.Document) (int, error) {
	chunks := p.chunker.Split(doc.Content, doc.URI)
	if len(chunks) == 0 {
		return 0, nil
	}
	p.logger.Debug("Chunked document", "uri", doc.URI, "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = embedText(chunk)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embeddings: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]storage.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = storage.NewRecord(chunk, vectors[i])
	}

	if err := p.index.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	p.logger.Info("Indexed document", "uri", doc.URI, "chunks", len(chunks))
	return len(chunks), nil
}

// embedText prefixes the section header so the vector carries the chunk's place in the document.
// The stored text stays unprefixed.
func embedText(chunk chunker.Chunk) string {
	if chunk.HeaderPath == "" {
		return chunk.Text
	}
	return chunk.HeaderPath + "\n\n" + chunk.Text
}
