package storage

import "errors"

var (
	// ErrVectorStore wraps every backend failure.
	ErrVectorStore = errors.New("vector store error")

	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidDimension  = errors.New("invalid vector dimension")
)
