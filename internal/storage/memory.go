package storage

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// MemoryStorage is an in-process vector index using brute-force cosine
// similarity. It is safe for concurrent readers once built.
type MemoryStorage struct {
	mu        sync.RWMutex
	dimension int
	records   []Record
	norms     []float64
}

// NewMemoryStorage creates an empty index. Call Reset before Upsert.
func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (s *MemoryStorage) Reset(_ context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dim
	s.records = nil
	s.norms = nil
	return nil
}

func (s *MemoryStorage) Upsert(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return fmt.Errorf("%w: index not initialized", ErrVectorStore)
	}
	for i, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Vector), s.dimension)
		}
	}
	for _, r := range records {
		r.Seq = int64(len(s.records))
		s.records = append(s.records, r)
		s.norms = append(s.norms, norm(r.Vector))
	}
	return nil
}

func (s *MemoryStorage) Search(_ context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return []ScoredRecord{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k <= 0 {
		return []ScoredRecord{}, nil
	}

	qnorm := norm(vector)
	hits := make([]ScoredRecord, len(s.records))
	for i, r := range s.records {
		hit := ScoredRecord{Record: r, Score: cosine(r.Vector, vector, s.norms[i], qnorm)}
		hit.Vector = nil
		hits[i] = hit
	}
	sortHits(hits)
	return hits[:min(k, len(hits))], nil
}

func (s *MemoryStorage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStorage) Health(_ context.Context) error { return nil }

func (s *MemoryStorage) Close() error { return nil }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero length.
func cosine(a, b []float32, anorm, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
