package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize is the number of points sent per Qdrant upsert.
const upsertBatchSize = 100

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client     *qdrant.Client
	host       string
	port       int
	collection string
	logger     *slog.Logger

	mu        sync.Mutex
	dimension int
	nextSeq   int64
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(ctx context.Context, host string, port int, collection string, logger *slog.Logger) (*QdrantStorage, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Create Qdrant client using gRPC
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %w", ErrVectorStore, err)
	}

	storage := &QdrantStorage{
		client:     client,
		host:       host,
		port:       port,
		collection: collection,
		logger:     logger,
	}

	if err := storage.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w: %v", ErrVectorStore, ErrQdrantUnreachable, err)
	}

	return storage, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	operation := func() error {
		return s.Health(ctx)
	}
	return backoff.Retry(operation, backoff.WithContext(newBackOff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// Reset deletes the collection if present and recreates it for vectors of
// dim with cosine distance. Every start rebuilds the index this way.
func (s *QdrantStorage) Reset(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", ErrVectorStore, s.collection, err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("%w: delete collection %s: %w", ErrVectorStore, s.collection, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %w", ErrVectorStore, s.collection, err)
	}

	// source_uri lets operators filter hits by document in the Qdrant UI.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "source_uri",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("%w: create index for field source_uri: %w", ErrVectorStore, err)
	}

	s.mu.Lock()
	s.dimension = dim
	s.nextSeq = 0
	s.mu.Unlock()

	s.logger.Info("Recreated collection", "collection", s.collection, "dimension", dim)
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(newBackOff(), ctx))
}

// Upsert stores records in batches of 100, numbering them in insertion order.
func (s *QdrantStorage) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		return fmt.Errorf("%w: collection %s not initialized", ErrVectorStore, s.collection)
	}
	for i, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Vector), s.dimension)
		}
	}

	seq := s.nextSeq
	for i := 0; i < len(records); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(records))

		batch := records[i:end]
		points := make([]*qdrant.PointStruct, len(batch))

		for j, r := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(r.ID),
				Vectors: qdrant.NewVectors(r.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"source_uri":  r.SourceURI,
					"chunk_index": r.Index,
					"text":        r.Text,
					"start":       r.Start,
					"end":         r.End,
					"overlap":     r.Overlap,
					"header_path": r.HeaderPath,
					"seq":         seq + int64(i+j),
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d: %w", ErrVectorStore, i, end, err)
		}
	}
	s.nextSeq = seq + int64(len(records))

	return nil
}

// Search performs vector similarity search. Qdrant does not order equal
// scores, so hits are re-sorted by score and then by insertion order. The
// query over-fetches and widens while the score at rank k is still tied with
// the last fetched hit, so a tie across the cut is settled by Seq.
func (s *QdrantStorage) Search(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	s.mu.Lock()
	dim := s.dimension
	s.mu.Unlock()

	if dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), dim)
	}
	if k <= 0 {
		return []ScoredRecord{}, nil
	}

	limit := k + searchTieSlack
	for {
		hits, err := s.query(ctx, vector, limit)
		if err != nil {
			return nil, err
		}
		sortHits(hits)
		if !tiedAtCut(hits, k, limit) || limit >= maxSearchLimit {
			return hits[:min(k, len(hits))], nil
		}
		limit = min(limit*2, maxSearchLimit)
	}
}

const (
	// searchTieSlack is how many hits past k a search fetches up front.
	searchTieSlack = 8
	// maxSearchLimit caps how far a search widens for a tie.
	maxSearchLimit = 1024
)

// tiedAtCut reports whether a full page of sorted hits may have cut a tie at
// rank k short: the k-th score equals the last score fetched.
func tiedAtCut(hits []ScoredRecord, k, limit int) bool {
	if len(hits) < limit || len(hits) <= k {
		return false
	}
	return hits[k-1].Score == hits[len(hits)-1].Score
}

func (s *QdrantStorage) query(ctx context.Context, vector []float32, limit int) ([]ScoredRecord, error) {
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrVectorStore, err)
	}

	hits := make([]ScoredRecord, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		hits = append(hits, ScoredRecord{
			Record: Record{
				ID:         result.Id.GetUuid(),
				SourceURI:  payload["source_uri"].GetStringValue(),
				Index:      int(payload["chunk_index"].GetIntegerValue()),
				Text:       payload["text"].GetStringValue(),
				Start:      int(payload["start"].GetIntegerValue()),
				End:        int(payload["end"].GetIntegerValue()),
				Overlap:    int(payload["overlap"].GetIntegerValue()),
				HeaderPath: payload["header_path"].GetStringValue(),
				Seq:        payload["seq"].GetIntegerValue(),
			},
			Score: float64(result.Score),
		})
	}
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStorage) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrVectorStore, err)
	}
	return int(n), nil
}
