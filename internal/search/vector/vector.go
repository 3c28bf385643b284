// Package vector adapts the Qdrant client to the three content domains'
// dense-vector collections: books, Quran ayahs, and hadiths. Collection
// names are derived from the embedding model so that re-embedding with a
// different model never mixes incompatible vectors in one collection.
package vector

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/simpleflo/arabhybrid/internal/observability"
)

// pointNamespace is the fixed UUID namespace used to derive deterministic
// point IDs from domain keys, since Qdrant requires UUID-shaped IDs.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// PointID derives a deterministic UUIDv5 point ID from any stable string
// key (e.g. "book123#42" or "2:255"), so re-upserting the same content
// overwrites rather than duplicates.
func PointID(key string) string {
	hash := sha256.Sum256([]byte(key))
	return uuid.NewSHA1(pointNamespace, hash[:]).String()
}

// CollectionName derives the Qdrant collection name for a domain and
// embedding model, so switching models is a new collection rather than a
// dimension mismatch against stale vectors.
func CollectionName(domain, embeddingModel string) string {
	return fmt.Sprintf("arabhybrid_%s_%s", domain, sanitizeModelName(embeddingModel))
}

func sanitizeModelName(model string) string {
	out := make([]rune, 0, len(model))
	for _, r := range model {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Point is one vector plus the domain key and payload fields to upsert.
type Point struct {
	Key     string
	Vector  []float32
	Payload map[string]string
}

// Hit is one similarity-search result.
type Hit struct {
	Key     string
	Score   float32
	Payload map[string]string
}

// SearchOptions bounds a similarity search.
type SearchOptions struct {
	Limit      int
	MinScore   float64
	BookFilter string // non-empty restricts to a single book_id payload field
}

// Store wraps a Qdrant client, lazily creating each domain's collection on
// first use.
type Store struct {
	client    *qdrant.Client
	dimension uint64
	batchSize int
	logger    zerolog.Logger

	mu    sync.Mutex
	ready map[string]bool
}

// Config configures the Qdrant connection.
type Config struct {
	Host      string
	Port      int
	Dimension int
	BatchSize int
}

// New constructs a Store over a Qdrant gRPC connection.
func New(cfg Config) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port <= 0 {
		cfg.Port = 6334
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Host, Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &Store{
		client:    client,
		dimension: uint64(cfg.Dimension),
		batchSize: cfg.BatchSize,
		logger:    observability.Logger("search.vector"),
		ready:     make(map[string]bool),
	}, nil
}

// ensureCollection creates the named collection if it does not exist yet,
// memoizing readiness per collection so repeated calls are cheap.
func (s *Store) ensureCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[collection] {
		return nil
	}

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range collections {
		if c == collection {
			s.ready[collection] = true
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}

	if _, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      "book_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("collection", collection).Msg("failed to create book_id field index")
	}

	s.ready[collection] = true
	s.logger.Info().Str("collection", collection).Msg("collection created")
	return nil
}

// UpsertBatch stores points into the named collection, batching upserts.
func (s *Store) UpsertBatch(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}

	qp := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]any, len(p.Payload)+1)
		payload["key"] = p.Key
		for k, v := range p.Payload {
			payload[k] = v
		}
		qp[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(p.Key)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	for i := 0; i < len(qp); i += s.batchSize {
		end := i + s.batchSize
		if end > len(qp) {
			end = len(qp)
		}
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qp[i:end],
		}); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Search runs a similarity search against the named collection.
func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, opts SearchOptions) ([]Hit, error) {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	start := time.Now()

	var filter *qdrant.Filter
	if opts.BookFilter != "" {
		filter = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("book_id", opts.BookFilter)}}
	}

	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(opts.Limit)),
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(float32(opts.MinScore)),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]Hit, len(result))
	for i, point := range result {
		h := Hit{Score: point.Score, Payload: make(map[string]string)}
		if payload := point.Payload; payload != nil {
			if v, ok := payload["key"]; ok {
				h.Key = v.GetStringValue()
			}
			for k, v := range payload {
				if k == "key" {
					continue
				}
				h.Payload[k] = v.GetStringValue()
			}
		}
		hits[i] = h
	}

	s.logger.Debug().
		Str("collection", collection).
		Int("results", len(hits)).
		Dur("duration", time.Since(start)).
		Msg("vector search completed")

	return hits, nil
}

// CountBookPoints returns the number of points in collection whose
// book_id payload field equals bookID, used by the indexed-book-set
// computer to compare the vector store's per-book coverage against the
// metadata store's page count.
func (s *Store) CountBookPoints(ctx context.Context, collection, bookID string) (int, error) {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return 0, err
	}
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("book_id", bookID)}},
	})
	if err != nil {
		return 0, fmt.Errorf("count book points: %w", err)
	}
	return int(count), nil
}

// HealthCheck verifies connectivity to Qdrant.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.ListCollections(ctx); err != nil {
		return fmt.Errorf("vector store health check: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}
