// Package indexset computes the indexed-book-set: the set of book IDs
// whose per-book page count in the lexical FTS5 index and the vector store
// both meet or exceed the metadata store's page count, unioned with the
// fixed hadith-source book allow-list. It gates content-level book search
// to books that are actually fully indexed in every backing store.
package indexset

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/simpleflo/arabhybrid/internal/observability"
)

// bookSetConcurrency bounds how many books are compared concurrently per
// computation pass, queried in batches rather than all at once.
const bookSetConcurrency = 20

// Metadata is the subset of internal/store.Store the computer needs.
type Metadata interface {
	ListBookIDs(ctx context.Context) ([]string, error)
	CountBookPages(ctx context.Context, bookID string) (int, error)
	ListHadithSourceBookIDs(ctx context.Context) ([]string, error)
}

// Lexical is the subset of internal/search/lexical.Engine the computer needs.
type Lexical interface {
	CountBookPages(ctx context.Context, bookID string) (int, error)
}

// Vectors is the subset of internal/search/vector.Store the computer needs.
type Vectors interface {
	CountBookPoints(ctx context.Context, collection, bookID string) (int, error)
}

// Set is an immutable snapshot of eligible book IDs.
type Set struct {
	ids map[string]bool
}

// Contains reports whether bookID is in the set. A nil Set (computation
// failed or never ran) contains nothing and callers should treat that as
// "do not filter" rather than "filter out everything".
func (s *Set) Contains(bookID string) bool {
	if s == nil {
		return false
	}
	return s.ids[bookID]
}

// Computer runs one indexed-book-set computation pass across the
// metadata, lexical, and vector stores.
type Computer struct {
	metadata   Metadata
	lexical    Lexical
	vectors    Vectors
	collection string
	logger     zerolog.Logger
}

// New constructs a Computer. collection is the vector collection name for
// the book domain at the configured embedding model
// (vector.CollectionName("books", model)).
func New(metadata Metadata, lexical Lexical, vectors Vectors, collection string) *Computer {
	return &Computer{
		metadata:   metadata,
		lexical:    lexical,
		vectors:    vectors,
		collection: collection,
		logger:     observability.Logger("search.indexset"),
	}
}

// Compute walks every known book ID, comparing lexical and vector coverage
// against the metadata store's page count, and unions in the hadith-source
// allow-list. A single book's comparison failing skips that book rather
// than failing the whole computation.
func (c *Computer) Compute(ctx context.Context) (*Set, error) {
	bookIDs, err := c.metadata.ListBookIDs(ctx)
	if err != nil {
		return nil, err
	}

	eligible := make(map[string]bool)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bookSetConcurrency)

	for _, id := range bookIDs {
		id := id
		g.Go(func() error {
			metaCount, err := c.metadata.CountBookPages(gctx, id)
			if err != nil {
				c.logger.Warn().Err(err).Str("book_id", id).Msg("metadata page count failed, skipping book")
				return nil
			}
			lexCount, err := c.lexical.CountBookPages(gctx, id)
			if err != nil {
				c.logger.Warn().Err(err).Str("book_id", id).Msg("lexical page count failed, skipping book")
				return nil
			}
			vecCount, err := c.vectors.CountBookPoints(gctx, c.collection, id)
			if err != nil {
				c.logger.Warn().Err(err).Str("book_id", id).Msg("vector point count failed, skipping book")
				return nil
			}
			if lexCount >= metaCount && vecCount >= metaCount {
				mu.Lock()
				eligible[id] = true
				mu.Unlock()
			}
			return nil
		})
	}
	// Every per-book goroutine returns nil, so g.Wait() never reports an
	// error here; a per-book failure, including one caused by a cancelled
	// ctx, only leaves that book out of the set.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hadithBooks, err := c.metadata.ListHadithSourceBookIDs(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("hadith source book list failed, continuing without it")
	}
	for _, id := range hadithBooks {
		eligible[id] = true
	}

	return &Set{ids: eligible}, nil
}

// Cache refreshes a Set on a TTL, serving stale snapshots between
// refreshes and degrading to nil ("do not filter") on computation failure.
type Cache struct {
	computer *Computer
	ttl      time.Duration
	logger   zerolog.Logger

	mu         sync.RWMutex
	current    *Set
	computedAt time.Time
}

// NewCache wraps computer with a periodic refresh cache. ttl<=0 defaults
// to 5 minutes.
func NewCache(computer *Computer, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{computer: computer, ttl: ttl, logger: observability.Logger("search.indexset")}
}

// Snapshot returns the current indexed-book-set, recomputing it if the TTL
// has elapsed. Returns nil ("do not filter") whenever that recomputation
// fails, even if an older snapshot is cached.
func (c *Cache) Snapshot(ctx context.Context) *Set {
	c.mu.RLock()
	fresh := c.current != nil && time.Since(c.computedAt) < c.ttl
	current := c.current
	c.mu.RUnlock()
	if fresh {
		return current
	}

	set, err := c.computer.Compute(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("indexed book set computation failed, not filtering")
		return nil
	}

	c.mu.Lock()
	c.current = set
	c.computedAt = time.Now()
	c.mu.Unlock()
	return set
}
