// Package daemon wires every search-orchestrator component into a single
// long-running HTTP service: store, lexical/vector engines, embedding and
// rerank backends, graph context, and the indexed-book-set cache, served
// over the internal/httpapi router with graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/simpleflo/arabhybrid/internal/config"
	"github.com/simpleflo/arabhybrid/internal/httpapi"
	"github.com/simpleflo/arabhybrid/internal/observability"
	"github.com/simpleflo/arabhybrid/internal/search/analytics"
	"github.com/simpleflo/arabhybrid/internal/search/cache"
	"github.com/simpleflo/arabhybrid/internal/search/embedding"
	"github.com/simpleflo/arabhybrid/internal/search/expand"
	"github.com/simpleflo/arabhybrid/internal/search/fusion"
	"github.com/simpleflo/arabhybrid/internal/search/graphctx"
	"github.com/simpleflo/arabhybrid/internal/search/indexset"
	"github.com/simpleflo/arabhybrid/internal/search/lexical"
	"github.com/simpleflo/arabhybrid/internal/search/orchestrator"
	"github.com/simpleflo/arabhybrid/internal/search/rerank"
	"github.com/simpleflo/arabhybrid/internal/search/translate"
	"github.com/simpleflo/arabhybrid/internal/search/vector"
	"github.com/simpleflo/arabhybrid/internal/store"
)

// Daemon is the search orchestrator's long-running HTTP service.
type Daemon struct {
	cfg    *config.Config
	store  *store.Store
	vector *vector.Store
	graph  *graphctx.Resolver // nil if FalkorDB disabled
	redis  *redis.Client      // nil if the persistent embedding cache is disabled
	analytics *analytics.Recorder

	router chi.Router
	server *http.Server
	logger zerolog.Logger

	mu        sync.RWMutex
	running   bool
	ready     bool
	startTime time.Time

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New constructs a Daemon, wiring every search component from cfg. A
// backend that fails to become ready (embedding/vector/graph) degrades the
// corresponding pipeline branch rather than preventing startup - only the
// metadata store is required.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	logger := observability.Logger("daemon")

	st, err := store.New(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	lex := lexical.New(st.DB())

	vectors, err := vector.New(vector.Config{
		Host:      cfg.Qdrant.Host,
		Port:      cfg.Qdrant.Port,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	embeddingService, redisClient, err := buildEmbeddingService(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("embedding backend unavailable, semantic search disabled")
	}

	reranker, err := buildReranker(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("rerank provider unavailable, reranking disabled")
	}

	translator := translate.New(st)

	var graph *graphctx.Resolver
	if cfg.FalkorDB.Host != "" {
		graph = graphctx.New(graphctx.Config{
			Host:      cfg.FalkorDB.Host,
			Port:      cfg.FalkorDB.Port,
			Password:  cfg.FalkorDB.Password,
			GraphName: cfg.FalkorDB.GraphName,
		})
	}

	booksCollection := vector.CollectionName("books", cfg.Embedding.Model)
	indexedBooks := indexset.NewCache(indexset.New(st, lex, vectors, booksCollection), cfg.Search.IndexedBookSetTTL)

	recorder := analytics.NewRecorder(analytics.NewLogSink(), 256)

	orch := orchestrator.New(orchestrator.Config{
		Lexical:      lex,
		Vectors:      vectors,
		Embeddings:   embeddingService,
		Fusion:       fusion.DefaultParams(),
		Reranker:     reranker,
		Translator:   translator,
		Graph:        graph,
		Hydrator:     st,
		IndexedBooks: indexedBooks,
		Analytics:    recorder,
		Deadlines: orchestrator.Deadlines{
			Request:   cfg.Search.RequestDeadline,
			Lexical:   cfg.Search.LexicalDeadline,
			Semantic:  cfg.Search.SemanticDeadline,
			Expansion: cfg.Search.ExpansionDeadline,
			Graph:     cfg.Search.GraphDeadline,
		},
	})

	expander, err := buildExpander(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("query expander unavailable, refine pipeline disabled")
	}

	var embeddingCache httpapi.EmbeddingCache
	if embeddingService != nil {
		embeddingCache = embeddingService
	}

	handler := httpapi.New(httpapi.Config{
		Orchestrator:   orch,
		Expander:       expander,
		Store:          st,
		Embedding:      embeddingCache,
		EmbeddingModel: cfg.Embedding.Model,
		IsProduction:   cfg.IsProduction(),
	})

	d := &Daemon{
		cfg:       cfg,
		store:     st,
		vector:    vectors,
		graph:     graph,
		redis:     redisClient,
		analytics: recorder,
		router:    httpapi.NewRouter(handler),
		logger:    logger,
		shutdownCh: make(chan struct{}),
	}

	return d, nil
}

// buildEmbeddingService constructs the embedding backend named by
// cfg.Embedding.Backend ("ollama" or "openrouter") and fronts it with the
// two-tier cache.
func buildEmbeddingService(cfg *config.Config) (*embedding.Service, *redis.Client, error) {
	var backend embedding.Backend
	switch cfg.Embedding.Backend {
	case "openrouter":
		backend = embedding.NewOpenRouterBackend(embedding.OpenRouterConfig{
			APIKey:      cfg.LLM.OpenRouterAPIKey,
			Model:       cfg.Embedding.Model,
			Dimension:   cfg.Embedding.Dimension,
			CallTimeout: cfg.Embedding.CallDeadline,
			MaxAttempts: cfg.Embedding.MaxAttempts,
		})
	default:
		ollamaBackend, err := embedding.NewOllamaBackend(embedding.OllamaConfig{
			Host:      cfg.Embedding.OllamaHost,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			BatchSize: cfg.Embedding.BatchSize,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = ollamaBackend
	}

	memCache := cache.New(10*time.Minute, 10000)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	return embedding.NewService(backend, memCache, redisClient), redisClient, nil
}

// buildReranker constructs the LLM reranker over a local Ollama host.
func buildReranker(cfg *config.Config) (*rerank.Reranker, error) {
	provider, err := rerank.NewOllamaProvider(cfg.LLM.OllamaHost)
	if err != nil {
		return nil, err
	}
	models := rerank.ModelSet{Small: cfg.LLM.SmallModel, Large: cfg.LLM.LargeModel, Fast: cfg.LLM.FastModel}
	return rerank.New(provider, models, 20*time.Second), nil
}

// buildExpander constructs the refine pipeline's query-paraphrase expander.
func buildExpander(cfg *config.Config) (*expand.Expander, error) {
	generator, err := expand.NewOllamaGenerator(cfg.LLM.OllamaHost)
	if err != nil {
		return nil, err
	}
	return expand.New(generator, cfg.LLM.LargeModel, 10*time.Minute), nil
}

// Start begins serving HTTP traffic on cfg.HTTP.ListenAddr.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Str("addr", d.cfg.HTTP.ListenAddr).Msg("starting daemon")

	d.server = &http.Server{
		Addr:         d.cfg.HTTP.ListenAddr,
		Handler:      d.router,
		ReadTimeout:  d.cfg.HTTP.ReadTimeout,
		WriteTimeout: d.cfg.HTTP.WriteTimeout,
		IdleTimeout:  d.cfg.HTTP.IdleTimeout,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("server error")
		}
	}()

	d.mu.Lock()
	d.ready = true
	d.mu.Unlock()

	observability.LogEvent(d.logger, observability.EventDaemonStarted, map[string]interface{}{
		"addr": d.cfg.HTTP.ListenAddr,
	})
	d.logger.Info().Msg("daemon started")
	return nil
}

// Stop gracefully shuts the daemon down, closing every owned backend
// connection.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.ready = false
	d.mu.Unlock()

	d.logger.Info().Msg("stopping daemon")
	close(d.shutdownCh)

	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Error().Err(err).Msg("server shutdown error")
		}
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn().Msg("shutdown timeout, some goroutines may still be running")
	}

	if d.analytics != nil {
		d.analytics.Close()
	}
	if d.vector != nil {
		d.vector.Close()
	}
	if d.graph != nil {
		d.graph.Close()
	}
	if d.redis != nil {
		d.redis.Close()
	}
	if d.store != nil {
		d.store.Close()
	}

	observability.LogEvent(d.logger, observability.EventDaemonStopped, nil)
	d.logger.Info().Msg("daemon stopped")
	return nil
}

// Run starts the daemon and blocks until an interrupt/TERM signal or a
// programmatic shutdown request, then shuts down gracefully.
func (d *Daemon) Run() error {
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-d.shutdownCh:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return d.Stop(shutdownCtx)
}

// Ready reports whether the daemon has finished start-up.
func (d *Daemon) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

// Store returns the daemon's metadata store.
func (d *Daemon) Store() *store.Store {
	return d.store
}
