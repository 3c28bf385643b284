package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/simpleflo/arabhybrid/internal/observability"
	"github.com/simpleflo/arabhybrid/internal/search/cache"
	"github.com/simpleflo/arabhybrid/internal/search/expand"
	"github.com/simpleflo/arabhybrid/internal/search/orchestrator"
	"github.com/simpleflo/arabhybrid/internal/search/types"
	"github.com/simpleflo/arabhybrid/pkg/apierr"
)

// EmbeddingCache is the subset of embedding.Service the cache-management
// endpoints need.
type EmbeddingCache interface {
	CacheStats() cache.Stats
	ClearCache()
	Warm(ctx context.Context, texts []string) error
}

// HealthChecker is the subset of internal/store.Store the health endpoint
// needs.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler wires the orchestrator and (optional) query expander into HTTP
// endpoints.
type Handler struct {
	orchestrator   *orchestrator.Orchestrator
	expander       *expand.Expander // nil disables the refine pipeline entirely
	store          HealthChecker
	embedding      EmbeddingCache // nil disables the /cache endpoints
	embeddingModel string
	isProduction   bool
	startTime      time.Time
	logger         zerolog.Logger
}

// Config wires a Handler's dependencies.
type Config struct {
	Orchestrator   *orchestrator.Orchestrator
	Expander       *expand.Expander
	Store          HealthChecker
	Embedding      EmbeddingCache
	EmbeddingModel string
	IsProduction   bool
}

// New constructs a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		orchestrator:   cfg.Orchestrator,
		expander:       cfg.Expander,
		store:          cfg.Store,
		embedding:      cfg.Embedding,
		embeddingModel: cfg.EmbeddingModel,
		isProduction:   cfg.IsProduction,
		startTime:      time.Now(),
		logger:         observability.Logger("httpapi"),
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSearchError maps a *apierr.SearchError to its HTTP status and the
// {error, message} response shape; any other error is treated as internal.
func writeSearchError(w http.ResponseWriter, err error) {
	if searchErr, ok := err.(*apierr.SearchError); ok {
		writeJSON(w, apierr.HTTPStatus(searchErr.Code), map[string]interface{}{
			"error":   string(searchErr.Code),
			"message": searchErr.Message,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error":   string(apierr.CodeInternal),
		"message": err.Error(),
	})
}

// HandleSearch runs the standard or refine pipeline for one query.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSearchError(w, apierr.New(apierr.CodeValidation, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeSearchError(w, err)
		return
	}

	params := req.toParams(h.embeddingModel)
	ctx := r.Context()

	var expansions []expand.WeightedQuery
	var resp *orchestrator.Response
	var err error

	// Refine only applies in hybrid mode without a book-scope filter; any
	// other mode or a single-book search falls back to the standard pipeline.
	refineEligible := params.Mode == types.ModeHybrid && params.BookIDFilter == ""
	if req.Refine && refineEligible && h.expander != nil {
		expansions = h.expander.Expand(ctx, params.Query.Normalized)
		resp, err = h.orchestrator.Refine(ctx, params, expansions)
	} else {
		resp, err = h.orchestrator.Search(ctx, params)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("search failed")
		writeSearchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildResponse(&req, params.Mode, resp, expansions, h.isProduction))
}

// HandleHealth reports whether the backing metadata store is reachable.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{"database": "ok"}

	if h.store != nil {
		if err := h.store.Health(r.Context()); err != nil {
			status = "unhealthy"
			checks["database"] = err.Error()
		}
	}

	httpStatus := http.StatusOK
	if status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandleReady answers ready: true with the handler's uptime whenever the
// HTTP server is serving requests; it performs no further check.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":     true,
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// cacheWarmRequest is the wire shape of a cache-warm call's JSON body.
type cacheWarmRequest struct {
	Texts []string `json:"texts"`
}

// HandleCacheStats reports the embedding cache's hit/miss/eviction counters.
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.embedding == nil {
		writeSearchError(w, apierr.New(apierr.CodeInternal, "embedding cache unavailable"))
		return
	}
	stats := h.embedding.CacheStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"evictions": stats.Evictions,
		"size":      stats.Size,
	})
}

// HandleCacheWarm pre-computes embeddings for the given texts so later
// searches over them are served from the cache.
func (h *Handler) HandleCacheWarm(w http.ResponseWriter, r *http.Request) {
	if h.embedding == nil {
		writeSearchError(w, apierr.New(apierr.CodeInternal, "embedding cache unavailable"))
		return
	}
	var req cacheWarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSearchError(w, apierr.New(apierr.CodeValidation, "invalid request body"))
		return
	}
	if len(req.Texts) == 0 {
		writeSearchError(w, apierr.New(apierr.CodeValidation, "texts must not be empty"))
		return
	}
	if err := h.embedding.Warm(r.Context(), req.Texts); err != nil {
		h.logger.Error().Err(err).Msg("cache warm failed")
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"warmed": len(req.Texts)})
}

// HandleCacheClear empties the in-memory embedding cache tier.
func (h *Handler) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if h.embedding == nil {
		writeSearchError(w, apierr.New(apierr.CodeInternal, "embedding cache unavailable"))
		return
	}
	h.embedding.ClearCache()
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
