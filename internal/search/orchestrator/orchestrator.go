// Package orchestrator wires every search stage - normalization,
// embedding, lexical and vector fan-out, fusion, reranking, translation,
// and graph context - into the two request pipelines: a standard search
// and a refine (query-expansion) search.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/simpleflo/arabhybrid/internal/observability"
	"github.com/simpleflo/arabhybrid/internal/search/analytics"
	"github.com/simpleflo/arabhybrid/internal/search/embedding"
	"github.com/simpleflo/arabhybrid/internal/search/expand"
	"github.com/simpleflo/arabhybrid/internal/search/fusion"
	"github.com/simpleflo/arabhybrid/internal/search/graphctx"
	"github.com/simpleflo/arabhybrid/internal/search/indexset"
	"github.com/simpleflo/arabhybrid/internal/search/lexical"
	"github.com/simpleflo/arabhybrid/internal/search/rerank"
	"github.com/simpleflo/arabhybrid/internal/search/translate"
	"github.com/simpleflo/arabhybrid/internal/search/types"
	"github.com/simpleflo/arabhybrid/internal/search/vector"
	"github.com/simpleflo/arabhybrid/pkg/apierr"
)

// Deadlines holds the time budgets for a single request. The orchestrator
// applies Request to each whole request and Graph to graph-context
// resolution; Lexical, Semantic and Expansion are carried but not applied
// to any call.
type Deadlines struct {
	Request   time.Duration
	Lexical   time.Duration
	Semantic  time.Duration
	Expansion time.Duration
	Graph     time.Duration
}

// Orchestrator runs the standard and refine search pipelines.
type Orchestrator struct {
	lexical    *lexical.Engine
	vectors    *vector.Store
	embeddings *embedding.Service
	fuser      fusion.Params
	reranker   *rerank.Reranker
	translator *translate.Merger
	graph      *graphctx.Resolver
	hydrator   Hydrator
	indexedBooks *indexset.Cache
	analytics  *analytics.Recorder
	deadlines  Deadlines
	logger     zerolog.Logger
}

// Config wires every dependency an Orchestrator needs.
type Config struct {
	Lexical    *lexical.Engine
	Vectors    *vector.Store
	Embeddings *embedding.Service
	Fusion     fusion.Params
	Reranker   *rerank.Reranker
	Translator *translate.Merger
	Graph      *graphctx.Resolver // nil disables graph context entirely
	Hydrator   Hydrator           // nil disables metadata/snippet hydration
	IndexedBooks *indexset.Cache  // nil disables the indexed-book-set eligibility gate
	Analytics  *analytics.Recorder
	Deadlines  Deadlines
}

// New constructs an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		lexical:      cfg.Lexical,
		vectors:      cfg.Vectors,
		embeddings:   cfg.Embeddings,
		fuser:        cfg.Fusion,
		reranker:     cfg.Reranker,
		translator:   cfg.Translator,
		graph:        cfg.Graph,
		hydrator:     cfg.Hydrator,
		indexedBooks: cfg.IndexedBooks,
		analytics:    cfg.Analytics,
		deadlines:    cfg.Deadlines,
		logger:       observability.Logger("search.orchestrator"),
	}
}

// bookKey gives the generic fusion engine a stable identity function for
// book-page candidates.
func bookKey(bookID string, page int) string { return fmt.Sprintf("%s#%d", bookID, page) }

// Search runs the standard hybrid pipeline: normalize, fan out to
// lexical and semantic engines per enabled domain, fuse, rerank, attach
// translations and graph context.
func (o *Orchestrator) Search(ctx context.Context, params types.SearchParams) (*Response, error) {
	if params.Query.Normalized == "" {
		return nil, apierr.New(apierr.CodeValidation, "query must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadlines.Request)
	defer cancel()

	start := time.Now()
	resp := &Response{}
	var degraded atomic.Bool

	g, gctx := errgroup.WithContext(ctx)

	if params.Domains.Books {
		g.Go(func() error {
			results, err := o.searchBooks(gctx, params, params.Query.Normalized, 1.0)
			if err != nil {
				o.logger.Warn().Err(err).Msg("book search degraded")
				degraded.Store(true)
				return nil
			}
			resp.Books = results
			return nil
		})
		g.Go(func() error {
			authors, err := o.searchAuthors(gctx, params, params.Query.Normalized)
			if err != nil {
				o.logger.Warn().Err(err).Msg("author search degraded")
				return nil
			}
			resp.Authors = authors
			return nil
		})
	}
	if params.Domains.Quran {
		g.Go(func() error {
			results, err := o.searchAyahs(gctx, params, params.Query.Normalized, 1.0)
			if err != nil {
				o.logger.Warn().Err(err).Msg("ayah search degraded")
				degraded.Store(true)
				return nil
			}
			// Graph-context resolution starts as soon as this domain's own
			// results are in, running alongside the book and hadith
			// searches still in flight rather than after every domain
			// finishes.
			if o.graph != nil {
				results = o.attachGraphContext(gctx, results)
			}
			resp.Ayahs = results
			return nil
		})
	}
	if params.Domains.Hadith {
		g.Go(func() error {
			results, err := o.searchHadiths(gctx, params, params.Query.Normalized, 1.0)
			if err != nil {
				o.logger.Warn().Err(err).Msg("hadith search degraded")
				degraded.Store(true)
				return nil
			}
			resp.Hadiths = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, "search failed", err)
	}

	o.attachTranslations(ctx, params, resp)

	resp.DebugStats = &types.DebugStats{
		DurationMs: time.Since(start).Milliseconds(),
		Degraded:   degraded.Load(),
	}

	event := observability.EventSearchCompleted
	if degraded.Load() {
		event = observability.EventSearchDegraded
	}
	observability.LogEvent(o.logger, event, map[string]interface{}{
		"mode":     params.Mode,
		"duration": time.Since(start).Milliseconds(),
	})
	if o.analytics != nil {
		o.analytics.Emit(analytics.Event{
			Timestamp:  time.Now(),
			Query:      params.Query.Raw,
			Mode:       string(params.Mode),
			DurationMs: time.Since(start).Milliseconds(),
			Degraded:   degraded.Load(),
		})
	}

	return resp, nil
}

// Refine runs the multi-query expansion pipeline over the caller's
// expansions (the original query plus its paraphrases): for each expansion
// in turn it runs the per-domain fused fetches, one query after another
// rather than concurrently, then merges each domain with weighted RRF
// before applying the single unified reranking pass.
func (o *Orchestrator) Refine(ctx context.Context, params types.SearchParams, expansions []expand.WeightedQuery) (*Response, error) {
	if len(expansions) == 0 {
		return o.Search(ctx, params)
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadlines.Request)
	defer cancel()

	perQueryLimit := params.Refine.PerQueryLimit
	if perQueryLimit <= 0 {
		perQueryLimit = 40
	}

	var bookQueries []fusion.WeightedQuery[types.RankedResult]
	var ayahQueries []fusion.WeightedQuery[types.AyahRankedResult]
	var hadithQueries []fusion.WeightedQuery[types.HadithRankedResult]

	for _, exp := range expansions {
		if params.Domains.Books {
			results, err := o.searchBooksFused(ctx, params, exp.Query, perQueryLimit)
			if err == nil {
				bookQueries = append(bookQueries, fusion.WeightedQuery[types.RankedResult]{Weight: exp.Weight, Results: results})
			}
		}
		if params.Domains.Quran {
			results, err := o.searchAyahsFused(ctx, params, exp.Query, perQueryLimit)
			if err == nil {
				ayahQueries = append(ayahQueries, fusion.WeightedQuery[types.AyahRankedResult]{Weight: exp.Weight, Results: results})
			}
		}
		if params.Domains.Hadith {
			results, err := o.searchHadithsFused(ctx, params, exp.Query, perQueryLimit)
			if err == nil {
				hadithQueries = append(hadithQueries, fusion.WeightedQuery[types.HadithRankedResult]{Weight: exp.Weight, Results: results})
			}
		}
	}

	resp := &Response{}
	primaryQuery := params.Query.Normalized
	var books []types.RankedResult
	var ayahs []types.AyahRankedResult
	var hadiths []types.HadithRankedResult

	if params.Domains.Books {
		if authors, err := o.searchAuthors(ctx, params, primaryQuery); err != nil {
			o.logger.Warn().Err(err).Msg("author search degraded")
		} else {
			resp.Authors = authors
		}
	}

	if len(bookQueries) > 0 {
		merged := fusion.MergeMultiQuery(bookQueries, o.fuser.RRFConstant)
		merged = fusion.Dedup(merged)
		books = o.hydrateBooks(ctx, toRankedResults(fusion.Limit(merged, params.Limits.Books)))
	}
	if len(ayahQueries) > 0 {
		merged := fusion.MergeMultiQuery(ayahQueries, o.fuser.RRFConstant)
		merged = fusion.Dedup(merged)
		ayahs = o.hydrateAyahs(ctx, toAyahResults(fusion.Limit(merged, params.Limits.Quran)))
	}
	if len(hadithQueries) > 0 {
		merged := fusion.MergeMultiQuery(hadithQueries, o.fuser.RRFConstant)
		merged = fusion.Dedup(merged)
		hadiths = o.hydrateHadiths(ctx, toHadithResults(fusion.Limit(merged, params.Limits.Hadith)))
	}

	resp.Books, resp.Ayahs, resp.Hadiths = o.applyUnifiedRerank(ctx, rerank.Choice(params.Reranker), primaryQuery, books, ayahs, hadiths, params.Limits)

	if o.graph != nil {
		resp.Ayahs = o.attachGraphContext(ctx, resp.Ayahs)
	}
	o.attachTranslations(ctx, params, resp)

	resp.DebugStats = &types.DebugStats{ExpansionCount: len(expansions)}
	observability.LogEvent(o.logger, observability.EventRefineCompleted, map[string]interface{}{
		"expansions": len(expansions),
	})

	return resp, nil
}

// Response is the orchestrator's per-domain result set.
type Response struct {
	Books      []types.RankedResult
	Authors    []types.AuthorRankedResult
	Ayahs      []types.AyahRankedResult
	Hadiths    []types.HadithRankedResult
	DebugStats *types.DebugStats
}

func toRankedResults(fused []fusion.Fused[types.RankedResult]) []types.RankedResult {
	out := make([]types.RankedResult, len(fused))
	for i, f := range fused {
		item := f.Item
		item.RRFScore = f.RRFScore
		item.FusedScore = f.WeightedScore
		out[i] = item
	}
	return out
}

func toAyahResults(fused []fusion.Fused[types.AyahRankedResult]) []types.AyahRankedResult {
	out := make([]types.AyahRankedResult, len(fused))
	for i, f := range fused {
		item := f.Item
		item.RRFScore = f.RRFScore
		item.FusedScore = f.WeightedScore
		out[i] = item
	}
	return out
}

func toHadithResults(fused []fusion.Fused[types.HadithRankedResult]) []types.HadithRankedResult {
	out := make([]types.HadithRankedResult, len(fused))
	for i, f := range fused {
		item := f.Item
		item.RRFScore = f.RRFScore
		item.FusedScore = f.WeightedScore
		out[i] = item
	}
	return out
}
