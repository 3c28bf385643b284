package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/simpleflo/arabhybrid/internal/search/fusion"
	"github.com/simpleflo/arabhybrid/internal/search/indexset"
	"github.com/simpleflo/arabhybrid/internal/search/lexical"
	"github.com/simpleflo/arabhybrid/internal/search/normalize"
	"github.com/simpleflo/arabhybrid/internal/search/rerank"
	"github.com/simpleflo/arabhybrid/internal/search/types"
	"github.com/simpleflo/arabhybrid/internal/search/vector"
)

// Hydrator fills in the display metadata (titles, snippets, source text)
// that the lexical and semantic engines don't carry in their hit rows -
// the orchestrator only needs to know what was matched and how well; the
// relational store knows what to show for it.
type Hydrator interface {
	HydrateBooks(ctx context.Context, results []types.RankedResult) ([]types.RankedResult, error)
	HydrateAyahs(ctx context.Context, results []types.AyahRankedResult) ([]types.AyahRankedResult, error)
	HydrateHadiths(ctx context.Context, results []types.HadithRankedResult) ([]types.HadithRankedResult, error)
}

func ayahKey(surah, ayah int) string { return fmt.Sprintf("%d:%d", surah, ayah) }

func hadithKey(collection, number string) string { return collection + "#" + number }

func parseBookKey(key string) (bookID string, page int) {
	idx := strings.LastIndex(key, "#")
	if idx < 0 {
		return key, 0
	}
	bookID = key[:idx]
	fmt.Sscanf(key[idx+1:], "%d", &page)
	return bookID, page
}

func parseAyahKey(key string) (surah, ayah int) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	fmt.Sscanf(parts[0], "%d", &surah)
	fmt.Sscanf(parts[1], "%d", &ayah)
	return surah, ayah
}

func parseHadithKey(key string) (collection, number string) {
	idx := strings.LastIndex(key, "#")
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+1:]
}

// fuseBooks runs the lexical and (unless skipped) semantic engines for one
// query against the book domain and fuses their candidate lists.
func (o *Orchestrator) fuseBooks(ctx context.Context, params types.SearchParams, query string, limit int) ([]fusion.Fused[types.RankedResult], error) {
	phrases := params.Query.Phrases
	ftsQuery := lexical.BuildFTSQuery(query, phrases)

	var lexCandidates []fusion.Candidate[types.RankedResult]
	if o.lexical != nil && params.Mode != types.ModeSemantic {
		hits, err := o.lexical.SearchBooks(ctx, ftsQuery, params.BookIDFilter, limit)
		if err != nil {
			return nil, fmt.Errorf("lexical book search: %w", err)
		}

		// Numeric-ID and exact-title matches are independent signals layered
		// on top of the ordinary FTS5 hits: any FTS5 hit for a book one of
		// them already covers is dropped in favor of the stronger boost.
		boosted := make(map[string]lexical.Hit)
		if idHits, err := o.lexical.SearchBookIDs(ctx, query); err != nil {
			o.logger.Warn().Err(err).Msg("book id boost lookup failed, continuing without it")
		} else {
			for _, h := range idHits {
				boosted[h.BookID] = h
			}
		}
		if titleHits, err := o.lexical.SearchExactTitleMatches(ctx, params.Query.Raw); err != nil {
			o.logger.Warn().Err(err).Msg("exact title boost lookup failed, continuing without it")
		} else {
			for _, h := range titleHits {
				if _, ok := boosted[h.BookID]; !ok {
					boosted[h.BookID] = h
				}
			}
		}

		lexCandidates = make([]fusion.Candidate[types.RankedResult], 0, len(hits)+len(boosted))
		seenBooks := make(map[string]bool, len(boosted))
		for bookID, h := range boosted {
			bm25 := h.BM25
			lexCandidates = append(lexCandidates, fusion.Candidate[types.RankedResult]{
				Key:     bookKey(h.BookID, h.PageNumber),
				Item:    types.RankedResult{BookID: h.BookID, PageNumber: h.PageNumber, MatchType: types.MatchKeyword},
				BM25Raw: &bm25,
			})
			seenBooks[bookID] = true
		}
		for _, h := range hits {
			if seenBooks[h.BookID] {
				continue
			}
			bm25 := h.BM25
			lexCandidates = append(lexCandidates, fusion.Candidate[types.RankedResult]{
				Key:     bookKey(h.BookID, h.PageNumber),
				Item:    types.RankedResult{BookID: h.BookID, PageNumber: h.PageNumber, MatchType: types.MatchKeyword},
				BM25Raw: &bm25,
			})
		}
	}

	var semCandidates []fusion.Candidate[types.RankedResult]
	if o.embeddings != nil && o.vectors != nil && params.Mode != types.ModeKeyword && !normalize.SkipSemantic(query) {
		vec, err := o.embeddings.Embed(ctx, query)
		if err != nil {
			o.logger.Warn().Err(err).Msg("book embedding failed, continuing lexical-only")
		} else {
			collection := vector.CollectionName("books", params.EmbeddingModel)
			cutoff := normalize.SimilarityCutoff(params.SimilarityCutoff, query)
			hits, err := o.vectors.Search(ctx, collection, vec, vector.SearchOptions{Limit: limit, MinScore: cutoff, BookFilter: params.BookIDFilter})
			if err != nil {
				o.logger.Warn().Err(err).Msg("book vector search failed, continuing lexical-only")
			} else {
				semCandidates = make([]fusion.Candidate[types.RankedResult], len(hits))
				for i, h := range hits {
					bookID, page := parseBookKey(h.Key)
					score := float64(h.Score)
					semCandidates[i] = fusion.Candidate[types.RankedResult]{
						Key:      h.Key,
						Item:     types.RankedResult{BookID: bookID, PageNumber: page, MatchType: types.MatchSemantic},
						Semantic: &score,
					}
				}
			}
		}
	}

	fused := fusion.Fuse(lexCandidates, semCandidates, o.fuser)
	for i := range fused {
		if fused[i].SemanticRank != nil && fused[i].KeywordRank != nil {
			fused[i].Item.MatchType = types.MatchBoth
		}
	}

	// The indexed-book-set eligibility gate only applies when the caller
	// hasn't already scoped the search to one book; a nil set (disabled,
	// or computation failed) means "do not filter".
	if params.BookIDFilter == "" && o.indexedBooks != nil {
		if allowed := o.indexedBooks.Snapshot(ctx); allowed != nil {
			fused = filterEligibleBooks(fused, allowed)
		}
	}

	return fused, nil
}

func filterEligibleBooks(fused []fusion.Fused[types.RankedResult], allowed *indexset.Set) []fusion.Fused[types.RankedResult] {
	kept := fused[:0]
	for _, f := range fused {
		if allowed.Contains(f.Item.BookID) {
			kept = append(kept, f)
		}
	}
	return kept
}

func authorKey(authorID string) string { return "author#" + authorID }

// fuseAuthors resolves a query directly against author name fields -
// independent of fuseBooks, which only ever attaches an author to a page it
// already matched - so an author-name query surfaces the author even when
// none of their individual pages rank highly. Lexical-only: no author
// embedding collection exists for a semantic pass to run against.
func (o *Orchestrator) fuseAuthors(ctx context.Context, params types.SearchParams, query string, limit int) ([]fusion.Fused[types.AuthorRankedResult], error) {
	if o.lexical == nil || params.Mode == types.ModeSemantic {
		return nil, nil
	}
	hits, err := o.lexical.SearchAuthors(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical author search: %w", err)
	}
	candidates := make([]fusion.Candidate[types.AuthorRankedResult], len(hits))
	for i, h := range hits {
		bm25 := h.BM25
		candidates[i] = fusion.Candidate[types.AuthorRankedResult]{
			Key: authorKey(h.AuthorID),
			Item: types.AuthorRankedResult{Author: types.Author{
				AuthorID:   h.AuthorID,
				NameArabic: h.NameArabic,
				NameLatin:  h.NameLatin,
				Kunya:      h.Kunya,
				Nasab:      h.Nasab,
				Nisba:      h.Nisba,
				Laqab:      h.Laqab,
			}},
			BM25Raw: &bm25,
		}
	}
	return fusion.Fuse(candidates, nil, o.fuser), nil
}

// authorSearchLimit bounds the direct author lookup - author results are a
// small supplementary list, never a paginated domain of their own.
const authorSearchLimit = 10

func (o *Orchestrator) searchAuthors(ctx context.Context, params types.SearchParams, query string) ([]types.AuthorRankedResult, error) {
	fused, err := o.fuseAuthors(ctx, params, query, authorSearchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]types.AuthorRankedResult, len(fused))
	for i, f := range fused {
		item := f.Item
		item.RRFScore = f.RRFScore
		item.FusedScore = f.WeightedScore
		out[i] = item
	}
	return out, nil
}

func (o *Orchestrator) fuseAyahs(ctx context.Context, params types.SearchParams, query string, limit int) ([]fusion.Fused[types.AyahRankedResult], error) {
	ftsQuery := lexical.BuildFTSQuery(query, params.Query.Phrases)

	var lexCandidates []fusion.Candidate[types.AyahRankedResult]
	if o.lexical != nil && params.Mode != types.ModeSemantic {
		if surah, ayah, ok := o.lexical.NumericLookup(ctx, query); ok {
			lexCandidates = []fusion.Candidate[types.AyahRankedResult]{{
				Key:  ayahKey(surah, ayah),
				Item: types.AyahRankedResult{SurahNumber: surah, AyahNumber: ayah, AyahEnd: ayah},
			}}
		} else {
			hits, err := o.lexical.SearchAyahs(ctx, ftsQuery, limit)
			if err != nil {
				return nil, fmt.Errorf("lexical ayah search: %w", err)
			}
			lexCandidates = make([]fusion.Candidate[types.AyahRankedResult], len(hits))
			for i, h := range hits {
				bm25 := h.BM25
				lexCandidates[i] = fusion.Candidate[types.AyahRankedResult]{
					Key:     ayahKey(h.SurahNumber, h.AyahNumber),
					Item:    types.AyahRankedResult{SurahNumber: h.SurahNumber, AyahNumber: h.AyahNumber, AyahEnd: h.AyahNumber},
					BM25Raw: &bm25,
				}
			}
		}
	}

	var semCandidates []fusion.Candidate[types.AyahRankedResult]
	if o.embeddings != nil && o.vectors != nil && params.Mode != types.ModeKeyword && !normalize.SkipSemantic(query) {
		vec, err := o.embeddings.Embed(ctx, query)
		if err != nil {
			o.logger.Warn().Err(err).Msg("ayah embedding failed, continuing lexical-only")
		} else {
			collection := vector.CollectionName("quran", params.EmbeddingModel)
			cutoff := normalize.SimilarityCutoff(params.SimilarityCutoff, query)
			hits, err := o.vectors.Search(ctx, collection, vec, vector.SearchOptions{Limit: limit, MinScore: cutoff})
			if err != nil {
				o.logger.Warn().Err(err).Msg("ayah vector search failed, continuing lexical-only")
			} else {
				semCandidates = make([]fusion.Candidate[types.AyahRankedResult], len(hits))
				for i, h := range hits {
					surah, ayah := parseAyahKey(h.Key)
					score := float64(h.Score)
					semCandidates[i] = fusion.Candidate[types.AyahRankedResult]{
						Key:      h.Key,
						Item:     types.AyahRankedResult{SurahNumber: surah, AyahNumber: ayah, AyahEnd: ayah},
						Semantic: &score,
					}
				}
			}
		}
	}

	return fusion.Fuse(lexCandidates, semCandidates, o.fuser), nil
}

func (o *Orchestrator) fuseHadiths(ctx context.Context, params types.SearchParams, query string, limit int) ([]fusion.Fused[types.HadithRankedResult], error) {
	ftsQuery := lexical.BuildFTSQuery(query, params.Query.Phrases)

	var lexCandidates []fusion.Candidate[types.HadithRankedResult]
	if o.lexical != nil && params.Mode != types.ModeSemantic {
		hits, err := o.lexical.SearchHadiths(ctx, ftsQuery, limit)
		if err != nil {
			return nil, fmt.Errorf("lexical hadith search: %w", err)
		}
		lexCandidates = make([]fusion.Candidate[types.HadithRankedResult], len(hits))
		for i, h := range hits {
			bm25 := h.BM25
			lexCandidates[i] = fusion.Candidate[types.HadithRankedResult]{
				Key:     hadithKey(h.CollectionSlug, h.HadithNumber),
				Item:    types.HadithRankedResult{CollectionSlug: h.CollectionSlug, HadithNumber: h.HadithNumber},
				BM25Raw: &bm25,
			}
		}
	}

	var semCandidates []fusion.Candidate[types.HadithRankedResult]
	if o.embeddings != nil && o.vectors != nil && params.Mode != types.ModeKeyword && !normalize.SkipSemantic(query) {
		vec, err := o.embeddings.Embed(ctx, query)
		if err != nil {
			o.logger.Warn().Err(err).Msg("hadith embedding failed, continuing lexical-only")
		} else {
			collection := vector.CollectionName("hadith", params.EmbeddingModel)
			cutoff := normalize.SimilarityCutoff(params.SimilarityCutoff, query)
			hits, err := o.vectors.Search(ctx, collection, vec, vector.SearchOptions{Limit: limit, MinScore: cutoff})
			if err != nil {
				o.logger.Warn().Err(err).Msg("hadith vector search failed, continuing lexical-only")
			} else {
				semCandidates = make([]fusion.Candidate[types.HadithRankedResult], len(hits))
				for i, h := range hits {
					collection, number := parseHadithKey(h.Key)
					score := float64(h.Score)
					semCandidates[i] = fusion.Candidate[types.HadithRankedResult]{
						Key:      h.Key,
						Item:     types.HadithRankedResult{CollectionSlug: collection, HadithNumber: number},
						Semantic: &score,
					}
				}
			}
		}
	}

	return fusion.Fuse(lexCandidates, semCandidates, o.fuser), nil
}

// searchBooks runs the single-query book pipeline: fuse, hydrate, rerank.
func (o *Orchestrator) searchBooks(ctx context.Context, params types.SearchParams, query string, _ float64) ([]types.RankedResult, error) {
	fetchLimit := params.Limits.Books
	if fetchLimit <= 0 {
		fetchLimit = params.Limits.Overall
	}
	fused, err := o.fuseBooks(ctx, params, query, fetchLimit)
	if err != nil {
		return nil, err
	}
	results := toRankedResults(fusion.Limit(fused, fetchLimit))
	return o.finalizeBooks(ctx, params, query, results), nil
}

func (o *Orchestrator) searchAyahs(ctx context.Context, params types.SearchParams, query string, _ float64) ([]types.AyahRankedResult, error) {
	fetchLimit := params.Limits.Quran
	if fetchLimit <= 0 {
		fetchLimit = params.Limits.Overall
	}
	fused, err := o.fuseAyahs(ctx, params, query, fetchLimit)
	if err != nil {
		return nil, err
	}
	results := toAyahResults(fusion.Limit(fused, fetchLimit))
	return o.finalizeAyahs(ctx, params, query, results), nil
}

func (o *Orchestrator) searchHadiths(ctx context.Context, params types.SearchParams, query string, _ float64) ([]types.HadithRankedResult, error) {
	fetchLimit := params.Limits.Hadith
	if fetchLimit <= 0 {
		fetchLimit = params.Limits.Overall
	}
	fused, err := o.fuseHadiths(ctx, params, query, fetchLimit)
	if err != nil {
		return nil, err
	}
	results := toHadithResults(fusion.Limit(fused, fetchLimit))
	return o.finalizeHadiths(ctx, params, query, results), nil
}

// searchBooksFused, searchAyahsFused and searchHadithsFused run one
// expansion query's fan-out for the refine pipeline, deferring
// hydration and reranking until after the multi-query merge.
func (o *Orchestrator) searchBooksFused(ctx context.Context, params types.SearchParams, query string, limit int) ([]fusion.Fused[types.RankedResult], error) {
	return o.fuseBooks(ctx, params, query, limit)
}

func (o *Orchestrator) searchAyahsFused(ctx context.Context, params types.SearchParams, query string, limit int) ([]fusion.Fused[types.AyahRankedResult], error) {
	return o.fuseAyahs(ctx, params, query, limit)
}

func (o *Orchestrator) searchHadithsFused(ctx context.Context, params types.SearchParams, query string, limit int) ([]fusion.Fused[types.HadithRankedResult], error) {
	return o.fuseHadiths(ctx, params, query, limit)
}

// finalizeBooks hydrates display metadata and applies the configured
// reranking tier; used by the standard pipeline once it has produced its
// final candidate order. The refine pipeline hydrates directly and reranks
// through applyUnifiedRerank instead.
func (o *Orchestrator) finalizeBooks(ctx context.Context, params types.SearchParams, query string, results []types.RankedResult) []types.RankedResult {
	results = o.hydrateBooks(ctx, results)

	if o.reranker == nil || len(results) == 0 {
		return limitBooks(results, params.Limits.Books)
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.TextSnippet
	}
	order := o.reranker.Rerank(ctx, rerank.Choice(params.Reranker), query, texts)
	reordered := make([]types.RankedResult, len(order))
	for i, idx := range order {
		reordered[i] = results[idx]
	}
	return limitBooks(reordered, params.Limits.Books)
}

func (o *Orchestrator) finalizeAyahs(ctx context.Context, params types.SearchParams, query string, results []types.AyahRankedResult) []types.AyahRankedResult {
	results = o.hydrateAyahs(ctx, results)

	if o.reranker == nil || len(results) == 0 {
		return limitAyahs(results, params.Limits.Quran)
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.TextArabic
	}
	order := o.reranker.Rerank(ctx, rerank.Choice(params.Reranker), query, texts)
	reordered := make([]types.AyahRankedResult, len(order))
	for i, idx := range order {
		reordered[i] = results[idx]
	}
	return limitAyahs(reordered, params.Limits.Quran)
}

func (o *Orchestrator) finalizeHadiths(ctx context.Context, params types.SearchParams, query string, results []types.HadithRankedResult) []types.HadithRankedResult {
	results = o.hydrateHadiths(ctx, results)

	if o.reranker == nil || len(results) == 0 {
		return limitHadiths(results, params.Limits.Hadith)
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.TextArabic
	}
	order := o.reranker.Rerank(ctx, rerank.Choice(params.Reranker), query, texts)
	reordered := make([]types.HadithRankedResult, len(order))
	for i, idx := range order {
		reordered[i] = results[idx]
	}
	return limitHadiths(reordered, params.Limits.Hadith)
}

func (o *Orchestrator) hydrateBooks(ctx context.Context, results []types.RankedResult) []types.RankedResult {
	if o.hydrator == nil || len(results) == 0 {
		return results
	}
	hydrated, err := o.hydrator.HydrateBooks(ctx, results)
	if err != nil {
		o.logger.Warn().Err(err).Msg("book hydration failed, returning unhydrated results")
		return results
	}
	return hydrated
}

func (o *Orchestrator) hydrateAyahs(ctx context.Context, results []types.AyahRankedResult) []types.AyahRankedResult {
	if o.hydrator == nil || len(results) == 0 {
		return results
	}
	hydrated, err := o.hydrator.HydrateAyahs(ctx, results)
	if err != nil {
		o.logger.Warn().Err(err).Msg("ayah hydration failed, returning unhydrated results")
		return results
	}
	return hydrated
}

func (o *Orchestrator) hydrateHadiths(ctx context.Context, results []types.HadithRankedResult) []types.HadithRankedResult {
	if o.hydrator == nil || len(results) == 0 {
		return results
	}
	hydrated, err := o.hydrator.HydrateHadiths(ctx, results)
	if err != nil {
		o.logger.Warn().Err(err).Msg("hadith hydration failed, returning unhydrated results")
		return results
	}
	return hydrated
}

// applyUnifiedRerank is the refine pipeline's single reranking pass: book,
// ayah, and hadith candidates are judged together in one LLM call instead
// of three, tagged by domain in the prompt, then the combined relevance
// order is split back into three domain-capped lists. Each surviving item's
// FusedScore is overwritten with the synthetic monotone score
// 1 - (rank/100) so later sorting by FusedScore stays consistent with
// the unified order. Falls back to simple per-domain truncation when no
// reranker is configured.
func (o *Orchestrator) applyUnifiedRerank(ctx context.Context, choice rerank.Choice, query string, books []types.RankedResult, ayahs []types.AyahRankedResult, hadiths []types.HadithRankedResult, limits types.Limits) ([]types.RankedResult, []types.AyahRankedResult, []types.HadithRankedResult) {
	if o.reranker == nil {
		return limitBooks(books, limits.Books), limitAyahs(ayahs, limits.Quran), limitHadiths(hadiths, limits.Hadith)
	}

	type combinedRef struct {
		domain string
		index  int
	}

	items := make([]rerank.UnifiedItem, 0, len(books)+len(ayahs)+len(hadiths))
	refs := make([]combinedRef, 0, cap(items))
	for i, b := range books {
		items = append(items, rerank.UnifiedItem{Domain: "book", Text: b.TextSnippet})
		refs = append(refs, combinedRef{"book", i})
	}
	for i, a := range ayahs {
		items = append(items, rerank.UnifiedItem{Domain: "ayah", Text: a.TextArabic})
		refs = append(refs, combinedRef{"ayah", i})
	}
	for i, h := range hadiths {
		items = append(items, rerank.UnifiedItem{Domain: "hadith", Text: h.TextArabic})
		refs = append(refs, combinedRef{"hadith", i})
	}

	order := o.reranker.UnifiedRerank(ctx, choice, query, items)

	outBooks := make([]types.RankedResult, 0, limits.Books)
	outAyahs := make([]types.AyahRankedResult, 0, limits.Quran)
	outHadiths := make([]types.HadithRankedResult, 0, limits.Hadith)

	for rank, combinedIdx := range order {
		ref := refs[combinedIdx]
		score := 1 - float64(rank+1)/100
		switch ref.domain {
		case "book":
			if limits.Books > 0 && len(outBooks) >= limits.Books {
				continue
			}
			item := books[ref.index]
			item.FusedScore = score
			outBooks = append(outBooks, item)
		case "ayah":
			if limits.Quran > 0 && len(outAyahs) >= limits.Quran {
				continue
			}
			item := ayahs[ref.index]
			item.FusedScore = score
			outAyahs = append(outAyahs, item)
		case "hadith":
			if limits.Hadith > 0 && len(outHadiths) >= limits.Hadith {
				continue
			}
			item := hadiths[ref.index]
			item.FusedScore = score
			outHadiths = append(outHadiths, item)
		}
	}

	return outBooks, outAyahs, outHadiths
}

func limitBooks(results []types.RankedResult, n int) []types.RankedResult {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}

func limitAyahs(results []types.AyahRankedResult, n int) []types.AyahRankedResult {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}

func limitHadiths(results []types.HadithRankedResult, n int) []types.HadithRankedResult {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}
