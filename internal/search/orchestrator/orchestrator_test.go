package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/simpleflo/arabhybrid/internal/search/fusion"
	"github.com/simpleflo/arabhybrid/internal/search/rerank"
	"github.com/simpleflo/arabhybrid/internal/search/types"
)

func TestBookKey_RoundTrip(t *testing.T) {
	key := bookKey("book42", 7)
	bookID, page := parseBookKey(key)
	if bookID != "book42" || page != 7 {
		t.Errorf("expected (book42, 7), got (%s, %d)", bookID, page)
	}
}

func TestAyahKey_RoundTrip(t *testing.T) {
	key := ayahKey(2, 255)
	surah, ayah := parseAyahKey(key)
	if surah != 2 || ayah != 255 {
		t.Errorf("expected (2, 255), got (%d, %d)", surah, ayah)
	}
}

func TestHadithKey_RoundTrip(t *testing.T) {
	key := hadithKey("bukhari", "1-2")
	collection, number := parseHadithKey(key)
	if collection != "bukhari" || number != "1-2" {
		t.Errorf("expected (bukhari, 1-2), got (%s, %s)", collection, number)
	}
}

// fakeHydrator tags every result with a snippet derived from its key, so
// tests can assert hydration ran before reranking.
type fakeHydrator struct{}

func (fakeHydrator) HydrateBooks(ctx context.Context, results []types.RankedResult) ([]types.RankedResult, error) {
	for i := range results {
		results[i].TextSnippet = results[i].Key()
	}
	return results, nil
}

func (fakeHydrator) HydrateAyahs(ctx context.Context, results []types.AyahRankedResult) ([]types.AyahRankedResult, error) {
	for i := range results {
		results[i].TextArabic = results[i].Key()
	}
	return results, nil
}

func (fakeHydrator) HydrateHadiths(ctx context.Context, results []types.HadithRankedResult) ([]types.HadithRankedResult, error) {
	for i := range results {
		results[i].TextArabic = results[i].Key()
	}
	return results, nil
}

// reverseProvider returns candidates in reverse order, a deterministic
// permutation that's easy to assert against.
type reverseProvider struct{}

func (reverseProvider) Rerank(ctx context.Context, model, query string, candidates []rerank.Candidate) ([]int, error) {
	order := make([]int, len(candidates))
	for i := range candidates {
		order[i] = len(candidates) - 1 - i
	}
	return order, nil
}

func (reverseProvider) RerankPrompt(ctx context.Context, model, prompt string, n int) ([]int, error) {
	order := make([]int, n)
	for i := range order {
		order[i] = n - 1 - i
	}
	return order, nil
}

func TestFinalizeBooks_HydratesThenReranks(t *testing.T) {
	reranker := rerank.New(reverseProvider{}, rerank.ModelSet{Small: "test-model"}, time.Second)
	o := New(Config{
		Hydrator: fakeHydrator{},
		Reranker: reranker,
		Fusion:   fusion.DefaultParams(),
	})

	results := []types.RankedResult{
		{BookID: "a", PageNumber: 1},
		{BookID: "b", PageNumber: 2},
		{BookID: "c", PageNumber: 3},
	}
	params := types.SearchParams{Reranker: types.RerankSmall, Limits: types.Limits{Books: 10}}

	final := o.finalizeBooks(context.Background(), params, "query", results)

	if len(final) != 3 {
		t.Fatalf("expected 3 results, got %d", len(final))
	}
	if final[0].BookID != "c" || final[2].BookID != "a" {
		t.Errorf("expected reverse order after rerank, got %v", keysOf(final))
	}
	for _, r := range final {
		if r.TextSnippet != r.Key() {
			t.Errorf("expected hydration before rerank, got snippet %q for key %q", r.TextSnippet, r.Key())
		}
	}
}

func keysOf(results []types.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Key()
	}
	return out
}

func TestFinalizeAyahs_NoHydratorNoReranker_Passthrough(t *testing.T) {
	o := New(Config{Fusion: fusion.DefaultParams()})

	results := []types.AyahRankedResult{
		{SurahNumber: 1, AyahNumber: 1},
		{SurahNumber: 1, AyahNumber: 2},
	}
	params := types.SearchParams{Limits: types.Limits{Quran: 10}}

	final := o.finalizeAyahs(context.Background(), params, "query", results)
	if len(final) != 2 || final[0].AyahNumber != 1 || final[1].AyahNumber != 2 {
		t.Errorf("expected passthrough order, got %+v", final)
	}
}

func TestApplyUnifiedRerank_DistributesAcrossDomains(t *testing.T) {
	reranker := rerank.New(reverseProvider{}, rerank.ModelSet{Small: "test-model"}, time.Second)
	o := New(Config{Reranker: reranker, Fusion: fusion.DefaultParams()})

	books := []types.RankedResult{{BookID: "b1", PageNumber: 1}}
	ayahs := []types.AyahRankedResult{{SurahNumber: 1, AyahNumber: 1}}
	hadiths := []types.HadithRankedResult{{CollectionSlug: "bukhari", HadithNumber: "1"}}

	outBooks, outAyahs, outHadiths := o.applyUnifiedRerank(context.Background(), rerank.ChoiceSmall, "query", books, ayahs, hadiths, types.Limits{Books: 10, Quran: 10, Hadith: 10})

	if len(outBooks) != 1 || len(outAyahs) != 1 || len(outHadiths) != 1 {
		t.Fatalf("expected one item per domain, got books=%d ayahs=%d hadiths=%d", len(outBooks), len(outAyahs), len(outHadiths))
	}
	if outBooks[0].FusedScore <= 0 || outBooks[0].FusedScore >= 1 {
		t.Errorf("expected synthetic score in (0,1), got %f", outBooks[0].FusedScore)
	}
}

func TestApplyUnifiedRerank_RespectsCaps(t *testing.T) {
	reranker := rerank.New(reverseProvider{}, rerank.ModelSet{Small: "test-model"}, time.Second)
	o := New(Config{Reranker: reranker, Fusion: fusion.DefaultParams()})

	books := []types.RankedResult{{BookID: "b1", PageNumber: 1}, {BookID: "b2", PageNumber: 2}}
	ayahs := []types.AyahRankedResult{{SurahNumber: 1, AyahNumber: 1}}
	hadiths := []types.HadithRankedResult{{CollectionSlug: "bukhari", HadithNumber: "1"}}

	outBooks, _, _ := o.applyUnifiedRerank(context.Background(), rerank.ChoiceSmall, "query", books, ayahs, hadiths, types.Limits{Books: 1, Quran: 10, Hadith: 10})
	if len(outBooks) != 1 {
		t.Errorf("expected book cap of 1 respected, got %d", len(outBooks))
	}
}

func TestApplyUnifiedRerank_NoReranker_TruncatesOnly(t *testing.T) {
	o := New(Config{Fusion: fusion.DefaultParams()})
	books := []types.RankedResult{{BookID: "b1"}, {BookID: "b2"}, {BookID: "b3"}}

	outBooks, _, _ := o.applyUnifiedRerank(context.Background(), rerank.ChoiceNone, "query", books, nil, nil, types.Limits{Books: 2})
	if len(outBooks) != 2 {
		t.Errorf("expected truncation to 2 without a reranker, got %d", len(outBooks))
	}
}

func TestLimitBooks_Truncates(t *testing.T) {
	results := []types.RankedResult{{BookID: "a"}, {BookID: "b"}, {BookID: "c"}}
	limited := limitBooks(results, 2)
	if len(limited) != 2 {
		t.Errorf("expected 2 results, got %d", len(limited))
	}
}

func TestLimitBooks_NoOpWhenUnderLimit(t *testing.T) {
	results := []types.RankedResult{{BookID: "a"}}
	limited := limitBooks(results, 10)
	if len(limited) != 1 {
		t.Errorf("expected 1 result, got %d", len(limited))
	}
}
