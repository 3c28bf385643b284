// Package types defines the shared data model for the search orchestrator:
// queries, search parameters, and the per-domain ranked result shapes that
// Fusion produces and every downstream stage (Reranker, Translation Merger,
// response assembly) consumes.
package types

// Script identifies the dominant script of a query.
type Script string

const (
	ScriptArabic  Script = "arabic"
	ScriptLatin   Script = "latin"
	ScriptNumeric Script = "numeric"
)

// Query is the normalized, immutable representation of a user's search text.
type Query struct {
	Raw             string
	Normalized      string
	Script          Script
	HasQuotedPhrase bool
	Tokens          []string
	Phrases         []string
}

// Mode selects which engines contribute to a search.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// RerankChoice selects the reranking model tier, or disables reranking.
type RerankChoice string

const (
	RerankNone  RerankChoice = "none"
	RerankSmall RerankChoice = "small"
	RerankLarge RerankChoice = "large"
	RerankFast  RerankChoice = "fast"
)

// DomainFlags toggles which content domains participate in a search.
type DomainFlags struct {
	Books   bool
	Quran   bool
	Hadith  bool
}

// Limits bounds result counts across the pipeline.
type Limits struct {
	Overall int
	Books   int
	Quran   int
	Hadith  int
	Book    int // per-book page cap, when BookID filter is set
}

// TranslationSelectors picks translation editions/languages per domain.
type TranslationSelectors struct {
	QuranEdition   string
	HadithLanguage string
	BookLanguage   string // empty disables book-page translation lookup
}

// RefineParams configures the refine (query-expansion) pipeline.
type RefineParams struct {
	Enabled      bool
	PerQueryLimit int // 30-60 per domain
	MaxExpansions int // cap, default 4
}

// SearchParams is the validated input to a single orchestrator request.
type SearchParams struct {
	Query            Query
	Mode             Mode
	Domains          DomainFlags
	Limits           Limits
	SimilarityCutoff float64
	Reranker         RerankChoice
	Refine           RefineParams
	Translations     TranslationSelectors
	EmbeddingModel   string
	BookIDFilter     string // non-empty disables IndexedBookSet filtering
}

// MatchType records which engine(s) produced a book result.
type MatchType string

const (
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
	MatchBoth     MatchType = "both"
)

// Scored carries the fusion bookkeeping shared by every domain's ranked
// result, composed into each domain type rather than inherited.
type Scored struct {
	SemanticScore *float64 // nil if the semantic engine did not find it
	BM25Raw       *float64 // nil if the lexical engine did not find it
	KeywordScore  *float64 // normalized BM25, present iff BM25Raw is
	SemanticRank  *int     // 1-based, nil if absent from that ranker
	KeywordRank   *int     // 1-based, nil if absent from that ranker
	FusedScore    float64
	RRFScore      float64
}

// Author is matching author metadata surfaced alongside book results.
type Author struct {
	AuthorID    string
	NameArabic  string
	NameLatin   string
	Kunya       string
	Nasab       string
	Nisba       string
	Laqab       string
}

// AuthorRankedResult is a fused author-record search result, found by
// matching the query directly against author name fields rather than being
// attached to an already-matched book page.
type AuthorRankedResult struct {
	Scored
	Author Author
}

// Key returns the dedup/fusion key for an author result: the author ID.
func (r *AuthorRankedResult) Key() string {
	return r.Author.AuthorID
}

// RankedResult is a fused book-page search result.
type RankedResult struct {
	Scored
	BookID             string
	PageNumber         int
	TitleArabic        string
	TitleLatin         string
	Author             *Author
	TextSnippet        string
	HighlightedSnippet string
	MatchType          MatchType
	ContentTranslation string
}

// Key returns the dedup/fusion key for a book result: (book-id, page-number).
func (r *RankedResult) Key() string {
	return r.BookID + "#" + itoa(r.PageNumber)
}

// AyahRankedResult is a fused Quran-verse search result.
type AyahRankedResult struct {
	Scored
	SurahNumber  int
	AyahNumber   int
	AyahEnd      int // equals AyahNumber unless the hit spans a verse range
	TextArabic   string
	Translation  string
	RelatedAyahs []string // graph-derived cross-references, "surah:ayah" keys
}

// Key returns the dedup/fusion key for an ayah result: (surah, ayah).
func (r *AyahRankedResult) Key() string {
	return itoa(r.SurahNumber) + ":" + itoa(r.AyahNumber)
}

// HadithRankedResult is a fused hadith search result.
type HadithRankedResult struct {
	Scored
	CollectionSlug string
	HadithNumber   string
	BookID         string
	TextArabic     string
	Chapter        string
	Translation    string
}

// Key returns the dedup/fusion key for a hadith result: (collection, number).
func (r *HadithRankedResult) Key() string {
	return r.CollectionSlug + "#" + r.HadithNumber
}

// DebugStats surfaces per-request pipeline diagnostics, returned alongside
// results but never required for correctness.
type DebugStats struct {
	DurationMs     int64
	Degraded       bool
	ExpansionCount int
}

// itoa avoids pulling in strconv at call sites that only need base-10 ints.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
