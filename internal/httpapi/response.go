package httpapi

import (
	"github.com/simpleflo/arabhybrid/internal/search/expand"
	"github.com/simpleflo/arabhybrid/internal/search/orchestrator"
	"github.com/simpleflo/arabhybrid/internal/search/types"
)

// SearchResponse is the wire shape of a search call's JSON response.
type SearchResponse struct {
	Query   string `json:"query"`
	Mode    string `json:"mode"`
	Count   int    `json:"count"`

	Results []BookResult  `json:"results"`
	Authors []AuthorResult `json:"authors,omitempty"`
	Ayahs   []AyahResult   `json:"ayahs"`
	Hadiths []HadithResult `json:"hadiths"`

	GraphContext *GraphContextResult `json:"graphContext,omitempty"`

	Refined         bool            `json:"refined,omitempty"`
	ExpandedQueries []ExpandedQuery `json:"expandedQueries,omitempty"`

	DebugStats *DebugStats `json:"debugStats,omitempty"`
}

// AuthorResult is one matching author record.
type AuthorResult struct {
	AuthorID   string `json:"authorId"`
	NameArabic string `json:"nameArabic"`
	NameLatin  string `json:"nameLatin,omitempty"`
	Kunya      string `json:"kunya,omitempty"`
	Nasab      string `json:"nasab,omitempty"`
	Nisba      string `json:"nisba,omitempty"`
	Laqab      string `json:"laqab,omitempty"`
}

// BookResult is one fused book-page result.
type BookResult struct {
	BookID             string        `json:"bookId"`
	PageNumber         int           `json:"pageNumber"`
	TitleArabic        string        `json:"titleArabic,omitempty"`
	TitleLatin         string        `json:"titleLatin,omitempty"`
	Author             *AuthorResult `json:"author,omitempty"`
	TextSnippet        string        `json:"textSnippet"`
	HighlightedSnippet string        `json:"highlightedSnippet,omitempty"`
	SemanticScore      *float64      `json:"semanticScore,omitempty"`
	KeywordScore       *float64      `json:"keywordScore,omitempty"`
	FusedScore         float64       `json:"fusedScore"`
	MatchType          string        `json:"matchType"`
	ContentTranslation string        `json:"contentTranslation,omitempty"`
}

// AyahResult is one fused Quran-verse result.
type AyahResult struct {
	SurahNumber  int      `json:"surahNumber"`
	AyahNumber   int      `json:"ayahNumber"`
	Text         string   `json:"text"`
	Translation  string   `json:"translation,omitempty"`
	Score        float64  `json:"score"`
	RelatedAyahs []string `json:"relatedAyahs,omitempty"`
}

// HadithResult is one fused hadith result.
type HadithResult struct {
	CollectionSlug string  `json:"collectionSlug"`
	HadithNumber   string  `json:"hadithNumber"`
	BookID         string  `json:"bookId,omitempty"`
	Text           string  `json:"text"`
	Chapter        string  `json:"chapter,omitempty"`
	Translation    string  `json:"translation,omitempty"`
	Score          float64 `json:"score"`
}

// ExpandedQuery is one query the refine pipeline fused results from - the
// original query or one of the expander's paraphrases - with the merge
// weight and rationale behind it.
type ExpandedQuery struct {
	Query  string  `json:"query"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason,omitempty"`
}

// GraphContextResult summarizes the graph boosts applied across every ayah
// in the response, surfaced once rather than repeated per ayah.
type GraphContextResult struct {
	AyahsWithContext int `json:"ayahsWithContext"`
}

// DebugStats mirrors types.DebugStats, omitted entirely in production.
type DebugStats struct {
	DurationMs     int64 `json:"durationMs"`
	Degraded       bool  `json:"degraded"`
	ExpansionCount int   `json:"expansionCount,omitempty"`
}

// buildResponse shapes an orchestrator.Response into the wire format,
// collecting the distinct authors mentioned across book results and
// omitting debugStats outside non-production environments.
func buildResponse(req *SearchRequest, mode types.Mode, resp *orchestrator.Response, expansions []expand.WeightedQuery, isProduction bool) *SearchResponse {
	out := &SearchResponse{
		Query:   req.Query,
		Mode:    string(mode),
		Results: make([]BookResult, len(resp.Books)),
		Ayahs:   make([]AyahResult, len(resp.Ayahs)),
		Hadiths: make([]HadithResult, len(resp.Hadiths)),
	}

	seenAuthors := make(map[string]bool)
	var graphHits int

	for _, a := range resp.Authors {
		if seenAuthors[a.Author.AuthorID] {
			continue
		}
		seenAuthors[a.Author.AuthorID] = true
		out.Authors = append(out.Authors, AuthorResult{
			AuthorID:   a.Author.AuthorID,
			NameArabic: a.Author.NameArabic,
			NameLatin:  a.Author.NameLatin,
			Kunya:      a.Author.Kunya,
			Nasab:      a.Author.Nasab,
			Nisba:      a.Author.Nisba,
			Laqab:      a.Author.Laqab,
		})
	}

	for i, b := range resp.Books {
		var author *AuthorResult
		if b.Author != nil {
			author = &AuthorResult{
				AuthorID:   b.Author.AuthorID,
				NameArabic: b.Author.NameArabic,
				NameLatin:  b.Author.NameLatin,
				Kunya:      b.Author.Kunya,
				Nasab:      b.Author.Nasab,
				Nisba:      b.Author.Nisba,
				Laqab:      b.Author.Laqab,
			}
			if !seenAuthors[author.AuthorID] {
				seenAuthors[author.AuthorID] = true
				out.Authors = append(out.Authors, *author)
			}
		}
		out.Results[i] = BookResult{
			BookID:             b.BookID,
			PageNumber:         b.PageNumber,
			TitleArabic:        b.TitleArabic,
			TitleLatin:         b.TitleLatin,
			Author:             author,
			TextSnippet:        b.TextSnippet,
			HighlightedSnippet: b.HighlightedSnippet,
			SemanticScore:      b.Scored.SemanticScore,
			KeywordScore:       b.Scored.KeywordScore,
			FusedScore:         b.FusedScore,
			MatchType:          string(b.MatchType),
			ContentTranslation: b.ContentTranslation,
		}
	}

	for i, a := range resp.Ayahs {
		out.Ayahs[i] = AyahResult{
			SurahNumber:  a.SurahNumber,
			AyahNumber:   a.AyahNumber,
			Text:         a.TextArabic,
			Translation:  a.Translation,
			Score:        a.FusedScore,
			RelatedAyahs: a.RelatedAyahs,
		}
		if len(a.RelatedAyahs) > 0 {
			graphHits++
		}
	}
	if graphHits > 0 {
		out.GraphContext = &GraphContextResult{AyahsWithContext: graphHits}
	}

	for i, h := range resp.Hadiths {
		out.Hadiths[i] = HadithResult{
			CollectionSlug: h.CollectionSlug,
			HadithNumber:   h.HadithNumber,
			BookID:         h.BookID,
			Text:           h.TextArabic,
			Chapter:        h.Chapter,
			Translation:    h.Translation,
			Score:          h.FusedScore,
		}
	}

	out.Count = len(out.Results)

	if len(expansions) > 0 {
		out.Refined = true
		out.ExpandedQueries = make([]ExpandedQuery, len(expansions))
		for i, e := range expansions {
			out.ExpandedQueries[i] = ExpandedQuery{Query: e.Query, Weight: e.Weight, Reason: e.Reason}
		}
	}

	if resp.DebugStats != nil && !isProduction {
		out.DebugStats = &DebugStats{
			DurationMs:     resp.DebugStats.DurationMs,
			Degraded:       resp.DebugStats.Degraded,
			ExpansionCount: resp.DebugStats.ExpansionCount,
		}
	}

	return out
}
