// Package httpapi exposes the search orchestrator over HTTP: request
// decoding and validation, response shaping, and the chi router wiring
// that binds both to the daemon.
package httpapi

import (
	"github.com/simpleflo/arabhybrid/internal/search/normalize"
	"github.com/simpleflo/arabhybrid/internal/search/types"
	"github.com/simpleflo/arabhybrid/pkg/apierr"
)

// SearchRequest is the wire shape of a search call's JSON body.
type SearchRequest struct {
	Query   string `json:"query"`
	Mode    string `json:"mode,omitempty"`    // "hybrid" (default), "semantic", "keyword"
	Limit   int    `json:"limit,omitempty"`   // overall result cap, default 10
	BookID  string `json:"bookId,omitempty"`  // restricts book search to one book
	Reranker string `json:"reranker,omitempty"` // "none" (default), "small", "large", "fast"

	Domains *RequestDomains `json:"domains,omitempty"` // nil enables all three

	SimilarityCutoff float64 `json:"similarityCutoff,omitempty"`

	QuranEdition   string `json:"quranEdition,omitempty"`
	HadithLanguage string `json:"hadithLanguage,omitempty"`
	BookLanguage   string `json:"bookLanguage,omitempty"`

	Refine        bool `json:"refine,omitempty"`
	PerQueryLimit int  `json:"perQueryLimit,omitempty"`
	MaxExpansions int  `json:"maxExpansions,omitempty"`
}

// RequestDomains toggles which content domains a search covers.
type RequestDomains struct {
	Books  *bool `json:"books,omitempty"`
	Quran  *bool `json:"quran,omitempty"`
	Hadith *bool `json:"hadith,omitempty"`
}

const (
	maxLimit         = 50
	defaultLimit     = 10
	defaultMaxExpand = 4
)

var validModes = map[string]types.Mode{
	"":        types.ModeHybrid,
	"hybrid":  types.ModeHybrid,
	"semantic": types.ModeSemantic,
	"keyword": types.ModeKeyword,
}

var validRerankers = map[string]types.RerankChoice{
	"":       types.RerankNone,
	"none":   types.RerankNone,
	"small":  types.RerankSmall,
	"large":  types.RerankLarge,
	"fast":   types.RerankFast,
}

// Validate checks the request for caller errors (missing query, unknown
// mode, out-of-range limit) before it enters the pipeline.
func (req *SearchRequest) Validate() error {
	if req.Query == "" {
		return apierr.New(apierr.CodeValidation, "query must not be empty")
	}
	if _, ok := validModes[req.Mode]; !ok {
		return apierr.New(apierr.CodeValidation, "unknown mode").WithDetails("mode", req.Mode)
	}
	if _, ok := validRerankers[req.Reranker]; !ok {
		return apierr.New(apierr.CodeValidation, "unknown reranker choice").WithDetails("reranker", req.Reranker)
	}
	if req.Limit < 0 || req.Limit > maxLimit {
		return apierr.New(apierr.CodeValidation, "limit out of range").WithDetails("limit", req.Limit)
	}
	if req.SimilarityCutoff < 0 || req.SimilarityCutoff > 1 {
		return apierr.New(apierr.CodeValidation, "similarityCutoff out of range").WithDetails("similarityCutoff", req.SimilarityCutoff)
	}
	return nil
}

// buildQuery normalizes req.Query and classifies its script, mirroring
// normalize.Script into the orchestrator's own types.Script (the two are
// kept as distinct named types so the normalize package stays free of any
// dependency on internal/search/types).
func buildQuery(raw string) types.Query {
	normalized := normalize.Normalize(raw)
	return types.Query{
		Raw:             raw,
		Normalized:      normalized,
		Script:          types.Script(normalize.DetectScript(normalized)),
		HasQuotedPhrase: normalize.HasQuotedPhrase(raw),
		Tokens:          normalize.Tokens(normalized),
		Phrases:         normalize.QuotedPhrases(raw),
	}
}

// defaultEmbeddingModel is filled in by the caller wiring the handler
// (internal/config's configured embedding model), so requests never need
// to name a model explicitly to pick the collection set to search.
func (req *SearchRequest) toParams(defaultEmbeddingModel string) types.SearchParams {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	domains := types.DomainFlags{Books: true, Quran: true, Hadith: true}
	if req.Domains != nil {
		if req.Domains.Books != nil {
			domains.Books = *req.Domains.Books
		}
		if req.Domains.Quran != nil {
			domains.Quran = *req.Domains.Quran
		}
		if req.Domains.Hadith != nil {
			domains.Hadith = *req.Domains.Hadith
		}
	}

	maxExpansions := req.MaxExpansions
	if maxExpansions <= 0 || maxExpansions > defaultMaxExpand {
		maxExpansions = defaultMaxExpand
	}

	return types.SearchParams{
		Query:            buildQuery(req.Query),
		Mode:             validModes[req.Mode],
		Domains:          domains,
		Limits:           types.Limits{Overall: limit, Books: limit, Quran: limit, Hadith: limit},
		SimilarityCutoff: req.SimilarityCutoff,
		Reranker:         validRerankers[req.Reranker],
		Refine: types.RefineParams{
			Enabled:       req.Refine,
			PerQueryLimit: req.PerQueryLimit,
			MaxExpansions: maxExpansions,
		},
		Translations: types.TranslationSelectors{
			QuranEdition:   req.QuranEdition,
			HadithLanguage: req.HadithLanguage,
			BookLanguage:   req.BookLanguage,
		},
		EmbeddingModel: defaultEmbeddingModel,
		BookIDFilter:   req.BookID,
	}
}
