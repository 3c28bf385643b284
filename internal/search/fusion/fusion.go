// Package fusion combines ranked lexical and semantic result lists into one
// ranked list, ordered by a weighted-score fusion with Reciprocal Rank
// Fusion as the tie-breaker, then deduplicates multi-query expansions with
// a weighted-RRF merge.
package fusion

import (
	"sort"

	"github.com/samber/lo"
)

// Candidate is the minimal shape fusion needs from a per-domain result:
// a stable dedup key plus the two engines' raw signals.
type Candidate[T any] struct {
	Key       string
	Item      T
	BM25Raw   *float64 // nil if the lexical engine did not return this item
	Semantic  *float64 // nil if the semantic engine did not return this item
}

// Fused is one item after fusion, carrying both the weighted score (the
// primary sort key) and the RRF score (the tie-breaker between items whose
// weighted scores are within fusedTieBreakEpsilon).
type Fused[T any] struct {
	Key           string
	Item          T
	RRFScore      float64
	WeightedScore float64
	SemanticRank  *int
	KeywordRank   *int

	bm25Raw  *float64
	semantic *float64
}

// Params configures the RRF and weighted-score fusion constants.
type Params struct {
	RRFConstant     int     // k in RRF(d) = sum 1/(k+rank)
	SemanticWeight  float64 // weighted-fusion semantic weight, default 0.8
	BM25Weight      float64 // weighted-fusion normalized-BM25 weight, default 0.3
	BM25NormK       float64 // BM25 normalization constant K', default 8
}

// DefaultParams returns the production fusion constants: RRF k=60,
// weighted fusion 0.8*semantic + 0.3*normalized_bm25, BM25 normalization
// K'=8.
func DefaultParams() Params {
	return Params{RRFConstant: 60, SemanticWeight: 0.8, BM25Weight: 0.3, BM25NormK: 8}
}

// normalizeBM25 maps a raw (negative, unbounded) bm25() score into (0, 1]
// via K'/(K'+|score|), so it can be combined additively with a cosine
// similarity in [0, 1].
func normalizeBM25(raw float64, k float64) float64 {
	abs := raw
	if abs < 0 {
		abs = -abs
	}
	return k / (k + abs)
}

// Fuse runs RRF across the lexical and semantic candidate lists (ranked by
// the caller, best-first) and computes each survivor's weighted score.
// lexical and semantic are both ranked lists over the same key space;
// candidates present in only one list score on that list's contribution
// alone: each survivor's RRF score sums 1/(k+rank) over every list that
// contains it.
func Fuse[T any](lexical, semantic []Candidate[T], params Params) []Fused[T] {
	byKey := make(map[string]*Fused[T])
	order := make([]string, 0, len(lexical)+len(semantic))

	ensure := func(c Candidate[T]) *Fused[T] {
		f, ok := byKey[c.Key]
		if !ok {
			f = &Fused[T]{Key: c.Key, Item: c.Item}
			byKey[c.Key] = f
			order = append(order, c.Key)
		}
		return f
	}

	for rank, c := range lexical {
		f := ensure(c)
		r := rank + 1
		f.KeywordRank = &r
		f.RRFScore += 1.0 / float64(params.RRFConstant+r)
		f.bm25Raw = c.BM25Raw
	}
	for rank, c := range semantic {
		f := ensure(c)
		r := rank + 1
		f.SemanticRank = &r
		f.RRFScore += 1.0 / float64(params.RRFConstant+r)
		f.semantic = c.Semantic
	}

	for _, key := range order {
		f := byKey[key]
		switch {
		case f.bm25Raw != nil && f.semantic != nil:
			f.WeightedScore = params.SemanticWeight*(*f.semantic) + params.BM25Weight*normalizeBM25(*f.bm25Raw, params.BM25NormK)
		case f.semantic != nil:
			f.WeightedScore = *f.semantic
		case f.bm25Raw != nil:
			f.WeightedScore = normalizeBM25(*f.bm25Raw, params.BM25NormK)
		}
	}

	out := make([]Fused[T], 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sortByFused(out)
	return out
}

// fusedTieBreakEpsilon is the "close enough to call a tie" band on
// WeightedScore: ties within it fall back to RRFScore descending.
const fusedTieBreakEpsilon = 0.001

// sortByFused orders items by WeightedScore descending, breaking ties
// (a WeightedScore difference under fusedTieBreakEpsilon) by RRFScore
// descending.
func sortByFused[T any](items []Fused[T]) {
	sort.Slice(items, func(i, j int) bool {
		diff := items[i].WeightedScore - items[j].WeightedScore
		if diff > fusedTieBreakEpsilon {
			return true
		}
		if diff < -fusedTieBreakEpsilon {
			return false
		}
		return items[i].RRFScore > items[j].RRFScore
	})
}

// WeightedQuery is one query in a multi-query expansion, paired with the
// confidence weight it contributes to the fused RRF score.
type WeightedQuery[T any] struct {
	Weight  float64
	Results []Fused[T] // already fused single-query results, best-first
}

// MergeMultiQuery deduplicates results across several weighted query
// expansions via weighted RRF: a key's merged score is the sum, over every
// expansion that surfaced it, of weight * 1/(k+rank). Ties are broken by
// keeping whichever candidate's Item was seen first (the keepBest policy:
// first-seen wins since expansions are already ordered by descending
// confidence).
func MergeMultiQuery[T any](queries []WeightedQuery[T], rrfConstant int) []Fused[T] {
	byKey := make(map[string]*Fused[T])
	order := make([]string, 0)

	for _, q := range queries {
		for rank, r := range q.Results {
			f, ok := byKey[r.Key]
			if !ok {
				copyItem := r
				f = &copyItem
				f.RRFScore = 0
				byKey[r.Key] = f
				order = append(order, r.Key)
			}
			f.RRFScore += q.Weight * (1.0 / float64(rrfConstant+rank+1))
		}
	}

	out := make([]Fused[T], 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RRFScore > out[j].RRFScore
	})
	return out
}

// Dedup removes duplicate keys from a fused list, keeping the first
// (highest-ranked) occurrence of each key.
func Dedup[T any](items []Fused[T]) []Fused[T] {
	return lo.UniqBy(items, func(f Fused[T]) string { return f.Key })
}

// Limit truncates a fused list to at most n items.
func Limit[T any](items []Fused[T], n int) []Fused[T] {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[:n]
}
