package fusion

import "testing"

func floatPtr(f float64) *float64 { return &f }

func TestFuse_CombinesBothLists(t *testing.T) {
	params := DefaultParams()

	lexical := []Candidate[string]{
		{Key: "a", Item: "a", BM25Raw: floatPtr(-5.0)},
		{Key: "b", Item: "b", BM25Raw: floatPtr(-2.0)},
	}
	semantic := []Candidate[string]{
		{Key: "b", Item: "b", Semantic: floatPtr(0.9)},
		{Key: "c", Item: "c", Semantic: floatPtr(0.8)},
	}

	fused := Fuse(lexical, semantic, params)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused items, got %d", len(fused))
	}

	// "b" appears in both lists, so it should outrank single-list items.
	if fused[0].Key != "b" {
		t.Errorf("expected 'b' (in both lists) to rank first, got %q", fused[0].Key)
	}
}

func TestFuse_WeightedScoreUsesBothSignals(t *testing.T) {
	params := DefaultParams()
	lexical := []Candidate[string]{{Key: "a", Item: "a", BM25Raw: floatPtr(-8.0)}}
	semantic := []Candidate[string]{{Key: "a", Item: "a", Semantic: floatPtr(0.5)}}

	fused := Fuse(lexical, semantic, params)
	if len(fused) != 1 {
		t.Fatalf("expected 1 item, got %d", len(fused))
	}
	// weighted = 0.8*0.5 + 0.3*(8/(8+8)) = 0.4 + 0.15 = 0.55
	want := 0.55
	if diff := fused[0].WeightedScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("WeightedScore = %f, want %f", fused[0].WeightedScore, want)
	}
}

func TestFuse_WeightedScoreSingleEngineUsesRawScore(t *testing.T) {
	params := DefaultParams()

	lexicalOnly := []Candidate[string]{{Key: "a", Item: "a", BM25Raw: floatPtr(-8.0)}}
	fused := Fuse(lexicalOnly, nil, params)
	if len(fused) != 1 {
		t.Fatalf("expected 1 item, got %d", len(fused))
	}
	// lexical-only: fused must equal the raw normalized BM25, not
	// BM25Weight-scaled: 8/(8+8) = 0.5.
	want := 0.5
	if diff := fused[0].WeightedScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("lexical-only WeightedScore = %f, want %f", fused[0].WeightedScore, want)
	}

	semanticOnly := []Candidate[string]{{Key: "b", Item: "b", Semantic: floatPtr(0.42)}}
	fused = Fuse(nil, semanticOnly, params)
	if len(fused) != 1 {
		t.Fatalf("expected 1 item, got %d", len(fused))
	}
	// semantic-only: fused must equal the raw semantic score, not
	// SemanticWeight-scaled.
	want = 0.42
	if diff := fused[0].WeightedScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("semantic-only WeightedScore = %f, want %f", fused[0].WeightedScore, want)
	}
}

func TestFuse_SortsByWeightedScoreDescending(t *testing.T) {
	params := DefaultParams()

	// "low" has the better RRF rank (rank 1 in both lists) but a much
	// worse fused score than "high" (rank 2 in both lists), so a correct
	// sort must put "high" first despite its worse RRF contribution.
	lexical := []Candidate[string]{
		{Key: "low", Item: "low", BM25Raw: floatPtr(-100.0)},
		{Key: "high", Item: "high", BM25Raw: floatPtr(-0.1)},
	}
	semantic := []Candidate[string]{
		{Key: "low", Item: "low", Semantic: floatPtr(0.01)},
		{Key: "high", Item: "high", Semantic: floatPtr(0.99)},
	}

	fused := Fuse(lexical, semantic, params)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused items, got %d", len(fused))
	}
	if fused[0].Key != "high" {
		t.Errorf("expected 'high' (better fused score) to sort first, got %q", fused[0].Key)
	}
}

func TestFuse_RanksRecorded(t *testing.T) {
	params := DefaultParams()
	lexical := []Candidate[string]{{Key: "a", Item: "a", BM25Raw: floatPtr(-1)}}
	semantic := []Candidate[string]{{Key: "a", Item: "a", Semantic: floatPtr(0.9)}}

	fused := Fuse(lexical, semantic, params)
	if fused[0].KeywordRank == nil || *fused[0].KeywordRank != 1 {
		t.Error("expected KeywordRank to be recorded as 1")
	}
	if fused[0].SemanticRank == nil || *fused[0].SemanticRank != 1 {
		t.Error("expected SemanticRank to be recorded as 1")
	}
}

func TestMergeMultiQuery_WeightsDominantExpansion(t *testing.T) {
	primary := WeightedQuery[string]{
		Weight: 1.0,
		Results: []Fused[string]{
			{Key: "x", Item: "x"},
			{Key: "y", Item: "y"},
		},
	}
	expansion := WeightedQuery[string]{
		Weight: 0.3,
		Results: []Fused[string]{
			{Key: "y", Item: "y"},
			{Key: "z", Item: "z"},
		},
	}

	merged := MergeMultiQuery([]WeightedQuery[string]{primary, expansion}, 60)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged items, got %d", len(merged))
	}
	// "y" appears in both the primary and the expansion, so it should
	// outrank "x" which only appears in the primary, even though "x" ranks
	// above "y" there.
	var xScore, yScore float64
	for _, m := range merged {
		switch m.Key {
		case "x":
			xScore = m.RRFScore
		case "y":
			yScore = m.RRFScore
		}
	}
	if yScore <= xScore {
		t.Errorf("expected 'y' (both expansions) to outscore 'x' (primary only): y=%f x=%f", yScore, xScore)
	}
}

func TestDedup_KeepsFirstOccurrence(t *testing.T) {
	items := []Fused[string]{
		{Key: "a", Item: "first"},
		{Key: "a", Item: "second"},
		{Key: "b", Item: "third"},
	}
	deduped := Dedup(items)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 deduped items, got %d", len(deduped))
	}
	if deduped[0].Item != "first" {
		t.Errorf("expected first occurrence kept, got %q", deduped[0].Item)
	}
}

func TestLimit(t *testing.T) {
	items := []Fused[string]{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	if got := Limit(items, 2); len(got) != 2 {
		t.Errorf("Limit(2) returned %d items", len(got))
	}
	if got := Limit(items, 0); len(got) != 3 {
		t.Errorf("Limit(0) should be a no-op, returned %d items", len(got))
	}
}
