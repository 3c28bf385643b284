package expand

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestExpander_Expand_IncludesOriginalAndParaphrases(t *testing.T) {
	gen := &fakeGenerator{response: `[
		{"query": "الرحمة والمغفرة", "weight": 0.9, "reason": "synonym for mercy"},
		{"query": "آيات الرحمن", "weight": 0.7, "reason": "related divine attribute"}
	]`}
	e := New(gen, "small-model", time.Minute)

	result := e.Expand(context.Background(), "رحمة الله")
	if len(result) != 3 {
		t.Fatalf("expected 3 weighted queries, got %d", len(result))
	}
	if result[0].Query != "رحمة الله" || result[0].Weight != PrimaryWeight {
		t.Errorf("expected primary query first with weight %f, got %+v", PrimaryWeight, result[0])
	}
	if result[1].Weight != 0.9 || result[1].Reason != "synonym for mercy" {
		t.Errorf("expected first expansion weight 0.9 with its reason, got %+v", result[1])
	}
	if result[2].Weight != 0.7 {
		t.Errorf("expected second expansion weight 0.7, got %+v", result[2])
	}
	if result[1].Weight <= result[2].Weight {
		t.Errorf("expected descending confidence weights, got %f then %f", result[1].Weight, result[2].Weight)
	}
}

func TestExpander_Expand_MissingWeightFallsBackToDefault(t *testing.T) {
	gen := &fakeGenerator{response: `[{"query": "paraphrase one"}]`}
	e := New(gen, "small-model", time.Minute)

	result := e.Expand(context.Background(), "query")
	if len(result) != 2 {
		t.Fatalf("expected 2 weighted queries, got %d", len(result))
	}
	if result[1].Weight != ExpansionWeight {
		t.Errorf("expected fallback expansion weight %f, got %f", ExpansionWeight, result[1].Weight)
	}
}

func TestExpander_Expand_CachesResult(t *testing.T) {
	gen := &fakeGenerator{response: `[{"query": "paraphrase one", "weight": 0.5}]`}
	e := New(gen, "small-model", time.Minute)

	e.Expand(context.Background(), "query")
	e.Expand(context.Background(), "query")

	if gen.calls != 1 {
		t.Errorf("expected generator called once due to caching, called %d times", gen.calls)
	}
}

func TestExpander_Expand_DegradesOnGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	e := New(gen, "small-model", time.Minute)

	result := e.Expand(context.Background(), "query")
	if len(result) != 1 {
		t.Fatalf("expected fallback to original query only, got %d", len(result))
	}
}

func TestExpander_Expand_DegradesOnUnparsableResponse(t *testing.T) {
	gen := &fakeGenerator{response: "not json at all"}
	e := New(gen, "small-model", time.Minute)

	result := e.Expand(context.Background(), "query")
	if len(result) != 1 {
		t.Fatalf("expected fallback to original query only, got %d", len(result))
	}
}

func TestParseExpansions_TruncatesToMax(t *testing.T) {
	got, err := parseExpansions(`[
		{"query": "a", "weight": 0.9}, {"query": "b", "weight": 0.8},
		{"query": "c", "weight": 0.7}, {"query": "d", "weight": 0.6},
		{"query": "e", "weight": 0.5}, {"query": "f", "weight": 0.4}
	]`)
	if err != nil {
		t.Fatalf("parseExpansions: %v", err)
	}
	if len(got) != MaxExpansions {
		t.Errorf("expected %d expansions, got %d", MaxExpansions, len(got))
	}
}

func TestParseExpansions_ClampsOutOfRangeWeight(t *testing.T) {
	got, err := parseExpansions(`[{"query": "a", "weight": 5}]`)
	if err != nil {
		t.Fatalf("parseExpansions: %v", err)
	}
	if len(got) != 1 || got[0].Weight != 1 {
		t.Errorf("expected weight clamped to 1, got %+v", got)
	}
}
