package rerank

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	order []int
	err   error
	delay time.Duration
}

func (f *fakeProvider) Rerank(ctx context.Context, model, query string, candidates []Candidate) ([]int, error) {
	return f.RerankPrompt(ctx, model, query, len(candidates))
}

func (f *fakeProvider) RerankPrompt(ctx context.Context, model, prompt string, n int) ([]int, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func TestReranker_ChoiceNone_ReturnsIdentity(t *testing.T) {
	r := New(&fakeProvider{}, ModelSet{Small: "s"}, time.Second)
	got := r.Rerank(context.Background(), ChoiceNone, "query", []string{"a", "b", "c"})
	want := []int{0, 1, 2}
	assertIntSlice(t, got, want)
}

func TestReranker_SuccessfulRerank(t *testing.T) {
	r := New(&fakeProvider{order: []int{2, 0, 1}}, ModelSet{Small: "s"}, time.Second)
	got := r.Rerank(context.Background(), ChoiceSmall, "query", []string{"a", "b", "c"})
	assertIntSlice(t, got, []int{2, 0, 1})
}

func TestReranker_FallsBackOnError(t *testing.T) {
	r := New(&fakeProvider{err: errors.New("boom")}, ModelSet{Small: "s"}, time.Second)
	got := r.Rerank(context.Background(), ChoiceSmall, "query", []string{"a", "b", "c"})
	assertIntSlice(t, got, []int{0, 1, 2})
}

func TestReranker_FallsBackOnTimeout(t *testing.T) {
	r := New(&fakeProvider{order: []int{1, 0}, delay: 50 * time.Millisecond}, ModelSet{Small: "s"}, 5*time.Millisecond)
	got := r.Rerank(context.Background(), ChoiceSmall, "query", []string{"a", "b"})
	assertIntSlice(t, got, []int{0, 1})
}

func TestReranker_EmptyModelFallsBackToIdentity(t *testing.T) {
	r := New(&fakeProvider{order: []int{1, 0}}, ModelSet{}, time.Second)
	got := r.Rerank(context.Background(), ChoiceLarge, "query", []string{"a", "b"})
	assertIntSlice(t, got, []int{0, 1})
}

func TestUnifiedRerank_SkipsBelowThreeItems(t *testing.T) {
	r := New(&fakeProvider{order: []int{1, 0}}, ModelSet{Small: "s"}, time.Second)
	items := []UnifiedItem{{Domain: "book", Text: "a"}, {Domain: "ayah", Text: "b"}}
	got := r.UnifiedRerank(context.Background(), ChoiceSmall, "query", items)
	assertIntSlice(t, got, []int{0, 1})
}

func TestUnifiedRerank_SuccessfulRerank(t *testing.T) {
	r := New(&fakeProvider{order: []int{2, 0, 1}}, ModelSet{Small: "s"}, time.Second)
	items := []UnifiedItem{
		{Domain: "book", Text: "a"},
		{Domain: "ayah", Text: "b"},
		{Domain: "hadith", Text: "c"},
	}
	got := r.UnifiedRerank(context.Background(), ChoiceSmall, "query", items)
	assertIntSlice(t, got, []int{2, 0, 1})
}

func TestUnifiedRerank_FallsBackOnError(t *testing.T) {
	r := New(&fakeProvider{err: errors.New("boom")}, ModelSet{Small: "s"}, time.Second)
	items := []UnifiedItem{
		{Domain: "book", Text: "a"},
		{Domain: "ayah", Text: "b"},
		{Domain: "hadith", Text: "c"},
	}
	got := r.UnifiedRerank(context.Background(), ChoiceSmall, "query", items)
	assertIntSlice(t, got, []int{0, 1, 2})
}

func TestParseIndexArray(t *testing.T) {
	idx, err := parseIndexArray("here you go: [2, 0, 1] thanks", 3)
	if err != nil {
		t.Fatalf("parseIndexArray: %v", err)
	}
	assertIntSlice(t, idx, []int{2, 0, 1})
}

func TestParseIndexArray_RejectsWrongLength(t *testing.T) {
	if _, err := parseIndexArray("[0, 1]", 3); err == nil {
		t.Error("expected error for wrong-length index array")
	}
}

func TestParseIndexArray_RejectsInvalidPermutation(t *testing.T) {
	if _, err := parseIndexArray("[0, 0, 1]", 3); err == nil {
		t.Error("expected error for duplicate index")
	}
	if _, err := parseIndexArray("[0, 1, 5]", 3); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestBuildPrompt_TruncatesLongCandidates(t *testing.T) {
	longText := make([]byte, 2000)
	for i := range longText {
		longText[i] = 'a'
	}
	prompt := buildPrompt("query", []Candidate{{Index: 0, Text: string(longText)}})
	if len(prompt) > 2000 {
		t.Errorf("expected prompt to truncate candidate text, got length %d", len(prompt))
	}
}

func assertIntSlice(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
