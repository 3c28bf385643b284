package htmlx

import "testing"

func TestExtractParagraphs_FromHTML(t *testing.T) {
	html := `<div><p>First paragraph.</p><p>Second paragraph.</p></div>`
	got := ExtractParagraphs(html)
	if len(got) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d: %v", len(got), got)
	}
	if got[0] != "First paragraph." || got[1] != "Second paragraph." {
		t.Errorf("unexpected paragraphs: %v", got)
	}
}

func TestExtractParagraphs_FallsBackToBlankLines(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph.\n\nThird."
	got := ExtractParagraphs(text)
	if len(got) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d: %v", len(got), got)
	}
}

func TestMatchParagraph_ScalesIndex(t *testing.T) {
	candidates := []string{"a", "b", "c", "d"}
	if got := MatchParagraph(0, 2, candidates); got != "a" {
		t.Errorf("MatchParagraph(0,2) = %q, want a", got)
	}
	if got := MatchParagraph(1, 2, candidates); got != "d" {
		t.Errorf("MatchParagraph(1,2) = %q, want d", got)
	}
}

func TestMatchParagraph_EmptyCandidates(t *testing.T) {
	if got := MatchParagraph(0, 1, nil); got != "" {
		t.Errorf("expected empty string for no candidates, got %q", got)
	}
}

func TestNearestParagraphIndex_PicksBestOverlap(t *testing.T) {
	paragraphs := []string{
		"the mercy of God is vast",
		"fasting during Ramadan is obligatory",
		"prayer five times a day",
	}
	got := NearestParagraphIndex("fasting is obligatory during the month of Ramadan", paragraphs)
	if got != 1 {
		t.Errorf("NearestParagraphIndex = %d, want 1", got)
	}
}

func TestNearestParagraphIndex_EmptyInputs(t *testing.T) {
	if got := NearestParagraphIndex("", []string{"a"}); got != 0 {
		t.Errorf("expected 0 for empty snippet, got %d", got)
	}
	if got := NearestParagraphIndex("a", nil); got != 0 {
		t.Errorf("expected 0 for no paragraphs, got %d", got)
	}
}
