// Package htmlx extracts plain-text paragraphs from HTML-formatted page
// content, used by the Translation Merger to align a translated page's
// paragraphs against the original text's paragraph boundaries.
package htmlx

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractParagraphs walks the HTML document tree and returns the text
// content of each <p> element, in document order. If the input has no
// <p> elements at all (e.g. it is plain text with blank-line-separated
// paragraphs), it falls back to splitting on blank lines.
func ExtractParagraphs(content string) []string {
	node, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return splitOnBlankLines(content)
	}

	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			text := strings.TrimSpace(textContent(n))
			if text != "" {
				paragraphs = append(paragraphs, text)
			}
			return // don't descend into nested block content twice
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	if len(paragraphs) == 0 {
		return splitOnBlankLines(content)
	}
	return paragraphs
}

// textContent concatenates all text node descendants of n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// splitOnBlankLines splits plain text into paragraphs on one-or-more
// blank lines, trimming surrounding whitespace from each paragraph.
func splitOnBlankLines(content string) []string {
	raw := strings.Split(content, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NearestParagraphIndex returns the index within paragraphs whose text most
// closely overlaps snippet, scored by shared-word ratio (Jaccard over
// lowercased word sets). Used to locate which source paragraph a ranked
// snippet was drawn from, so its translation can be looked up by position.
func NearestParagraphIndex(snippet string, paragraphs []string) int {
	snippetWords := wordSet(snippet)
	if len(snippetWords) == 0 || len(paragraphs) == 0 {
		return 0
	}

	best, bestScore := 0, -1.0
	for i, p := range paragraphs {
		score := jaccard(snippetWords, wordSet(p))
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// MatchParagraph finds the paragraph in candidates whose index best aligns
// with sourceIndex proportionally - used when the translation has a
// different paragraph count than the source (typical for free-form
// translations), by scaling the source index into the candidate range.
func MatchParagraph(sourceIndex, sourceCount int, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	if sourceCount <= 1 {
		return candidates[0]
	}
	ratio := float64(sourceIndex) / float64(sourceCount-1)
	idx := int(ratio * float64(len(candidates)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(candidates) {
		idx = len(candidates) - 1
	}
	return candidates[idx]
}
