// Package normalize folds raw query text into the canonical form every
// search engine (lexical, semantic, graph) keys off of: diacritics
// stripped, letter variants folded, whitespace collapsed.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// arabicDiacritics matches the Arabic combining marks (tashkeel/tanwin,
// shadda, sukun, maddah) that NFKD decomposition exposes as separate runes.
var arabicDiacritics = regexp.MustCompile(`[\x{0610}-\x{061A}\x{064B}-\x{065F}\x{0670}\x{06D6}-\x{06DC}\x{06DF}-\x{06E8}\x{06EA}-\x{06ED}]`)

var quotedPhrase = regexp.MustCompile(`"([^"]+)"`)

var whitespace = regexp.MustCompile(`\s+`)

// Normalize folds Arabic text to a canonical form: NFKD decomposition to
// split base letters from diacritics, diacritic removal, alef/yeh/teh-marbuta
// folding, tatweel removal, and whitespace collapse. It is idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = norm.NFKD.String(s)
	s = arabicDiacritics.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case 'ـ': // tatweel (kashida)
			continue
		case 'آ', 'أ', 'إ', 'ٱ': // alef variants -> bare alef
			b.WriteRune('ا')
		case 'ى': // alef maksura -> yeh
			b.WriteRune('ي')
		case 'ة': // teh marbuta -> heh
			b.WriteRune('ه')
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	s = strings.ToLower(s)
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	return s
}

// Script classifies which dominant writing system a normalized query uses.
type Script string

const (
	ScriptArabic  Script = "arabic"
	ScriptLatin   Script = "latin"
	ScriptNumeric Script = "numeric"
)

// DetectScript scans every rune and classifies the query's script: any
// Arabic rune makes it Arabic, otherwise any other letter makes it Latin,
// otherwise any digit makes it numeric. A query with no letters or digits
// defaults to Latin.
func DetectScript(s string) Script {
	hasArabic, hasLatin, hasDigit := false, false, false
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Arabic, r):
			hasArabic = true
		case unicode.IsLetter(r):
			hasLatin = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	switch {
	case hasArabic:
		return ScriptArabic
	case hasLatin:
		return ScriptLatin
	case hasDigit:
		return ScriptNumeric
	default:
		return ScriptLatin
	}
}

// HasQuotedPhrase reports whether the raw query contains a "quoted phrase"
// that should be treated as an exact-match hint by the lexical engine.
func HasQuotedPhrase(raw string) bool {
	return quotedPhrase.MatchString(raw)
}

// QuotedPhrases extracts the contents of every "quoted phrase" in the raw
// query, in order of appearance.
func QuotedPhrases(raw string) []string {
	matches := quotedPhrase.FindAllStringSubmatch(raw, -1)
	phrases := make([]string, 0, len(matches))
	for _, m := range matches {
		phrases = append(phrases, Normalize(m[1]))
	}
	return phrases
}

// Tokens splits normalized text on whitespace into non-empty tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// IsNumericQuery reports whether the query is composed entirely of digits
// and separator punctuation, e.g. a surah:ayah or hadith-number lookup.
func IsNumericQuery(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if unicode.IsDigit(r) || r == ':' || r == '-' || r == '.' || r == ' ' {
			continue
		}
		return false
	}
	return true
}

// SkipSemantic reports whether a query is too short or too numeric for the
// semantic engine to contribute useful signal, per the dynamic-threshold
// rule: single-token queries under 3 runes, or purely numeric queries,
// skip the embedding call entirely.
func SkipSemantic(normalized string) bool {
	if IsNumericQuery(normalized) {
		return true
	}
	tokens := Tokens(normalized)
	if len(tokens) == 1 && len([]rune(tokens[0])) < 3 {
		return true
	}
	return false
}

// SimilarityCutoff returns the minimum cosine similarity a semantic hit must
// clear to be considered a match. Short queries raise the bar rather than
// lower it, since a handful of characters gives the embedding far less to
// anchor on and noisy near-misses become more common: a single-word query's
// effective length is capped at 6 characters (a longer single word is still
// judged as if it were 6 characters long), and that effective length is
// looked up against a fixed threshold table, never going below base.
func SimilarityCutoff(base float64, normalized string) float64 {
	tokens := Tokens(normalized)
	chars := len([]rune(normalized))

	effectiveChars := chars
	if len(tokens) == 1 && chars > 6 {
		effectiveChars = 6
	}

	var threshold float64
	switch {
	case effectiveChars <= 3:
		threshold = 0.55
	case effectiveChars <= 6:
		threshold = 0.40
	case effectiveChars <= 12:
		threshold = 0.30
	default:
		threshold = base
	}

	if base > threshold {
		return base
	}
	return threshold
}
