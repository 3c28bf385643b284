// Package translate joins translation text onto fused search results:
// batched ayah and hadith translation lookups, and a paragraph-alignment
// heuristic for book pages whose translations are stored as free-form
// HTML rather than keyed to the source's exact paragraph boundaries.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/simpleflo/arabhybrid/internal/search/coalesce"
	"github.com/simpleflo/arabhybrid/internal/search/htmlx"
)

// AyahKey identifies a Quran ayah as "surah:ayah".
type AyahKey struct {
	Surah int
	Ayah  int
}

func (k AyahKey) String() string { return fmt.Sprintf("%d:%d", k.Surah, k.Ayah) }

// HadithKey identifies a hadith within a collection.
type HadithKey struct {
	CollectionSlug string
	HadithNumber   string
}

func (k HadithKey) String() string { return k.CollectionSlug + "#" + k.HadithNumber }

// Repository fetches translation text from the relational metadata store.
type Repository interface {
	FetchAyahTranslations(ctx context.Context, edition string, keys []AyahKey) (map[AyahKey]string, error)
	FetchHadithTranslations(ctx context.Context, language string, keys []HadithKey) (map[HadithKey]string, error)
	FetchBookPageTranslationHTML(ctx context.Context, bookID, language string, pageNumber int) (string, bool, error)
	FetchBookPageParagraphs(ctx context.Context, bookID string, pageNumber int) ([]string, error)
}

// Merger joins translation text onto ranked results, coalescing concurrent
// requests for the same (edition, key-set) batch so two simultaneous
// searches for the same content never issue duplicate translation queries.
type Merger struct {
	repo      Repository
	coalescer *coalesce.Group
}

// New constructs a Merger over the given Repository.
func New(repo Repository) *Merger {
	return &Merger{repo: repo, coalescer: coalesce.New()}
}

// MergeAyahTranslations fetches and attaches translations for the given
// edition onto every key, in one coalesced batch call.
func (m *Merger) MergeAyahTranslations(ctx context.Context, edition string, keys []AyahKey) (map[AyahKey]string, error) {
	if len(keys) == 0 || edition == "" {
		return nil, nil
	}
	key := "ayah:" + edition + ":" + hashKeys(ayahKeyStrings(keys))
	v, err := m.coalescer.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		return m.repo.FetchAyahTranslations(ctx, edition, keys)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ayah translations: %w", err)
	}
	return v.(map[AyahKey]string), nil
}

// MergeHadithTranslations fetches and attaches translations for the given
// language onto every key, in one coalesced batch call.
func (m *Merger) MergeHadithTranslations(ctx context.Context, language string, keys []HadithKey) (map[HadithKey]string, error) {
	if len(keys) == 0 || language == "" {
		return nil, nil
	}
	key := "hadith:" + language + ":" + hashKeys(hadithKeyStrings(keys))
	v, err := m.coalescer.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		return m.repo.FetchHadithTranslations(ctx, language, keys)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch hadith translations: %w", err)
	}
	return v.(map[HadithKey]string), nil
}

// MergeBookPageTranslation resolves the best-matching translated paragraph
// for a book page's matched snippet, when the page's translation is stored
// as whole-page HTML rather than per-paragraph. snippet is the ranked
// result's matched text; it is located among the source page's paragraphs
// by nearest word overlap, and that position is scaled onto the
// translation's own paragraph boundaries.
func (m *Merger) MergeBookPageTranslation(ctx context.Context, bookID, language string, pageNumber int, snippet string) (string, error) {
	if language == "" {
		return "", nil
	}

	html, found, err := m.repo.FetchBookPageTranslationHTML(ctx, bookID, language, pageNumber)
	if err != nil {
		return "", fmt.Errorf("fetch book page translation: %w", err)
	}
	if !found {
		return "", nil
	}

	sourceParagraphs, err := m.repo.FetchBookPageParagraphs(ctx, bookID, pageNumber)
	if err != nil || len(sourceParagraphs) == 0 {
		sourceParagraphs = []string{snippet}
	}
	sourceIndex := htmlx.NearestParagraphIndex(snippet, sourceParagraphs)

	candidates := htmlx.ExtractParagraphs(html)
	return htmlx.MatchParagraph(sourceIndex, len(sourceParagraphs), candidates), nil
}

func ayahKeyStrings(keys []AyahKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func hadithKeyStrings(keys []HadithKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// hashKeys derives a stable batch-identity hash independent of key order,
// so two callers requesting the same set in different orders coalesce.
func hashKeys(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(h[:12])
}
