// Package lexical adapts SQLite FTS5 full-text search, scored with the
// bm25() ranking function, across the three content domains: book pages,
// Quran ayahs, and hadiths - plus direct lookups against books and authors
// that never go through FTS5 at all (numeric IDs, exact title matches,
// author name fields).
package lexical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/simpleflo/arabhybrid/internal/observability"
	"github.com/simpleflo/arabhybrid/internal/search/normalize"
)

// ErrUnavailable wraps an error that survived both the FTS5 query and its
// SQL LIKE fallback - the engine itself, not just the query, is down.
var ErrUnavailable = errors.New("lexical engine unavailable")

// Hit is one lexical match with its raw (negative) BM25 score, or a
// synthetic score of the same shape for non-FTS5 signals (numeric ID
// lookups, exact title matches, the LIKE fallback).
type Hit struct {
	BookID     string
	PageNumber int
	BM25       float64
}

// AyahHit is a lexical match against the Quran ayah FTS table.
type AyahHit struct {
	SurahNumber int
	AyahNumber  int
	BM25        float64
}

// HadithHit is a lexical match against the hadith FTS table.
type HadithHit struct {
	CollectionSlug string
	HadithNumber   string
	BM25           float64
}

// AuthorHit is a lexical match against author name fields, found directly
// rather than attached to an already-matched book page.
type AuthorHit struct {
	AuthorID   string
	NameArabic string
	NameLatin  string
	Kunya      string
	Nasab      string
	Nisba      string
	Laqab      string
	BM25       float64
}

// Engine runs FTS5 queries against the book, ayah and hadith tables, plus
// the direct book/author lookups that sit alongside them.
type Engine struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New constructs a lexical Engine over the given database handle. The
// caller owns connection pooling and WAL mode configuration.
func New(db *sql.DB) *Engine {
	return &Engine{db: db, logger: observability.Logger("search.lexical")}
}

var fts5SpecialChars = regexp.MustCompile(`["*^]`)

// BuildFTSQuery turns a normalized query into an FTS5 MATCH expression:
// quoted phrases are preserved as literal phrase matches, remaining terms
// are ANDed with a prefix wildcard on the final term so partial typing
// still matches, and any stray FTS5 operator characters are stripped.
func BuildFTSQuery(normalized string, phrases []string) string {
	var parts []string
	for _, p := range phrases {
		escaped := fts5SpecialChars.ReplaceAllString(p, "")
		parts = append(parts, fmt.Sprintf(`"%s"`, escaped))
	}

	terms := normalize.Tokens(normalized)
	for i, term := range terms {
		term = fts5SpecialChars.ReplaceAllString(term, "")
		if term == "" {
			continue
		}
		if i == len(terms)-1 {
			parts = append(parts, term+"*")
		} else {
			parts = append(parts, term)
		}
	}
	return strings.Join(parts, " ")
}

// likeFallbackBM25 is the synthetic score given to a SQL LIKE fallback hit:
// deliberately weak, so a degraded match never outranks a real bm25 score.
const likeFallbackBM25 = -20.0

// boostToRaw converts a confidence weight into a synthetic bm25-shaped raw
// score in (-1, 0): every non-bm25 signal in this engine (ID lookups, exact
// title matches, author field matches) is expressed on this same scale so
// it composes through fusion's normalizeBM25 the same way a real FTS5 hit
// does, rather than needing its own scoring path.
func boostToRaw(weight float64) float64 {
	if weight <= 0 {
		return 0
	}
	return -(1.0 / (1.0 + weight))
}

// book_pages_fts column weights: book_id and page_number are UNINDEXED and
// take a placeholder weight that bm25() ignores; the title column is boosted
// over body content since a title hit is a stronger relevance signal.
const (
	bm25ContentWeight = 1.0
	bm25TitleWeight   = 3.0
)

// SearchBooks searches book pages by FTS5 match, limited and scoped to the
// supplied book ID when bookID is non-empty. On an FTS5 query error it
// degrades to a SQL LIKE scan over book_pages.content before giving up.
func (e *Engine) SearchBooks(ctx context.Context, ftsQuery string, bookID string, limit int) ([]Hit, error) {
	args := []interface{}{ftsQuery}
	q := fmt.Sprintf(`
		SELECT f.book_id, f.page_number, bm25(book_pages_fts, 1.0, 1.0, %f, %f) AS score
		FROM book_pages_fts f
		WHERE book_pages_fts MATCH ?`, bm25ContentWeight, bm25TitleWeight)
	if bookID != "" {
		q += " AND f.book_id = ?"
		args = append(args, bookID)
	}
	q += " ORDER BY score ASC LIMIT ?"
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		e.logger.Warn().Err(err).Msg("book FTS5 query failed, falling back to LIKE scan")
		return e.searchBooksLike(ctx, ftsQuery, bookID, limit, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.BookID, &h.PageNumber, &h.BM25); err != nil {
			e.logger.Warn().Err(err).Msg("scan book lexical hit")
			continue
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// searchBooksLike is the degraded fallback when the FTS5 virtual table
// itself can't serve a query - a plain substring scan over book_pages.
// rawQuery is the already-built FTS expression stripped back to a bare
// LIKE pattern; it errs on the side of matching too much rather than too
// little, since this path only runs when the primary engine is impaired.
func (e *Engine) searchBooksLike(ctx context.Context, rawQuery, bookID string, limit int, cause error) ([]Hit, error) {
	pattern := "%" + likePatternFromFTS(rawQuery) + "%"
	args := []interface{}{pattern}
	q := `SELECT book_id, page_number FROM book_pages WHERE content LIKE ?`
	if bookID != "" {
		q += " AND book_id = ?"
		args = append(args, bookID)
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: fts5 query failed (%v), like fallback also failed: %v", ErrUnavailable, cause, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.BookID, &h.PageNumber); err != nil {
			continue
		}
		h.BM25 = likeFallbackBM25
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// likePatternFromFTS strips an FTS5 MATCH expression's quoting and prefix
// wildcards back down to a plain substring for the LIKE fallback.
func likePatternFromFTS(ftsQuery string) string {
	s := strings.ReplaceAll(ftsQuery, `"`, "")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "%", "")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}

// SearchAyahs searches Quran ayahs by FTS5 match, degrading to a LIKE scan
// on query error.
func (e *Engine) SearchAyahs(ctx context.Context, ftsQuery string, limit int) ([]AyahHit, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT f.surah_number, f.ayah_number, bm25(ayahs_fts) AS score
		FROM ayahs_fts f
		WHERE ayahs_fts MATCH ?
		ORDER BY score ASC LIMIT ?`, ftsQuery, limit)
	if err != nil {
		e.logger.Warn().Err(err).Msg("ayah FTS5 query failed, falling back to LIKE scan")
		return e.searchAyahsLike(ctx, ftsQuery, limit, err)
	}
	defer rows.Close()

	var hits []AyahHit
	for rows.Next() {
		var h AyahHit
		if err := rows.Scan(&h.SurahNumber, &h.AyahNumber, &h.BM25); err != nil {
			e.logger.Warn().Err(err).Msg("scan ayah lexical hit")
			continue
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (e *Engine) searchAyahsLike(ctx context.Context, ftsQuery string, limit int, cause error) ([]AyahHit, error) {
	pattern := "%" + likePatternFromFTS(ftsQuery) + "%"
	rows, err := e.db.QueryContext(ctx, `SELECT surah_number, ayah_number FROM ayahs WHERE text_arabic LIKE ? LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: fts5 query failed (%v), like fallback also failed: %v", ErrUnavailable, cause, err)
	}
	defer rows.Close()

	var hits []AyahHit
	for rows.Next() {
		var h AyahHit
		if err := rows.Scan(&h.SurahNumber, &h.AyahNumber); err != nil {
			continue
		}
		h.BM25 = likeFallbackBM25
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchHadiths searches hadiths by FTS5 match, degrading to a LIKE scan on
// query error.
func (e *Engine) SearchHadiths(ctx context.Context, ftsQuery string, limit int) ([]HadithHit, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT f.collection_slug, f.hadith_number, bm25(hadiths_fts) AS score
		FROM hadiths_fts f
		WHERE hadiths_fts MATCH ?
		ORDER BY score ASC LIMIT ?`, ftsQuery, limit)
	if err != nil {
		e.logger.Warn().Err(err).Msg("hadith FTS5 query failed, falling back to LIKE scan")
		return e.searchHadithsLike(ctx, ftsQuery, limit, err)
	}
	defer rows.Close()

	var hits []HadithHit
	for rows.Next() {
		var h HadithHit
		if err := rows.Scan(&h.CollectionSlug, &h.HadithNumber, &h.BM25); err != nil {
			e.logger.Warn().Err(err).Msg("scan hadith lexical hit")
			continue
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (e *Engine) searchHadithsLike(ctx context.Context, ftsQuery string, limit int, cause error) ([]HadithHit, error) {
	pattern := "%" + likePatternFromFTS(ftsQuery) + "%"
	rows, err := e.db.QueryContext(ctx, `SELECT collection_slug, hadith_number FROM hadiths WHERE text_arabic LIKE ? LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: fts5 query failed (%v), like fallback also failed: %v", ErrUnavailable, cause, err)
	}
	defer rows.Close()

	var hits []HadithHit
	for rows.Next() {
		var h HadithHit
		if err := rows.Scan(&h.CollectionSlug, &h.HadithNumber); err != nil {
			continue
		}
		h.BM25 = likeFallbackBM25
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// NumericLookup parses a "surah:ayah" style query into its surah and ayah
// numbers; it does not query the database or FTS5.
func (e *Engine) NumericLookup(ctx context.Context, raw string) (surah, ayah int, ok bool) {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	var s, a int
	if _, err := fmt.Sscanf(parts[0], "%d", &s); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &a); err != nil {
		return 0, 0, false
	}
	return s, a, true
}

// Numeric exact/prefix ID-boost weights against books and authors. An exact
// numeric match to a book_id or author_id is almost certainly what the
// searcher meant, so it carries a far stronger boost than a mere prefix.
const (
	IDBoostExact  = 100.0
	IDBoostPrefix = 10.0
)

// SearchBookIDs resolves a purely numeric query directly against book_id
// and author_id, returning one representative (lowest page number) hit per
// matching book. Returns nil, nil if raw is not numeric - this is an
// additional signal layered onto SearchBooks, not a replacement for it.
func (e *Engine) SearchBookIDs(ctx context.Context, raw string) ([]Hit, error) {
	id := strings.TrimSpace(raw)
	if !normalize.IsNumericQuery(id) || id == "" {
		return nil, nil
	}

	hits, err := e.queryBookIDs(ctx, "b.book_id = ? OR b.author_id = ?", id, id, boostToRaw(IDBoostExact))
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		return hits, nil
	}
	return e.queryBookIDs(ctx, "b.book_id LIKE ? OR b.author_id LIKE ?", id+"%", id+"%", boostToRaw(IDBoostPrefix))
}

// TitleExactBoost is the confidence weight given to a book whose title
// contains the raw query as a literal substring, independent of the FTS5
// tokenized/stemmed match that SearchBooks already runs.
const TitleExactBoost = 2.0

// SearchExactTitleMatches resolves a query against book titles literally,
// unaffected by FTS5 tokenization or stemming, returning one representative
// hit per matching book. A book whose title is a verbatim substring match
// is almost always more relevant than its stemmed bm25 rank alone suggests.
func (e *Engine) SearchExactTitleMatches(ctx context.Context, rawQuery string) ([]Hit, error) {
	rawQuery = strings.TrimSpace(rawQuery)
	if rawQuery == "" {
		return nil, nil
	}
	pattern := "%" + rawQuery + "%"
	return e.queryBookIDs(ctx, "b.title_arabic LIKE ? OR b.title_latin LIKE ?", pattern, pattern, boostToRaw(TitleExactBoost))
}

func (e *Engine) queryBookIDs(ctx context.Context, where string, arg1, arg2 interface{}, score float64) ([]Hit, error) {
	q := fmt.Sprintf(`
		SELECT bp.book_id, MIN(bp.page_number)
		FROM books b
		JOIN book_pages bp ON bp.book_id = b.book_id
		WHERE %s
		GROUP BY bp.book_id`, where)
	rows, err := e.db.QueryContext(ctx, q, arg1, arg2)
	if err != nil {
		return nil, fmt.Errorf("book id lookup: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.BookID, &h.PageNumber); err != nil {
			e.logger.Warn().Err(err).Msg("scan book id lookup hit")
			continue
		}
		h.BM25 = score
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Author name field weights: kunya and nisba are the names people most
// often actually search for (Ibn Kathir, al-Shafi'i), so they're boosted
// to 2, below the primary Arabic name's 3; the legal/genealogical nasab is
// searched the least often and keeps the base weight of 1.
const (
	authorWeightNameArabic = 3.0
	authorWeightNameLatin  = 1.0
	authorWeightKunya      = 2.0
	authorWeightNasab      = 1.0
	authorWeightNisba      = 2.0
	authorWeightLaqab      = 2.0
)

// SearchAuthors resolves a query directly against author name fields - name,
// kunya, nasab, nisba, laqab - independent of any book-page match, so an
// author-name query surfaces the author even when none of their pages
// individually rank highly. A purely numeric query is additionally checked
// against author_id with the same exact/prefix ID boost SearchBookIDs uses.
func (e *Engine) SearchAuthors(ctx context.Context, normalizedQuery string, limit int) ([]AuthorHit, error) {
	normalizedQuery = strings.TrimSpace(normalizedQuery)
	if normalizedQuery == "" {
		return nil, nil
	}

	if normalize.IsNumericQuery(normalizedQuery) {
		hits, err := e.searchAuthorsByID(ctx, normalizedQuery)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}

	pattern := "%" + normalizedQuery + "%"
	rows, err := e.db.QueryContext(ctx, `
		SELECT author_id, name_arabic, name_latin, kunya, nasab, nisba, laqab
		FROM authors
		WHERE name_arabic LIKE ?1 OR name_latin LIKE ?1 OR kunya LIKE ?1
		   OR nasab LIKE ?1 OR nisba LIKE ?1 OR laqab LIKE ?1
		LIMIT ?2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("author search: %w", err)
	}
	defer rows.Close()

	var hits []AuthorHit
	for rows.Next() {
		var h AuthorHit
		var nameLatin, kunya, nasab, nisba, laqab sql.NullString
		if err := rows.Scan(&h.AuthorID, &h.NameArabic, &nameLatin, &kunya, &nasab, &nisba, &laqab); err != nil {
			e.logger.Warn().Err(err).Msg("scan author hit")
			continue
		}
		h.NameLatin, h.Kunya, h.Nasab, h.Nisba, h.Laqab = nameLatin.String, kunya.String, nasab.String, nisba.String, laqab.String
		h.BM25 = boostToRaw(authorFieldWeight(h, normalizedQuery))
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (e *Engine) searchAuthorsByID(ctx context.Context, id string) ([]AuthorHit, error) {
	hits, err := e.queryAuthorsByID(ctx, "author_id = ?", id, boostToRaw(IDBoostExact))
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		return hits, nil
	}
	return e.queryAuthorsByID(ctx, "author_id LIKE ?", id+"%", boostToRaw(IDBoostPrefix))
}

func (e *Engine) queryAuthorsByID(ctx context.Context, where string, arg interface{}, score float64) ([]AuthorHit, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT author_id, name_arabic, name_latin, kunya, nasab, nisba, laqab
		FROM authors WHERE %s`, where), arg)
	if err != nil {
		return nil, fmt.Errorf("author id lookup: %w", err)
	}
	defer rows.Close()

	var hits []AuthorHit
	for rows.Next() {
		var h AuthorHit
		var nameLatin, kunya, nasab, nisba, laqab sql.NullString
		if err := rows.Scan(&h.AuthorID, &h.NameArabic, &nameLatin, &kunya, &nasab, &nisba, &laqab); err != nil {
			continue
		}
		h.NameLatin, h.Kunya, h.Nasab, h.Nisba, h.Laqab = nameLatin.String, kunya.String, nasab.String, nisba.String, laqab.String
		h.BM25 = score
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// authorFieldWeight sums the boost for every field of h that contains
// query as a case-sensitive substring - normalization already folds case
// and diacritics upstream, so this stays a plain substring test.
func authorFieldWeight(h AuthorHit, query string) float64 {
	var weight float64
	if strings.Contains(h.NameArabic, query) {
		weight += authorWeightNameArabic
	}
	if strings.Contains(h.NameLatin, query) {
		weight += authorWeightNameLatin
	}
	if strings.Contains(h.Kunya, query) {
		weight += authorWeightKunya
	}
	if strings.Contains(h.Nasab, query) {
		weight += authorWeightNasab
	}
	if strings.Contains(h.Nisba, query) {
		weight += authorWeightNisba
	}
	if strings.Contains(h.Laqab, query) {
		weight += authorWeightLaqab
	}
	if weight == 0 {
		weight = 1 // matched the SQL LIKE but none of the Go-side substring checks - still a real match
	}
	return weight
}

// CountBookPages returns the number of pages indexed for bookID in the
// FTS5 table, compared against the metadata store's page count by the
// indexed-book-set computer.
func (e *Engine) CountBookPages(ctx context.Context, bookID string) (int, error) {
	var count int
	err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM book_pages_fts WHERE book_id = ?`, bookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count indexed book pages: %w", err)
	}
	return count, nil
}
