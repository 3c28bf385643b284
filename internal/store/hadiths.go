package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simpleflo/arabhybrid/internal/search/translate"
	"github.com/simpleflo/arabhybrid/internal/search/types"
)

// HydrateHadiths fills in text, chapter, and source book id for a set of
// fused hadith results, identified by (collection_slug, hadith_number).
func (s *Store) HydrateHadiths(ctx context.Context, results []types.HadithRankedResult) ([]types.HadithRankedResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	for i, r := range results {
		var text string
		var bookID, chapter sql.NullString
		err := s.db.QueryRowContext(ctx, `
			SELECT text_arabic, book_id, chapter FROM hadiths
			WHERE collection_slug = ? AND hadith_number = ?
		`, r.CollectionSlug, r.HadithNumber).Scan(&text, &bookID, &chapter)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return results, fmt.Errorf("hydrate hadith %s#%s: %w", r.CollectionSlug, r.HadithNumber, err)
		}
		results[i].TextArabic = text
		results[i].BookID = bookID.String
		results[i].Chapter = chapter.String
	}
	return results, nil
}

// FetchHadithTranslations batches a translation lookup for the given
// language across every requested (collection, number) key.
func (s *Store) FetchHadithTranslations(ctx context.Context, language string, keys []translate.HadithKey) (map[translate.HadithKey]string, error) {
	out := make(map[translate.HadithKey]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := `SELECT collection_slug, hadith_number, translation FROM hadith_translations WHERE language = ? AND (`
	args := []interface{}{language}
	for i, k := range keys {
		if i > 0 {
			query += " OR "
		}
		query += "(collection_slug = ? AND hadith_number = ?)"
		args = append(args, k.CollectionSlug, k.HadithNumber)
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch hadith translations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slug, number, translation string
		if err := rows.Scan(&slug, &number, &translation); err != nil {
			return nil, fmt.Errorf("scan hadith translation: %w", err)
		}
		out[translate.HadithKey{CollectionSlug: slug, HadithNumber: number}] = translation
	}
	return out, rows.Err()
}

// ListHadithSourceBookIDs returns the allow-list of books whose content is
// indexed per-hadith rather than per-page - always eligible for
// content-level search regardless of the indexed-book-set computation.
func (s *Store) ListHadithSourceBookIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT book_id FROM hadith_source_books`)
	if err != nil {
		return nil, fmt.Errorf("list hadith source books: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
