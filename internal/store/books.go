package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simpleflo/arabhybrid/internal/search/htmlx"
	"github.com/simpleflo/arabhybrid/internal/search/types"
)

// HydrateBooks fills in title, snippet, and author metadata for a set of
// fused book-page results, identified by (book_id, page_number).
func (s *Store) HydrateBooks(ctx context.Context, results []types.RankedResult) ([]types.RankedResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	for i, r := range results {
		row := s.db.QueryRowContext(ctx, `
			SELECT b.title_arabic, b.title_latin, p.content,
				a.author_id, a.name_arabic, a.name_latin, a.kunya, a.nasab, a.nisba, a.laqab
			FROM book_pages p
			JOIN books b ON b.book_id = p.book_id
			LEFT JOIN authors a ON a.author_id = b.author_id
			WHERE p.book_id = ? AND p.page_number = ?
		`, r.BookID, r.PageNumber)

		var (
			titleLatin, content                             sql.NullString
			authorID, nameAr, nameLat, kunya, nasab, nisba, laqab sql.NullString
		)
		err := row.Scan(&results[i].TitleArabic, &titleLatin, &content,
			&authorID, &nameAr, &nameLat, &kunya, &nasab, &nisba, &laqab)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return results, fmt.Errorf("hydrate book page %s#%d: %w", r.BookID, r.PageNumber, err)
		}

		results[i].TitleLatin = titleLatin.String
		results[i].TextSnippet = snippet(content.String)
		if authorID.Valid {
			results[i].Author = &types.Author{
				AuthorID:   authorID.String,
				NameArabic: nameAr.String,
				NameLatin:  nameLat.String,
				Kunya:      kunya.String,
				Nasab:      nasab.String,
				Nisba:      nisba.String,
				Laqab:      laqab.String,
			}
		}
	}
	return results, nil
}

// snippetMaxChars bounds the hydrated snippet length shown alongside a
// ranked result; full page content is available on demand, not inline.
const snippetMaxChars = 400

func snippet(content string) string {
	r := []rune(content)
	if len(r) <= snippetMaxChars {
		return content
	}
	return string(r[:snippetMaxChars]) + "..."
}

// FetchBookPageTranslationHTML returns the stored whole-page translation
// HTML for (bookID, language, pageNumber), or found=false if none exists.
func (s *Store) FetchBookPageTranslationHTML(ctx context.Context, bookID, language string, pageNumber int) (string, bool, error) {
	var html string
	err := s.db.QueryRowContext(ctx, `
		SELECT html FROM book_page_translations
		WHERE book_id = ? AND language = ? AND page_number = ?
	`, bookID, language, pageNumber).Scan(&html)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetch book page translation: %w", err)
	}
	return html, true, nil
}

// FetchBookPageParagraphs returns the source page's paragraph texts, used
// to locate which paragraph a ranked snippet was drawn from before looking
// up its translation.
func (s *Store) FetchBookPageParagraphs(ctx context.Context, bookID string, pageNumber int) ([]string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM book_pages WHERE book_id = ? AND page_number = ?
	`, bookID, pageNumber).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch book page paragraphs: %w", err)
	}
	return htmlx.ExtractParagraphs(content), nil
}

// ListBookIDs returns every known book ID, used by the indexed-book-set
// computer to walk the full catalog.
func (s *Store) ListBookIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT book_id FROM books`)
	if err != nil {
		return nil, fmt.Errorf("list book ids: %w", err)
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

// CountBookPages returns the number of pages stored for bookID in the
// metadata store, the baseline the lexical and vector indexes are compared
// against when computing the indexed-book-set.
func (s *Store) CountBookPages(ctx context.Context, bookID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM book_pages WHERE book_id = ?`, bookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count book pages: %w", err)
	}
	return count, nil
}
