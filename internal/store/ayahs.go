package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simpleflo/arabhybrid/internal/search/translate"
	"github.com/simpleflo/arabhybrid/internal/search/types"
)

// HydrateAyahs fills in the Arabic text for a set of fused ayah results,
// identified by (surah_number, ayah_number).
func (s *Store) HydrateAyahs(ctx context.Context, results []types.AyahRankedResult) ([]types.AyahRankedResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	for i, r := range results {
		var text string
		err := s.db.QueryRowContext(ctx, `
			SELECT text_arabic FROM ayahs WHERE surah_number = ? AND ayah_number = ?
		`, r.SurahNumber, r.AyahNumber).Scan(&text)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return results, fmt.Errorf("hydrate ayah %d:%d: %w", r.SurahNumber, r.AyahNumber, err)
		}
		results[i].TextArabic = text
	}
	return results, nil
}

// FetchAyahTranslations batches a translation lookup for the given edition
// across every requested (surah, ayah) key.
func (s *Store) FetchAyahTranslations(ctx context.Context, edition string, keys []translate.AyahKey) (map[translate.AyahKey]string, error) {
	out := make(map[translate.AyahKey]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := `SELECT surah_number, ayah_number, translation FROM ayah_translations WHERE edition = ? AND (`
	args := []interface{}{edition}
	for i, k := range keys {
		if i > 0 {
			query += " OR "
		}
		query += "(surah_number = ? AND ayah_number = ?)"
		args = append(args, k.Surah, k.Ayah)
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch ayah translations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var surah, ayah int
		var translation string
		if err := rows.Scan(&surah, &ayah, &translation); err != nil {
			return nil, fmt.Errorf("scan ayah translation: %w", err)
		}
		out[translate.AyahKey{Surah: surah, Ayah: ayah}] = translation
	}
	return out, rows.Err()
}
