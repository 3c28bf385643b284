package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simpleflo/arabhybrid/internal/search/translate"
	"github.com/simpleflo/arabhybrid/internal/search/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") {
			t.Skip("FTS5 not available, skipping test")
		}
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestNew(t *testing.T) {
	store := testStore(t)
	defer store.Close()

	if store.DB() == nil {
		t.Error("expected non-nil DB")
	}
}

func TestStore_Health(t *testing.T) {
	store := testStore(t)
	defer store.Close()

	if err := store.Health(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

func seedBook(t *testing.T, s *Store, bookID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO authors (author_id, name_arabic, name_latin) VALUES (?, ?, ?)`,
		"author1", "ابن كثير", "Ibn Kathir"); err != nil {
		t.Fatalf("seed author: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO books (book_id, title_arabic, title_latin, author_id) VALUES (?, ?, ?, ?)`,
		bookID, "تفسير القرآن", "Tafsir al-Quran", "author1"); err != nil {
		t.Fatalf("seed book: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO book_pages (book_id, page_number, content) VALUES (?, ?, ?)`,
		bookID, 1, "بسم الله الرحمن الرحيم"); err != nil {
		t.Fatalf("seed book page: %v", err)
	}
}

func TestHydrateBooks_JoinsTitleAndAuthor(t *testing.T) {
	store := testStore(t)
	defer store.Close()
	seedBook(t, store, "book1")

	results := []types.RankedResult{{BookID: "book1", PageNumber: 1}}
	hydrated, err := store.HydrateBooks(context.Background(), results)
	if err != nil {
		t.Fatalf("HydrateBooks: %v", err)
	}
	if hydrated[0].TitleArabic != "تفسير القرآن" {
		t.Errorf("TitleArabic = %q", hydrated[0].TitleArabic)
	}
	if hydrated[0].Author == nil || hydrated[0].Author.NameLatin != "Ibn Kathir" {
		t.Errorf("Author = %+v", hydrated[0].Author)
	}
}

func TestHydrateBooks_MissingPageLeavesZeroValue(t *testing.T) {
	store := testStore(t)
	defer store.Close()

	results := []types.RankedResult{{BookID: "ghost", PageNumber: 99}}
	hydrated, err := store.HydrateBooks(context.Background(), results)
	if err != nil {
		t.Fatalf("HydrateBooks: %v", err)
	}
	if hydrated[0].TitleArabic != "" {
		t.Errorf("expected empty title for missing page, got %q", hydrated[0].TitleArabic)
	}
}

func TestFetchBookPageTranslationHTML_NotFound(t *testing.T) {
	store := testStore(t)
	defer store.Close()

	_, found, err := store.FetchBookPageTranslationHTML(context.Background(), "book1", "en", 1)
	if err != nil {
		t.Fatalf("FetchBookPageTranslationHTML: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestFetchBookPageTranslationHTML_Found(t *testing.T) {
	store := testStore(t)
	defer store.Close()
	seedBook(t, store, "book1")

	ctx := context.Background()
	if _, err := store.db.ExecContext(ctx, `INSERT INTO book_page_translations (book_id, page_number, language, html) VALUES (?, ?, ?, ?)`,
		"book1", 1, "en", "<p>In the name of God</p>"); err != nil {
		t.Fatalf("seed translation: %v", err)
	}

	html, found, err := store.FetchBookPageTranslationHTML(ctx, "book1", "en", 1)
	if err != nil || !found {
		t.Fatalf("FetchBookPageTranslationHTML: html=%q found=%v err=%v", html, found, err)
	}
	if !strings.Contains(html, "name of God") {
		t.Errorf("html = %q", html)
	}
}

func TestHydrateAyahs(t *testing.T) {
	store := testStore(t)
	defer store.Close()

	ctx := context.Background()
	if _, err := store.db.ExecContext(ctx, `INSERT INTO ayahs (surah_number, ayah_number, text_arabic) VALUES (?, ?, ?)`,
		2, 255, "الله لا إله إلا هو الحي القيوم"); err != nil {
		t.Fatalf("seed ayah: %v", err)
	}

	results := []types.AyahRankedResult{{SurahNumber: 2, AyahNumber: 255}}
	hydrated, err := store.HydrateAyahs(ctx, results)
	if err != nil {
		t.Fatalf("HydrateAyahs: %v", err)
	}
	if hydrated[0].TextArabic == "" {
		t.Error("expected non-empty TextArabic")
	}
}

func TestFetchAyahTranslations_BatchLookup(t *testing.T) {
	store := testStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, row := range [][2]int{{2, 255}, {1, 1}} {
		if _, err := store.db.ExecContext(ctx, `INSERT INTO ayah_translations (surah_number, ayah_number, edition, translation) VALUES (?, ?, ?, ?)`,
			row[0], row[1], "en-sahih", "translated text"); err != nil {
			t.Fatalf("seed ayah translation: %v", err)
		}
	}

	keys := []translate.AyahKey{{Surah: 2, Ayah: 255}, {Surah: 1, Ayah: 1}, {Surah: 9, Ayah: 9}}
	translations, err := store.FetchAyahTranslations(ctx, "en-sahih", keys)
	if err != nil {
		t.Fatalf("FetchAyahTranslations: %v", err)
	}
	if len(translations) != 2 {
		t.Errorf("expected 2 translations, got %d", len(translations))
	}
	if _, ok := translations[translate.AyahKey{Surah: 9, Ayah: 9}]; ok {
		t.Error("unexpected translation for unseeded key")
	}
}

func TestHydrateHadiths(t *testing.T) {
	store := testStore(t)
	defer store.Close()

	ctx := context.Background()
	if _, err := store.db.ExecContext(ctx, `INSERT INTO hadiths (collection_slug, hadith_number, book_id, text_arabic, chapter) VALUES (?, ?, ?, ?, ?)`,
		"bukhari", "1", "sahih-bukhari", "إنما الأعمال بالنيات", "Revelation"); err != nil {
		t.Fatalf("seed hadith: %v", err)
	}

	results := []types.HadithRankedResult{{CollectionSlug: "bukhari", HadithNumber: "1"}}
	hydrated, err := store.HydrateHadiths(ctx, results)
	if err != nil {
		t.Fatalf("HydrateHadiths: %v", err)
	}
	if hydrated[0].Chapter != "Revelation" {
		t.Errorf("Chapter = %q", hydrated[0].Chapter)
	}
}

func TestListHadithSourceBookIDs(t *testing.T) {
	store := testStore(t)
	defer store.Close()

	ctx := context.Background()
	if _, err := store.db.ExecContext(ctx, `INSERT INTO hadith_source_books (book_id) VALUES (?)`, "sahih-bukhari"); err != nil {
		t.Fatalf("seed hadith source book: %v", err)
	}

	ids, err := store.ListHadithSourceBookIDs(ctx)
	if err != nil {
		t.Fatalf("ListHadithSourceBookIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "sahih-bukhari" {
		t.Errorf("ids = %v", ids)
	}
}

func TestCountBookPages(t *testing.T) {
	store := testStore(t)
	defer store.Close()
	seedBook(t, store, "book1")

	count, err := store.CountBookPages(context.Background(), "book1")
	if err != nil {
		t.Fatalf("CountBookPages: %v", err)
	}
	if count != 1 {
		t.Errorf("CountBookPages = %d, want 1", count)
	}
}
