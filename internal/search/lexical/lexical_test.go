package lexical

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestBuildFTSQuery(t *testing.T) {
	q := BuildFTSQuery("الرحمن الرحيم", nil)
	if !strings.HasSuffix(q, "*") {
		t.Errorf("expected final term to carry prefix wildcard, got %q", q)
	}

	withPhrase := BuildFTSQuery("tafsir", []string{"الصراط المستقيم"})
	if !strings.Contains(withPhrase, `"الصراط المستقيم"`) {
		t.Errorf("expected quoted phrase preserved, got %q", withPhrase)
	}
}

func TestEngine_SearchBooks(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	hits, err := e.SearchBooks(context.Background(), "path*", "", 10)
	if err != nil {
		t.Fatalf("SearchBooks: %v", err)
	}
	if len(hits) != 1 || hits[0].BookID != "b1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestEngine_SearchBooks_TitleOutranksContent(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	// b1's title contains "desert" too, so with title weighted over content
	// it should rank ahead of b2, whose only hit is in body content.
	hits, err := e.SearchBooks(context.Background(), "desert", "", 10)
	if err != nil {
		t.Fatalf("SearchBooks: %v", err)
	}
	if len(hits) < 2 {
		t.Fatalf("expected at least 2 hits, got %+v", hits)
	}
	if hits[0].BookID != "b1" {
		t.Errorf("expected title match b1 to rank first, got %+v", hits)
	}
}

func TestEngine_SearchBooks_LikeFallbackOnEngineError(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	// Dropping the virtual table forces the FTS5 query to error, exercising
	// the LIKE degraded path instead of returning ErrUnavailable.
	if _, err := db.Exec(`DROP TABLE book_pages_fts`); err != nil {
		t.Fatalf("drop fts table: %v", err)
	}

	hits, err := e.SearchBooks(context.Background(), "pathway", "", 10)
	if err != nil {
		t.Fatalf("SearchBooks: %v", err)
	}
	if len(hits) != 1 || hits[0].BookID != "b1" {
		t.Fatalf("unexpected fallback hits: %+v", hits)
	}
	if hits[0].BM25 != likeFallbackBM25 {
		t.Errorf("expected fallback hit to carry likeFallbackBM25, got %v", hits[0].BM25)
	}
}

func TestEngine_SearchBooks_UnavailableWhenFallbackAlsoFails(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	if _, err := db.Exec(`DROP TABLE book_pages_fts`); err != nil {
		t.Fatalf("drop fts table: %v", err)
	}
	if _, err := db.Exec(`DROP TABLE book_pages`); err != nil {
		t.Fatalf("drop book_pages table: %v", err)
	}

	if _, err := e.SearchBooks(context.Background(), "pathway", "", 10); err == nil {
		t.Fatal("expected an error once both fts5 and the like fallback fail")
	} else if !strings.Contains(err.Error(), "unavailable") {
		t.Errorf("expected ErrUnavailable wrapped in result, got: %v", err)
	}
}

func TestEngine_NumericLookup(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	surah, ayah, ok := e.NumericLookup(context.Background(), "2:255")
	if !ok || surah != 2 || ayah != 255 {
		t.Fatalf("NumericLookup(2:255) = %d, %d, %v", surah, ayah, ok)
	}

	if _, _, ok := e.NumericLookup(context.Background(), "not numeric"); ok {
		t.Error("expected non-numeric query to fail lookup")
	}
}

func TestEngine_SearchBookIDs(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	hits, err := e.SearchBookIDs(context.Background(), "42")
	if err != nil {
		t.Fatalf("SearchBookIDs: %v", err)
	}
	if len(hits) != 1 || hits[0].BookID != "42" {
		t.Fatalf("expected exact book_id match, got %+v", hits)
	}
	if hits[0].BM25 != boostToRaw(IDBoostExact) {
		t.Errorf("expected exact-id boost score, got %v", hits[0].BM25)
	}

	prefixHits, err := e.SearchBookIDs(context.Background(), "4")
	if err != nil {
		t.Fatalf("SearchBookIDs prefix: %v", err)
	}
	if len(prefixHits) != 1 || prefixHits[0].BM25 != boostToRaw(IDBoostPrefix) {
		t.Fatalf("expected prefix-id boost score, got %+v", prefixHits)
	}

	if hits, err := e.SearchBookIDs(context.Background(), "not a number"); err != nil || hits != nil {
		t.Errorf("expected nil, nil for non-numeric query, got %+v, %v", hits, err)
	}
}

func TestEngine_SearchExactTitleMatches(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	hits, err := e.SearchExactTitleMatches(context.Background(), "Desert Path")
	if err != nil {
		t.Fatalf("SearchExactTitleMatches: %v", err)
	}
	if len(hits) != 1 || hits[0].BookID != "b1" {
		t.Fatalf("expected exact title match on b1, got %+v", hits)
	}
	if hits[0].BM25 != boostToRaw(TitleExactBoost) {
		t.Errorf("expected title-exact boost score, got %v", hits[0].BM25)
	}
}

func TestEngine_SearchAuthors_FieldWeighting(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	hits, err := e.SearchAuthors(context.Background(), "Kathir", 10)
	if err != nil {
		t.Fatalf("SearchAuthors: %v", err)
	}
	if len(hits) != 1 || hits[0].AuthorID != "a1" {
		t.Fatalf("expected author a1 matched by kunya, got %+v", hits)
	}
	// "Kathir" only matches the kunya field for a1, so the boost should be
	// exactly authorWeightKunya, nothing more.
	if want := boostToRaw(authorWeightKunya); hits[0].BM25 != want {
		t.Errorf("BM25 = %v, want %v", hits[0].BM25, want)
	}
}

func TestEngine_SearchAuthors_NumericID(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	hits, err := e.SearchAuthors(context.Background(), "7", 10)
	if err != nil {
		t.Fatalf("SearchAuthors: %v", err)
	}
	if len(hits) != 1 || hits[0].AuthorID != "7" {
		t.Fatalf("expected author 7 matched by numeric id, got %+v", hits)
	}
	if hits[0].BM25 != boostToRaw(IDBoostExact) {
		t.Errorf("expected exact-id boost score, got %v", hits[0].BM25)
	}
}

func TestEngine_SearchAuthors_EmptyQuery(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	hits, err := e.SearchAuthors(context.Background(), "   ", 10)
	if err != nil || hits != nil {
		t.Errorf("expected nil, nil for blank query, got %+v, %v", hits, err)
	}
}

func TestEngine_SearchAyahs_LikeFallbackOnEngineError(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	if _, err := db.Exec(`DROP TABLE ayahs_fts`); err != nil {
		t.Fatalf("drop ayahs_fts: %v", err)
	}

	hits, err := e.SearchAyahs(context.Background(), "mercy", 10)
	if err != nil {
		t.Fatalf("SearchAyahs: %v", err)
	}
	if len(hits) != 1 || hits[0].SurahNumber != 1 || hits[0].AyahNumber != 1 {
		t.Fatalf("unexpected fallback hits: %+v", hits)
	}
	if hits[0].BM25 != likeFallbackBM25 {
		t.Errorf("expected fallback hit to carry likeFallbackBM25, got %v", hits[0].BM25)
	}
}

func TestEngine_SearchHadiths_LikeFallbackOnEngineError(t *testing.T) {
	db := testFTSDB(t)
	defer db.Close()
	e := New(db)

	if _, err := db.Exec(`DROP TABLE hadiths_fts`); err != nil {
		t.Fatalf("drop hadiths_fts: %v", err)
	}

	hits, err := e.SearchHadiths(context.Background(), "intentions", 10)
	if err != nil {
		t.Fatalf("SearchHadiths: %v", err)
	}
	if len(hits) != 1 || hits[0].CollectionSlug != "bukhari" {
		t.Fatalf("unexpected fallback hits: %+v", hits)
	}
	if hits[0].BM25 != likeFallbackBM25 {
		t.Errorf("expected fallback hit to carry likeFallbackBM25, got %v", hits[0].BM25)
	}
}

// testFTSDB builds an in-memory schema mirroring the production tables this
// engine queries: book_pages_fts plus the books/book_pages/authors tables
// the ID-boost, title-boost, and author lookups run against, and the ayah
// and hadith FTS tables and their backing plain tables for fallback tests.
// Skips the test outright if the sqlite3 driver was built without FTS5.
func testFTSDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	_, err = db.Exec(`CREATE VIRTUAL TABLE book_pages_fts USING fts5(book_id UNINDEXED, page_number UNINDEXED, content, title)`)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") {
			t.Skip("FTS5 not available, skipping test")
		}
		t.Fatalf("create book_pages_fts: %v", err)
	}

	stmts := []string{
		`CREATE TABLE books (book_id TEXT PRIMARY KEY, author_id TEXT, title_arabic TEXT, title_latin TEXT)`,
		`CREATE TABLE book_pages (book_id TEXT, page_number INTEGER, content TEXT)`,
		`CREATE TABLE authors (author_id TEXT PRIMARY KEY, name_arabic TEXT, name_latin TEXT, kunya TEXT, nasab TEXT, nisba TEXT, laqab TEXT)`,
		`CREATE VIRTUAL TABLE ayahs_fts USING fts5(surah_number UNINDEXED, ayah_number UNINDEXED, text_arabic)`,
		`CREATE TABLE ayahs (surah_number INTEGER, ayah_number INTEGER, text_arabic TEXT)`,
		`CREATE VIRTUAL TABLE hadiths_fts USING fts5(collection_slug UNINDEXED, hadith_number UNINDEXED, text_arabic)`,
		`CREATE TABLE hadiths (collection_slug TEXT, hadith_number TEXT, text_arabic TEXT)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	seed := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO book_pages_fts (book_id, page_number, content, title) VALUES ('b1', 1, 'pathway through the desert', 'Desert Path')`, nil},
		{`INSERT INTO book_pages_fts (book_id, page_number, content, title) VALUES ('b2', 1, 'a journey across the desert sands', 'Unrelated Title')`, nil},
		{`INSERT INTO books (book_id, author_id, title_arabic, title_latin) VALUES ('b1', 'a1', 'مسار الصحراء', 'Desert Path')`, nil},
		{`INSERT INTO books (book_id, author_id, title_arabic, title_latin) VALUES ('b2', 'a2', 'رحلة', 'Journey')`, nil},
		{`INSERT INTO books (book_id, author_id, title_arabic, title_latin) VALUES ('42', 'a1', 'الكتاب الثاني', 'Second Book')`, nil},
		{`INSERT INTO book_pages (book_id, page_number, content) VALUES ('b1', 1, 'pathway through the desert')`, nil},
		{`INSERT INTO book_pages (book_id, page_number, content) VALUES ('b2', 1, 'a journey across the desert sands')`, nil},
		{`INSERT INTO book_pages (book_id, page_number, content) VALUES ('42', 1, 'second book body')`, nil},
		{`INSERT INTO authors (author_id, name_arabic, name_latin, kunya, nasab, nisba, laqab) VALUES ('a1', 'ابن كثير', 'Ibn Umar', 'Abu al-Fida Kathir', '', 'al-Dimashqi', '')`, nil},
		{`INSERT INTO authors (author_id, name_arabic, name_latin, kunya, nasab, nisba, laqab) VALUES ('a2', 'آخر', 'Other', '', '', '', '')`, nil},
		{`INSERT INTO authors (author_id, name_arabic, name_latin, kunya, nasab, nisba, laqab) VALUES ('7', 'سابع', 'Seventh', '', '', '', '')`, nil},
		{`INSERT INTO ayahs_fts (surah_number, ayah_number, text_arabic) VALUES (1, 1, 'mercy and compassion')`, nil},
		{`INSERT INTO ayahs (surah_number, ayah_number, text_arabic) VALUES (1, 1, 'mercy and compassion')`, nil},
		{`INSERT INTO hadiths_fts (collection_slug, hadith_number, text_arabic) VALUES ('bukhari', '1', 'actions are judged by intentions')`, nil},
		{`INSERT INTO hadiths (collection_slug, hadith_number, text_arabic) VALUES ('bukhari', '1', 'actions are judged by intentions')`, nil},
	}
	for _, s := range seed {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatalf("seed %q: %v", s.query, err)
		}
	}

	return db
}
