// Package store provides the SQLite-backed relational metadata repository:
// books, authors, Quran ayahs, hadiths, their translations, and the
// hadith-source book allow-list. It also owns the FTS5 virtual tables the
// lexical engine queries directly.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store provides relational metadata operations for the search orchestrator.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
func New(dbPath string) (*Store, error) {
	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite supports single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Connections don't expire

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate runs all pending database migrations.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	if currentVersion < 1 {
		if err := s.runMigration001(); err != nil {
			return fmt.Errorf("run migration 001: %w", err)
		}
	}

	return nil
}

// runMigration001 creates the full content-domain schema.
func (s *Store) runMigration001() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Authors
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS authors (
			author_id   TEXT PRIMARY KEY,
			name_arabic TEXT NOT NULL,
			name_latin  TEXT,
			kunya       TEXT,
			nasab       TEXT,
			nisba       TEXT,
			laqab       TEXT
		)
	`)
	if err != nil {
		return err
	}

	// Books
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			book_id      TEXT PRIMARY KEY,
			title_arabic TEXT NOT NULL,
			title_latin  TEXT,
			author_id    TEXT REFERENCES authors(author_id)
		)
	`)
	if err != nil {
		return err
	}

	// Book pages
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS book_pages (
			book_id     TEXT NOT NULL REFERENCES books(book_id) ON DELETE CASCADE,
			page_number INTEGER NOT NULL,
			content     TEXT NOT NULL,
			PRIMARY KEY (book_id, page_number)
		)
	`)
	if err != nil {
		return err
	}

	// Book page translations: one row per (book, page, language), whole-page HTML
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS book_page_translations (
			book_id     TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			language    TEXT NOT NULL,
			html        TEXT NOT NULL,
			PRIMARY KEY (book_id, page_number, language),
			FOREIGN KEY (book_id, page_number) REFERENCES book_pages(book_id, page_number) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return err
	}

	// Ayahs
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS ayahs (
			surah_number INTEGER NOT NULL,
			ayah_number  INTEGER NOT NULL,
			text_arabic  TEXT NOT NULL,
			PRIMARY KEY (surah_number, ayah_number)
		)
	`)
	if err != nil {
		return err
	}

	// Ayah translations: one row per (surah, ayah, edition)
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS ayah_translations (
			surah_number INTEGER NOT NULL,
			ayah_number  INTEGER NOT NULL,
			edition      TEXT NOT NULL,
			translation  TEXT NOT NULL,
			PRIMARY KEY (surah_number, ayah_number, edition)
		)
	`)
	if err != nil {
		return err
	}

	// Hadiths
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS hadiths (
			collection_slug TEXT NOT NULL,
			hadith_number   TEXT NOT NULL,
			book_id         TEXT,
			text_arabic     TEXT NOT NULL,
			chapter         TEXT,
			PRIMARY KEY (collection_slug, hadith_number)
		)
	`)
	if err != nil {
		return err
	}

	// Hadith translations: one row per (collection, number, language)
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS hadith_translations (
			collection_slug TEXT NOT NULL,
			hadith_number   TEXT NOT NULL,
			language        TEXT NOT NULL,
			translation     TEXT NOT NULL,
			PRIMARY KEY (collection_slug, hadith_number, language)
		)
	`)
	if err != nil {
		return err
	}

	// Hadith-source book allow-list: books indexed per-hadith rather than
	// per-page, always eligible for content-level search.
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS hadith_source_books (
			book_id TEXT PRIMARY KEY
		)
	`)
	if err != nil {
		return err
	}

	// FTS5 virtual tables, queried directly by internal/search/lexical.
	_, err = tx.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS book_pages_fts USING fts5(
			book_id UNINDEXED,
			page_number UNINDEXED,
			content,
			title,
			tokenize='porter unicode61'
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS ayahs_fts USING fts5(
			surah_number UNINDEXED,
			ayah_number UNINDEXED,
			content,
			tokenize='porter unicode61'
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS hadiths_fts USING fts5(
			collection_slug UNINDEXED,
			hadith_number UNINDEXED,
			content,
			tokenize='porter unicode61'
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);
		CREATE INDEX IF NOT EXISTS idx_pages_book ON book_pages(book_id);
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec("INSERT INTO migrations (version) VALUES (1)")
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
