// Package dbtest provides throwaway SQLite stores for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/bookscraper/bookscraper/internal/db"
)

// Config returns a configuration pointing at a fresh SQLite file with an
// empty books table.
func Config(t testing.TB) db.Config {
	t.Helper()

	cfg := db.DefaultConfig()
	cfg.Driver = db.DriverSQLite
	cfg.Path = filepath.Join(t.TempDir(), "books.db")

	err := db.WithConnection(cfg, db.ResetSchema)
	if err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return cfg
}

// Open connects to cfg and closes the connection when the test ends.
func Open(t testing.TB, cfg db.Config) *gorm.DB {
	t.Helper()

	conn, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close(conn)
	})
	return conn
}

// Books returns every stored book ordered by id.
func Books(t testing.TB, conn *gorm.DB) []db.Book {
	t.Helper()

	var books []db.Book
	if err := conn.Order("id").Find(&books).Error; err != nil {
		t.Fatalf("list books: %v", err)
	}
	return books
}
