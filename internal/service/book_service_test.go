package service

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/db/dbtest"
)

func TestCreateBookSkipsExistingLink(t *testing.T) {
	conn := dbtest.Open(t, dbtest.Config(t))
	link := "https://example.com/a.pdf"

	created, err := CreateBook(conn, "A", "Author", link)
	if err != nil || !created {
		t.Fatalf("CreateBook() = %v, %v; want true, nil", created, err)
	}

	created, err = CreateBook(conn, "A again", "Author", link)
	if err != nil {
		t.Fatalf("CreateBook() duplicate error = %v", err)
	}
	if created {
		t.Fatal("duplicate link should not be inserted")
	}

	count, err := CountBooks(conn)
	if err != nil {
		t.Fatalf("CountBooks() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestCreateBookValidates(t *testing.T) {
	conn := dbtest.Open(t, dbtest.Config(t))

	if _, err := CreateBook(conn, "", "Author", "https://example.com/a.pdf"); err == nil {
		t.Error("expected error for empty title")
	}
	if _, err := CreateBook(conn, "A", "Author", ""); err == nil {
		t.Error("expected error for empty link")
	}
}

func TestDownloadLifecycle(t *testing.T) {
	conn := dbtest.Open(t, dbtest.Config(t))

	for _, link := range []string{"https://example.com/1.pdf", "https://example.com/2.pdf", "https://example.com/3.pdf"} {
		if _, err := CreateBook(conn, link, "", link); err != nil {
			t.Fatalf("CreateBook() error = %v", err)
		}
	}

	pending, err := ListPendingDownloads(conn, 2)
	if err != nil {
		t.Fatalf("ListPendingDownloads() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(pending))
	}

	if err := SaveDownload(conn, pending[0].ID, []byte("%PDF-1.4")); err != nil {
		t.Fatalf("SaveDownload() error = %v", err)
	}
	if err := SaveDownload(conn, pending[1].ID, nil); err != nil {
		t.Fatalf("SaveDownload(nil) error = %v", err)
	}

	pending, err = ListPendingDownloads(conn, 10)
	if err != nil {
		t.Fatalf("ListPendingDownloads() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Link != "https://example.com/3.pdf" {
		t.Fatalf("unexpected pending books: %+v", pending)
	}

	books := dbtest.Books(t, conn)
	if string(books[0].Body) != "%PDF-1.4" || !books[0].Downloaded {
		t.Errorf("first book not stored: %+v", books[0])
	}
	if books[1].Body != nil || !books[1].Downloaded {
		t.Errorf("second book should be downloaded without body: %+v", books[1])
	}

	if err := SaveDownload(conn, 999, nil); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("SaveDownload(missing) error = %v, want ErrRecordNotFound", err)
	}
}

func TestExtractionLifecycle(t *testing.T) {
	conn := dbtest.Open(t, dbtest.Config(t))

	if _, err := CreateBook(conn, "A", "Author", "https://example.com/a.pdf"); err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	if _, err := CreateBook(conn, "B", "Author", "https://example.com/b.pdf"); err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	books := dbtest.Books(t, conn)
	if err := SaveDownload(conn, books[0].ID, []byte("%PDF")); err != nil {
		t.Fatalf("SaveDownload() error = %v", err)
	}

	pending, err := ListPendingExtraction(conn, 10)
	if err != nil {
		t.Fatalf("ListPendingExtraction() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != books[0].ID {
		t.Fatalf("only the downloaded book should be pending: %+v", pending)
	}
	if string(pending[0].Body) != "%PDF" {
		t.Fatalf("pending book should carry its body")
	}

	err = SaveParsed(conn, books[0].ID, ParsedMetadata{Title: "Parsed", Author: "", Year: "2019"})
	if err != nil {
		t.Fatalf("SaveParsed() error = %v", err)
	}

	pending, err = ListPendingExtraction(conn, 10)
	if err != nil {
		t.Fatalf("ListPendingExtraction() error = %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("extracted book should not be pending: %+v", pending)
	}

	book, err := GetBookByID(conn, books[0].ID)
	if err != nil {
		t.Fatalf("GetBookByID() error = %v", err)
	}
	if book.TitleParsed == nil || *book.TitleParsed != "Parsed" {
		t.Errorf("title_parsed = %v", book.TitleParsed)
	}
	if book.AuthorParsed == nil || *book.AuthorParsed != "" {
		t.Errorf("author_parsed should be an empty string, got %v", book.AuthorParsed)
	}
	if book.YearParsed == nil || *book.YearParsed != "2019" {
		t.Errorf("year_parsed = %v", book.YearParsed)
	}
}

func TestResets(t *testing.T) {
	conn := dbtest.Open(t, dbtest.Config(t))

	if _, err := CreateBook(conn, "A", "Author", "https://example.com/a.pdf"); err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	id := dbtest.Books(t, conn)[0].ID
	if err := SaveDownload(conn, id, []byte("%PDF")); err != nil {
		t.Fatalf("SaveDownload() error = %v", err)
	}
	if err := SaveParsed(conn, id, ParsedMetadata{Title: "T"}); err != nil {
		t.Fatalf("SaveParsed() error = %v", err)
	}

	if n, err := ResetExtraction(conn, []uint{id}); err != nil || n != 1 {
		t.Fatalf("ResetExtraction() = %d, %v", n, err)
	}
	book, _ := GetBookByID(conn, id)
	if book.TitleParsed != nil || !book.Downloaded {
		t.Errorf("extraction reset should keep the download: %+v", book)
	}

	if n, err := ResetDownloads(conn, []uint{id}); err != nil || n != 1 {
		t.Fatalf("ResetDownloads() = %d, %v", n, err)
	}
	book, _ = GetBookByID(conn, id)
	if book.Downloaded || book.Body != nil {
		t.Errorf("download reset should clear body and flag: %+v", book)
	}

	if n, err := DeleteBooks(conn, []uint{id}); err != nil || n != 1 {
		t.Fatalf("DeleteBooks() = %d, %v", n, err)
	}
	if _, err := GetBookByID(conn, id); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("deleted book still found: %v", err)
	}
}

func TestLinkExists(t *testing.T) {
	conn := dbtest.Open(t, dbtest.Config(t))

	exists, err := LinkExists(conn, "https://example.com/a.pdf")
	if err != nil || exists {
		t.Fatalf("LinkExists() = %v, %v; want false, nil", exists, err)
	}
	if err := conn.Create(&db.Book{Title: "A", Link: "https://example.com/a.pdf"}).Error; err != nil {
		t.Fatalf("create book: %v", err)
	}
	exists, err = LinkExists(conn, "https://example.com/a.pdf")
	if err != nil || !exists {
		t.Fatalf("LinkExists() = %v, %v; want true, nil", exists, err)
	}
}
