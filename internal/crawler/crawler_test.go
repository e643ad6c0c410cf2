package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/db/dbtest"
	"github.com/bookscraper/bookscraper/internal/logger"
)

// fakeCatalog serves listing pages and detail pages for tests
type fakeCatalog struct {
	mu       sync.Mutex
	pages    map[int]string // raw JSON per page number
	details  map[string]string
	failures map[int]int // page -> remaining 500 responses
	hits     map[int]int
	server   *httptest.Server
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	fc := &fakeCatalog{
		pages:    map[int]string{},
		details:  map[string]string{},
		failures: map[int]int{},
		hits:     map[int]int{},
	}
	fc.server = httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(fc.server.Close)
	return fc
}

func (fc *fakeCatalog) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if r.URL.Path == "/catalog/" {
		if r.URL.Query().Get("apimode") != "1" {
			http.Error(w, "apimode missing", http.StatusBadRequest)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		fc.hits[page]++
		if fc.failures[page] > 0 {
			fc.failures[page]--
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		body, ok := fc.pages[page]
		if !ok {
			body = `{"products":[]}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
		return
	}

	html, ok := fc.details[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

// addBook registers a detail page with an excerpt anchor and returns the
// catalog product entry for it
func (fc *fakeCatalog) addBook(slug, label string) map[string]string {
	fc.details["/books/"+slug] = fmt.Sprintf(
		`<html><body><h1>%s</h1><a href="/buy">Купить</a><a href="/files/%s.pdf">%s</a></body></html>`,
		slug, slug, label)
	return map[string]string{
		"title":       " Book " + slug + " ",
		"author_name": "Author " + slug,
		"url":         fc.server.URL + "/books/" + slug,
	}
}

func (fc *fakeCatalog) setPage(t *testing.T, page int, products ...map[string]string) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"products": products})
	if err != nil {
		t.Fatalf("marshal page: %v", err)
	}
	fc.pages[page] = string(data)
}

func testConfig(fc *fakeCatalog) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = fc.server.URL + "/catalog/"
	cfg.RetryDelay = 0
	cfg.PageDelay = 0
	return cfg
}

func TestRunAddsBooksAndStopsOnEmptyPage(t *testing.T) {
	fc := newFakeCatalog(t)
	fc.setPage(t, 2,
		fc.addBook("a", "Читать фрагмент"),
		fc.addBook("b", "Посмотреть содержание книги"),
		map[string]string{"title": "", "url": fc.server.URL + "/books/x"},
		map[string]string{"title": "No URL"},
	)
	fc.setPage(t, 3, fc.addBook("c", "Читать фрагмент"))

	dbCfg := dbtest.Config(t)
	d := NewDiscoverer(testConfig(fc), dbCfg, logger.Discard())

	result, err := d.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Added != 3 {
		t.Fatalf("Added = %d, want 3", result.Added)
	}
	if fc.hits[4] != 1 {
		t.Fatalf("expected the empty page 4 to end discovery, hits=%v", fc.hits)
	}
	if fc.hits[1] != 0 {
		t.Fatalf("page 1 should never be requested")
	}

	books := dbtest.Books(t, dbtest.Open(t, dbCfg))
	if len(books) != 3 {
		t.Fatalf("expected 3 stored books, got %d", len(books))
	}
	first := books[0]
	if first.Title != "Book a" || first.Author != "Author a" {
		t.Errorf("title/author not trimmed: %q / %q", first.Title, first.Author)
	}
	if first.Link != fc.server.URL+"/files/a.pdf" {
		t.Errorf("link = %q", first.Link)
	}
	if first.Downloaded || first.Body != nil {
		t.Errorf("discovered book should not be downloaded")
	}
}

func TestRunRespectsCap(t *testing.T) {
	fc := newFakeCatalog(t)
	fc.setPage(t, 2, fc.addBook("a", "Читать фрагмент"), fc.addBook("b", "Читать фрагмент"))
	fc.setPage(t, 3, fc.addBook("c", "Читать фрагмент"))

	dbCfg := dbtest.Config(t)
	d := NewDiscoverer(testConfig(fc), dbCfg, logger.Discard())

	result, err := d.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("Added = %d, want 1", result.Added)
	}
	if fc.hits[3] != 0 {
		t.Errorf("page 3 should not be requested once the cap is reached")
	}
	if books := dbtest.Books(t, dbtest.Open(t, dbCfg)); len(books) != 1 {
		t.Fatalf("expected 1 stored book, got %d", len(books))
	}
}

func TestRunIsIdempotent(t *testing.T) {
	fc := newFakeCatalog(t)
	fc.setPage(t, 2, fc.addBook("a", "Читать фрагмент"), fc.addBook("b", "Читать фрагмент"))

	dbCfg := dbtest.Config(t)
	d := NewDiscoverer(testConfig(fc), dbCfg, logger.Discard())

	if _, err := d.Run(context.Background(), 10); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	result, err := d.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if result.Added != 0 {
		t.Fatalf("second run added %d books", result.Added)
	}
	if books := dbtest.Books(t, dbtest.Open(t, dbCfg)); len(books) != 2 {
		t.Fatalf("expected 2 stored books, got %d", len(books))
	}
}

func TestRunRetriesTransientPageFailure(t *testing.T) {
	fc := newFakeCatalog(t)
	fc.setPage(t, 2, fc.addBook("a", "Читать фрагмент"))
	fc.failures[2] = 2

	d := NewDiscoverer(testConfig(fc), dbtest.Config(t), logger.Discard())

	result, err := d.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("Added = %d, want 1", result.Added)
	}
	if fc.hits[2] != 3 {
		t.Fatalf("page 2 hits = %d, want 3", fc.hits[2])
	}
}

func TestRunStopsWhenRetryCapExhausted(t *testing.T) {
	fc := newFakeCatalog(t)
	fc.failures[2] = 100

	cfg := testConfig(fc)
	cfg.MaxPageRetries = 2
	d := NewDiscoverer(cfg, dbtest.Config(t), logger.Discard())

	_, err := d.Run(context.Background(), 5)
	if err == nil {
		t.Fatal("expected error after exhausting page retries")
	}
	if fc.hits[2] != 3 {
		t.Fatalf("page 2 hits = %d, want 3", fc.hits[2])
	}
}

func TestRunSkipsMalformedJSONPage(t *testing.T) {
	fc := newFakeCatalog(t)
	fc.pages[2] = `{"products": [`
	fc.setPage(t, 3, fc.addBook("a", "Читать фрагмент"))

	d := NewDiscoverer(testConfig(fc), dbtest.Config(t), logger.Discard())

	result, err := d.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("Added = %d, want 1", result.Added)
	}
}

func TestRunSkipsBooksWithoutDownloadLink(t *testing.T) {
	fc := newFakeCatalog(t)
	noLink := fc.addBook("a", "Купить бумажную книгу")
	missing := map[string]string{"title": "Gone", "url": fc.server.URL + "/books/missing"}
	fc.setPage(t, 2, noLink, missing, fc.addBook("b", "Читать фрагмент"))

	d := NewDiscoverer(testConfig(fc), dbtest.Config(t), logger.Discard())

	result, err := d.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("Added = %d, want 1", result.Added)
	}
}

func TestRunHonorsCancelledContext(t *testing.T) {
	fc := newFakeCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDiscoverer(testConfig(fc), dbtest.Config(t), logger.Discard())
	if _, err := d.Run(ctx, 5); err == nil {
		t.Fatal("expected context error")
	}
}

func TestParseDownloadLink(t *testing.T) {
	d := NewDiscoverer(DefaultConfig(), db.DefaultConfig(), logger.Discard())

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "absolute path",
			html: `<a href="/upload/excerpt.pdf">Читать фрагмент</a>`,
			want: "https://shop.example.com/upload/excerpt.pdf",
		},
		{
			name: "relative path resolves against host root",
			html: `<a href="files/toc.pdf">Посмотреть содержание книги</a>`,
			want: "https://shop.example.com/files/toc.pdf",
		},
		{
			name: "label inside nested markup",
			html: `<a href="/x.pdf"><span>Читать фрагмент</span></a>`,
			want: "https://shop.example.com/x.pdf",
		},
		{
			name: "first match in document order",
			html: `<a href="/toc.pdf">Посмотреть содержание книги</a><a href="/ex.pdf">Читать фрагмент</a>`,
			want: "https://shop.example.com/toc.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("parse html: %v", err)
			}
			got, err := d.parseDownloadLink(doc, "https://shop.example.com/product/book/?x=1")
			if err != nil {
				t.Fatalf("parseDownloadLink() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseDownloadLink() = %q, want %q", got, tt.want)
			}
		})
	}

	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(`<a href="/buy">Купить</a><a>Читать фрагмент</a>`))
	if _, err := d.parseDownloadLink(doc, "https://shop.example.com/book"); err != errNoDownloadLink {
		t.Errorf("expected errNoDownloadLink, got %v", err)
	}
}

func TestPageURL(t *testing.T) {
	d := NewDiscoverer(DefaultConfig(), db.DefaultConfig(), logger.Discard())

	got, err := d.pageURL(7)
	if err != nil {
		t.Fatalf("pageURL() error = %v", err)
	}
	if got != "https://www.mann-ivanov-ferber.ru/catalog/?apimode=1&page=7" {
		t.Errorf("pageURL() = %q", got)
	}
}
