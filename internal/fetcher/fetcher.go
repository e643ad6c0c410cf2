package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/httpclient"
	"github.com/bookscraper/bookscraper/internal/progress"
	"github.com/bookscraper/bookscraper/internal/service"
)

// PDFContentType is the content type prefix accepted as a document
const PDFContentType = "application/pdf"

// Config holds download configuration
type Config struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	Delay     time.Duration `mapstructure:"delay"`
	MaxBytes  int64         `mapstructure:"max_bytes"` // 0 means unlimited
	UserAgent string        `mapstructure:"user_agent"`
}

// DefaultConfig returns default download configuration
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		Delay:     time.Second,
		MaxBytes:  100 << 20,
		UserAgent: httpclient.DefaultUserAgent,
	}
}

// Fetcher downloads the documents of discovered books
type Fetcher struct {
	config   Config
	dbConfig db.Config
	client   *httpclient.Client
	progress progress.Factory
	log      *slog.Logger
}

// FetchResult summarises one fetch batch
type FetchResult struct {
	Stored  int
	Skipped int
	Failed  int
}

// New creates a new fetcher
func New(config Config, dbConfig db.Config, log *slog.Logger, bars progress.Factory) *Fetcher {
	return &Fetcher{
		config:   config,
		dbConfig: dbConfig,
		client:   httpclient.New(config.Timeout, config.UserAgent),
		progress: bars,
		log:      log.With("component", "fetcher"),
	}
}

// Run downloads up to batchSize books that have not been fetched yet. Every
// book in the batch ends either marked downloaded or untouched after a
// logged error.
func (f *Fetcher) Run(ctx context.Context, batchSize int) (*FetchResult, error) {
	result := &FetchResult{}

	err := db.WithConnection(f.dbConfig, func(conn *gorm.DB) error {
		conn = conn.WithContext(ctx)

		books, err := service.ListPendingDownloads(conn, batchSize)
		if err != nil {
			return fmt.Errorf("failed to list pending downloads: %w", err)
		}

		bar := f.progress.New(len(books), "Downloading PDFs")
		defer bar.Finish()

		for i, book := range books {
			if err := ctx.Err(); err != nil {
				return err
			}

			stored, err := f.fetchBook(ctx, conn, book)
			switch {
			case err != nil:
				result.Failed++
				f.log.Error("Failed to download book", "title", book.Title, "error", err)
			case stored:
				result.Stored++
				f.log.Info("PDF saved", "title", book.Title)
			default:
				result.Skipped++
			}
			bar.Add(1)

			if i < len(books)-1 {
				if err := httpclient.Throttle(ctx, f.config.Delay); err != nil {
					return err
				}
			}
		}

		f.log.Info("Download batch finished", "stored", result.Stored, "skipped", result.Skipped, "failed", result.Failed)
		return nil
	})

	return result, err
}

// fetchBook downloads one book and records the outcome. It reports whether
// a body was stored.
func (f *Fetcher) fetchBook(ctx context.Context, conn *gorm.DB, book db.Book) (bool, error) {
	resp, err := f.client.Get(ctx, book.Link)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !IsPDF(contentType) {
		f.log.Warn("File is not a PDF", "title", book.Title, "link", book.Link, "content_type", contentType)
		if err := service.SaveDownload(conn, book.ID, nil); err != nil {
			return false, fmt.Errorf("failed to mark download: %w", err)
		}
		return false, nil
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		return false, err
	}

	if err := service.SaveDownload(conn, book.ID, body); err != nil {
		return false, fmt.Errorf("failed to save download: %w", err)
	}
	return true, nil
}

// readBody reads the whole response, failing when it exceeds MaxBytes
func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	if f.config.MaxBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, f.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", f.config.MaxBytes)
	}
	return body, nil
}

// IsPDF reports whether a Content-Type header declares a PDF document
func IsPDF(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), PDFContentType)
}
