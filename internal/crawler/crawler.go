package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go/v4"
	"gorm.io/gorm"

	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/httpclient"
	"github.com/bookscraper/bookscraper/internal/service"
)

// Config holds catalog discovery configuration
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	StartPage      int           `mapstructure:"start_page"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxPageRetries uint          `mapstructure:"max_page_retries"` // 0 retries forever
	PageDelay      time.Duration `mapstructure:"page_delay"`
	LinkLabels     []string      `mapstructure:"link_labels"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DefaultConfig returns default discovery configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://www.mann-ivanov-ferber.ru/catalog/",
		// The first listing page has a different shape, so paging starts at 2.
		StartPage:  2,
		Timeout:    15 * time.Second,
		RetryDelay: 5 * time.Second,
		PageDelay:  time.Second,
		LinkLabels: []string{"Посмотреть содержание книги", "Читать фрагмент"},
		UserAgent:  httpclient.DefaultUserAgent,
	}
}

// Discoverer pages through the remote catalog and stores new books
type Discoverer struct {
	config   Config
	dbConfig db.Config
	client   *httpclient.Client
	log      *slog.Logger
}

// DiscoverResult summarises one discovery run
type DiscoverResult struct {
	Added int
	Pages int
}

// catalogPage is one page of the catalog listing API
type catalogPage struct {
	Products []catalogProduct `json:"products"`
}

type catalogProduct struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	URL        string `json:"url"`
}

// errNoDownloadLink marks a detail page without an excerpt anchor
var errNoDownloadLink = errors.New("download link not found")

// NewDiscoverer creates a new catalog discoverer
func NewDiscoverer(config Config, dbConfig db.Config, log *slog.Logger) *Discoverer {
	return &Discoverer{
		config:   config,
		dbConfig: dbConfig,
		client:   httpclient.New(config.Timeout, config.UserAgent),
		log:      log.With("component", "discoverer"),
	}
}

// Run adds up to maxBooks new books to the store. It stops early when the
// catalog returns an empty page.
func (d *Discoverer) Run(ctx context.Context, maxBooks int) (*DiscoverResult, error) {
	result := &DiscoverResult{}

	err := db.WithConnection(d.dbConfig, func(conn *gorm.DB) error {
		defer func() {
			d.log.Info("Discovery finished", "added", result.Added, "pages", result.Pages)
		}()

		pageNum := d.config.StartPage
		if _, err := d.pageURL(pageNum); err != nil {
			return err
		}

		for result.Added < maxBooks {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := d.fetchPage(ctx, pageNum)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("catalog page %d: %w", pageNum, err)
			}
			result.Pages++

			var page catalogPage
			if err := json.Unmarshal(data, &page); err != nil {
				d.log.Error("Failed to parse catalog JSON", "page", pageNum, "error", err)
				pageNum++
				continue
			}

			if len(page.Products) == 0 {
				d.log.Info("No more books found", "page", pageNum)
				break
			}

			for _, product := range page.Products {
				if result.Added >= maxBooks {
					break
				}

				added, err := d.processProduct(ctx, conn, product)
				if err != nil {
					if errors.Is(err, errNoDownloadLink) {
						d.log.Info("No PDF link found for book", "title", product.Title)
						continue
					}
					d.log.Error("Failed to process book", "title", product.Title, "error", err)
					continue
				}
				if added {
					result.Added++
					d.log.Info("Added book", "title", strings.TrimSpace(product.Title),
						"progress", fmt.Sprintf("%d/%d", result.Added, maxBooks))
				}
			}

			pageNum++
			if err := httpclient.Throttle(ctx, d.config.PageDelay); err != nil {
				return err
			}
		}

		return nil
	})

	return result, err
}

// fetchPage loads one listing page, retrying transient failures after a
// fixed delay.
func (d *Discoverer) fetchPage(ctx context.Context, pageNum int) ([]byte, error) {
	pageURL, err := d.pageURL(pageNum)
	if err != nil {
		return nil, err
	}

	attempts := d.config.MaxPageRetries
	if attempts > 0 {
		attempts++
	}

	return retry.DoWithData(
		func() ([]byte, error) {
			resp, err := d.client.Get(ctx, pageURL)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			return io.ReadAll(resp.Body)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(d.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			d.log.Error("Failed to load catalog page", "page", pageNum, "attempt", n+1, "error", err)
		}),
	)
}

// pageURL builds the listing API address for a page number
func (d *Discoverer) pageURL(pageNum int) (string, error) {
	u, err := url.Parse(d.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse catalog URL: %w", err)
	}
	q := u.Query()
	q.Set("apimode", "1")
	q.Set("page", strconv.Itoa(pageNum))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// processProduct resolves a product's download link and stores it. It
// reports whether a new row was inserted.
func (d *Discoverer) processProduct(ctx context.Context, conn *gorm.DB, product catalogProduct) (bool, error) {
	title := strings.TrimSpace(product.Title)
	author := strings.TrimSpace(product.AuthorName)
	if title == "" || product.URL == "" {
		return false, nil
	}

	link, err := d.findDownloadLink(ctx, product.URL)
	if err != nil {
		return false, err
	}

	return service.CreateBook(conn.WithContext(ctx), title, author, link)
}

// findDownloadLink scrapes a detail page for the excerpt anchor and returns
// its absolute address
func (d *Discoverer) findDownloadLink(ctx context.Context, detailURL string) (string, error) {
	resp, err := d.client.Get(ctx, detailURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	return d.parseDownloadLink(doc, detailURL)
}

// parseDownloadLink finds the first anchor labelled with one of the
// configured link labels and resolves it against the page's scheme and host
func (d *Discoverer) parseDownloadLink(doc *goquery.Document, pageAddress string) (string, error) {
	href, ok := doc.Find(d.anchorSelector()).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", errNoDownloadLink
	}

	pageURL, err := url.Parse(pageAddress)
	if err != nil {
		return "", fmt.Errorf("failed to parse page URL: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("failed to parse link %q: %w", href, err)
	}

	base := &url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host, Path: "/"}
	return base.ResolveReference(ref).String(), nil
}

// anchorSelector builds `a:contains("...")` alternatives for every label
func (d *Discoverer) anchorSelector() string {
	parts := make([]string, 0, len(d.config.LinkLabels))
	for _, label := range d.config.LinkLabels {
		parts = append(parts, "a:contains("+strconv.Quote(label)+")")
	}
	return strings.Join(parts, ", ")
}
