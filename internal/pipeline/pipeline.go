// Package pipeline runs the discover, download and extract stages in order.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookscraper/bookscraper/internal/config"
	"github.com/bookscraper/bookscraper/internal/crawler"
	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/extractor"
	"github.com/bookscraper/bookscraper/internal/fetcher"
	"github.com/bookscraper/bookscraper/internal/llm"
	"github.com/bookscraper/bookscraper/internal/progress"
)

const timestampLayout = "2006-01-02 15:04:05"

// Report collects the outcome of each stage that ran
type Report struct {
	RunID      string
	Discovered *crawler.DiscoverResult
	Fetched    *fetcher.FetchResult
	Extracted  *extractor.ExtractResult
}

// Pipeline wires the stages to one configuration
type Pipeline struct {
	cfg      *config.Config
	log      *slog.Logger
	loader   llm.Loader
	progress progress.Factory
}

// New creates a pipeline. Progress bars go to stderr when enabled; database
// warnings go to log unless cfg.DB already names a logger.
func New(cfg *config.Config, log *slog.Logger) *Pipeline {
	var out io.Writer
	if cfg.Pipeline.Progress {
		out = os.Stderr
	}
	own := *cfg
	if own.DB.Logger == nil {
		own.DB.Logger = log.With("component", "gorm")
	}
	return &Pipeline{
		cfg:      &own,
		log:      log,
		loader:   llm.NewLoader(cfg.LLM),
		progress: progress.NewFactory(out),
	}
}

// Run resets the store and runs every stage once. The first stage error
// ends the run; a panic in a stage is returned as an error.
func (p *Pipeline) Run(ctx context.Context) (report *Report, err error) {
	report = &Report{RunID: uuid.NewString()}
	log := p.log.With("run_id", report.RunID)
	started := time.Now()

	banner(log, fmt.Sprintf("Parser started: %s", started.Format(timestampLayout)))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			log.Error("Critical error in pipeline", "error", err)
		}
		finished := time.Now()
		banner(log, fmt.Sprintf("Parser finished: %s", finished.Format(timestampLayout)),
			"duration", finished.Sub(started).Round(time.Millisecond).String())
	}()

	if err := db.WithConnection(p.cfg.DB, db.ResetSchema); err != nil {
		return report, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Info("Database initialized")

	discoverer := crawler.NewDiscoverer(p.cfg.Catalog, p.cfg.DB, log)
	report.Discovered, err = discoverer.Run(ctx, p.cfg.Pipeline.MaxBooks)
	if err != nil {
		return report, fmt.Errorf("discovery failed: %w", err)
	}

	fetch := fetcher.New(p.cfg.Fetch, p.cfg.DB, log, p.progress)
	report.Fetched, err = fetch.Run(ctx, p.cfg.Pipeline.DownloadBatch)
	if err != nil {
		return report, fmt.Errorf("download failed: %w", err)
	}

	extract := extractor.New(p.cfg.Extract, p.cfg.DB, p.loader, log, p.progress)
	report.Extracted, err = extract.Run(ctx, p.cfg.Pipeline.ExtractBatch)
	if err != nil {
		return report, fmt.Errorf("extraction failed: %w", err)
	}

	return report, nil
}

func banner(log *slog.Logger, msg string, args ...any) {
	rule := strings.Repeat("=", 50)
	log.Info(rule)
	log.Info(msg, args...)
	log.Info(rule)
}
