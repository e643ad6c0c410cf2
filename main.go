package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookscraper/bookscraper/internal/config"
	"github.com/bookscraper/bookscraper/internal/logger"
	"github.com/bookscraper/bookscraper/internal/pipeline"
)

// main runs one pipeline pass. Failures are logged and the process always
// exits with status 0.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Error("Configuration is invalid", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := pipeline.New(cfg, log.Logger).Run(ctx)
	if err != nil {
		// Already logged by the pipeline.
		return
	}

	log.Info("Run summary",
		"run_id", report.RunID,
		"added", report.Discovered.Added,
		"pages", report.Discovered.Pages,
		"stored", report.Fetched.Stored,
		"skipped", report.Fetched.Skipped,
		"download_failed", report.Fetched.Failed,
		"extracted_primary", report.Extracted.Primary,
		"extracted_fallback", report.Extracted.Fallback,
		"extract_failed", report.Extracted.Failed,
	)
}
