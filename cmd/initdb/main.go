package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bookscraper/bookscraper/internal/config"
	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/logger"
	"github.com/bookscraper/bookscraper/internal/service"
)

// InitConfig holds command line options
type InitConfig struct {
	Force bool
}

// NewInitConfig parses the command line
func NewInitConfig() *InitConfig {
	force := flag.Bool("force", false, "Drop and recreate the books table, deleting every stored book")

	flag.Parse()

	return &InitConfig{
		Force: *force,
	}
}

func main() {
	opts := NewInitConfig()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Error("Configuration is invalid", "error", err)
		os.Exit(1)
	}

	cfg.DB.Logger = log.WithComponent("gorm")
	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close(dbConn)

	if dbConn.Migrator().HasTable(&db.Book{}) {
		count, err := service.CountBooks(dbConn)
		if err != nil {
			log.Error("Database error counting books", "error", err)
			os.Exit(1)
		}
		if !opts.Force {
			log.Info("Books table already exists. Use -force flag to recreate.", "books", count)
			return
		}
		log.Warn("Recreating books table", "deleted", count)
	}

	if err := db.ResetSchema(dbConn); err != nil {
		log.Error("Failed to reset schema", "error", err)
		os.Exit(1)
	}

	log.Info("Database initialization completed successfully", "driver", cfg.DB.Driver)
}
