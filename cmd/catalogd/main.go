package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/bookscraper/bookscraper/internal/api"
	"github.com/bookscraper/bookscraper/internal/config"
	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/logger"
)

func main() {
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

	serverLog := log.WithComponent("catalogd")

	// Initialize database
	serverLog.Info("Initializing database...")
	cfg.DB.Logger = log.WithComponent("gorm")
	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		serverLog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close(dbConn)

	if err := db.EnsureSchema(dbConn); err != nil {
		serverLog.Error("Failed to prepare schema", "error", err)
		os.Exit(1)
	}
	serverLog.Info("Database initialized successfully")

	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(dbConn, serverLog, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverLog.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		serverLog.Error("Failed to start server", "error", err)
		return
	}
	serverLog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		serverLog.Error("Server forced to shutdown", "error", err)
	}

	serverLog.Info("Server exited")
}
