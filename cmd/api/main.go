package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/anomaly-scanner/internal/api"
	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/jobstore"
	"github.com/mohamedkhairy/anomaly-scanner/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting API service",
		logger.Int("port", cfg.API.Port),
		logger.Bool("auth_enabled", cfg.API.JWTSecret != ""),
	)

	// Initialize job store
	store, err := jobstore.NewPostgresStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize job store",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Build the router
	handler := api.NewAnalysisHandler(store, cfg.API)
	auth := api.NewAuthManager(cfg.API.JWTSecret)
	router := api.NewRouter(handler, auth)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("API server listening", logger.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down API service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", logger.ErrorField(err))
	}
}
