package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/jobstore"
	"github.com/mohamedkhairy/anomaly-scanner/internal/marketdata"
	"github.com/mohamedkhairy/anomaly-scanner/internal/watcher"
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

	logger.Info("Starting market watcher service",
		logger.Duration("scan_interval", cfg.Watcher.ScanInterval),
		logger.Int("max_symbols", cfg.Watcher.MaxSymbols),
		logger.String("market_data", cfg.MarketData.BaseURL),
	)

	// Initialize job store
	store, err := jobstore.NewPostgresStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize job store",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Initialize market data provider
	provider := marketdata.NewClient(cfg.MarketData)

	// Initialize and start the watcher
	w := watcher.New(provider, store, cfg.Watcher, cfg.MarketData, cfg.Filter)
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start watcher",
			logger.ErrorField(err),
		)
	}
	defer w.Stop()

	// Set up HTTP server for health checks and metrics
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(rw http.ResponseWriter, r *http.Request) {
		stats := w.GetStats()
		if stats.Cycles > 0 {
			rw.WriteHeader(http.StatusOK)
			json.NewEncoder(rw).Encode(map[string]string{"status": "ready"})
		} else {
			rw.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(rw).Encode(map[string]string{"status": "not ready"})
		}
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	router.HandleFunc("/stats", func(rw http.ResponseWriter, r *http.Request) {
		stats := w.GetStats()
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(map[string]interface{}{
			"cycles":        stats.Cycles,
			"scanned":       stats.Scanned,
			"fetch_errors":  stats.FetchErrors,
			"candidates":    stats.Candidates,
			"jobs_enqueued": stats.JobsEnqueued,
			"dedup_skips":   stats.DedupSkips,
		})
	})

	router.Handle("/metrics", promhttp.Handler())

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Watcher.HealthCheckPort),
		Handler: router,
	}

	go func() {
		logger.Info("Health check server listening",
			logger.Int("port", cfg.Watcher.HealthCheckPort),
		)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health check server failed",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down market watcher service")
	healthServer.Close()
}
