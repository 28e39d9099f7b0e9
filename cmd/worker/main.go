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

	"github.com/mohamedkhairy/anomaly-scanner/internal/analyst"
	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/jobstore"
	"github.com/mohamedkhairy/anomaly-scanner/internal/notify"
	"github.com/mohamedkhairy/anomaly-scanner/internal/pubsub"
	"github.com/mohamedkhairy/anomaly-scanner/internal/scoring"
	"github.com/mohamedkhairy/anomaly-scanner/internal/worker"
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

	logger.Info("Starting analysis worker service",
		logger.String("worker_id", cfg.Worker.WorkerID),
		logger.Duration("poll_interval", cfg.Worker.PollInterval),
		logger.String("analyst_model", cfg.Analyst.Model),
	)

	// Initialize job store
	store, err := jobstore.NewPostgresStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize job store",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Initialize the notification transport. The worker can run without
	// it, but alerts are a core output, so fail fast like other deps.
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	dispatcher := notify.NewDispatcher(redisClient, cfg.Notify)
	engine := scoring.NewEngine(cfg.Scoring)
	analystClient := analyst.NewClient(cfg.Analyst)

	// Initialize and start the worker
	wrk := worker.New(store, engine, analystClient, dispatcher, cfg.Worker)
	if err := wrk.Start(); err != nil {
		logger.Fatal("Failed to start worker",
			logger.ErrorField(err),
		)
	}
	defer wrk.Stop()

	// Set up HTTP server for health checks and metrics
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := wrk.GetStats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"completed": stats.Completed,
			"cached":    stats.Cached,
			"failed":    stats.Failed,
			"degraded":  stats.Degraded,
		})
	})

	router.Handle("/metrics", promhttp.Handler())

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.HealthCheckPort),
		Handler: router,
	}

	go func() {
		logger.Info("Health check server listening",
			logger.Int("port", cfg.Worker.HealthCheckPort),
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
	logger.Info("Shutting down analysis worker service")
	healthServer.Close()
}
