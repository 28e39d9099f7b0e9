// Package watcher implements the market watcher service: it scans the
// symbol universe on a fixed cadence, applies the mechanical filter and
// enqueues analysis jobs for candidates not already covered by an
// in-flight or recently completed analysis.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/filter"
	"github.com/mohamedkhairy/anomaly-scanner/internal/jobstore"
	"github.com/mohamedkhairy/anomaly-scanner/internal/marketdata"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
	"github.com/mohamedkhairy/anomaly-scanner/pkg/logger"
)

var (
	scanCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_scan_cycles_total",
			Help: "Total number of completed scan cycles",
		},
	)

	symbolsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_symbols_scanned_total",
			Help: "Total number of symbols scanned",
		},
	)

	fetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_fetch_errors_total",
			Help: "Total number of per-symbol fetch failures",
		},
	)

	candidatesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_candidates_total",
			Help: "Total number of symbols that passed the mechanical filter",
		},
	)

	jobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_jobs_enqueued_total",
			Help: "Total number of analysis jobs enqueued",
		},
	)

	dedupSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_dedup_skips_total",
			Help: "Total number of candidates skipped by active or recent jobs",
		},
	)

	scanCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watcher_scan_cycle_duration_seconds",
			Help:    "Scan cycle duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)
)

// Stats holds counters for one watcher instance.
type Stats struct {
	Cycles       int64
	Scanned      int64
	FetchErrors  int64
	Candidates   int64
	JobsEnqueued int64
	DedupSkips   int64
	mu           sync.RWMutex
}

// Watcher runs the scan loop.
type Watcher struct {
	provider marketdata.Provider
	builder  *SnapshotBuilder
	filter   *filter.Filter
	store    jobstore.Store
	cfg      config.WatcherConfig
	mdCfg    config.MarketDataConfig

	universe          []marketdata.Ticker
	universeFetchedAt time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stats   Stats
}

// New creates a watcher wired to the given provider and job store.
func New(provider marketdata.Provider, store jobstore.Store, cfg config.WatcherConfig, mdCfg config.MarketDataConfig, filterCfg config.FilterConfig) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		provider: provider,
		builder:  NewSnapshotBuilder(provider, cfg, mdCfg),
		filter:   filter.New(filterCfg),
		store:    store,
		cfg:      cfg,
		mdCfg:    mdCfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the scan loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	logger.Info("Starting market watcher",
		logger.Duration("scan_interval", w.cfg.ScanInterval),
		logger.Int("max_symbols", w.cfg.MaxSymbols),
		logger.String("provider", w.provider.Name()))

	w.wg.Add(1)
	go w.scanLoop()

	return nil
}

// Stop stops the scan loop and waits for the current cycle to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	logger.Info("Market watcher stopped")
}

func (w *Watcher) scanLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()

	// Run one cycle immediately instead of waiting a full interval.
	w.RunCycle(w.ctx)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.RunCycle(w.ctx)
		}
	}
}

// RunCycle performs one scan over the universe. Exported so tests and
// one-shot tooling can drive the watcher without the loop.
func (w *Watcher) RunCycle(ctx context.Context) {
	start := time.Now()

	universe, err := w.getUniverse(ctx)
	if err != nil {
		logger.Error("Failed to refresh symbol universe", logger.ErrorField(err))
		return
	}

	concurrency := w.cfg.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	tickers := make(chan marketdata.Ticker)
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tickers {
				w.scanSymbol(ctx, t)
			}
		}()
	}

	for _, t := range universe {
		select {
		case <-ctx.Done():
			close(tickers)
			wg.Wait()
			return
		case tickers <- t:
		}
	}
	close(tickers)
	wg.Wait()

	scanCycles.Inc()
	scanCycleDuration.Observe(time.Since(start).Seconds())
	w.stats.mu.Lock()
	w.stats.Cycles++
	w.stats.mu.Unlock()

	logger.Debug("Scan cycle complete",
		logger.Int("universe_size", len(universe)),
		logger.Duration("elapsed", time.Since(start)))
}

// getUniverse returns the cached top-N tickers, refreshing when stale.
func (w *Watcher) getUniverse(ctx context.Context) ([]marketdata.Ticker, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.universe != nil && time.Since(w.universeFetchedAt) < w.cfg.UniverseRefreshInterval {
		return w.universe, nil
	}

	tickers, err := w.provider.TopTickers(ctx, w.mdCfg.QuoteAsset, w.cfg.MaxSymbols)
	if err != nil {
		// Keep scanning a stale universe rather than skipping the cycle.
		if w.universe != nil {
			logger.Warn("Universe refresh failed, reusing previous universe",
				logger.ErrorField(err),
				logger.Int("size", len(w.universe)))
			return w.universe, nil
		}
		return nil, err
	}

	w.universe = tickers
	w.universeFetchedAt = time.Now()

	logger.Info("Symbol universe refreshed", logger.Int("size", len(tickers)))
	return tickers, nil
}

// scanSymbol runs the full per-symbol pipeline: snapshot, filter,
// dedup, enqueue. Failures are logged and counted, never propagated:
// one bad symbol must not abort the cycle.
func (w *Watcher) scanSymbol(ctx context.Context, ticker marketdata.Ticker) {
	symbolsScanned.Inc()
	w.stats.mu.Lock()
	w.stats.Scanned++
	w.stats.mu.Unlock()

	snapshot, err := w.builder.Build(ctx, ticker)
	if err != nil {
		fetchErrors.Inc()
		w.stats.mu.Lock()
		w.stats.FetchErrors++
		w.stats.mu.Unlock()
		logger.Warn("Failed to build snapshot",
			logger.String("symbol", ticker.Symbol),
			logger.ErrorField(err))
		return
	}

	result := w.filter.Evaluate(snapshot)
	if !result.Passed {
		return
	}

	candidatesFound.Inc()
	w.stats.mu.Lock()
	w.stats.Candidates++
	w.stats.mu.Unlock()

	logger.Info("Anomaly candidate detected",
		logger.String("symbol", snapshot.Symbol),
		logger.Float64("change_5m_pct", snapshot.PriceChange5mPct),
		logger.Float64("volume_multiplier", snapshot.VolumeMultiplier()))

	skip, err := w.shouldSkip(ctx, snapshot.Symbol)
	if err != nil {
		logger.Error("Dedup check failed",
			logger.String("symbol", snapshot.Symbol),
			logger.ErrorField(err))
		return
	}
	if skip {
		dedupSkips.Inc()
		w.stats.mu.Lock()
		w.stats.DedupSkips++
		w.stats.mu.Unlock()
		return
	}

	job, err := newJob(snapshot)
	if err != nil {
		logger.Error("Failed to build job",
			logger.String("symbol", snapshot.Symbol),
			logger.ErrorField(err))
		return
	}

	if err := w.store.InsertPending(ctx, job); err != nil {
		logger.Error("Failed to enqueue job",
			logger.String("symbol", snapshot.Symbol),
			logger.ErrorField(err))
		return
	}

	jobsEnqueued.Inc()
	w.stats.mu.Lock()
	w.stats.JobsEnqueued++
	w.stats.mu.Unlock()

	logger.Info("Analysis job enqueued",
		logger.String("symbol", snapshot.Symbol),
		logger.String("job_id", job.ID))
}

// shouldSkip reports whether the symbol already has an in-flight job or
// a completed analysis inside the dedup window.
func (w *Watcher) shouldSkip(ctx context.Context, symbol string) (bool, error) {
	if _, err := w.store.FindActive(ctx, symbol); err == nil {
		return true, nil
	} else if !errors.Is(err, models.ErrJobNotFound) {
		return false, err
	}

	if _, err := w.store.FindRecentCompleted(ctx, symbol, w.cfg.DedupWindow); err == nil {
		return true, nil
	} else if !errors.Is(err, models.ErrJobNotFound) {
		return false, err
	}

	return false, nil
}

// newJob captures the snapshot into a PENDING analysis job.
func newJob(snapshot *models.SymbolSnapshot) (*models.AnalysisJob, error) {
	orderbookJSON := ""
	if snapshot.Orderbook != nil {
		data, err := json.Marshal(snapshot.Orderbook)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize orderbook: %w", err)
		}
		orderbookJSON = string(data)
	}

	socialData, err := json.Marshal(models.NeutralSocialSnapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize social snapshot: %w", err)
	}

	return &models.AnalysisJob{
		ID:               uuid.New().String(),
		Symbol:           snapshot.Symbol,
		Status:           models.JobStatusPending,
		PriceAtDetection: snapshot.LastPrice,
		PriceChange5mPct: snapshot.PriceChange5mPct,
		PriceChange1mPct: snapshot.PriceChange1mPct,
		VolumeMultiplier: snapshot.VolumeMultiplier(),
		RSI:              snapshot.RSI,
		VolumeToMcap:     snapshot.VolumeToMarketCapRatio(),
		OrderbookJSON:    orderbookJSON,
		SocialJSON:       string(socialData),
		CreatedAt:        time.Now(),
	}, nil
}

// GetStats returns a copy of the watcher counters.
func (w *Watcher) GetStats() Stats {
	w.stats.mu.RLock()
	defer w.stats.mu.RUnlock()

	return Stats{
		Cycles:       w.stats.Cycles,
		Scanned:      w.stats.Scanned,
		FetchErrors:  w.stats.FetchErrors,
		Candidates:   w.stats.Candidates,
		JobsEnqueued: w.stats.JobsEnqueued,
		DedupSkips:   w.stats.DedupSkips,
	}
}
