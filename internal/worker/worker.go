// Package worker implements the analysis worker: it claims pending
// jobs, applies the dedup cache, computes the quantitative base score,
// consults the analyst and persists the final verdict. One job is in
// flight per worker instance; scaling out means running more instances
// against the same job store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/anomaly-scanner/internal/analyst"
	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/jobstore"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
	"github.com/mohamedkhairy/anomaly-scanner/internal/notify"
	"github.com/mohamedkhairy/anomaly-scanner/internal/scoring"
	"github.com/mohamedkhairy/anomaly-scanner/pkg/logger"
)

var (
	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Total number of jobs finalized, by terminal status",
		},
		[]string{"status"},
	)

	analystCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_analyst_calls_total",
			Help: "Total number of analyst consultations",
		},
		[]string{"outcome"}, // "ok", "degraded", "error"
	)

	jobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Time spent processing one job, claim to terminal state",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// Stats holds counters for one worker instance.
type Stats struct {
	Completed int64
	Cached    int64
	Failed    int64
	Degraded  int64
	mu        sync.RWMutex
}

// Worker runs the claim-and-analyze loop.
type Worker struct {
	store      jobstore.Store
	engine     *scoring.Engine
	analyst    analyst.Analyst
	dispatcher *notify.Dispatcher
	cfg        config.WorkerConfig

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stats   Stats
}

// New creates a worker wired to the given store, scorer, analyst and
// dispatcher. The dispatcher may be nil when alerting is disabled.
func New(store jobstore.Store, engine *scoring.Engine, a analyst.Analyst, dispatcher *notify.Dispatcher, cfg config.WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		store:      store,
		engine:     engine,
		analyst:    a,
		dispatcher: dispatcher,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the poll loop.
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	logger.Info("Starting analysis worker",
		logger.String("worker_id", w.cfg.WorkerID),
		logger.Duration("poll_interval", w.cfg.PollInterval))

	w.wg.Add(1)
	go w.pollLoop()

	return nil
}

// Stop stops the poll loop and waits for the in-flight job to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	logger.Info("Analysis worker stopped")
}

func (w *Worker) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue on each tick instead of processing a
			// single job per interval.
			for w.ProcessNext(w.ctx) {
				if w.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// ProcessNext claims and processes one job. It reports whether a job
// was claimed, so callers can drain the queue. A claimed job always
// reaches a terminal state before this returns.
func (w *Worker) ProcessNext(ctx context.Context) bool {
	job, err := w.store.ClaimNextPending(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrJobNotFound) {
			logger.Error("Failed to claim job", logger.ErrorField(err))
		}
		return false
	}

	start := time.Now()
	w.process(ctx, job)
	jobDuration.Observe(time.Since(start).Seconds())
	return true
}

func (w *Worker) process(ctx context.Context, job *models.AnalysisJob) {
	log := logger.Get().With(
		logger.String("job_id", job.ID),
		logger.String("symbol", job.Symbol),
	)

	// Dedup: an analysis completed moments ago still answers this job.
	if recent, err := w.store.FindRecentCompleted(ctx, job.Symbol, w.cfg.DedupWindow); err == nil {
		summary := fmt.Sprintf("Duplicate of analysis %s completed at %s",
			recent.ID, recent.CompletedAt.UTC().Format(time.RFC3339))
		if err := w.store.MarkCached(ctx, job.ID, summary); err != nil {
			log.Error("Failed to mark job cached", logger.ErrorField(err))
			w.fail(ctx, job, fmt.Sprintf("cache finalize failed: %v", err))
			return
		}
		jobsProcessed.WithLabelValues(string(models.JobStatusCached)).Inc()
		w.stats.mu.Lock()
		w.stats.Cached++
		w.stats.mu.Unlock()
		log.Info("Job resolved from recent analysis", logger.String("source_job", recent.ID))
		return
	} else if !errors.Is(err, models.ErrJobNotFound) {
		w.fail(ctx, job, fmt.Sprintf("dedup lookup failed: %v", err))
		return
	}

	breakdown := w.engine.Score(scoring.FromJob(job))
	log.Info("Base risk score computed",
		logger.Int("base_score", breakdown.Score),
		logger.Any("triggers", breakdown.Triggers))

	// Record the score before the analyst call so a later failure
	// still leaves it on the row.
	if err := w.store.SetBaseScore(ctx, job.ID, breakdown.Score); err != nil {
		w.fail(ctx, job, fmt.Sprintf("base score persist failed: %v", err))
		return
	}
	job.BaseRiskScore = breakdown.Score

	result, err := w.analyst.Analyze(ctx, analyst.Request{
		Symbol:           job.Symbol,
		PriceAtDetection: job.PriceAtDetection,
		PriceChange5mPct: job.PriceChange5mPct,
		PriceChange1mPct: job.PriceChange1mPct,
		VolumeMultiplier: job.VolumeMultiplier,
		RSI:              job.RSI,
		VolumeToMcap:     job.VolumeToMcap,
		BaseRiskScore:    breakdown.Score,
		Triggers:         breakdown.Triggers,
		Orderbook:        job.Orderbook(),
		Social:           job.Social(),
	})
	if err != nil {
		analystCalls.WithLabelValues("error").Inc()
		w.fail(ctx, job, fmt.Sprintf("analyst unavailable: %v", err))
		return
	}

	if result.Degraded {
		analystCalls.WithLabelValues("degraded").Inc()
		w.stats.mu.Lock()
		w.stats.Degraded++
		w.stats.mu.Unlock()
	} else {
		analystCalls.WithLabelValues("ok").Inc()
	}

	// Persist with a fresh context: the analysis is done and must not
	// be lost to a caller timeout.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = w.store.UpdateResult(persistCtx, job.ID, jobstore.Result{
		FinalRiskScore:    result.FinalRiskScore,
		Summary:           result.Verdict,
		LikelySource:      result.LikelyScenario,
		ActionableInsight: result.ShortComment,
	})
	if err != nil {
		log.Error("Failed to persist analysis result", logger.ErrorField(err))
		w.fail(persistCtx, job, fmt.Sprintf("result persist failed: %v", err))
		return
	}

	jobsProcessed.WithLabelValues(string(models.JobStatusCompleted)).Inc()
	w.stats.mu.Lock()
	w.stats.Completed++
	w.stats.mu.Unlock()

	log.Info("Analysis completed",
		logger.Int("final_score", result.FinalRiskScore),
		logger.String("verdict", result.Verdict),
		logger.String("scenario", result.LikelyScenario),
		logger.Bool("degraded", result.Degraded))

	if w.dispatcher != nil {
		completed := *job
		completed.Status = models.JobStatusCompleted
		completed.FinalRiskScore = result.FinalRiskScore
		completed.Summary = result.Verdict
		completed.LikelySource = result.LikelyScenario
		completed.ActionableInsight = result.ShortComment

		if _, err := w.dispatcher.Dispatch(persistCtx, &completed); err != nil {
			// Alerting is best effort; the analysis itself is safe.
			log.Warn("Failed to dispatch alert", logger.ErrorField(err))
		}
	}
}

// fail moves a claimed job to FAILED. A fresh context is used so the
// failure is recorded even when the triggering context is dead.
func (w *Worker) fail(ctx context.Context, job *models.AnalysisJob, reason string) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	if err := w.store.MarkFailed(ctx, job.ID, reason); err != nil {
		logger.Error("Failed to mark job failed",
			logger.String("job_id", job.ID),
			logger.ErrorField(err))
		return
	}

	jobsProcessed.WithLabelValues(string(models.JobStatusFailed)).Inc()
	w.stats.mu.Lock()
	w.stats.Failed++
	w.stats.mu.Unlock()

	logger.Warn("Job failed",
		logger.String("job_id", job.ID),
		logger.String("symbol", job.Symbol),
		logger.String("reason", reason))
}

// GetStats returns a copy of the worker counters.
func (w *Worker) GetStats() Stats {
	w.stats.mu.RLock()
	defer w.stats.mu.RUnlock()

	return Stats{
		Completed: w.stats.Completed,
		Cached:    w.stats.Cached,
		Failed:    w.stats.Failed,
		Degraded:  w.stats.Degraded,
	}
}
