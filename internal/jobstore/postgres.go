package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
	"github.com/mohamedkhairy/anomaly-scanner/pkg/logger"
)

var (
	jobStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobstore_operations_total",
			Help: "Total number of job store operations",
		},
		[]string{"operation", "status"}, // status: "success" or "error"
	)

	jobStoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobstore_operation_latency_seconds",
			Help:    "Job store operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	jobStoreClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobstore_jobs_claimed_total",
			Help: "Total number of jobs claimed by workers",
		},
	)
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id                 UUID PRIMARY KEY,
	symbol             TEXT NOT NULL,
	status             TEXT NOT NULL,
	price_at_detection DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_change_5m    DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_change_1m    DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_multiplier  DOUBLE PRECISION NOT NULL DEFAULT 0,
	rsi                DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_to_mcap     DOUBLE PRECISION NOT NULL DEFAULT 0,
	orderbook_json     TEXT NOT NULL DEFAULT '',
	social_json        TEXT NOT NULL DEFAULT '',
	base_risk_score    INTEGER NOT NULL DEFAULT 0,
	final_risk_score   INTEGER NOT NULL DEFAULT 0,
	summary            TEXT NOT NULL DEFAULT '',
	likely_source      TEXT NOT NULL DEFAULT '',
	actionable_insight TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	completed_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status_created
	ON analysis_jobs (status, created_at);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_symbol_completed
	ON analysis_jobs (symbol, completed_at DESC);
`

const jobColumns = `id, symbol, status, price_at_detection, price_change_5m, price_change_1m,
	volume_multiplier, rsi, volume_to_mcap, orderbook_json, social_json,
	base_risk_score, final_risk_score, summary, likely_source, actionable_insight,
	created_at, completed_at`

// PostgresStore implements Store on PostgreSQL. Claiming relies on
// FOR UPDATE SKIP LOCKED so that concurrent workers never double-claim.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool, verifies connectivity and
// ensures the analysis_jobs schema exists.
func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Job store connected",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))

	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createTableSQL)
	return err
}

// InsertPending persists a new job in PENDING state.
func (s *PostgresStore) InsertPending(ctx context.Context, job *models.AnalysisJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return models.ErrInvalidJobStatus
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		job.ID, job.Symbol, job.Status,
		job.PriceAtDetection, job.PriceChange5mPct, job.PriceChange1mPct,
		job.VolumeMultiplier, job.RSI, job.VolumeToMcap,
		job.OrderbookJSON, job.SocialJSON,
		job.BaseRiskScore, job.FinalRiskScore,
		job.Summary, job.LikelySource, job.ActionableInsight,
		job.CreatedAt, job.CompletedAt,
	)
	s.observe("insert_pending", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert job for %s: %w", job.Symbol, err)
	}
	return nil
}

// ClaimNextPending atomically claims the oldest PENDING job.
// SKIP LOCKED lets concurrent workers pass over rows another
// transaction already holds instead of blocking on them.
func (s *PostgresStore) ClaimNextPending(ctx context.Context) (*models.AnalysisJob, error) {
	start := time.Now()
	row := s.db.QueryRowContext(ctx, `
		UPDATE analysis_jobs
		SET status = $1
		WHERE id = (
			SELECT id FROM analysis_jobs
			WHERE status = $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		models.JobStatusProcessing, models.JobStatusPending,
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.observe("claim", start, nil)
		return nil, models.ErrJobNotFound
	}
	s.observe("claim", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending job: %w", err)
	}

	jobStoreClaimed.Inc()
	return job, nil
}

// SetBaseScore records the quantitative score on a PROCESSING job.
func (s *PostgresStore) SetBaseScore(ctx context.Context, jobID string, score int) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET base_risk_score = $1
		WHERE id = $2 AND status = $3`,
		score, jobID, models.JobStatusProcessing,
	)
	s.observe("set_base_score", start, err)
	if err != nil {
		return fmt.Errorf("failed to set base score for job %s: %w", jobID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return s.transitionErr(ctx, jobID)
	}
	return nil
}

// UpdateResult finalizes a PROCESSING job as COMPLETED.
func (s *PostgresStore) UpdateResult(ctx context.Context, jobID string, result Result) error {
	return s.finalize(ctx, "update_result", jobID, models.JobStatusCompleted, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, `
			UPDATE analysis_jobs
			SET status = $1, final_risk_score = $2, summary = $3,
				likely_source = $4, actionable_insight = $5, completed_at = NOW()
			WHERE id = $6 AND status = $7`,
			models.JobStatusCompleted,
			result.FinalRiskScore, result.Summary, result.LikelySource, result.ActionableInsight,
			jobID, models.JobStatusProcessing,
		)
	})
}

// MarkCached finalizes a PROCESSING job as CACHED.
func (s *PostgresStore) MarkCached(ctx context.Context, jobID string, summary string) error {
	return s.finalize(ctx, "mark_cached", jobID, models.JobStatusCached, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, `
			UPDATE analysis_jobs
			SET status = $1, summary = $2, completed_at = NOW()
			WHERE id = $3 AND status = $4`,
			models.JobStatusCached, summary,
			jobID, models.JobStatusProcessing,
		)
	})
}

// MarkFailed finalizes a PROCESSING job as FAILED.
func (s *PostgresStore) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return s.finalize(ctx, "mark_failed", jobID, models.JobStatusFailed, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, `
			UPDATE analysis_jobs
			SET status = $1, summary = $2, completed_at = NOW()
			WHERE id = $3 AND status = $4`,
			models.JobStatusFailed, reason,
			jobID, models.JobStatusProcessing,
		)
	})
}

func (s *PostgresStore) finalize(ctx context.Context, op, jobID string, to models.JobStatus, exec func() (sql.Result, error)) error {
	start := time.Now()
	res, err := exec()
	s.observe(op, start, err)
	if err != nil {
		return fmt.Errorf("failed to mark job %s as %s: %w", jobID, to, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return s.transitionErr(ctx, jobID)
	}
	return nil
}

// transitionErr resolves a zero-row guarded update: the job is either
// missing or not in PROCESSING state.
func (s *PostgresStore) transitionErr(ctx context.Context, jobID string) error {
	var status models.JobStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM analysis_jobs WHERE id = $1`, jobID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect job %s: %w", jobID, err)
	}
	return models.ErrInvalidTransition
}

// FindRecentCompleted returns the newest COMPLETED job for the symbol
// within the dedup window.
func (s *PostgresStore) FindRecentCompleted(ctx context.Context, symbol string, window time.Duration) (*models.AnalysisJob, error) {
	start := time.Now()
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM analysis_jobs
		WHERE symbol = $1 AND status = $2 AND completed_at > $3
		ORDER BY completed_at DESC
		LIMIT 1`,
		symbol, models.JobStatusCompleted, time.Now().Add(-window),
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.observe("find_recent_completed", start, nil)
		return nil, models.ErrJobNotFound
	}
	s.observe("find_recent_completed", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent completed job for %s: %w", symbol, err)
	}
	return job, nil
}

// FindActive returns an in-flight (PENDING or PROCESSING) job for the symbol.
func (s *PostgresStore) FindActive(ctx context.Context, symbol string) (*models.AnalysisJob, error) {
	start := time.Now()
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM analysis_jobs
		WHERE symbol = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1`,
		symbol, models.JobStatusPending, models.JobStatusProcessing,
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.observe("find_active", start, nil)
		return nil, models.ErrJobNotFound
	}
	s.observe("find_active", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to find active job for %s: %w", symbol, err)
	}
	return job, nil
}

// ListCompleted returns finished jobs, newest first.
func (s *PostgresStore) ListCompleted(ctx context.Context, limit int) ([]*models.AnalysisJob, error) {
	return s.list(ctx, `
		SELECT `+jobColumns+`
		FROM analysis_jobs
		WHERE status IN ($1, $2)
		ORDER BY completed_at DESC
		LIMIT $3`,
		models.JobStatusCompleted, models.JobStatusCached, limit,
	)
}

// ListCompletedBySymbol returns finished jobs for one symbol, newest first.
func (s *PostgresStore) ListCompletedBySymbol(ctx context.Context, symbol string, limit int) ([]*models.AnalysisJob, error) {
	return s.list(ctx, `
		SELECT `+jobColumns+`
		FROM analysis_jobs
		WHERE symbol = $1 AND status IN ($2, $3)
		ORDER BY completed_at DESC
		LIMIT $4`,
		symbol, models.JobStatusCompleted, models.JobStatusCached, limit,
	)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*models.AnalysisJob, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.observe("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}
	return jobs, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) observe(op string, start time.Time, err error) {
	jobStoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	jobStoreOps.WithLabelValues(op, status).Inc()
}

// scanner abstracts *sql.Row and *sql.Rows for scanJob.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	var completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.Symbol, &job.Status,
		&job.PriceAtDetection, &job.PriceChange5mPct, &job.PriceChange1mPct,
		&job.VolumeMultiplier, &job.RSI, &job.VolumeToMcap,
		&job.OrderbookJSON, &job.SocialJSON,
		&job.BaseRiskScore, &job.FinalRiskScore,
		&job.Summary, &job.LikelySource, &job.ActionableInsight,
		&job.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
