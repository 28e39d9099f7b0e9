// Package jobstore persists analysis jobs and coordinates the handoff
// between the market watcher (producer) and the analysis workers
// (consumers). The store is the single source of truth for the job
// lifecycle: PENDING -> PROCESSING -> COMPLETED | FAILED | CACHED.
package jobstore

import (
	"context"
	"time"

	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

// Result carries the outcome of a finished analysis back into the store.
type Result struct {
	FinalRiskScore    int
	Summary           string
	LikelySource      string
	ActionableInsight string
}

// Store is the persistence interface for analysis jobs.
//
// ClaimNextPending must be safe under concurrent callers: two workers
// claiming at the same time must never receive the same job.
type Store interface {
	// InsertPending persists a new job in PENDING state.
	InsertPending(ctx context.Context, job *models.AnalysisJob) error

	// ClaimNextPending atomically selects the oldest PENDING job,
	// moves it to PROCESSING and returns it. Returns
	// models.ErrJobNotFound when the queue is empty.
	ClaimNextPending(ctx context.Context) (*models.AnalysisJob, error)

	// SetBaseScore records the quantitative risk score on a PROCESSING
	// job. It runs before the analyst call so the score survives even
	// when the job later fails.
	SetBaseScore(ctx context.Context, jobID string, score int) error

	// UpdateResult finalizes a PROCESSING job as COMPLETED with the
	// analysis outcome and sets its completion timestamp.
	UpdateResult(ctx context.Context, jobID string, result Result) error

	// MarkCached finalizes a PROCESSING job as CACHED, pointing the
	// summary at an earlier completed analysis for the same symbol.
	MarkCached(ctx context.Context, jobID string, summary string) error

	// MarkFailed finalizes a PROCESSING job as FAILED with the error
	// description in the summary field.
	MarkFailed(ctx context.Context, jobID string, reason string) error

	// FindRecentCompleted returns the most recent COMPLETED job for
	// the symbol completed within the window, or models.ErrJobNotFound.
	FindRecentCompleted(ctx context.Context, symbol string, window time.Duration) (*models.AnalysisJob, error)

	// FindActive returns an existing PENDING or PROCESSING job for the
	// symbol, or models.ErrJobNotFound. Used by the watcher to avoid
	// enqueueing duplicates while a job is still in flight.
	FindActive(ctx context.Context, symbol string) (*models.AnalysisJob, error)

	// ListCompleted returns finished jobs (COMPLETED and CACHED),
	// newest first, up to limit.
	ListCompleted(ctx context.Context, limit int) ([]*models.AnalysisJob, error)

	// ListCompletedBySymbol returns finished jobs for one symbol,
	// newest first, up to limit.
	ListCompletedBySymbol(ctx context.Context, symbol string, limit int) ([]*models.AnalysisJob, error)

	// Close releases the underlying resources.
	Close() error
}
