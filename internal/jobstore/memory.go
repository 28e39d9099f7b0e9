package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

// MemoryStore is an in-memory Store used in tests and local development.
// It enforces the same lifecycle rules as the PostgreSQL implementation.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*models.AnalysisJob
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.AnalysisJob),
	}
}

// InsertPending persists a new job in PENDING state.
func (s *MemoryStore) InsertPending(ctx context.Context, job *models.AnalysisJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return models.ErrInvalidJobStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

// ClaimNextPending claims the oldest PENDING job under the store lock.
func (s *MemoryStore) ClaimNextPending(ctx context.Context) (*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *models.AnalysisJob
	for _, job := range s.jobs {
		if job.Status != models.JobStatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, models.ErrJobNotFound
	}

	oldest.Status = models.JobStatusProcessing
	clone := *oldest
	return &clone, nil
}

// SetBaseScore records the quantitative score on a PROCESSING job.
func (s *MemoryStore) SetBaseScore(ctx context.Context, jobID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.ErrJobNotFound
	}
	if job.Status != models.JobStatusProcessing {
		return models.ErrInvalidTransition
	}

	job.BaseRiskScore = score
	return nil
}

// UpdateResult finalizes a PROCESSING job as COMPLETED.
func (s *MemoryStore) UpdateResult(ctx context.Context, jobID string, result Result) error {
	return s.finalize(jobID, models.JobStatusCompleted, func(job *models.AnalysisJob) {
		job.FinalRiskScore = result.FinalRiskScore
		job.Summary = result.Summary
		job.LikelySource = result.LikelySource
		job.ActionableInsight = result.ActionableInsight
	})
}

// MarkCached finalizes a PROCESSING job as CACHED.
func (s *MemoryStore) MarkCached(ctx context.Context, jobID string, summary string) error {
	return s.finalize(jobID, models.JobStatusCached, func(job *models.AnalysisJob) {
		job.Summary = summary
	})
}

// MarkFailed finalizes a PROCESSING job as FAILED.
func (s *MemoryStore) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return s.finalize(jobID, models.JobStatusFailed, func(job *models.AnalysisJob) {
		job.Summary = reason
	})
}

func (s *MemoryStore) finalize(jobID string, to models.JobStatus, apply func(*models.AnalysisJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.ErrJobNotFound
	}
	if job.Status != models.JobStatusProcessing {
		return models.ErrInvalidTransition
	}

	job.Status = to
	apply(job)
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

// FindRecentCompleted returns the newest COMPLETED job for the symbol
// within the window.
func (s *MemoryStore) FindRecentCompleted(ctx context.Context, symbol string, window time.Duration) (*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-window)
	var newest *models.AnalysisJob
	for _, job := range s.jobs {
		if job.Symbol != symbol || job.Status != models.JobStatusCompleted {
			continue
		}
		if job.CompletedAt == nil || !job.CompletedAt.After(cutoff) {
			continue
		}
		if newest == nil || job.CompletedAt.After(*newest.CompletedAt) {
			newest = job
		}
	}
	if newest == nil {
		return nil, models.ErrJobNotFound
	}

	clone := *newest
	return &clone, nil
}

// FindActive returns an in-flight job for the symbol.
func (s *MemoryStore) FindActive(ctx context.Context, symbol string) (*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *models.AnalysisJob
	for _, job := range s.jobs {
		if job.Symbol != symbol {
			continue
		}
		if job.Status != models.JobStatusPending && job.Status != models.JobStatusProcessing {
			continue
		}
		if newest == nil || job.CreatedAt.After(newest.CreatedAt) {
			newest = job
		}
	}
	if newest == nil {
		return nil, models.ErrJobNotFound
	}

	clone := *newest
	return &clone, nil
}

// ListCompleted returns finished jobs, newest first.
func (s *MemoryStore) ListCompleted(ctx context.Context, limit int) ([]*models.AnalysisJob, error) {
	return s.listFinished(func(job *models.AnalysisJob) bool { return true }, limit), nil
}

// ListCompletedBySymbol returns finished jobs for one symbol, newest first.
func (s *MemoryStore) ListCompletedBySymbol(ctx context.Context, symbol string, limit int) ([]*models.AnalysisJob, error) {
	return s.listFinished(func(job *models.AnalysisJob) bool { return job.Symbol == symbol }, limit), nil
}

func (s *MemoryStore) listFinished(match func(*models.AnalysisJob) bool, limit int) []*models.AnalysisJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*models.AnalysisJob
	for _, job := range s.jobs {
		if job.Status != models.JobStatusCompleted && job.Status != models.JobStatusCached {
			continue
		}
		if !match(job) {
			continue
		}
		clone := *job
		jobs = append(jobs, &clone)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CompletedAt.After(*jobs[j].CompletedAt)
	})

	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// Get returns a copy of a job by ID. Test helper.
func (s *MemoryStore) Get(jobID string) (*models.AnalysisJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	clone := *job
	return &clone, true
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
