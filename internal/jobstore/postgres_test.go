package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

// Note: Full integration tests for the PostgreSQL store require a real database
// and should be run separately with a test instance. The lifecycle semantics
// shared with PostgresStore are covered by the MemoryStore tests; here we test
// the validation paths that run before any query is issued.

func TestPostgresStore_InsertValidation(t *testing.T) {
	store := &PostgresStore{}
	ctx := context.Background()

	tests := []struct {
		name    string
		job     *models.AnalysisJob
		wantErr error
	}{
		{
			name:    "missing ID",
			job:     &models.AnalysisJob{Symbol: "BTCUSDT", Status: models.JobStatusPending, CreatedAt: time.Now()},
			wantErr: models.ErrInvalidJobID,
		},
		{
			name:    "missing symbol",
			job:     &models.AnalysisJob{ID: "a", Status: models.JobStatusPending, CreatedAt: time.Now()},
			wantErr: models.ErrInvalidSymbol,
		},
		{
			name:    "zero timestamp",
			job:     &models.AnalysisJob{ID: "a", Symbol: "BTCUSDT", Status: models.JobStatusPending},
			wantErr: models.ErrInvalidTimestamp,
		},
		{
			name:    "wrong initial status",
			job:     &models.AnalysisJob{ID: "a", Symbol: "BTCUSDT", Status: models.JobStatusProcessing, CreatedAt: time.Now()},
			wantErr: models.ErrInvalidJobStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.InsertPending(ctx, tt.job)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
