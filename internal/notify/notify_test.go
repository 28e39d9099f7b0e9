package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
	"github.com/mohamedkhairy/anomaly-scanner/internal/pubsub"
)

func notifyConfig() config.NotifyConfig {
	return config.NotifyConfig{
		StreamName:         "alerts:stream",
		CooldownTTL:        5 * time.Minute,
		WarningThreshold:   75,
		OpportunityMin:     60,
		OpportunityMax:     74,
		FavorableScenarios: []string{"Organic Breakout", "Short Squeeze"},
	}
}

func completedJob(score int, scenario string) *models.AnalysisJob {
	now := time.Now()
	return &models.AnalysisJob{
		ID:             "job-1",
		Symbol:         "PEPEUSDT",
		Status:         models.JobStatusCompleted,
		FinalRiskScore: score,
		Summary:        "test summary",
		LikelySource:   scenario,
		CreatedAt:      now.Add(-time.Minute),
		CompletedAt:    &now,
	}
}

func TestDecide(t *testing.T) {
	cfg := notifyConfig()

	tests := []struct {
		name     string
		job      *models.AnalysisJob
		wantKind models.AlertKind
		wantNil  bool
	}{
		{
			name:     "warning at threshold",
			job:      completedJob(75, "Pump and Dump"),
			wantKind: models.AlertKindWarning,
		},
		{
			name:     "warning well above threshold",
			job:      completedJob(95, "Pump and Dump"),
			wantKind: models.AlertKindWarning,
		},
		{
			name:     "opportunity with favorable scenario",
			job:      completedJob(65, "Organic Breakout"),
			wantKind: models.AlertKindOpportunity,
		},
		{
			name:     "opportunity band upper edge",
			job:      completedJob(74, "Short Squeeze"),
			wantKind: models.AlertKindOpportunity,
		},
		{
			name:    "opportunity band with unfavorable scenario",
			job:     completedJob(65, "Pump and Dump"),
			wantNil: true,
		},
		{
			name:    "below both bands",
			job:     completedJob(40, "Organic Breakout"),
			wantNil: true,
		},
		{
			name:    "nil job",
			job:     nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := Decide(tt.job, cfg)
			if tt.wantNil {
				assert.Nil(t, event)
				return
			}
			require.NotNil(t, event)
			assert.Equal(t, tt.wantKind, event.Kind)
			assert.Equal(t, tt.job.FinalRiskScore, event.Score)
			assert.Equal(t, "PEPEUSDT", event.Symbol)
			assert.NotEmpty(t, event.Message)
		})
	}
}

func TestDecide_IgnoresNonCompletedJobs(t *testing.T) {
	cfg := notifyConfig()

	for _, status := range []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusProcessing,
		models.JobStatusFailed,
		models.JobStatusCached,
	} {
		job := completedJob(95, "Pump and Dump")
		job.Status = status
		assert.Nil(t, Decide(job, cfg), "status %s must not alert", status)
	}
}

func TestDispatch_PublishesAndArmsCooldown(t *testing.T) {
	publisher := pubsub.NewMemoryPublisher()
	dispatcher := NewDispatcher(publisher, notifyConfig())

	event, err := dispatcher.Dispatch(context.Background(), completedJob(80, "Pump and Dump"))
	require.NoError(t, err)
	require.NotNil(t, event)

	published := publisher.Published("alerts:stream")
	require.Len(t, published, 1)

	var payload models.AlertEvent
	require.NoError(t, json.Unmarshal([]byte(published[0]), &payload))
	assert.Equal(t, "PEPEUSDT", payload.Symbol)
	assert.Equal(t, models.AlertKindWarning, payload.Kind)
	assert.Equal(t, 80, payload.Score)

	// Second dispatch for the same symbol/kind is suppressed
	event, err = dispatcher.Dispatch(context.Background(), completedJob(90, "Pump and Dump"))
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Len(t, publisher.Published("alerts:stream"), 1)
}

func TestDispatch_CooldownIsPerKind(t *testing.T) {
	publisher := pubsub.NewMemoryPublisher()
	dispatcher := NewDispatcher(publisher, notifyConfig())

	_, err := dispatcher.Dispatch(context.Background(), completedJob(80, "Pump and Dump"))
	require.NoError(t, err)

	// An opportunity for the same symbol uses a different cooldown key
	event, err := dispatcher.Dispatch(context.Background(), completedJob(65, "Organic Breakout"))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, models.AlertKindOpportunity, event.Kind)
	assert.Len(t, publisher.Published("alerts:stream"), 2)
}

func TestDispatch_QuietJobPublishesNothing(t *testing.T) {
	publisher := pubsub.NewMemoryPublisher()
	dispatcher := NewDispatcher(publisher, notifyConfig())

	event, err := dispatcher.Dispatch(context.Background(), completedJob(30, "Organic Breakout"))
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Empty(t, publisher.Published("alerts:stream"))
}

func TestDispatch_PublishFailure(t *testing.T) {
	publisher := pubsub.NewMemoryPublisher()
	publisher.FailNext(errors.New("stream unavailable"))
	dispatcher := NewDispatcher(publisher, notifyConfig())

	_, err := dispatcher.Dispatch(context.Background(), completedJob(80, "Pump and Dump"))
	require.Error(t, err)

	// Cooldown must not be armed for a failed publish
	event, err := dispatcher.Dispatch(context.Background(), completedJob(80, "Pump and Dump"))
	require.NoError(t, err)
	assert.NotNil(t, event)
}
