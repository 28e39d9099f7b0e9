// Package notify decides which completed analyses deserve a user-facing
// alert and dispatches them onto the alert stream.
package notify

import (
	"fmt"
	"time"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

// Decide maps a completed analysis onto an alert, or nil when the
// result is not interesting enough to surface.
//
// Scores at or above the warning threshold always alert as warnings.
// Scores in the opportunity band alert only when the analyst attributed
// the move to a favorable scenario.
func Decide(job *models.AnalysisJob, cfg config.NotifyConfig) *models.AlertEvent {
	if job == nil || job.Status != models.JobStatusCompleted {
		return nil
	}

	score := job.FinalRiskScore

	if score >= cfg.WarningThreshold {
		return &models.AlertEvent{
			Symbol: job.Symbol,
			Kind:   models.AlertKindWarning,
			Score:  score,
			Message: fmt.Sprintf("High risk activity on %s (score %d): %s",
				job.Symbol, score, job.Summary),
			TriggeredAt: time.Now(),
		}
	}

	if score >= cfg.OpportunityMin && score <= cfg.OpportunityMax && isFavorable(job.LikelySource, cfg.FavorableScenarios) {
		return &models.AlertEvent{
			Symbol: job.Symbol,
			Kind:   models.AlertKindOpportunity,
			Score:  score,
			Message: fmt.Sprintf("Potential opportunity on %s (score %d, %s): %s",
				job.Symbol, score, job.LikelySource, job.Summary),
			TriggeredAt: time.Now(),
		}
	}

	return nil
}

func isFavorable(scenario string, favorable []string) bool {
	for _, s := range favorable {
		if s == scenario {
			return true
		}
	}
	return false
}
