package notify

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
	"github.com/mohamedkhairy/anomaly-scanner/internal/pubsub"
	"github.com/mohamedkhairy/anomaly-scanner/pkg/logger"
)

var (
	alertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_alerts_dispatched_total",
			Help: "Total number of alerts published to the alert stream",
		},
		[]string{"kind"},
	)

	alertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by cooldown",
		},
		[]string{"kind"},
	)

	alertErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_alert_errors_total",
			Help: "Total number of alert publish failures",
		},
	)
)

// Dispatcher publishes alert events to the alert stream with a
// per-symbol, per-kind cooldown so a volatile symbol cannot flood
// downstream consumers.
type Dispatcher struct {
	publisher pubsub.Publisher
	cfg       config.NotifyConfig
}

// NewDispatcher creates a dispatcher on the given transport.
func NewDispatcher(publisher pubsub.Publisher, cfg config.NotifyConfig) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		cfg:       cfg,
	}
}

// Dispatch evaluates a completed job and, when it qualifies, publishes
// the alert unless the symbol/kind pair is cooling down. Returns the
// published event, or nil when nothing was sent.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.AnalysisJob) (*models.AlertEvent, error) {
	event := Decide(job, d.cfg)
	if event == nil {
		return nil, nil
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to dispatch invalid alert: %w", err)
	}

	key := cooldownKey(event)
	onCooldown, err := d.publisher.IsOnCooldown(ctx, key)
	if err != nil {
		alertErrors.Inc()
		return nil, fmt.Errorf("failed to check alert cooldown: %w", err)
	}
	if onCooldown {
		alertsSuppressed.WithLabelValues(string(event.Kind)).Inc()
		logger.Debug("Alert suppressed by cooldown",
			logger.String("symbol", event.Symbol),
			logger.String("kind", string(event.Kind)))
		return nil, nil
	}

	if err := d.publisher.PublishToStream(ctx, d.cfg.StreamName, "alert", event); err != nil {
		alertErrors.Inc()
		return nil, fmt.Errorf("failed to publish alert for %s: %w", event.Symbol, err)
	}

	if err := d.publisher.SetCooldown(ctx, key, d.cfg.CooldownTTL); err != nil {
		// The alert went out; a failed cooldown write only risks a
		// duplicate later, so log and carry on.
		logger.Warn("Failed to arm alert cooldown",
			logger.String("symbol", event.Symbol),
			logger.ErrorField(err))
	}

	alertsDispatched.WithLabelValues(string(event.Kind)).Inc()
	logger.Info("Alert dispatched",
		logger.String("symbol", event.Symbol),
		logger.String("kind", string(event.Kind)),
		logger.Int("score", event.Score))

	return event, nil
}

func cooldownKey(event *models.AlertEvent) string {
	return fmt.Sprintf("alert:cooldown:%s:%s", event.Symbol, event.Kind)
}
