// Package filter implements the mechanical pre-selection layer.
// It is a cheap, deterministic gate that runs on every scanned symbol
// before any scoring or external analysis is attempted.
package filter

import (
	"fmt"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

// Filter evaluates snapshots against the mechanical thresholds.
// All conditions must hold for a symbol to become an analysis candidate.
type Filter struct {
	cfg config.FilterConfig
}

// Result describes the outcome of a single evaluation. When the snapshot
// does not pass, Reasons lists every failed condition for debug logging.
type Result struct {
	Passed  bool
	Reasons []string
}

// New creates a filter with the given thresholds.
func New(cfg config.FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Evaluate applies the mechanical conditions to a snapshot:
// the 5-minute price change must exceed the configured threshold,
// current volume must exceed the multiplier of the rolling average,
// and the estimated market cap must clear the floor.
func (f *Filter) Evaluate(snapshot *models.SymbolSnapshot) Result {
	if snapshot == nil {
		return Result{Passed: false, Reasons: []string{"nil snapshot"}}
	}

	var reasons []string

	if snapshot.PriceChange5mPct <= f.cfg.PriceChangeThresholdPct {
		reasons = append(reasons, fmt.Sprintf(
			"5m change %.2f%% <= threshold %.2f%%",
			snapshot.PriceChange5mPct, f.cfg.PriceChangeThresholdPct))
	}

	multiplier := snapshot.VolumeMultiplier()
	if multiplier <= f.cfg.VolumeMultiplierThreshold {
		reasons = append(reasons, fmt.Sprintf(
			"volume multiplier %.2fx <= threshold %.2fx",
			multiplier, f.cfg.VolumeMultiplierThreshold))
	}

	if snapshot.MarketCapEstimate <= f.cfg.MarketCapFloorUSD {
		reasons = append(reasons, fmt.Sprintf(
			"market cap estimate $%.0f <= floor $%.0f",
			snapshot.MarketCapEstimate, f.cfg.MarketCapFloorUSD))
	}

	return Result{
		Passed:  len(reasons) == 0,
		Reasons: reasons,
	}
}
