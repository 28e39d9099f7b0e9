// Package scoring implements the quantitative risk-scoring layer.
// It turns the features captured for an anomaly into a base risk score
// that seeds the qualitative analysis stage.
package scoring

import (
	"fmt"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

// MaxScore is the upper bound of the risk scale.
const MaxScore = 100

// Features are the scoring inputs. The Has* flags mark inputs that were
// actually measured; an absent input never fires its rule.
type Features struct {
	RSI            float64
	HasRSI         bool
	BidAskRatio    float64
	HasBidAskRatio bool
	VolumeToMcap   float64
	Change1mPct    float64

	// Carried for diagnostics only
	Change5mPct      float64
	VolumeMultiplier float64
}

// FromSnapshot extracts scoring features from a live snapshot.
func FromSnapshot(snapshot *models.SymbolSnapshot) Features {
	f := Features{
		RSI:              snapshot.RSI,
		HasRSI:           snapshot.RSIReady,
		VolumeToMcap:     snapshot.VolumeToMarketCapRatio(),
		Change1mPct:      snapshot.PriceChange1mPct,
		Change5mPct:      snapshot.PriceChange5mPct,
		VolumeMultiplier: snapshot.VolumeMultiplier(),
	}
	if ratio, ok := snapshot.Orderbook.BidAskRatio(); ok {
		f.BidAskRatio = ratio
		f.HasBidAskRatio = true
	}
	return f
}

// FromJob extracts scoring features from the fields captured on a
// stored analysis job. A zero RSI means the indicator window had not
// filled at detection time.
func FromJob(job *models.AnalysisJob) Features {
	f := Features{
		RSI:              job.RSI,
		HasRSI:           job.RSI > 0,
		VolumeToMcap:     job.VolumeToMcap,
		Change1mPct:      job.PriceChange1mPct,
		Change5mPct:      job.PriceChange5mPct,
		VolumeMultiplier: job.VolumeMultiplier,
	}
	if ratio, ok := job.Orderbook().BidAskRatio(); ok {
		f.BidAskRatio = ratio
		f.HasBidAskRatio = true
	}
	return f
}

// Engine computes base risk scores. Each rule contributes a fixed
// number of points when its condition holds; the sum is clamped to
// [0, MaxScore].
type Engine struct {
	cfg config.ScoringConfig
}

// Breakdown is the result of scoring one anomaly. Triggers lists a
// human-readable entry per fired rule and Features echoes the raw
// inputs so the qualitative stage sees exactly what was measured.
type Breakdown struct {
	Score    int
	Triggers []string
	Features map[string]float64
}

// NewEngine creates a scoring engine with the given rule weights.
func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Score evaluates every scoring rule against the features.
func (e *Engine) Score(f Features) Breakdown {
	breakdown := Breakdown{
		Triggers: []string{},
		Features: map[string]float64{
			"price_change_1m_pct": f.Change1mPct,
			"price_change_5m_pct": f.Change5mPct,
			"volume_multiplier":   f.VolumeMultiplier,
			"volume_to_mcap":      f.VolumeToMcap,
		},
	}

	if f.HasRSI {
		breakdown.Features["rsi"] = f.RSI
		if f.RSI > e.cfg.RSIOverbought {
			breakdown.Score += e.cfg.RSIPoints
			breakdown.Triggers = append(breakdown.Triggers, fmt.Sprintf(
				"RSI %.1f above overbought threshold %.1f", f.RSI, e.cfg.RSIOverbought))
		}
	}

	if f.HasBidAskRatio {
		breakdown.Features["bid_ask_ratio"] = f.BidAskRatio
		if f.BidAskRatio < e.cfg.ThinBookRatio {
			breakdown.Score += e.cfg.ThinBookPoints
			breakdown.Triggers = append(breakdown.Triggers, fmt.Sprintf(
				"thin bid support: bid/ask ratio %.2f below %.2f", f.BidAskRatio, e.cfg.ThinBookRatio))
		}
	}

	if f.VolumeToMcap > e.cfg.VolumeToMcapRatio {
		breakdown.Score += e.cfg.VolumeToMcapPoints
		breakdown.Triggers = append(breakdown.Triggers, fmt.Sprintf(
			"volume/mcap ratio %.2f above %.2f", f.VolumeToMcap, e.cfg.VolumeToMcapRatio))
	}

	if f.Change1mPct > e.cfg.Spike1mThresholdPct {
		breakdown.Score += e.cfg.Spike1mPoints
		breakdown.Triggers = append(breakdown.Triggers, fmt.Sprintf(
			"1m spike %.2f%% above %.2f%%", f.Change1mPct, e.cfg.Spike1mThresholdPct))
	}

	breakdown.Score = Clamp(breakdown.Score)
	return breakdown
}

// Clamp bounds a score to the [0, MaxScore] scale.
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
