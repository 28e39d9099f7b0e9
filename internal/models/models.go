package models

import (
	"encoding/json"
	"time"
)

// SymbolSnapshot is the per-cycle view of one symbol's market state.
// It is built by the watcher from ticker, kline and depth data, consumed
// by the mechanical filter and risk scorer, and never persisted as-is.
type SymbolSnapshot struct {
	Symbol            string             `json:"symbol"`
	LastPrice         float64            `json:"last_price"`
	PriceChange1mPct  float64            `json:"price_change_1m_pct"`
	PriceChange5mPct  float64            `json:"price_change_5m_pct"`
	QuoteVolume       float64            `json:"quote_volume"`     // Quote volume of the latest closed 1m candle
	AvgQuoteVolume    float64            `json:"avg_quote_volume"` // Mean quote volume of the last 20 closed candles
	MarketCapEstimate float64            `json:"market_cap_estimate"`
	RSI               float64            `json:"rsi"`
	RSIReady          bool               `json:"rsi_ready"`
	Orderbook         *OrderbookSnapshot `json:"orderbook,omitempty"`
	CapturedAt        time.Time          `json:"captured_at"`
}

// VolumeMultiplier returns current volume relative to the rolling average.
func (s *SymbolSnapshot) VolumeMultiplier() float64 {
	if s.AvgQuoteVolume <= 0 {
		return 0
	}
	return s.QuoteVolume / s.AvgQuoteVolume
}

// VolumeToMarketCapRatio returns volume relative to the market cap estimate.
func (s *SymbolSnapshot) VolumeToMarketCapRatio() float64 {
	if s.MarketCapEstimate <= 0 {
		return 0
	}
	return s.QuoteVolume / s.MarketCapEstimate
}

// Validate validates a SymbolSnapshot
func (s *SymbolSnapshot) Validate() error {
	if s.Symbol == "" {
		return ErrInvalidSymbol
	}
	if s.LastPrice <= 0 {
		return ErrInvalidPrice
	}
	if s.CapturedAt.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// OrderbookSnapshot summarizes book liquidity within +/-2% of the mid price.
type OrderbookSnapshot struct {
	TotalBidsUSD float64 `json:"total_bids_usd"`
	TotalAsksUSD float64 `json:"total_asks_usd"`
	DepthUSD     float64 `json:"depth_usd"`
	IsThin       bool    `json:"is_thin"`
}

// BidAskRatio returns total bid value over total ask value.
// Returns 0 and false when the ask side is empty.
func (o *OrderbookSnapshot) BidAskRatio() (float64, bool) {
	if o == nil || o.TotalAsksUSD <= 0 {
		return 0, false
	}
	return o.TotalBidsUSD / o.TotalAsksUSD, true
}

// SocialSnapshot captures social/sentiment context at detection time.
// The pipeline currently fills it with a neutral default; a real social
// feed is an external collaborator.
type SocialSnapshot struct {
	MentionIncreasePercent float64 `json:"mention_increase_percent"`
	Sentiment              string  `json:"sentiment"`
}

// NeutralSocialSnapshot returns the default social context used when no
// social feed is wired in.
func NeutralSocialSnapshot() SocialSnapshot {
	return SocialSnapshot{MentionIncreasePercent: 0, Sentiment: "neutral"}
}

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCached     JobStatus = "CACHED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCached:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status machine allows moving from s to next.
// PENDING -> PROCESSING -> {COMPLETED, FAILED, CACHED}
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCached
	}
	return false
}

// AnalysisJob is the durable work item that decouples detection from analysis.
// It is created by the watcher in PENDING state and mutated only by the worker.
type AnalysisJob struct {
	ID                string     `json:"id"`
	Symbol            string     `json:"symbol"`
	Status            JobStatus  `json:"status"`
	PriceAtDetection  float64    `json:"price_at_detection"`
	PriceChange5mPct  float64    `json:"price_change_5m_pct"`
	PriceChange1mPct  float64    `json:"price_change_1m_pct"`
	VolumeMultiplier  float64    `json:"volume_multiplier"`
	RSI               float64    `json:"rsi"`
	VolumeToMcap      float64    `json:"volume_to_mcap"`
	OrderbookJSON     string     `json:"orderbook_json"`
	SocialJSON        string     `json:"social_json"`
	BaseRiskScore     int        `json:"base_risk_score"`
	FinalRiskScore    int        `json:"final_risk_score"`
	Summary           string     `json:"summary"`
	LikelySource      string     `json:"likely_source"`
	ActionableInsight string     `json:"actionable_insight"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Validate validates an AnalysisJob
func (j *AnalysisJob) Validate() error {
	if j.ID == "" {
		return ErrInvalidJobID
	}
	if j.Symbol == "" {
		return ErrInvalidSymbol
	}
	if j.Status == "" {
		return ErrInvalidJobStatus
	}
	if j.CreatedAt.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// Orderbook deserializes the stored orderbook snapshot.
// Returns nil when no snapshot was captured.
func (j *AnalysisJob) Orderbook() *OrderbookSnapshot {
	if j.OrderbookJSON == "" || j.OrderbookJSON == "{}" {
		return nil
	}
	var ob OrderbookSnapshot
	if err := json.Unmarshal([]byte(j.OrderbookJSON), &ob); err != nil {
		return nil
	}
	return &ob
}

// Social deserializes the stored social snapshot, falling back to the
// neutral default on missing or malformed data.
func (j *AnalysisJob) Social() SocialSnapshot {
	if j.SocialJSON == "" {
		return NeutralSocialSnapshot()
	}
	var s SocialSnapshot
	if err := json.Unmarshal([]byte(j.SocialJSON), &s); err != nil {
		return NeutralSocialSnapshot()
	}
	if s.Sentiment == "" {
		s.Sentiment = "neutral"
	}
	return s
}

// AlertKind classifies notification events.
type AlertKind string

const (
	AlertKindWarning     AlertKind = "warning"
	AlertKindOpportunity AlertKind = "opportunity"
)

// AlertEvent is the tagged event emitted for a completed high-interest job.
// Delivery (push/toast/etc.) is a presentation-layer concern.
type AlertEvent struct {
	Symbol      string    `json:"symbol"`
	Kind        AlertKind `json:"kind"`
	Score       int       `json:"score"`
	Message     string    `json:"message"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Validate validates an AlertEvent
func (a *AlertEvent) Validate() error {
	if a.Symbol == "" {
		return ErrInvalidSymbol
	}
	if a.Kind != AlertKindWarning && a.Kind != AlertKindOpportunity {
		return ErrInvalidAlertKind
	}
	if a.Score < 0 || a.Score > 100 {
		return ErrScoreOutOfRange
	}
	return nil
}
