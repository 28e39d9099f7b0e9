// Package analyst provides the qualitative analysis layer. It talks to
// an OpenAI-compatible chat completion endpoint, parses the structured
// verdict out of the reply and degrades to a deterministic local result
// when the reply is malformed.
package analyst

import (
	"context"

	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

// Request carries everything the analyst needs to judge one anomaly.
type Request struct {
	Symbol           string
	PriceAtDetection float64
	PriceChange5mPct float64
	PriceChange1mPct float64
	VolumeMultiplier float64
	RSI              float64
	VolumeToMcap     float64
	BaseRiskScore    int
	Triggers         []string
	Orderbook        *models.OrderbookSnapshot
	Social           models.SocialSnapshot
}

// Result is the structured verdict for one anomaly. Degraded marks
// results produced by the local fallback rather than the remote model.
type Result struct {
	FinalRiskScore int
	Verdict        string
	LikelyScenario string
	ShortComment   string
	Degraded       bool
}

// Analyst produces a qualitative verdict for a detected anomaly.
//
// Implementations return an error only when no result could be produced
// at all (endpoint unreachable after retries). A malformed but received
// reply yields a degraded Result and a nil error.
type Analyst interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}
