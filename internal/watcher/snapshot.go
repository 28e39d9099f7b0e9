package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/marketdata"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
	"github.com/mohamedkhairy/anomaly-scanner/pkg/indicator"
)

// SnapshotBuilder assembles a SymbolSnapshot from the market data
// provider: candles for price changes, volume baseline and RSI, the
// order book for depth around mid, and the 24h ticker for the market
// cap estimate.
type SnapshotBuilder struct {
	provider marketdata.Provider
	cfg      config.WatcherConfig
	mdCfg    config.MarketDataConfig
}

// NewSnapshotBuilder creates a snapshot builder.
func NewSnapshotBuilder(provider marketdata.Provider, cfg config.WatcherConfig, mdCfg config.MarketDataConfig) *SnapshotBuilder {
	return &SnapshotBuilder{
		provider: provider,
		cfg:      cfg,
		mdCfg:    mdCfg,
	}
}

// Build fetches candles and order book for the symbol and derives the
// snapshot features. The ticker is passed in because the watcher
// already fetched all tickers when refreshing the universe.
func (b *SnapshotBuilder) Build(ctx context.Context, ticker marketdata.Ticker) (*models.SymbolSnapshot, error) {
	candles, err := b.provider.Klines(ctx, ticker.Symbol, b.mdCfg.KlineLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", ticker.Symbol, err)
	}
	if len(candles) < 2 {
		return nil, fmt.Errorf("not enough candles for %s: got %d", ticker.Symbol, len(candles))
	}

	snapshot := &models.SymbolSnapshot{
		Symbol:     ticker.Symbol,
		LastPrice:  ticker.LastPrice,
		CapturedAt: time.Now(),

		// 24h turnover as a liquidity-weighted cap proxy; true
		// circulating supply is not available from the exchange.
		MarketCapEstimate: ticker.LastPrice * ticker.BaseVolume,
	}

	latest := candles[len(candles)-1]
	if latest.Open > 0 {
		snapshot.PriceChange1mPct = (latest.Close - latest.Open) / latest.Open * 100
	}

	// 5m change compares the latest close against the close five
	// candles earlier.
	if len(candles) >= 6 {
		ref := candles[len(candles)-6]
		if ref.Close > 0 {
			snapshot.PriceChange5mPct = (latest.Close - ref.Close) / ref.Close * 100
		}
	}

	snapshot.QuoteVolume = latest.QuoteVolume
	snapshot.AvgQuoteVolume = averageQuoteVolume(candles[:len(candles)-1], b.cfg.AvgVolumePeriod)

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	snapshot.RSI, snapshot.RSIReady = indicator.RSI(closes, b.cfg.RSIPeriod)

	// Order book failures degrade the snapshot instead of failing it:
	// scoring treats a missing book as "condition not triggered".
	depth, err := b.provider.Depth(ctx, ticker.Symbol, b.mdCfg.DepthLimit)
	if err == nil {
		snapshot.Orderbook = b.summarizeDepth(depth, ticker.LastPrice)
	}

	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot for %s: %w", ticker.Symbol, err)
	}
	return snapshot, nil
}

// averageQuoteVolume averages the most recent period closed candles.
func averageQuoteVolume(closed []marketdata.Candle, period int) float64 {
	if period <= 0 || len(closed) == 0 {
		return 0
	}
	if len(closed) > period {
		closed = closed[len(closed)-period:]
	}

	var sum float64
	for _, c := range closed {
		sum += c.QuoteVolume
	}
	return sum / float64(len(closed))
}

// summarizeDepth totals the bid and ask liquidity within the configured
// band around the last price.
func (b *SnapshotBuilder) summarizeDepth(depth *marketdata.Depth, lastPrice float64) *models.OrderbookSnapshot {
	if depth == nil || lastPrice <= 0 {
		return nil
	}

	band := b.cfg.DepthRangePct / 100
	lowerBound := lastPrice * (1 - band)
	upperBound := lastPrice * (1 + band)

	summary := &models.OrderbookSnapshot{}
	for _, level := range depth.Bids {
		if level.Price >= lowerBound {
			summary.TotalBidsUSD += level.Price * level.Quantity
		}
	}
	for _, level := range depth.Asks {
		if level.Price <= upperBound {
			summary.TotalAsksUSD += level.Price * level.Quantity
		}
	}

	summary.DepthUSD = summary.TotalBidsUSD + summary.TotalAsksUSD
	summary.IsThin = summary.DepthUSD < b.cfg.ThinBookDepthUSD
	return summary
}
