package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/jobstore"
	"github.com/mohamedkhairy/anomaly-scanner/internal/marketdata"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

func watcherConfig() config.WatcherConfig {
	return config.WatcherConfig{
		ScanInterval:            time.Minute,
		MaxSymbols:              50,
		UniverseRefreshInterval: 10 * time.Minute,
		FetchConcurrency:        4,
		DedupWindow:             15 * time.Minute,
		AvgVolumePeriod:         20,
		RSIPeriod:               14,
		DepthRangePct:           2.0,
		ThinBookDepthUSD:        50_000,
	}
}

func marketDataConfig() config.MarketDataConfig {
	return config.MarketDataConfig{
		QuoteAsset: "USDT",
		KlineLimit: 30,
		DepthLimit: 100,
	}
}

func filterConfig() config.FilterConfig {
	return config.FilterConfig{
		PriceChangeThresholdPct:   2.0,
		VolumeMultiplierThreshold: 3.0,
		MarketCapFloorUSD:         10_000_000,
	}
}

// anomalousCandles produce a ~5% 5m change with a 4x volume spike in
// the latest candle.
func anomalousCandles(n int) []marketdata.Candle {
	candles := make([]marketdata.Candle, n)
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	price := 100.0
	for i := range candles {
		open := price
		if i >= n-5 {
			price *= 1.01 // ramp over the last five candles
		}
		volume := 100_000.0
		if i == n-1 {
			volume = 400_000
		}
		candles[i] = marketdata.Candle{
			OpenTime:    base.Add(time.Duration(i) * time.Minute),
			CloseTime:   base.Add(time.Duration(i+1) * time.Minute),
			Open:        open,
			High:        price * 1.001,
			Low:         open * 0.999,
			Close:       price,
			BaseVolume:  volume / price,
			QuoteVolume: volume,
		}
	}
	return candles
}

// quietCandles produce a flat market.
func quietCandles(n int) []marketdata.Candle {
	candles := make([]marketdata.Candle, n)
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := range candles {
		candles[i] = marketdata.Candle{
			OpenTime:    base.Add(time.Duration(i) * time.Minute),
			CloseTime:   base.Add(time.Duration(i+1) * time.Minute),
			Open:        100,
			High:        100.1,
			Low:         99.9,
			Close:       100,
			BaseVolume:  1000,
			QuoteVolume: 100_000,
		}
	}
	return candles
}

func testDepth() *marketdata.Depth {
	return &marketdata.Depth{
		Bids: []marketdata.DepthLevel{{Price: 104.9, Quantity: 100}},
		Asks: []marketdata.DepthLevel{{Price: 105.2, Quantity: 500}},
	}
}

func anomalousTicker(symbol string) marketdata.Ticker {
	return marketdata.Ticker{
		Symbol:      symbol,
		LastPrice:   105,
		BaseVolume:  500_000, // cap estimate 105 * 500k = $52.5M
		QuoteVolume: 52_500_000,
	}
}

func newTestWatcher(provider marketdata.Provider, store jobstore.Store) *Watcher {
	return New(provider, store, watcherConfig(), marketDataConfig(), filterConfig())
}

func TestRunCycle_EnqueuesCandidate(t *testing.T) {
	provider := marketdata.NewMockProvider()
	store := jobstore.NewMemoryStore()

	provider.SetTickers([]marketdata.Ticker{anomalousTicker("PEPEUSDT")})
	provider.SetCandles("PEPEUSDT", anomalousCandles(30))
	provider.SetDepth("PEPEUSDT", testDepth())

	w := newTestWatcher(provider, store)
	w.RunCycle(context.Background())

	job, err := store.ClaimNextPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PEPEUSDT", job.Symbol)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, 105.0, job.PriceAtDetection)
	assert.Greater(t, job.PriceChange5mPct, 2.0)
	assert.Greater(t, job.VolumeMultiplier, 3.0)
	assert.NotEmpty(t, job.OrderbookJSON)
	assert.NotEmpty(t, job.SocialJSON)

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.Candidates)
	assert.Equal(t, int64(1), stats.JobsEnqueued)
}

func TestRunCycle_QuietSymbolCreatesNoJob(t *testing.T) {
	provider := marketdata.NewMockProvider()
	store := jobstore.NewMemoryStore()

	provider.SetTickers([]marketdata.Ticker{anomalousTicker("BTCUSDT")})
	provider.SetCandles("BTCUSDT", quietCandles(30))
	provider.SetDepth("BTCUSDT", testDepth())

	w := newTestWatcher(provider, store)
	w.RunCycle(context.Background())

	_, err := store.ClaimNextPending(context.Background())
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestRunCycle_OneFailingSymbolDoesNotAbortCycle(t *testing.T) {
	provider := marketdata.NewMockProvider()
	store := jobstore.NewMemoryStore()

	provider.SetTickers([]marketdata.Ticker{
		anomalousTicker("BROKENUSDT"),
		anomalousTicker("PEPEUSDT"),
	})
	provider.SetSymbolError("BROKENUSDT", errors.New("exchange hiccup"))
	provider.SetCandles("PEPEUSDT", anomalousCandles(30))
	provider.SetDepth("PEPEUSDT", testDepth())

	w := newTestWatcher(provider, store)
	w.RunCycle(context.Background())

	job, err := store.ClaimNextPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PEPEUSDT", job.Symbol)

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.FetchErrors)
	assert.Equal(t, int64(2), stats.Scanned)
}

func TestRunCycle_SkipsSymbolWithActiveJob(t *testing.T) {
	provider := marketdata.NewMockProvider()
	store := jobstore.NewMemoryStore()

	provider.SetTickers([]marketdata.Ticker{anomalousTicker("PEPEUSDT")})
	provider.SetCandles("PEPEUSDT", anomalousCandles(30))
	provider.SetDepth("PEPEUSDT", testDepth())

	w := newTestWatcher(provider, store)
	w.RunCycle(context.Background())
	w.RunCycle(context.Background()) // candidate again, but job is PENDING

	// Only one job was ever created
	_, err := store.ClaimNextPending(context.Background())
	require.NoError(t, err)
	_, err = store.ClaimNextPending(context.Background())
	assert.ErrorIs(t, err, models.ErrJobNotFound)

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.JobsEnqueued)
	assert.Equal(t, int64(1), stats.DedupSkips)
}

func TestRunCycle_SkipsRecentlyCompletedSymbol(t *testing.T) {
	provider := marketdata.NewMockProvider()
	store := jobstore.NewMemoryStore()
	ctx := context.Background()

	provider.SetTickers([]marketdata.Ticker{anomalousTicker("PEPEUSDT")})
	provider.SetCandles("PEPEUSDT", anomalousCandles(30))
	provider.SetDepth("PEPEUSDT", testDepth())

	w := newTestWatcher(provider, store)
	w.RunCycle(ctx)

	// Complete the job, then re-scan within the dedup window
	job, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, store.UpdateResult(ctx, job.ID, jobstore.Result{FinalRiskScore: 80}))

	w.RunCycle(ctx)
	_, err = store.ClaimNextPending(ctx)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	assert.Equal(t, int64(1), w.GetStats().DedupSkips)
}

func TestRunCycle_MissingDepthStillScans(t *testing.T) {
	provider := marketdata.NewMockProvider()
	store := jobstore.NewMemoryStore()

	provider.SetTickers([]marketdata.Ticker{anomalousTicker("PEPEUSDT")})
	provider.SetCandles("PEPEUSDT", anomalousCandles(30))
	// No depth scripted: Depth returns ErrSymbolNotFound

	w := newTestWatcher(provider, store)
	w.RunCycle(context.Background())

	job, err := store.ClaimNextPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, job.OrderbookJSON)
}

func TestRunCycle_UniverseIsCached(t *testing.T) {
	provider := marketdata.NewMockProvider()
	store := jobstore.NewMemoryStore()

	provider.SetTickers([]marketdata.Ticker{anomalousTicker("BTCUSDT")})
	provider.SetCandles("BTCUSDT", quietCandles(30))
	provider.SetDepth("BTCUSDT", testDepth())

	w := newTestWatcher(provider, store)
	w.RunCycle(context.Background())
	w.RunCycle(context.Background())

	assert.Equal(t, 1, provider.TickersCalls)
}

func TestStartStop(t *testing.T) {
	provider := marketdata.NewMockProvider()
	store := jobstore.NewMemoryStore()

	provider.SetTickers([]marketdata.Ticker{anomalousTicker("BTCUSDT")})
	provider.SetCandles("BTCUSDT", quietCandles(30))
	provider.SetDepth("BTCUSDT", testDepth())

	w := newTestWatcher(provider, store)
	require.NoError(t, w.Start())
	assert.Error(t, w.Start(), "second start must fail")

	// The initial cycle runs immediately on start
	deadline := time.After(2 * time.Second)
	for w.GetStats().Cycles == 0 {
		select {
		case <-deadline:
			t.Fatal("no cycle completed before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.Stop()
	w.Stop() // idempotent
}
