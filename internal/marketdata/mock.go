package marketdata

import (
	"context"
	"sync"
)

// MockProvider is a scriptable in-memory Provider for tests.
// Candles and depth are set per symbol; unknown symbols return
// ErrSymbolNotFound. Errors can be injected per symbol to exercise
// partial-failure paths.
type MockProvider struct {
	mu         sync.RWMutex
	tickers    []Ticker
	candles    map[string][]Candle
	depth      map[string]*Depth
	symbolErrs map[string]error
	tickersErr error

	// Call counters for assertions
	KlinesCalls  int
	DepthCalls   int
	TickersCalls int
}

// NewMockProvider creates an empty mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		candles:    make(map[string][]Candle),
		depth:      make(map[string]*Depth),
		symbolErrs: make(map[string]error),
	}
}

// Name returns the provider name for logging
func (m *MockProvider) Name() string { return "mock" }

// SetTickers sets the universe returned by TopTickers
func (m *MockProvider) SetTickers(tickers []Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers = tickers
}

// SetTickersError injects an error for TopTickers
func (m *MockProvider) SetTickersError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickersErr = err
}

// SetCandles sets the candles returned for a symbol
func (m *MockProvider) SetCandles(symbol string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[symbol] = candles
}

// SetDepth sets the order book returned for a symbol
func (m *MockProvider) SetDepth(symbol string, depth *Depth) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth[symbol] = depth
}

// SetSymbolError injects an error for Klines and Depth calls on a symbol
func (m *MockProvider) SetSymbolError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbolErrs[symbol] = err
}

// TopTickers returns the scripted universe
func (m *MockProvider) TopTickers(ctx context.Context, quoteAsset string, limit int) ([]Ticker, error) {
	m.mu.Lock()
	m.TickersCalls++
	err := m.tickersErr
	tickers := make([]Ticker, len(m.tickers))
	copy(tickers, m.tickers)
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if len(tickers) > limit {
		tickers = tickers[:limit]
	}
	return tickers, nil
}

// Klines returns the scripted candles for a symbol
func (m *MockProvider) Klines(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	m.mu.Lock()
	m.KlinesCalls++
	err := m.symbolErrs[symbol]
	candles, ok := m.candles[symbol]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSymbolNotFound
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// Depth returns the scripted order book for a symbol
func (m *MockProvider) Depth(ctx context.Context, symbol string, limit int) (*Depth, error) {
	m.mu.Lock()
	m.DepthCalls++
	err := m.symbolErrs[symbol]
	depth, ok := m.depth[symbol]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return depth, nil
}
