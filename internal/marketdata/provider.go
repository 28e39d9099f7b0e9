package marketdata

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSymbolNotFound is returned when the source has no data for a symbol
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrEmptyResponse is returned when the source returns no usable data
	ErrEmptyResponse = errors.New("empty response from market data source")
)

// Ticker is a 24-hour rolling ticker summary for one symbol.
type Ticker struct {
	Symbol         string
	LastPrice      float64
	PriceChangePct float64 // 24h percent change
	BaseVolume     float64 // 24h volume in the base asset
	QuoteVolume    float64 // 24h volume in the quote asset
}

// Candle is a single closed or in-progress kline.
type Candle struct {
	OpenTime    time.Time
	CloseTime   time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	BaseVolume  float64
	QuoteVolume float64
}

// DepthLevel is one price level of the order book.
type DepthLevel struct {
	Price    float64
	Quantity float64
}

// Depth is an order book snapshot.
type Depth struct {
	Bids []DepthLevel // Sorted best-first (highest price first)
	Asks []DepthLevel // Sorted best-first (lowest price first)
}

// Provider defines the pull-style market data source consumed by the watcher.
// Implementations must honor context deadlines; a slow source must never be
// able to wedge a scan cycle indefinitely.
type Provider interface {
	// TopTickers returns up to limit tickers for pairs quoted in quoteAsset,
	// sorted by quote volume descending.
	TopTickers(ctx context.Context, quoteAsset string, limit int) ([]Ticker, error)

	// Klines returns up to limit most recent 1-minute candles for a symbol,
	// oldest first. The final candle may still be in progress.
	Klines(ctx context.Context, symbol string, limit int) ([]Candle, error)

	// Depth returns an order book snapshot with up to limit levels per side.
	Depth(ctx context.Context, symbol string, limit int) (*Depth, error)

	// Name returns the provider name for logging
	Name() string
}
