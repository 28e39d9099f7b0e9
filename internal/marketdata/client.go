package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
)

// Client is a Binance-style REST market data client.
type Client struct {
	baseURL    string
	quoteAsset string
	http       *http.Client
}

// NewClient creates a new market data client from configuration.
func NewClient(cfg config.MarketDataConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		quoteAsset: cfg.QuoteAsset,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 15 * time.Second}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
	}
}

// Name returns the provider name for logging
func (c *Client) Name() string { return "binance" }

// rawTicker mirrors the /api/v3/ticker/24hr response entry
type rawTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

// TopTickers returns up to limit tickers for pairs quoted in quoteAsset,
// sorted by quote volume descending.
func (c *Client) TopTickers(ctx context.Context, quoteAsset string, limit int) ([]Ticker, error) {
	var raw []rawTicker
	if err := c.fetchJSON(ctx, "/api/v3/ticker/24hr", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch tickers: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyResponse
	}

	tickers := make([]Ticker, 0, limit)
	for _, rt := range raw {
		if !strings.HasSuffix(rt.Symbol, quoteAsset) {
			continue
		}
		tickers = append(tickers, Ticker{
			Symbol:         rt.Symbol,
			LastPrice:      parseFloat(rt.LastPrice),
			PriceChangePct: parseFloat(rt.PriceChangePercent),
			BaseVolume:     parseFloat(rt.Volume),
			QuoteVolume:    parseFloat(rt.QuoteVolume),
		})
	}

	sort.Slice(tickers, func(i, j int) bool {
		return tickers[i].QuoteVolume > tickers[j].QuoteVolume
	})

	if len(tickers) > limit {
		tickers = tickers[:limit]
	}
	return tickers, nil
}

// Klines returns up to limit most recent 1-minute candles, oldest first.
// Binance encodes klines as positional arrays:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, ...]
func (c *Client) Klines(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	params := map[string]string{
		"symbol":   symbol,
		"interval": "1m",
		"limit":    strconv.Itoa(limit),
	}

	var raw [][]json.RawMessage
	if err := c.fetchJSON(ctx, "/api/v3/klines", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 8 {
			continue
		}
		var openTime, closeTime int64
		if err := json.Unmarshal(k[0], &openTime); err != nil {
			continue
		}
		if err := json.Unmarshal(k[6], &closeTime); err != nil {
			continue
		}
		candles = append(candles, Candle{
			OpenTime:    time.UnixMilli(openTime),
			CloseTime:   time.UnixMilli(closeTime),
			Open:        parseQuoted(k[1]),
			High:        parseQuoted(k[2]),
			Low:         parseQuoted(k[3]),
			Close:       parseQuoted(k[4]),
			BaseVolume:  parseQuoted(k[5]),
			QuoteVolume: parseQuoted(k[7]),
		})
	}

	if len(candles) == 0 {
		return nil, ErrEmptyResponse
	}
	return candles, nil
}

// rawDepth mirrors the /api/v3/depth response
type rawDepth struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// Depth returns an order book snapshot with up to limit levels per side.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (*Depth, error) {
	params := map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(limit),
	}

	var raw rawDepth
	if err := c.fetchJSON(ctx, "/api/v3/depth", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch depth for %s: %w", symbol, err)
	}

	depth := &Depth{
		Bids: make([]DepthLevel, 0, len(raw.Bids)),
		Asks: make([]DepthLevel, 0, len(raw.Asks)),
	}
	for _, level := range raw.Bids {
		depth.Bids = append(depth.Bids, DepthLevel{Price: parseFloat(level[0]), Quantity: parseFloat(level[1])})
	}
	for _, level := range raw.Asks {
		depth.Asks = append(depth.Asks, DepthLevel{Price: parseFloat(level[0]), Quantity: parseFloat(level[1])})
	}
	return depth, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string, target interface{}) error {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %s: %w", endpoint, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseQuoted(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Some fields arrive as bare numbers
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0
		}
		return f
	}
	return parseFloat(s)
}
