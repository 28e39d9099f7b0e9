package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.MarketDataConfig{
		BaseURL:        server.URL,
		RequestTimeout: 2 * time.Second,
		QuoteAsset:     "USDT",
		KlineLimit:     30,
		DepthLimit:     100,
	})
	return client, server
}

func TestClient_TopTickers(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"50000.00","priceChangePercent":"1.5","volume":"1000","quoteVolume":"50000000"},
			{"symbol":"ETHBTC","lastPrice":"0.05","priceChangePercent":"0.2","volume":"500","quoteVolume":"25"},
			{"symbol":"PEPEUSDT","lastPrice":"0.00001","priceChangePercent":"12.0","volume":"9000000","quoteVolume":"90000000"},
			{"symbol":"ETHUSDT","lastPrice":"3000.00","priceChangePercent":"-0.5","volume":"2000","quoteVolume":"6000000"}
		]`))
	}))

	tickers, err := client.TopTickers(context.Background(), "USDT", 2)
	require.NoError(t, err)

	// Non-USDT pairs filtered out, rest sorted by quote volume, truncated to limit
	require.Len(t, tickers, 2)
	assert.Equal(t, "PEPEUSDT", tickers[0].Symbol)
	assert.Equal(t, "BTCUSDT", tickers[1].Symbol)
	assert.Equal(t, 50000.0, tickers[1].LastPrice)
	assert.Equal(t, 1000.0, tickers[1].BaseVolume)
}

func TestClient_Klines(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		w.Write([]byte(`[
			[1700000000000,"100.0","101.0","99.0","100.5","10.0",1700000059999,"1005.0",42,"5.0","502.5","0"],
			[1700000060000,"100.5","103.0","100.0","102.5","30.0",1700000119999,"3075.0",99,"20.0","2050.0","0"]
		]`))
	}))

	candles, err := client.Klines(context.Background(), "BTCUSDT", 30)
	require.NoError(t, err)

	require.Len(t, candles, 2)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 100.5, candles[0].Close)
	assert.Equal(t, 1005.0, candles[0].QuoteVolume)
	assert.Equal(t, 102.5, candles[1].Close)
	assert.Equal(t, time.UnixMilli(1700000060000), candles[1].OpenTime)
}

func TestClient_Depth(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		w.Write([]byte(`{
			"bids":[["100.0","5.0"],["99.5","10.0"]],
			"asks":[["100.5","3.0"],["101.0","20.0"]]
		}`))
	}))

	depth, err := client.Depth(context.Background(), "BTCUSDT", 100)
	require.NoError(t, err)

	require.Len(t, depth.Bids, 2)
	require.Len(t, depth.Asks, 2)
	assert.Equal(t, 100.0, depth.Bids[0].Price)
	assert.Equal(t, 5.0, depth.Bids[0].Quantity)
	assert.Equal(t, 101.0, depth.Asks[1].Price)
}

func TestClient_HTTPError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := client.Klines(context.Background(), "BTCUSDT", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestClient_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.TopTickers(ctx, "USDT", 10)
	require.Error(t, err)
}

func TestClient_EmptyTickers(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	_, err := client.TopTickers(context.Background(), "USDT", 10)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
