package analyst

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

func testRequest() Request {
	return Request{
		Symbol:           "PEPEUSDT",
		PriceAtDetection: 0.000012,
		PriceChange5mPct: 5.0,
		PriceChange1mPct: 6.0,
		VolumeMultiplier: 3.2,
		RSI:              90,
		VolumeToMcap:     0.25,
		BaseRiskScore:    85,
		Triggers:         []string{"RSI 90.0 above overbought threshold 85.0"},
		Orderbook:        &models.OrderbookSnapshot{TotalBidsUSD: 100_000, TotalAsksUSD: 500_000},
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.AnalystConfig{
		Endpoint:       server.URL,
		APIKey:         "test-key",
		Model:          "test-model",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		Temperature:    0.2,
		MaxTokens:      400,
	})
}

func chatReply(content string) string {
	reply := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(reply)
	return string(data)
}

func TestAnalyze_ParsesVerdict(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, 400, req.MaxTokens)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "PEPEUSDT")
		assert.Contains(t, req.Messages[1].Content, "base risk score: 85")

		w.Write([]byte(chatReply(
			`{"final_risk_score": 92, "verdict": "critical risk", "likely_scenario": "Pump and Dump", "short_comment": "Thin book, exit liquidity forming."}`)))
	}))

	result, err := client.Analyze(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, 92, result.FinalRiskScore)
	assert.Equal(t, "critical risk", result.Verdict)
	assert.Equal(t, "Pump and Dump", result.LikelyScenario)
	assert.False(t, result.Degraded)
}

func TestAnalyze_AcceptsFencedJSON(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("Here is my analysis:\n```json\n" +
			`{"final_risk_score": 40, "verdict": "moderate risk", "likely_scenario": "Organic Breakout", "short_comment": "ok"}` +
			"\n```")))
	}))

	result, err := client.Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 40, result.FinalRiskScore)
	assert.Equal(t, "Organic Breakout", result.LikelyScenario)
}

func TestAnalyze_ClampsScore(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(
			`{"final_risk_score": 250, "verdict": "critical risk", "likely_scenario": "Pump and Dump", "short_comment": ""}`)))
	}))

	result, err := client.Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 100, result.FinalRiskScore)
}

func TestAnalyze_MalformedReplyFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"prose only", "The market looks risky today."},
		{"broken JSON", `{"final_risk_score": 92, "verdict":`},
		{"missing score", `{"verdict": "high risk", "likely_scenario": "Pump and Dump"}`},
		{"missing verdict", `{"final_risk_score": 92, "likely_scenario": "Pump and Dump"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatReply(tt.content)))
			}))

			result, err := client.Analyze(context.Background(), testRequest())
			require.NoError(t, err)
			assert.True(t, result.Degraded)
			assert.Equal(t, 85, result.FinalRiskScore)
			assert.Equal(t, "critical risk", result.Verdict)
			assert.Equal(t, "Uncertain", result.LikelyScenario)
		})
	}
}

func TestAnalyze_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(chatReply(
			`{"final_risk_score": 70, "verdict": "high risk", "likely_scenario": "Short Squeeze", "short_comment": "ok"}`)))
	}))

	result, err := client.Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 70, result.FinalRiskScore)
}

func TestAnalyze_ErrorAfterRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))

	_, err := client.Analyze(context.Background(), testRequest())
	require.Error(t, err)
	// Initial attempt + MaxRetries
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnalyze_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))

	_, err := client.Analyze(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFallback_Buckets(t *testing.T) {
	tests := []struct {
		score   int
		verdict string
	}{
		{0, "low risk"},
		{24, "low risk"},
		{25, "moderate risk"},
		{49, "moderate risk"},
		{50, "high risk"},
		{74, "high risk"},
		{75, "critical risk"},
		{100, "critical risk"},
	}

	for _, tt := range tests {
		result := Fallback(Request{Symbol: "BTCUSDT", BaseRiskScore: tt.score})
		assert.Equal(t, tt.verdict, result.Verdict, "score %d", tt.score)
		assert.Equal(t, tt.score, result.FinalRiskScore)
		assert.True(t, result.Degraded)
	}
}
