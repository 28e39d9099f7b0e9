package analyst

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/pkg/logger"
)

// systemPrompt pins the model to the risk-analyst role and the exact
// response contract. The response must be a single JSON object so the
// parser stays trivial.
const systemPrompt = `You are a senior crypto market risk analyst. You judge whether a detected ` +
	`price/volume anomaly is an organic move or a manipulated one (pump-and-dump, ` +
	`wash trading, squeeze). Base your judgement ONLY on the data provided. ` +
	`Respond with a single JSON object and nothing else: ` +
	`{"final_risk_score": <int 0-100>, "verdict": <string>, "likely_scenario": <string>, "short_comment": <string>}`

// Client is an OpenAI-compatible chat completion client.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
	http        *http.Client
}

// NewClient creates an analyst client from configuration.
func NewClient(cfg config.AnalystConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
	}
}

// chatMessage represents a chat message
type chatMessage struct {
	Role    string `json:"role"` // "system" or "user"
	Content string `json:"content"`
}

// chatRequest represents an OpenAI chat completion request
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse represents an OpenAI chat completion response
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// verdictPayload is the JSON contract the model must answer with.
type verdictPayload struct {
	FinalRiskScore *int   `json:"final_risk_score"`
	Verdict        string `json:"verdict"`
	LikelyScenario string `json:"likely_scenario"`
	ShortComment   string `json:"short_comment"`
}

// Analyze sends the anomaly to the model and parses its verdict.
// Transport-level failures are retried with exponential backoff; when
// all retries fail the error is returned to the caller. A reply that
// arrives but cannot be parsed yields the deterministic fallback.
func (c *Client) Analyze(ctx context.Context, req Request) (*Result, error) {
	content, err := c.chatCompletion(ctx, buildPrompt(req))
	if err != nil {
		return nil, err
	}

	result, err := parseVerdict(content, req)
	if err != nil {
		logger.Warn("Malformed analyst reply, using fallback",
			logger.String("symbol", req.Symbol),
			logger.ErrorField(err))
		return Fallback(req), nil
	}
	return result, nil
}

func (c *Client) chatCompletion(ctx context.Context, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var content string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("analyst request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("analyst returned status %d: %s", resp.StatusCode, string(excerpt))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode analyst response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("analyst response has no choices"))
		}

		content = parsed.Choices[0].Message.Content
		return nil
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, strategy); err != nil {
		return "", err
	}
	return content, nil
}

// buildPrompt renders the anomaly data the model is allowed to reason
// about. Order book and social context are optional.
func buildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Symbol: %s\n", req.Symbol)
	fmt.Fprintf(&b, "Price at detection: %.8g USD\n", req.PriceAtDetection)
	fmt.Fprintf(&b, "5m price change: %.2f%%\n", req.PriceChange5mPct)
	fmt.Fprintf(&b, "1m price change: %.2f%%\n", req.PriceChange1mPct)
	fmt.Fprintf(&b, "Volume vs 20-candle average: %.2fx\n", req.VolumeMultiplier)
	fmt.Fprintf(&b, "RSI(14): %.1f\n", req.RSI)
	fmt.Fprintf(&b, "Volume / market cap: %.3f\n", req.VolumeToMcap)
	fmt.Fprintf(&b, "Quantitative base risk score: %d/100\n", req.BaseRiskScore)

	if len(req.Triggers) > 0 {
		b.WriteString("Triggered risk rules:\n")
		for _, trigger := range req.Triggers {
			fmt.Fprintf(&b, "- %s\n", trigger)
		}
	}

	if req.Orderbook != nil {
		fmt.Fprintf(&b, "Order book (+/-2%% of mid): bids $%.0f, asks $%.0f\n",
			req.Orderbook.TotalBidsUSD, req.Orderbook.TotalAsksUSD)
		if req.Orderbook.IsThin {
			b.WriteString("Order book flagged as thin.\n")
		}
	}

	if req.Social.Sentiment != "" {
		fmt.Fprintf(&b, "Social mentions change: %.0f%%, sentiment: %s\n",
			req.Social.MentionIncreasePercent, req.Social.Sentiment)
	}

	b.WriteString("Classify this anomaly.")
	return b.String()
}

// parseVerdict extracts the JSON verdict from the model reply. Models
// occasionally wrap JSON in code fences or prose, so parsing starts at
// the first '{' and ends at the matching last '}'.
func parseVerdict(content string, req Request) (*Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("invalid verdict JSON: %w", err)
	}

	if payload.FinalRiskScore == nil {
		return nil, fmt.Errorf("verdict missing final_risk_score")
	}
	if payload.Verdict == "" || payload.LikelyScenario == "" {
		return nil, fmt.Errorf("verdict missing required fields")
	}

	score := *payload.FinalRiskScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &Result{
		FinalRiskScore: score,
		Verdict:        payload.Verdict,
		LikelyScenario: payload.LikelyScenario,
		ShortComment:   payload.ShortComment,
	}, nil
}
