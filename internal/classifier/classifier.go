// Package classifier holds the thin HTTP clients for the external AI
// review services: the ad/bait-account detector and the LLM reviewer.
// Both are best-effort; a timeout or error is reported as "no signal"
// and never blocks a verdict.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Per-call deadlines. A slow classifier must not hold up the verdict, so
// these stay in the hundreds of milliseconds.
const (
	adTimeout  = 800 * time.Millisecond
	llmTimeout = 500 * time.Millisecond
)

// Signal is one classifier's opinion about a text.
type Signal struct {
	Reject bool    `json:"reject"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
}

// AdDetector calls the ad/bait-account scoring service.
type AdDetector struct {
	url    string
	client *http.Client
}

// NewAdDetector builds a detector client for the given endpoint. An
// empty url disables the client; Check then always reports no signal.
func NewAdDetector(url string) *AdDetector {
	return &AdDetector{
		url:    url,
		client: &http.Client{Timeout: adTimeout},
	}
}

type adRequest struct {
	AppID          string  `json:"app_id"`
	AccountID      string  `json:"account_id"`
	Text           string  `json:"text"`
	ScoreThreshold float64 `json:"score_threshold"`
}

// Check scores one text against the configured threshold.
func (d *AdDetector) Check(ctx context.Context, appID, accountID, text string, threshold float64) (Signal, error) {
	if d.url == "" {
		return Signal{}, nil
	}
	return post(ctx, d.client, d.url, adRequest{
		AppID:          appID,
		AccountID:      accountID,
		Text:           text,
		ScoreThreshold: threshold,
	})
}

// LLM calls the LLM review service with the speaker's recent messages as
// conversation context.
type LLM struct {
	url    string
	client *http.Client
}

// NewLLM builds an LLM client for the given endpoint. An empty url
// disables the client.
func NewLLM(url string) *LLM {
	return &LLM{
		url:    url,
		client: &http.Client{Timeout: llmTimeout},
	}
}

type llmRequest struct {
	AppID   string   `json:"app_id"`
	Text    string   `json:"text"`
	History []string `json:"history"`
}

// Review asks the LLM service to judge one text in context.
func (l *LLM) Review(ctx context.Context, appID, text string, history []string) (Signal, error) {
	if l.url == "" {
		return Signal{}, nil
	}
	return post(ctx, l.client, l.url, llmRequest{
		AppID:   appID,
		Text:    text,
		History: history,
	})
}

func post(ctx context.Context, client *http.Client, url string, payload any) (Signal, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Signal{}, fmt.Errorf("classifier: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Signal{}, fmt.Errorf("classifier: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Signal{}, fmt.Errorf("classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Signal{}, fmt.Errorf("classifier: status %d", resp.StatusCode)
	}
	var sig Signal
	if err := json.NewDecoder(resp.Body).Decode(&sig); err != nil {
		return Signal{}, fmt.Errorf("classifier: decode: %w", err)
	}
	return sig, nil
}
