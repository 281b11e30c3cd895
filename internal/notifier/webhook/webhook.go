// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/notifier"
)

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Init(cfg notifier.Config) error {
	if url, ok := cfg.Params["url"].(string); ok {
		w.url = url
	}
	if headers, ok := cfg.Params["headers"].(map[string]string); ok {
		w.headers = headers
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (w *Webhook) Send(ctx context.Context, result *backtest.Result) error {
	return w.post(ctx, resultToPayload(result))
}

func (w *Webhook) SendBatch(ctx context.Context, results []*backtest.Result) error {
	if len(results) == 0 {
		return nil
	}

	payloads := make([]map[string]any, len(results))
	for i, res := range results {
		payloads[i] = resultToPayload(res)
	}

	return w.post(ctx, map[string]any{
		"type":    "batch",
		"count":   len(results),
		"results": payloads,
	})
}

// resultToPayload drops the per-trade lists; receivers fetch the full
// report by id when the archive is enabled.
func resultToPayload(res *backtest.Result) map[string]any {
	return map[string]any{
		"type":       "backtest",
		"id":         res.ID,
		"strategy":   res.Strategy,
		"symbol":     res.Symbol,
		"interval":   res.Interval,
		"start_date": res.StartDate.Format(time.RFC3339),
		"end_date":   res.EndDate.Format(time.RFC3339),
		"bars":       res.Bars,
		"stats":      res.Stats,
	}
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
