package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"scoutline.dev/orchestrator/internal/toolkit"
)

// WebhookSender delivers a batch task result to a callback URL with
// exponential backoff retries, retrying only on 5xx responses and network
// errors; a 4xx response is treated as a permanent rejection.
type WebhookSender struct {
	Client      *http.Client
	MaxAttempts int
	Backoff     time.Duration
	BackoffCap  time.Duration
}

// NewWebhookSender builds a WebhookSender with the given retry policy. A zero
// Client defaults to http.DefaultClient.
func NewWebhookSender(client *http.Client, maxAttempts int, backoff, backoffCap time.Duration) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	if backoffCap <= 0 {
		backoffCap = 16 * time.Second
	}
	return &WebhookSender{Client: client, MaxAttempts: maxAttempts, Backoff: backoff, BackoffCap: backoffCap}
}

// Send POSTs payload as JSON to callbackURL, retrying transient failures.
func (w *WebhookSender) Send(ctx context.Context, callbackURL string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.MaxAttempts; attempt++ {
		retryable, err := w.deliver(ctx, callbackURL, body)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable || attempt == w.MaxAttempts {
			break
		}

		slog.WarnContext(ctx, "webhook: delivery failed, retrying", "url", callbackURL, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(toolkit.BackoffDelay(attempt, w.Backoff, w.BackoffCap)):
		}
	}

	return fmt.Errorf("webhook: delivery to %s failed after %d attempts: %w", callbackURL, w.MaxAttempts, lastErr)
}

// deliver makes one delivery attempt, reporting whether a failure is worth
// retrying: network errors and 5xx responses are; 4xx responses are not.
func (w *WebhookSender) deliver(ctx context.Context, callbackURL string, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("webhook returned %s", resp.Status)
	}
	return false, fmt.Errorf("webhook returned %s", resp.Status)
}
