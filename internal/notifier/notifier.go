package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stallwatch/stallwatch/internal/alarm"
)

const maxAttempts = 3

// Event is the webhook payload for an alarm lifecycle change.
type Event struct {
	Type      string    `json:"type"` // "activated" or "recovered"
	Timestamp time.Time `json:"ts"`
	Reason    string    `json:"reason,omitempty"`
	Duration  float64   `json:"duration_secs,omitempty"`
	Playbacks int       `json:"playbacks,omitempty"`
}

// Webhook posts alarm events to a configured URL. Delivery is best-effort:
// failures are logged and retried a few times, never surfaced to the engine
// loop.
type Webhook struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
	backoff time.Duration
}

// NewWebhook returns nil when no URL is configured; callers treat a nil
// webhook as disabled.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("component", "webhook"),
		backoff: time.Second,
	}
}

// NotifyActivated reports an Idle→Active transition.
func (w *Webhook) NotifyActivated(ctx context.Context, reason string, at time.Time) {
	if w == nil {
		return
	}
	w.send(ctx, Event{Type: "activated", Timestamp: at.UTC(), Reason: reason})
}

// NotifyRecovered reports a completed episode.
func (w *Webhook) NotifyRecovered(ctx context.Context, episode alarm.Episode) {
	if w == nil {
		return
	}
	w.send(ctx, Event{
		Type:      "recovered",
		Timestamp: episode.EndedAt.UTC(),
		Reason:    episode.Reason,
		Duration:  episode.Duration.Seconds(),
		Playbacks: episode.Playbacks,
	})
}

func (w *Webhook) send(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("failed to encode webhook event", "err", err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff * time.Duration(attempt-1)):
			}
		}

		if lastErr = w.post(ctx, body); lastErr == nil {
			return
		}
		w.logger.Warn("webhook delivery failed", "attempt", attempt, "err", lastErr)
	}
	w.logger.Error("webhook delivery gave up", "attempts", maxAttempts, "err", lastErr)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
