package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stallwatch/stallwatch/internal/alarm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWebhookDeliversActivatedEvent(t *testing.T) {
	t.Parallel()

	received := make(chan Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received <- event
	}))
	defer server.Close()

	hook := NewWebhook(server.URL, testLogger())
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hook.NotifyActivated(context.Background(), "vram low", at)

	select {
	case event := <-received:
		assert.Equal(t, "activated", event.Type)
		assert.Equal(t, "vram low", event.Reason)
		assert.Equal(t, at, event.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestWebhookDeliversRecoveredEvent(t *testing.T) {
	t.Parallel()

	received := make(chan Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		received <- event
	}))
	defer server.Close()

	hook := NewWebhook(server.URL, testLogger())
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hook.NotifyRecovered(context.Background(), alarm.Episode{
		StartedAt: start,
		EndedAt:   start.Add(45 * time.Second),
		Duration:  45 * time.Second,
		Playbacks: 3,
		Reason:    "stalled",
	})

	select {
	case event := <-received:
		assert.Equal(t, "recovered", event.Type)
		assert.Equal(t, float64(45), event.Duration)
		assert.Equal(t, 3, event.Playbacks)
	case <-time.After(time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestWebhookRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer server.Close()

	hook := NewWebhook(server.URL, testLogger())
	hook.backoff = time.Millisecond
	hook.NotifyActivated(context.Background(), "stalled", time.Now())

	assert.Equal(t, int32(3), calls.Load(), "two failures then a success")
}

func TestWebhookGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	hook := NewWebhook(server.URL, testLogger())
	hook.backoff = time.Millisecond
	hook.NotifyActivated(context.Background(), "stalled", time.Now())

	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestNilWebhookIsDisabled(t *testing.T) {
	t.Parallel()

	hook := NewWebhook("", testLogger())
	require.Nil(t, hook)

	// Calls on the nil webhook are no-ops, not panics.
	hook.NotifyActivated(context.Background(), "x", time.Now())
	hook.NotifyRecovered(context.Background(), alarm.Episode{})
}
