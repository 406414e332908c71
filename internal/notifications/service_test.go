package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dubforge/internal/config"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.Topic = ""

	svc := NewService(&cfg)
	_, ok := svc.(noopService)
	assert.True(t, ok, "expected noopService when topic is empty")

	err := svc.Publish(context.Background(), EventStageFailed, Payload{"episodeID": "ep-1"})
	assert.NoError(t, err)
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	type captured struct {
		title    string
		priority string
		tags     string
		body     string
	}

	cases := []struct {
		name    string
		event   Event
		payload Payload
		want    captured
	}{
		{
			name:  "stage completed",
			event: EventStageCompleted,
			payload: Payload{
				"episodeID": "ep-42",
				"stage":     "translate",
				"duration":  90 * time.Second,
			},
			want: captured{
				title:    "dubforge - Stage Complete",
				priority: "",
				tags:     "stage",
				body:     "translate complete: ep-42\nElapsed: 1m30s",
			},
		},
		{
			name:  "stage failed",
			event: EventStageFailed,
			payload: Payload{
				"episodeID": "ep-7",
				"stage":     "tts",
				"error":     errors.New("synthesis timeout"),
			},
			want: captured{
				title:    "dubforge - Stage Failed",
				priority: "high",
				tags:     "error",
				body:     "tts failed for ep-7: synthesis timeout",
			},
		},
		{
			name:  "review pending",
			event: EventReviewPending,
			payload: Payload{
				"episodeID": "ep-9",
				"gate":      "review_gate_2",
			},
			want: captured{
				title:    "dubforge - Review Needed",
				priority: "",
				tags:     "review",
				body:     "ep-9 awaiting review at review_gate_2",
			},
		},
		{
			name:  "cost limit",
			event: EventCostLimit,
			payload: Payload{
				"episodeID": "ep-11",
				"costUSD":   12.5,
				"limitUSD":  10.0,
			},
			want: captured{
				title:    "dubforge - Cost Limit Reached",
				priority: "high",
				tags:     "cost",
				body:     "ep-11 stopped at $12.50 (limit $10.00)",
			},
		},
		{
			name:  "published",
			event: EventPublished,
			payload: Payload{
				"episodeID": "ep-13",
				"videoID":   "yt-abc123",
			},
			want: captured{
				title:    "dubforge - Published",
				priority: "",
				tags:     "publish",
				body:     "Published: ep-13\nVideo: yt-abc123",
			},
		},
		{
			name:    "test notification",
			event:   EventTestNotification,
			payload: Payload{},
			want: captured{
				title:    "dubforge - Test",
				priority: "low",
				tags:     "test",
				body:     "Notification system test",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got captured
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got.title = r.Header.Get("Title")
				got.priority = r.Header.Get("Priority")
				got.tags = r.Header.Get("Tags")
				buf := make([]byte, 4096)
				n, _ := r.Body.Read(buf)
				got.body = string(buf[:n])
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notify.Topic = server.URL
			cfg.Notify.DedupWindowSeconds = 0
			svc := NewService(&cfg)

			err := svc.Publish(context.Background(), tc.event, tc.payload)
			require.NoError(t, err)

			assert.Equal(t, tc.want.title, got.title)
			assert.Equal(t, tc.want.priority, got.priority)
			assert.Equal(t, tc.want.tags, got.tags)
			assert.Equal(t, tc.want.body, got.body)
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notify.Topic = server.URL
	cfg.Notify.NotifyStageStart = false

	svc := NewService(&cfg)
	err := svc.Publish(context.Background(), EventStageStarted, Payload{"episodeID": "ep-1", "stage": "download"})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestNtfyServiceDedupesWithinWindow(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notify.Topic = server.URL
	cfg.Notify.DedupWindowSeconds = 600
	cfg.Notify.NotifyStageFailure = true

	svc := NewService(&cfg)
	payload := Payload{"episodeID": "ep-5", "stage": "render", "error": errors.New("boom")}

	require.NoError(t, svc.Publish(context.Background(), EventStageFailed, payload))
	require.NoError(t, svc.Publish(context.Background(), EventStageFailed, payload))

	assert.Equal(t, 1, calls)
}

func TestNtfyServiceSkipsStageCompleteBelowMinimumDuration(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notify.Topic = server.URL
	cfg.Notify.MinStageSeconds = 60

	svc := NewService(&cfg)
	err := svc.Publish(context.Background(), EventStageCompleted, Payload{
		"episodeID": "ep-2",
		"stage":     "correct",
		"duration":  10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}
