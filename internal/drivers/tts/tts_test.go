package tts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/tts"
)

func TestSynthesizeReturnsDecodedAudioAndCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64":     base64.StdEncoding.EncodeToString([]byte("fake-mp3")),
			"mime_type":        "audio/mpeg",
			"duration_seconds": 12.5,
		})
	}))
	t.Cleanup(srv.Close)

	c := tts.NewClient(tts.Config{APIKey: "key", BaseURL: srv.URL})
	result, err := c.Synthesize(context.Background(), "hello world", "voice-1")
	require.NoError(t, err)
	require.Equal(t, []byte("fake-mp3"), result.AudioData)
	require.Equal(t, 12.5, result.DurationSeconds)
	require.Greater(t, result.CostUSD, 0.0)
}

func TestSynthesizeRequiresAPIKey(t *testing.T) {
	c := tts.NewClient(tts.Config{BaseURL: "http://unused"})
	_, err := c.Synthesize(context.Background(), "text", "voice")
	require.Error(t, err)
}
