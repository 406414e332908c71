package asr_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/asr"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "episode.wav")
	require.NoError(t, os.WriteFile(path, []byte("fake audio bytes"), 0o644))
	return path
}

func TestTranscribeReturnsTextAndCost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "es", r.FormValue("language"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":     "hola mundo",
			"duration": 120.0,
		})
	}))
	defer server.Close()

	client := asr.NewClient(asr.Config{APIKey: "key", BaseURL: server.URL})
	result, err := client.Transcribe(context.Background(), writeTempAudio(t), "es")
	require.NoError(t, err)
	require.Equal(t, "hola mundo", result.Text)
	require.Equal(t, 120.0, result.InputSeconds)
	require.Greater(t, result.CostUSD, 0.0)
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	client := asr.NewClient(asr.Config{BaseURL: "http://example.invalid"})
	_, err := client.Transcribe(context.Background(), writeTempAudio(t), "en")
	require.Error(t, err)
}

func TestTranscribeContentPolicyErrorIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "request rejected by content policy"},
		})
	}))
	defer server.Close()

	client := asr.NewClient(asr.Config{APIKey: "key", BaseURL: server.URL})
	_, err := client.Transcribe(context.Background(), writeTempAudio(t), "en")
	require.Error(t, err)
}
