package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/llm"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCallReturnsTextAndUsage(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"ok":true}`}, "finish_reason": "stop"},
			},
			"usage": map[string]int64{"prompt_tokens": 100, "completion_tokens": 20},
		})
	})
	c := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: srv.URL})

	result, err := c.Call(context.Background(), "system", "user", "anthropic/claude-3.5-sonnet", nil)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, result.Text)
	require.Equal(t, int64(100), result.InputTokens)
	require.Equal(t, int64(20), result.OutputTokens)
	require.Greater(t, result.CostUSD, 0.0)
}

func TestCallRequiresAPIKey(t *testing.T) {
	c := llm.NewClient(llm.Config{BaseURL: "http://unused"})
	_, err := c.Call(context.Background(), "s", "u", "m", nil)
	require.Error(t, err)
}

func TestDecodeJSONStripsCodeFence(t *testing.T) {
	var v struct {
		OK bool `json:"ok"`
	}
	err := llm.DecodeJSON("```json\n{\"ok\":true}\n```", &v)
	require.NoError(t, err)
	require.True(t, v.OK)
}

func TestEstimateCostUSDUnknownModelIsZero(t *testing.T) {
	require.Equal(t, 0.0, llm.EstimateCostUSD("unknown/model", 1000, 1000))
}
