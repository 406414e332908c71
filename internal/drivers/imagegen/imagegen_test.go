package imagegen_test

import (
	"encoding/base64"
	"encoding/json"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/imagegen"
)

func TestGenerateReturnsDecodedImageAndCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString([]byte("fake-png"))}},
		})
	}))
	t.Cleanup(srv.Close)

	c := imagegen.NewClient(imagegen.Config{APIKey: "key", BaseURL: srv.URL})
	result, err := c.Generate(context.Background(), "a street at night", "sdxl")
	require.NoError(t, err)
	require.Equal(t, []byte("fake-png"), result.ImageData)
	require.Greater(t, result.CostUSD, 0.0)
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	c := imagegen.NewClient(imagegen.Config{BaseURL: "http://unused"})
	_, err := c.Generate(context.Background(), "prompt", "model")
	require.Error(t, err)
}
