package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"dubforge/internal/drivers/resilience"
	"dubforge/internal/pipelineerr"
)

// Config captures the runtime settings required to talk to the
// publishing endpoint.
type Config struct {
	APIKey             string
	BaseURL            string
	TimeoutSeconds     int
	RequestsPerSecond  float64
	BreakerMaxFailures uint32
}

// Metadata is the publish-time description of the video.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	Visibility  string
}

// Result is the outcome of a successful publish.
type Result struct {
	VideoID string
	URL     string
}

// Client is the publish driver port.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[Result]
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	timeout := 5 * time.Minute
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    resilience.NewLimiter(cfg.RequestsPerSecond),
		breaker:    resilience.NewBreaker[Result]("publish", cfg.BreakerMaxFailures),
	}
}

type publishResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Publish uploads videoPath with metadata and returns the platform's
// video identifier, honoring the rate limiter, circuit breaker, and
// 3-attempt backoff retry policy.
func (c *Client) Publish(ctx context.Context, videoPath string, metadata Metadata) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrConfiguration, "publish", "publish", "api key required", nil)
	}
	result, err := resilience.Do(ctx, c.limiter, c.breaker, resilience.DefaultRetry(), nil, func(ctx context.Context) (Result, error) {
		return c.publishOnce(ctx, videoPath, metadata)
	})
	if err != nil {
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrExternalTool, "publish", "publish", "upload failed", err)
	}
	return result, nil
}

func (c *Client) publishOnce(ctx context.Context, videoPath string, metadata Metadata) (Result, error) {
	file, err := os.Open(videoPath)
	if err != nil {
		return Result{}, fmt.Errorf("publish: open video: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return Result{}, fmt.Errorf("publish: encode metadata: %w", err)
	}
	if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
		return Result{}, fmt.Errorf("publish: write metadata field: %w", err)
	}
	part, err := writer.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return Result{}, fmt.Errorf("publish: create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Result{}, fmt.Errorf("publish: stream video: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("publish: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &body)
	if err != nil {
		return Result{}, fmt.Errorf("publish: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("publish: http error: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("publish: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("publish: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed publishResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("publish: decode response: %w", err)
	}
	if parsed.Error != nil {
		return Result{}, fmt.Errorf("publish: api error: %s", parsed.Error.Message)
	}
	if parsed.ID == "" {
		return Result{}, errors.New("publish: empty video id in response")
	}
	return Result{VideoID: parsed.ID, URL: parsed.URL}, nil
}
