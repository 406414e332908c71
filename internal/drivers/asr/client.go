// Package asr implements the speech-to-text driver port the transcribe
// stage calls: audio file in, transcript text out.
package asr

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
// transcription endpoint.
type Config struct {
	APIKey             string
	BaseURL            string
	TimeoutSeconds     int
	RequestsPerSecond  float64
	BreakerMaxFailures uint32
}

// Result is the outcome of a single Transcribe call.
type Result struct {
	Text         string
	InputSeconds float64
	CostUSD      float64
}

// Client is the asr driver port.
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
		breaker:    resilience.NewBreaker[Result]("asr", cfg.BreakerMaxFailures),
	}
}

type transcribeResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe produces a transcript for the audio/video file at audioPath in
// the given language, honoring the shared resilience policy.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrConfiguration, "transcribe", "transcribe", "api key required", nil)
	}
	result, err := resilience.Do(ctx, c.limiter, c.breaker, resilience.DefaultRetry(), isTerminalError, func(ctx context.Context) (Result, error) {
		return c.transcribeOnce(ctx, audioPath, language)
	})
	if err != nil {
		if errors.Is(err, pipelineerr.ErrContentPolicy) {
			return Result{}, err
		}
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrExternalTool, "transcribe", "transcribe", "transcription failed", err)
	}
	return result, nil
}

func (c *Client) transcribeOnce(ctx context.Context, audioPath, language string) (Result, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("asr: open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("language", language); err != nil {
		return Result{}, fmt.Errorf("asr: write language field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return Result{}, fmt.Errorf("asr: create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Result{}, fmt.Errorf("asr: copy audio into request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("asr: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &body)
	if err != nil {
		return Result{}, fmt.Errorf("asr: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("asr: http error: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("asr: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("asr: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("asr: decode response: %w", err)
	}
	if parsed.Error != nil {
		if isContentPolicyError(errors.New(parsed.Error.Message)) {
			return Result{}, fmt.Errorf("asr: api error: %s: %w", parsed.Error.Message, pipelineerr.ErrContentPolicy)
		}
		return Result{}, fmt.Errorf("asr: api error: %s", parsed.Error.Message)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return Result{}, errors.New("asr: empty transcript")
	}

	return Result{
		Text:         parsed.Text,
		InputSeconds: parsed.Duration,
		CostUSD:      estimateCostUSD(parsed.Duration),
	}, nil
}

// estimateCostUSD uses a flat per-minute rate, the usual pricing shape for
// hosted transcription endpoints.
func estimateCostUSD(durationSeconds float64) float64 {
	const costPerMinute = 0.006
	return durationSeconds / 60.0 * costPerMinute
}

func isTerminalError(err error) bool {
	return errors.Is(err, pipelineerr.ErrContentPolicy) || isContentPolicyError(err)
}

func isContentPolicyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content policy") || strings.Contains(msg, "moderation")
}
