package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"dubforge/internal/drivers/resilience"
	"dubforge/internal/pipelineerr"
)

// Per-call cost estimates; unlike token-billed text and audio generation,
// most image endpoints price per call rather than per unit, and price by
// requested quality tier.
const (
	costPerImageStandard = 0.080
	costPerImageHD       = 0.120
)

// Config captures the runtime settings required to talk to the image
// generation endpoint.
type Config struct {
	APIKey             string
	BaseURL            string
	Quality            string
	TimeoutSeconds     int
	RequestsPerSecond  float64
	BreakerMaxFailures uint32
}

func (c Config) costPerImage() float64 {
	if strings.EqualFold(c.Quality, "hd") {
		return costPerImageHD
	}
	return costPerImageStandard
}

// Result is the outcome of a single Generate call.
type Result struct {
	ImageData []byte
	MimeType  string
	CostUSD   float64
}

// Client is the imagegen driver port.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[Result]
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    resilience.NewLimiter(cfg.RequestsPerSecond),
		breaker:    resilience.NewBreaker[Result]("imagegen", cfg.BreakerMaxFailures),
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type generateResponse struct {
	Data []struct {
		B64JSON      string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate produces one chapter image from prompt using model, honoring
// the rate limiter, circuit breaker, and 3-attempt backoff retry policy.
// Content-policy refusals are terminal.
func (c *Client) Generate(ctx context.Context, prompt, model string) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrConfiguration, "imagegen", "generate", "api key required", nil)
	}
	result, err := resilience.Do(ctx, c.limiter, c.breaker, resilience.DefaultRetry(), isContentPolicyError, func(ctx context.Context) (Result, error) {
		return c.generateOnce(ctx, prompt, model)
	})
	if err != nil {
		if errors.Is(err, pipelineerr.ErrContentPolicy) {
			return Result{}, err
		}
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrExternalTool, "imagegen", "generate", "image generation failed", err)
	}
	return result, nil
}

func (c *Client) generateOnce(ctx context.Context, prompt, model string) (Result, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, Model: model})
	if err != nil {
		return Result{}, fmt.Errorf("imagegen: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("imagegen: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("imagegen: http error: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("imagegen: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("imagegen: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("imagegen: decode response: %w", err)
	}
	if parsed.Error != nil {
		if isContentPolicyError(errors.New(parsed.Error.Message)) {
			return Result{}, fmt.Errorf("imagegen: api error: %s: %w", parsed.Error.Message, pipelineerr.ErrContentPolicy)
		}
		return Result{}, fmt.Errorf("imagegen: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return Result{}, errors.New("imagegen: empty data")
	}
	raw, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return Result{}, fmt.Errorf("imagegen: decode image payload: %w", err)
	}
	return Result{ImageData: raw, MimeType: "image/png", CostUSD: c.cfg.costPerImage()}, nil
}

func isContentPolicyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "safety system") ||
		strings.Contains(msg, "moderation")
}
