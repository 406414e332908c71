package llm

import (
	"bytes"
	"context"
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

const (
	defaultHTTPTimeout = 60 * time.Second
	jsonResponseType   = "json_object"
)

// Config captures the runtime settings required to talk to the LLM
// endpoint.
type Config struct {
	APIKey             string
	BaseURL            string
	Referer            string
	Title              string
	TimeoutSeconds     int
	RequestsPerSecond  float64
	BreakerMaxFailures uint32
}

// Result is the outcome of a single Call.
type Result struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// Client is the llm driver port.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[Result]
}

// NewClient constructs a Client. A zero RequestsPerSecond disables rate
// limiting (unlimited).
func NewClient(cfg Config) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    resilience.NewLimiter(cfg.RequestsPerSecond),
		breaker:    resilience.NewBreaker[Result]("llm", cfg.BreakerMaxFailures),
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	return c
}

// Call issues a JSON-mode chat completion using model and params, honoring
// the rate limiter and circuit breaker, and making up
// to three attempts on transient failures, 1s then 2s apart. Content-policy refusals are
// terminal and never retried.
func (c *Client) Call(ctx context.Context, system, user, model string, params map[string]any) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrConfiguration, "llm", "call", "api key required", nil)
	}

	result, err := resilience.Do(ctx, c.limiter, c.breaker, resilience.DefaultRetry(), isTerminalError, func(ctx context.Context) (Result, error) {
		return c.callOnce(ctx, system, user, model, params)
	})
	if err != nil {
		if errors.Is(err, pipelineerr.ErrContentPolicy) {
			return Result{}, err
		}
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrExternalTool, "llm", "call", "chat completion failed", err)
	}
	return result, nil
}

func isTerminalError(err error) bool {
	return errors.Is(err, pipelineerr.ErrContentPolicy) || isContentPolicyError(err)
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) callOnce(ctx context.Context, system, user, model string, params map[string]any) (Result, error) {
	temperature := 0.2
	if t, ok := params["temperature"].(float64); ok {
		temperature = t
	}
	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    temperature,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("llm: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("llm: http error: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("llm: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("llm: decode response: %w", err)
	}
	if parsed.Error != nil {
		if isContentPolicyError(errors.New(parsed.Error.Message)) {
			return Result{}, fmt.Errorf("llm: api error: %s: %w", parsed.Error.Message, pipelineerr.ErrContentPolicy)
		}
		return Result{}, fmt.Errorf("llm: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, errors.New("llm: empty choices")
	}
	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		return Result{}, fmt.Errorf("llm: content filtered: finish_reason=%s: %w", choice.FinishReason, pipelineerr.ErrContentPolicy)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return Result{}, fmt.Errorf("llm: empty content (finish_reason=%s)", choice.FinishReason)
	}

	return Result{
		Text:         text,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		CostUSD:      EstimateCostUSD(model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens),
	}, nil
}

func isContentPolicyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content filtered") ||
		strings.Contains(msg, "content_filter") ||
		strings.Contains(msg, "moderation") ||
		strings.Contains(msg, "content policy")
}
