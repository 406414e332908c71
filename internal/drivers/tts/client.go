package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"dubforge/internal/drivers/resilience"
	"dubforge/internal/pipelineerr"
)

// costPerThousandChars is a flat per-1000-input-characters estimate.
const costPerThousandChars = 0.30

// maxChunkChars is the provider's documented per-request ceiling. Narration
// longer than this is split at sentence boundaries and synthesized as
// separate requests, then the resulting audio is concatenated.
const maxChunkChars = 5000

var sentenceBoundary = regexp.MustCompile(`[^.!?]*[.!?]+(?:\s+|$)`)

// chunkText splits text into pieces no longer than limit, breaking only at
// sentence boundaries so no sentence is split mid-word. A single sentence
// longer than limit is kept whole rather than cut.
func chunkText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	sentences := sentenceBoundary.FindAllString(text, -1)
	if joined := strings.Join(sentences, ""); len(joined) < len(text) {
		sentences = append(sentences, text[len(joined):])
	}
	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence) > limit {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

// Config captures the runtime settings required to talk to the speech
// synthesis endpoint.
type Config struct {
	APIKey             string
	BaseURL            string
	TimeoutSeconds     int
	RequestsPerSecond  float64
	BreakerMaxFailures uint32
}

// Result is the outcome of a single Synthesize call.
type Result struct {
	AudioData       []byte
	MimeType        string
	DurationSeconds float64
	CostUSD         float64
}

// Client is the tts driver port.
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
		breaker:    resilience.NewBreaker[Result]("tts", cfg.BreakerMaxFailures),
	}
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type synthesizeResponse struct {
	AudioBase64     string  `json:"audio_base64"`
	MimeType        string  `json:"mime_type"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize converts text to narration audio in voice, honoring the rate
// limiter, circuit breaker, and 3-attempt backoff retry policy. Text over
// maxChunkChars is split at sentence boundaries and synthesized chunk by
// chunk, and the resulting audio is concatenated into a single result.
// Content-policy refusals are terminal.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrConfiguration, "tts", "synthesize", "api key required", nil)
	}
	chunks := chunkText(text, maxChunkChars)
	var combined Result
	for i, chunk := range chunks {
		result, err := resilience.Do(ctx, c.limiter, c.breaker, resilience.DefaultRetry(), isContentPolicyError, func(ctx context.Context) (Result, error) {
			return c.synthesizeOnce(ctx, chunk, voice)
		})
		if err != nil {
			if errors.Is(err, pipelineerr.ErrContentPolicy) {
				return Result{}, err
			}
			return Result{}, pipelineerr.Wrap(pipelineerr.ErrExternalTool, "tts", "synthesize", fmt.Sprintf("speech synthesis failed on chunk %d/%d", i+1, len(chunks)), err)
		}
		combined.AudioData = append(combined.AudioData, result.AudioData...)
		combined.DurationSeconds += result.DurationSeconds
		combined.CostUSD += result.CostUSD
		if combined.MimeType == "" {
			combined.MimeType = result.MimeType
		}
	}
	return combined, nil
}

func (c *Client) synthesizeOnce(ctx context.Context, text, voice string) (Result, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return Result{}, fmt.Errorf("tts: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("tts: http error: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("tts: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("tts: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("tts: decode response: %w", err)
	}
	if parsed.Error != nil {
		if isContentPolicyError(errors.New(parsed.Error.Message)) {
			return Result{}, fmt.Errorf("tts: api error: %s: %w", parsed.Error.Message, pipelineerr.ErrContentPolicy)
		}
		return Result{}, fmt.Errorf("tts: api error: %s", parsed.Error.Message)
	}
	raw, err := base64.StdEncoding.DecodeString(parsed.AudioBase64)
	if err != nil {
		return Result{}, fmt.Errorf("tts: decode audio payload: %w", err)
	}
	mimeType := parsed.MimeType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return Result{
		AudioData:       raw,
		MimeType:        mimeType,
		DurationSeconds: parsed.DurationSeconds,
		CostUSD:         float64(len(text)) / 1000 * costPerThousandChars,
	}, nil
}

func isContentPolicyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content policy") || strings.Contains(msg, "moderation")
}
