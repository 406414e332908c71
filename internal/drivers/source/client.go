// Package source implements the acquisition driver port: placing a raw
// episode file (fetched over HTTP or copied from a local path) at a
// deterministic per-episode destination for the download stage.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"dubforge/internal/drivers/resilience"
	"dubforge/internal/pipelineerr"
)

// Config captures the runtime settings for fetching source episodes.
type Config struct {
	TimeoutSeconds     int
	RequestsPerSecond  float64
	BreakerMaxFailures uint32
}

// Result is the outcome of a single Fetch call.
type Result struct {
	BytesWritten int64
}

// Client is the source driver port.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[Result]
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	timeout := 10 * time.Minute
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    resilience.NewLimiter(cfg.RequestsPerSecond),
		breaker:    resilience.NewBreaker[Result]("source", cfg.BreakerMaxFailures),
	}
}

// Fetch places the episode at sourceURI (an http(s):// URL or a local
// filesystem path) at destPath, creating destPath's directory as needed.
func (c *Client) Fetch(ctx context.Context, sourceURI, destPath string) (Result, error) {
	if strings.TrimSpace(sourceURI) == "" {
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrValidation, "download", "fetch", "source uri required", nil)
	}
	result, err := resilience.Do(ctx, c.limiter, c.breaker, resilience.DefaultRetry(), nil, func(ctx context.Context) (Result, error) {
		return c.fetchOnce(ctx, sourceURI, destPath)
	})
	if err != nil {
		return Result{}, pipelineerr.Wrap(pipelineerr.ErrExternalTool, "download", "fetch", "fetch failed", err)
	}
	return result, nil
}

func (c *Client) fetchOnce(ctx context.Context, sourceURI, destPath string) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("source: create destination directory: %w", err)
	}
	if isRemote(sourceURI) {
		return c.fetchRemote(ctx, sourceURI, destPath)
	}
	return c.fetchLocal(sourceURI, destPath)
}

func isRemote(uri string) bool {
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

func (c *Client) fetchRemote(ctx context.Context, sourceURI, destPath string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURI, nil)
	if err != nil {
		return Result{}, fmt.Errorf("source: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("source: http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("source: http %d fetching %s", resp.StatusCode, sourceURI)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return Result{}, fmt.Errorf("source: create destination file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("source: write destination file: %w", err)
	}
	return Result{BytesWritten: written}, nil
}

func (c *Client) fetchLocal(sourcePath, destPath string) (Result, error) {
	in, err := os.Open(sourcePath)
	if err != nil {
		return Result{}, fmt.Errorf("source: open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return Result{}, fmt.Errorf("source: create destination file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, in)
	if err != nil {
		return Result{}, fmt.Errorf("source: copy source file: %w", err)
	}
	return Result{BytesWritten: written}, nil
}
