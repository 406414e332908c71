package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dubforge/internal/deps"
	"dubforge/internal/media/ffprobe"
	"dubforge/internal/pipelineerr"
)

// Config carries the encode/concat knobs read from the render section of
// the repository configuration.
type Config struct {
	Resolution              string
	FPS                      int
	CRF                      int
	Preset                   string
	AudioBitrate             string
	TransitionDurationSeconds float64
	SegmentTimeoutSeconds    int
	ConcatTimeoutSeconds     int
}

// SegmentOptions are the per-chapter knobs EncodeSegment applies on top of
// Config: the chapter's overlay text and whether its in/out transition is
// a fade (rather than a hard cut).
type SegmentOptions struct {
	Overlays []string
	FadeIn   bool
	FadeOut  bool
}

// Client shells out to ffmpeg/ffprobe to render chapter segments and
// concatenate them into a draft video.
type Client struct {
	FFmpegBinary  string
	FFprobeBinary string
	cfg           Config
}

// NewClient returns a Client using the given binaries, defaulting to
// "ffmpeg"/"ffprobe" resolved from PATH when empty, and applying cfg to
// every encode and concat it runs.
func NewClient(ffmpegBinary, ffprobeBinary string, cfg Config) *Client {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Client{FFmpegBinary: ffmpegBinary, FFprobeBinary: ffprobeBinary, cfg: cfg}
}

// HealthCheck reports whether ffmpeg and ffprobe are reachable.
func (c *Client) HealthCheck() []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{Name: "FFmpeg", Command: c.FFmpegBinary, Description: "Used to render chapter segments"},
		{Name: "FFprobe", Command: c.FFprobeBinary, Description: "Used to inspect rendered segment duration"},
	})
}

func (c *Client) segmentTimeout() time.Duration {
	if c.cfg.SegmentTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.cfg.SegmentTimeoutSeconds) * time.Second
}

func (c *Client) concatTimeout() time.Duration {
	if c.cfg.ConcatTimeoutSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(c.cfg.ConcatTimeoutSeconds) * time.Second
}

// EncodeSegment composes one chapter's still image and narration audio
// into a fixed-duration video segment at outputPath, looping the image for
// the audio's duration, scaling to Config.Resolution/FPS, drawing opts'
// overlay text, and applying a fade transition where requested. The
// process is killed if it runs past the configured segment timeout.
func (c *Client) EncodeSegment(ctx context.Context, imagePath, audioPath, outputPath string, opts SegmentOptions) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return pipelineerr.Wrap(pipelineerr.ErrExternalTool, "render", "encode segment", "create output directory", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.segmentTimeout())
	defer cancel()

	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-vf", c.videoFilter(opts),
		"-c:v", "libx264",
		"-preset", presetOrDefault(c.cfg.Preset),
		"-crf", strconv.Itoa(c.cfg.CRF),
		"-c:a", "aac",
		"-b:a", bitrateOrDefault(c.cfg.AudioBitrate),
		"-pix_fmt", "yuv420p",
		"-shortest",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, c.FFmpegBinary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pipelineerr.Wrap(pipelineerr.ErrExternalTool, "render", "encode segment",
				fmt.Sprintf("ffmpeg exceeded %s segment timeout", c.segmentTimeout()), ctx.Err())
		}
		return pipelineerr.Wrap(pipelineerr.ErrExternalTool, "render", "encode segment",
			fmt.Sprintf("ffmpeg failed: %s", strings.TrimSpace(string(output))), err)
	}
	return nil
}

// videoFilter builds the -vf chain: scale and frame rate from Config, one
// drawtext per overlay, then fade transitions. A fade-out is expressed by
// reversing the stream, fading in, and reversing back, since the segment's
// duration (set by -shortest against the audio) is not known in advance.
func (c *Client) videoFilter(opts SegmentOptions) string {
	filters := []string{
		fmt.Sprintf("scale=%s", scaleExpr(c.cfg.Resolution)),
		fmt.Sprintf("fps=%d", fpsOrDefault(c.cfg.FPS)),
	}
	for _, overlay := range opts.Overlays {
		filters = append(filters, fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=36:x=40:y=h-th-40:box=1:boxcolor=black@0.5", escapeDrawtext(overlay)))
	}
	d := c.cfg.TransitionDurationSeconds
	if opts.FadeIn && d > 0 {
		filters = append(filters, fmt.Sprintf("fade=t=in:st=0:d=%s", formatSeconds(d)))
	}
	if opts.FadeOut && d > 0 {
		filters = append(filters, "reverse", fmt.Sprintf("fade=t=in:st=0:d=%s", formatSeconds(d)), "reverse")
	}
	return strings.Join(filters, ",")
}

// Concat joins segments, in order, into outputPath using ffmpeg's concat
// demuxer. The process is killed if it runs past the configured concat
// timeout.
func (c *Client) Concat(ctx context.Context, segments []string, outputPath string) error {
	if len(segments) == 0 {
		return pipelineerr.Wrap(pipelineerr.ErrValidation, "render", "concat", "no segments to concatenate", nil)
	}
	listPath := outputPath + ".concat.txt"
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "file '%s'\n", seg)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return pipelineerr.Wrap(pipelineerr.ErrExternalTool, "render", "concat", "write concat list", err)
	}
	defer os.Remove(listPath)

	ctx, cancel := context.WithTimeout(ctx, c.concatTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, c.FFmpegBinary,
		"-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pipelineerr.Wrap(pipelineerr.ErrExternalTool, "render", "concat",
				fmt.Sprintf("ffmpeg exceeded %s concat timeout", c.concatTimeout()), ctx.Err())
		}
		return pipelineerr.Wrap(pipelineerr.ErrExternalTool, "render", "concat",
			fmt.Sprintf("ffmpeg failed: %s", strings.TrimSpace(string(output))), err)
	}
	return nil
}

// Inspect returns ffprobe's analysis of path, used to validate render
// output duration against the chapter document's estimate.
func (c *Client) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	result, err := ffprobe.Inspect(ctx, c.FFprobeBinary, path)
	if err != nil {
		return ffprobe.Result{}, pipelineerr.Wrap(pipelineerr.ErrExternalTool, "render", "inspect", "ffprobe failed", err)
	}
	return result, nil
}

func scaleExpr(resolution string) string {
	resolution = strings.TrimSpace(strings.ToLower(resolution))
	w, h, ok := strings.Cut(resolution, "x")
	if !ok || w == "" || h == "" {
		return "1920:1080"
	}
	return w + ":" + h
}

func fpsOrDefault(fps int) int {
	if fps <= 0 {
		return 30
	}
	return fps
}

func presetOrDefault(preset string) string {
	if preset == "" {
		return "medium"
	}
	return preset
}

func bitrateOrDefault(bitrate string) string {
	if bitrate == "" {
		return "192k"
	}
	return bitrate
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 2, 64)
}

func escapeDrawtext(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	return replacer.Replace(text)
}
