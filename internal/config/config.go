package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config centralizes every knob the executor, stage modules, and CLI need.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Pipeline Pipeline `toml:"pipeline"`
	Render   Render   `toml:"render"`
	ImageGen ImageGen `toml:"imagegen"`
	TTS      TTS      `toml:"tts"`
	Drivers  Drivers  `toml:"drivers"`
	Logging  Logging  `toml:"logging"`
	Notify   Notifications `toml:"notifications"`
}

// Notifications holds the ntfy-backed notifier's topic and per-event toggles.
type Notifications struct {
	Topic                 string `toml:"topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_s"`
	DedupWindowSeconds    int    `toml:"dedup_window_s"`
	NotifyStageStart      bool   `toml:"notify_stage_start"`
	NotifyStageComplete   bool   `toml:"notify_stage_complete"`
	NotifyStageFailure    bool   `toml:"notify_stage_failure"`
	NotifyReviewPending   bool   `toml:"notify_review_pending"`
	NotifyCostLimit       bool   `toml:"notify_cost_limit"`
	NotifyPublished       bool   `toml:"notify_published"`
	MinStageSeconds       int    `toml:"min_stage_seconds"`
}

// Paths are the on-disk locations the pipeline reads and writes.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	DBPath     string `toml:"db_path"`
	PromptsDir string `toml:"prompts_dir"`
}

// Pipeline holds the core dispatch and cost-control knobs.
type Pipeline struct {
	Version           int     `toml:"version"`
	MaxEpisodeCostUSD float64 `toml:"max_episode_cost_usd"`
	DryRun            bool    `toml:"dry_run"`
}

// Render holds ffmpeg encode/concat knobs.
type Render struct {
	Resolution              string  `toml:"resolution"`
	FPS                      int     `toml:"fps"`
	CRF                      int     `toml:"crf"`
	Preset                   string  `toml:"preset"`
	AudioBitrate             string  `toml:"audio_bitrate"`
	Font                     string  `toml:"font"`
	SegmentTimeoutSeconds    int     `toml:"segment_timeout_s"`
	ConcatTimeoutSeconds     int     `toml:"concat_timeout_s"`
	TransitionDurationSeconds float64 `toml:"transition_duration_s"`
}

// ImageGen holds the image-generation driver's provider/style knobs.
type ImageGen struct {
	Provider    string `toml:"provider"`
	Model       string `toml:"model"`
	Size        string `toml:"size"`
	Quality     string `toml:"quality"`
	StylePrefix string `toml:"style_prefix"`
}

// TTS holds the speech-synthesis driver's voice knobs.
type TTS struct {
	VoiceID         string  `toml:"voice_id"`
	Model           string  `toml:"model"`
	Stability       float64 `toml:"stability"`
	SimilarityBoost float64 `toml:"similarity_boost"`
	Style           float64 `toml:"style"`
	UseSpeakerBoost bool    `toml:"use_speaker_boost"`
}

// Drivers holds credentials and resilience policy knobs for the LLM,
// image-gen, TTS, and publish driver ports, plus the ffmpeg/ffprobe
// binaries the media driver shells out to.
type Drivers struct {
	LLMAPIKey      string `toml:"llm_api_key"`
	LLMBaseURL     string `toml:"llm_base_url"`
	ImageGenAPIKey string `toml:"imagegen_api_key"`
	ImageGenBaseURL string `toml:"imagegen_base_url"`
	TTSAPIKey      string `toml:"tts_api_key"`
	TTSBaseURL     string `toml:"tts_base_url"`
	PublishAPIKey  string `toml:"publish_api_key"`
	PublishBaseURL string `toml:"publish_base_url"`

	RequestsPerSecond  float64 `toml:"requests_per_second"`
	BreakerMaxFailures uint32  `toml:"breaker_max_failures"`

	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Logging holds the structured-logging output knobs.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Default returns a Config populated with repository defaults, including
// the per-episode cost cap seed. Per-image and TTS costs are not
// configurable; the imagegen and tts drivers carry their own rates.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			DBPath:     defaultDBPath,
			PromptsDir: defaultPromptsDir,
		},
		Pipeline: Pipeline{
			Version:           2,
			MaxEpisodeCostUSD: defaultMaxEpisodeCostUSD,
			DryRun:            false,
		},
		Render: Render{
			Resolution:                "1920x1080",
			FPS:                        30,
			CRF:                        20,
			Preset:                     "medium",
			AudioBitrate:               "192k",
			SegmentTimeoutSeconds:      300,
			ConcatTimeoutSeconds:       600,
			TransitionDurationSeconds: 0.5,
		},
		ImageGen: ImageGen{
			Provider: "openai",
			Model:    "gpt-image-1",
			Size:     "landscape",
			Quality:  "standard",
		},
		TTS: TTS{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		Drivers: Drivers{
			RequestsPerSecond:  2,
			BreakerMaxFailures: 5,
			FFmpegBinary:       "ffmpeg",
			FFprobeBinary:      "ffprobe",
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notify: Notifications{
			RequestTimeoutSeconds: 10,
			DedupWindowSeconds:    600,
			NotifyStageStart:      false,
			NotifyStageComplete:   true,
			NotifyStageFailure:    true,
			NotifyReviewPending:   true,
			NotifyCostLimit:       true,
			NotifyPublished:       true,
			MinStageSeconds:       0,
		},
	}
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dubforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/dubforge/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dubforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.PromptsDir, filepath.Dir(c.Paths.DBPath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
