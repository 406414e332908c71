package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeRender()
	c.normalizeImageGen()
	c.normalizeTTS()
	if err := c.normalizeDrivers(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotify()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DBPath) == "" {
		c.Paths.DBPath = defaultDBPath
	}
	if c.Paths.DBPath, err = expandPath(c.Paths.DBPath); err != nil {
		return fmt.Errorf("paths.db_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.PromptsDir) == "" {
		c.Paths.PromptsDir = defaultPromptsDir
	}
	if c.Paths.PromptsDir, err = expandPath(c.Paths.PromptsDir); err != nil {
		return fmt.Errorf("paths.prompts_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Version == 0 {
		c.Pipeline.Version = 2
	}
	if c.Pipeline.MaxEpisodeCostUSD <= 0 {
		c.Pipeline.MaxEpisodeCostUSD = defaultMaxEpisodeCostUSD
	}
}

func (c *Config) normalizeRender() {
	if strings.TrimSpace(c.Render.Resolution) == "" {
		c.Render.Resolution = defaultRenderResolution
	}
	if c.Render.FPS <= 0 {
		c.Render.FPS = defaultRenderFPS
	}
	if c.Render.CRF <= 0 {
		c.Render.CRF = defaultRenderCRF
	}
	if strings.TrimSpace(c.Render.Preset) == "" {
		c.Render.Preset = defaultRenderPreset
	}
	if strings.TrimSpace(c.Render.AudioBitrate) == "" {
		c.Render.AudioBitrate = defaultAudioBitrate
	}
	if c.Render.SegmentTimeoutSeconds <= 0 {
		c.Render.SegmentTimeoutSeconds = defaultSegmentTimeout
	}
	if c.Render.ConcatTimeoutSeconds <= 0 {
		c.Render.ConcatTimeoutSeconds = defaultConcatTimeout
	}
	if c.Render.TransitionDurationSeconds <= 0 {
		c.Render.TransitionDurationSeconds = defaultTransitionSecs
	}
}

func (c *Config) normalizeImageGen() {
	if strings.TrimSpace(c.ImageGen.Provider) == "" {
		c.ImageGen.Provider = defaultImageGenProvider
	}
	if strings.TrimSpace(c.ImageGen.Model) == "" {
		c.ImageGen.Model = defaultImageGenModel
	}
	if strings.TrimSpace(c.ImageGen.Size) == "" {
		c.ImageGen.Size = defaultImageGenSize
	}
	if strings.TrimSpace(c.ImageGen.Quality) == "" {
		c.ImageGen.Quality = defaultImageGenQuality
	}
}

func (c *Config) normalizeTTS() {
	if c.TTS.Stability <= 0 {
		c.TTS.Stability = 0.5
	}
	if c.TTS.SimilarityBoost <= 0 {
		c.TTS.SimilarityBoost = 0.75
	}
}

func (c *Config) normalizeDrivers() error {
	if c.Drivers.LLMAPIKey == "" {
		if value, ok := os.LookupEnv("DUBFORGE_LLM_API_KEY"); ok {
			c.Drivers.LLMAPIKey = strings.TrimSpace(value)
		}
	}
	if c.Drivers.ImageGenAPIKey == "" {
		if value, ok := os.LookupEnv("DUBFORGE_IMAGEGEN_API_KEY"); ok {
			c.Drivers.ImageGenAPIKey = strings.TrimSpace(value)
		}
	}
	if c.Drivers.TTSAPIKey == "" {
		if value, ok := os.LookupEnv("DUBFORGE_TTS_API_KEY"); ok {
			c.Drivers.TTSAPIKey = strings.TrimSpace(value)
		}
	}
	if c.Drivers.PublishAPIKey == "" {
		if value, ok := os.LookupEnv("DUBFORGE_PUBLISH_API_KEY"); ok {
			c.Drivers.PublishAPIKey = strings.TrimSpace(value)
		}
	}
	if c.Drivers.RequestsPerSecond <= 0 {
		c.Drivers.RequestsPerSecond = defaultRequestsPerSecond
	}
	if c.Drivers.BreakerMaxFailures == 0 {
		c.Drivers.BreakerMaxFailures = defaultBreakerMaxFailures
	}
	if strings.TrimSpace(c.Drivers.FFmpegBinary) == "" {
		c.Drivers.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Drivers.FFprobeBinary) == "" {
		c.Drivers.FFprobeBinary = defaultFFprobeBinary
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotify() {
	if c.Notify.RequestTimeoutSeconds <= 0 {
		c.Notify.RequestTimeoutSeconds = 10
	}
	if c.Notify.DedupWindowSeconds < 0 {
		c.Notify.DedupWindowSeconds = 0
	}
}
