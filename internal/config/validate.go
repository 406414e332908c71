package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateDrivers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Version != 1 && c.Pipeline.Version != 2 {
		return fmt.Errorf("pipeline.version must be 1 or 2, got %d", c.Pipeline.Version)
	}
	if c.Pipeline.MaxEpisodeCostUSD <= 0 {
		return errors.New("pipeline.max_episode_cost_usd must be positive")
	}
	return nil
}

func (c *Config) validateRender() error {
	if err := ensurePositiveMap(map[string]int{
		"render.fps":                c.Render.FPS,
		"render.crf":                c.Render.CRF,
		"render.segment_timeout_s":  c.Render.SegmentTimeoutSeconds,
		"render.concat_timeout_s":   c.Render.ConcatTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Render.TransitionDurationSeconds < 0 {
		return errors.New("render.transition_duration_s must be >= 0")
	}
	return nil
}

func (c *Config) validateDrivers() error {
	if c.Pipeline.DryRun {
		return nil
	}
	required := map[string]string{
		"drivers.llm_api_key":      c.Drivers.LLMAPIKey,
		"drivers.imagegen_api_key": c.Drivers.ImageGenAPIKey,
		"drivers.tts_api_key":      c.Drivers.TTSAPIKey,
		"drivers.publish_api_key":  c.Drivers.PublishAPIKey,
	}
	for key, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required unless pipeline.dry_run is true", key)
		}
	}
	if c.Drivers.RequestsPerSecond <= 0 {
		return errors.New("drivers.requests_per_second must be positive")
	}
	if c.Drivers.BreakerMaxFailures == 0 {
		return errors.New("drivers.breaker_max_failures must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
