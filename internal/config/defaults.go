package config

const (
	defaultDataDir    = "~/.local/share/dubforge/data"
	defaultLogDir     = "~/.local/share/dubforge/logs"
	defaultDBPath     = "~/.local/share/dubforge/dubforge.db"
	defaultPromptsDir = "~/.local/share/dubforge/prompts"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	// defaultMaxEpisodeCostUSD is the per-episode cost cap seed.
	defaultMaxEpisodeCostUSD = 10.00

	// Cost-accounting seeds, recorded here for reference. Nothing reads
	// them: the imagegen/tts drivers use their own constants with the same
	// values, and Config has no field that overrides them.
	defaultImageCostStandardUSD = 0.080
	defaultImageCostHDUSD       = 0.120
	defaultTTSCostPer1000Chars  = 0.30

	defaultRequestsPerSecond  = 2.0
	defaultBreakerMaxFailures = 5

	defaultFFmpegBinary  = "ffmpeg"
	defaultFFprobeBinary = "ffprobe"

	defaultRenderResolution = "1920x1080"
	defaultRenderFPS        = 30
	defaultRenderCRF        = 20
	defaultRenderPreset     = "medium"
	defaultAudioBitrate     = "192k"
	defaultSegmentTimeout   = 300
	defaultConcatTimeout    = 600
	defaultTransitionSecs   = 0.5

	defaultImageGenProvider = "openai"
	defaultImageGenModel    = "gpt-image-1"
	defaultImageGenSize     = "landscape"
	defaultImageGenQuality  = "standard"
)
