package main

import (
	"context"
	"fmt"
	"log/slog"

	"dubforge/internal/cascade"
	"dubforge/internal/clock"
	"dubforge/internal/config"
	"dubforge/internal/drivers/asr"
	"dubforge/internal/drivers/imagegen"
	"dubforge/internal/drivers/llm"
	"dubforge/internal/drivers/media"
	"dubforge/internal/drivers/publish"
	"dubforge/internal/drivers/source"
	"dubforge/internal/drivers/tts"
	"dubforge/internal/executor"
	"dubforge/internal/layout"
	"dubforge/internal/logging"
	"dubforge/internal/notifications"
	"dubforge/internal/pipeline"
	"dubforge/internal/promptreg"
	"dubforge/internal/review"
	"dubforge/internal/store"
)

// app bundles every long-lived component a command needs: the store, the
// executor (stages wired to live drivers), the review coordinator, the
// prompt registry, and the notifier. Built once per CLI invocation from
// resolved configuration.
type app struct {
	Config   *config.Config
	Store    *store.Store
	Executor *executor.Executor
	Review   review.Coordinator
	Prompts  promptreg.Registry
	Notify   notifications.Service
	Logger   *slog.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(ctx, cfg.Paths.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cl := clock.New()
	lay := layout.New(cfg.Paths.DataDir)
	eng := cascade.New(lay)
	reviewer := review.New(st, eng, cl)
	prompts := promptreg.New(st)
	notifier := notifications.NewService(cfg)

	deps := pipeline.Deps{
		Store:             st,
		Layout:            lay,
		Cascade:           eng,
		Clock:             cl,
		MaxEpisodeCostUSD: cfg.Pipeline.MaxEpisodeCostUSD,
		DryRun:            cfg.Pipeline.DryRun,
	}

	stages := executor.StageSet{
		Download: pipeline.NewDownload(deps, source.NewClient(source.Config{
			TimeoutSeconds:     30,
			RequestsPerSecond:  cfg.Drivers.RequestsPerSecond,
			BreakerMaxFailures: cfg.Drivers.BreakerMaxFailures,
		})),
		Transcribe: pipeline.NewTranscribe(deps, asr.NewClient(asr.Config{
			APIKey:             cfg.Drivers.LLMAPIKey,
			BaseURL:            cfg.Drivers.LLMBaseURL,
			RequestsPerSecond:  cfg.Drivers.RequestsPerSecond,
			BreakerMaxFailures: cfg.Drivers.BreakerMaxFailures,
		}), "de"),
		Correct: pipeline.NewCorrect(deps, newLLMClient(cfg), prompts, reviewer),
		Translate: pipeline.NewTranslate(deps, newLLMClient(cfg), prompts),
		Adapt:     pipeline.NewAdapt(deps, newLLMClient(cfg), prompts, reviewer),
		Chapterize: pipeline.NewChapterize(deps, newLLMClient(cfg), prompts),
		ImageGen: pipeline.NewImageGen(deps, imagegen.NewClient(imagegen.Config{
			APIKey:             cfg.Drivers.ImageGenAPIKey,
			BaseURL:            cfg.Drivers.ImageGenBaseURL,
			Quality:            cfg.ImageGen.Quality,
			RequestsPerSecond:  cfg.Drivers.RequestsPerSecond,
			BreakerMaxFailures: cfg.Drivers.BreakerMaxFailures,
		}), cfg.ImageGen.Model, cfg.ImageGen.StylePrefix),
		TTS: pipeline.NewTTS(deps, tts.NewClient(tts.Config{
			APIKey:             cfg.Drivers.TTSAPIKey,
			BaseURL:            cfg.Drivers.TTSBaseURL,
			RequestsPerSecond:  cfg.Drivers.RequestsPerSecond,
			BreakerMaxFailures: cfg.Drivers.BreakerMaxFailures,
		}), cfg.TTS.VoiceID),
		Render: pipeline.NewRender(deps, media.NewClient(cfg.Drivers.FFmpegBinary, cfg.Drivers.FFprobeBinary, media.Config{
			Resolution:                cfg.Render.Resolution,
			FPS:                       cfg.Render.FPS,
			CRF:                       cfg.Render.CRF,
			Preset:                    cfg.Render.Preset,
			AudioBitrate:              cfg.Render.AudioBitrate,
			TransitionDurationSeconds: cfg.Render.TransitionDurationSeconds,
			SegmentTimeoutSeconds:     cfg.Render.SegmentTimeoutSeconds,
			ConcatTimeoutSeconds:      cfg.Render.ConcatTimeoutSeconds,
		}), reviewer),
		Publish: pipeline.NewPublish(deps, publish.NewClient(publish.Config{
			APIKey:             cfg.Drivers.PublishAPIKey,
			BaseURL:            cfg.Drivers.PublishBaseURL,
			RequestsPerSecond:  cfg.Drivers.RequestsPerSecond,
			BreakerMaxFailures: cfg.Drivers.BreakerMaxFailures,
		}), "private", nil),
	}

	exec := executor.New(st, reviewer, cl, logger, stages)
	exec.Notify = notifier
	exec.MaxEpisodeCostUSD = cfg.Pipeline.MaxEpisodeCostUSD

	return &app{
		Config:   cfg,
		Store:    st,
		Executor: exec,
		Review:   reviewer,
		Prompts:  prompts,
		Notify:   notifier,
		Logger:   logger,
	}, nil
}

func newLLMClient(cfg *config.Config) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:             cfg.Drivers.LLMAPIKey,
		BaseURL:            cfg.Drivers.LLMBaseURL,
		RequestsPerSecond:  cfg.Drivers.RequestsPerSecond,
		BreakerMaxFailures: cfg.Drivers.BreakerMaxFailures,
	})
}

func (a *app) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
