package pipeline

import (
	"context"
	"fmt"

	"dubforge/internal/drivers/asr"
	"dubforge/internal/fileutil"
	"dubforge/internal/layout"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// Transcribe runs speech-to-text over the fetched source file.
type Transcribe struct {
	loggerBox
	Deps
	ASR      *asr.Client
	Language string
}

// NewTranscribe returns a Transcribe stage module. language is the BCP-47
// tag passed to the ASR driver (the on-disk transcript naming convention
// assumes "de").
func NewTranscribe(deps Deps, client *asr.Client, language string) *Transcribe {
	if language == "" {
		language = "de"
	}
	return &Transcribe{Deps: deps, ASR: client, Language: language}
}

func (s *Transcribe) inputHash(episode *store.Episode) (string, error) {
	mediaHash, err := fileutil.HashFile(s.Layout.RawMedia(episode.ID))
	if err != nil {
		return "", fmt.Errorf("pipeline: transcribe: hash source media: %w", err)
	}
	return fileutil.HashCanonicalFields(map[string]string{
		"source_media_hash": mediaHash,
		"language":          s.Language,
	}), nil
}

// Prepare reports whether the clean transcript is already current.
func (s *Transcribe) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	inputHash, err := s.inputHash(episode)
	if err != nil {
		return stage.Decision{}, err
	}
	current, err := s.Cascade.IsCurrent(stage.Transcribe, episode.ID, inputHash)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: transcribe: prepare: %w", err)
	}
	if current {
		return stage.SkipBecause("transcript already current for this source file"), nil
	}
	return stage.Run(), nil
}

// Execute transcribes the source file and writes the clean transcript.
func (s *Transcribe) Execute(ctx context.Context, episode *store.Episode) error {
	if err := s.guardCost(ctx, episode.ID, stage.Transcribe); err != nil {
		return err
	}
	run, err := s.startRun(ctx, episode.ID, stage.Transcribe)
	if err != nil {
		return fmt.Errorf("pipeline: transcribe: start run: %w", err)
	}

	result, err := s.ASR.Transcribe(ctx, s.Layout.RawMedia(episode.ID), s.Language)
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}

	dest := s.Layout.CleanTranscript(episode.ID)
	if err := fileutil.WriteFileAtomic(dest, []byte(result.Text), 0o644); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: transcribe: write transcript: %w", err)
	}

	if _, err := s.Store.CreateArtifact(ctx, store.ContentArtifact{
		EpisodeID:    episode.ID,
		ArtifactType: string(stage.Transcribe),
		FilePath:     dest,
		CostUSD:      result.CostUSD,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: transcribe: record artifact: %w", err)
	}

	inputHash, err := s.inputHash(episode)
	if err != nil {
		return err
	}
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:            string(stage.Transcribe),
		EpisodeID:        episode.ID,
		Timestamp:        s.Clock.Now(),
		InputFiles:       []string{s.Layout.RawMedia(episode.ID)},
		InputContentHash: inputHash,
		OutputFiles:      []string{dest},
		CostUSD:          result.CostUSD,
		DurationSeconds:  s.Clock.Since(run.StartedAt).Seconds(),
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: transcribe: write provenance: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, 0, 0, result.CostUSD); err != nil {
		return fmt.Errorf("pipeline: transcribe: finish run: %w", err)
	}
	return s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusTranscribed)
}

// HealthCheck always reports the transcribe stage as ready; it does not
// check the ASR endpoint or its credentials.
func (s *Transcribe) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(string(stage.Transcribe))
}
