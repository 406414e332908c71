package pipeline

import (
	"context"
	"fmt"

	"dubforge/internal/drivers/source"
	"dubforge/internal/fileutil"
	"dubforge/internal/layout"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// Download fetches an episode's raw source file to the on-disk layout.
type Download struct {
	loggerBox
	Deps
	Source *source.Client
}

// NewDownload returns a Download stage module.
func NewDownload(deps Deps, src *source.Client) *Download {
	return &Download{Deps: deps, Source: src}
}

func (s *Download) inputHash(episode *store.Episode) string {
	return fileutil.HashCanonicalFields(map[string]string{"source_uri": episode.SourceURI})
}

// Prepare reports whether the source file is already fetched and current.
func (s *Download) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	current, err := s.Cascade.IsCurrent(stage.Download, episode.ID, s.inputHash(episode))
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: download: prepare: %w", err)
	}
	if current {
		return stage.SkipBecause("source file already fetched for this source_uri"), nil
	}
	return stage.Run(), nil
}

// Execute fetches the episode's source file and records its artifact and
// provenance.
func (s *Download) Execute(ctx context.Context, episode *store.Episode) error {
	run, err := s.startRun(ctx, episode.ID, stage.Download)
	if err != nil {
		return fmt.Errorf("pipeline: download: start run: %w", err)
	}

	dest := s.Layout.RawMedia(episode.ID)
	result, err := s.Source.Fetch(ctx, episode.SourceURI, dest)
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}

	if _, err := s.Store.CreateArtifact(ctx, store.ContentArtifact{
		EpisodeID:    episode.ID,
		ArtifactType: string(stage.Download),
		FilePath:     dest,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return fmt.Errorf("pipeline: download: record artifact: %w", err)
	}

	inputHash := s.inputHash(episode)
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:            string(stage.Download),
		EpisodeID:        episode.ID,
		Timestamp:        s.Clock.Now(),
		InputFiles:       []string{episode.SourceURI},
		InputContentHash: inputHash,
		OutputFiles:      []string{dest},
		DurationSeconds:  s.Clock.Since(run.StartedAt).Seconds(),
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return fmt.Errorf("pipeline: download: write provenance: %w", err)
	}
	_ = result.BytesWritten

	if err := s.finishSuccess(ctx, run.ID, 0, 0, 0); err != nil {
		return fmt.Errorf("pipeline: download: finish run: %w", err)
	}
	return s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusDownloaded)
}

// HealthCheck reports the download stage as ready; the source driver has
// no external binary to probe, only network/filesystem access it cannot
// verify without a concrete URI.
func (s *Download) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(string(stage.Download))
}
