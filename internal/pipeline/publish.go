package pipeline

import (
	"context"
	"fmt"

	"dubforge/internal/drivers/publish"
	"dubforge/internal/fileutil"
	"dubforge/internal/layout"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// Publish uploads the approved draft video to the publishing endpoint.
// It has no cascade input hash of its own: an episode only reaches
// StatusApproved once, via gate 3 approval, so Prepare's only job is to
// refuse to re-publish a terminal episode.
type Publish struct {
	loggerBox
	Deps
	Publish    *publish.Client
	Visibility string
	Tags       []string
}

// NewPublish returns a Publish stage module.
func NewPublish(deps Deps, client *publish.Client, visibility string, tags []string) *Publish {
	return &Publish{Deps: deps, Publish: client, Visibility: visibility, Tags: tags}
}

// Prepare skips an episode that has already been published.
func (s *Publish) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	if episode.Status == store.StatusPublished {
		return stage.SkipBecause("episode already published"), nil
	}
	return stage.Run(), nil
}

// Execute uploads the draft video and records the resulting video ID.
func (s *Publish) Execute(ctx context.Context, episode *store.Episode) error {
	chapters, err := s.Layout.ReadChapters(episode.ID)
	if err != nil {
		return fmt.Errorf("pipeline: publish: read chapters: %w", err)
	}
	title := episode.ID
	if chapters != nil && chapters.Title != "" {
		title = chapters.Title
	}
	draft := s.Layout.DraftVideo(episode.ID)

	run, err := s.startRun(ctx, episode.ID, stage.Publish)
	if err != nil {
		return fmt.Errorf("pipeline: publish: start run: %w", err)
	}

	result, err := s.Publish.Publish(ctx, draft, publish.Metadata{
		Title:      title,
		Visibility: s.Visibility,
		Tags:       s.Tags,
	})
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}

	videoHash, err := fileutil.HashFile(draft)
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return fmt.Errorf("pipeline: publish: hash draft: %w", err)
	}
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:            string(stage.Publish),
		EpisodeID:        episode.ID,
		Timestamp:        s.Clock.Now(),
		InputFiles:       []string{draft},
		InputContentHash: videoHash,
		OutputFiles:      []string{result.URL},
		DurationSeconds:  s.Clock.Since(run.StartedAt).Seconds(),
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return fmt.Errorf("pipeline: publish: write provenance: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, 0, 0, 0); err != nil {
		return fmt.Errorf("pipeline: publish: finish run: %w", err)
	}
	return s.Store.SetEpisodePublished(ctx, episode.ID, result.VideoID)
}

// HealthCheck reports the publish stage as ready; credential validation
// happens on first call.
func (s *Publish) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(string(stage.Publish))
}
