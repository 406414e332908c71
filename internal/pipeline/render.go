package pipeline

import (
	"context"
	"fmt"

	"dubforge/internal/drivers/media"
	"dubforge/internal/fileutil"
	"dubforge/internal/layout"
	"dubforge/internal/pipelineerr"
	"dubforge/internal/review"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// Render composes each chapter's image and narration into a video
// segment, concatenates the segments into a draft video, and opens a
// review gate 3 task on the result.
type Render struct {
	loggerBox
	Deps
	Media  *media.Client
	Review review.Coordinator
}

// NewRender returns a Render stage module.
func NewRender(deps Deps, client *media.Client, reviewer review.Coordinator) *Render {
	return &Render{Deps: deps, Media: client, Review: reviewer}
}

func (s *Render) segmentHash(episodeID, chapterID string) (string, error) {
	imageHash, err := fileutil.HashFile(s.chapterImagePath(episodeID, chapterID))
	if err != nil {
		return "", fmt.Errorf("pipeline: render: hash image: %w", err)
	}
	audioHash, err := fileutil.HashFile(s.Layout.ChapterAudio(episodeID, chapterID))
	if err != nil {
		return "", fmt.Errorf("pipeline: render: hash audio: %w", err)
	}
	return fileutil.HashCanonicalFields(map[string]string{
		"image_hash": imageHash,
		"audio_hash": audioHash,
	}), nil
}

// chapterImagePath resolves the recorded image path from the images
// manifest, since the image's extension depends on the provider's
// reported MIME type.
func (s *Render) chapterImagePath(episodeID, chapterID string) string {
	manifest, err := layout.ReadManifest(s.Layout.ImagesManifest(episodeID))
	if err != nil {
		return ""
	}
	entry, ok := manifest.Entry(chapterID)
	if !ok {
		return ""
	}
	return entry.OutputPath
}

// Prepare reports whether every chapter's rendered segment, and the
// concatenated draft, are already current.
func (s *Render) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	chapters, err := s.Layout.ReadChapters(episode.ID)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: render: read chapters: %w", err)
	}
	if chapters == nil {
		return stage.Decision{}, pipelineerr.Wrap(pipelineerr.ErrValidation, string(stage.Render), "prepare", "no chapter document for episode", nil)
	}
	manifest, err := layout.ReadManifest(s.Layout.RenderManifest(episode.ID))
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: render: read manifest: %w", err)
	}
	if !layout.Exists(s.Layout.DraftVideo(episode.ID)) {
		return stage.Run(), nil
	}
	for _, ch := range chapters.Chapters {
		textHash, err := s.segmentHash(episode.ID, ch.ChapterID)
		if err != nil {
			return stage.Run(), nil
		}
		if !manifest.Current(ch.ChapterID, textHash) {
			return stage.Run(), nil
		}
	}
	return stage.SkipBecause("draft video already current"), nil
}

// Execute renders every chapter segment not already current, concatenates
// the full set into the draft video, and requests review gate 3.
func (s *Render) Execute(ctx context.Context, episode *store.Episode) error {
	if err := s.guardCost(ctx, episode.ID, stage.Render); err != nil {
		return err
	}
	chapters, err := s.Layout.ReadChapters(episode.ID)
	if err != nil {
		return fmt.Errorf("pipeline: render: read chapters: %w", err)
	}
	if chapters == nil {
		return pipelineerr.Wrap(pipelineerr.ErrValidation, string(stage.Render), "execute", "no chapter document for episode", nil)
	}
	manifestPath := s.Layout.RenderManifest(episode.ID)
	manifest, err := layout.ReadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("pipeline: render: read manifest: %w", err)
	}

	run, err := s.startRun(ctx, episode.ID, stage.Render)
	if err != nil {
		return fmt.Errorf("pipeline: render: start run: %w", err)
	}

	segments := make([]string, 0, len(chapters.Chapters))
	for _, ch := range chapters.Chapters {
		textHash, hashErr := s.segmentHash(episode.ID, ch.ChapterID)
		if hashErr != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, hashErr.Error(), 0)
			return fmt.Errorf("pipeline: render: %w", hashErr)
		}
		segmentPath := s.Layout.RenderSegment(episode.ID, ch.ChapterID)
		if manifest.Current(ch.ChapterID, textHash) {
			segments = append(segments, segmentPath)
			continue
		}

		imagePath := s.chapterImagePath(episode.ID, ch.ChapterID)
		audioPath := s.Layout.ChapterAudio(episode.ID, ch.ChapterID)
		opts := media.SegmentOptions{
			Overlays: ch.Overlays,
			FadeIn:   ch.Transitions.In == "fade",
			FadeOut:  ch.Transitions.Out == "fade",
		}
		if err := s.Media.EncodeSegment(ctx, imagePath, audioPath, segmentPath, opts); err != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
			return err
		}
		manifest = manifest.WithEntry(layout.ManifestEntry{ChapterID: ch.ChapterID, TextHash: textHash, OutputPath: segmentPath})
		if err := layout.WriteManifest(manifestPath, manifest); err != nil {
			_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
			return fmt.Errorf("pipeline: render: write manifest: %w", err)
		}
		segments = append(segments, segmentPath)
	}

	draft := s.Layout.DraftVideo(episode.ID)
	if err := s.Media.Concat(ctx, segments, draft); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}

	inspected, err := s.Media.Inspect(ctx, draft)
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}
	duration := inspected.DurationSeconds()

	if _, err := s.Store.CreateMediaAsset(ctx, store.MediaAsset{
		EpisodeID:       episode.ID,
		AssetType:       store.AssetVideo,
		FilePath:        draft,
		DurationSeconds: &duration,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return fmt.Errorf("pipeline: render: record media asset: %w", err)
	}

	artifactHash, err := fileutil.HashFile(draft)
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return fmt.Errorf("pipeline: render: hash draft: %w", err)
	}
	if _, err := s.Store.CreateArtifact(ctx, store.ContentArtifact{
		EpisodeID:    episode.ID,
		ArtifactType: string(stage.Render),
		FilePath:     draft,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return fmt.Errorf("pipeline: render: record artifact: %w", err)
	}

	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:             string(stage.Render),
		EpisodeID:         episode.ID,
		Timestamp:         s.Clock.Now(),
		InputFiles:        []string{s.Layout.ChaptersDocument(episode.ID)},
		InputContentHash:  artifactHash,
		OutputFiles:       []string{draft},
		DurationSeconds:   s.Clock.Since(run.StartedAt).Seconds(),
		SegmentsProcessed: len(segments),
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return fmt.Errorf("pipeline: render: write provenance: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, 0, 0, 0); err != nil {
		return fmt.Errorf("pipeline: render: finish run: %w", err)
	}
	if err := s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusRendered); err != nil {
		return fmt.Errorf("pipeline: render: advance status: %w", err)
	}

	_, _, err = s.Review.RequestReview(ctx, review.RequestReviewInput{
		EpisodeID:    episode.ID,
		Gate:         stage.ReviewGate3,
		ArtifactPaths: []string{draft},
		ArtifactHash: artifactHash,
		CreatedBy:    "pipeline",
	})
	if err != nil {
		return fmt.Errorf("pipeline: render: request review: %w", err)
	}
	return nil
}

// HealthCheck delegates to the media driver's ffmpeg/ffprobe probe.
func (s *Render) HealthCheck(ctx context.Context) stage.Health {
	for _, d := range s.Media.HealthCheck() {
		if !d.Available && !d.Optional {
			return stage.Unhealthy(string(stage.Render), d.Name+": "+d.Detail)
		}
	}
	return stage.Healthy(string(stage.Render))
}
