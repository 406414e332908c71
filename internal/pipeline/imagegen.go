package pipeline

import (
	"context"
	"fmt"
	"strings"

	"dubforge/internal/drivers/imagegen"
	"dubforge/internal/fileutil"
	"dubforge/internal/layout"
	"dubforge/internal/pipelineerr"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// ImageGen generates one still image per chapter, recovering independently
// per chapter via the images manifest so a partial failure only re-runs
// the chapters that did not finish.
type ImageGen struct {
	loggerBox
	Deps
	ImageGen    *imagegen.Client
	Model       string
	StylePrefix string
}

// NewImageGen returns an ImageGen stage module.
func NewImageGen(deps Deps, client *imagegen.Client, model, stylePrefix string) *ImageGen {
	return &ImageGen{Deps: deps, ImageGen: client, Model: model, StylePrefix: stylePrefix}
}

func (s *ImageGen) prompt(ch layout.Chapter) string {
	prompt := ch.Visual.ImagePrompt
	if prompt == "" {
		prompt = ch.Visual.Description
	}
	if s.StylePrefix == "" {
		return prompt
	}
	return strings.TrimSpace(s.StylePrefix + " " + prompt)
}

func (s *ImageGen) textHash(ch layout.Chapter) string {
	return fileutil.HashCanonicalFields(map[string]string{
		"prompt": s.prompt(ch),
		"model":  s.Model,
	})
}

// Prepare reports whether every chapter's image is already current.
func (s *ImageGen) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	chapters, err := s.Layout.ReadChapters(episode.ID)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: imagegen: read chapters: %w", err)
	}
	if chapters == nil {
		return stage.Decision{}, pipelineerr.Wrap(pipelineerr.ErrValidation, string(stage.ImageGen), "prepare", "no chapter document for episode", nil)
	}
	manifest, err := layout.ReadManifest(s.Layout.ImagesManifest(episode.ID))
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: imagegen: read manifest: %w", err)
	}
	for _, ch := range chapters.Chapters {
		if !manifest.Current(ch.ChapterID, s.textHash(ch)) {
			return stage.Run(), nil
		}
	}
	return stage.SkipBecause("every chapter image already current"), nil
}

// Execute generates every chapter image not already current in the
// manifest, recording a provenance file for the whole stage invocation
// and a manifest entry per chapter as each completes.
func (s *ImageGen) Execute(ctx context.Context, episode *store.Episode) error {
	chapters, err := s.Layout.ReadChapters(episode.ID)
	if err != nil {
		return fmt.Errorf("pipeline: imagegen: read chapters: %w", err)
	}
	if chapters == nil {
		return pipelineerr.Wrap(pipelineerr.ErrValidation, string(stage.ImageGen), "execute", "no chapter document for episode", nil)
	}
	manifestPath := s.Layout.ImagesManifest(episode.ID)
	manifest, err := layout.ReadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("pipeline: imagegen: read manifest: %w", err)
	}

	run, err := s.startRun(ctx, episode.ID, stage.ImageGen)
	if err != nil {
		return fmt.Errorf("pipeline: imagegen: start run: %w", err)
	}

	var totalCost float64
	processed := 0
	for _, ch := range chapters.Chapters {
		textHash := s.textHash(ch)
		if manifest.Current(ch.ChapterID, textHash) {
			continue
		}
		if err := s.guardCost(ctx, episode.ID, stage.ImageGen); err != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
			return err
		}

		result, genErr := s.ImageGen.Generate(ctx, s.prompt(ch), s.Model)
		if genErr != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, genErr.Error(), totalCost)
			return genErr
		}
		totalCost += result.CostUSD

		outputPath := s.Layout.ChapterImage(episode.ID, ch.ChapterID, extForMime(result.MimeType, ".png"))
		if err := fileutil.WriteFileAtomic(outputPath, result.ImageData, 0o644); err != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
			return fmt.Errorf("pipeline: imagegen: write image: %w", err)
		}

		if _, err := s.Store.CreateMediaAsset(ctx, store.MediaAsset{
			EpisodeID: episode.ID,
			ChapterID: ch.ChapterID,
			AssetType: store.AssetImage,
			FilePath:  outputPath,
			MimeType:  result.MimeType,
		}); err != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
			return fmt.Errorf("pipeline: imagegen: record media asset: %w", err)
		}

		manifest = manifest.WithEntry(layout.ManifestEntry{ChapterID: ch.ChapterID, TextHash: textHash, OutputPath: outputPath})
		if err := layout.WriteManifest(manifestPath, manifest); err != nil {
			_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
			return fmt.Errorf("pipeline: imagegen: write manifest: %w", err)
		}
		processed++
	}

	chaptersHash, err := fileutil.HashFile(s.Layout.ChaptersDocument(episode.ID))
	if err != nil {
		return fmt.Errorf("pipeline: imagegen: hash chapters: %w", err)
	}
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:             string(stage.ImageGen),
		EpisodeID:         episode.ID,
		Timestamp:         s.Clock.Now(),
		Model:             s.Model,
		InputFiles:        []string{s.Layout.ChaptersDocument(episode.ID)},
		InputContentHash:  chaptersHash,
		OutputFiles:       []string{manifestPath},
		CostUSD:           totalCost,
		DurationSeconds:   s.Clock.Since(run.StartedAt).Seconds(),
		SegmentsProcessed: processed,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
		return fmt.Errorf("pipeline: imagegen: write provenance: %w", err)
	}
	if err := s.invalidateDownstream(episode.ID, stage.ImageGen, "stage rerun"); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
		return fmt.Errorf("pipeline: imagegen: invalidate downstream: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, 0, 0, totalCost); err != nil {
		return fmt.Errorf("pipeline: imagegen: finish run: %w", err)
	}
	return s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusImagesGenerated)
}

// HealthCheck reports the imagegen stage as ready; credential validation
// happens on first call, matching the other generative drivers.
func (s *ImageGen) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(string(stage.ImageGen))
}
