package pipeline

import (
	"context"
	"fmt"

	"dubforge/internal/drivers/tts"
	"dubforge/internal/fileutil"
	"dubforge/internal/layout"
	"dubforge/internal/pipelineerr"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// TTS synthesizes narration audio for each chapter, recovering
// independently per chapter via the tts manifest.
type TTS struct {
	loggerBox
	Deps
	TTS     *tts.Client
	VoiceID string
}

// NewTTS returns a TTS stage module.
func NewTTS(deps Deps, client *tts.Client, voiceID string) *TTS {
	return &TTS{Deps: deps, TTS: client, VoiceID: voiceID}
}

func (s *TTS) textHash(ch layout.Chapter) string {
	return fileutil.HashCanonicalFields(map[string]string{
		"text":  ch.Narration.Text,
		"voice": s.VoiceID,
	})
}

// Prepare reports whether every chapter's narration audio is already
// current.
func (s *TTS) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	chapters, err := s.Layout.ReadChapters(episode.ID)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: tts: read chapters: %w", err)
	}
	if chapters == nil {
		return stage.Decision{}, pipelineerr.Wrap(pipelineerr.ErrValidation, string(stage.TTS), "prepare", "no chapter document for episode", nil)
	}
	manifest, err := layout.ReadManifest(s.Layout.TTSManifest(episode.ID))
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: tts: read manifest: %w", err)
	}
	for _, ch := range chapters.Chapters {
		if !manifest.Current(ch.ChapterID, s.textHash(ch)) {
			return stage.Run(), nil
		}
	}
	return stage.SkipBecause("every chapter narration already current"), nil
}

// Execute synthesizes every chapter's narration not already current in
// the manifest.
func (s *TTS) Execute(ctx context.Context, episode *store.Episode) error {
	chapters, err := s.Layout.ReadChapters(episode.ID)
	if err != nil {
		return fmt.Errorf("pipeline: tts: read chapters: %w", err)
	}
	if chapters == nil {
		return pipelineerr.Wrap(pipelineerr.ErrValidation, string(stage.TTS), "execute", "no chapter document for episode", nil)
	}
	manifestPath := s.Layout.TTSManifest(episode.ID)
	manifest, err := layout.ReadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("pipeline: tts: read manifest: %w", err)
	}

	run, err := s.startRun(ctx, episode.ID, stage.TTS)
	if err != nil {
		return fmt.Errorf("pipeline: tts: start run: %w", err)
	}

	var totalCost float64
	processed := 0
	for _, ch := range chapters.Chapters {
		textHash := s.textHash(ch)
		if manifest.Current(ch.ChapterID, textHash) {
			continue
		}
		if err := s.guardCost(ctx, episode.ID, stage.TTS); err != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
			return err
		}

		result, synthErr := s.TTS.Synthesize(ctx, ch.Narration.Text, s.VoiceID)
		if synthErr != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, synthErr.Error(), totalCost)
			return synthErr
		}
		totalCost += result.CostUSD

		outputPath := s.Layout.ChapterAudio(episode.ID, ch.ChapterID)
		if err := fileutil.WriteFileAtomic(outputPath, result.AudioData, 0o644); err != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
			return fmt.Errorf("pipeline: tts: write audio: %w", err)
		}

		duration := result.DurationSeconds
		if _, err := s.Store.CreateMediaAsset(ctx, store.MediaAsset{
			EpisodeID:       episode.ID,
			ChapterID:       ch.ChapterID,
			AssetType:       store.AssetAudio,
			FilePath:        outputPath,
			MimeType:        result.MimeType,
			DurationSeconds: &duration,
		}); err != nil {
			_ = layout.WriteManifest(manifestPath, manifest)
			_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
			return fmt.Errorf("pipeline: tts: record media asset: %w", err)
		}

		manifest = manifest.WithEntry(layout.ManifestEntry{ChapterID: ch.ChapterID, TextHash: textHash, OutputPath: outputPath})
		if err := layout.WriteManifest(manifestPath, manifest); err != nil {
			_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
			return fmt.Errorf("pipeline: tts: write manifest: %w", err)
		}
		processed++
	}

	chaptersHash, err := fileutil.HashFile(s.Layout.ChaptersDocument(episode.ID))
	if err != nil {
		return fmt.Errorf("pipeline: tts: hash chapters: %w", err)
	}
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:             string(stage.TTS),
		EpisodeID:         episode.ID,
		Timestamp:         s.Clock.Now(),
		InputFiles:        []string{s.Layout.ChaptersDocument(episode.ID)},
		InputContentHash:  chaptersHash,
		OutputFiles:       []string{manifestPath},
		CostUSD:           totalCost,
		DurationSeconds:   s.Clock.Since(run.StartedAt).Seconds(),
		SegmentsProcessed: processed,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
		return fmt.Errorf("pipeline: tts: write provenance: %w", err)
	}
	if err := s.invalidateDownstream(episode.ID, stage.TTS, "stage rerun"); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), totalCost)
		return fmt.Errorf("pipeline: tts: invalidate downstream: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, 0, 0, totalCost); err != nil {
		return fmt.Errorf("pipeline: tts: finish run: %w", err)
	}
	return s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusTTSDone)
}

// HealthCheck reports the tts stage as ready; credential validation
// happens on first call.
func (s *TTS) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(string(stage.TTS))
}
