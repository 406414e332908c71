// Package layout resolves the per-episode filesystem paths the pipeline
// reads and writes, and implements the cascade engine's .stale marker and
// provenance file protocols on top of them. The directory shape is fixed
// and consumed bit-exact by the stage modules; nothing outside this package
// should hand-build a path into data_dir.
package layout

import "path/filepath"

// Layout resolves per-episode paths rooted at a data directory.
type Layout struct {
	DataDir string
}

// New returns a Layout rooted at dataDir.
func New(dataDir string) Layout {
	return Layout{DataDir: dataDir}
}

func (l Layout) transcriptsDir(episodeID string) string {
	return filepath.Join(l.DataDir, "transcripts", episodeID)
}

func (l Layout) outputsDir(episodeID string) string {
	return filepath.Join(l.DataDir, "outputs", episodeID)
}

// RawMedia is the download stage's output: the fetched source file,
// normalized to a fixed name regardless of its original extension so
// downstream stages and the idempotency engine have one stable path to
// hash and check.
func (l Layout) RawMedia(episodeID string) string {
	return filepath.Join(l.transcriptsDir(episodeID), "source.media")
}

// CleanTranscript is the transcribe stage's output and the corrector's
// input.
func (l Layout) CleanTranscript(episodeID string) string {
	return filepath.Join(l.transcriptsDir(episodeID), "transcript.clean.de.txt")
}

// CorrectedTranscript is the corrector's output.
func (l Layout) CorrectedTranscript(episodeID string) string {
	return filepath.Join(l.transcriptsDir(episodeID), "transcript.corrected.de.txt")
}

// TranslatedTranscript is the translator's output.
func (l Layout) TranslatedTranscript(episodeID string) string {
	return filepath.Join(l.transcriptsDir(episodeID), "transcript.tr.txt")
}

// AdaptedScript is the cultural adapter's output.
func (l Layout) AdaptedScript(episodeID string) string {
	return filepath.Join(l.outputsDir(episodeID), "script.adapted.tr.md")
}

// ChaptersDocument is the chapterizer's output.
func (l Layout) ChaptersDocument(episodeID string) string {
	return filepath.Join(l.outputsDir(episodeID), "chapters.json")
}

// ImagesDir holds chapter images and their manifest.
func (l Layout) ImagesDir(episodeID string) string {
	return filepath.Join(l.outputsDir(episodeID), "images")
}

// ImagesManifest is the imagegen stage's manifest.
func (l Layout) ImagesManifest(episodeID string) string {
	return filepath.Join(l.ImagesDir(episodeID), "manifest.json")
}

// ChapterImage is the image file for one chapter. ext includes the leading dot.
func (l Layout) ChapterImage(episodeID, chapterID, ext string) string {
	return filepath.Join(l.ImagesDir(episodeID), chapterID+"_image"+ext)
}

// TTSDir holds chapter audio and its manifest.
func (l Layout) TTSDir(episodeID string) string {
	return filepath.Join(l.outputsDir(episodeID), "tts")
}

// TTSManifest is the tts stage's manifest.
func (l Layout) TTSManifest(episodeID string) string {
	return filepath.Join(l.TTSDir(episodeID), "manifest.json")
}

// ChapterAudio is the synthesized mp3 for one chapter.
func (l Layout) ChapterAudio(episodeID, chapterID string) string {
	return filepath.Join(l.TTSDir(episodeID), chapterID+".mp3")
}

// RenderDir holds render segments, draft, and manifest.
func (l Layout) RenderDir(episodeID string) string {
	return filepath.Join(l.outputsDir(episodeID), "render")
}

// RenderManifest is the render stage's manifest.
func (l Layout) RenderManifest(episodeID string) string {
	return filepath.Join(l.RenderDir(episodeID), "render_manifest.json")
}

// RenderSegmentsDir holds per-chapter rendered video segments.
func (l Layout) RenderSegmentsDir(episodeID string) string {
	return filepath.Join(l.RenderDir(episodeID), "segments")
}

// RenderSegment is the rendered mp4 for one chapter.
func (l Layout) RenderSegment(episodeID, chapterID string) string {
	return filepath.Join(l.RenderSegmentsDir(episodeID), chapterID+".mp4")
}

// DraftVideo is the concatenated, not-yet-reviewed render output.
func (l Layout) DraftVideo(episodeID string) string {
	return filepath.Join(l.RenderDir(episodeID), "draft.mp4")
}

// ReviewDir holds diff artifacts and the append-only reviewer log.
func (l Layout) ReviewDir(episodeID string) string {
	return filepath.Join(l.outputsDir(episodeID), "review")
}

// CorrectionDiff is the gate-1 diff artifact.
func (l Layout) CorrectionDiff(episodeID string) string {
	return filepath.Join(l.ReviewDir(episodeID), "correction_diff.json")
}

// AdaptationDiff is the gate-2 diff artifact.
func (l Layout) AdaptationDiff(episodeID string) string {
	return filepath.Join(l.ReviewDir(episodeID), "adaptation_diff.json")
}

// ReviewHistory is the append-only reviewer log.
func (l Layout) ReviewHistory(episodeID string) string {
	return filepath.Join(l.ReviewDir(episodeID), "review_history.json")
}

// ProvenanceDir holds one provenance file per stage.
func (l Layout) ProvenanceDir(episodeID string) string {
	return filepath.Join(l.outputsDir(episodeID), "provenance")
}

// ProvenanceFile is the provenance record for a given stage name.
func (l Layout) ProvenanceFile(episodeID, stage string) string {
	return filepath.Join(l.ProvenanceDir(episodeID), stage+"_provenance.json")
}

// StaleMarker is the sibling file that invalidates outputFile.
func StaleMarker(outputFile string) string {
	return outputFile + ".stale"
}
