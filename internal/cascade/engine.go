package cascade

import (
	"fmt"
	"time"

	"dubforge/internal/layout"
	"dubforge/internal/stage"
)

// Engine answers currentness questions and propagates invalidation for one
// episode, backed by its filesystem layout.
type Engine struct {
	Layout layout.Layout
}

// New returns an Engine rooted at l.
func New(l layout.Layout) Engine {
	return Engine{Layout: l}
}

// singleFileOutput returns the primary output path for stages whose
// currentness is decided by one file plus its .stale marker. Chapter-
// parallel stages (imagegen, tts, render) are decided per-chapter via
// their layout.Manifest instead and are not covered here. Download and
// transcribe are roots of the stage graph (nothing in Downstream ever
// invalidates them) but share the same single-file currentness shape, so
// they reuse IsCurrent for idempotent re-entry rather than a bespoke check.
func (e Engine) singleFileOutput(name stage.Name, episodeID string) (string, bool) {
	switch name {
	case stage.Download:
		return e.Layout.RawMedia(episodeID), true
	case stage.Transcribe:
		return e.Layout.CleanTranscript(episodeID), true
	case stage.Correct:
		return e.Layout.CorrectedTranscript(episodeID), true
	case stage.Translate:
		return e.Layout.TranslatedTranscript(episodeID), true
	case stage.Adapt:
		return e.Layout.AdaptedScript(episodeID), true
	case stage.Chapterize:
		return e.Layout.ChaptersDocument(episodeID), true
	default:
		return "", false
	}
}

// IsCurrent reports whether name's recorded output for episodeID is
// current: the output file exists, carries no .stale marker, and the
// provenance recorded for this invocation was computed from inputHash.
func (e Engine) IsCurrent(name stage.Name, episodeID, inputHash string) (bool, error) {
	output, ok := e.singleFileOutput(name, episodeID)
	if !ok {
		return false, fmt.Errorf("cascade: %s has no single-file currentness check", name)
	}
	if !layout.Exists(output) {
		return false, nil
	}
	if layout.IsStale(output) {
		return false, nil
	}
	prov, err := e.Layout.ReadProvenance(episodeID, string(name))
	if err != nil {
		return false, err
	}
	if prov == nil {
		return false, nil
	}
	return prov.InputContentHash == inputHash, nil
}

// Invalidate marks every stage downstream of name stale for episodeID,
// writing a .stale sibling next to each affected stage's recorded output.
// Chapter-parallel stages are invalidated by removing their manifest's
// currentness guarantee: a missing manifest entry is treated as stale by
// the manifest's own Current check, so invalidating those stages means
// clearing their manifest.
func (e Engine) Invalidate(episodeID string, from stage.Name, reason string, at time.Time) error {
	for _, downstream := range Invalidated(from) {
		if output, ok := e.singleFileOutput(downstream, episodeID); ok {
			if err := layout.WriteStaleMarker(output, string(from), reason, at); err != nil {
				return fmt.Errorf("cascade: invalidate %s: %w", downstream, err)
			}
			continue
		}
		if err := e.invalidateManifestStage(episodeID, downstream); err != nil {
			return fmt.Errorf("cascade: invalidate %s: %w", downstream, err)
		}
	}
	return nil
}

func (e Engine) invalidateManifestStage(episodeID string, name stage.Name) error {
	var manifestPath string
	switch name {
	case stage.ImageGen:
		manifestPath = e.Layout.ImagesManifest(episodeID)
	case stage.TTS:
		manifestPath = e.Layout.TTSManifest(episodeID)
	case stage.Render:
		manifestPath = e.Layout.RenderManifest(episodeID)
	default:
		return fmt.Errorf("cascade: %s is not a manifest-backed stage", name)
	}
	empty := layout.Manifest{Stage: string(name), EpisodeID: episodeID}
	return layout.WriteManifest(manifestPath, empty)
}
