package layout

import (
	"encoding/json"
	"fmt"
	"os"

	"dubforge/internal/fileutil"
)

// ManifestEntry is one chapter's recovery record: its text hash (the
// canonical input that produced the output) and the path of the output it
// produced. A chapter is current iff its manifest entry's text hash matches
// the freshly computed one and its output file exists.
type ManifestEntry struct {
	ChapterID string `json:"chapter_id"`
	TextHash  string `json:"text_hash"`
	OutputPath string `json:"output_path"`
}

// Manifest is the single source of truth for chapter-level recovery in the
// chapter-parallel stages (imagegen, tts, render).
type Manifest struct {
	Stage     string          `json:"stage"`
	EpisodeID string          `json:"episode_id"`
	Entries   []ManifestEntry `json:"entries"`
}

// Current reports whether chapterID's entry matches textHash and its
// output file still exists on disk.
func (m Manifest) Current(chapterID, textHash string) bool {
	for _, e := range m.Entries {
		if e.ChapterID != chapterID {
			continue
		}
		if e.TextHash != textHash {
			return false
		}
		return Exists(e.OutputPath)
	}
	return false
}

// Entry returns the manifest entry for chapterID, if present.
func (m Manifest) Entry(chapterID string) (ManifestEntry, bool) {
	for _, e := range m.Entries {
		if e.ChapterID == chapterID {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// WithEntry returns a copy of m with chapterID's entry replaced or appended.
func (m Manifest) WithEntry(entry ManifestEntry) Manifest {
	out := Manifest{Stage: m.Stage, EpisodeID: m.EpisodeID}
	out.Entries = make([]ManifestEntry, 0, len(m.Entries)+1)
	replaced := false
	for _, e := range m.Entries {
		if e.ChapterID == entry.ChapterID {
			out.Entries = append(out.Entries, entry)
			replaced = true
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	if !replaced {
		out.Entries = append(out.Entries, entry)
	}
	return out
}

// WriteManifest writes m to path atomically.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("layout: marshal manifest: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

// ReadManifest reads the manifest at path. Returns a zero-value Manifest
// (not an error) if the file does not exist yet.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("layout: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("layout: parse manifest: %w", err)
	}
	return m, nil
}
