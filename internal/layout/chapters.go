package layout

import (
	"encoding/json"
	"fmt"
	"os"

	"dubforge/internal/fileutil"
)

// VisualType enumerates the kind of visual treatment a chapter uses.
type VisualType string

const (
	VisualTitleCard  VisualType = "title_card"
	VisualDiagram    VisualType = "diagram"
	VisualBRoll      VisualType = "b_roll"
	VisualTalkingHead VisualType = "talking_head"
	VisualScreenShare VisualType = "screen_share"
)

// NeedsImagePrompt reports whether v requires an image_prompt per the
// chapter document schema invariant.
func (v VisualType) NeedsImagePrompt() bool {
	return v == VisualDiagram || v == VisualBRoll
}

// Narration is a chapter's spoken content.
type Narration struct {
	Text                     string  `json:"text"`
	EstimatedDurationSeconds float64 `json:"estimated_duration_seconds"`
}

// Visual describes a chapter's on-screen treatment.
type Visual struct {
	Type        VisualType `json:"type"`
	Description string     `json:"description"`
	ImagePrompt string     `json:"image_prompt,omitempty"`
}

// Transitions describes a chapter's in/out transition style.
type Transitions struct {
	In  string `json:"in"`
	Out string `json:"out"`
}

// Chapter is one entry in a Chapters document.
type Chapter struct {
	ChapterID   string      `json:"chapter_id"`
	Title       string      `json:"title"`
	Order       int         `json:"order"`
	Narration   Narration   `json:"narration"`
	Visual      Visual      `json:"visual"`
	Overlays    []string    `json:"overlays"`
	Transitions Transitions `json:"transitions"`
}

// Chapters is the chapterizer's output document (schema v1.0).
type Chapters struct {
	SchemaVersion            string    `json:"schema_version"`
	EpisodeID                string    `json:"episode_id"`
	Title                    string    `json:"title"`
	TotalChapters            int       `json:"total_chapters"`
	EstimatedDurationSeconds float64   `json:"estimated_duration_seconds"`
	Chapters                 []Chapter `json:"chapters"`
}

// ChaptersSchemaVersion is the current chapter document schema version.
const ChaptersSchemaVersion = "1.0"

// Validate enforces the chapter document invariants from the chapter
// document schema: unique chapter_id, order sequential from 1, per-chapter
// narration duration within tolerance of words/150, total duration within
// 5s of the sum of chapter durations, and image_prompt required for
// diagram/b_roll visuals.
func (c Chapters) Validate() error {
	if len(c.Chapters) != c.TotalChapters {
		return fmt.Errorf("layout: chapters: total_chapters=%d but %d chapters present", c.TotalChapters, len(c.Chapters))
	}
	seen := make(map[string]bool, len(c.Chapters))
	sum := 0.0
	for i, ch := range c.Chapters {
		if seen[ch.ChapterID] {
			return fmt.Errorf("layout: chapters: duplicate chapter_id %q", ch.ChapterID)
		}
		seen[ch.ChapterID] = true
		if ch.Order != i+1 {
			return fmt.Errorf("layout: chapters: chapter %q order %d, expected %d", ch.ChapterID, ch.Order, i+1)
		}
		if ch.Visual.Type.NeedsImagePrompt() && ch.Visual.ImagePrompt == "" {
			return fmt.Errorf("layout: chapters: chapter %q requires image_prompt for visual type %q", ch.ChapterID, ch.Visual.Type)
		}
		words := len(splitWords(ch.Narration.Text))
		expected := float64(words) / 150.0 * 60.0
		if expected > 0 {
			tolerance := expected * 0.20
			actual := ch.Narration.EstimatedDurationSeconds
			if actual < expected-tolerance || actual > expected+tolerance {
				return fmt.Errorf(
					"layout: chapters: chapter %q narration duration %.1fs outside 20%% tolerance of expected %.1fs",
					ch.ChapterID, actual, expected,
				)
			}
		}
		sum += ch.Narration.EstimatedDurationSeconds
	}
	if diff := sum - c.EstimatedDurationSeconds; diff > 5 || diff < -5 {
		return fmt.Errorf(
			"layout: chapters: sum of chapter durations %.1fs differs from document duration %.1fs by more than 5s",
			sum, c.EstimatedDurationSeconds,
		)
	}
	return nil
}

func splitWords(text string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = nil
		}
	}
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			flush()
			continue
		}
		current = append(current, r)
	}
	flush()
	return words
}

// WriteChapters writes the chapter document atomically.
func (l Layout) WriteChapters(c Chapters) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("layout: marshal chapters: %w", err)
	}
	return fileutil.WriteFileAtomic(l.ChaptersDocument(c.EpisodeID), data, 0o644)
}

// ReadChapters reads the chapter document for episodeID.
func (l Layout) ReadChapters(episodeID string) (*Chapters, error) {
	data, err := os.ReadFile(l.ChaptersDocument(episodeID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("layout: read chapters: %w", err)
	}
	var c Chapters
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("layout: parse chapters: %w", err)
	}
	return &c, nil
}
