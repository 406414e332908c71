package layout_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dubforge/internal/layout"
)

func TestStaleMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "manifest.json")
	require.False(t, layout.IsStale(output))

	require.NoError(t, layout.WriteStaleMarker(output, "chapterize", "chapters.json changed", time.Now()))
	require.True(t, layout.IsStale(output))

	record, err := layout.ReadStaleMarker(output)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "chapterize", record.InvalidatedBy)

	require.NoError(t, layout.ClearStaleMarker(output))
	require.False(t, layout.IsStale(output))
}

func TestProvenanceRoundTrip(t *testing.T) {
	l := layout.New(t.TempDir())
	p := layout.Provenance{
		Stage:            "correct",
		EpisodeID:        "E1",
		Timestamp:        time.Now().UTC(),
		InputFiles:       []string{"transcripts/E1/transcript.clean.de.txt"},
		InputContentHash: "abc123",
		OutputFiles:      []string{"transcripts/E1/transcript.corrected.de.txt"},
		CostUSD:          0.02,
		DurationSeconds:  1.5,
	}
	require.NoError(t, l.WriteProvenance(p))

	read, err := l.ReadProvenance("E1", "correct")
	require.NoError(t, err)
	require.NotNil(t, read)
	require.Equal(t, p.InputContentHash, read.InputContentHash)
}

func TestReadProvenanceMissingReturnsNil(t *testing.T) {
	l := layout.New(t.TempDir())
	p, err := l.ReadProvenance("E1", "correct")
	require.NoError(t, err)
	require.Nil(t, p)
}

func validChapters() layout.Chapters {
	return layout.Chapters{
		SchemaVersion:            layout.ChaptersSchemaVersion,
		EpisodeID:                "E1",
		Title:                    "Episode One",
		TotalChapters:            2,
		EstimatedDurationSeconds: 60,
		Chapters: []layout.Chapter{
			{
				ChapterID: "ch01",
				Title:     "Intro",
				Order:     1,
				Narration: layout.Narration{
					Text:                     wordsN(75),
					EstimatedDurationSeconds: 30,
				},
				Visual:      layout.Visual{Type: layout.VisualTitleCard, Description: "title"},
				Transitions: layout.Transitions{In: "fade", Out: "cut"},
			},
			{
				ChapterID: "ch02",
				Title:     "Body",
				Order:     2,
				Narration: layout.Narration{
					Text:                     wordsN(75),
					EstimatedDurationSeconds: 30,
				},
				Visual:      layout.Visual{Type: layout.VisualBRoll, Description: "b-roll", ImagePrompt: "a street"},
				Transitions: layout.Transitions{In: "cut", Out: "fade"},
			},
		},
	}
}

func wordsN(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += " "
		}
		s += "word"
	}
	return s
}

func TestChaptersValidateAcceptsWellFormedDocument(t *testing.T) {
	require.NoError(t, validChapters().Validate())
}

func TestChaptersValidateRejectsDuplicateID(t *testing.T) {
	c := validChapters()
	c.Chapters[1].ChapterID = c.Chapters[0].ChapterID
	require.Error(t, c.Validate())
}

func TestChaptersValidateRequiresImagePromptForBRoll(t *testing.T) {
	c := validChapters()
	c.Chapters[1].Visual.ImagePrompt = ""
	require.Error(t, c.Validate())
}

func TestChaptersValidateRejectsOutOfOrder(t *testing.T) {
	c := validChapters()
	c.Chapters[0].Order = 2
	c.Chapters[1].Order = 1
	require.Error(t, c.Validate())
}

func TestManifestCurrentRequiresHashAndFileMatch(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "ch01.mp3")
	require.NoError(t, os.WriteFile(outputPath, []byte("audio"), 0o644))

	m := layout.Manifest{Stage: "tts", EpisodeID: "E1"}
	m = m.WithEntry(layout.ManifestEntry{ChapterID: "ch01", TextHash: "hash-a", OutputPath: outputPath})

	require.True(t, m.Current("ch01", "hash-a"))
	require.False(t, m.Current("ch01", "hash-b"))
	require.False(t, m.Current("ch02", "hash-a"))
}

func TestManifestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	m := layout.Manifest{Stage: "imagegen", EpisodeID: "E1"}
	m = m.WithEntry(layout.ManifestEntry{ChapterID: "ch01", TextHash: "hash-a", OutputPath: "images/ch01.png"})

	require.NoError(t, layout.WriteManifest(path, m))
	read, err := layout.ReadManifest(path)
	require.NoError(t, err)
	require.Equal(t, m, read)
}

func TestManifestReadMissingReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	read, err := layout.ReadManifest(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	require.Equal(t, layout.Manifest{}, read)
}
