package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/cascade"
	"dubforge/internal/drivers/media"
	"dubforge/internal/layout"
	"dubforge/internal/pipeline"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

func testRenderConfig() media.Config {
	return media.Config{
		Resolution:                "1920x1080",
		FPS:                       30,
		CRF:                       20,
		Preset:                    "medium",
		AudioBitrate:              "192k",
		TransitionDurationSeconds: 0.5,
		SegmentTimeoutSeconds:     300,
		ConcatTimeoutSeconds:      600,
	}
}

// writeFakeFFmpeg writes a shell script standing in for ffmpeg: it
// touches its last argument (ffmpeg's output path, for both EncodeSegment
// and Concat) so that downstream hashing and ffprobe-on-draft succeed.
func writeFakeFFmpeg(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary shell scripts require a POSIX shell")
	}
	path := filepath.Join(dir, "fake-ffmpeg")
	script := "#!/bin/sh\nfor a in \"$@\"; do :; done\necho fake media bytes > \"$a\"\nexit 0\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// writeFakeFFprobe writes a shell script standing in for ffprobe: it
// prints a fixed ffprobe-shaped JSON document with a parseable duration.
func writeFakeFFprobe(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary shell scripts require a POSIX shell")
	}
	path := filepath.Join(dir, "fake-ffprobe")
	script := `#!/bin/sh
cat <<'JSON'
{"streams":[{"index":0,"codec_type":"video"}],"format":{"duration":"12.0"}}
JSON
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// seedChapterImagesAndAudio writes fake per-chapter image/audio files and
// records them in the images manifest the way ImageGen would, so Render
// can resolve each chapter's image path.
func seedChapterImagesAndAudio(t *testing.T, lay layout.Layout, episodeID string, chapters layout.Chapters) {
	t.Helper()
	manifestPath := lay.ImagesManifest(episodeID)
	manifest, err := layout.ReadManifest(manifestPath)
	require.NoError(t, err)
	for _, ch := range chapters.Chapters {
		imagePath := lay.ChapterImage(episodeID, ch.ChapterID, ".png")
		require.NoError(t, os.WriteFile(imagePath, []byte("fake png"), 0o644))
		audioPath := lay.ChapterAudio(episodeID, ch.ChapterID)
		require.NoError(t, os.WriteFile(audioPath, []byte("fake mp3"), 0o644))
		manifest = manifest.WithEntry(layout.ManifestEntry{ChapterID: ch.ChapterID, TextHash: "seeded", OutputPath: imagePath})
	}
	require.NoError(t, layout.WriteManifest(manifestPath, manifest))
}

func TestRenderEncodesSegmentsConcatenatesAndOpensReviewGateThree(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	eng := cascade.New(lay)
	reviewer := newReviewer(deps.Store, eng)
	chapters := twoChapterDocument()
	episode := seedChapterized(t, deps, "ep-1", chapters)
	require.NoError(t, deps.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusTTSDone))
	episode, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	seedChapterImagesAndAudio(t, lay, episode.ID, chapters)

	binDir := t.TempDir()
	ffmpeg := writeFakeFFmpeg(t, binDir)
	ffprobe := writeFakeFFprobe(t, binDir)
	client := media.NewClient(ffmpeg, ffprobe, testRenderConfig())

	r := pipeline.NewRender(deps, client, reviewer)

	decision, err := r.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.False(t, decision.Skip)

	require.NoError(t, r.Execute(ctx, &episode))

	draft, err := os.ReadFile(lay.DraftVideo(episode.ID))
	require.NoError(t, err)
	require.Equal(t, "fake media bytes\n", string(draft))

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusRendered, reloaded.Status)

	active, err := reviewer.Active(ctx, episode.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, string(stage.ReviewGate3), active.Stage)
}

func TestRenderPrepareSkipsWhenDraftAndSegmentsAlreadyCurrent(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	eng := cascade.New(lay)
	reviewer := newReviewer(deps.Store, eng)
	chapters := twoChapterDocument()
	episode := seedChapterized(t, deps, "ep-2", chapters)
	require.NoError(t, deps.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusTTSDone))
	episode, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	seedChapterImagesAndAudio(t, lay, episode.ID, chapters)

	binDir := t.TempDir()
	client := media.NewClient(writeFakeFFmpeg(t, binDir), writeFakeFFprobe(t, binDir), testRenderConfig())
	r := pipeline.NewRender(deps, client, reviewer)
	require.NoError(t, r.Execute(ctx, &episode))

	decision, err := r.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.True(t, decision.Skip)
}
