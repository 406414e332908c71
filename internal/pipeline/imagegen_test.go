package pipeline_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/imagegen"
	"dubforge/internal/layout"
	"dubforge/internal/pipeline"
	"dubforge/internal/store"
)

func seedChapterized(t *testing.T, deps pipeline.Deps, episodeID string, chapters layout.Chapters) store.Episode {
	t.Helper()
	episode := testsupportNewEpisode(t, deps, episodeID, store.StatusChapterized)
	chapters.EpisodeID = episodeID
	require.NoError(t, deps.Layout.WriteChapters(chapters))
	return episode
}

func twoChapterDocument() layout.Chapters {
	return layout.Chapters{
		SchemaVersion:            layout.ChaptersSchemaVersion,
		Title:                    "Episode One",
		TotalChapters:            2,
		EstimatedDurationSeconds: 12.0,
		Chapters: []layout.Chapter{
			{
				ChapterID: "ch1",
				Title:     "Intro",
				Order:     1,
				Narration: layout.Narration{Text: fifteenWords(), EstimatedDurationSeconds: 6.0},
				Visual:    layout.Visual{Type: layout.VisualTitleCard, Description: "intro title"},
				Transitions: layout.Transitions{In: "fade", Out: "cut"},
			},
			{
				ChapterID: "ch2",
				Title:     "Architecture",
				Order:     2,
				Narration: layout.Narration{Text: fifteenWords(), EstimatedDurationSeconds: 6.0},
				Visual:    layout.Visual{Type: layout.VisualDiagram, Description: "system diagram", ImagePrompt: "a clean architecture diagram"},
				Transitions: layout.Transitions{In: "cut", Out: "fade"},
			},
		},
	}
}

func fakeImageGenServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString([]byte("fake png bytes"))},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestImageGenGeneratesOneImagePerChapterAndRecordsManifest(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	episode := seedChapterized(t, deps, "ep-1", twoChapterDocument())

	server := fakeImageGenServer(t)
	ig := pipeline.NewImageGen(deps, imagegen.NewClient(imagegen.Config{APIKey: "key", BaseURL: server.URL}), "test-model", "")

	decision, err := ig.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.False(t, decision.Skip)

	require.NoError(t, ig.Execute(ctx, &episode))

	for _, chapterID := range []string{"ch1", "ch2"} {
		data, err := os.ReadFile(lay.ChapterImage(episode.ID, chapterID, ".png"))
		require.NoError(t, err)
		require.Equal(t, "fake png bytes", string(data))
	}

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusImagesGenerated, reloaded.Status)

	decision, err = ig.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.True(t, decision.Skip, "both chapters are current in the manifest after the first run")
}

func TestImageGenRecoversOnlyTheChapterThatFailedLastTime(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	chapters := twoChapterDocument()
	episode := seedChapterized(t, deps, "ep-2", chapters)

	ig := pipeline.NewImageGen(deps, imagegen.NewClient(imagegen.Config{APIKey: "key", BaseURL: "http://example.invalid"}), "test-model", "")

	require.Error(t, ig.Execute(ctx, &episode), "the first chapter's generate call fails against an unreachable endpoint")

	manifest, err := layout.ReadManifest(lay.ImagesManifest(episode.ID))
	require.NoError(t, err)
	require.False(t, manifest.Current("ch1", ""), "no chapter completed, so the manifest records no entries")

	server := fakeImageGenServer(t)
	ig2 := pipeline.NewImageGen(deps, imagegen.NewClient(imagegen.Config{APIKey: "key", BaseURL: server.URL}), "test-model", "")
	require.NoError(t, ig2.Execute(ctx, &episode))

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusImagesGenerated, reloaded.Status)
}

func TestImageGenCostGuardStopsBeforeGeneratingFurtherChapters(t *testing.T) {
	ctx := context.Background()
	deps, _ := newPipelineDeps(t)
	deps.MaxEpisodeCostUSD = 0.01
	episode := seedChapterized(t, deps, "ep-3", twoChapterDocument())
	seedSpend(t, ctx, deps, episode.ID, 0.02)

	server := fakeImageGenServer(t)
	ig := pipeline.NewImageGen(deps, imagegen.NewClient(imagegen.Config{APIKey: "key", BaseURL: server.URL}), "test-model", "")

	err := ig.Execute(ctx, &episode)
	require.Error(t, err)

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusChapterized, reloaded.Status)
}
