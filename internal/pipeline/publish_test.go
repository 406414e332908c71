package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/publish"
	"dubforge/internal/pipeline"
	"dubforge/internal/store"
)

func seedApproved(t *testing.T, deps pipeline.Deps, episodeID string) store.Episode {
	t.Helper()
	episode := testsupportNewEpisode(t, deps, episodeID, store.StatusApproved)
	require.NoError(t, os.WriteFile(deps.Layout.DraftVideo(episodeID), []byte("fake video bytes"), 0o644))
	return episode
}

func fakePublishServer(t *testing.T, videoID string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "` + videoID + `", "url": "https://video.example/` + videoID + `"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPublishUploadsDraftAndRecordsVideoID(t *testing.T) {
	ctx := context.Background()
	deps, _ := newPipelineDeps(t)
	episode := seedApproved(t, deps, "ep-1")

	server := fakePublishServer(t, "yt-123")
	pub := pipeline.NewPublish(deps, publish.NewClient(publish.Config{APIKey: "key", BaseURL: server.URL}), "public", []string{"tech"})

	decision, err := pub.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.False(t, decision.Skip)

	require.NoError(t, pub.Execute(ctx, &episode))

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusPublished, reloaded.Status)
	require.Equal(t, "yt-123", reloaded.YouTubeVideoID)
}

func TestPublishPrepareSkipsAlreadyPublishedEpisode(t *testing.T) {
	ctx := context.Background()
	deps, _ := newPipelineDeps(t)
	episode := testsupportNewEpisode(t, deps, "ep-2", store.StatusPublished)

	pub := pipeline.NewPublish(deps, publish.NewClient(publish.Config{APIKey: "key", BaseURL: "http://example.invalid"}), "public", nil)
	decision, err := pub.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.True(t, decision.Skip)
}
