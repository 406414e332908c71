package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/asr"
	"dubforge/internal/pipeline"
	"dubforge/internal/store"
)

func seedDownloaded(t *testing.T, deps pipeline.Deps, episodeID string) store.Episode {
	t.Helper()
	ctx := context.Background()
	episode := testsupportNewEpisode(t, deps, episodeID, store.StatusDownloaded)
	require.NoError(t, os.WriteFile(deps.Layout.RawMedia(episodeID), []byte("raw media bytes"), 0o644))
	return episode
}

// testsupportNewEpisode creates an episode and advances it straight to the
// given status, bypassing the producer stages that would normally reach it,
// since each pipeline stage test exercises exactly one stage in isolation.
func testsupportNewEpisode(t *testing.T, deps pipeline.Deps, episodeID string, status store.Status) store.Episode {
	t.Helper()
	ctx := context.Background()
	episode, err := deps.Store.CreateEpisode(ctx, episodeID, 1)
	require.NoError(t, err)
	if status != store.StatusNew {
		require.NoError(t, deps.Store.SetEpisodeStatus(ctx, episodeID, status))
	}
	episode, err = deps.Store.GetEpisode(ctx, episodeID)
	require.NoError(t, err)
	return episode
}

func TestTranscribeWritesTranscriptAndAdvancesStatus(t *testing.T) {
	deps, lay := newPipelineDeps(t)
	episode := seedDownloaded(t, deps, "ep-1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "hallo welt", "duration": 42.0}`))
	}))
	defer server.Close()

	tr := pipeline.NewTranscribe(deps, asr.NewClient(asr.Config{APIKey: "key", BaseURL: server.URL}), "de")

	decision, err := tr.Prepare(context.Background(), &episode)
	require.NoError(t, err)
	require.False(t, decision.Skip)

	require.NoError(t, tr.Execute(context.Background(), &episode))

	text, err := os.ReadFile(lay.CleanTranscript(episode.ID))
	require.NoError(t, err)
	require.Equal(t, "hallo welt", string(text))

	reloaded, err := deps.Store.GetEpisode(context.Background(), episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusTranscribed, reloaded.Status)
}

func TestTranscribeRePrepareSkipsOnceCurrent(t *testing.T) {
	deps, _ := newPipelineDeps(t)
	episode := seedDownloaded(t, deps, "ep-2")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text": "hallo welt", "duration": 42.0}`))
	}))
	defer server.Close()

	tr := pipeline.NewTranscribe(deps, asr.NewClient(asr.Config{APIKey: "key", BaseURL: server.URL}), "de")
	require.NoError(t, tr.Execute(context.Background(), &episode))

	decision, err := tr.Prepare(context.Background(), &episode)
	require.NoError(t, err)
	require.True(t, decision.Skip)
}

func TestTranscribeHonorsCostGuard(t *testing.T) {
	deps, _ := newPipelineDeps(t)
	deps.MaxEpisodeCostUSD = 0.01
	episode := seedDownloaded(t, deps, "ep-3")
	seedSpend(t, context.Background(), deps, episode.ID, 0.02)

	tr := pipeline.NewTranscribe(deps, asr.NewClient(asr.Config{APIKey: "key", BaseURL: "http://example.invalid"}), "de")
	err := tr.Execute(context.Background(), &episode)
	require.Error(t, err)
}
