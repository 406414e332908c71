package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/source"
	"dubforge/internal/pipeline"
	"dubforge/internal/stage"
	"dubforge/internal/store"
	"dubforge/internal/testsupport"
)

func TestDownloadFetchesLocalSourceAndAdvancesStatus(t *testing.T) {
	deps, lay := newPipelineDeps(t)
	st := deps.Store

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "episode.mp4")
	require.NoError(t, os.WriteFile(srcPath, []byte("raw episode bytes"), 0o644))

	episode, err := st.CreateEpisode(context.Background(), "ep-1", 1)
	require.NoError(t, err)
	require.NoError(t, st.SetEpisodeSourceURI(context.Background(), episode.ID, srcPath))
	episode, err = st.GetEpisode(context.Background(), episode.ID)
	require.NoError(t, err)

	dl := pipeline.NewDownload(deps, source.NewClient(source.Config{}))

	decision, err := dl.Prepare(context.Background(), &episode)
	require.NoError(t, err)
	require.False(t, decision.Skip)

	require.NoError(t, dl.Execute(context.Background(), &episode))

	raw, err := os.ReadFile(lay.RawMedia(episode.ID))
	require.NoError(t, err)
	require.Equal(t, "raw episode bytes", string(raw))

	reloaded, err := st.GetEpisode(context.Background(), episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusDownloaded, reloaded.Status)
}

func TestDownloadPrepareSkipsWhenAlreadyCurrent(t *testing.T) {
	deps, lay := newPipelineDeps(t)
	st := deps.Store

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "episode.mp4")
	require.NoError(t, os.WriteFile(srcPath, []byte("raw episode bytes"), 0o644))

	episode, err := st.CreateEpisode(context.Background(), "ep-2", 1)
	require.NoError(t, err)
	require.NoError(t, st.SetEpisodeSourceURI(context.Background(), episode.ID, srcPath))
	episode, err = st.GetEpisode(context.Background(), episode.ID)
	require.NoError(t, err)

	dl := pipeline.NewDownload(deps, source.NewClient(source.Config{}))
	require.NoError(t, dl.Execute(context.Background(), &episode))

	decision, err := dl.Prepare(context.Background(), &episode)
	require.NoError(t, err)
	require.True(t, decision.Skip)

	_ = lay
	health := dl.HealthCheck(context.Background())
	require.Equal(t, string(stage.Download), health.Name)
	require.True(t, health.Ready)
}
