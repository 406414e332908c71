package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "pipeline.db")
	s, err := store.Open(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetEpisode(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ep, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)
	require.Equal(t, store.StatusNew, ep.Status)
	require.Equal(t, 2, ep.PipelineVersion)

	fetched, err := s.GetEpisode(ctx, "E1")
	require.NoError(t, err)
	require.Equal(t, ep.ID, fetched.ID)

	_, err = s.GetEpisode(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetEpisodeStatusAndError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)

	require.NoError(t, s.SetEpisodeStatus(ctx, "E1", store.StatusDownloaded))
	ep, err := s.GetEpisode(ctx, "E1")
	require.NoError(t, err)
	require.Equal(t, store.StatusDownloaded, ep.Status)

	require.NoError(t, s.SetEpisodeError(ctx, "E1", "boom"))
	ep, err = s.GetEpisode(ctx, "E1")
	require.NoError(t, err)
	require.Equal(t, "boom", ep.ErrorMessage)

	require.NoError(t, s.ClearEpisodeError(ctx, "E1"))
	ep, err = s.GetEpisode(ctx, "E1")
	require.NoError(t, err)
	require.Equal(t, "", ep.ErrorMessage)
}

func TestListEpisodesByStatusPendingFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)
	_, err = s.CreateEpisode(ctx, "E2", 2)
	require.NoError(t, err)
	require.NoError(t, s.SetEpisodeStatus(ctx, "E2", store.StatusPublished))

	pending, err := s.ListEpisodesByStatus(ctx, store.ActionablePendingStatuses)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "E1", pending[0].ID)
}

func TestRunLifecycleAndCostAccounting(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)

	run, err := s.StartRun(ctx, "run-1", "E1", "correct")
	require.NoError(t, err)
	require.Equal(t, store.RunRunning, run.Status)

	require.NoError(t, s.FinishRunSuccess(ctx, run.ID, 100, 50, 0.25))

	cost, err := s.EpisodeCostUSD(ctx, "E1")
	require.NoError(t, err)
	require.InDelta(t, 0.25, cost, 0.0001)

	run2, err := s.StartRun(ctx, "run-2", "E1", "translate")
	require.NoError(t, err)
	require.NoError(t, s.FinishRunFailed(ctx, run2.ID, "exploded", 0.05))

	// Cost accounting sums only SUCCESS runs.
	cost, err = s.EpisodeCostUSD(ctx, "E1")
	require.NoError(t, err)
	require.InDelta(t, 0.25, cost, 0.0001)

	runs, err := s.ListRunsForEpisode(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestFinishRunSkippedProducesNoCost(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)

	run, err := s.StartRun(ctx, "run-1", "E1", "adapt")
	require.NoError(t, err)
	require.NoError(t, s.FinishRunSkipped(ctx, run.ID))

	cost, err := s.EpisodeCostUSD(ctx, "E1")
	require.NoError(t, err)
	require.Equal(t, float64(0), cost)
}

func TestContentArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)

	created, err := s.CreateArtifact(ctx, store.ContentArtifact{
		EpisodeID:    "E1",
		ArtifactType: "correction",
		FilePath:     "transcripts/E1/transcript.corrected.de.txt",
		PromptHash:   "abc123",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	latest, err := s.LatestArtifact(ctx, "E1", "correction")
	require.NoError(t, err)
	require.Equal(t, created.ID, latest.ID)
}

func TestPromptVersionRegisterIsIdempotentPerHash(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	v1, err := s.CreatePromptVersion(ctx, store.PromptVersion{
		Name:         "correct",
		Version:      1,
		ContentHash:  "hash-a",
		TemplatePath: "prompts/correct.md",
	}, true)
	require.NoError(t, err)
	require.True(t, v1.IsDefault)

	existing, err := s.FindPromptVersionByHash(ctx, "correct", "hash-a")
	require.NoError(t, err)
	require.Equal(t, v1.ID, existing.ID)

	v2, err := s.CreatePromptVersion(ctx, store.PromptVersion{
		Name:         "correct",
		Version:      2,
		ContentHash:  "hash-b",
		TemplatePath: "prompts/correct.md",
	}, true)
	require.NoError(t, err)

	// Promoting v2 demotes v1.
	def, err := s.GetDefaultPromptVersion(ctx, "correct")
	require.NoError(t, err)
	require.Equal(t, v2.ID, def.ID)

	history, err := s.GetPromptHistory(ctx, "correct")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 2, history[0].Version)
}

func TestReviewTaskAtMostOneActivePerEpisode(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)

	task, err := s.CreateReviewTask(ctx, store.ReviewTask{
		EpisodeID:    "E1",
		Stage:        "correct",
		ArtifactPaths: []string{"transcripts/E1/transcript.corrected.de.txt"},
		ArtifactHash: "h1",
	})
	require.NoError(t, err)
	require.Equal(t, store.ReviewPending, task.Status)

	_, err = s.CreateReviewTask(ctx, store.ReviewTask{
		EpisodeID: "E1",
		Stage:     "correct",
	})
	require.ErrorIs(t, err, store.ErrConflict)

	active, err := s.ActiveReviewTask(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, task.ID, active.ID)
}

func TestReviewDecisionIsTerminalForTask(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)

	task, err := s.CreateReviewTask(ctx, store.ReviewTask{EpisodeID: "E1", Stage: "render"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateReviewTaskStatus(ctx, task.ID, store.ReviewApproved, "", "newhash"))
	_, err = s.AppendReviewDecision(ctx, store.ReviewDecision{ReviewTaskID: task.ID, Decision: store.DecisionApproved})
	require.NoError(t, err)

	// Acting again on a decided task is rejected.
	err = s.UpdateReviewTaskStatus(ctx, task.ID, store.ReviewRejected, "too late", "")
	require.ErrorIs(t, err, store.ErrConflict)

	active, err := s.ActiveReviewTask(ctx, "E1")
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestMediaAssetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.CreateEpisode(ctx, "E1", 2)
	require.NoError(t, err)

	duration := 12.5
	asset, err := s.CreateMediaAsset(ctx, store.MediaAsset{
		EpisodeID:       "E1",
		ChapterID:       "ch01",
		AssetType:       store.AssetAudio,
		FilePath:        "outputs/E1/tts/ch01.mp3",
		DurationSeconds: &duration,
	})
	require.NoError(t, err)

	assets, err := s.ListMediaAssetsForEpisode(ctx, "E1", "ch01")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Equal(t, asset.ID, assets[0].ID)
	require.NotNil(t, assets[0].DurationSeconds)
	require.InDelta(t, 12.5, *assets[0].DurationSeconds, 0.0001)
}
