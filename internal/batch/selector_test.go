package batch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/batch"
	"dubforge/internal/cascade"
	"dubforge/internal/clock"
	"dubforge/internal/executor"
	"dubforge/internal/layout"
	"dubforge/internal/review"
	"dubforge/internal/stage"
	"dubforge/internal/store"
	"dubforge/internal/testsupport"
)

// noopHandler never runs; the selector tests only exercise candidate
// selection, never Executor.Run.
type noopHandler struct{ name stage.Name }

func (h noopHandler) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	return stage.Run(), nil
}
func (h noopHandler) Execute(ctx context.Context, episode *store.Episode) error { return nil }
func (h noopHandler) HealthCheck(ctx context.Context) stage.Health             { return stage.Healthy(string(h.name)) }

func buildSelector(t *testing.T, st *store.Store) (*batch.Selector, review.Coordinator) {
	t.Helper()
	stages := executor.StageSet{
		Download:   noopHandler{stage.Download},
		Transcribe: noopHandler{stage.Transcribe},
		Correct:    noopHandler{stage.Correct},
		Translate:  noopHandler{stage.Translate},
		Adapt:      noopHandler{stage.Adapt},
		Chapterize: noopHandler{stage.Chapterize},
		ImageGen:   noopHandler{stage.ImageGen},
		TTS:        noopHandler{stage.TTS},
		Render:     noopHandler{stage.Render},
		Publish:    noopHandler{stage.Publish},
	}
	lay := layout.New(t.TempDir())
	eng := cascade.New(lay)
	cl := clock.New()
	reviewer := review.New(st, eng, cl)
	exec := executor.New(st, reviewer, cl, nil, stages)
	return batch.New(st, reviewer, exec, nil), reviewer
}

// Both episodes sit at CORRECTED, so Correct's downstream gate (review gate
// 1) stands in front of Translate for each. Blocking one behind an open
// gate-1 task must exclude it from both Pending and Latest.
func seedTwoCorrectedEpisodes(t *testing.T, st *store.Store, reviewer review.Coordinator) (blocked, free store.Episode) {
	t.Helper()
	ctx := context.Background()
	blockedEp := testsupport.NewEpisode(t, st, "ep-blocked", 2)
	require.NoError(t, st.SetEpisodeStatus(ctx, blockedEp.ID, store.StatusCorrected))
	freeEp := testsupport.NewEpisode(t, st, "ep-free", 2)
	require.NoError(t, st.SetEpisodeStatus(ctx, freeEp.ID, store.StatusCorrected))

	_, _, err := reviewer.RequestReview(ctx, review.RequestReviewInput{
		EpisodeID:  blockedEp.ID,
		Gate:       stage.ReviewGate1,
		CreatedBy:  "pipeline",
		BeforeText: "original sentence one.",
		AfterText:  "a substantially rewritten sentence entirely.",
	})
	require.NoError(t, err)

	blockedEp, err = st.GetEpisode(ctx, blockedEp.ID)
	require.NoError(t, err)
	freeEp, err = st.GetEpisode(ctx, freeEp.ID)
	require.NoError(t, err)
	return blockedEp, freeEp
}

func TestPendingModeExcludesEpisodeBlockedOnOpenReviewTask(t *testing.T) {
	st := testsupport.MustOpenStore(t)
	selector, reviewer := buildSelector(t, st)
	blocked, free := seedTwoCorrectedEpisodes(t, st, reviewer)

	report, err := selector.Run(context.Background(), batch.ModePending, 0)
	require.NoError(t, err)

	var seen []string
	for _, r := range report.Results {
		seen = append(seen, r.EpisodeID)
	}
	require.Contains(t, seen, free.ID)
	require.NotContains(t, seen, blocked.ID)
}

func TestLatestModeAlsoExcludesEpisodeBlockedOnOpenReviewTask(t *testing.T) {
	st := testsupport.MustOpenStore(t)
	selector, reviewer := buildSelector(t, st)
	blocked, free := seedTwoCorrectedEpisodes(t, st, reviewer)

	report, err := selector.Run(context.Background(), batch.ModeLatest, 10)
	require.NoError(t, err)

	var seen []string
	for _, r := range report.Results {
		seen = append(seen, r.EpisodeID)
	}
	require.Contains(t, seen, free.ID, "latest mode must apply the same gate-state filter as pending mode")
	require.NotContains(t, seen, blocked.ID)
}

func TestLatestModeOrdersNewestFirstAndRespectsLimit(t *testing.T) {
	st := testsupport.MustOpenStore(t)
	selector, _ := buildSelector(t, st)
	ctx := context.Background()
	testsupport.NewEpisode(t, st, "ep-older", 2)
	testsupport.NewEpisode(t, st, "ep-newer", 2)

	report, err := selector.Run(ctx, batch.ModeLatest, 1)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Equal(t, "ep-newer", report.Results[0].EpisodeID)
}
