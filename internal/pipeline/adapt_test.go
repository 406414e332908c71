package pipeline_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/cascade"
	"dubforge/internal/drivers/llm"
	"dubforge/internal/pipeline"
	"dubforge/internal/promptreg"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

func seedTranslated(t *testing.T, deps pipeline.Deps, episodeID, text string) store.Episode {
	t.Helper()
	episode := testsupportNewEpisode(t, deps, episodeID, store.StatusTranslated)
	require.NoError(t, os.WriteFile(deps.Layout.TranslatedTranscript(episodeID), []byte(text), 0o644))
	return episode
}

func TestAdaptRunsLLMPassAndAlwaysOpensReviewGateTwo(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	eng := cascade.New(lay)
	reviewer := newReviewer(deps.Store, eng)
	episode := seedTranslated(t, deps, "ep-1", "Dies ist ein Testsatz.")

	server := fakeLLMServer(t, "Das hier ist, kulturell angepasst, ein Testsatz.")
	prompts := promptreg.New(deps.Store)
	tmplPath := writePromptTemplate(t, t.TempDir(), "adapt", "Adapt for cultural fit. "+promptreg.FeedbackPlaceholder)
	registerDefaultPrompt(t, ctx, prompts, tmplPath)

	adapt := pipeline.NewAdapt(deps, llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL}), prompts, reviewer)

	decision, err := adapt.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.False(t, decision.Skip)

	require.NoError(t, adapt.Execute(ctx, &episode))

	adapted, err := os.ReadFile(lay.AdaptedScript(episode.ID))
	require.NoError(t, err)
	require.Equal(t, "Das hier ist, kulturell angepasst, ein Testsatz.", string(adapted))

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusAdapted, reloaded.Status)

	active, err := reviewer.Active(ctx, episode.ID)
	require.NoError(t, err)
	require.NotNil(t, active, "gate 2 always opens a task; unlike gate 1 it has no auto-approval path")
	require.Equal(t, string(stage.ReviewGate2), active.Stage)
}

func TestAdaptRePromptsWithFeedbackAfterRequestChanges(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	eng := cascade.New(lay)
	reviewer := newReviewer(deps.Store, eng)
	episode := seedTranslated(t, deps, "ep-2", "Dies ist ein Testsatz.")

	var lastSystemPrompt string
	prompts := promptreg.New(deps.Store)
	tmplPath := writePromptTemplate(t, t.TempDir(), "adapt", "Adapt for cultural fit. "+promptreg.FeedbackPlaceholder)
	registerDefaultPrompt(t, ctx, prompts, tmplPath)

	server := fakeLLMServerCapturingSystem(t, "first pass", &lastSystemPrompt)
	adapt := pipeline.NewAdapt(deps, llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL}), prompts, reviewer)
	require.NoError(t, adapt.Execute(ctx, &episode))
	require.NotContains(t, lastSystemPrompt, "too literal")

	active, err := reviewer.Active(ctx, episode.ID)
	require.NoError(t, err)
	require.NoError(t, reviewer.RequestChanges(ctx, active.ID, "too literal, make it punchier", "editor"))

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusTranslated, reloaded.Status, "request-changes reverts the episode to adapt's entry status")

	decision, err := adapt.Prepare(ctx, &reloaded)
	require.NoError(t, err)
	require.False(t, decision.Skip, "feedback changes the input hash, so the cascade no longer sees the prior adaptation as current")

	require.NoError(t, adapt.Execute(ctx, &reloaded))
	require.Contains(t, lastSystemPrompt, "too literal, make it punchier")
}
