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

func seedTranscribed(t *testing.T, deps pipeline.Deps, episodeID, text string) store.Episode {
	t.Helper()
	episode := testsupportNewEpisode(t, deps, episodeID, store.StatusTranscribed)
	require.NoError(t, os.WriteFile(deps.Layout.CleanTranscript(episodeID), []byte(text), 0o644))
	return episode
}

func TestCorrectRunsLLMPassAndOpensReviewGateOne(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	eng := cascade.New(lay)
	reviewer := newReviewer(deps.Store, eng)
	episode := seedTranscribed(t, deps, "ep-1", "das ist ein test satz.")

	server := fakeLLMServer(t, "Das ist ein Testsatz, korrigiert.")
	prompts := promptreg.New(deps.Store)
	templateDir := t.TempDir()
	tmplPath := writePromptTemplate(t, templateDir, "correct", "Fix transcription errors. "+promptreg.FeedbackPlaceholder)
	registerDefaultPrompt(t, ctx, prompts, tmplPath)

	correct := pipeline.NewCorrect(deps, llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL}), prompts, reviewer)

	decision, err := correct.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.False(t, decision.Skip)

	require.NoError(t, correct.Execute(ctx, &episode))

	corrected, err := os.ReadFile(lay.CorrectedTranscript(episode.ID))
	require.NoError(t, err)
	require.Equal(t, "Das ist ein Testsatz, korrigiert.", string(corrected))

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusCorrected, reloaded.Status)

	active, err := reviewer.Active(ctx, episode.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, string(stage.ReviewGate1), active.Stage)
}

func TestCorrectAutoApprovesPunctuationOnlyChange(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	eng := cascade.New(lay)
	reviewer := newReviewer(deps.Store, eng)
	episode := seedTranscribed(t, deps, "ep-2", "das ist ein test satz")

	server := fakeLLMServer(t, "das ist ein test satz.")
	prompts := promptreg.New(deps.Store)
	templateDir := t.TempDir()
	tmplPath := writePromptTemplate(t, templateDir, "correct", "Fix punctuation only. "+promptreg.FeedbackPlaceholder)
	registerDefaultPrompt(t, ctx, prompts, tmplPath)

	correct := pipeline.NewCorrect(deps, llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL}), prompts, reviewer)
	require.NoError(t, correct.Execute(ctx, &episode))

	active, err := reviewer.Active(ctx, episode.ID)
	require.NoError(t, err)
	require.Nil(t, active, "a punctuation-only correction auto-approves and leaves no active task")
}

func TestCorrectHealthCheckFailsWithoutDefaultPrompt(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	eng := cascade.New(lay)
	reviewer := newReviewer(deps.Store, eng)
	prompts := promptreg.New(deps.Store)

	correct := pipeline.NewCorrect(deps, llm.NewClient(llm.Config{APIKey: "key"}), prompts, reviewer)
	health := correct.HealthCheck(ctx)
	require.False(t, health.Ready)
}
