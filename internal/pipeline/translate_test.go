package pipeline_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/llm"
	"dubforge/internal/pipeline"
	"dubforge/internal/promptreg"
	"dubforge/internal/store"
)

func seedCorrected(t *testing.T, deps pipeline.Deps, episodeID, text string) store.Episode {
	t.Helper()
	episode := testsupportNewEpisode(t, deps, episodeID, store.StatusCorrected)
	require.NoError(t, os.WriteFile(deps.Layout.CorrectedTranscript(episodeID), []byte(text), 0o644))
	return episode
}

func TestTranslateWritesTranslationAndAdvancesStatus(t *testing.T) {
	ctx := context.Background()
	deps, lay := newPipelineDeps(t)
	episode := seedCorrected(t, deps, "ep-1", "This is a test sentence.")

	server := fakeLLMServer(t, "Dies ist ein Testsatz.")
	prompts := promptreg.New(deps.Store)
	tmplPath := writePromptTemplate(t, t.TempDir(), "translate", "Translate to German.")
	registerDefaultPrompt(t, ctx, prompts, tmplPath)

	tr := pipeline.NewTranslate(deps, llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL}), prompts)

	decision, err := tr.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.False(t, decision.Skip)

	require.NoError(t, tr.Execute(ctx, &episode))

	translated, err := os.ReadFile(lay.TranslatedTranscript(episode.ID))
	require.NoError(t, err)
	require.Equal(t, "Dies ist ein Testsatz.", string(translated))

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusTranslated, reloaded.Status)
}

func TestTranslateSkipsWhenAlreadyCurrentForSamePromptAndTranscript(t *testing.T) {
	ctx := context.Background()
	deps, _ := newPipelineDeps(t)
	episode := seedCorrected(t, deps, "ep-2", "This is a test sentence.")

	server := fakeLLMServer(t, "Dies ist ein Testsatz.")
	prompts := promptreg.New(deps.Store)
	tmplPath := writePromptTemplate(t, t.TempDir(), "translate", "Translate to German.")
	registerDefaultPrompt(t, ctx, prompts, tmplPath)

	tr := pipeline.NewTranslate(deps, llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL}), prompts)
	require.NoError(t, tr.Execute(ctx, &episode))

	decision, err := tr.Prepare(ctx, &episode)
	require.NoError(t, err)
	require.True(t, decision.Skip)
}

func TestTranslateCostGuardBlocksExecuteBeforeAnyLLMCall(t *testing.T) {
	ctx := context.Background()
	deps, _ := newPipelineDeps(t)
	deps.MaxEpisodeCostUSD = 0.01
	episode := seedCorrected(t, deps, "ep-3", "This is a test sentence.")
	seedSpend(t, ctx, deps, episode.ID, 0.02)

	prompts := promptreg.New(deps.Store)
	tmplPath := writePromptTemplate(t, t.TempDir(), "translate", "Translate to German.")
	registerDefaultPrompt(t, ctx, prompts, tmplPath)

	tr := pipeline.NewTranslate(deps, llm.NewClient(llm.Config{APIKey: "key", BaseURL: "http://example.invalid"}), prompts)
	err := tr.Execute(ctx, &episode)
	require.Error(t, err)

	reloaded, err := deps.Store.GetEpisode(ctx, episode.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusCorrected, reloaded.Status, "a cost-guard rejection leaves the episode status untouched; the executor stamps the failure status")
}
