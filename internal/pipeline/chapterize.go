package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"dubforge/internal/drivers/llm"
	"dubforge/internal/fileutil"
	"dubforge/internal/layout"
	"dubforge/internal/promptreg"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

const chapterizePromptName = "chapterize"

// Chapterize splits the adapted script into the chapter document every
// chapter-parallel stage downstream consumes.
type Chapterize struct {
	loggerBox
	Deps
	LLM     *llm.Client
	Prompts promptreg.Registry
	Model   string
}

// NewChapterize returns a Chapterize stage module.
func NewChapterize(deps Deps, client *llm.Client, prompts promptreg.Registry) *Chapterize {
	return &Chapterize{Deps: deps, LLM: client, Prompts: prompts}
}

func (s *Chapterize) inputHash(episode *store.Episode, promptHash string) (string, error) {
	scriptHash, err := fileutil.HashFile(s.Layout.AdaptedScript(episode.ID))
	if err != nil {
		return "", fmt.Errorf("pipeline: chapterize: hash script: %w", err)
	}
	return fileutil.HashCanonicalFields(map[string]string{
		"script_hash": scriptHash,
		"prompt_hash": promptHash,
	}), nil
}

// Prepare reports whether the chapter document is already current.
func (s *Chapterize) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	prompt, err := s.Prompts.Default(ctx, chapterizePromptName)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: chapterize: default prompt: %w", err)
	}
	inputHash, err := s.inputHash(episode, prompt.ContentHash)
	if err != nil {
		return stage.Decision{}, err
	}
	current, err := s.Cascade.IsCurrent(stage.Chapterize, episode.ID, inputHash)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: chapterize: prepare: %w", err)
	}
	if current {
		return stage.SkipBecause("chapter document already current"), nil
	}
	return stage.Run(), nil
}

// Execute runs the chapterization pass and validates the resulting
// document against the chapter schema invariants before persisting it.
func (s *Chapterize) Execute(ctx context.Context, episode *store.Episode) error {
	if err := s.guardCost(ctx, episode.ID, stage.Chapterize); err != nil {
		return err
	}
	prompt, err := s.Prompts.Default(ctx, chapterizePromptName)
	if err != nil {
		return fmt.Errorf("pipeline: chapterize: default prompt: %w", err)
	}
	tmpl, err := promptreg.LoadTemplate(prompt.TemplatePath)
	if err != nil {
		return fmt.Errorf("pipeline: chapterize: load template: %w", err)
	}
	script, err := os.ReadFile(s.Layout.AdaptedScript(episode.ID))
	if err != nil {
		return fmt.Errorf("pipeline: chapterize: read script: %w", err)
	}

	run, err := s.startRun(ctx, episode.ID, stage.Chapterize)
	if err != nil {
		return fmt.Errorf("pipeline: chapterize: start run: %w", err)
	}

	model := prompt.Model
	if model == "" {
		model = s.Model
	}
	result, err := s.LLM.Call(ctx, tmpl.Body, string(script), model, decodeModelParams(prompt.ModelParams))
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}

	var chapters layout.Chapters
	if err := json.Unmarshal([]byte(result.Text), &chapters); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: chapterize: parse chapter document: %w", err)
	}
	chapters.EpisodeID = episode.ID
	if chapters.SchemaVersion == "" {
		chapters.SchemaVersion = layout.ChaptersSchemaVersion
	}
	if err := chapters.Validate(); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: chapterize: %w", err)
	}

	if err := s.Layout.WriteChapters(chapters); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: chapterize: write chapters: %w", err)
	}

	dest := s.Layout.ChaptersDocument(episode.ID)
	if _, err := s.Store.CreateArtifact(ctx, store.ContentArtifact{
		EpisodeID:       episode.ID,
		ArtifactType:    string(stage.Chapterize),
		FilePath:        dest,
		PromptVersionID: &prompt.ID,
		InputTokens:     result.InputTokens,
		OutputTokens:    result.OutputTokens,
		CostUSD:         result.CostUSD,
		PromptHash:      prompt.ContentHash,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: chapterize: record artifact: %w", err)
	}

	inputHash, err := s.inputHash(episode, prompt.ContentHash)
	if err != nil {
		return err
	}
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:             string(stage.Chapterize),
		EpisodeID:         episode.ID,
		Timestamp:         s.Clock.Now(),
		PromptName:        prompt.Name,
		PromptVersion:     prompt.Version,
		PromptHash:        prompt.ContentHash,
		Model:             model,
		InputFiles:        []string{s.Layout.AdaptedScript(episode.ID)},
		InputContentHash:  inputHash,
		OutputFiles:       []string{dest},
		InputTokens:       result.InputTokens,
		OutputTokens:      result.OutputTokens,
		CostUSD:           result.CostUSD,
		DurationSeconds:   s.Clock.Since(run.StartedAt).Seconds(),
		SegmentsProcessed: len(chapters.Chapters),
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: chapterize: write provenance: %w", err)
	}
	if err := s.invalidateDownstream(episode.ID, stage.Chapterize, "stage rerun"); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: chapterize: invalidate downstream: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, result.InputTokens, result.OutputTokens, result.CostUSD); err != nil {
		return fmt.Errorf("pipeline: chapterize: finish run: %w", err)
	}
	return s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusChapterized)
}

// HealthCheck reports whether the chapterization stage's default prompt
// is registered.
func (s *Chapterize) HealthCheck(ctx context.Context) stage.Health {
	if _, err := s.Prompts.Default(ctx, chapterizePromptName); err != nil {
		return stage.Unhealthy(string(stage.Chapterize), err.Error())
	}
	return stage.Healthy(string(stage.Chapterize))
}
