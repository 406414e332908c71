package pipeline

import (
	"context"
	"fmt"
	"os"

	"dubforge/internal/drivers/llm"
	"dubforge/internal/fileutil"
	"dubforge/internal/layout"
	"dubforge/internal/promptreg"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

const translatePromptName = "translate"

// Translate turns the approved corrected transcript into the target
// language with an LLM pass. It has no review gate of its own: gate 1
// already vetted the transcript this stage consumes, and any later
// rejection of that transcript cascades back to this stage automatically.
type Translate struct {
	loggerBox
	Deps
	LLM     *llm.Client
	Prompts promptreg.Registry
	Model   string
}

// NewTranslate returns a Translate stage module.
func NewTranslate(deps Deps, client *llm.Client, prompts promptreg.Registry) *Translate {
	return &Translate{Deps: deps, LLM: client, Prompts: prompts}
}

func (s *Translate) inputHash(episode *store.Episode, promptHash string) (string, error) {
	transcriptHash, err := fileutil.HashFile(s.Layout.CorrectedTranscript(episode.ID))
	if err != nil {
		return "", fmt.Errorf("pipeline: translate: hash transcript: %w", err)
	}
	return fileutil.HashCanonicalFields(map[string]string{
		"transcript_hash": transcriptHash,
		"prompt_hash":     promptHash,
	}), nil
}

// Prepare reports whether the translation is already current.
func (s *Translate) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	prompt, err := s.Prompts.Default(ctx, translatePromptName)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: translate: default prompt: %w", err)
	}
	inputHash, err := s.inputHash(episode, prompt.ContentHash)
	if err != nil {
		return stage.Decision{}, err
	}
	current, err := s.Cascade.IsCurrent(stage.Translate, episode.ID, inputHash)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: translate: prepare: %w", err)
	}
	if current {
		return stage.SkipBecause("translation already current"), nil
	}
	return stage.Run(), nil
}

// Execute runs the translation pass.
func (s *Translate) Execute(ctx context.Context, episode *store.Episode) error {
	if err := s.guardCost(ctx, episode.ID, stage.Translate); err != nil {
		return err
	}
	prompt, err := s.Prompts.Default(ctx, translatePromptName)
	if err != nil {
		return fmt.Errorf("pipeline: translate: default prompt: %w", err)
	}
	tmpl, err := promptreg.LoadTemplate(prompt.TemplatePath)
	if err != nil {
		return fmt.Errorf("pipeline: translate: load template: %w", err)
	}
	transcript, err := os.ReadFile(s.Layout.CorrectedTranscript(episode.ID))
	if err != nil {
		return fmt.Errorf("pipeline: translate: read transcript: %w", err)
	}

	run, err := s.startRun(ctx, episode.ID, stage.Translate)
	if err != nil {
		return fmt.Errorf("pipeline: translate: start run: %w", err)
	}

	model := prompt.Model
	if model == "" {
		model = s.Model
	}
	result, err := s.LLM.Call(ctx, tmpl.Body, string(transcript), model, decodeModelParams(prompt.ModelParams))
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}

	dest := s.Layout.TranslatedTranscript(episode.ID)
	if err := fileutil.WriteFileAtomic(dest, []byte(result.Text), 0o644); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: translate: write translation: %w", err)
	}

	if _, err := s.Store.CreateArtifact(ctx, store.ContentArtifact{
		EpisodeID:       episode.ID,
		ArtifactType:    string(stage.Translate),
		FilePath:        dest,
		PromptVersionID: &prompt.ID,
		InputTokens:     result.InputTokens,
		OutputTokens:    result.OutputTokens,
		CostUSD:         result.CostUSD,
		PromptHash:      prompt.ContentHash,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: translate: record artifact: %w", err)
	}

	inputHash, err := s.inputHash(episode, prompt.ContentHash)
	if err != nil {
		return err
	}
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:            string(stage.Translate),
		EpisodeID:        episode.ID,
		Timestamp:        s.Clock.Now(),
		PromptName:       prompt.Name,
		PromptVersion:    prompt.Version,
		PromptHash:       prompt.ContentHash,
		Model:            model,
		InputFiles:       []string{s.Layout.CorrectedTranscript(episode.ID)},
		InputContentHash: inputHash,
		OutputFiles:      []string{dest},
		InputTokens:      result.InputTokens,
		OutputTokens:     result.OutputTokens,
		CostUSD:          result.CostUSD,
		DurationSeconds:  s.Clock.Since(run.StartedAt).Seconds(),
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: translate: write provenance: %w", err)
	}
	if err := s.invalidateDownstream(episode.ID, stage.Translate, "stage rerun"); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: translate: invalidate downstream: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, result.InputTokens, result.OutputTokens, result.CostUSD); err != nil {
		return fmt.Errorf("pipeline: translate: finish run: %w", err)
	}
	return s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusTranslated)
}

// HealthCheck reports whether the translation stage's default prompt is
// registered.
func (s *Translate) HealthCheck(ctx context.Context) stage.Health {
	if _, err := s.Prompts.Default(ctx, translatePromptName); err != nil {
		return stage.Unhealthy(string(stage.Translate), err.Error())
	}
	return stage.Healthy(string(stage.Translate))
}
