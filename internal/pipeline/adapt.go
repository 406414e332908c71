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
	"dubforge/internal/review"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

const adaptPromptName = "adapt"

// Adapt rewrites the translated transcript for cultural fit with an LLM
// pass and opens a review gate 2 task on the result.
type Adapt struct {
	loggerBox
	Deps
	LLM     *llm.Client
	Prompts promptreg.Registry
	Review  review.Coordinator
	Model   string
}

// NewAdapt returns an Adapt stage module.
func NewAdapt(deps Deps, client *llm.Client, prompts promptreg.Registry, reviewer review.Coordinator) *Adapt {
	return &Adapt{Deps: deps, LLM: client, Prompts: prompts, Review: reviewer}
}

func (s *Adapt) feedback(ctx context.Context, episodeID string) (string, error) {
	notes, _, err := s.Review.PendingFeedback(ctx, episodeID, stage.ReviewGate2)
	if err != nil {
		return "", fmt.Errorf("pipeline: adapt: pending feedback: %w", err)
	}
	return notes, nil
}

func (s *Adapt) inputHash(episode *store.Episode, promptHash, feedback string) (string, error) {
	transcriptHash, err := fileutil.HashFile(s.Layout.TranslatedTranscript(episode.ID))
	if err != nil {
		return "", fmt.Errorf("pipeline: adapt: hash transcript: %w", err)
	}
	return fileutil.HashCanonicalFields(map[string]string{
		"transcript_hash": transcriptHash,
		"prompt_hash":     promptHash,
		"feedback":        feedback,
	}), nil
}

// Prepare reports whether the adapted script is already current.
func (s *Adapt) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	prompt, err := s.Prompts.Default(ctx, adaptPromptName)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: adapt: default prompt: %w", err)
	}
	feedback, err := s.feedback(ctx, episode.ID)
	if err != nil {
		return stage.Decision{}, err
	}
	inputHash, err := s.inputHash(episode, prompt.ContentHash, feedback)
	if err != nil {
		return stage.Decision{}, err
	}
	current, err := s.Cascade.IsCurrent(stage.Adapt, episode.ID, inputHash)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: adapt: prepare: %w", err)
	}
	if current {
		return stage.SkipBecause("adapted script already current"), nil
	}
	return stage.Run(), nil
}

// Execute runs the adaptation pass and requests review gate 2.
func (s *Adapt) Execute(ctx context.Context, episode *store.Episode) error {
	if err := s.guardCost(ctx, episode.ID, stage.Adapt); err != nil {
		return err
	}
	prompt, err := s.Prompts.Default(ctx, adaptPromptName)
	if err != nil {
		return fmt.Errorf("pipeline: adapt: default prompt: %w", err)
	}
	tmpl, err := promptreg.LoadTemplate(prompt.TemplatePath)
	if err != nil {
		return fmt.Errorf("pipeline: adapt: load template: %w", err)
	}
	feedback, err := s.feedback(ctx, episode.ID)
	if err != nil {
		return err
	}
	system := promptreg.Render(tmpl.Body, feedback)

	transcript, err := os.ReadFile(s.Layout.TranslatedTranscript(episode.ID))
	if err != nil {
		return fmt.Errorf("pipeline: adapt: read transcript: %w", err)
	}

	run, err := s.startRun(ctx, episode.ID, stage.Adapt)
	if err != nil {
		return fmt.Errorf("pipeline: adapt: start run: %w", err)
	}

	model := prompt.Model
	if model == "" {
		model = s.Model
	}
	result, err := s.LLM.Call(ctx, system, string(transcript), model, decodeModelParams(prompt.ModelParams))
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}

	dest := s.Layout.AdaptedScript(episode.ID)
	if err := fileutil.WriteFileAtomic(dest, []byte(result.Text), 0o644); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: adapt: write adapted script: %w", err)
	}

	diffPath := s.Layout.AdaptationDiff(episode.ID)
	diff, err := json.MarshalIndent(map[string]any{
		"before": string(transcript),
		"after":  result.Text,
	}, "", "  ")
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: adapt: marshal diff: %w", err)
	}
	if err := fileutil.WriteFileAtomic(diffPath, diff, 0o644); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: adapt: write diff: %w", err)
	}

	artifactHash := fileutil.HashBytes([]byte(result.Text))
	if _, err := s.Store.CreateArtifact(ctx, store.ContentArtifact{
		EpisodeID:       episode.ID,
		ArtifactType:    string(stage.Adapt),
		FilePath:        dest,
		PromptVersionID: &prompt.ID,
		InputTokens:     result.InputTokens,
		OutputTokens:    result.OutputTokens,
		CostUSD:         result.CostUSD,
		PromptHash:      prompt.ContentHash,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: adapt: record artifact: %w", err)
	}

	inputHash, err := s.inputHash(episode, prompt.ContentHash, feedback)
	if err != nil {
		return err
	}
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:            string(stage.Adapt),
		EpisodeID:        episode.ID,
		Timestamp:        s.Clock.Now(),
		PromptName:       prompt.Name,
		PromptVersion:    prompt.Version,
		PromptHash:       prompt.ContentHash,
		Model:            model,
		InputFiles:       []string{s.Layout.TranslatedTranscript(episode.ID)},
		InputContentHash: inputHash,
		OutputFiles:      []string{dest},
		InputTokens:      result.InputTokens,
		OutputTokens:     result.OutputTokens,
		CostUSD:          result.CostUSD,
		DurationSeconds:  s.Clock.Since(run.StartedAt).Seconds(),
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: adapt: write provenance: %w", err)
	}
	if err := s.invalidateDownstream(episode.ID, stage.Adapt, "stage rerun"); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: adapt: invalidate downstream: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, result.InputTokens, result.OutputTokens, result.CostUSD); err != nil {
		return fmt.Errorf("pipeline: adapt: finish run: %w", err)
	}
	if err := s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusAdapted); err != nil {
		return fmt.Errorf("pipeline: adapt: advance status: %w", err)
	}

	_, _, err = s.Review.RequestReview(ctx, review.RequestReviewInput{
		EpisodeID:       episode.ID,
		Gate:            stage.ReviewGate2,
		ArtifactPaths:   []string{dest},
		DiffPath:        diffPath,
		ArtifactHash:    artifactHash,
		PromptVersionID: &prompt.ID,
		CreatedBy:       "pipeline",
	})
	if err != nil {
		return fmt.Errorf("pipeline: adapt: request review: %w", err)
	}
	return nil
}

// HealthCheck reports whether the adaptation stage's default prompt is
// registered.
func (s *Adapt) HealthCheck(ctx context.Context) stage.Health {
	if _, err := s.Prompts.Default(ctx, adaptPromptName); err != nil {
		return stage.Unhealthy(string(stage.Adapt), err.Error())
	}
	return stage.Healthy(string(stage.Adapt))
}
