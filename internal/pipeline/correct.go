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

const correctPromptName = "correct"

// Correct fixes transcription errors in the clean transcript with an LLM
// pass and opens a review gate 1 task on the result.
type Correct struct {
	loggerBox
	Deps
	LLM      *llm.Client
	Prompts  promptreg.Registry
	Review   review.Coordinator
	Model    string
}

// NewCorrect returns a Correct stage module.
func NewCorrect(deps Deps, client *llm.Client, prompts promptreg.Registry, reviewer review.Coordinator) *Correct {
	return &Correct{Deps: deps, LLM: client, Prompts: prompts, Review: reviewer}
}

func (s *Correct) inputHash(ctx context.Context, episode *store.Episode, promptHash, feedback string) (string, error) {
	transcriptHash, err := fileutil.HashFile(s.Layout.CleanTranscript(episode.ID))
	if err != nil {
		return "", fmt.Errorf("pipeline: correct: hash transcript: %w", err)
	}
	return fileutil.HashCanonicalFields(map[string]string{
		"transcript_hash": transcriptHash,
		"prompt_hash":     promptHash,
		"feedback":        feedback,
	}), nil
}

func (s *Correct) feedback(ctx context.Context, episodeID string) (string, error) {
	notes, _, err := s.Review.PendingFeedback(ctx, episodeID, stage.ReviewGate1)
	if err != nil {
		return "", fmt.Errorf("pipeline: correct: pending feedback: %w", err)
	}
	return notes, nil
}

// Prepare reports whether the corrected transcript is already current for
// the clean transcript, default prompt, and any pending reviewer feedback.
func (s *Correct) Prepare(ctx context.Context, episode *store.Episode) (stage.Decision, error) {
	prompt, err := s.Prompts.Default(ctx, correctPromptName)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: correct: default prompt: %w", err)
	}
	feedback, err := s.feedback(ctx, episode.ID)
	if err != nil {
		return stage.Decision{}, err
	}
	inputHash, err := s.inputHash(ctx, episode, prompt.ContentHash, feedback)
	if err != nil {
		return stage.Decision{}, err
	}
	current, err := s.Cascade.IsCurrent(stage.Correct, episode.ID, inputHash)
	if err != nil {
		return stage.Decision{}, fmt.Errorf("pipeline: correct: prepare: %w", err)
	}
	if current {
		return stage.SkipBecause("corrected transcript already current"), nil
	}
	return stage.Run(), nil
}

// Execute runs the correction pass and requests review gate 1.
func (s *Correct) Execute(ctx context.Context, episode *store.Episode) error {
	if err := s.guardCost(ctx, episode.ID, stage.Correct); err != nil {
		return err
	}
	prompt, err := s.Prompts.Default(ctx, correctPromptName)
	if err != nil {
		return fmt.Errorf("pipeline: correct: default prompt: %w", err)
	}
	tmpl, err := promptreg.LoadTemplate(prompt.TemplatePath)
	if err != nil {
		return fmt.Errorf("pipeline: correct: load template: %w", err)
	}
	feedback, err := s.feedback(ctx, episode.ID)
	if err != nil {
		return err
	}
	system := promptreg.Render(tmpl.Body, feedback)

	before, err := os.ReadFile(s.Layout.CleanTranscript(episode.ID))
	if err != nil {
		return fmt.Errorf("pipeline: correct: read transcript: %w", err)
	}

	run, err := s.startRun(ctx, episode.ID, stage.Correct)
	if err != nil {
		return fmt.Errorf("pipeline: correct: start run: %w", err)
	}

	model := prompt.Model
	if model == "" {
		model = s.Model
	}
	result, err := s.LLM.Call(ctx, system, string(before), model, decodeModelParams(prompt.ModelParams))
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), 0)
		return err
	}

	dest := s.Layout.CorrectedTranscript(episode.ID)
	if err := fileutil.WriteFileAtomic(dest, []byte(result.Text), 0o644); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: correct: write corrected transcript: %w", err)
	}

	diffPath := s.Layout.CorrectionDiff(episode.ID)
	changes, onlyPunctuation := review.PunctuationOnlyDiff(string(before), result.Text)
	diff, err := json.MarshalIndent(map[string]any{
		"before":           string(before),
		"after":            result.Text,
		"changes":          changes,
		"punctuation_only": onlyPunctuation,
	}, "", "  ")
	if err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: correct: marshal diff: %w", err)
	}
	if err := fileutil.WriteFileAtomic(diffPath, diff, 0o644); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: correct: write diff: %w", err)
	}

	artifactHash := fileutil.HashBytes([]byte(result.Text))
	if _, err := s.Store.CreateArtifact(ctx, store.ContentArtifact{
		EpisodeID:       episode.ID,
		ArtifactType:    string(stage.Correct),
		FilePath:        dest,
		PromptVersionID: &prompt.ID,
		InputTokens:     result.InputTokens,
		OutputTokens:    result.OutputTokens,
		CostUSD:         result.CostUSD,
		PromptHash:      prompt.ContentHash,
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: correct: record artifact: %w", err)
	}

	inputHash, err := s.inputHash(ctx, episode, prompt.ContentHash, feedback)
	if err != nil {
		return err
	}
	if err := s.Layout.WriteProvenance(layout.Provenance{
		Stage:            string(stage.Correct),
		EpisodeID:        episode.ID,
		Timestamp:        s.Clock.Now(),
		PromptName:       prompt.Name,
		PromptVersion:    prompt.Version,
		PromptHash:       prompt.ContentHash,
		Model:            model,
		InputFiles:       []string{s.Layout.CleanTranscript(episode.ID)},
		InputContentHash: inputHash,
		OutputFiles:      []string{dest},
		InputTokens:      result.InputTokens,
		OutputTokens:     result.OutputTokens,
		CostUSD:          result.CostUSD,
		DurationSeconds:  s.Clock.Since(run.StartedAt).Seconds(),
	}); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: correct: write provenance: %w", err)
	}
	if err := s.invalidateDownstream(episode.ID, stage.Correct, "stage rerun"); err != nil {
		_ = s.finishFailed(ctx, run.ID, err.Error(), result.CostUSD)
		return fmt.Errorf("pipeline: correct: invalidate downstream: %w", err)
	}

	if err := s.finishSuccess(ctx, run.ID, result.InputTokens, result.OutputTokens, result.CostUSD); err != nil {
		return fmt.Errorf("pipeline: correct: finish run: %w", err)
	}
	if err := s.Store.SetEpisodeStatus(ctx, episode.ID, store.StatusCorrected); err != nil {
		return fmt.Errorf("pipeline: correct: advance status: %w", err)
	}

	_, _, err = s.Review.RequestReview(ctx, review.RequestReviewInput{
		EpisodeID:       episode.ID,
		Gate:            stage.ReviewGate1,
		ArtifactPaths:   []string{dest},
		DiffPath:        diffPath,
		ArtifactHash:    artifactHash,
		PromptVersionID: &prompt.ID,
		CreatedBy:       "pipeline",
		BeforeText:      string(before),
		AfterText:       result.Text,
	})
	if err != nil {
		return fmt.Errorf("pipeline: correct: request review: %w", err)
	}
	return nil
}

// HealthCheck reports whether the correction prompt has a default version
// registered; LLM credentials are not checked here.
func (s *Correct) HealthCheck(ctx context.Context) stage.Health {
	if _, err := s.Prompts.Default(ctx, correctPromptName); err != nil {
		return stage.Unhealthy(string(stage.Correct), err.Error())
	}
	return stage.Healthy(string(stage.Correct))
}
