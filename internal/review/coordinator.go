package review

import (
	"context"
	"fmt"
	"strings"

	"dubforge/internal/cascade"
	"dubforge/internal/clock"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// RevertStatus is the episode status a review gate reverts to when its
// stage's output is rejected or changes are requested, so the producing
// stage re-runs.
var RevertStatus = map[stage.Name]store.Status{
	stage.ReviewGate1: store.StatusTranscribed,
	stage.ReviewGate2: store.StatusTranslated,
	stage.ReviewGate3: store.StatusTTSDone,
}

// GateStage maps the pipeline stage a gate reviews to the gate's sentinel
// stage name.
var GateStage = map[stage.Name]stage.Name{
	stage.Correct: stage.ReviewGate1,
	stage.Adapt:   stage.ReviewGate2,
	stage.Render:  stage.ReviewGate3,
}

// GateProducerStage is the inverse of GateStage: the stage whose output a
// gate reviews, used to cascade-invalidate downstream stages and to revert
// the episode back to that stage's entry status.
var GateProducerStage = map[stage.Name]stage.Name{
	stage.ReviewGate1: stage.Correct,
	stage.ReviewGate2: stage.Adapt,
	stage.ReviewGate3: stage.Render,
}

// Coordinator manages review task lifecycle for one store, reverting
// episode status and cascading invalidation when a gate's decision sends
// a stage back for rework.
type Coordinator struct {
	store   *store.Store
	cascade cascade.Engine
	clock   clock.Clock
}

// New returns a Coordinator backed by s, invalidating downstream outputs
// through eng and stamping decisions using c.
func New(s *store.Store, eng cascade.Engine, c clock.Clock) Coordinator {
	return Coordinator{store: s, cascade: eng, clock: c}
}

// RequestReviewInput describes the review task RequestReview opens for a
// gate. When a gate-1 correction qualifies for automatic approval, the task
// is approved at once and RequestReview reports it as auto-approved so the
// caller does not block on a human.
type RequestReviewInput struct {
	EpisodeID     string
	Gate          stage.Name
	ArtifactPaths []string
	DiffPath      string
	ArtifactHash  string
	PromptVersionID *int64
	CreatedBy     string
	// BeforeText/AfterText are supplied only for gate 1, to evaluate
	// auto-approval; other gates leave them empty.
	BeforeText string
	AfterText  string
}

// RequestReview creates a review task for the gate. Returns the task and,
// if it was auto-approved, true.
func (c Coordinator) RequestReview(ctx context.Context, in RequestReviewInput) (store.ReviewTask, bool, error) {
	task, err := c.store.CreateReviewTask(ctx, store.ReviewTask{
		EpisodeID:       in.EpisodeID,
		Stage:           string(in.Gate),
		ArtifactPaths:   in.ArtifactPaths,
		DiffPath:        in.DiffPath,
		ArtifactHash:    in.ArtifactHash,
		PromptVersionID: in.PromptVersionID,
		CreatedBy:       in.CreatedBy,
	})
	if err != nil {
		return store.ReviewTask{}, false, fmt.Errorf("review: request review: %w", err)
	}

	if in.Gate == stage.ReviewGate1 && QualifiesForAutoApproval(in.BeforeText, in.AfterText) {
		if err := c.Approve(ctx, task.ID, "auto-approved: punctuation-only correction", "system"); err != nil {
			return store.ReviewTask{}, false, fmt.Errorf("review: auto-approve: %w", err)
		}
		task, err = c.store.GetReviewTask(ctx, task.ID)
		if err != nil {
			return store.ReviewTask{}, false, fmt.Errorf("review: reload auto-approved task: %w", err)
		}
		return task, true, nil
	}
	return task, false, nil
}

// Approve records an APPROVED decision and transitions the task. The
// episode's status advance past the gate is the executor's job, not the
// coordinator's: approval only clears the way.
func (c Coordinator) Approve(ctx context.Context, taskID int64, notes, decidedBy string) error {
	return c.decide(ctx, taskID, store.DecisionApproved, store.ReviewApproved, notes, decidedBy)
}

// Reject records a REJECTED decision, transitions the task, and reverts
// the episode to the producing stage's entry status so it re-runs on the
// next executor pass. Unlike RequestChanges, a plain rejection carries no
// reviewer feedback to inject, so it does not cascade invalidation to
// downstream stages: the next invocation re-runs only the producing
// stage, and nothing stale is left behind for stages after it. Rejecting
// gate 3 (the render gate) requires notes explaining what is wrong with
// the video; the other gates do not.
func (c Coordinator) Reject(ctx context.Context, taskID int64, notes, decidedBy string) error {
	task, err := c.store.GetReviewTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("review: reject: load task: %w", err)
	}
	if stage.Name(task.Stage) == stage.ReviewGate3 && strings.TrimSpace(notes) == "" {
		return fmt.Errorf("review: reject: gate 3 rejection requires notes")
	}
	if err := c.decide(ctx, taskID, store.DecisionRejected, store.ReviewRejected, notes, decidedBy); err != nil {
		return err
	}
	return c.revert(ctx, task)
}

// RequestChanges records a CHANGES_REQUESTED decision, transitions the
// task, reverts the episode to the producing stage's entry status, and
// cascades invalidation so the stage re-runs with the feedback injected.
// Notes are always required: they are the only channel for feeding
// reviewer intent back into the next attempt.
func (c Coordinator) RequestChanges(ctx context.Context, taskID int64, notes, decidedBy string) error {
	if strings.TrimSpace(notes) == "" {
		return fmt.Errorf("review: request changes: notes are required")
	}
	task, err := c.store.GetReviewTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("review: request changes: load task: %w", err)
	}
	if err := c.decide(ctx, taskID, store.DecisionChangesRequested, store.ReviewChangesRequested, notes, decidedBy); err != nil {
		return err
	}
	if err := c.revert(ctx, task); err != nil {
		return err
	}
	producer := GateProducerStage[stage.Name(task.Stage)]
	if err := c.cascade.Invalidate(task.EpisodeID, producer, "review: "+task.Stage, c.clock.Now()); err != nil {
		return fmt.Errorf("review: request changes: invalidate downstream: %w", err)
	}
	return nil
}

// revert sends the episode back to the producing stage's entry status so
// the next executor pass re-runs it.
func (c Coordinator) revert(ctx context.Context, task store.ReviewTask) error {
	gate := stage.Name(task.Stage)
	revertTo, ok := RevertStatus[gate]
	if !ok {
		return fmt.Errorf("review: revert: no revert status for gate %q", gate)
	}
	if err := c.store.SetEpisodeStatus(ctx, task.EpisodeID, revertTo); err != nil {
		return fmt.Errorf("review: revert: set episode status: %w", err)
	}
	return nil
}

func (c Coordinator) decide(ctx context.Context, taskID int64, decisionKind store.ReviewDecisionKind, status store.ReviewTaskStatus, notes, decidedBy string) error {
	if err := c.store.UpdateReviewTaskStatus(ctx, taskID, status, notes, ""); err != nil {
		return fmt.Errorf("review: update task status: %w", err)
	}
	if _, err := c.store.AppendReviewDecision(ctx, store.ReviewDecision{
		ReviewTaskID: taskID,
		Decision:     decisionKind,
		Notes:        notes,
		DecidedBy:    decidedBy,
	}); err != nil {
		return fmt.Errorf("review: append decision: %w", err)
	}
	return nil
}

// PendingFeedback returns the most recent CHANGES_REQUESTED task's notes
// for the producing stage of gate, if any, so the stage can inject
// reviewer feedback into its next attempt.
func (c Coordinator) PendingFeedback(ctx context.Context, episodeID string, gate stage.Name) (string, bool, error) {
	task, err := c.store.LatestChangesRequestedForStage(ctx, episodeID, string(gate))
	if err != nil {
		if err == store.ErrNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("review: pending feedback: %w", err)
	}
	return task.ReviewerNotes, true, nil
}

// Active returns the episode's currently active (PENDING or IN_REVIEW)
// task, if any. An episode has at most one active task regardless of gate.
func (c Coordinator) Active(ctx context.Context, episodeID string) (*store.ReviewTask, error) {
	t, err := c.store.ActiveReviewTask(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("review: active task: %w", err)
	}
	return t, nil
}
