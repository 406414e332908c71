package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dubforge/internal/clock"
	"dubforge/internal/logging"
	"dubforge/internal/notifications"
	"dubforge/internal/pipelineerr"
	"dubforge/internal/review"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// Executor drives episodes through the stage graph defined by steps().
type Executor struct {
	Store             *store.Store
	Review            review.Coordinator
	Clock             clock.Clock
	Logger            *slog.Logger
	Notify            notifications.Service
	HeartbeatInterval time.Duration
	// MaxEpisodeCostUSD mirrors pipeline.Deps.MaxEpisodeCostUSD so a
	// COST_LIMIT notification can report the cap alongside the spend.
	MaxEpisodeCostUSD float64
	stages            StageSet
	steps             []step
}

// New returns an Executor dispatching against the given stage modules.
// Notify defaults to a no-op service; set Executor.Notify after
// construction to wire a real notifier.
func New(st *store.Store, reviewer review.Coordinator, c clock.Clock, logger *slog.Logger, stages StageSet) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := 30 * time.Second
	return &Executor{
		Store:             st,
		Review:            reviewer,
		Clock:             c,
		Logger:            logger,
		Notify:            noopNotifier{},
		HeartbeatInterval: interval,
		stages:            stages,
		steps:             stages.steps(),
	}
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}

// notify fires a notification and logs, rather than fails, on delivery
// error: a dropped ntfy push must never interrupt pipeline execution.
func (e *Executor) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := e.Notify.Publish(ctx, event, payload); err != nil {
		e.Logger.Warn("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func (e *Executor) stepForStatus(status store.Status) (step, bool) {
	for _, s := range e.steps {
		if s.startStatus == status || s.preGateStatus == status {
			return s, true
		}
	}
	return step{}, false
}

// NextGate reports the review gate, if any, standing in front of the step
// that would run next for an episode at the given status. Callers such as
// the batch selector use this to decide whether an episode is blocked on a
// human decision without running the step itself. It reports false once
// the episode has already advanced past the gate's status, even though the
// step itself still carries a gateBefore value.
func (e *Executor) NextGate(status store.Status) (stage.Name, bool) {
	st, ok := e.stepForStatus(status)
	if !ok || st.gateBefore == "" || status != st.gateStatus() {
		return "", false
	}
	return st.gateBefore, true
}

// Run advances episodeID through as many steps as it can, stopping on the
// episode's first failure, a review-gate suspension, or a terminal status.
func (e *Executor) Run(ctx context.Context, episodeID string) (Report, error) {
	report := Report{EpisodeID: episodeID}
	for {
		episode, err := e.Store.GetEpisode(ctx, episodeID)
		if err != nil {
			return report, fmt.Errorf("executor: get episode: %w", err)
		}
		report.FinalStatus = episode.Status

		if store.IsTerminal(episode.Status) {
			return report, nil
		}

		current, ok := e.stepForStatus(episode.Status)
		if !ok {
			return report, nil
		}

		if current.gateBefore != "" {
			resumed, err := e.resolveGate(ctx, &episode, current.gateBefore)
			if err != nil {
				return report, err
			}
			if !resumed {
				report.Suspended = true
				report.SuspendedGate = current.gateBefore
				report.FinalStatus = episode.Status
				e.notify(ctx, notifications.EventReviewPending, notifications.Payload{
					"episodeID": episode.ID,
					"gate":      string(current.gateBefore),
				})
				return report, nil
			}
			// Gate resolved (possibly advancing episode.Status in place,
			// e.g. RENDERED -> APPROVED for gate 3): run this step now
			// instead of looping, since looping back to stepForStatus
			// would just resolve the same already-satisfied gate again.
		}

		result, err := e.runStep(ctx, &episode, current)
		report.Results = append(report.Results, result)
		if err != nil {
			report.FinalStatus = pipelineerr.FailureStatus(err)
			return report, err
		}
	}
}

// resolveGate reports whether the gate in front of the next step has been
// resolved (approved). If there is an open task it returns false without
// error: the caller should stop and surface a suspension, not an error.
func (e *Executor) resolveGate(ctx context.Context, episode *store.Episode, gate stage.Name) (bool, error) {
	advanceTo, needsAdvance := gateApprovalAdvance[gate]

	// Pipeline version 1 is the unattended variant: review tasks are still
	// created for audit trail, but the executor never waits on a human
	// decision, so every gate resolves as soon as it is reached.
	if episode.PipelineVersion == 1 {
		if needsAdvance && episode.Status != advanceTo {
			if err := e.Store.SetEpisodeStatus(ctx, episode.ID, advanceTo); err != nil {
				return false, fmt.Errorf("executor: advance past gate: %w", err)
			}
			episode.Status = advanceTo
		}
		return true, nil
	}

	active, err := e.Review.Active(ctx, episode.ID)
	if err != nil {
		return false, fmt.Errorf("executor: check active review: %w", err)
	}
	if active != nil && active.Stage == string(gate) {
		return false, nil
	}

	if !needsAdvance {
		return true, nil
	}
	if episode.Status == advanceTo {
		return true, nil
	}
	if _, err := e.Store.LatestApprovedTaskForStage(ctx, episode.ID, string(gate)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No active task and no approved decision: the gate was never
			// reached, which should not happen given the precondition
			// check above, but treat it as still suspended rather than
			// advancing an episode nothing approved.
			return false, nil
		}
		return false, fmt.Errorf("executor: latest approved task: %w", err)
	}
	if err := e.Store.SetEpisodeStatus(ctx, episode.ID, advanceTo); err != nil {
		return false, fmt.Errorf("executor: advance past gate: %w", err)
	}
	episode.Status = advanceTo
	return true, nil
}

func (e *Executor) runStep(ctx context.Context, episode *store.Episode, st step) (StageResult, error) {
	logger := e.Logger.With(logging.String(logging.FieldStage, string(st.name)), logging.String("episode_id", episode.ID))
	if aware, ok := st.handler.(loggerAware); ok {
		aware.SetLogger(logger)
	}

	decision, err := st.handler.Prepare(ctx, episode)
	if err != nil {
		return e.fail(ctx, episode, st, logger, err)
	}

	if decision.Skip {
		logger.Info("stage skipped", logging.String("reason", decision.Reason))
		if episode.Status == st.startStatus {
			if err := e.Store.SetEpisodeStatus(ctx, episode.ID, st.doneStatus); err != nil {
				return StageResult{}, fmt.Errorf("executor: advance skipped stage: %w", err)
			}
			episode.Status = st.doneStatus
		}
		return StageResult{Stage: st.name, Outcome: OutcomeSkipped, Message: decision.Reason}, nil
	}

	start := e.Clock.Now()
	logger.Info("stage started")
	e.notify(ctx, notifications.EventStageStarted, notifications.Payload{
		"episodeID": episode.ID,
		"stage":     string(st.name),
	})

	execErr := e.executeWithHeartbeat(ctx, st.handler, episode)
	elapsed := e.Clock.Since(start)
	duration := elapsed.Seconds()
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			return StageResult{Stage: st.name, Outcome: OutcomeFailed, Message: "interrupted", DurationSeconds: duration}, execErr
		}
		result, failErr := e.fail(ctx, episode, st, logger, execErr)
		result.DurationSeconds = duration
		return result, failErr
	}

	logger.Info("stage completed", logging.Float64("duration_seconds", duration))
	e.notify(ctx, notifications.EventStageCompleted, notifications.Payload{
		"episodeID": episode.ID,
		"stage":     string(st.name),
		"duration":  elapsed,
	})
	if st.name == stage.Publish {
		videoID := episode.YouTubeVideoID
		if published, err := e.Store.GetEpisode(ctx, episode.ID); err == nil {
			videoID = published.YouTubeVideoID
		}
		e.notify(ctx, notifications.EventPublished, notifications.Payload{
			"episodeID": episode.ID,
			"videoID":   videoID,
		})
	}
	return StageResult{Stage: st.name, Outcome: OutcomeSucceeded, DurationSeconds: duration}, nil
}

func (e *Executor) executeWithHeartbeat(ctx context.Context, handler Handler, episode *store.Episode) error {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go e.heartbeatLoop(hbCtx, episode.ID, done)

	err := handler.Execute(ctx, episode)
	cancel()
	<-done
	return err
}

func (e *Executor) heartbeatLoop(ctx context.Context, episodeID string, done chan struct{}) {
	defer close(done)
	if e.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Store.SetEpisodeProgress(ctx, episodeID, "in progress"); err != nil {
				e.Logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

func (e *Executor) fail(ctx context.Context, episode *store.Episode, st step, logger *slog.Logger, stageErr error) (StageResult, error) {
	details := pipelineerr.Details(stageErr)
	message := details.Message
	if message == "" {
		message = stageErr.Error()
	}
	logger.Error("stage failed",
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Error(stageErr),
	)

	targetStatus := pipelineerr.FailureStatus(stageErr)
	if err := e.Store.SetEpisodeStatus(ctx, episode.ID, targetStatus); err != nil {
		logger.Error("failed to persist failure status", logging.Error(err))
	}
	if err := e.Store.SetEpisodeError(ctx, episode.ID, message); err != nil {
		logger.Error("failed to persist error message", logging.Error(err))
	}

	if targetStatus == store.StatusCostLimit {
		spent, costErr := e.Store.EpisodeCostUSD(ctx, episode.ID)
		if costErr != nil {
			logger.Warn("failed to read episode cost for notification", logging.Error(costErr))
		}
		e.notify(ctx, notifications.EventCostLimit, notifications.Payload{
			"episodeID": episode.ID,
			"stage":     string(st.name),
			"costUSD":   spent,
			"limitUSD":  e.MaxEpisodeCostUSD,
		})
	} else {
		e.notify(ctx, notifications.EventStageFailed, notifications.Payload{
			"episodeID": episode.ID,
			"stage":     string(st.name),
			"error":     stageErr,
		})
	}
	return StageResult{Stage: st.name, Outcome: OutcomeFailed, Message: message}, stageErr
}
