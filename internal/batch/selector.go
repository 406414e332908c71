package batch

import (
	"context"
	"fmt"
	"log/slog"

	"dubforge/internal/executor"
	"dubforge/internal/logging"
	"dubforge/internal/review"
	"dubforge/internal/store"
)

// Mode selects which episodes a Selector run considers.
type Mode string

const (
	// ModePending scans every actionable episode and excludes the ones
	// whose next step is a review gate with an open task.
	ModePending Mode = "pending"
	// ModeLatest picks the newest N actionable episodes by updated_at,
	// applying the same gate-state exclusion as ModePending.
	ModeLatest Mode = "latest"
)

// EpisodeResult records one episode's executor outcome within a batch run.
type EpisodeResult struct {
	EpisodeID string
	Report    executor.Report
	Err       error
}

// Report summarizes a full batch run.
type Report struct {
	Mode    Mode
	Results []EpisodeResult
}

// Selector chooses episodes and drives them through the executor.
type Selector struct {
	Store    *store.Store
	Review   review.Coordinator
	Executor *executor.Executor
	Logger   *slog.Logger
}

// New returns a Selector wired to the given store, review coordinator, and
// executor.
func New(st *store.Store, reviewer review.Coordinator, exec *executor.Executor, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Selector{Store: st, Review: reviewer, Executor: exec, Logger: logger}
}

// Run selects up to limit episodes under mode and runs the executor against
// each in turn. limit <= 0 means unbounded. A per-episode executor error is
// recorded in that episode's EpisodeResult rather than aborting the batch.
func (s *Selector) Run(ctx context.Context, mode Mode, limit int) (Report, error) {
	episodes, err := s.selectEpisodes(ctx, mode, limit)
	if err != nil {
		return Report{Mode: mode}, fmt.Errorf("batch: select episodes: %w", err)
	}

	report := Report{Mode: mode, Results: make([]EpisodeResult, 0, len(episodes))}
	for _, episode := range episodes {
		logger := s.Logger.With(logging.String("episode_id", episode.ID))
		rep, runErr := s.Executor.Run(ctx, episode.ID)
		if runErr != nil {
			logger.Error("batch run failed", logging.Error(runErr))
		} else if rep.Suspended {
			logger.Info("batch run suspended on review gate", logging.String(logging.FieldStage, string(rep.SuspendedGate)))
		} else {
			logger.Info("batch run finished", logging.String("status", string(rep.FinalStatus)))
		}
		report.Results = append(report.Results, EpisodeResult{EpisodeID: episode.ID, Report: rep, Err: runErr})
	}
	return report, nil
}

func (s *Selector) selectEpisodes(ctx context.Context, mode Mode, limit int) ([]store.Episode, error) {
	candidates, err := s.Store.ListEpisodesByStatus(ctx, store.ActionablePendingStatuses)
	if err != nil {
		return nil, fmt.Errorf("list actionable episodes: %w", err)
	}

	switch mode {
	case ModeLatest:
		reverseEpisodes(candidates)
	case ModePending, "":
		// already oldest-first from the store
	default:
		return nil, fmt.Errorf("batch: unknown mode %q", mode)
	}
	return s.filterActionable(ctx, candidates, limit)
}

// filterActionable walks candidates in the order given, excluding any whose
// next step is a review gate already blocked by an open task, and returns
// at most limit (0 means unbounded). Both modes share this filter: the only
// difference between them is candidate order.
func (s *Selector) filterActionable(ctx context.Context, candidates []store.Episode, limit int) ([]store.Episode, error) {
	selected := make([]store.Episode, 0, len(candidates))
	for _, episode := range candidates {
		gate, hasGate := s.Executor.NextGate(episode.Status)
		if hasGate {
			active, err := s.Review.Active(ctx, episode.ID)
			if err != nil {
				return nil, fmt.Errorf("check active review for %s: %w", episode.ID, err)
			}
			if active != nil && active.Stage == string(gate) {
				continue
			}
		}
		selected = append(selected, episode)
		if limit > 0 && len(selected) >= limit {
			break
		}
	}
	return selected, nil
}

func reverseEpisodes(episodes []store.Episode) {
	for i, j := 0, len(episodes)-1; i < j; i, j = i+1, j-1 {
		episodes[i], episodes[j] = episodes[j], episodes[i]
	}
}
