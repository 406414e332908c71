// Package pipeline implements the ten producer stage modules that make up
// the stage graph: download, transcribe, correct, translate, adapt,
// chapterize, imagegen, tts, render, publish. Each satisfies
// stage.Handler, following the same prepare/execute/health-check shape as
// the rest of the driver-backed stages.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"dubforge/internal/cascade"
	"dubforge/internal/clock"
	"dubforge/internal/layout"
	"dubforge/internal/pipelineerr"
	"dubforge/internal/stage"
	"dubforge/internal/store"
)

// Deps are the collaborators every stage module shares: the store,
// filesystem layout, cascade engine, clock, and cost ceiling. Each stage
// constructor wraps Deps with the driver port(s) and prompt registry it
// personally needs.
type Deps struct {
	Store             *store.Store
	Layout            layout.Layout
	Cascade           cascade.Engine
	Clock             clock.Clock
	MaxEpisodeCostUSD float64
	DryRun            bool
}

func (d Deps) startRun(ctx context.Context, episodeID string, name stage.Name) (store.PipelineRun, error) {
	return d.Store.StartRun(ctx, d.Clock.NewID(), episodeID, string(name))
}

func (d Deps) finishSuccess(ctx context.Context, runID int64, inputTokens, outputTokens int64, costUSD float64) error {
	return d.Store.FinishRunSuccess(ctx, runID, inputTokens, outputTokens, costUSD)
}

func (d Deps) finishSkipped(ctx context.Context, runID int64) error {
	return d.Store.FinishRunSkipped(ctx, runID)
}

func (d Deps) finishFailed(ctx context.Context, runID int64, message string, costUSD float64) error {
	return d.Store.FinishRunFailed(ctx, runID, message, costUSD)
}

// guardCost rejects entry into a stage once the episode has already spent
// its cap, so a run never starts work it cannot afford to finish.
func (d Deps) guardCost(ctx context.Context, episodeID string, name stage.Name) error {
	if d.MaxEpisodeCostUSD <= 0 {
		return nil
	}
	spent, err := d.Store.EpisodeCostUSD(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("pipeline: %s: cost guard: %w", name, err)
	}
	if spent >= d.MaxEpisodeCostUSD {
		return pipelineerr.Wrap(pipelineerr.ErrCostLimit, string(name), "cost guard",
			fmt.Sprintf("episode has spent $%.4f of a $%.4f cap", spent, d.MaxEpisodeCostUSD), nil)
	}
	return nil
}

func (d Deps) invalidateDownstream(episodeID string, from stage.Name, reason string) error {
	return d.Cascade.Invalidate(episodeID, from, reason, d.Clock.Now())
}

// loggerBox lets stage modules accept a per-episode logger via
// stage.LoggerAware without every module repeating the same field.
type loggerBox struct {
	logger *slog.Logger
}

func (b *loggerBox) SetLogger(l *slog.Logger) { b.logger = l }

func (b *loggerBox) log() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}
