package stage

import (
	"context"
	"log/slog"

	"dubforge/internal/store"
)

// Handler describes the contract the pipeline executor needs from each
// stage module: prepare validates preconditions and decides whether the
// stage's output is already current (skippable), Execute performs the
// stage's work and persists its artifacts, and HealthCheck reports
// whether the stage's external dependencies (drivers, directories) are
// reachable.
type Handler interface {
	Prepare(ctx context.Context, episode *store.Episode) (Decision, error)
	Execute(ctx context.Context, episode *store.Episode) error
	HealthCheck(ctx context.Context) Health
}

// Decision is Prepare's verdict on whether Execute should run.
type Decision struct {
	Skip   bool
	Reason string
}

// Run constructs a Decision directing the executor to run Execute.
func Run() Decision { return Decision{} }

// SkipBecause constructs a Decision directing the executor to skip
// Execute, recording why (surfaced in progress messages and logs).
func SkipBecause(reason string) Decision { return Decision{Skip: true, Reason: reason} }

// LoggerAware is implemented by stages that accept a per-episode logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
