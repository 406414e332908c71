package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = `
	id, run_id, episode_id, stage, status, started_at, finished_at,
	input_tokens, output_tokens, estimated_cost_usd, error_message
`

func scanRun(scanner interface{ Scan(dest ...any) error }) (PipelineRun, error) {
	var r PipelineRun
	var finishedAt sql.NullString
	var startedAt string
	err := scanner.Scan(
		&r.ID, &r.RunID, &r.EpisodeID, &r.Stage, &r.Status, &startedAt, &finishedAt,
		&r.InputTokens, &r.OutputTokens, &r.EstimatedCostUSD, &r.ErrorMessage,
	)
	if err != nil {
		return PipelineRun{}, err
	}
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return PipelineRun{}, fmt.Errorf("store: parse started_at: %w", err)
	}
	if r.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return PipelineRun{}, fmt.Errorf("store: parse finished_at: %w", err)
	}
	return r, nil
}

// StartRun opens a PipelineRun(stage, RUNNING) row and returns it with its
// assigned ID. Each stage execution produces exactly one run row.
func (s *Store) StartRun(ctx context.Context, runID, episodeID, stage string) (PipelineRun, error) {
	now := formatTime(nowUTC())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, episode_id, stage, status, started_at, finished_at,
			input_tokens, output_tokens, estimated_cost_usd, error_message)
		VALUES (?, ?, ?, ?, ?, NULL, 0, 0, 0, '')
	`, runID, episodeID, stage, RunRunning, now)
	if err != nil {
		return PipelineRun{}, fmt.Errorf("store: start run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PipelineRun{}, fmt.Errorf("store: start run: last insert id: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun returns the run by id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id int64) (PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PipelineRun{}, ErrNotFound
	}
	if err != nil {
		return PipelineRun{}, fmt.Errorf("store: get run: %w", err)
	}
	return r, nil
}

// FinishRunSuccess closes a run as SUCCESS with its final counters.
func (s *Store) FinishRunSuccess(ctx context.Context, id int64, inputTokens, outputTokens int64, costUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, finished_at = ?, input_tokens = ?, output_tokens = ?, estimated_cost_usd = ?
		WHERE id = ?
	`, RunSuccess, formatTime(nowUTC()), inputTokens, outputTokens, costUSD, id)
	if err != nil {
		return fmt.Errorf("store: finish run success: %w", err)
	}
	return nil
}

// FinishRunSkipped closes a run as SKIPPED (idempotent re-entry): zero cost,
// zero tokens.
func (s *Store) FinishRunSkipped(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET status = ?, finished_at = ? WHERE id = ?
	`, RunSkipped, formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("store: finish run skipped: %w", err)
	}
	return nil
}

// FinishRunFailed closes a run as FAILED with an error message. Any partial
// costs incurred before the failure (e.g. a corrective re-prompt attempt)
// are still recorded so the cost accounting invariant holds.
func (s *Store) FinishRunFailed(ctx context.Context, id int64, message string, costUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET status = ?, finished_at = ?, error_message = ?, estimated_cost_usd = ?
		WHERE id = ?
	`, RunFailed, formatTime(nowUTC()), message, costUSD, id)
	if err != nil {
		return fmt.Errorf("store: finish run failed: %w", err)
	}
	return nil
}

// EpisodeCostUSD returns the sum of estimated_cost_usd over all SUCCESS runs
// for the episode, per the invariant that cost is the sum of successful
// runs only.
func (s *Store) EpisodeCostUSD(ctx context.Context, episodeID string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(estimated_cost_usd) FROM pipeline_runs WHERE episode_id = ? AND status = ?
	`, episodeID, RunSuccess).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: episode cost: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}

// ListRunsForEpisode returns every run row for an episode ordered by
// started_at ascending.
func (s *Store) ListRunsForEpisode(ctx context.Context, episodeID string) ([]PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM pipeline_runs WHERE episode_id = ? ORDER BY started_at ASC
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("store: list runs for episode: %w", err)
	}
	defer rows.Close()
	var runs []PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
