package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const reviewTaskColumns = `
	id, episode_id, stage, status, artifact_paths, diff_path, artifact_hash,
	reviewer_notes, prompt_version_id, created_by, created_at, reviewed_at
`

func scanReviewTask(scanner interface{ Scan(dest ...any) error }) (ReviewTask, error) {
	var t ReviewTask
	var artifactPaths string
	var promptVersionID sql.NullInt64
	var createdAt string
	var reviewedAt sql.NullString
	err := scanner.Scan(
		&t.ID, &t.EpisodeID, &t.Stage, &t.Status, &artifactPaths, &t.DiffPath, &t.ArtifactHash,
		&t.ReviewerNotes, &promptVersionID, &t.CreatedBy, &createdAt, &reviewedAt,
	)
	if err != nil {
		return ReviewTask{}, err
	}
	if artifactPaths != "" {
		if err := json.Unmarshal([]byte(artifactPaths), &t.ArtifactPaths); err != nil {
			return ReviewTask{}, fmt.Errorf("store: parse artifact_paths: %w", err)
		}
	}
	t.PromptVersionID = int64Ptr(promptVersionID)
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return ReviewTask{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	if t.ReviewedAt, err = parseTimePtr(reviewedAt); err != nil {
		return ReviewTask{}, fmt.Errorf("store: parse reviewed_at: %w", err)
	}
	return t, nil
}

// CreateReviewTask inserts a new ReviewTask at PENDING, enforcing the
// at-most-one-active-task-per-episode invariant within the same
// transaction. Returns ErrConflict if an active task already exists for the
// episode.
func (s *Store) CreateReviewTask(ctx context.Context, t ReviewTask) (ReviewTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReviewTask{}, fmt.Errorf("store: create review task: begin tx: %w", err)
	}
	defer tx.Rollback()

	active, err := activeTaskTx(ctx, tx, t.EpisodeID)
	if err != nil {
		return ReviewTask{}, err
	}
	if active != nil {
		return ReviewTask{}, ErrConflict
	}

	paths, err := json.Marshal(t.ArtifactPaths)
	if err != nil {
		return ReviewTask{}, fmt.Errorf("store: create review task: encode artifact_paths: %w", err)
	}
	now := formatTime(nowUTC())
	status := t.Status
	if status == "" {
		status = ReviewPending
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO review_tasks (episode_id, stage, status, artifact_paths, diff_path, artifact_hash,
			reviewer_notes, prompt_version_id, created_by, created_at, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, t.EpisodeID, t.Stage, status, string(paths), t.DiffPath, t.ArtifactHash,
		t.ReviewerNotes, nullableInt64(t.PromptVersionID), t.CreatedBy, now)
	if err != nil {
		return ReviewTask{}, fmt.Errorf("store: create review task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ReviewTask{}, fmt.Errorf("store: create review task: last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ReviewTask{}, fmt.Errorf("store: create review task: commit: %w", err)
	}
	return s.GetReviewTask(ctx, id)
}

func activeTaskTx(ctx context.Context, tx *sql.Tx, episodeID string) (*ReviewTask, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+reviewTaskColumns+` FROM review_tasks
		WHERE episode_id = ? AND status IN (?, ?)
		LIMIT 1
	`, episodeID, ReviewPending, ReviewInReview)
	t, err := scanReviewTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: active review task: %w", err)
	}
	return &t, nil
}

// GetReviewTask returns the task by id, or ErrNotFound.
func (s *Store) GetReviewTask(ctx context.Context, id int64) (ReviewTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reviewTaskColumns+` FROM review_tasks WHERE id = ?`, id)
	t, err := scanReviewTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReviewTask{}, ErrNotFound
	}
	if err != nil {
		return ReviewTask{}, fmt.Errorf("store: get review task: %w", err)
	}
	return t, nil
}

// ActiveReviewTask returns the PENDING|IN_REVIEW task for the episode, if
// any. Scoped per episode, not per stage: an episode has at most one active
// task regardless of which gate it is for.
func (s *Store) ActiveReviewTask(ctx context.Context, episodeID string) (*ReviewTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reviewTaskColumns+` FROM review_tasks
		WHERE episode_id = ? AND status IN (?, ?)
		LIMIT 1
	`, episodeID, ReviewPending, ReviewInReview)
	t, err := scanReviewTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: active review task: %w", err)
	}
	return &t, nil
}

// ListActiveReviewTasks returns every PENDING|IN_REVIEW task across all
// episodes, newest first. Used by the CLI's review list command.
func (s *Store) ListActiveReviewTasks(ctx context.Context) ([]ReviewTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reviewTaskColumns+` FROM review_tasks
		WHERE status IN (?, ?)
		ORDER BY created_at DESC, id DESC
	`, ReviewPending, ReviewInReview)
	if err != nil {
		return nil, fmt.Errorf("store: list active review tasks: %w", err)
	}
	defer rows.Close()

	var tasks []ReviewTask
	for rows.Next() {
		t, err := scanReviewTask(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan active review task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list active review tasks: %w", err)
	}
	return tasks, nil
}

// LatestApprovedTaskForStage returns the most recent APPROVED task for
// (episodeID, stage), or ErrNotFound. Used by the review coordinator to
// decide whether a gate has already cleared.
func (s *Store) LatestApprovedTaskForStage(ctx context.Context, episodeID, stage string) (ReviewTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reviewTaskColumns+` FROM review_tasks
		WHERE episode_id = ? AND stage = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, episodeID, stage, ReviewApproved)
	t, err := scanReviewTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReviewTask{}, ErrNotFound
	}
	if err != nil {
		return ReviewTask{}, fmt.Errorf("store: latest approved task: %w", err)
	}
	return t, nil
}

// LatestChangesRequestedForStage returns the most recent CHANGES_REQUESTED
// task for (episodeID, stage), or ErrNotFound. The producing stage module
// consults this to inject reviewer feedback into its prompt on re-run.
func (s *Store) LatestChangesRequestedForStage(ctx context.Context, episodeID, stage string) (ReviewTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reviewTaskColumns+` FROM review_tasks
		WHERE episode_id = ? AND stage = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, episodeID, stage, ReviewChangesRequested)
	t, err := scanReviewTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReviewTask{}, ErrNotFound
	}
	if err != nil {
		return ReviewTask{}, fmt.Errorf("store: latest changes requested: %w", err)
	}
	return t, nil
}

// UpdateReviewTaskStatus transitions a task to a terminal status (APPROVED,
// REJECTED, CHANGES_REQUESTED), stamping reviewed_at and reviewer_notes and
// optionally refreshing artifact_hash. Returns ErrConflict if the task is
// already decided (not PENDING/IN_REVIEW) — decisions are terminal.
func (s *Store) UpdateReviewTaskStatus(ctx context.Context, id int64, status ReviewTaskStatus, notes, artifactHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: update review task status: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current ReviewTaskStatus
	if err := tx.QueryRowContext(ctx, `SELECT status FROM review_tasks WHERE id = ?`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: update review task status: lookup: %w", err)
	}
	if !IsActiveReviewStatus(current) {
		return ErrConflict
	}

	now := formatTime(nowUTC())
	_, err = tx.ExecContext(ctx, `
		UPDATE review_tasks
		SET status = ?, reviewer_notes = ?, artifact_hash = COALESCE(NULLIF(?, ''), artifact_hash), reviewed_at = ?
		WHERE id = ?
	`, status, notes, artifactHash, now, id)
	if err != nil {
		return fmt.Errorf("store: update review task status: %w", err)
	}
	return tx.Commit()
}

// MarkTaskInReview transitions a PENDING task to IN_REVIEW.
func (s *Store) MarkTaskInReview(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE review_tasks SET status = ? WHERE id = ? AND status = ?
	`, ReviewInReview, id, ReviewPending)
	if err != nil {
		return fmt.Errorf("store: mark task in review: %w", err)
	}
	return checkRowsAffected(res, "mark task in review")
}

// AppendReviewDecision inserts an append-only ReviewDecision record.
func (s *Store) AppendReviewDecision(ctx context.Context, d ReviewDecision) (ReviewDecision, error) {
	now := formatTime(nowUTC())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO review_decisions (review_task_id, decision, notes, decided_by, decided_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.ReviewTaskID, d.Decision, d.Notes, d.DecidedBy, now)
	if err != nil {
		return ReviewDecision{}, fmt.Errorf("store: append review decision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ReviewDecision{}, fmt.Errorf("store: append review decision: last insert id: %w", err)
	}
	return s.GetReviewDecision(ctx, id)
}

// GetReviewDecision returns the decision by id, or ErrNotFound.
func (s *Store) GetReviewDecision(ctx context.Context, id int64) (ReviewDecision, error) {
	var d ReviewDecision
	var decidedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, review_task_id, decision, notes, decided_by, decided_at FROM review_decisions WHERE id = ?
	`, id).Scan(&d.ID, &d.ReviewTaskID, &d.Decision, &d.Notes, &d.DecidedBy, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ReviewDecision{}, ErrNotFound
	}
	if err != nil {
		return ReviewDecision{}, fmt.Errorf("store: get review decision: %w", err)
	}
	if d.DecidedAt, err = parseTime(decidedAt); err != nil {
		return ReviewDecision{}, fmt.Errorf("store: parse decided_at: %w", err)
	}
	return d, nil
}

// ListDecisionsForTask returns every decision for a task ordered by
// decided_at ascending.
func (s *Store) ListDecisionsForTask(ctx context.Context, taskID int64) ([]ReviewDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, review_task_id, decision, notes, decided_by, decided_at
		FROM review_decisions WHERE review_task_id = ? ORDER BY decided_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list decisions for task: %w", err)
	}
	defer rows.Close()
	var decisions []ReviewDecision
	for rows.Next() {
		var d ReviewDecision
		var decidedAt string
		if err := rows.Scan(&d.ID, &d.ReviewTaskID, &d.Decision, &d.Notes, &d.DecidedBy, &decidedAt); err != nil {
			return nil, fmt.Errorf("store: scan review decision: %w", err)
		}
		if d.DecidedAt, err = parseTime(decidedAt); err != nil {
			return nil, fmt.Errorf("store: parse decided_at: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
