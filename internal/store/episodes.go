package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const episodeColumns = `
	id, status, pipeline_version, error_message, source_uri, youtube_video_id,
	published_at_youtube, review_status, progress_message, last_heartbeat,
	created_at, updated_at
`

func scanEpisode(scanner interface {
	Scan(dest ...any) error
}) (Episode, error) {
	var e Episode
	var published, heartbeat sql.NullString
	var createdAt, updatedAt string
	err := scanner.Scan(
		&e.ID, &e.Status, &e.PipelineVersion, &e.ErrorMessage, &e.SourceURI, &e.YouTubeVideoID,
		&published, &e.ReviewStatus, &e.ProgressMessage, &heartbeat,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return Episode{}, err
	}
	if e.PublishedAtYouTube, err = parseTimePtr(published); err != nil {
		return Episode{}, fmt.Errorf("store: parse published_at_youtube: %w", err)
	}
	if e.LastHeartbeat, err = parseTimePtr(heartbeat); err != nil {
		return Episode{}, fmt.Errorf("store: parse last_heartbeat: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return Episode{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Episode{}, fmt.Errorf("store: parse updated_at: %w", err)
	}
	return e, nil
}

// CreateEpisode inserts a new episode at status NEW. pipeline_version is
// immutable after creation.
func (s *Store) CreateEpisode(ctx context.Context, id string, pipelineVersion int) (Episode, error) {
	if id == "" {
		return Episode{}, fmt.Errorf("store: create episode: id required")
	}
	now := formatTime(nowUTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, status, pipeline_version, error_message, source_uri, youtube_video_id,
			published_at_youtube, review_status, progress_message, last_heartbeat, created_at, updated_at)
		VALUES (?, ?, ?, '', '', '', NULL, '', '', NULL, ?, ?)
	`, id, StatusNew, pipelineVersion, now, now)
	if err != nil {
		return Episode{}, fmt.Errorf("store: create episode: %w", err)
	}
	return s.GetEpisode(ctx, id)
}

// SetEpisodeSourceURI records where the download stage should fetch the raw
// episode file from. Set once by the external discovery step that creates
// the episode; the download stage treats it as read-only.
func (s *Store) SetEpisodeSourceURI(ctx context.Context, id, sourceURI string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET source_uri = ?, updated_at = ? WHERE id = ?
	`, sourceURI, formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("store: set episode source uri: %w", err)
	}
	return nil
}

// GetEpisode returns the episode by id, or ErrNotFound.
func (s *Store) GetEpisode(ctx context.Context, id string) (Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	e, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Episode{}, ErrNotFound
	}
	if err != nil {
		return Episode{}, fmt.Errorf("store: get episode: %w", err)
	}
	return e, nil
}

// ListEpisodesByStatus returns all episodes at any of the given statuses,
// ordered by updated_at ascending (oldest first).
func (s *Store) ListEpisodesByStatus(ctx context.Context, statuses []Status) ([]Episode, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]any, len(statuses))
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE status IN (`
	for i, st := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		placeholders[i] = st
	}
	query += `) ORDER BY updated_at ASC`
	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("store: list episodes by status: %w", err)
	}
	defer rows.Close()
	var episodes []Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan episode: %w", err)
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// SetEpisodeStatus advances (or, for the review coordinator, reverts) an
// episode's status. Callers are responsible for enforcing the monotonicity
// invariant; this method is a plain write.
func (s *Store) SetEpisodeStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET status = ?, updated_at = ? WHERE id = ?
	`, status, formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("store: set episode status: %w", err)
	}
	return checkRowsAffected(res, "set episode status")
}

// SetEpisodeError records a failure message on the episode without
// transitioning status (the caller sets status separately, e.g. to FAILED
// or COST_LIMIT).
func (s *Store) SetEpisodeError(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET error_message = ?, updated_at = ? WHERE id = ?
	`, message, formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("store: set episode error: %w", err)
	}
	return nil
}

// ClearEpisodeError resets error_message, typically after a successful
// stage run following a prior failure.
func (s *Store) ClearEpisodeError(ctx context.Context, id string) error {
	return s.SetEpisodeError(ctx, id, "")
}

// SetEpisodeReviewStatus updates the advisory review_status tag.
func (s *Store) SetEpisodeReviewStatus(ctx context.Context, id, reviewStatus string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET review_status = ?, updated_at = ? WHERE id = ?
	`, reviewStatus, formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("store: set episode review status: %w", err)
	}
	return nil
}

// SetEpisodeProgress updates the liveness observability fields: a free-text
// progress message and the heartbeat timestamp. This never affects the
// authoritative status transition.
func (s *Store) SetEpisodeProgress(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET progress_message = ?, last_heartbeat = ?, updated_at = ? WHERE id = ?
	`, message, formatTime(nowUTC()), formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("store: set episode progress: %w", err)
	}
	return nil
}

// SetEpisodePublished records the terminal publish outcome in one write:
// youtube_video_id, published_at_youtube, and status=PUBLISHED.
func (s *Store) SetEpisodePublished(ctx context.Context, id, youtubeVideoID string) error {
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET status = ?, youtube_video_id = ?, published_at_youtube = ?, updated_at = ?
		WHERE id = ?
	`, StatusPublished, youtubeVideoID, formatTime(now), formatTime(now), id)
	if err != nil {
		return fmt.Errorf("store: set episode published: %w", err)
	}
	return nil
}

func checkRowsAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
