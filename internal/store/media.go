package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const mediaAssetColumns = `
	id, episode_id, chapter_id, asset_type, file_path, mime_type, size_bytes,
	duration_seconds, metadata, prompt_version_id, created_at
`

func scanMediaAsset(scanner interface{ Scan(dest ...any) error }) (MediaAsset, error) {
	var m MediaAsset
	var duration sql.NullFloat64
	var promptVersionID sql.NullInt64
	var createdAt string
	err := scanner.Scan(
		&m.ID, &m.EpisodeID, &m.ChapterID, &m.AssetType, &m.FilePath, &m.MimeType, &m.SizeBytes,
		&duration, &m.Metadata, &promptVersionID, &createdAt,
	)
	if err != nil {
		return MediaAsset{}, err
	}
	m.DurationSeconds = float64Ptr(duration)
	m.PromptVersionID = int64Ptr(promptVersionID)
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return MediaAsset{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	return m, nil
}

// CreateMediaAsset inserts one MediaAsset row.
func (s *Store) CreateMediaAsset(ctx context.Context, m MediaAsset) (MediaAsset, error) {
	now := formatTime(nowUTC())
	metadata := m.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO media_assets (episode_id, chapter_id, asset_type, file_path, mime_type, size_bytes,
			duration_seconds, metadata, prompt_version_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.EpisodeID, m.ChapterID, m.AssetType, m.FilePath, m.MimeType, m.SizeBytes,
		nullableFloat64(m.DurationSeconds), metadata, nullableInt64(m.PromptVersionID), now)
	if err != nil {
		return MediaAsset{}, fmt.Errorf("store: create media asset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MediaAsset{}, fmt.Errorf("store: create media asset: last insert id: %w", err)
	}
	return s.GetMediaAsset(ctx, id)
}

// GetMediaAsset returns the asset by id, or ErrNotFound.
func (s *Store) GetMediaAsset(ctx context.Context, id int64) (MediaAsset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaAssetColumns+` FROM media_assets WHERE id = ?`, id)
	m, err := scanMediaAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaAsset{}, ErrNotFound
	}
	if err != nil {
		return MediaAsset{}, fmt.Errorf("store: get media asset: %w", err)
	}
	return m, nil
}

// ListMediaAssetsForEpisode returns every asset row for an episode, ordered
// by created_at ascending, optionally filtered to a single chapter.
func (s *Store) ListMediaAssetsForEpisode(ctx context.Context, episodeID, chapterID string) ([]MediaAsset, error) {
	query := `SELECT ` + mediaAssetColumns + ` FROM media_assets WHERE episode_id = ?`
	args := []any{episodeID}
	if chapterID != "" {
		query += ` AND chapter_id = ?`
		args = append(args, chapterID)
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list media assets for episode: %w", err)
	}
	defer rows.Close()
	var assets []MediaAsset
	for rows.Next() {
		m, err := scanMediaAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan media asset: %w", err)
		}
		assets = append(assets, m)
	}
	return assets, rows.Err()
}
