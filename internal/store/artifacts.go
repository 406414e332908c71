package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const artifactColumns = `
	id, episode_id, artifact_type, file_path, prompt_version_id,
	input_tokens, output_tokens, cost_usd, prompt_hash, created_at
`

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (ContentArtifact, error) {
	var a ContentArtifact
	var promptVersionID sql.NullInt64
	var createdAt string
	err := scanner.Scan(
		&a.ID, &a.EpisodeID, &a.ArtifactType, &a.FilePath, &promptVersionID,
		&a.InputTokens, &a.OutputTokens, &a.CostUSD, &a.PromptHash, &createdAt,
	)
	if err != nil {
		return ContentArtifact{}, err
	}
	a.PromptVersionID = int64Ptr(promptVersionID)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return ContentArtifact{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	return a, nil
}

// CreateArtifact inserts one ContentArtifact row. Stages write exactly one
// per successful run.
func (s *Store) CreateArtifact(ctx context.Context, a ContentArtifact) (ContentArtifact, error) {
	now := formatTime(nowUTC())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO content_artifacts (episode_id, artifact_type, file_path, prompt_version_id,
			input_tokens, output_tokens, cost_usd, prompt_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.EpisodeID, a.ArtifactType, a.FilePath, nullableInt64(a.PromptVersionID),
		a.InputTokens, a.OutputTokens, a.CostUSD, a.PromptHash, now)
	if err != nil {
		return ContentArtifact{}, fmt.Errorf("store: create artifact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ContentArtifact{}, fmt.Errorf("store: create artifact: last insert id: %w", err)
	}
	return s.GetArtifact(ctx, id)
}

// GetArtifact returns the artifact by id, or ErrNotFound.
func (s *Store) GetArtifact(ctx context.Context, id int64) (ContentArtifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM content_artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentArtifact{}, ErrNotFound
	}
	if err != nil {
		return ContentArtifact{}, fmt.Errorf("store: get artifact: %w", err)
	}
	return a, nil
}

// LatestArtifact returns the most recently created artifact of artifactType
// for episodeID, or ErrNotFound.
func (s *Store) LatestArtifact(ctx context.Context, episodeID, artifactType string) (ContentArtifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM content_artifacts
		WHERE episode_id = ? AND artifact_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, episodeID, artifactType)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentArtifact{}, ErrNotFound
	}
	if err != nil {
		return ContentArtifact{}, fmt.Errorf("store: latest artifact: %w", err)
	}
	return a, nil
}

// ListArtifactsForEpisode returns every artifact row for an episode ordered
// by created_at ascending.
func (s *Store) ListArtifactsForEpisode(ctx context.Context, episodeID string) ([]ContentArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+artifactColumns+` FROM content_artifacts WHERE episode_id = ? ORDER BY created_at ASC
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("store: list artifacts for episode: %w", err)
	}
	defer rows.Close()
	var artifacts []ContentArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
