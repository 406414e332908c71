package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const promptVersionColumns = `
	id, name, version, content_hash, template_path, model, model_params,
	is_default, created_at, notes
`

func scanPromptVersion(scanner interface{ Scan(dest ...any) error }) (PromptVersion, error) {
	var p PromptVersion
	var isDefault int
	var createdAt string
	err := scanner.Scan(
		&p.ID, &p.Name, &p.Version, &p.ContentHash, &p.TemplatePath, &p.Model, &p.ModelParams,
		&isDefault, &createdAt, &p.Notes,
	)
	if err != nil {
		return PromptVersion{}, err
	}
	p.IsDefault = isDefault != 0
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return PromptVersion{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	return p, nil
}

// FindPromptVersionByHash returns the (name, content_hash) version if it
// already exists, for register_version's dedup check.
func (s *Store) FindPromptVersionByHash(ctx context.Context, name, contentHash string) (PromptVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+promptVersionColumns+` FROM prompt_versions WHERE name = ? AND content_hash = ?
	`, name, contentHash)
	p, err := scanPromptVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PromptVersion{}, ErrNotFound
	}
	if err != nil {
		return PromptVersion{}, fmt.Errorf("store: find prompt version by hash: %w", err)
	}
	return p, nil
}

// MaxPromptVersion returns the highest version number recorded for name, or
// 0 if none exist.
func (s *Store) MaxPromptVersion(ctx context.Context, name string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM prompt_versions WHERE name = ?`, name).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: max prompt version: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

// CreatePromptVersion inserts a new immutable prompt version row. If
// setDefault is true, the previous default for the same name is demoted in
// the same transaction.
func (s *Store) CreatePromptVersion(ctx context.Context, p PromptVersion, setDefault bool) (PromptVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PromptVersion{}, fmt.Errorf("store: create prompt version: begin tx: %w", err)
	}
	defer tx.Rollback()

	if setDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE prompt_versions SET is_default = 0 WHERE name = ?`, p.Name); err != nil {
			return PromptVersion{}, fmt.Errorf("store: create prompt version: demote default: %w", err)
		}
	}

	isDefault := 0
	if setDefault {
		isDefault = 1
	}
	now := formatTime(nowUTC())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO prompt_versions (name, version, content_hash, template_path, model, model_params,
			is_default, created_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.Version, p.ContentHash, p.TemplatePath, p.Model, p.ModelParams, isDefault, now, p.Notes)
	if err != nil {
		return PromptVersion{}, fmt.Errorf("store: create prompt version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PromptVersion{}, fmt.Errorf("store: create prompt version: last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return PromptVersion{}, fmt.Errorf("store: create prompt version: commit: %w", err)
	}
	return s.GetPromptVersion(ctx, id)
}

// GetPromptVersion returns the prompt version by id, or ErrNotFound.
func (s *Store) GetPromptVersion(ctx context.Context, id int64) (PromptVersion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptVersionColumns+` FROM prompt_versions WHERE id = ?`, id)
	p, err := scanPromptVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PromptVersion{}, ErrNotFound
	}
	if err != nil {
		return PromptVersion{}, fmt.Errorf("store: get prompt version: %w", err)
	}
	return p, nil
}

// GetDefaultPromptVersion returns the version currently flagged is_default
// for name, or ErrNotFound if none is promoted.
func (s *Store) GetDefaultPromptVersion(ctx context.Context, name string) (PromptVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+promptVersionColumns+` FROM prompt_versions WHERE name = ? AND is_default = 1
	`, name)
	p, err := scanPromptVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PromptVersion{}, ErrNotFound
	}
	if err != nil {
		return PromptVersion{}, fmt.Errorf("store: get default prompt version: %w", err)
	}
	return p, nil
}

// PromoteToDefault atomically flips is_default within name to point at id.
func (s *Store) PromoteToDefault(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: promote to default: begin tx: %w", err)
	}
	defer tx.Rollback()

	var name string
	if err := tx.QueryRowContext(ctx, `SELECT name FROM prompt_versions WHERE id = ?`, id).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: promote to default: lookup name: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE prompt_versions SET is_default = 0 WHERE name = ?`, name); err != nil {
		return fmt.Errorf("store: promote to default: demote: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE prompt_versions SET is_default = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: promote to default: promote: %w", err)
	}
	return tx.Commit()
}

// GetPromptHistory returns every version for name ordered by version DESC.
func (s *Store) GetPromptHistory(ctx context.Context, name string) ([]PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+promptVersionColumns+` FROM prompt_versions WHERE name = ? ORDER BY version DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("store: get prompt history: %w", err)
	}
	defer rows.Close()
	var versions []PromptVersion
	for rows.Next() {
		p, err := scanPromptVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan prompt version: %w", err)
		}
		versions = append(versions, p)
	}
	return versions, rows.Err()
}
