package promptreg

import (
	"context"
	"errors"
	"fmt"

	"dubforge/internal/store"
)

// Registry registers and resolves prompt versions against the store.
type Registry struct {
	store *store.Store
}

// New returns a Registry backed by s.
func New(s *store.Store) Registry {
	return Registry{store: s}
}

// RegisterVersion loads the template at path and registers it as a new
// version of its named prompt. If a version with the same (name,
// content_hash) already exists, that existing version is returned
// unchanged rather than creating a duplicate. setDefault promotes the
// resulting version to the default for its name in the same transaction
// that creates it.
func (r Registry) RegisterVersion(ctx context.Context, path string, setDefault bool) (store.PromptVersion, error) {
	tmpl, err := LoadTemplate(path)
	if err != nil {
		return store.PromptVersion{}, err
	}
	hash := ContentHash(tmpl.Body)

	existing, err := r.store.FindPromptVersionByHash(ctx, tmpl.Metadata.Name, hash)
	if err == nil {
		if setDefault && !existing.IsDefault {
			if err := r.store.PromoteToDefault(ctx, existing.ID); err != nil {
				return store.PromptVersion{}, fmt.Errorf("promptreg: promote existing version: %w", err)
			}
			return r.store.GetPromptVersion(ctx, existing.ID)
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.PromptVersion{}, fmt.Errorf("promptreg: lookup existing version: %w", err)
	}

	maxVersion, err := r.store.MaxPromptVersion(ctx, tmpl.Metadata.Name)
	if err != nil {
		return store.PromptVersion{}, fmt.Errorf("promptreg: determine next version: %w", err)
	}
	params, err := modelParamsJSON(tmpl.Metadata.ModelParams)
	if err != nil {
		return store.PromptVersion{}, err
	}

	created, err := r.store.CreatePromptVersion(ctx, store.PromptVersion{
		Name:         tmpl.Metadata.Name,
		Version:      maxVersion + 1,
		ContentHash:  hash,
		TemplatePath: path,
		Model:        tmpl.Metadata.Model,
		ModelParams:  params,
		Notes:        tmpl.Metadata.Notes,
	}, setDefault)
	if err != nil {
		return store.PromptVersion{}, fmt.Errorf("promptreg: create version: %w", err)
	}
	return created, nil
}

// Default returns the current default version for name.
func (r Registry) Default(ctx context.Context, name string) (store.PromptVersion, error) {
	return r.store.GetDefaultPromptVersion(ctx, name)
}

// PromoteToDefault makes versionID the default for its prompt name.
func (r Registry) PromoteToDefault(ctx context.Context, versionID int64) error {
	return r.store.PromoteToDefault(ctx, versionID)
}

// History returns every version registered for name, newest first.
func (r Registry) History(ctx context.Context, name string) ([]store.PromptVersion, error) {
	return r.store.GetPromptHistory(ctx, name)
}
