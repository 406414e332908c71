package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"dubforge/internal/store"
)

// MustOpenStore opens a store.Store backed by a fresh SQLite file under the
// test's temp directory and registers cleanup.
func MustOpenStore(t testing.TB) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dubforge.db")
	s, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewEpisode creates a new episode for tests using the provided store.
func NewEpisode(t testing.TB, s *store.Store, id string, pipelineVersion int) store.Episode {
	t.Helper()

	episode, err := s.CreateEpisode(context.Background(), id, pipelineVersion)
	if err != nil {
		t.Fatalf("store.CreateEpisode: %v", err)
	}
	return episode
}
