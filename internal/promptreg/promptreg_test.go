package promptreg_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/promptreg"
	"dubforge/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeTemplate(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".md")
	content := "---\nname: " + name + "\nmodel: anthropic/claude-3.5-sonnet\nnotes: v1\n---\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseTemplateExtractsFrontmatterAndBody(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "correct_transcript", "Fix punctuation only.")

	tmpl, err := promptreg.LoadTemplate(path)
	require.NoError(t, err)
	require.Equal(t, "correct_transcript", tmpl.Metadata.Name)
	require.Equal(t, "anthropic/claude-3.5-sonnet", tmpl.Metadata.Model)
	require.Equal(t, "Fix punctuation only.", tmpl.Body)
}

func TestRegisterVersionIsIdempotentByContentHash(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	r := promptreg.New(s)
	dir := t.TempDir()
	path := writeTemplate(t, dir, "correct_transcript", "Fix punctuation only.")

	first, err := r.RegisterVersion(ctx, path, true)
	require.NoError(t, err)
	require.Equal(t, 1, first.Version)
	require.True(t, first.IsDefault)

	second, err := r.RegisterVersion(ctx, path, true)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	history, err := r.History(ctx, "correct_transcript")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestRegisterVersionNewContentBumpsVersionAndPromotes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	r := promptreg.New(s)
	dir := t.TempDir()

	v1 := writeTemplate(t, dir, "correct_transcript", "Fix punctuation only.")
	first, err := r.RegisterVersion(ctx, v1, true)
	require.NoError(t, err)

	v2 := writeTemplate(t, dir, "correct_transcript", "Fix punctuation and casing.")
	second, err := r.RegisterVersion(ctx, v2, true)
	require.NoError(t, err)
	require.Equal(t, 2, second.Version)
	require.True(t, second.IsDefault)

	reloadedFirst, err := s.GetPromptVersion(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, reloadedFirst.IsDefault)

	def, err := r.Default(ctx, "correct_transcript")
	require.NoError(t, err)
	require.Equal(t, second.ID, def.ID)
}
