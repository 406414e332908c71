package pipeline_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/cascade"
	"dubforge/internal/clock"
	"dubforge/internal/layout"
	"dubforge/internal/pipeline"
	"dubforge/internal/promptreg"
	"dubforge/internal/review"
	"dubforge/internal/store"
	"dubforge/internal/testsupport"
)

// newPipelineDeps wires a fresh store, layout, and cascade engine rooted at
// a per-test temp directory, matching what cmd/dubforge/app.go assembles in
// production.
func newPipelineDeps(t *testing.T) (pipeline.Deps, layout.Layout) {
	t.Helper()
	st := testsupport.MustOpenStore(t)
	lay := layout.New(t.TempDir())
	eng := cascade.New(lay)
	deps := pipeline.Deps{
		Store:   st,
		Layout:  lay,
		Cascade: eng,
		Clock:   clock.New(),
	}
	return deps, lay
}

func newReviewer(st *store.Store, eng cascade.Engine) review.Coordinator {
	return review.New(st, eng, clock.New())
}

// seedSpend records a finished, successful run against episodeID so
// Store.EpisodeCostUSD reports costUSD already spent, exercising the cost
// guard the way an episode with real prior runs would.
func seedSpend(t *testing.T, ctx context.Context, deps pipeline.Deps, episodeID string, costUSD float64) {
	t.Helper()
	run, err := deps.Store.StartRun(ctx, "seed-"+episodeID, episodeID, "seed")
	require.NoError(t, err)
	require.NoError(t, deps.Store.FinishRunSuccess(ctx, run.ID, 0, 0, costUSD))
}

// writePromptTemplate writes a minimal frontmatter-delimited template file
// and returns its path.
func writePromptTemplate(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".md")
	content := "---\nname: " + name + "\nmodel: test-model\n---\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// registerDefaultPrompt loads and registers path as the default version of
// its prompt name.
func registerDefaultPrompt(t *testing.T, ctx context.Context, prompts promptreg.Registry, path string) store.PromptVersion {
	t.Helper()
	v, err := prompts.RegisterVersion(ctx, path, true)
	require.NoError(t, err)
	return v
}

// fakeLLMServer starts an LLM chat-completion stub server that echoes
// responseText as the sole choice's message content.
func fakeLLMServer(t *testing.T, responseText string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": responseText},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

// fakeLLMServerCapturingSystem behaves like fakeLLMServer but also records
// the system message of the most recent request into captured, so a test
// can assert reviewer feedback was actually injected into the next prompt.
func fakeLLMServerCapturingSystem(t *testing.T, responseText string, captured *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			if m.Role == "system" {
				*captured = m.Content
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": responseText},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
	t.Cleanup(server.Close)
	return server
}
