package pipelineerr_test

import (
	"context"
	"testing"

	"dubforge/internal/pipelineerr"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = pipelineerr.WithEpisodeID(ctx, "E1")
	ctx = pipelineerr.WithStage(ctx, "correct")
	ctx = pipelineerr.WithRunID(ctx, "run-1")
	ctx = pipelineerr.WithRequestID(ctx, "req-123")

	if id, ok := pipelineerr.EpisodeIDFromContext(ctx); !ok || id != "E1" {
		t.Fatalf("unexpected episode id: %v %v", id, ok)
	}
	if stage, ok := pipelineerr.StageFromContext(ctx); !ok || stage != "correct" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := pipelineerr.RunIDFromContext(ctx); !ok || rid != "run-1" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
	if cid, ok := pipelineerr.RequestIDFromContext(ctx); !ok || cid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", cid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = pipelineerr.WithStage(ctx, "")
	if _, ok := pipelineerr.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
