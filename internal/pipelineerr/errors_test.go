package pipelineerr_test

import (
	"errors"
	"strings"
	"testing"

	"dubforge/internal/pipelineerr"
	"dubforge/internal/store"
)

func TestWrapAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := pipelineerr.Wrap(pipelineerr.ErrExternalTool, "render", "encode_segment", "ffmpeg failed", base)
	var stageErr *pipelineerr.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T", err)
	}
	if stageErr.Kind != pipelineerr.ErrorKindExternal {
		t.Fatalf("unexpected kind %q", stageErr.Kind)
	}
	if pipelineerr.FailureStatus(err) != store.StatusFailed {
		t.Fatalf("expected FAILED, got %s", pipelineerr.FailureStatus(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to match wrapped error")
	}
	if got := err.Error(); !strings.Contains(got, "render") || !strings.Contains(got, "boom") {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestCostLimitMapsToCostLimitStatus(t *testing.T) {
	err := pipelineerr.Wrap(pipelineerr.ErrCostLimit, "imagegen", "cost_guard", "budget exceeded", nil)
	if pipelineerr.FailureStatus(err) != store.StatusCostLimit {
		t.Fatalf("expected COST_LIMIT, got %s", pipelineerr.FailureStatus(err))
	}
}

func TestDetailsExtractsStageError(t *testing.T) {
	err := pipelineerr.WrapHint(pipelineerr.ErrValidation, "chapterize", "parse", "bad json", "E_SCHEMA", "fix the template", nil)
	details := pipelineerr.Details(err)
	if details.Stage != "chapterize" || details.Hint != "fix the template" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestContentPolicyIsTerminal(t *testing.T) {
	err := pipelineerr.Wrap(pipelineerr.ErrContentPolicy, "imagegen", "generate", "refused", nil)
	if !errors.Is(err, pipelineerr.ErrContentPolicy) {
		t.Fatal("expected errors.Is to match ErrContentPolicy")
	}
	if pipelineerr.Details(err).Kind != pipelineerr.ErrorKindContentPolicy {
		t.Fatalf("unexpected kind: %v", pipelineerr.Details(err).Kind)
	}
}
