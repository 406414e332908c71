package pipelineerr

import (
	"errors"
	"fmt"
	"strings"

	"dubforge/internal/store"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	// ErrContentPolicy marks a driver refusal on policy/content grounds. It is
	// fatal for the stage and never auto-retried.
	ErrContentPolicy = errors.New("content policy error")
	// ErrCostLimit marks a pre-flight or post-stage cost breach of
	// max_episode_cost_usd. The executor turns this into episode COST_LIMIT.
	ErrCostLimit = errors.New("cost limit exceeded")
)

// ErrorKind captures the taxonomy of pipeline errors.
type ErrorKind string

const (
	ErrorKindExternal      ErrorKind = "external"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindContentPolicy ErrorKind = "content_policy"
	ErrorKindCostLimit     ErrorKind = "cost_limit"
)

// StageError provides structured error context for stage and executor
// failures.
type StageError struct {
	Marker     error
	Kind       ErrorKind
	Stage      string
	Operation  string
	Message    string
	Code       string
	Hint       string
	DetailPath string
	Cause      error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if detail == "" {
		detail = "stage failure"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", detail, e.Cause)
	}
	return detail
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *StageError) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if e.Marker != nil && errors.Is(e.Marker, target) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// ErrorDetails exposes a snapshot of a StageError for structured logging.
type ErrorDetails struct {
	Kind       ErrorKind
	Stage      string
	Operation  string
	Message    string
	Code       string
	Hint       string
	DetailPath string
	Cause      error
}

// Details extracts structured error information when available.
func Details(err error) ErrorDetails {
	var stageErr *StageError
	if errors.As(err, &stageErr) && stageErr != nil {
		return ErrorDetails{
			Kind:       stageErr.Kind,
			Stage:      stageErr.Stage,
			Operation:  stageErr.Operation,
			Message:    strings.TrimSpace(stageErr.Message),
			Code:       strings.TrimSpace(stageErr.Code),
			Hint:       strings.TrimSpace(stageErr.Hint),
			DetailPath: strings.TrimSpace(stageErr.DetailPath),
			Cause:      stageErr.Cause,
		}
	}
	return ErrorDetails{
		Kind:    ErrorKindTransient,
		Message: strings.TrimSpace(errorMessage(err)),
		Cause:   err,
	}
}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	return wrapWithOptions(marker, stage, operation, message, err)
}

// WrapDetail attaches a detail path to the resulting error.
func WrapDetail(marker error, stage, operation, message string, err error, detailPath string) error {
	return wrapWithOptions(marker, stage, operation, message, err, WithDetailPath(detailPath))
}

// WrapHint attaches a stable error code and hint to the resulting error.
func WrapHint(marker error, stage, operation, message, code, hint string, err error) error {
	return wrapWithOptions(marker, stage, operation, message, err, WithCode(code), WithHint(hint))
}

type wrapOption func(*StageError)

func WithDetailPath(path string) wrapOption {
	return func(err *StageError) {
		if err != nil {
			err.DetailPath = strings.TrimSpace(path)
		}
	}
}

func WithCode(code string) wrapOption {
	return func(err *StageError) {
		if err != nil {
			err.Code = strings.TrimSpace(code)
		}
	}
}

func WithHint(hint string) wrapOption {
	return func(err *StageError) {
		if err != nil {
			err.Hint = strings.TrimSpace(hint)
		}
	}
}

func wrapWithOptions(marker error, stage, operation, message string, err error, opts ...wrapOption) error {
	if marker == nil {
		marker = ErrTransient
	}
	kind, code := classifyMarker(marker)
	stageErr := &StageError{
		Marker:    marker,
		Kind:      kind,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Code:      code,
		Cause:     err,
	}
	if err != nil {
		var nested *StageError
		if errors.As(err, &nested) && nested != nil {
			if strings.TrimSpace(stageErr.DetailPath) == "" {
				stageErr.DetailPath = nested.DetailPath
			}
			if strings.TrimSpace(stageErr.Code) == "" {
				stageErr.Code = nested.Code
			}
			if strings.TrimSpace(stageErr.Hint) == "" {
				stageErr.Hint = nested.Hint
			}
		}
	}
	for _, opt := range opts {
		opt(stageErr)
	}
	if stageErr.Hint == "" && stageErr.DetailPath != "" {
		stageErr.Hint = "see error_detail_path for tool output"
	}
	return stageErr
}

// FailureStatus maps a stage error to the episode status the executor
// should persist after the stage fails. Cost-limit breaches route to
// COST_LIMIT; everything else is a hard FAILED (input/validation errors do
// not get a distinct "review" status here — the review gates are explicit
// stages in the stage graph, not an error-routing side effect).
func FailureStatus(err error) store.Status {
	if errors.Is(err, ErrCostLimit) {
		return store.StatusCostLimit
	}
	return store.StatusFailed
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}

func classifyMarker(marker error) (ErrorKind, string) {
	switch {
	case errors.Is(marker, ErrExternalTool):
		return ErrorKindExternal, "E_EXTERNAL"
	case errors.Is(marker, ErrValidation):
		return ErrorKindValidation, "E_VALIDATION"
	case errors.Is(marker, ErrConfiguration):
		return ErrorKindConfiguration, "E_CONFIGURATION"
	case errors.Is(marker, ErrNotFound):
		return ErrorKindNotFound, "E_NOT_FOUND"
	case errors.Is(marker, ErrTimeout):
		return ErrorKindTimeout, "E_TIMEOUT"
	case errors.Is(marker, ErrContentPolicy):
		return ErrorKindContentPolicy, "E_CONTENT_POLICY"
	case errors.Is(marker, ErrCostLimit):
		return ErrorKindCostLimit, "E_COST_LIMIT"
	case errors.Is(marker, ErrTransient):
		return ErrorKindTransient, "E_TRANSIENT"
	default:
		return ErrorKindTransient, "E_TRANSIENT"
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
