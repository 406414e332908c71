package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dubforge/internal/fileutil"
)

// Provenance is the single closed schema recorded once per stage
// invocation. Fields that do not apply to a given stage are left at their
// zero value (omitted from JSON via omitempty) except CostUSD, which is
// always present.
type Provenance struct {
	Stage             string    `json:"stage"`
	EpisodeID         string    `json:"episode_id"`
	Timestamp         time.Time `json:"timestamp"`
	PromptName        string    `json:"prompt_name,omitempty"`
	PromptVersion     int       `json:"prompt_version,omitempty"`
	PromptHash        string    `json:"prompt_hash,omitempty"`
	Model             string    `json:"model,omitempty"`
	ModelParams       string    `json:"model_params,omitempty"`
	InputFiles        []string  `json:"input_files"`
	InputContentHash  string    `json:"input_content_hash"`
	OutputFiles       []string  `json:"output_files"`
	InputTokens       int64     `json:"input_tokens,omitempty"`
	OutputTokens      int64     `json:"output_tokens,omitempty"`
	CostUSD           float64   `json:"cost_usd"`
	DurationSeconds   float64   `json:"duration_seconds"`
	SegmentsProcessed int       `json:"segments_processed,omitempty"`
}

// WriteProvenance writes the single provenance file for a stage invocation,
// atomically.
func (l Layout) WriteProvenance(p Provenance) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("layout: marshal provenance: %w", err)
	}
	return fileutil.WriteFileAtomic(l.ProvenanceFile(p.EpisodeID, p.Stage), data, 0o644)
}

// ReadProvenance reads the provenance file for (episodeID, stage). Returns
// (nil, nil) if no provenance has been written yet for this stage.
func (l Layout) ReadProvenance(episodeID, stage string) (*Provenance, error) {
	data, err := os.ReadFile(l.ProvenanceFile(episodeID, stage))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("layout: read provenance: %w", err)
	}
	var p Provenance
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("layout: parse provenance: %w", err)
	}
	return &p, nil
}
