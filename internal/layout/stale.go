package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dubforge/internal/fileutil"
)

// StaleMarkerRecord is the small JSON body written into a .stale sibling
// file: {invalidated_at, invalidated_by, reason}.
type StaleMarkerRecord struct {
	InvalidatedAt time.Time `json:"invalidated_at"`
	InvalidatedBy string    `json:"invalidated_by"`
	Reason        string    `json:"reason"`
}

// WriteStaleMarker writes the .stale sibling of outputFile, marking it
// invalidated by the named stage.
func WriteStaleMarker(outputFile, invalidatedBy, reason string, at time.Time) error {
	record := StaleMarkerRecord{InvalidatedAt: at.UTC(), InvalidatedBy: invalidatedBy, Reason: reason}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("layout: marshal stale marker: %w", err)
	}
	return fileutil.WriteFileAtomic(StaleMarker(outputFile), data, 0o644)
}

// IsStale reports whether outputFile has a .stale sibling.
func IsStale(outputFile string) bool {
	_, err := os.Stat(StaleMarker(outputFile))
	return err == nil
}

// ReadStaleMarker reads and parses the .stale sibling of outputFile, if any.
func ReadStaleMarker(outputFile string) (*StaleMarkerRecord, error) {
	data, err := os.ReadFile(StaleMarker(outputFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("layout: read stale marker: %w", err)
	}
	var record StaleMarkerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("layout: parse stale marker: %w", err)
	}
	return &record, nil
}

// ClearStaleMarker removes the .stale sibling of outputFile, if present.
// Re-running the producing stage clears the marker it invalidated.
func ClearStaleMarker(outputFile string) error {
	err := os.Remove(StaleMarker(outputFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("layout: clear stale marker: %w", err)
	}
	return nil
}

// Exists reports whether path exists and is a regular readable entry.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
