package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals a model's JSON payload into v, tolerating a
// markdown code fence around the JSON body (some models wrap JSON-mode
// output in ```json ... ``` despite being asked not to).
func DecodeJSON(payload string, v any) error {
	cleaned := stripCodeFence(strings.TrimSpace(payload))
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("llm: decode json payload: %w", err)
	}
	return nil
}

func stripCodeFence(payload string) string {
	if !strings.HasPrefix(payload, "```") {
		return payload
	}
	lines := strings.Split(payload, "\n")
	if len(lines) < 2 {
		return payload
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
