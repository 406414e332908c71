package pipeline

import "encoding/json"

// decodeModelParams parses a PromptVersion.ModelParams JSON blob back into
// the map shape the LLM driver's Call expects, tolerating the empty string
// stored for prompts that set no overrides.
func decodeModelParams(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil
	}
	return params
}
