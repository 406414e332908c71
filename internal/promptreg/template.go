package promptreg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dubforge/internal/fileutil"
)

// Metadata is a prompt template's frontmatter.
type Metadata struct {
	Name        string         `yaml:"name"`
	Model       string         `yaml:"model"`
	ModelParams map[string]any `yaml:"model_params"`
	Notes       string         `yaml:"notes"`
}

const frontmatterDelim = "---"

// Template is a parsed prompt template: its frontmatter metadata and the
// prompt body that follows it.
type Template struct {
	Metadata Metadata
	Body     string
}

// LoadTemplate reads and parses the prompt template at path. The file must
// open with a "---" delimited YAML frontmatter block followed by the
// prompt body.
func LoadTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("promptreg: read template %s: %w", path, err)
	}
	return ParseTemplate(data)
}

// ParseTemplate parses raw template bytes into a Template.
func ParseTemplate(data []byte) (Template, error) {
	text := string(data)
	if !strings.HasPrefix(strings.TrimLeft(text, "\n"), frontmatterDelim) {
		return Template{}, fmt.Errorf("promptreg: template missing frontmatter delimiter %q", frontmatterDelim)
	}
	text = strings.TrimLeft(text, "\n")
	rest := strings.TrimPrefix(text, frontmatterDelim)
	idx := strings.Index(rest, "\n"+frontmatterDelim)
	if idx == -1 {
		return Template{}, fmt.Errorf("promptreg: template frontmatter not closed")
	}
	frontmatter := rest[:idx]
	body := rest[idx+len("\n"+frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")

	var meta Metadata
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return Template{}, fmt.Errorf("promptreg: parse frontmatter: %w", err)
	}
	if meta.Name == "" {
		return Template{}, fmt.Errorf("promptreg: template frontmatter missing name")
	}
	return Template{Metadata: meta, Body: body}, nil
}

// FeedbackPlaceholder is the named token a prompt body may include to
// receive reviewer feedback injected from a CHANGES_REQUESTED decision.
const FeedbackPlaceholder = "{{REVIEWER_FEEDBACK}}"

// Render substitutes feedback into body's FeedbackPlaceholder, so a
// stage re-run after a request-changes decision carries the reviewer's
// notes into its next prompt. If body has no placeholder, feedback is
// appended as a trailing section instead of silently dropped. An empty
// feedback string clears the placeholder to empty, leaving the template
// otherwise unchanged.
func Render(body, feedback string) string {
	if strings.Contains(body, FeedbackPlaceholder) {
		return strings.ReplaceAll(body, FeedbackPlaceholder, feedback)
	}
	if feedback == "" {
		return body
	}
	return strings.TrimRight(body, "\n") + "\n\nReviewer feedback from the previous attempt:\n" + feedback + "\n"
}

// ContentHash returns the deterministic hash of a template's body, the
// basis for register_version's dedup-by-content check. Two templates with
// identical bodies hash identically regardless of frontmatter notes.
func ContentHash(body string) string {
	return fileutil.HashBytes([]byte(body))
}

// modelParamsJSON renders ModelParams as a deterministic JSON string for
// storage, or "" if empty.
func modelParamsJSON(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return "", fmt.Errorf("promptreg: encode model params: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
