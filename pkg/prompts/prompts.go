// Package prompts holds the embedded system prompts for the model-backed
// pipeline stages.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.md
var promptFS embed.FS

// Prompts contains the pipeline prompts loaded from embedded files. The
// stage prompts are self-contained: each carries the shared persona from
// SYSTEM.md so callers pass them straight through as system prompts.
type Prompts struct {
	System    string // Shared persona and guardrails
	Interpret string // Structured reading of the question
	SQL       string // SQL generation
	Explain   string // Result narration
}

// Load reads all prompts from the embedded filesystem.
func Load() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.System, err = loadPrompt("SYSTEM.md"); err != nil {
		return nil, fmt.Errorf("failed to load SYSTEM: %w", err)
	}
	if p.Interpret, err = loadPrompt("INTERPRET.md"); err != nil {
		return nil, fmt.Errorf("failed to load INTERPRET: %w", err)
	}
	if p.SQL, err = loadPrompt("SQL.md"); err != nil {
		return nil, fmt.Errorf("failed to load SQL: %w", err)
	}
	if p.Explain, err = loadPrompt("EXPLAIN.md"); err != nil {
		return nil, fmt.Errorf("failed to load EXPLAIN: %w", err)
	}

	p.Interpret = compose(p.System, p.Interpret)
	p.SQL = compose(p.System, p.SQL)
	p.Explain = compose(p.System, p.Explain)

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := promptFS.ReadFile("templates/" + path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func compose(parts ...string) string {
	return strings.Join(parts, "\n\n---\n\n")
}
