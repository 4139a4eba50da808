// Package knowledge carries the banking domain vocabulary: glossary terms,
// metric definitions with their SQL fragments, reusable SQL patterns, and
// business rules. It renders prompt context and backs the lexical retriever.
package knowledge

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var knowledgeYAML []byte

// Metric is a named measure with its SQL fragment.
type Metric struct {
	Name       string `yaml:"name"`
	Definition string `yaml:"definition"`
	SQL        string `yaml:"sql"`
	Category   string `yaml:"-"`
}

// Pattern is a complete reusable query shape.
type Pattern struct {
	Description string `yaml:"description"`
	SQL         string `yaml:"sql"`
}

type document struct {
	Glossary struct {
		Products map[string]string `yaml:"products"`
		Terms    map[string]string `yaml:"terms"`
	} `yaml:"glossary"`
	Metrics       map[string][]Metric `yaml:"metrics"`
	SQLPatterns   map[string]Pattern  `yaml:"sql_patterns"`
	BusinessRules []string            `yaml:"business_rules"`
}

// Base serves domain knowledge lookups from the embedded definition.
type Base struct {
	doc     document
	metrics []Metric
	context string
}

// Load parses the embedded knowledge base.
func Load() (*Base, error) {
	var doc document
	if err := yaml.Unmarshal(knowledgeYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	if len(doc.Metrics) == 0 {
		return nil, fmt.Errorf("knowledge base has no metrics")
	}

	b := &Base{doc: doc}
	b.metrics = flattenMetrics(doc.Metrics)
	b.context = b.renderContext()
	return b, nil
}

// Metrics returns all metric definitions, ordered by category then name.
func (b *Base) Metrics() []Metric {
	return b.metrics
}

// Metric returns a metric definition by name.
func (b *Base) Metric(name string) (Metric, bool) {
	for _, m := range b.metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Pattern returns a named SQL pattern.
func (b *Base) Pattern(name string) (Pattern, bool) {
	p, ok := b.doc.SQLPatterns[name]
	return p, ok
}

// PatternNames returns the available pattern names, sorted.
func (b *Base) PatternNames() []string {
	names := make([]string, 0, len(b.doc.SQLPatterns))
	for name := range b.doc.SQLPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Define returns the glossary definition for a product or business term.
func (b *Base) Define(term string) (string, bool) {
	if def, ok := b.doc.Glossary.Products[term]; ok {
		return def, true
	}
	if def, ok := b.doc.Glossary.Terms[strings.ToLower(term)]; ok {
		return def, true
	}
	return "", false
}

// BusinessRules returns the rule list in definition order.
func (b *Base) BusinessRules() []string {
	return b.doc.BusinessRules
}

// Context returns the metrics block used in model prompts.
func (b *Base) Context() string {
	return b.context
}

func (b *Base) renderContext() string {
	var sb strings.Builder
	sb.WriteString("## Available Metrics:\n")
	for _, m := range b.metrics {
		fmt.Fprintf(&sb, "- **%s**: %s\n", m.Name, m.Definition)
		fmt.Fprintf(&sb, "  SQL: `%s`\n", m.SQL)
	}

	if len(b.doc.BusinessRules) > 0 {
		sb.WriteString("\n## Business Rules:\n")
		for _, rule := range b.doc.BusinessRules {
			fmt.Fprintf(&sb, "- %s\n", rule)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func flattenMetrics(byCategory map[string][]Metric) []Metric {
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var out []Metric
	for _, category := range categories {
		for _, m := range byCategory[category] {
			m.Category = category
			out = append(out, m)
		}
	}
	return out
}
