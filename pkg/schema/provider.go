// Package schema describes the events table to the rest of the system: the
// column set for SQL validation, enum values for filters, and a rendered
// markdown block for model prompts.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var schemaYAML []byte

// Column describes one events column.
type Column struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Values      []string `yaml:"values,omitempty"`
}

type document struct {
	Table         string   `yaml:"table"`
	Description   string   `yaml:"description"`
	Columns       []Column `yaml:"columns"`
	BusinessRules []string `yaml:"business_rules"`
}

// Provider serves schema lookups from the embedded definition.
type Provider struct {
	doc     document
	context string
}

// Load parses the embedded schema definition.
func Load() (*Provider, error) {
	var doc document
	if err := yaml.Unmarshal(schemaYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if doc.Table == "" || len(doc.Columns) == 0 {
		return nil, fmt.Errorf("schema definition is incomplete")
	}

	p := &Provider{doc: doc}
	p.context = p.renderContext()
	return p, nil
}

// Table returns the canonical table name.
func (p *Provider) Table() string {
	return p.doc.Table
}

// Columns returns the column names in definition order.
func (p *Provider) Columns() []string {
	names := make([]string, 0, len(p.doc.Columns))
	for _, col := range p.doc.Columns {
		names = append(names, col.Name)
	}
	return names
}

// Column returns the definition for a named column.
func (p *Provider) Column(name string) (Column, bool) {
	for _, col := range p.doc.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Enum returns the allowed values for a column, nil when unconstrained.
func (p *Provider) Enum(name string) []string {
	col, ok := p.Column(name)
	if !ok {
		return nil
	}
	return col.Values
}

// Context returns the markdown schema block used in model prompts.
func (p *Provider) Context() string {
	return p.context
}

func (p *Provider) renderContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Table: %s\n", p.doc.Table)
	b.WriteString(p.doc.Description)
	b.WriteString("\n\n### Columns:\n")

	for _, col := range p.doc.Columns {
		enumNote := ""
		if len(col.Values) > 0 {
			enumNote = fmt.Sprintf(" (values: %s)", strings.Join(col.Values, ", "))
		}
		fmt.Fprintf(&b, "- `%s` (%s): %s%s\n", col.Name, col.Type, col.Description, enumNote)
	}

	if len(p.doc.BusinessRules) > 0 {
		b.WriteString("\n### Business Rules:\n")
		for _, rule := range p.doc.BusinessRules {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
