// Package schema defines the canonical data types for generated tax reasoning
// cases and the domain templates they are generated from.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is the role a fact plays in a case.
type Category string

const (
	CategorySituational Category = "situational"
	CategoryRule        Category = "rule"
	CategoryConclusion  Category = "conclusion"
)

// legacyStory is the label older case files used for situational facts.
const legacyStory = "story"

// Categories lists every category in a stable order.
var Categories = []Category{CategorySituational, CategoryRule, CategoryConclusion}

// ParseCategory maps a serialized label onto a Category. The legacy "story"
// label is read as situational.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(CategorySituational), legacyStory:
		return CategorySituational, nil
	case string(CategoryRule):
		return CategoryRule, nil
	case string(CategoryConclusion):
		return CategoryConclusion, nil
	default:
		return "", fmt.Errorf("schema: unknown fact category %q", s)
	}
}

// UnmarshalJSON accepts any label ParseCategory accepts.
func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("schema: fact category: %w", err)
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Fact is a single labeled statement within a case.
type Fact struct {
	Content  string   `json:"content"`
	Category Category `json:"type"`
}

// Case is a complete generated reasoning case. The JSON field names are the
// persisted wire format and must not change.
type Case struct {
	Domain         string            `json:"scenario_type"`
	Narrative      string            `json:"narrative"`
	Facts          []Fact            `json:"facts"`
	Question       string            `json:"question"`
	Answer         string            `json:"correct_answer"`
	ReasoningSteps []string          `json:"reasoning_steps"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// FactContents returns the text of every fact in order.
func (c *Case) FactContents() []string {
	out := make([]string, len(c.Facts))
	for i, f := range c.Facts {
		out[i] = f.Content
	}
	return out
}

// CategorySet returns the distinct categories present in the case, in
// Categories order.
func (c *Case) CategorySet() []Category {
	seen := make(map[Category]bool, len(Categories))
	for _, f := range c.Facts {
		seen[f.Category] = true
	}
	var out []Category
	for _, cat := range Categories {
		if seen[cat] {
			out = append(out, cat)
		}
	}
	return out
}

// SetMeta records a metadata entry, allocating the map on first use.
func (c *Case) SetMeta(key, value string) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Metadata[key] = value
}

// Metadata keys written by the generator.
const (
	MetaGeneratedAt = "generated_at"
	MetaAttempts    = "attempts"
	MetaBackend     = "backend"
	MetaRunID       = "run_id"
	MetaDerivation  = "derivation"
	MetaDefects     = "defects"
)

// MarshalCase encodes a case in its persisted form.
func MarshalCase(c *Case) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("schema: nil case")
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("schema: marshal case: %w", err)
	}
	return b, nil
}

// UnmarshalCase decodes a persisted case.
func UnmarshalCase(b []byte) (*Case, error) {
	var c Case
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("schema: unmarshal case: %w", err)
	}
	return &c, nil
}

// Template describes one tax domain. Field names follow the template file
// format so existing template files load unchanged.
type Template struct {
	Name             string   `json:"domain_name" yaml:"domain_name"`
	Description      string   `json:"description" yaml:"description"`
	ExampleQuestions []string `json:"typical_questions" yaml:"typical_questions"`
	ReasoningPattern []string `json:"reasoning_pattern" yaml:"reasoning_pattern"`
	RequiredFacts    []string `json:"required_facts" yaml:"required_facts"`
	ApplicableRules  []string `json:"tax_rules" yaml:"tax_rules"`
	AnswerPattern    string   `json:"answer_pattern,omitempty" yaml:"answer_pattern,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate shared template state.
func (t Template) Clone() Template {
	t.ExampleQuestions = append([]string(nil), t.ExampleQuestions...)
	t.ReasoningPattern = append([]string(nil), t.ReasoningPattern...)
	t.RequiredFacts = append([]string(nil), t.RequiredFacts...)
	t.ApplicableRules = append([]string(nil), t.ApplicableRules...)
	return t
}
