// Package domain holds the tax domain templates that seed case generation.
// Templates come from a built-in set or from a YAML/JSON template file whose
// domain order is preserved.
package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/taxgen/internal/schema"
)

// DefaultQuestion is used when a template lists no example questions.
const DefaultQuestion = "What is the tax treatment?"

// Provider is the read side of a template registry as used during generation.
type Provider interface {
	Get(name string) (schema.Template, error)
	List() []string
	Context(name string) (string, error)
	Question(name string) (string, error)
}

// UnknownDomainError is returned for a domain name that has no template.
type UnknownDomainError struct {
	Name      string
	Available []string
}

func (e *UnknownDomainError) Error() string {
	return fmt.Sprintf("domain: unknown domain %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Registry is an ordered, concurrency-safe set of templates.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	templates map[string]schema.Template
	// path is the file the registry was loaded from; empty for built-ins.
	path string
}

// NewRegistry returns a registry holding templates in the given order.
// A later template with a duplicate name replaces the earlier one in place.
func NewRegistry(templates ...schema.Template) (*Registry, error) {
	r := &Registry{templates: make(map[string]schema.Template, len(templates))}
	for _, t := range templates {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Builtin returns a registry with the built-in domains.
func Builtin() *Registry {
	r, err := NewRegistry(builtins()...)
	if err != nil {
		panic(err) // built-in templates are static
	}
	return r
}

// Path returns the file backing the registry, if any.
func (r *Registry) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// Get returns a copy of the named template.
func (r *Registry) Get(name string) (schema.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return schema.Template{}, &UnknownDomainError{Name: name, Available: append([]string(nil), r.order...)}
	}
	return t.Clone(), nil
}

// List returns domain names in template order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns copies of every template in order.
func (r *Registry) All() []schema.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.Template, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.templates[name].Clone())
	}
	return out
}

// Add registers a custom domain. An existing domain of the same name is
// replaced without changing its position.
func (r *Registry) Add(t schema.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(t)
}

func (r *Registry) add(t schema.Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("domain: template has no domain_name")
	}
	if _, exists := r.templates[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.templates[t.Name] = t.Clone()
	return nil
}

// Question returns the primary question for a domain: its first example
// question, or DefaultQuestion.
func (r *Registry) Question(name string) (string, error) {
	t, err := r.Get(name)
	if err != nil {
		return "", err
	}
	if len(t.ExampleQuestions) == 0 || strings.TrimSpace(t.ExampleQuestions[0]) == "" {
		return DefaultQuestion, nil
	}
	return t.ExampleQuestions[0], nil
}

// Context renders the prompt context for a domain.
func (r *Registry) Context(name string) (string, error) {
	t, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return RenderContext(t), nil
}

// RenderContext formats a template as the context block handed to the generator.
func RenderContext(t schema.Template) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Domain: %s\n", t.Description)
	writeList(&sb, "Key reasoning steps:", t.ReasoningPattern)
	writeList(&sb, "Required facts to include:", t.RequiredFacts)
	writeList(&sb, "Relevant tax rules:", t.ApplicableRules)
	if t.AnswerPattern != "" {
		fmt.Fprintf(&sb, "\nExpected answer shape: %s\n", t.AnswerPattern)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}
