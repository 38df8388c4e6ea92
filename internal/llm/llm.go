// Package llm handles text-generation provider communication and the prompts
// that turn a domain context into facts, narrative, answer and reasoning.
package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyResponse is returned when a provider answers with no usable text.
var ErrEmptyResponse = errors.New("llm: empty model output")

// ErrMalformedOutput is returned when a response cannot be parsed into the
// shape a prompt asked for.
var ErrMalformedOutput = errors.New("llm: malformed model output")

// Provider is the interface for text-generation backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider builds the named provider. Tests swap it for a scripted
// provider and restore it with t.Cleanup.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// fenceRe captures the body of a fenced block, with or without a language tag.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches a lone opening fence from a truncated response.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences unwraps a facts payload the model put in a code fence.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// invalidJSONEscapeRe matches escapes JSON does not allow, such as "\$".
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// fixInvalidJSONEscapes keeps the backslash of an invalid escape as a literal.
func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}
