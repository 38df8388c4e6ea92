package llm

import (
	"fmt"
	"os"
	"strings"
)

// backend describes one provider: where its key lives, the model used when
// none is configured, and how to build a client.
type backend struct {
	keyEnv       string
	defaultModel string
	build        func(apiKey, model string) (Provider, error)
}

var backends = map[string]backend{
	"anthropic": {keyEnv: "ANTHROPIC_API_KEY", defaultModel: "claude-sonnet-4-5", build: newAnthropicProvider},
	"openai":    {keyEnv: "OPENAI_API_KEY", defaultModel: "gpt-4o-mini", build: newOpenAIProvider},
	"google":    {keyEnv: "GOOGLE_API_KEY", defaultModel: "gemini-1.5-flash", build: newGoogleProvider},
	"groq":      {keyEnv: "GROQ_API_KEY", defaultModel: "llama-3.1-8b-instant", build: newGroqProvider},
}

// Providers lists the names accepted by NewProvider.
var Providers = []string{"anthropic", "openai", "google", "groq"}

// DefaultModel returns the model used for providerName when none is configured.
func DefaultModel(providerName string) string {
	return backends[strings.ToLower(providerName)].defaultModel
}

// defaultNewProvider builds the named provider with its key from the
// environment. An empty name selects anthropic.
func defaultNewProvider(providerName, model string) (Provider, error) {
	name := strings.ToLower(providerName)
	if name == "" {
		name = "anthropic"
	}
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q (available: %s)", providerName, strings.Join(Providers, ", "))
	}
	key := os.Getenv(b.keyEnv)
	if key == "" {
		return nil, fmt.Errorf("llm: %s: %s environment variable not set", name, b.keyEnv)
	}
	if model == "" {
		model = b.defaultModel
	}
	return b.build(key, model)
}

// joinText concatenates the text parts of a response, failing when there are
// none.
func joinText(backendName string, parts []string) (string, error) {
	text := strings.Join(parts, "")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", backendName, ErrEmptyResponse)
	}
	return text, nil
}
