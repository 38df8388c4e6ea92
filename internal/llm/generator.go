package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/taxgen/internal/textparse"
)

// Per-call token budgets used when Options.MaxTokens is zero.
const (
	factsTokens     = 500
	narrativeTokens = 800
	answerTokens    = 200
	reasoningTokens = 600
)

// DefaultTemperature is the sampling temperature used when none is configured.
const DefaultTemperature = 0.7

// Options configures a Generator.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int // overrides every per-call budget when > 0
	Temperature float64
	Debug       bool
}

// FactSet is the parsed result of a facts request. Answer is set only when
// the model volunteered one alongside the facts.
type FactSet struct {
	Facts  []string
	Answer string
}

// Generator builds prompts for each part of a case and parses the responses.
type Generator struct {
	provider Provider
	opts     Options
	logger   *zap.Logger
}

// NewGenerator returns a Generator that sends every prompt to p. A nil logger
// discards output.
func NewGenerator(p Provider, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{provider: p, opts: opts, logger: logger}
}

// Backend names the provider and model for case metadata.
func (g *Generator) Backend() string {
	name := g.opts.Provider
	if name == "" {
		name = "anthropic"
	}
	if g.opts.Model == "" {
		return name
	}
	return name + "/" + g.opts.Model
}

func (g *Generator) complete(ctx context.Context, call, system, user string, budget int) (string, error) {
	if g.opts.MaxTokens > 0 {
		budget = g.opts.MaxTokens
	}
	if g.opts.Debug {
		g.logger.Debug("prompt",
			zap.String("call", call),
			zap.String("system", system),
			zap.String("user", user))
	}
	raw, err := g.provider.Complete(ctx, system, user, budget, g.opts.Temperature)
	if err != nil {
		return "", fmt.Errorf("llm: %s: %w", call, err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("llm: %s: %w", call, ErrEmptyResponse)
	}
	if g.opts.Debug {
		g.logger.Debug("response", zap.String("call", call), zap.String("raw", raw))
	}
	return raw, nil
}

const factsSystemPrompt = `You are a tax law expert. Generate realistic, accurate tax facts for the given scenario.
Include three kinds of facts:
- situational facts: what happened, with concrete dollar amounts, areas, or distances
- rule facts: the relevant tax law, citing the code section and any percentage limitation
- conclusion facts: the logical outcome, starting with "Therefore"
Every number used in the conclusion must be computable from the situational and rule facts.

Output ONLY JSON of the form {"facts": ["..."], "answer": "..."}. The answer is the
numeric result the facts lead to, starting with the amount or percentage.`

// Facts requests a fact list for domain, seeded with the domain's prompt context.
func (g *Generator) Facts(ctx context.Context, domain, domainContext string) (FactSet, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate 5-7 tax facts for a %s scenario.\n\n", humanize(domain))
	if domainContext != "" {
		sb.WriteString("Context:\n")
		sb.WriteString(domainContext)
		sb.WriteString("\n")
	}
	sb.WriteString("Make the facts realistic and legally sound.")

	raw, err := g.complete(ctx, "facts", factsSystemPrompt, sb.String(), factsTokens)
	if err != nil {
		return FactSet{}, err
	}
	fs, err := parseFacts(raw)
	if err != nil {
		return FactSet{}, fmt.Errorf("llm: facts: %w", err)
	}
	return fs, nil
}

// factsPayload is the JSON shape requested from the facts prompt.
type factsPayload struct {
	Facts  []string `json:"facts"`
	Answer string   `json:"answer"`
}

// parseFacts accepts the requested JSON payload and falls back to one fact per
// list item when the model answered in prose.
func parseFacts(raw string) (FactSet, error) {
	body := stripMarkdownFences(raw)
	var p factsPayload
	err := json.Unmarshal([]byte(body), &p)
	if err != nil {
		err = json.Unmarshal([]byte(fixInvalidJSONEscapes(body)), &p)
	}
	if err == nil {
		var facts []string
		for _, f := range p.Facts {
			if f = strings.TrimSpace(f); f != "" {
				facts = append(facts, f)
			}
		}
		if len(facts) == 0 {
			return FactSet{}, fmt.Errorf("%w: no facts in payload", ErrMalformedOutput)
		}
		return FactSet{Facts: facts, Answer: strings.TrimSpace(p.Answer)}, nil
	}
	if strings.HasPrefix(body, "{") {
		return FactSet{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	facts := textparse.Items(body)
	if len(facts) == 0 {
		return FactSet{}, fmt.Errorf("%w: no facts found", ErrMalformedOutput)
	}
	return FactSet{Facts: facts}, nil
}

const narrativeSystemPrompt = `You are a skilled writer who creates realistic tax scenarios.
Write a clear, professional narrative that incorporates the given facts naturally.
Do not state the tax outcome.`

// Narrative requests a short story that weaves the facts together.
func (g *Generator) Narrative(ctx context.Context, domain string, facts []string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a realistic narrative for a %s tax scenario that includes these facts:\n\n", humanize(domain))
	writeFacts(&sb, facts)
	sb.WriteString("\nCreate a 2-3 paragraph story that feels natural and professional.")
	return g.complete(ctx, "narrative", narrativeSystemPrompt, sb.String(), narrativeTokens)
}

const answerSystemPrompt = `You are a tax expert. Answer the question using only the facts given.
Reply with a single line that starts with the computed amount or percentage,
followed by a short parenthetical explanation.`

// Answer derives an answer to question from the facts independently of any
// answer the facts request produced.
func (g *Generator) Answer(ctx context.Context, domain string, facts []string, narrative, question string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Facts about a %s:\n\n", humanize(domain))
	writeFacts(&sb, facts)
	if narrative != "" {
		fmt.Fprintf(&sb, "\nScenario:\n%s\n", narrative)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\n", question)
	raw, err := g.complete(ctx, "answer", answerSystemPrompt, sb.String(), answerTokens)
	if err != nil {
		return "", err
	}
	items := textparse.Items(raw)
	if len(items) == 0 {
		return "", fmt.Errorf("llm: answer: %w: no answer line", ErrMalformedOutput)
	}
	return items[0], nil
}

const reasoningSystemPrompt = `You are a tax expert who explains reasoning clearly.
Create logical, step-by-step reasoning that connects the facts to the conclusion.
Return one step per line and state the final amount explicitly in the last step.`

// Reasoning requests the steps that lead from the facts to answer.
func (g *Generator) Reasoning(ctx context.Context, domain string, facts []string, question, answer string) ([]string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Given these facts about a %s:\n\n", humanize(domain))
	writeFacts(&sb, facts)
	fmt.Fprintf(&sb, "\nQuestion: %s\nAnswer: %s\n\n", question, answer)
	sb.WriteString("Provide 3-5 clear reasoning steps that logically connect the facts to reach this answer.")
	raw, err := g.complete(ctx, "reasoning", reasoningSystemPrompt, sb.String(), reasoningTokens)
	if err != nil {
		return nil, err
	}
	steps := textparse.Items(raw)
	if len(steps) == 0 {
		return nil, fmt.Errorf("llm: reasoning: %w: no steps", ErrMalformedOutput)
	}
	return steps, nil
}

func writeFacts(sb *strings.Builder, facts []string) {
	for _, f := range facts {
		fmt.Fprintf(sb, "- %s\n", f)
	}
}

// humanize turns a domain key like "home_office_deduction" into prose.
func humanize(domain string) string {
	return strings.ReplaceAll(domain, "_", " ")
}
