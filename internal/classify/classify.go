// Package classify assigns a category to free-text tax facts using an ordered
// list of keyword and pattern rules. The first matching rule wins; text that
// matches nothing is situational.
package classify

import (
	"regexp"
	"strings"

	"github.com/dshills/taxgen/internal/schema"
)

// Rule pairs a predicate over lowercased fact text with the category it assigns.
type Rule struct {
	Name     string
	Category schema.Category
	Match    func(lower string) bool
}

var conclusionMarkers = []string{
	"therefore",
	"qualifies for",
	"is deductible",
	"not deductible",
	"can deduct",
	"is allowed",
	"can claim",
	"deduction allowed",
	"in conclusion",
	"as a result",
}

var ruleMarkers = []string{
	"irc section",
	"irc §",
	"under section",
	"regulation",
	"treas. reg",
	"must be",
	"required",
	"limited to",
	"limitation",
	"irs notice",
}

var (
	citationRe   = regexp.MustCompile(`(?:\bsection\s+\d+|§\s?\d+)`)
	percentageRe = regexp.MustCompile(`\d+(?:\.\d+)?\s?(?:%|percent\b)`)
)

// DefaultRules is the rule order used by Classify. Conclusion markers are
// checked before rule markers so that "Therefore ... under Section 274" is a
// conclusion.
var DefaultRules = []Rule{
	{Name: "conclusion-marker", Category: schema.CategoryConclusion, Match: containsAny(conclusionMarkers)},
	{Name: "rule-marker", Category: schema.CategoryRule, Match: containsAny(ruleMarkers)},
	{Name: "statutory-citation", Category: schema.CategoryRule, Match: citationRe.MatchString},
	{Name: "percentage-limitation", Category: schema.CategoryRule, Match: percentageRe.MatchString},
}

func containsAny(markers []string) func(string) bool {
	return func(lower string) bool {
		for _, m := range markers {
			if strings.Contains(lower, m) {
				return true
			}
		}
		return false
	}
}

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier over rules. With no rules it uses DefaultRules.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the category of the first matching rule, or situational.
func (c *Classifier) Classify(text string) schema.Category {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		if r.Match(lower) {
			return r.Category
		}
	}
	return schema.CategorySituational
}

// Facts classifies each text and returns the labeled facts in input order.
func (c *Classifier) Facts(texts []string) []schema.Fact {
	facts := make([]schema.Fact, 0, len(texts))
	for _, t := range texts {
		facts = append(facts, schema.Fact{Content: t, Category: c.Classify(t)})
	}
	return facts
}

var defaultClassifier = New()

// Classify labels text with the default rule set.
func Classify(text string) schema.Category {
	return defaultClassifier.Classify(text)
}
