// Package numeric extracts monetary and percentage values from free text and
// checks whether a claimed answer can be derived from the values stated in a
// set of facts.
package numeric

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Token is a numeric literal found in text.
type Token struct {
	// Raw is the literal as written, without any currency marker.
	Raw   string
	Value float64
}

// numberRe matches an integer or decimal with an optional leading currency
// marker and optional thousands separators. Group 1 is the literal without
// the currency marker.
var numberRe = regexp.MustCompile(`(?:[$€£]\s?)?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)

// Tokens returns every numeric literal in text, in order of appearance.
func Tokens(text string) []Token {
	matches := numberRe.FindAllStringSubmatch(text, -1)
	out := make([]Token, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, Token{Raw: m[1], Value: v})
	}
	return out
}

// Values returns the numeric values of every literal in text.
func Values(text string) []float64 {
	toks := Tokens(text)
	out := make([]float64, len(toks))
	for i, t := range toks {
		out[i] = t.Value
	}
	return out
}

// Leading returns the first numeric literal in text.
func Leading(text string) (Token, bool) {
	m := numberRe.FindStringSubmatch(text)
	if m == nil {
		return Token{}, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return Token{}, false
	}
	return Token{Raw: m[1], Value: v}, true
}

// Operator is one way an answer value may be derived from fact values.
type Operator struct {
	Name  string
	Match func(facts []float64, answer float64) bool
}

// Fixed multipliers tried by the scaled operator, matching the statutory
// percentages the built-in domains use (meals 50%, capital-gain gifts 30%,
// cash gifts 60%, full amount).
var Multipliers = []float64{0.5, 0.3, 0.6, 1.0}

// Tolerances are inclusive: a difference equal to the tolerance matches.
const (
	ScaledTolerance = 1.0
	RatioTolerance  = 0.1
)

// DefaultOperators is the derivation order used by IsConsistent.
var DefaultOperators = []Operator{
	{Name: "direct", Match: direct},
	{Name: "scaled", Match: scaled(Multipliers, ScaledTolerance)},
	{Name: "ratio-percent", Match: ratioPercent(RatioTolerance)},
}

func direct(facts []float64, answer float64) bool {
	for _, v := range facts {
		if v == answer {
			return true
		}
	}
	return false
}

func scaled(multipliers []float64, tol float64) func([]float64, float64) bool {
	return func(facts []float64, answer float64) bool {
		for _, v := range facts {
			for _, k := range multipliers {
				if math.Abs(v*k-answer) <= tol {
					return true
				}
			}
		}
		return false
	}
}

// RatioPercentDistinct is a stricter ratio operator that never divides a fact
// value by itself, so a lone "100%" is not explained by any single amount. It
// is not part of DefaultOperators.
var RatioPercentDistinct = Operator{Name: "ratio-percent-distinct", Match: ratioPercentPairs(RatioTolerance, true)}

func ratioPercent(tol float64) func([]float64, float64) bool {
	return ratioPercentPairs(tol, false)
}

// ratioPercentPairs tests v/d*100 over every ordered pair of fact values with
// d > 0, including a value paired with itself unless distinct is set.
func ratioPercentPairs(tol float64, distinct bool) func([]float64, float64) bool {
	return func(facts []float64, answer float64) bool {
		for i, v := range facts {
			for j, d := range facts {
				if (distinct && i == j) || d <= 0 {
					continue
				}
				if math.Abs(v/d*100-answer) <= tol {
					return true
				}
			}
		}
		return false
	}
}

// Result describes the outcome of a consistency check.
type Result struct {
	Consistent bool
	// Vacuous is true when either side had no numbers to compare.
	Vacuous bool
	// Operator names the derivation that justified the answer.
	Operator string
	Answer   float64
}

// Checker tests answers against an ordered operator list.
type Checker struct {
	ops []Operator
}

// NewChecker returns a Checker over ops, or DefaultOperators when none are given.
func NewChecker(ops ...Operator) *Checker {
	if len(ops) == 0 {
		ops = DefaultOperators
	}
	return &Checker{ops: ops}
}

// Check reports whether the leading number of answer can be derived from the
// numbers stated in factTexts.
func (c *Checker) Check(factTexts []string, answer string) Result {
	var facts []float64
	for _, t := range factTexts {
		facts = append(facts, Values(t)...)
	}
	if len(facts) == 0 {
		return Result{Consistent: true, Vacuous: true}
	}
	lead, ok := Leading(answer)
	if !ok {
		return Result{Consistent: true, Vacuous: true}
	}
	for _, op := range c.ops {
		if op.Match(facts, lead.Value) {
			return Result{Consistent: true, Operator: op.Name, Answer: lead.Value}
		}
	}
	return Result{Answer: lead.Value}
}

// IsConsistent is Check reduced to its verdict.
func (c *Checker) IsConsistent(factTexts []string, answer string) bool {
	return c.Check(factTexts, answer).Consistent
}

var defaultChecker = NewChecker()

// IsConsistent checks answer against factTexts with DefaultOperators.
func IsConsistent(factTexts []string, answer string) bool {
	return defaultChecker.IsConsistent(factTexts, answer)
}
