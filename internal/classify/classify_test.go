package classify

import (
	"testing"

	"github.com/dshills/taxgen/internal/schema"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want schema.Category
	}{
		{"Therefore, the deduction allowed is $250.", schema.CategoryConclusion},
		{"Business meals are 50% deductible under IRC Section 274", schema.CategoryRule},
		{"Maria spent $500 on a client dinner.", schema.CategorySituational},
		{"", schema.CategorySituational},
		{"The office must be used exclusively for business.", schema.CategoryRule},
		{"Charitable gifts are limited to 60 percent of AGI.", schema.CategoryRule},
		{"See § 280A for home office rules.", schema.CategoryRule},
		{"John can claim the standard mileage rate.", schema.CategoryConclusion},
		{"As a result, the travel costs are not deductible.", schema.CategoryConclusion},
		{"THEREFORE THE EXPENSE IS ALLOWED", schema.CategoryConclusion},
	}
	for _, tc := range tests {
		if got := Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestClassify_ConclusionBeatsRule(t *testing.T) {
	text := "Therefore, under IRC Section 274 only 50% is deductible."
	if got := Classify(text); got != schema.CategoryConclusion {
		t.Errorf("Classify(%q) = %q, want conclusion", text, got)
	}
}

func TestDefaultRules_EachRuleMatchesIndependently(t *testing.T) {
	samples := map[string]string{
		"conclusion-marker":     "the taxpayer qualifies for the deduction",
		"rule-marker":           "treas. reg. 1.274-12 governs meals",
		"statutory-citation":    "section 162 applies to travel",
		"percentage-limitation": "12.5% of the home is used",
	}
	for _, r := range DefaultRules {
		s, ok := samples[r.Name]
		if !ok {
			t.Errorf("no sample for rule %q", r.Name)
			continue
		}
		if !r.Match(s) {
			t.Errorf("rule %q did not match %q", r.Name, s)
		}
	}
}

func TestNew_CustomRules(t *testing.T) {
	c := New(Rule{
		Name:     "always-rule",
		Category: schema.CategoryRule,
		Match:    func(string) bool { return true },
	})
	if got := c.Classify("anything"); got != schema.CategoryRule {
		t.Errorf("custom classifier = %q, want rule", got)
	}
}

func TestClassifier_Facts(t *testing.T) {
	facts := New().Facts([]string{"Spent $500 on dinner", "Therefore $250 is deductible"})
	if len(facts) != 2 {
		t.Fatalf("Facts returned %d facts, want 2", len(facts))
	}
	if facts[0].Category != schema.CategorySituational || facts[1].Category != schema.CategoryConclusion {
		t.Errorf("Facts categories = [%s %s], want [situational conclusion]", facts[0].Category, facts[1].Category)
	}
	if facts[0].Content != "Spent $500 on dinner" {
		t.Errorf("Facts[0].Content = %q", facts[0].Content)
	}
}
