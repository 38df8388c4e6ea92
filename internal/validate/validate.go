// Package validate checks a candidate case for structural and consistency
// defects. Every check runs independently; a case with several problems
// reports all of them.
package validate

import (
	"fmt"
	"strings"

	"github.com/dshills/taxgen/internal/numeric"
	"github.com/dshills/taxgen/internal/schema"
)

// Defect records a single validation failure on a case.
type Defect struct {
	Field   string
	Message string
}

func (d Defect) Error() string {
	return fmt.Sprintf("validation: %s: %s", d.Field, d.Message)
}

// Defect fields beyond the case's own field names.
const (
	FieldDiversity = "fact_diversity"
	FieldReference = "answer_reference"
	FieldNumeric   = "numeric_consistency"
)

// MinCategories is the minimum number of distinct fact categories a case needs.
const MinCategories = 2

// Validator runs the case checks.
type Validator struct {
	checker *numeric.Checker
}

// New returns a Validator using checker for numeric consistency. A nil checker
// uses the default operator set.
func New(checker *numeric.Checker) *Validator {
	if checker == nil {
		checker = numeric.NewChecker()
	}
	return &Validator{checker: checker}
}

// Validate returns every defect found in c. An empty result means c is valid.
func (v *Validator) Validate(c *schema.Case) []Defect {
	if c == nil {
		return []Defect{{Field: "case", Message: "missing case"}}
	}
	var defects []Defect
	defects = append(defects, presence(c)...)

	if cats := c.CategorySet(); len(cats) < MinCategories {
		defects = append(defects, Defect{
			Field:   FieldDiversity,
			Message: fmt.Sprintf("insufficient fact diversity: observed %s", formatCategories(cats)),
		})
	}

	if lead, ok := numeric.Leading(c.Answer); ok {
		reasoning := strings.ToLower(strings.Join(c.ReasoningSteps, " "))
		if !strings.Contains(reasoning, strings.ToLower(lead.Raw)) {
			defects = append(defects, Defect{
				Field:   FieldReference,
				Message: fmt.Sprintf("answer not referenced in reasoning: %s does not appear in any step", lead.Raw),
			})
		}
	}

	if !v.checker.IsConsistent(c.FactContents(), c.Answer) {
		defects = append(defects, Defect{
			Field:   FieldNumeric,
			Message: "numerical values inconsistent between facts and answer",
		})
	}
	return defects
}

// presence reports one defect per missing or empty required field.
func presence(c *schema.Case) []Defect {
	var defects []Defect
	missing := func(field string) {
		defects = append(defects, Defect{Field: field, Message: "missing " + field})
	}
	if strings.TrimSpace(c.Domain) == "" {
		missing("scenario_type")
	}
	if strings.TrimSpace(c.Narrative) == "" {
		missing("narrative")
	}
	if len(c.Facts) == 0 {
		missing("facts")
	}
	if strings.TrimSpace(c.Question) == "" {
		missing("question")
	}
	if strings.TrimSpace(c.Answer) == "" {
		missing("correct_answer")
	}
	if len(c.ReasoningSteps) == 0 {
		missing("reasoning_steps")
	}
	return defects
}

func formatCategories(cats []schema.Category) string {
	if len(cats) == 0 {
		return "none"
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return "[" + strings.Join(names, ", ") + "]"
}

var defaultValidator = New(nil)

// Validate checks c with the default numeric checker.
func Validate(c *schema.Case) []Defect {
	return defaultValidator.Validate(c)
}

// Summary joins defect messages for compact storage in case metadata.
func Summary(defects []Defect) string {
	msgs := make([]string, len(defects))
	for i, d := range defects {
		msgs[i] = d.Message
	}
	return strings.Join(msgs, "; ")
}

// HasField reports whether any defect concerns field.
func HasField(defects []Defect, field string) bool {
	for _, d := range defects {
		if d.Field == field {
			return true
		}
	}
	return false
}
