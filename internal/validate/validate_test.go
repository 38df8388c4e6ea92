package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/taxgen/internal/schema"
)

func validCase() *schema.Case {
	return &schema.Case{
		Domain:    "business_meal_deduction",
		Narrative: "Maria took a prospective client to dinner to discuss a contract.",
		Facts: []schema.Fact{
			{Content: "Maria spent $500 on the dinner.", Category: schema.CategorySituational},
			{Content: "Business meals are limited to 50% under IRC Section 274.", Category: schema.CategoryRule},
			{Content: "Therefore the meal qualifies for a partial deduction.", Category: schema.CategoryConclusion},
		},
		Question:       "How much of the meal expense is deductible?",
		Answer:         "$250",
		ReasoningSteps: []string{"The meal cost $500.", "Apply the 50% limit: the deductible amount is $250."},
	}
}

func TestValidate_ValidCase(t *testing.T) {
	assert.Empty(t, Validate(validCase()))
}

func TestValidate_MissingFieldsEachReported(t *testing.T) {
	c := validCase()
	c.Narrative = ""
	c.Question = "   "
	defects := Validate(c)
	assert.True(t, HasField(defects, "narrative"), "missing narrative not reported: %v", defects)
	assert.True(t, HasField(defects, "question"), "missing question not reported: %v", defects)
	assert.Len(t, defects, 2)
}

func TestValidate_DiversityIndependentOfNumbers(t *testing.T) {
	c := &schema.Case{
		Domain:    "home_office_deduction",
		Narrative: "n",
		Facts: []schema.Fact{
			{Content: "Office is 250 sq ft", Category: schema.CategorySituational},
			{Content: "Home is 2000 sq ft", Category: schema.CategorySituational},
		},
		Question:       "q",
		Answer:         "12.5%",
		ReasoningSteps: []string{"250 divided by 2000 is 12.5%"},
	}
	defects := Validate(c)
	require.Len(t, defects, 1, "defects: %v", defects)
	assert.Equal(t, FieldDiversity, defects[0].Field)
	assert.Contains(t, defects[0].Message, "insufficient fact diversity")
	assert.Contains(t, defects[0].Message, "situational")
}

func TestValidate_AnswerNotReferenced(t *testing.T) {
	c := validCase()
	c.ReasoningSteps = []string{"Half of the meal is deductible."}
	defects := Validate(c)
	require.Len(t, defects, 1, "defects: %v", defects)
	assert.Equal(t, FieldReference, defects[0].Field)
}

func TestValidate_ReferenceSkippedWithoutNumber(t *testing.T) {
	c := validCase()
	c.Answer = "Half of the meal cost"
	c.ReasoningSteps = []string{"Meals are limited to half."}
	assert.False(t, HasField(Validate(c), FieldReference))
}

func TestValidate_NumericInconsistency(t *testing.T) {
	c := validCase()
	c.Answer = "$999"
	c.ReasoningSteps = []string{"The deductible amount is $999."}
	defects := Validate(c)
	require.Len(t, defects, 1, "defects: %v", defects)
	assert.Equal(t, "numerical values inconsistent between facts and answer", defects[0].Message)
}

func TestValidate_AllDefectsReported(t *testing.T) {
	c := &schema.Case{
		Domain:         "vehicle_expense_deduction",
		Facts:          []schema.Fact{{Content: "Drove 10,000 miles", Category: schema.CategorySituational}},
		Answer:         "$7",
		ReasoningSteps: []string{"Use the standard rate."},
	}
	defects := Validate(c)
	for _, field := range []string{"narrative", "question", FieldDiversity, FieldReference, FieldNumeric} {
		assert.True(t, HasField(defects, field), "expected %s defect in %v", field, defects)
	}
}

func TestSummary(t *testing.T) {
	s := Summary([]Defect{{Field: "a", Message: "first"}, {Field: "b", Message: "second"}})
	if s != "first; second" {
		t.Errorf("Summary = %q, want %q", s, "first; second")
	}
	if !strings.HasPrefix(Defect{Field: "f", Message: "m"}.Error(), "validation: f") {
		t.Error("Defect.Error missing field prefix")
	}
}
