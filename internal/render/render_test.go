package render

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/dshills/taxgen/internal/generate"
	"github.com/dshills/taxgen/internal/schema"
)

func sampleCase() *schema.Case {
	return &schema.Case{
		Domain:    "business_meal_deduction",
		Narrative: "Maria took a prospective client to dinner.",
		Facts: []schema.Fact{
			{Content: "Maria spent $500 on dinner.", Category: schema.CategorySituational},
			{Content: "Meals are limited to 50% | IRC 274.", Category: schema.CategoryRule},
			{Content: "Therefore half is deductible.", Category: schema.CategoryConclusion},
		},
		Question:       "How much of the meal expense is deductible?",
		Answer:         "$250",
		ReasoningSteps: []string{"The meal cost $500.", "50% of $500 is $250."},
		Metadata: map[string]string{
			schema.MetaAttempts:   "2",
			schema.MetaDerivation: "scaled",
		},
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	c := sampleCase()
	b, err := RenderJSON(c)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	got, err := schema.UnmarshalCase(b)
	if err != nil {
		t.Fatalf("UnmarshalCase: %v", err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	for _, key := range []string{`"scenario_type"`, `"correct_answer"`, `"reasoning_steps"`, `"type": "rule"`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("JSON missing %s", key)
		}
	}
}

func TestRenderJSON_Nil(t *testing.T) {
	if _, err := RenderJSON(nil); err == nil {
		t.Error("expected error for nil case")
	}
}

func TestRenderJSONList_Empty(t *testing.T) {
	b, err := RenderJSONList(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[]" {
		t.Errorf("got %s, want []", b)
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(sampleCase())
	for _, want := range []string{
		"## business_meal_deduction",
		"| 1 | situational | Maria spent $500 on dinner. |",
		`Meals are limited to 50% \| IRC 274.`,
		"**Answer:** $250",
		"2. 50% of $500 is $250.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "Defects") {
		t.Error("defects section rendered for a clean case")
	}

	c := sampleCase()
	c.SetMeta(schema.MetaDefects, "validation: fact_diversity: insufficient")
	if !strings.Contains(RenderMarkdown(c), "**Defects:**") {
		t.Error("defects not rendered")
	}
	if RenderMarkdown(nil) != "" {
		t.Error("nil case should render empty")
	}
}

func TestRenderSummary(t *testing.T) {
	s := generate.Stats{
		CasesGenerated:    2,
		ValidationsPassed: 2,
		ValidationsFailed: 2,
		Regenerations:     2,
		TooFewFacts:       1,
		Exhausted:         1,
		AttemptsPerCase:   []float64{1, 3},
	}
	batch := &generate.BatchResult{Failures: []generate.Failure{
		{Domain: "home_office_deduction", Err: errors.New("no valid case after 3 attempts")},
	}}
	out := RenderSummary(s, batch)
	for _, want := range []string{
		"**Cases generated:** 2",
		"2 passed, 2 failed (50.0% success)",
		"mean 2.00, median 2.0",
		"Exhausted domains: 1",
		"| home_office_deduction | no valid case after 3 attempts |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}

	empty := RenderSummary(generate.Stats{}, nil)
	if !strings.Contains(empty, "(100.0% success)") {
		t.Errorf("empty run should report 100%% success:\n%s", empty)
	}
	if strings.Contains(empty, "Failures") {
		t.Error("failures table rendered without failures")
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	if err := WriteXLSX(path, []*schema.Case{sampleCase(), nil}); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(CasesSheet)
	if err != nil {
		t.Fatalf("GetRows(%s): %v", CasesSheet, err)
	}
	if len(rows) != 2 {
		t.Fatalf("cases rows = %d, want header + 1", len(rows))
	}
	if diff := cmp.Diff(caseHeaders, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][0] != "business_meal_deduction" || rows[1][2] != "$250" || rows[1][3] != "3" {
		t.Errorf("unexpected case row %v", rows[1])
	}

	facts, err := f.GetRows(FactsSheet)
	if err != nil {
		t.Fatalf("GetRows(%s): %v", FactsSheet, err)
	}
	if len(facts) != 4 {
		t.Fatalf("fact rows = %d, want header + 3", len(facts))
	}
	if facts[3][2] != "conclusion" {
		t.Errorf("third fact category = %q", facts[3][2])
	}
}
