// Package render produces output from generated cases and run statistics.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/taxgen/internal/generate"
	"github.com/dshills/taxgen/internal/schema"
)

// RenderJSON produces the pretty-printed JSON form of a case. The output
// round-trips through schema.UnmarshalCase back to an equal Case.
func RenderJSON(c *schema.Case) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("render: nil case")
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderJSONList renders several cases as one JSON array.
func RenderJSONList(cases []*schema.Case) ([]byte, error) {
	if cases == nil {
		cases = []*schema.Case{}
	}
	b, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderMarkdown produces a readable Markdown rendition of a case. Every fact
// appears in the facts table with its category.
func RenderMarkdown(c *schema.Case) string {
	if c == nil {
		return ""
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "## %s\n\n", c.Domain)

	sb.WriteString("### Narrative\n\n")
	sb.WriteString(strings.TrimSpace(c.Narrative))
	sb.WriteString("\n\n")

	if len(c.Facts) > 0 {
		sb.WriteString("### Facts\n\n")
		sb.WriteString("| # | Category | Fact |\n")
		sb.WriteString("|---|---|---|\n")
		for i, f := range c.Facts {
			fmt.Fprintf(&sb, "| %d | %s | %s |\n", i+1, f.Category, mdEscape(f.Content))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "**Question:** %s  \n", c.Question)
	fmt.Fprintf(&sb, "**Answer:** %s\n\n", c.Answer)

	if len(c.ReasoningSteps) > 0 {
		sb.WriteString("### Reasoning\n\n")
		for i, step := range c.ReasoningSteps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
		}
		sb.WriteString("\n")
	}

	if d := c.Metadata[schema.MetaDefects]; d != "" {
		fmt.Fprintf(&sb, "> **Defects:** %s\n\n", mdEscape(d))
	}
	return sb.String()
}

// RenderSummary produces the end-of-run statistics block. batch may be nil
// for single-domain runs.
func RenderSummary(s generate.Stats, batch *generate.BatchResult) string {
	var sb strings.Builder

	sb.WriteString("## Generation Summary\n\n")
	fmt.Fprintf(&sb, "**Cases generated:** %d  \n", s.CasesGenerated)
	fmt.Fprintf(&sb, "**Validations:** %d passed, %d failed (%.1f%% success)  \n",
		s.ValidationsPassed, s.ValidationsFailed, s.SuccessRate())
	fmt.Fprintf(&sb, "**Regenerations:** %d  \n", s.Regenerations)
	fmt.Fprintf(&sb, "**Cache hits:** %d\n\n", s.CacheHits)

	if s.CasesGenerated > 0 {
		fmt.Fprintf(&sb, "Attempts per accepted case: mean %.2f, median %.1f\n\n",
			s.MeanAttempts(), s.MedianAttempts())
	}
	if s.BackendErrors > 0 || s.TooFewFacts > 0 || s.Exhausted > 0 {
		fmt.Fprintf(&sb, "Rejected attempts: %d backend errors, %d with too few facts. Exhausted domains: %d\n\n",
			s.BackendErrors, s.TooFewFacts, s.Exhausted)
	}

	if batch != nil && len(batch.Failures) > 0 {
		sb.WriteString("### Failures\n\n")
		sb.WriteString("| Domain | Error |\n")
		sb.WriteString("|---|---|\n")
		for _, f := range batch.Failures {
			fmt.Fprintf(&sb, "| %s | %s |\n", f.Domain, mdEscape(f.Err.Error()))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
