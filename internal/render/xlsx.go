package render

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dshills/taxgen/internal/schema"
)

// Sheet names used by WriteXLSX.
const (
	CasesSheet = "Cases"
	FactsSheet = "Facts"
)

var (
	caseHeaders = []string{"domain", "question", "answer", "facts", "narrative", "reasoning", "attempts", "derivation", "defects"}
	factHeaders = []string{"domain", "index", "category", "content"}
)

// WriteXLSX writes cases to a workbook at path: one row per case on the Cases
// sheet and one row per fact on the Facts sheet.
func WriteXLSX(path string, cases []*schema.Case) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", CasesSheet); err != nil {
		return fmt.Errorf("render: xlsx: %w", err)
	}
	if _, err := f.NewSheet(FactsSheet); err != nil {
		return fmt.Errorf("render: xlsx: %w", err)
	}

	caseRows := make([][]any, 0, len(cases))
	var factRows [][]any
	for _, c := range cases {
		if c == nil {
			continue
		}
		caseRows = append(caseRows, []any{
			c.Domain,
			c.Question,
			c.Answer,
			len(c.Facts),
			c.Narrative,
			strings.Join(c.ReasoningSteps, "\n"),
			c.Metadata[schema.MetaAttempts],
			c.Metadata[schema.MetaDerivation],
			c.Metadata[schema.MetaDefects],
		})
		for i, fact := range c.Facts {
			factRows = append(factRows, []any{c.Domain, i + 1, string(fact.Category), fact.Content})
		}
	}

	if err := writeSheet(f, CasesSheet, caseHeaders, caseRows); err != nil {
		return err
	}
	if err := writeSheet(f, FactsSheet, factHeaders, factRows); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("render: xlsx save %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("render: xlsx %s: %w", sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("render: xlsx %s: %w", sheet, err)
			}
		}
	}
	return nil
}
