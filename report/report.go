/*
report.go - XLSX export of monthly reconciliation summaries

PURPOSE:
  Renders a reconciliation summary as an Excel workbook for care teams
  that review outstanding visits outside the portal. One sheet per run,
  one row per social worker, plus a header block with the run metadata
  and scan counters.

LAYOUT:
  Row 1:  Title (month + run id)
  Row 2:  Scan counters (members / visits / claims, with truncation notes)
  Row 4:  Column headers
  Row 5+: Worker rows, already ranked by the builder

SEE ALSO:
  - reconcile/summary.go: Produces the Summary this package renders
  - api/handlers.go: Streams the workbook over HTTP
*/
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/jcbloome/calaim-visit-engine/reconcile"
)

const sheetName = "Summary"

var columns = []string{
	"Social Worker",
	"Assigned",
	"Active",
	"On Hold",
	"Completed",
	"Outstanding",
	"Claims",
	"Claims Total ($)",
}

// BuildWorkbook renders a summary into a new workbook. The caller owns the
// returned file and must Close it.
func BuildWorkbook(sum *reconcile.Summary) (*excelize.File, error) {
	f := excelize.NewFile()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}

	if err := writeHeader(f, sum); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeRows(f, sum); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

func writeHeader(f *excelize.File, sum *reconcile.Summary) error {
	title := fmt.Sprintf("Visit reconciliation for %s (run %s)", sum.Month, sum.RunID)
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	counters := fmt.Sprintf("Scanned: %d members%s, %d visits%s, %d claims%s",
		sum.Members.Scanned, scanNote(sum.Members),
		sum.Visits.Scanned, scanNote(sum.Visits),
		sum.Claims.Scanned, scanNote(sum.Claims))
	if err := f.SetCellValue(sheetName, "A2", counters); err != nil {
		return fmt.Errorf("write counters: %w", err)
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 4)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 4)
	if err := f.SetCellStyle(sheetName, "A4", last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sum *reconcile.Summary) error {
	for i, r := range sum.Rows {
		rowNum := i + 5
		amount, _ := r.ClaimsTotalAmount.Float64()
		values := []any{
			r.DisplayName,
			r.AssignedTotal,
			r.AssignedActive,
			r.OnHold,
			r.Completed,
			r.Outstanding,
			r.ClaimsCount,
			amount,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return fmt.Errorf("row cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", rowNum, err)
			}
		}
	}
	return nil
}

// scanNote marks a counter when its scan did not cover the full source.
func scanNote(s reconcile.SourceStats) string {
	switch {
	case s.Partial:
		return " (partial)"
	case s.Truncated:
		return " (truncated)"
	default:
		return ""
	}
}
