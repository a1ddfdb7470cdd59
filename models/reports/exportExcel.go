package reports

import (
	"fmt"

	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/xuri/excelize/v2"
)

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func passLabel(c models.MetricCheck) string {
	switch {
	case c.Skipped:
		return "skipped"
	case c.Passed:
		return "pass"
	default:
		return "fail"
	}
}

func writeChecks(f *excelize.File, sheet string, row int, month string, checks []models.MetricCheck) (int, error) {
	for _, c := range checks {
		if err := setRow(f, sheet, row, month, c.Metric, c.Target.String(), c.Actual.String(), c.Delta.String(), c.DeltaPc, passLabel(c)); err != nil {
			return row, err
		}
		row++
	}
	return row, nil
}

// ExportVerificationExcel renders a verification report with one sheet per month breakdown
// and one for the aggregate checks.
func ExportVerificationExcel(report *models.VerificationReport) (*excelize.File, error) {
	if report == nil {
		return nil, fmt.Errorf("no verification report")
	}
	f := excelize.NewFile()
	const months, aggregate = "Months", "Aggregate"
	if err := f.SetSheetName("Sheet1", months); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(aggregate); err != nil {
		return nil, err
	}
	headings := []interface{}{"Month", "Metric", "Target", "Actual", "Delta", "Delta %", "Result"}
	for _, sheet := range []string{months, aggregate} {
		if err := setRow(f, sheet, 1, headings...); err != nil {
			return nil, err
		}
	}

	row := 2
	for _, m := range report.Months {
		var err error
		if row, err = writeChecks(f, months, row, m.Month, m.Checks); err != nil {
			return nil, err
		}
	}
	if _, err := writeChecks(f, aggregate, 2, "total", report.Aggregate); err != nil {
		return nil, err
	}
	overall := "fail"
	if report.Passed {
		overall = "pass"
	}
	last := len(report.Aggregate) + 3
	if err := setRow(f, aggregate, last, "overall", overall, "count tolerance", report.Tolerance.CountTolerance, "value tolerance", report.Tolerance.ValueTolerance); err != nil {
		return nil, err
	}
	return f, nil
}

// ExportPatchDiffExcel renders the before/after comparison of a patch.
func ExportPatchDiffExcel(diff *models.PatchDiff) (*excelize.File, error) {
	if diff == nil {
		return nil, fmt.Errorf("no patch diff")
	}
	f := excelize.NewFile()
	const sheet = "Diff"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := setRow(f, sheet, 1, "Month", "Metric", "Before", "After", "Delta", "Target"); err != nil {
		return nil, err
	}
	row := 2
	for _, m := range diff.Months {
		for _, d := range m.Metrics {
			target := ""
			if d.Target != nil {
				target = d.Target.String()
			}
			if err := setRow(f, sheet, row, m.Month, d.Metric, d.Before.String(), d.After.String(), d.Delta.String(), target); err != nil {
				return nil, err
			}
			row++
		}
	}
	return f, nil
}
