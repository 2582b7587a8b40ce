package marksheet

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Marksheet"

var exportHeader = []interface{}{"Subject", "Obtained", "Maximum", "Percentage", "Source"}

// ExportXLSX writes the marksheet as a single-sheet spreadsheet.
func ExportXLSX(ms Marksheet, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating style")
	}

	lines := [][]interface{}{
		{"Student", ms.StudentName},
		{"Student ID", ms.StudentID},
		{"Template", ms.TemplateName},
		{"Class", ms.ClassName},
		{},
		exportHeader,
	}
	headerRow := len(lines)
	for _, r := range ms.Rows {
		lines = append(lines, []interface{}{r.Subject, r.Obtained, r.Maximum, r.Percentage, r.Source})
	}
	lines = append(lines, []interface{}{"Total", ms.Obtained, ms.Maximum, ms.Percentage})
	totalRow := len(lines)

	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(exportSheet, cell, &line); err != nil {
			return errors.Wrapf(err, "writing row %d", i+1)
		}
	}

	for _, row := range []int{headerRow, totalRow} {
		first, _ := excelize.CoordinatesToCellName(1, row)
		last, _ := excelize.CoordinatesToCellName(len(exportHeader), row)
		if err = f.SetCellStyle(exportSheet, first, last, bold); err != nil {
			return errors.Wrap(err, "styling sheet")
		}
	}
	if err = f.SetColWidth(exportSheet, "A", "A", 28); err != nil {
		return errors.Wrap(err, "sizing columns")
	}

	if err = f.Write(w); err != nil {
		return errors.Wrap(err, "writing spreadsheet")
	}
	return nil
}
