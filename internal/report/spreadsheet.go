package report

import (
	"fmt"
	"strings"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/problems"

	"github.com/xuri/excelize/v2"
)

// maxCellLength is the excel limit on the length of a cell.
const maxCellLength = 32767

var spreadsheetHeader = []any{"Entity ID", "Label", "Problems"}

// WriteOpenProblems writes one sheet per kind listing the open markers.
// Kinds without markers get an empty sheet so the layout stays stable.
func WriteOpenProblems(path string, open map[domain.Kind][]problems.OpenMarker) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return fmt.Errorf("failed to create cell style: %w", err)
	}

	for i, kind := range domain.KnownKinds() {
		sheet := string(kind)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}

		if err := f.SetSheetRow(sheet, "A1", &spreadsheetHeader); err != nil {
			return fmt.Errorf("failed to write header of %s: %w", sheet, err)
		}
		if err := f.SetCellStyle(sheet, "A1", "C1", bold); err != nil {
			return fmt.Errorf("failed to style header of %s: %w", sheet, err)
		}
		if err := f.SetColWidth(sheet, "B", "B", 40); err != nil {
			return fmt.Errorf("failed to size columns of %s: %w", sheet, err)
		}
		if err := f.SetColWidth(sheet, "C", "C", 100); err != nil {
			return fmt.Errorf("failed to size columns of %s: %w", sheet, err)
		}

		for row, m := range open[kind] {
			cell, err := excelize.CoordinatesToCellName(1, row+2)
			if err != nil {
				return err
			}
			dump := m.Dump
			if len(dump) > maxCellLength {
				dump = strings.ToValidUTF8(dump[:maxCellLength-3], "") + "..."
			}
			values := []any{m.EntityID, m.Label, dump}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return fmt.Errorf("failed to write row of %s: %w", sheet, err)
			}
			end, _ := excelize.CoordinatesToCellName(3, row+2)
			if err := f.SetCellStyle(sheet, cell, end, wrap); err != nil {
				return fmt.Errorf("failed to style row of %s: %w", sheet, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
