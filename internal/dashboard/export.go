package dashboard

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheet     = "Lessons"
)

var exportHeader = []any{"Depth", "ID", "Title", "Type", "Description", "Children Loaded"}

// WriteWorkbook writes nodes and every loaded descendant, depth first, as an
// XLSX workbook with one row per node.
func WriteWorkbook(w io.Writer, courseID string, nodes []lessontree.LessonNode) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Course " + courseID,
		Creator: "pai-dashboard",
	}); err != nil {
		return fmt.Errorf("setting properties: %w", err)
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", "F1", bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	if err := f.SetColWidth(exportSheet, "C", "C", 48); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(exportSheet, "E", "E", 64); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	row := 2
	var walk func(nodes []lessontree.LessonNode, depth int) error
	walk = func(nodes []lessontree.LessonNode, depth int) error {
		for _, n := range nodes {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			values := []any{depth, string(n.ID), n.Title, string(n.Type), n.Description, n.ChildrenLoaded}
			if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
			row++
			if err := walk(lessontree.EmbeddedChildren(n), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(nodes, 0); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
