package csvload

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// loadWorkbook renders the first sheet of a workbook as CSV text with every cell
// quoted, which is the shape the published CSV exports have.
func (l *Loader) loadWorkbook(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("no sheets found")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return "", fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return "", ErrEmptyFile
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	l.logger.Debug("Rendered workbook sheet", "sheet", sheets[0], "rows", len(rows), "columns", width)
	return Repair(RenderQuoted(rows, width)), nil
}

// RenderQuoted writes rows as CSV lines, quoting every cell and padding rows to width.
func RenderQuoted(rows [][]string, width int) string {
	var sb strings.Builder
	for _, row := range rows {
		for i := 0; i < width; i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			sb.WriteByte('"')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
