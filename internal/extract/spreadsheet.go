package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// spreadsheetText renders every sheet as a table, prefixed by the sheet name when there are several
func spreadsheetText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var parts []string
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		table := renderTable(rows)
		if len(sheets) > 1 {
			table = fmt.Sprintf("--- Sheet: %s ---\n%s", sheet, table)
		}
		parts = append(parts, table)
	}

	return strings.Join(parts, "\n\n"), nil
}
