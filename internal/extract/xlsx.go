package extract

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// extractXLSX renders every sheet of a workbook as text. Each sheet opens
// with a header line and each row becomes one line of space-joined non-empty
// cells, which keeps bill-of-quantities tables readable for the analyzers.
func extractXLSX(data []byte) (string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", eris.Wrap(err, "extract: open xlsx")
	}

	var sb strings.Builder
	for i, sheet := range f.Sheets {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("=== Sheet: " + sheet.Name + " ===\n")
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				if v := strings.TrimSpace(cell.String()); v != "" {
					cells = append(cells, v)
				}
			}
			if len(cells) > 0 {
				sb.WriteString(strings.Join(cells, " ") + "\n")
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
