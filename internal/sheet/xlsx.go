package sheet

import (
	"bytes"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// xlsxMagic is the ZIP container signature; XLSX files always start with it.
var xlsxMagic = []byte{'P', 'K', 0x03, 0x04}

// IsXLSX reports whether the file bytes look like an XLSX container.
func IsXLSX(data []byte) bool {
	return bytes.HasPrefix(data, xlsxMagic)
}

// ReadXLSXRows decodes the first sheet of an in-memory XLSX file into rows
// of strings, feeding the same resolver/pipeline path as CSV input. The
// xlsx library materializes the workbook, so chunked streaming does not
// apply here; rate sheet workbooks are small compared to raw CSV exports.
func ReadXLSXRows(data []byte) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
