package sheet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func buildWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet("Rates")
	require.NoError(t, err)
	for _, row := range rows {
		r := sh.AddRow()
		for _, cell := range row {
			r.AddCell().Value = cell
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestIsXLSX(t *testing.T) {
	data := buildWorkbook(t, [][]string{{"MANUFACTURER", "MODEL"}})
	assert.True(t, IsXLSX(data))

	assert.False(t, IsXLSX([]byte("MANUFACTURER,MODEL\n")))
	assert.False(t, IsXLSX(nil))
	assert.False(t, IsXLSX([]byte{'P', 'K'}))
}

func TestReadXLSXRows(t *testing.T) {
	want := [][]string{
		{"MANUFACTURER", "MODEL", "MONTHLY PAYMENT"},
		{"BMW", "320d", "450"},
		{"AUDI", "A4", "420"},
	}
	data := buildWorkbook(t, want)

	rows, err := ReadXLSXRows(data)
	require.NoError(t, err)
	assert.Equal(t, want, rows)
}

func TestReadXLSXRowsRagged(t *testing.T) {
	data := buildWorkbook(t, [][]string{
		{"MANUFACTURER", "MODEL", "MONTHLY PAYMENT"},
		{"BMW"},
	})

	rows, err := ReadXLSXRows(data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"BMW"}, rows[1])
}

func TestReadXLSXRowsNotAWorkbook(t *testing.T) {
	_, err := ReadXLSXRows([]byte("not a zip"))
	require.Error(t, err)
}
