package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_FirstSheet(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"FRS Id", "Reporting Year"},
			{"110000123", "2023"},
		},
	})

	header, rows, err := ReadXLSX(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"FRS Id", "Reporting Year"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, "110000123", rows[0][0])
}

func TestReadXLSX_NamedSheet(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Summary":         {{"ignore"}},
		"Direct Emitters": {{"FRS Id"}, {"110000456"}},
	})

	header, rows, err := ReadXLSX(path, "Direct Emitters")
	require.NoError(t, err)
	assert.Equal(t, []string{"FRS Id"}, header)
	require.Len(t, rows, 1)
}

func TestReadXLSX_SheetNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})
	_, _, err := ReadXLSX(path, "Missing")
	assert.Error(t, err)
}

func TestReadXLSX_FileNotFound(t *testing.T) {
	_, _, err := ReadXLSX(filepath.Join(t.TempDir(), "absent.xlsx"), "")
	assert.Error(t, err)
}
