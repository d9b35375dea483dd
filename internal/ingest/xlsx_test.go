package ingest

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
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Billing": {
			{"Work Request #", "Logged Date", "Units Total Price"},
			{"WR-1001", "2026-01-02", "1250.00"},
			{"WR-2002", "2026-01-03", "300.00"},
		},
	})

	rows, err := ReadXLSX(path, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "WR-1001", rows[0]["Work Request #"])
	assert.Equal(t, "1250.00", rows[0]["Units Total Price"])
	assert.Equal(t, "WR-2002", rows[1]["Work Request #"])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Billing": {
			{"Crew Billing Export", ""},
			{"Generated 2026-01-05", ""},
			{"Work Request #", "CU"},
			{"WR-1001", "CU-204"},
		},
	})

	rows, err := ReadXLSX(path, Options{SkipRows: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "WR-1001", rows[0]["Work Request #"])
	assert.Equal(t, "CU-204", rows[0]["CU"])
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Summary": {{"nothing", "useful"}},
		"Detail": {
			{"Work Request #"},
			{"WR-1001"},
		},
	})

	rows, err := ReadXLSX(path, Options{SheetName: "Detail"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "WR-1001", rows[0]["Work Request #"])
}

func TestReadXLSX_SheetNameNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Billing": {{"a"}},
	})

	_, err := ReadXLSX(path, Options{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_FileMissing(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "gone.xlsx"), Options{})
	assert.Error(t, err)
}

func TestReadFile_DispatchesXLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Billing": {
			{"Work Request #"},
			{"WR-1001"},
		},
	})

	rows, err := ReadFile(path, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
