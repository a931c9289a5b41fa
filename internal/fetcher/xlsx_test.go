package fetcher

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

type testSheet struct {
	name string
	rows [][]string
}

func buildTestXLSX(t *testing.T, sheets ...testSheet) *bytes.Reader {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.name)
		require.NoError(t, err)
		for _, rowData := range s.rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return bytes.NewReader(buf.Bytes())
}

func TestReadXLSX_Basic(t *testing.T) {
	r := buildTestXLSX(t, testSheet{"Advisors", [][]string{
		{"Advisor Name", "Advisor", "Labor & Parts"},
		{"Jane Doe", "A1", "1,234.50"},
		{"John Roe", "A2", "980"},
	}})

	rows, err := ReadXLSX(r, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Advisor Name", "Advisor", "Labor & Parts"}, rows[0])
	assert.Equal(t, []string{"Jane Doe", "A1", "1,234.50"}, rows[1])
	assert.Equal(t, []string{"John Roe", "A2", "980"}, rows[2])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	r := buildTestXLSX(t, testSheet{"Sheet1", [][]string{
		{"Service Advisor Performance - March"},
		{"Advisor Name", "Advisor"},
		{"Jane Doe", "A1"},
	}})

	rows, err := ReadXLSX(r, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Advisor Name", "Advisor"}, rows[0])
}

func TestReadXLSX_DropsBlankRowsAndTrims(t *testing.T) {
	r := buildTestXLSX(t, testSheet{"Sheet1", [][]string{
		{"Advisor Name", "Advisor"},
		{"", ""},
		{" Jane Doe ", "A1"},
	}})

	rows, err := ReadXLSX(r, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Jane Doe", "A1"}, rows[1])
}

func TestReadXLSX_SheetName(t *testing.T) {
	r := buildTestXLSX(t,
		testSheet{"Summary", [][]string{{"total", "1"}}},
		testSheet{"Detail", [][]string{{"Advisor", "A1"}}},
	)

	rows, err := ReadXLSX(r, XLSXOptions{SheetName: "Detail"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Advisor", "A1"}, rows[0])
}

func TestReadXLSX_SheetNameNotFound(t *testing.T) {
	r := buildTestXLSX(t, testSheet{"Sheet1", [][]string{{"a"}}})

	_, err := ReadXLSX(r, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestReadXLSX_SheetIndexOutOfRange(t *testing.T) {
	r := buildTestXLSX(t, testSheet{"Sheet1", [][]string{{"a"}}})

	_, err := ReadXLSX(r, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_InvalidWorkbook(t *testing.T) {
	_, err := ReadXLSX(strings.NewReader("this is not a zip archive"), XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open workbook")
}

func TestReadXLSX_EmptySheet(t *testing.T) {
	r := buildTestXLSX(t, testSheet{"Empty", nil})

	rows, err := ReadXLSX(r, XLSXOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
