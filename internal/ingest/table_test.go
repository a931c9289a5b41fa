package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestParseTable_CSV(t *testing.T) {
	input := "Advisor Name , Advisor\n\n Jane Doe , A1 \nJohn Roe,A2\n"

	table, err := ParseTable(context.Background(), strings.NewReader(input), "csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"Advisor Name", "Advisor"}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, Row{"Advisor Name": "Jane Doe", "Advisor": "A1"}, table.Rows[0])
	assert.Equal(t, Row{"Advisor Name": "John Roe", "Advisor": "A2"}, table.Rows[1])
}

func TestParseTable_DefaultFormatIsCSV(t *testing.T) {
	table, err := ParseTable(context.Background(), strings.NewReader("a,b\n1,2\n"), "")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)
}

func TestParseTable_Empty(t *testing.T) {
	table, err := ParseTable(context.Background(), strings.NewReader(""), "csv")
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
	assert.Empty(t, table.Header)
}

func TestParseTable_RaggedRowIsStructural(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5\n"

	_, err := ParseTable(context.Background(), strings.NewReader(input), "csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
	assert.Contains(t, err.Error(), "row 3 has 2 fields, header has 3")
}

func TestParseTable_HeaderProblems(t *testing.T) {
	_, err := ParseTable(context.Background(), strings.NewReader("a,,c\n1,2,3\n"), "csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
	assert.Contains(t, err.Error(), "header column 2 is empty")

	_, err = ParseTable(context.Background(), strings.NewReader("a,b,a\n1,2,3\n"), "csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
	assert.Contains(t, err.Error(), `"a" is repeated`)
}

func TestParseTable_MalformedCSV(t *testing.T) {
	_, err := ParseTable(context.Background(), strings.NewReader("a,b\n\"unterminated,2\n"), "csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
}

func TestParseTable_UnsupportedFormat(t *testing.T) {
	_, err := ParseTable(context.Background(), strings.NewReader("a"), "parquet")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStructural))
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestParseTable_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ParseTable(ctx, strings.NewReader("a,b\n1,2\n"), "csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseTable_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Performance")
	require.NoError(t, err)
	for _, cells := range [][]string{
		{"Advisor Name", "Advisor", "Notes"},
		{"Jane Doe", "A1"}, // trailing cell omitted by the spreadsheet
		{"John Roe", "A2", "ok"},
	} {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	table, err := ParseTable(context.Background(), &buf, "xlsx")
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, Row{"Advisor Name": "Jane Doe", "Advisor": "A1", "Notes": ""}, table.Rows[0])
	assert.Equal(t, "ok", table.Rows[1]["Notes"])
}

func TestParseTable_BadWorkbook(t *testing.T) {
	_, err := ParseTable(context.Background(), strings.NewReader("not a workbook"), "xlsx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
}
