package fetcher

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of leading rows to skip (report titles above the header)
}

// ReadXLSX reads a workbook from r and returns the selected sheet's rows as
// string slices. Rows whose cells are all blank are dropped.
func ReadXLSX(r io.Reader, opts XLSXOptions) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: read workbook")
	}

	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		cells := rowToStrings(row)
		if blankRow(cells) {
			continue
		}
		rows = append(rows, cells)
	}

	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
