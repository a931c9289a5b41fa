package ingest

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/advisor-reports/internal/fetcher"
)

// Row is one extract data row keyed by column header.
type Row map[string]string

// Table is a parsed extract: the header row plus one Row per data line.
type Table struct {
	Header []string
	Rows   []Row
}

// ParseTable reads a CSV or XLSX extract into a Table. The first non-blank
// row is the header; blank lines are skipped and fields are trimmed.
// A header with empty or repeated names, or a data row wider or narrower
// than the header, is a structural error and nothing is returned.
func ParseTable(ctx context.Context, r io.Reader, format string) (*Table, error) {
	var raw [][]string
	switch strings.ToLower(format) {
	case "", fetcher.FormatCSV:
		rows, err := readCSV(ctx, r)
		if err != nil {
			return nil, err
		}
		raw = rows
	case fetcher.FormatXLSX:
		rows, err := fetcher.ReadXLSX(r, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(ErrStructural, "ingest: unreadable workbook: %v", err)
		}
		raw = padRagged(rows)
	default:
		return nil, eris.Errorf("ingest: unsupported format %q", format)
	}

	if len(raw) == 0 {
		return &Table{}, nil
	}

	header := raw[0]
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if name == "" {
			return nil, eris.Wrapf(ErrStructural, "ingest: header column %d is empty", i+1)
		}
		if seen[name] {
			return nil, eris.Wrapf(ErrStructural, "ingest: header column %q is repeated", name)
		}
		seen[name] = true
	}

	t := &Table{Header: header, Rows: make([]Row, 0, len(raw)-1)}
	for n, fields := range raw[1:] {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ingest: parse cancelled")
		}
		if len(fields) != len(header) {
			// Line numbers are 1-based and count the header.
			return nil, eris.Wrapf(ErrStructural, "ingest: row %d has %d fields, header has %d", n+2, len(fields), len(header))
		}
		row := make(Row, len(header))
		for i, name := range header {
			row[name] = fields[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func readCSV(ctx context.Context, r io.Reader) ([][]string, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})

	var rows [][]string
	for fields := range rowCh {
		if blank(fields) {
			continue
		}
		rows = append(rows, fields)
	}
	for err := range errCh {
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "ingest: parse cancelled")
			}
			return nil, eris.Wrapf(ErrStructural, "ingest: malformed csv: %v", err)
		}
	}
	return rows, nil
}

// padRagged extends workbook rows to the header width. Spreadsheets omit
// trailing empty cells, so short rows are not an error there; extra
// non-blank cells still are.
func padRagged(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	width := len(rows[0])
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		for len(row) > width && row[len(row)-1] == "" {
			row = row[:len(row)-1]
		}
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return rows
}

func blank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
