// Package fetcher opens and parses dealership performance extracts from local
// files and FTP drops.
package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Extract formats understood by the parsers in this package.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Source opens an extract for reading.
type Source interface {
	// Open returns the extract body. The caller must close it.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// FileSource reads extracts from the local filesystem.
type FileSource struct{}

// Open opens the file at path.
func (FileSource) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return f, nil
}

// SourceFor picks the Source for a location: ftp:// URLs go through FTP,
// anything else is treated as a local path.
func SourceFor(location string, timeout time.Duration) Source {
	if strings.HasPrefix(strings.ToLower(location), "ftp://") {
		return NewFTPSource(FTPOptions{Timeout: timeout})
	}
	return FileSource{}
}

// FormatFromName infers the extract format from a file name or URL.
// Unknown extensions default to CSV.
func FormatFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}
