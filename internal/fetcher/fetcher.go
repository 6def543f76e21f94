// Package fetcher reads the tabular files operators hand in: project plans
// and inventory surveys as XLSX, CSV or shapefiles (optionally zipped).
package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header row plus data rows. Row numbers are 1-based positions
// in the source file, kept for audit trails.
type Table struct {
	Header []string
	Rows   []Row
}

// Row is one data row.
type Row struct {
	Number int
	Cells  []string
}

// Get returns the cell at col, or "" when the row is short.
func (r Row) Get(col int) string {
	if col < 0 || col >= len(r.Cells) {
		return ""
	}
	return r.Cells[col]
}

// Options configures ReadTable.
type Options struct {
	// SheetName selects an XLSX sheet; the first sheet is used otherwise.
	SheetName string
	// Delimiter forces a CSV delimiter; it is sniffed from the header
	// line otherwise.
	Delimiter rune
}

// ReadTable reads path according to its extension.
func ReadTable(ctx context.Context, path string, opts Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{SheetName: opts.SheetName})
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: open csv")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f, CSVOptions{Delimiter: opts.Delimiter})
	case ".shp":
		return ReadShapefile(path)
	case ".zip":
		return readZippedShapefile(path)
	}
	return nil, eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
}

func readZippedShapefile(path string) (*Table, error) {
	dir, err := os.MkdirTemp("", "sinaliza-shp-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	shpPath, err := ExtractShapefile(path, dir)
	if err != nil {
		return nil, err
	}
	return ReadShapefile(shpPath)
}

// newTable splits rows into a header and data rows. Leading blank rows are
// skipped, trailing blank cells are dropped, and blank data rows are
// ignored.
func newTable(rows [][]string) *Table {
	t := &Table{}
	for i, cells := range rows {
		cells = trimTrailing(cells)
		if len(cells) == 0 {
			continue
		}
		if t.Header == nil {
			t.Header = cells
			continue
		}
		t.Rows = append(t.Rows, Row{Number: i + 1, Cells: cells})
	}
	return t
}

func trimTrailing(cells []string) []string {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	out := make([]string, end)
	for i := range out {
		out[i] = strings.TrimSpace(cells[i])
	}
	return out
}
