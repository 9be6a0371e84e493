package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// XLSX reads one group per row of a worksheet. The first non-empty row is
// the header. Cell text is passed through as formatted by the workbook.
//
// Spreadsheets drop trailing empty cells, so a short row is padded with
// blanks; a row with more cells than the header is malformed.
type XLSX struct {
	name   string
	file   *excelize.File
	rows   *excelize.Rows
	header []string
	row    int
}

// NewXLSX opens the workbook in r and reads sheet, or the first sheet when
// sheet is empty.
func NewXLSX(name string, r io.Reader, sheet string) (*XLSX, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open sheet %q in %s: %w", sheet, name, err)
	}
	return &XLSX{name: name, file: f, rows: rows}, nil
}

// Next returns the group for the next row.
func (x *XLSX) Next() (*core.RawGroup, error) {
	if x.header == nil {
		cells, err := x.nextRow()
		if err != nil {
			return nil, err
		}
		x.header = cleanHeader(cells)
		for i, h := range x.header {
			if h == "" {
				return nil, x.malformed(fmt.Sprintf("column %d has no name", i+1))
			}
		}
	}

	cells, err := x.nextRow()
	if err != nil {
		return nil, err
	}
	if len(cells) > len(x.header) {
		return nil, x.malformed(fmt.Sprintf("%d values for %d columns", len(cells), len(x.header)))
	}

	group := core.NewRawGroup()
	for i, h := range x.header {
		var cell string
		if i < len(cells) {
			cell = strings.TrimSpace(cells[i])
		}
		group.Add(h, cell)
	}
	return group, nil
}

func (x *XLSX) nextRow() ([]string, error) {
	for x.rows.Next() {
		x.row++
		cells, err := x.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", x.name, x.row, err)
		}
		if !emptyRow(cells) {
			return cells, nil
		}
	}
	if err := x.rows.Error(); err != nil {
		return nil, fmt.Errorf("read %s: %w", x.name, err)
	}
	return nil, io.EOF
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (x *XLSX) malformed(reason string) error {
	return &core.MalformedGroupError{Source: x.name, Line: x.row, Reason: reason}
}

// Close releases the workbook.
func (x *XLSX) Close() error {
	if err := x.rows.Close(); err != nil {
		x.file.Close()
		return err
	}
	return x.file.Close()
}
