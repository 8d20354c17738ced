// Package workbook reads rules master workbooks and request files into
// ordered, header-addressed sheets. Excel workbooks are read with excelize;
// CSV files become a single sheet named after the file.
package workbook

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for file extensions other than xlsx/xlsm/csv.
var ErrUnsupportedFormat = errors.New("unsupported file format: expected .xlsx or .csv")

// ErrEmptyFile is returned when a file has no sheets or no header row.
var ErrEmptyFile = errors.New("empty file")

// Sheet is one table of cells. Rows are padded to the header width.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Workbook is an ordered set of sheets.
type Workbook struct {
	Sheets []Sheet
}

// Sheet returns the sheet whose trimmed name matches name case-insensitively.
func (w *Workbook) Sheet(name string) (*Sheet, bool) {
	want := strings.TrimSpace(name)
	for i := range w.Sheets {
		if strings.EqualFold(strings.TrimSpace(w.Sheets[i].Name), want) {
			return &w.Sheets[i], true
		}
	}
	return nil, false
}

// SheetNames lists sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

// First returns the first sheet or ErrEmptyFile.
func (w *Workbook) First() (*Sheet, error) {
	if len(w.Sheets) == 0 {
		return nil, ErrEmptyFile
	}
	return &w.Sheets[0], nil
}

// Open reads r according to the extension of filename.
func Open(filename string, r io.Reader) (*Workbook, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	case ".csv":
		return ReadCSV(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)), r)
	default:
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedFormat)
	}
}

// ReadXLSX reads every sheet of an Excel workbook. Sheets without a header
// row are kept with no rows so that callers can report them by name.
func ReadXLSX(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, newSheet(name, rows))
	}
	if len(wb.Sheets) == 0 {
		return nil, ErrEmptyFile
	}
	return wb, nil
}

// ReadCSV reads a CSV stream as a single sheet.
func ReadCSV(name string, r io.Reader) (*Workbook, error) {
	cr := csv.NewReader(wrapText(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return &Workbook{Sheets: []Sheet{newSheet(name, records)}}, nil
}

// newSheet takes the first non-blank row as the header and drops blank rows.
func newSheet(name string, rows [][]string) Sheet {
	s := Sheet{Name: name}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if s.Header == nil {
			s.Header = make([]string, len(row))
			for i, h := range row {
				s.Header[i] = strings.TrimSpace(h)
			}
			continue
		}
		s.Rows = append(s.Rows, pad(row, len(s.Header)))
	}
	return s
}

func pad(row []string, width int) []string {
	out := make([]string, width)
	for i := 0; i < width && i < len(row); i++ {
		out[i] = CleanCell(row[i])
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// CleanCell trims whitespace and unwraps Excel text-formula cells (="...").
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
