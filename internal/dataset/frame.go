package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInputNotFound  = errors.New("input file not found")
	ErrMissingColumns = errors.New("missing required columns")
	ErrEmptyDataset   = errors.New("dataset has no rows")
)

// missingTokens are the cell values treated as NA, on top of blank cells.
// The set matches the default NA values of the pandas CSV reader.
var missingTokens = map[string]struct{}{
	"#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {},
	"N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {},
	"n/a": {}, "nan": {}, "null": {},
}

// IsMissing reports whether a raw cell counts as a missing value.
func IsMissing(cell string) bool {
	s := strings.TrimSpace(cell)
	if s == "" {
		return true
	}
	_, ok := missingTokens[s]
	return ok
}

// Frame is a fully loaded CSV table. Rows always have len(Header) cells.
type Frame struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

func NewFrame(header []string, rows [][]string) *Frame {
	f := &Frame{Header: header, Rows: rows}
	f.reindex()
	return f
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.Header))
	for i, name := range f.Header {
		if _, dup := f.index[name]; !dup {
			f.index[name] = i
		}
	}
}

// Len returns the number of data rows.
func (f *Frame) Len() int { return len(f.Rows) }

// ColumnIndex returns the position of a named column.
func (f *Frame) ColumnIndex(name string) (int, bool) {
	i, ok := f.index[name]
	return i, ok
}

// Column returns a copy of the named column's cells.
func (f *Frame) Column(name string) ([]string, error) {
	i, ok := f.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, name)
	}
	out := make([]string, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// SetColumn replaces an existing column or appends a new one.
func (f *Frame) SetColumn(name string, cells []string) error {
	if len(cells) != len(f.Rows) {
		return fmt.Errorf("column %s has %d cells, frame has %d rows", name, len(cells), len(f.Rows))
	}
	i, ok := f.ColumnIndex(name)
	if !ok {
		f.Header = append(f.Header, name)
		f.index[name] = len(f.Header) - 1
		for r := range f.Rows {
			f.Rows[r] = append(f.Rows[r], cells[r])
		}
		return nil
	}
	for r := range f.Rows {
		f.Rows[r][i] = cells[r]
	}
	return nil
}

// Require fails with ErrMissingColumns naming every absent column.
func (f *Frame) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if _, ok := f.index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// Select returns a new frame with only the given columns, in that order.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	if err := f.Require(columns...); err != nil {
		return nil, err
	}
	idx := make([]int, len(columns))
	for j, c := range columns {
		idx[j] = f.index[c]
	}
	rows := make([][]string, len(f.Rows))
	for r, row := range f.Rows {
		out := make([]string, len(idx))
		for j, i := range idx {
			out[j] = row[i]
		}
		rows[r] = out
	}
	return NewFrame(append([]string(nil), columns...), rows), nil
}

// DropMissing returns a new frame without rows that have a missing cell in any
// of the given columns. With no columns every cell is checked.
func (f *Frame) DropMissing(columns ...string) (*Frame, error) {
	var idx []int
	if len(columns) == 0 {
		for i := range f.Header {
			idx = append(idx, i)
		}
	} else {
		if err := f.Require(columns...); err != nil {
			return nil, err
		}
		for _, c := range columns {
			idx = append(idx, f.index[c])
		}
	}

	var rows [][]string
	for _, row := range f.Rows {
		complete := true
		for _, i := range idx {
			if IsMissing(row[i]) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, append([]string(nil), row...))
		}
	}
	return NewFrame(append([]string(nil), f.Header...), rows), nil
}

// Read parses a CSV stream whose first record is the header. Short rows are
// padded with blank cells so missing trailing fields count as NA. Cells are
// kept verbatim; only header names are trimmed.
func Read(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", line, len(record), len(header))
		}
		row := make([]string, len(header))
		copy(row, record)
		rows = append(rows, row)
	}
	return NewFrame(header, rows), nil
}

// Write emits the frame as CSV with a header row and no index column.
func Write(w io.Writer, f *Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range f.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
