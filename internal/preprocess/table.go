package preprocess

import (
	"errors"
	"fmt"

	"github.com/theblitlabs/csvtrain/internal/dataset"
)

var ErrNoFeatures = errors.New("no numeric feature columns left")

// Table is the numeric view of a frame: aligned feature and target rows.
type Table struct {
	Features []string
	Targets  []string
	X        [][]float64
	Y        [][]float64
	// Skipped lists non-numeric columns left out of the features.
	Skipped []string
}

func (t *Table) Len() int { return len(t.X) }

// BuildTable drops every row with a missing cell, then takes the target
// columns as Y and every remaining numeric column, minus exclude, as X.
// X and Y are built from the same filtered rows, so they always align.
func BuildTable(f *dataset.Frame, targets []string, exclude ...string) (*Table, error) {
	if err := f.Require(targets...); err != nil {
		return nil, err
	}
	clean, err := f.DropMissing()
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(targets)+len(exclude))
	for _, c := range targets {
		skip[c] = true
	}
	for _, c := range exclude {
		skip[c] = true
	}

	t := &Table{Targets: append([]string(nil), targets...)}
	var featIdx []int
	for i, name := range clean.Header {
		if skip[name] {
			continue
		}
		cells, _ := clean.Column(name)
		if clean.Len() > 0 && !IsNumeric(cells) {
			t.Skipped = append(t.Skipped, name)
			continue
		}
		t.Features = append(t.Features, name)
		featIdx = append(featIdx, i)
	}
	if len(t.Features) == 0 {
		return nil, ErrNoFeatures
	}

	targetIdx := make([]int, len(targets))
	for j, name := range targets {
		targetIdx[j], _ = clean.ColumnIndex(name)
	}

	t.X = make([][]float64, clean.Len())
	t.Y = make([][]float64, clean.Len())
	for r, row := range clean.Rows {
		x := make([]float64, len(featIdx))
		for j, i := range featIdx {
			v, err := ParseFloat(row[i])
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", clean.Header[i], r+1, err)
			}
			x[j] = v
		}
		y := make([]float64, len(targetIdx))
		for j, i := range targetIdx {
			v, err := ParseFloat(row[i])
			if err != nil {
				return nil, fmt.Errorf("target %s row %d: %w", clean.Header[i], r+1, err)
			}
			y[j] = v
		}
		t.X[r] = x
		t.Y[r] = y
	}
	return t, nil
}

// ParseRecord converts one raw fragment record into a feature vector.
func ParseRecord(record []string, width int) ([]float64, error) {
	if len(record) != width {
		return nil, fmt.Errorf("fragment has %d fields, model expects %d", len(record), width)
	}
	out := make([]float64, width)
	for i, cell := range record {
		v, err := ParseFloat(cell)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
