package preprocess

import (
	"sort"

	"github.com/theblitlabs/csvtrain/internal/dataset"
)

// OneHotEncoder expands a categorical column into one indicator column per
// category. Categories are sorted so column order is stable across runs.
type OneHotEncoder struct {
	Column     string   `json:"column"`
	Categories []string `json:"categories"`
}

// FitOneHot collects the distinct non-missing categories of a column.
func FitOneHot(f *dataset.Frame, column string) (*OneHotEncoder, error) {
	cells, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	unique := map[string]struct{}{}
	for _, c := range cells {
		if dataset.IsMissing(c) {
			continue
		}
		unique[c] = struct{}{}
	}
	cats := make([]string, 0, len(unique))
	for c := range unique {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return &OneHotEncoder{Column: column, Categories: cats}, nil
}

// FeatureNames returns "<column>_<category>" for each category.
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		names[i] = e.Column + "_" + c
	}
	return names
}

// Encode returns the indicator vector for one value. Unknown or missing
// values encode as all zeros.
func (e *OneHotEncoder) Encode(value string) []float64 {
	vec := make([]float64, len(e.Categories))
	if dataset.IsMissing(value) {
		return vec
	}
	if i := sort.SearchStrings(e.Categories, value); i < len(e.Categories) && e.Categories[i] == value {
		vec[i] = 1
	}
	return vec
}

// Transform appends the indicator columns to the frame. Rows whose source
// value is missing get blank indicators so they are dropped with the row.
func (e *OneHotEncoder) Transform(f *dataset.Frame) error {
	cells, err := f.Column(e.Column)
	if err != nil {
		return err
	}
	cols := make([][]string, len(e.Categories))
	for j := range cols {
		cols[j] = make([]string, len(cells))
	}
	for i, c := range cells {
		missing := dataset.IsMissing(c)
		vec := e.Encode(c)
		for j, v := range vec {
			switch {
			case missing:
				cols[j][i] = ""
			case v == 1:
				cols[j][i] = "1"
			default:
				cols[j][i] = "0"
			}
		}
	}
	for j, name := range e.FeatureNames() {
		if err := f.SetColumn(name, cols[j]); err != nil {
			return err
		}
	}
	return nil
}
