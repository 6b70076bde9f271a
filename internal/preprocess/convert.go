package preprocess

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/theblitlabs/csvtrain/internal/dataset"
)

var (
	ErrNotNumeric = errors.New("value is not numeric")
	ErrBadDate    = errors.New("value is not a recognised date")
)

// ParseFloat parses a numeric cell. NaN and Inf are rejected.
func ParseFloat(cell string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, cell)
	}
	return v, nil
}

// IsNumeric reports whether every non-missing cell parses as a float and at
// least one cell is present.
func IsNumeric(cells []string) bool {
	seen := false
	for _, c := range cells {
		if dataset.IsMissing(c) {
			continue
		}
		if _, err := ParseFloat(c); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// CoerceNumeric blanks every cell of the column that does not parse as a
// float, so the row is later dropped as missing.
func CoerceNumeric(f *dataset.Frame, column string) (int, error) {
	cells, err := f.Column(column)
	if err != nil {
		return 0, err
	}
	coerced := 0
	for i, c := range cells {
		if dataset.IsMissing(c) {
			continue
		}
		if _, err := ParseFloat(c); err != nil {
			cells[i] = ""
			coerced++
		}
	}
	return coerced, f.SetColumn(column, cells)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseDate accepts the date layouts commonly found in observation exports.
func ParseDate(cell string) (time.Time, error) {
	s := strings.TrimSpace(cell)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, cell)
}

// DaysSinceEpoch converts a time to fractional days since 1970-01-01 UTC.
func DaysSinceEpoch(t time.Time) float64 {
	return float64(t.UTC().Unix()) / 86400
}

// ConvertDates rewrites a date column in place as days since the Unix epoch.
// Missing cells stay missing; any other unparseable cell is an error.
func ConvertDates(f *dataset.Frame, column string) error {
	cells, err := f.Column(column)
	if err != nil {
		return err
	}
	for i, c := range cells {
		if dataset.IsMissing(c) {
			continue
		}
		t, err := ParseDate(c)
		if err != nil {
			return fmt.Errorf("column %s row %d: %w", column, i+1, err)
		}
		cells[i] = strconv.FormatFloat(DaysSinceEpoch(t), 'f', -1, 64)
	}
	return f.SetColumn(column, cells)
}
