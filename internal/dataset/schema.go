package dataset

import (
	"fmt"
	"strings"
)

type ColumnKind string

const (
	KindNumeric  ColumnKind = "numeric"
	KindCategory ColumnKind = "category"
	KindDate     ColumnKind = "date"
)

type ColumnSpec struct {
	Name string
	Kind ColumnKind
}

// Schema is the column contract a command expects from its input.
type Schema struct {
	Name    string
	Columns []ColumnSpec
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Check verifies the frame carries every declared column.
func (s Schema) Check(f *Frame) error {
	if err := f.Require(s.Names()...); err != nil {
		return fmt.Errorf("schema %s: %w", s.Name, err)
	}
	return nil
}

// String renders the schema as name(column:kind, ...) for logs.
func (s Schema) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + ":" + string(c.Kind)
	}
	return s.Name + "(" + strings.Join(parts, ", ") + ")"
}

// ObservationSchema is the species observation export the training commands
// and the clean command are built around.
func ObservationSchema(date, category, lat, lon string) Schema {
	return Schema{
		Name: "observation",
		Columns: []ColumnSpec{
			{Name: date, Kind: KindDate},
			{Name: category, Kind: KindCategory},
			{Name: lat, Kind: KindNumeric},
			{Name: lon, Kind: KindNumeric},
		},
	}
}

// CoordinateSchema only requires the latitude/longitude target pair.
func CoordinateSchema(lat, lon string) Schema {
	return Schema{
		Name: "coordinates",
		Columns: []ColumnSpec{
			{Name: lat, Kind: KindNumeric},
			{Name: lon, Kind: KindNumeric},
		},
	}
}

// TargetSchema requires a single numeric target column.
func TargetSchema(target string) Schema {
	return Schema{
		Name:    "target",
		Columns: []ColumnSpec{{Name: target, Kind: KindNumeric}},
	}
}
