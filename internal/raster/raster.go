// Package raster implements the concrete in-memory table of the engine.
//
// What: A Raster owns an ordered list of columns and an ordered list of rows
// (one Value per column). Column lookup is case-insensitive and a table never
// carries two columns whose names collide under case folding.
// How: Rows are [][]value.Value for compactness; a folded-name index
// accelerates lookups, mirroring how the storage layer this grew out of kept
// its tables. Schema changes rebuild the index.
// Why: Every materializing dataset operator needs one mutable, cheaply
// addressable table representation; concurrency is the caller's problem (a
// single coordinating job serializes mutation).
package raster

import (
	"fmt"

	"golang.org/x/text/cases"

	"github.com/SimonWaldherr/tabflow/internal/value"
)

// folder performs Unicode case folding for column-name comparison.
var folder = cases.Fold()

// Column is a name wrapper with case-insensitive equality.
type Column struct {
	Name string
}

// Col is a convenience constructor.
func Col(name string) Column { return Column{Name: name} }

// Key returns the folded form used for hashing and map lookups.
func (c Column) Key() string { return folder.String(c.Name) }

// Equal reports case-insensitive name equality.
func (c Column) Equal(o Column) bool { return c.Key() == o.Key() }

// Raster is a mutable in-memory table. It is not safe for concurrent
// mutation; callers serialize access through a single coordinating job.
type Raster struct {
	columns []Column
	index   map[string]int
	rows    [][]Value
}

// Value aliases the engine value type so row signatures read naturally.
type Value = value.Value

// New creates an empty raster with the given columns. Duplicate column names
// (case-insensitive) are rejected.
func New(columns []Column) (*Raster, error) {
	r := &Raster{}
	if err := r.setColumns(columns); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is New for static schemas in tests and fixtures.
func MustNew(columns []Column) *Raster {
	r, err := New(columns)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Raster) setColumns(columns []Column) error {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		k := c.Key()
		if _, dup := index[k]; dup {
			return fmt.Errorf("raster: duplicate column %q", c.Name)
		}
		index[k] = i
	}
	r.columns = append([]Column(nil), columns...)
	r.index = index
	return nil
}

// Columns returns the ordered column list. The slice is a copy.
func (r *Raster) Columns() []Column {
	return append([]Column(nil), r.columns...)
}

// ColumnCount returns the width of the table.
func (r *Raster) ColumnCount() int { return len(r.columns) }

// RowCount returns the number of rows.
func (r *Raster) RowCount() int { return len(r.rows) }

// ColumnIndex finds a column by name, case-insensitively; -1 when absent.
func (r *Raster) ColumnIndex(name string) int {
	if i, ok := r.index[Col(name).Key()]; ok {
		return i
	}
	return -1
}

// Row returns row i. The slice must not be mutated by callers.
func (r *Raster) Row(i int) []Value { return r.rows[i] }

// Rows returns all rows. The outer slice is a copy; rows are shared.
func (r *Raster) Rows() [][]Value {
	return append([][]Value(nil), r.rows...)
}

// Cell returns the value at (row, col).
func (r *Raster) Cell(row, col int) Value { return r.rows[row][col] }

// SetCell replaces the value at (row, col).
func (r *Raster) SetCell(row, col int, v Value) { r.rows[row][col] = v }

// AddRows appends rows, padding short rows with Empty and truncating long
// ones to the column count, so a partially decoded record can never leave a
// ragged table behind.
func (r *Raster) AddRows(rows [][]Value) {
	w := len(r.columns)
	for _, row := range rows {
		fitted := make([]Value, w)
		for i := 0; i < w; i++ {
			if i < len(row) {
				fitted[i] = row[i]
			} else {
				fitted[i] = value.Empty
			}
		}
		r.rows = append(r.rows, fitted)
	}
}

// AddColumns appends columns, padding existing rows with Empty. Duplicates
// are rejected and leave the raster untouched.
func (r *Raster) AddColumns(columns []Column) error {
	next := append(r.Columns(), columns...)
	if err := r.setColumns(next); err != nil {
		return err
	}
	for i, row := range r.rows {
		padded := make([]Value, len(next))
		copy(padded, row)
		for j := len(row); j < len(next); j++ {
			padded[j] = value.Empty
		}
		r.rows[i] = padded
	}
	return nil
}

// Clone returns a writable deep copy; rasters are never implicitly shared
// across independent chains.
func (r *Raster) Clone() *Raster {
	cp, _ := New(r.columns)
	cp.rows = make([][]Value, len(r.rows))
	for i, row := range r.rows {
		cp.rows[i] = append([]Value(nil), row...)
	}
	return cp
}
