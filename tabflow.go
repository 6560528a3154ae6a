// Package tabflow is a typed, locale-aware tabular data transformation
// engine: read rows from CSV files, SQLite tables, shapefiles or generated
// sequences, transform them through lazily evaluated operator chains driven
// by spreadsheet-style formulas, and materialize the result.
//
// # Values
//
// Every cell is a Value: string, int, double, bool, date, blob, list, the
// explicit Empty, or Invalid for failed computations. Comparison and
// arithmetic coerce between textual and numeric forms, so "1"+2 is 3 and
// "1" equals 1. Invalid never equals anything, including itself.
//
// # Formulas
//
// Formulas are parsed in a locale: function names, decimal separators and
// constants translate between languages while the parse tree stays the same.
//
//	f, _ := tabflow.ParseFormula(`IF([price] > 100; "dear"; "cheap")`, tabflow.English())
//	v, _ := f.Apply(row, nil, tabflow.NewInvalid())
//
// The same formula round-trips to German as WENN([price] > 100; ...).
//
// # Datasets
//
// A Dataset is a lazy row stream. Operators wrap datasets without fetching:
//
//	d := tabflow.FromRaster(r)
//	d = tabflow.Filter(d, expr)
//	d = tabflow.Sort(d, []tabflow.Order{{Expr: key}})
//	d = tabflow.Limit(d, 100)
//	d = tabflow.Optimize(d)
//	tabflow.ToRaster(d, tabflow.NewJob(tabflow.Background), func(r *tabflow.Raster, err error) { ... })
//
// Optimize fuses adjacent operators and pushes translatable work into SQL
// leaves, never changing the observable rows.
//
// # Jobs
//
// Fetches run under a Job: cancellable, priority-tagged, with progress
// observation. Cancelling a job truncates the stream without error.
package tabflow

import (
	"time"

	"github.com/SimonWaldherr/tabflow/internal/dataset"
	"github.com/SimonWaldherr/tabflow/internal/formula"
	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/sequencer"
	"github.com/SimonWaldherr/tabflow/internal/source"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// ============================================================================
// Values
// ============================================================================

// Value is one typed cell.
type Value = value.Value

// Kind enumerates value kinds.
type Kind = value.Kind

const (
	KindInvalid = value.KindInvalid
	KindEmpty   = value.KindEmpty
	KindString  = value.KindString
	KindInt     = value.KindInt
	KindDouble  = value.KindDouble
	KindBool    = value.KindBool
	KindDate    = value.KindDate
	KindBlob    = value.KindBlob
	KindList    = value.KindList
)

// Empty is the present-but-blank value.
var Empty = value.Empty

func NewString(s string) Value    { return value.String(s) }
func NewInt(n int64) Value        { return value.Int(n) }
func NewDouble(f float64) Value   { return value.Double(f) }
func NewBool(b bool) Value        { return value.Bool(b) }
func NewDate(t time.Time) Value   { return value.DateFromTime(t) }
func NewBlob(b []byte) Value      { return value.Blob(b) }
func NewList(items []Value) Value { return value.List(items) }

// NewInvalid marks a failed computation.
func NewInvalid() Value { return value.Invalid }

// ValuesEqual applies the engine's coercing equality.
func ValuesEqual(a, b Value) bool { return value.Equal(a, b) }

// PackEncode and PackDecode implement the comma-separated escape codec used
// for list-in-a-cell values.
func PackEncode(items []string) string { return value.PackEncode(items) }
func PackDecode(s string) []string     { return value.PackDecode(s) }

// ============================================================================
// Formulas
// ============================================================================

// Formula is a parsed expression tied to its source text.
type Formula = formula.Formula

// Expression is one parse tree node.
type Expression = formula.Expression

// Row binds column names to values while a formula evaluates.
type Row = formula.Row

// NewRow pairs columns with one row of values.
func NewRow(columns []Column, values []Value) *Row { return formula.NewRow(columns, values) }

// Locale translates function names, constants and number formats.
type Locale = formula.Locale

func English() *Locale { return formula.English() }
func German() *Locale  { return formula.German() }

// ParseFormula parses source text in the given locale.
func ParseFormula(text string, loc *Locale) (*Formula, error) {
	return formula.Parse(text, loc)
}

// PrepareExpression folds constant and provably equivalent subtrees.
func PrepareExpression(e Expression) Expression { return formula.Prepare(e) }

// ============================================================================
// Rasters and jobs
// ============================================================================

// Raster is an in-memory table.
type Raster = raster.Raster

// Column is a named raster column.
type Column = raster.Column

// Col builds a column from its display name.
func Col(name string) Column { return raster.Col(name) }

// NewRaster builds an empty raster with the given columns.
func NewRaster(columns []Column) (*Raster, error) { return raster.New(columns) }

// Job is one cancellable unit of work.
type Job = job.Job

// Priority tags a job as user-facing or bulk.
type Priority = job.Priority

const (
	Interactive = job.Interactive
	Background  = job.Background
)

// NewJob starts a job with the given priority.
func NewJob(p Priority) *Job { return job.New(p) }

// ============================================================================
// Datasets
// ============================================================================

// Dataset is a lazy row stream.
type Dataset = dataset.Dataset

// Sink receives fetched row batches.
type Sink = dataset.Sink

// Order is one sort key.
type Order = dataset.Order

// Grouping and Aggregation configure Aggregate.
type Grouping = dataset.Grouping
type Aggregation = dataset.Aggregation

// JoinType selects the join flavor.
type JoinType = dataset.JoinType

const (
	LeftJoin  = dataset.LeftJoin
	InnerJoin = dataset.InnerJoin
)

// Dialect abstracts SQL identifier quoting; SQLite matches modernc.org/sqlite.
type Dialect = dataset.Dialect

var SQLite = dataset.SQLite

func FromRaster(r *Raster) Dataset { return dataset.FromRaster(r) }

func Filter(d Dataset, expr Expression) Dataset       { return dataset.Filter(d, expr) }
func Sort(d Dataset, orders []Order) Dataset          { return dataset.Sort(d, orders) }
func Limit(d Dataset, n int) Dataset                  { return dataset.Limit(d, n) }
func Offset(d Dataset, n int) Dataset                 { return dataset.Offset(d, n) }
func Distinct(d Dataset) Dataset                      { return dataset.Distinct(d) }
func Union(left, right Dataset) Dataset               { return dataset.Union(left, right) }
func SelectColumns(d Dataset, names []string) Dataset { return dataset.SelectColumns(d, names) }
func Rename(d Dataset, mapping map[string]string) Dataset {
	return dataset.Rename(d, mapping)
}
func Calculate(d Dataset, column string, expr Expression) Dataset {
	return dataset.Calculate(d, column, expr)
}
func Join(left Dataset, kind JoinType, right Dataset, on Expression) Dataset {
	return dataset.Join(left, kind, right, on)
}
func Aggregate(d Dataset, groups []Grouping, aggs []Aggregation) Dataset {
	return dataset.Aggregate(d, groups, aggs)
}
func Transpose(d Dataset) Dataset                 { return dataset.Transpose(d) }
func Random(d Dataset, n int, seed int64) Dataset { return dataset.Random(d, n, seed) }

// Optimize rewrites a chain into an equivalent cheaper one.
func Optimize(d Dataset) Dataset { return dataset.Optimize(d) }

// ToRaster materializes the full stream.
func ToRaster(d Dataset, j *Job, cb func(*Raster, error)) { dataset.ToRaster(d, j, cb) }

// ExampleRaster materializes a bounded preview: at most maxRows rows, at
// most maxWait wall time, truncating without error at either bound.
func ExampleRaster(d Dataset, j *Job, maxRows int, maxWait time.Duration, cb func(*Raster, error)) {
	dataset.Example(d, j, maxRows, maxWait, cb)
}

// ============================================================================
// Sources
// ============================================================================

// CSVOptions configures delimiter and header detection for CSV sources.
type CSVOptions = source.CSVOptions

// HeaderMode is auto, present or absent.
type HeaderMode = source.HeaderMode

const (
	HeaderAuto    = source.HeaderAuto
	HeaderPresent = source.HeaderPresent
	HeaderAbsent  = source.HeaderAbsent
)

// FromCSVFile streams typed rows from a delimited text file. Gzip input is
// transparent; delimiter and header auto-detect unless forced.
func FromCSVFile(path string, opts CSVOptions) Dataset {
	return dataset.FromStream(source.NewCSVFile(path, opts))
}

// FromShapefile streams shapefile records: one column per attribute plus a
// packed geometry column.
func FromShapefile(path string) Dataset {
	return dataset.FromStream(source.NewShapefile(path))
}

// FromSequence enumerates the strings matched by a restricted regular
// expression pattern as a one-column dataset, in pattern order.
func FromSequence(pattern, column string) (Dataset, error) {
	p, err := sequencer.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return dataset.FromStream(source.NewSequence(p, column)), nil
}

// SequenceCount returns the number of strings a pattern generates. ok is
// false when the count overflows.
func SequenceCount(pattern string) (n uint64, ok bool, err error) {
	p, err := sequencer.Compile(pattern)
	if err != nil {
		return 0, false, err
	}
	n, ok = p.Cardinality()
	return n, ok, nil
}
