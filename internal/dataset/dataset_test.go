package dataset

import (
	"fmt"
	"testing"
	"time"

	"github.com/SimonWaldherr/tabflow/internal/formula"
	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

func cols(names ...string) []raster.Column {
	out := make([]raster.Column, len(names))
	for i, n := range names {
		out[i] = raster.Col(n)
	}
	return out
}

func mustRows(t *testing.T, columns []raster.Column, rows [][]value.Value) Dataset {
	t.Helper()
	d, err := FromRows(columns, rows)
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	return d
}

func mustExpr(t *testing.T, src string) formula.Expression {
	t.Helper()
	f, err := formula.Parse(src, formula.English())
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return f.Root
}

// run materializes a dataset synchronously.
func run(t *testing.T, d Dataset) *raster.Raster {
	t.Helper()
	j := job.New(job.Interactive)
	ch := make(chan *raster.Raster, 1)
	ToRaster(d, j, func(r *raster.Raster, err error) {
		if err != nil {
			t.Errorf("ToRaster: %v", err)
			ch <- nil
			return
		}
		ch <- r
	})
	r := <-ch
	if r == nil {
		t.FailNow()
	}
	return r
}

func intRow(vals ...int64) []value.Value {
	out := make([]value.Value, len(vals))
	for i, v := range vals {
		out[i] = value.Int(v)
	}
	return out
}

// numbers builds a one-column dataset of 0..n-1.
func numbers(t *testing.T, n int) Dataset {
	rows := make([][]value.Value, n)
	for i := range rows {
		rows[i] = intRow(int64(i))
	}
	return mustRows(t, cols("n"), rows)
}

func cell(r *raster.Raster, row, col int) value.Value { return r.Cell(row, col) }

func TestLimitOffset(t *testing.T) {
	d := numbers(t, 10)
	r := run(t, Limit(d, 3))
	if r.RowCount() != 3 || !value.Equal(cell(r, 2, 0), value.Int(2)) {
		t.Fatalf("limit: got %d rows", r.RowCount())
	}
	r = run(t, Offset(d, 7))
	if r.RowCount() != 3 || !value.Equal(cell(r, 0, 0), value.Int(7)) {
		t.Fatalf("offset: got %d rows", r.RowCount())
	}
	// Limit larger than the input passes everything.
	if r := run(t, Limit(d, 100)); r.RowCount() != 10 {
		t.Fatalf("oversized limit: got %d rows", r.RowCount())
	}
}

func TestLimitStopsUpstream(t *testing.T) {
	// A large source behind a small limit must not be drained.
	rows := make([][]value.Value, 10*batchSize)
	for i := range rows {
		rows[i] = intRow(int64(i))
	}
	d := Limit(mustRows(t, cols("n"), rows), 2)
	if r := run(t, d); r.RowCount() != 2 {
		t.Fatalf("got %d rows", r.RowCount())
	}
}

func TestFilter(t *testing.T) {
	d := numbers(t, 10)
	r := run(t, Filter(d, mustExpr(t, "n >= 7")))
	if r.RowCount() != 3 {
		t.Fatalf("filter: got %d rows", r.RowCount())
	}
	// Invalid filter results drop the row instead of failing the fetch.
	r = run(t, Filter(d, mustExpr(t, "1/0")))
	if r.RowCount() != 0 {
		t.Fatalf("invalid filter: got %d rows", r.RowCount())
	}
	if r.ColumnCount() != 1 {
		t.Fatalf("invalid filter lost columns")
	}
}

func TestSortStableMultiKey(t *testing.T) {
	d := mustRows(t, cols("grp", "val"), [][]value.Value{
		{value.String("b"), value.Int(1)},
		{value.String("a"), value.Int(2)},
		{value.String("b"), value.Int(0)},
		{value.String("a"), value.Int(1)},
	})
	r := run(t, Sort(d, []Order{
		{Expr: mustExpr(t, "grp")},
		{Expr: mustExpr(t, "val"), Descending: true},
	}))
	want := [][2]string{{"a", "2"}, {"a", "1"}, {"b", "1"}, {"b", "0"}}
	for i, w := range want {
		if cell(r, i, 0).Text() != w[0] || cell(r, i, 1).Text() != w[1] {
			t.Fatalf("row %d = %s/%s, want %s/%s",
				i, cell(r, i, 0).Text(), cell(r, i, 1).Text(), w[0], w[1])
		}
	}
}

func TestDistinct(t *testing.T) {
	d := mustRows(t, cols("a"), [][]value.Value{
		{value.Int(1)}, {value.Int(2)}, {value.Int(1)}, {value.String("1")},
	})
	r := run(t, Distinct(d))
	// 1 and "1" coerce equal, so three rows collapse to two.
	if r.RowCount() != 2 {
		t.Fatalf("distinct: got %d rows", r.RowCount())
	}
}

func TestUnionFillsEmpty(t *testing.T) {
	left := mustRows(t, cols("a", "b"), [][]value.Value{{value.Int(1), value.Int(2)}})
	right := mustRows(t, cols("b", "c"), [][]value.Value{{value.Int(3), value.Int(4)}})
	r := run(t, Union(left, right))
	if r.ColumnCount() != 3 || r.RowCount() != 2 {
		t.Fatalf("union shape: %d cols, %d rows", r.ColumnCount(), r.RowCount())
	}
	if !cell(r, 0, 2).IsEmpty() {
		t.Fatalf("left row should carry Empty for column c")
	}
	if !cell(r, 1, 0).IsEmpty() {
		t.Fatalf("right row should carry Empty for column a")
	}
	if !value.Equal(cell(r, 1, 1), value.Int(3)) {
		t.Fatalf("right row misaligned: %v", cell(r, 1, 1))
	}
}

func TestLeftJoinThousandRows(t *testing.T) {
	n := 1000
	lrows := make([][]value.Value, n)
	rrows := make([][]value.Value, n)
	for i := 0; i < n; i++ {
		x := value.Int(int64(i))
		lrows[i] = []value.Value{x, value.Int(int64(i * 2)), value.String(fmt.Sprintf("l%d", i))}
		rrows[i] = []value.Value{x, value.Int(int64(i * 3)), value.String(fmt.Sprintf("r%d", i))}
	}
	left := mustRows(t, cols("x", "l1", "l2"), lrows)
	right := mustRows(t, cols("x", "r1", "r2"), rrows)
	r := run(t, Join(left, LeftJoin, right, mustExpr(t, "x = #x")))
	if r.RowCount() != n {
		t.Fatalf("join: got %d rows, want %d", r.RowCount(), n)
	}
	if r.ColumnCount() != 5 {
		t.Fatalf("join: got %d columns, want 5", r.ColumnCount())
	}
}

func TestInnerJoinDropsUnmatched(t *testing.T) {
	left := mustRows(t, cols("x"), [][]value.Value{{value.Int(1)}, {value.Int(2)}})
	right := mustRows(t, cols("y"), [][]value.Value{{value.Int(2)}})
	inner := run(t, Join(left, InnerJoin, right, mustExpr(t, "x = #y")))
	if inner.RowCount() != 1 {
		t.Fatalf("inner join: got %d rows", inner.RowCount())
	}
	outer := run(t, Join(left, LeftJoin, right, mustExpr(t, "x = #y")))
	if outer.RowCount() != 2 {
		t.Fatalf("left join: got %d rows", outer.RowCount())
	}
	if !cell(outer, 0, 1).IsEmpty() {
		t.Fatalf("unmatched left row should carry Empty, got %v", cell(outer, 0, 1))
	}
}

func TestSelectColumnsIgnoresMissing(t *testing.T) {
	d := mustRows(t, cols("a", "b", "c"), [][]value.Value{intRow(1, 2, 3)})
	r := run(t, SelectColumns(d, []string{"c", "nope", "A"}))
	if r.ColumnCount() != 2 {
		t.Fatalf("select: got %d columns", r.ColumnCount())
	}
	if !value.Equal(cell(r, 0, 0), value.Int(3)) || !value.Equal(cell(r, 0, 1), value.Int(1)) {
		t.Fatalf("select misprojected: %v %v", cell(r, 0, 0), cell(r, 0, 1))
	}
}

func TestRenameSwap(t *testing.T) {
	d := mustRows(t, cols("a", "b"), [][]value.Value{intRow(1, 2)})
	r := run(t, Rename(d, map[string]string{"a": "b", "b": "a"}))
	got := r.Columns()
	if got[0].Name != "b" || got[1].Name != "a" {
		t.Fatalf("rename swap: %q %q", got[0].Name, got[1].Name)
	}
	// Colliding renames fail the fetch instead of silently merging.
	j := job.New(job.Background)
	ch := make(chan error, 1)
	ToRaster(Rename(d, map[string]string{"a": "b"}), j, func(_ *raster.Raster, err error) {
		ch <- err
	})
	if err := <-ch; err == nil {
		t.Fatalf("colliding rename succeeded")
	}
}

func TestCalculate(t *testing.T) {
	d := mustRows(t, cols("n"), [][]value.Value{intRow(3), intRow(4)})
	r := run(t, Calculate(d, "sq", mustExpr(t, "n*n")))
	if r.ColumnCount() != 2 || !value.Equal(cell(r, 1, 1), value.Int(16)) {
		t.Fatalf("calculate append: %v", cell(r, 1, 1))
	}
	// Replacing an existing column sees the prior value through @.
	r = run(t, Calculate(d, "n", mustExpr(t, "@+10")))
	if r.ColumnCount() != 1 || !value.Equal(cell(r, 0, 0), value.Int(13)) {
		t.Fatalf("calculate replace: %v", cell(r, 0, 0))
	}
}

func TestAggregate(t *testing.T) {
	d := mustRows(t, cols("grp", "val"), [][]value.Value{
		{value.String("a"), value.Int(1)},
		{value.String("b"), value.Int(10)},
		{value.String("a"), value.Int(2)},
		{value.String("b"), value.Int(20)},
	})
	sum, _ := formula.LookupFunction("SUM")
	count, _ := formula.LookupFunction("COUNT")
	r := run(t, Aggregate(d,
		[]Grouping{{Name: "grp", Expr: mustExpr(t, "grp")}},
		[]Aggregation{
			{Name: "total", Expr: mustExpr(t, "val"), Function: sum},
			{Name: "rows", Expr: mustExpr(t, "val"), Function: count},
		}))
	if r.RowCount() != 2 || r.ColumnCount() != 3 {
		t.Fatalf("aggregate shape: %d rows, %d cols", r.RowCount(), r.ColumnCount())
	}
	byGroup := map[string]value.Value{}
	for i := 0; i < r.RowCount(); i++ {
		byGroup[cell(r, i, 0).Text()] = cell(r, i, 1)
	}
	if !value.Equal(byGroup["a"], value.Int(3)) || !value.Equal(byGroup["b"], value.Int(30)) {
		t.Fatalf("aggregate sums: %v", byGroup)
	}
}

func TestTransposeTwiceIsIdentity(t *testing.T) {
	d := mustRows(t, cols("name", "x", "y"), [][]value.Value{
		{value.String("p"), value.Int(1), value.Int(2)},
		{value.String("q"), value.Int(3), value.Int(4)},
	})
	once := run(t, Transpose(d))
	if once.RowCount() != 2 || once.ColumnCount() != 3 {
		t.Fatalf("transpose shape: %d rows, %d cols", once.RowCount(), once.ColumnCount())
	}
	if once.Columns()[1].Name != "p" || cell(once, 0, 0).Text() != "x" {
		t.Fatalf("transpose content: %q %q", once.Columns()[1].Name, cell(once, 0, 0).Text())
	}
	twice := run(t, Transpose(Transpose(d)))
	orig := run(t, d)
	if !rastersEqual(orig, twice) {
		t.Fatalf("double transpose changed the table")
	}
}

func rastersEqual(a, b *raster.Raster) bool {
	if a.RowCount() != b.RowCount() || a.ColumnCount() != b.ColumnCount() {
		return false
	}
	for i, c := range a.Columns() {
		if !c.Equal(b.Columns()[i]) {
			return false
		}
	}
	for i := 0; i < a.RowCount(); i++ {
		for k := 0; k < a.ColumnCount(); k++ {
			if !cellsMatch(a.Cell(i, k), b.Cell(i, k)) {
				return false
			}
		}
	}
	return true
}

func TestRandomSamplesWithoutReplacement(t *testing.T) {
	d := numbers(t, 100)
	r := run(t, Random(d, 10, 42))
	if r.RowCount() != 10 {
		t.Fatalf("random: got %d rows", r.RowCount())
	}
	seen := map[int64]bool{}
	var prev int64 = -1
	for i := 0; i < r.RowCount(); i++ {
		n, _ := cell(r, i, 0).Int()
		if seen[n] {
			t.Fatalf("row %d sampled twice", n)
		}
		if n < prev {
			t.Fatalf("sample not in source order")
		}
		seen[n] = true
		prev = n
	}
	// Requesting more rows than exist passes everything through.
	if r := run(t, Random(d, 1000, 1)); r.RowCount() != 100 {
		t.Fatalf("oversized sample: got %d rows", r.RowCount())
	}
}

func TestExampleBoundsRows(t *testing.T) {
	d := numbers(t, 5000)
	j := job.New(job.Interactive)
	ch := make(chan *raster.Raster, 1)
	Example(d, j, 100, time.Second, func(r *raster.Raster, err error) {
		if err != nil {
			t.Errorf("Example: %v", err)
		}
		ch <- r
	})
	r := <-ch
	if r == nil || r.RowCount() != 100 {
		t.Fatalf("example: got %v", r)
	}
}

type failingSource struct{}

func (failingSource) Columns() ([]raster.Column, error) { return cols("a"), nil }
func (failingSource) Read(j *job.Job, emit func([]value.Value) error) error {
	if err := emit(intRow(1)); err != nil {
		return err
	}
	return fmt.Errorf("stream torn")
}

func TestSourceFailurePropagates(t *testing.T) {
	d := Filter(FromStream(failingSource{}), mustExpr(t, "a > 0"))
	j := job.New(job.Background)
	ch := make(chan error, 1)
	ToRaster(d, j, func(_ *raster.Raster, err error) { ch <- err })
	if err := <-ch; err == nil {
		t.Fatalf("source failure swallowed")
	}
}
