package dataset

import (
	"database/sql"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"
)

// sqlLeaf builds a query-only leaf; the db is never touched because these
// tests stop before Fetch.
func sqlLeaf(columns ...string) Dataset {
	return FromSQL(nil, "orders", SQLite, columns...)
}

func wantQuery(t *testing.T, d Dataset, q string, args ...any) {
	t.Helper()
	leaf, ok := d.(*sqlData)
	if !ok {
		t.Fatalf("expected full pushdown, got %T", d)
	}
	got, gotArgs := leaf.query()
	if got != q {
		t.Fatalf("query mismatch:\ngot  %s\nwant %s", got, q)
	}
	if len(args) == 0 {
		args = nil
	}
	if gotArgs != nil && len(gotArgs) == 0 {
		gotArgs = nil
	}
	if !reflect.DeepEqual(gotArgs, args) {
		t.Fatalf("args mismatch: got %v want %v", gotArgs, args)
	}
}

func TestSQLPushdownFilterSortLimit(t *testing.T) {
	d := Limit(
		Sort(
			Filter(sqlLeaf(), mustExpr(t, "price > 100")),
			[]Order{{Expr: mustExpr(t, "price"), Descending: true}},
		),
		10,
	)
	wantQuery(t, Optimize(d),
		`SELECT * FROM "orders" WHERE ("price" > ?) ORDER BY "price" DESC LIMIT 10`,
		int64(100))
}

func TestSQLPushdownOffsetWithoutLimit(t *testing.T) {
	d := Offset(sqlLeaf(), 5)
	wantQuery(t, Optimize(d), `SELECT * FROM "orders" LIMIT -1 OFFSET 5`)
}

func TestSQLPushdownDistinctAndProjection(t *testing.T) {
	d := Distinct(SelectColumns(sqlLeaf("customer", "price", "region"), []string{"region"}))
	wantQuery(t, Optimize(d), `SELECT DISTINCT "region" FROM "orders"`)
}

func TestSQLPushdownConjunction(t *testing.T) {
	d := Filter(Filter(sqlLeaf(), mustExpr(t, "price > 100")), mustExpr(t, `region = "west"`))
	wantQuery(t, Optimize(d),
		`SELECT * FROM "orders" WHERE ("price" > ?) AND ("region" = ?)`,
		int64(100), "west")
}

func TestSQLPushdownDeclinesDivision(t *testing.T) {
	// Division coerces to double and yields an error value on zero, which
	// SQL does not reproduce, so the filter stays in memory.
	d := Optimize(Filter(sqlLeaf(), mustExpr(t, "price / 2 > 50")))
	f, ok := d.(*filterData)
	if !ok {
		t.Fatalf("expected in-memory filter, got %T", d)
	}
	wantQuery(t, f.src, `SELECT * FROM "orders"`)
}

func TestSQLPushdownSortDeclinesAfterLimit(t *testing.T) {
	d := Optimize(Sort(Limit(sqlLeaf(), 10), []Order{{Expr: mustExpr(t, "price")}}))
	s, ok := d.(*sortData)
	if !ok {
		t.Fatalf("expected in-memory sort, got %T", d)
	}
	wantQuery(t, s.src, `SELECT * FROM "orders" LIMIT 10`)
}

func TestSQLPushdownOffsetDeclinesAfterLimit(t *testing.T) {
	d := Optimize(Offset(Limit(sqlLeaf(), 10), 3))
	o, ok := d.(*offsetData)
	if !ok {
		t.Fatalf("expected in-memory offset, got %T", d)
	}
	wantQuery(t, o.src, `SELECT * FROM "orders" LIMIT 10`)
}

func TestSQLPushdownProjectionNeedsPinnedColumns(t *testing.T) {
	// Without pinned columns the physical names are unknown, so the
	// projection runs in memory.
	d := Optimize(SelectColumns(sqlLeaf(), []string{"region"}))
	if _, ok := d.(*selectData); !ok {
		t.Fatalf("expected in-memory projection, got %T", d)
	}
}

// ordersDB opens an in-memory table: x 1..10, flag 1 for x <= 5 else 0.
func ordersDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE orders (x INTEGER, flag INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 1; i <= 10; i++ {
		flag := 0
		if i <= 5 {
			flag = 1
		}
		if _, err := db.Exec(`INSERT INTO orders VALUES (?, ?)`, i, flag); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return db
}

func TestSQLFilterDeclinesAfterLimit(t *testing.T) {
	db := ordersDB(t)
	// Filtering below a pushed LIMIT would run before the row cut instead
	// of after it.
	d := Filter(Limit(FromSQL(db, "orders", SQLite), 3), mustExpr(t, "x > 1"))
	opt := Optimize(d)
	f, ok := opt.(*filterData)
	if !ok {
		t.Fatalf("expected in-memory filter, got %T", opt)
	}
	wantQuery(t, f.src, `SELECT * FROM "orders" LIMIT 3`)
	optimizedMatches(t, d)
	if got := run(t, opt).RowCount(); got != 2 {
		t.Fatalf("filter after limit kept %d rows, want 2", got)
	}
}

func TestSQLFilterDeclinesOutsideProjection(t *testing.T) {
	db := ordersDB(t)
	// The projection drops flag, so referencing it evaluates to Invalid
	// per row; the physical column must not sneak back in through WHERE.
	d := Filter(
		SelectColumns(FromSQL(db, "orders", SQLite, "x", "flag"), []string{"x"}),
		mustExpr(t, "flag = 1"),
	)
	opt := Optimize(d)
	if _, ok := opt.(*filterData); !ok {
		t.Fatalf("expected in-memory filter, got %T", opt)
	}
	optimizedMatches(t, d)
	if got := run(t, opt).RowCount(); got != 0 {
		t.Fatalf("filter on projected-away column kept %d rows, want 0", got)
	}
}

func TestSQLSortDeclinesOutsideProjection(t *testing.T) {
	d := Optimize(Sort(
		SelectColumns(sqlLeaf("x", "flag"), []string{"x"}),
		[]Order{{Expr: mustExpr(t, "flag")}},
	))
	if _, ok := d.(*sortData); !ok {
		t.Fatalf("expected in-memory sort, got %T", d)
	}
}

func TestSQLEmptyProjectionDeclines(t *testing.T) {
	db := ordersDB(t)
	// No requested name matches the pinned columns: the result has zero
	// columns, which SELECT * cannot express.
	d := SelectColumns(FromSQL(db, "orders", SQLite, "x", "flag"), []string{"zzz"})
	opt := Optimize(d)
	if _, ok := opt.(*selectData); !ok {
		t.Fatalf("expected in-memory projection, got %T", opt)
	}
	optimizedMatches(t, d)
	if got := run(t, opt).ColumnCount(); got != 0 {
		t.Fatalf("unknown projection yielded %d columns, want 0", got)
	}
}

func TestSQLPushdownEquivalence(t *testing.T) {
	db := ordersDB(t)
	leaf := func() Dataset { return FromSQL(db, "orders", SQLite) }
	pinned := func() Dataset { return FromSQL(db, "orders", SQLite, "x", "flag") }
	chains := []struct {
		name string
		d    Dataset
	}{
		{"filter sort limit", Limit(
			Sort(Filter(leaf(), mustExpr(t, "x > 2")),
				[]Order{{Expr: mustExpr(t, "x"), Descending: true}}),
			3,
		)},
		{"offset after filter", Offset(Filter(leaf(), mustExpr(t, "flag = 1")), 2)},
		{"distinct projection", Distinct(SelectColumns(pinned(), []string{"flag"}))},
		{"filter inside projection", Filter(SelectColumns(pinned(), []string{"x"}), mustExpr(t, "x > 8"))},
		{"limit then offset", Offset(Limit(leaf(), 5), 2)},
	}
	for _, c := range chains {
		d := c.d
		t.Run(c.name, func(t *testing.T) { optimizedMatches(t, d) })
	}
}

func TestSQLLaterSortDominates(t *testing.T) {
	d := Sort(
		Sort(sqlLeaf(), []Order{{Expr: mustExpr(t, "price")}}),
		[]Order{{Expr: mustExpr(t, "region")}},
	)
	wantQuery(t, Optimize(d),
		`SELECT * FROM "orders" ORDER BY "region" ASC, "price" ASC`)
}
