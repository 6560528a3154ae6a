package dataset

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/SimonWaldherr/tabflow/internal/formula"
	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// Dialect abstracts the identifier quoting of the backing database.
type Dialect struct {
	Name       string
	QuoteIdent func(string) string
}

// SQLite is the dialect of modernc.org/sqlite, the driver the CLI registers.
var SQLite = Dialect{
	Name: "sqlite",
	QuoteIdent: func(s string) string {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	},
}

// sqlData is a leaf over one database table. Operator pushdown accumulates
// query clauses instead of fetching rows; the optimizer produces these
// through the with* methods, so a fully pushable chain runs as one query.
type sqlData struct {
	db      *sql.DB
	dialect Dialect
	table   string

	selects  []string // projected column names, empty means all
	where    []string // conjunctive conditions
	args     []any
	orderBy  []string
	distinct bool
	limit    *int64
	offset   *int64
}

// FromSQL wraps a database table as a Dataset leaf. Passing column names
// pins the projection up front, which also lets the optimizer push later
// projections into the query; without them the column set is discovered
// from the database.
func FromSQL(db *sql.DB, table string, dialect Dialect, columns ...string) Dataset {
	return &sqlData{db: db, dialect: dialect, table: table, selects: columns}
}

func (d *sqlData) clone() *sqlData {
	c := *d
	c.selects = append([]string(nil), d.selects...)
	c.where = append([]string(nil), d.where...)
	c.args = append([]any(nil), d.args...)
	c.orderBy = append([]string(nil), d.orderBy...)
	return &c
}

// query renders the accumulated clauses as a single SELECT.
func (d *sqlData) query() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if d.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(d.selects) == 0 {
		b.WriteString("*")
	} else {
		for i, name := range d.selects {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.dialect.QuoteIdent(name))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(d.dialect.QuoteIdent(d.table))
	if len(d.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(d.where, " AND "))
	}
	if len(d.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(d.orderBy, ", "))
	}
	if d.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *d.limit)
	}
	if d.offset != nil {
		if d.limit == nil {
			// SQL requires a LIMIT clause before OFFSET.
			b.WriteString(" LIMIT -1")
		}
		fmt.Fprintf(&b, " OFFSET %d", *d.offset)
	}
	return b.String(), d.args
}

func (d *sqlData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	if len(d.selects) > 0 {
		cols := make([]raster.Column, len(d.selects))
		for i, name := range d.selects {
			cols[i] = raster.Col(name)
		}
		cb(cols, nil)
		return
	}
	q := "SELECT * FROM " + d.dialect.QuoteIdent(d.table) + " LIMIT 0"
	rows, err := d.db.QueryContext(j.Context(), q)
	if err != nil {
		cb(nil, fmt.Errorf("sql columns: %w", err))
		return
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		cb(nil, fmt.Errorf("sql columns: %w", err))
		return
	}
	cols := make([]raster.Column, len(names))
	for i, name := range names {
		cols[i] = raster.Col(name)
	}
	cb(cols, nil)
}

func (d *sqlData) Fetch(j *job.Job, sink Sink) {
	q, args := d.query()
	rows, err := d.db.QueryContext(j.Context(), q, args...)
	if err != nil {
		sink(nil, true, fmt.Errorf("sql fetch: %w", err))
		return
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		sink(nil, true, fmt.Errorf("sql fetch: %w", err))
		return
	}
	e := newEmitter(sink)
	scan := make([]any, len(names))
	holders := make([]any, len(names))
	for i := range scan {
		scan[i] = &holders[i]
	}
	n := 0
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			e.fail(fmt.Errorf("sql fetch: %w", err))
			return
		}
		row := make([]value.Value, len(names))
		for i := range holders {
			row[i] = scanned(holders[i])
		}
		e.push(row)
		n++
		if n%batchSize == 0 && j.Cancelled() {
			e.finish()
			return
		}
	}
	if err := rows.Err(); err != nil && !j.Cancelled() {
		e.fail(fmt.Errorf("sql fetch: %w", err))
		return
	}
	e.finish()
}

// scanned converts a database/sql scan result to an engine value.
func scanned(v any) value.Value {
	switch x := v.(type) {
	case nil:
		return value.Empty
	case int64:
		return value.Int(x)
	case float64:
		return value.Double(x)
	case bool:
		return value.Bool(x)
	case string:
		return value.String(x)
	case []byte:
		return value.String(string(x))
	}
	return value.String(fmt.Sprint(v))
}

// ------------------------------ pushdown ------------------------------

// withFilter folds a filter expression into the WHERE clause. ok is false
// when the expression has no SQL translation, when a pushed LIMIT/OFFSET
// already pins which rows survive, or when the expression references a
// column outside the pinned projection (in memory that reference is
// Invalid; the physical column still exists in the table).
func (d *sqlData) withFilter(expr formula.Expression) (*sqlData, bool) {
	if d.limit != nil || d.offset != nil {
		return nil, false
	}
	if len(d.selects) > 0 && !refsWithin(expr, d.selects) {
		return nil, false
	}
	cond, args, ok := translateExpr(expr, d.dialect)
	if !ok {
		return nil, false
	}
	c := d.clone()
	c.where = append(c.where, cond)
	c.args = append(c.args, args...)
	return c, true
}

// withSort folds sort keys into ORDER BY. Only column references translate.
// A pre-existing LIMIT or OFFSET pins row selection, so sorting may not be
// reordered below it.
func (d *sqlData) withSort(orders []Order) (*sqlData, bool) {
	if d.limit != nil || d.offset != nil {
		return nil, false
	}
	clauses := make([]string, len(orders))
	for i, o := range orders {
		ref, ok := o.Expr.(*formula.Sibling)
		if !ok {
			return nil, false
		}
		if len(d.selects) > 0 && !refsWithin(ref, d.selects) {
			return nil, false
		}
		dir := " ASC"
		if o.Descending {
			dir = " DESC"
		}
		clauses[i] = d.dialect.QuoteIdent(ref.Column.Name) + dir
	}
	c := d.clone()
	// Later-applied sorts dominate earlier ones.
	c.orderBy = append(clauses, c.orderBy...)
	return c, true
}

func (d *sqlData) withLimit(n int) *sqlData {
	c := d.clone()
	v := int64(n)
	if c.limit == nil || *c.limit > v {
		c.limit = &v
	}
	return c
}

func (d *sqlData) withOffset(n int) (*sqlData, bool) {
	// OFFSET below an existing LIMIT would change which rows survive.
	if d.limit != nil {
		return nil, false
	}
	c := d.clone()
	v := int64(n)
	if c.offset != nil {
		v += *c.offset
	}
	c.offset = &v
	return c, true
}

func (d *sqlData) withProjection(names []string) (*sqlData, bool) {
	// Projection after LIMIT/OFFSET/ORDER BY is safe; after DISTINCT it
	// would change row multiplicity.
	if d.distinct {
		return nil, false
	}
	current := d.selects
	if len(current) == 0 {
		// Unknown physical columns; requested names must be trusted as-is
		// only when the optimizer resolved them, so decline here.
		return nil, false
	}
	var kept []string
	for _, name := range names {
		for _, have := range current {
			if raster.Col(name).Key() == raster.Col(have).Key() {
				kept = append(kept, have)
				break
			}
		}
	}
	if len(kept) == 0 {
		// An all-unknown projection yields zero columns, but empty selects
		// render as SELECT *.
		return nil, false
	}
	c := d.clone()
	c.selects = kept
	return c, true
}

// refsWithin reports whether every column reference in expr is among the
// pinned projection.
func refsWithin(expr formula.Expression, selects []string) bool {
	switch e := expr.(type) {
	case *formula.Sibling:
		for _, s := range selects {
			if raster.Col(s).Key() == e.Column.Key() {
				return true
			}
		}
		return false
	case *formula.Binary:
		return refsWithin(e.Left, selects) && refsWithin(e.Right, selects)
	case *formula.Call:
		for _, a := range e.Args {
			if !refsWithin(a, selects) {
				return false
			}
		}
		return true
	}
	return true
}

func (d *sqlData) withDistinct() (*sqlData, bool) {
	if d.limit != nil || d.offset != nil {
		return nil, false
	}
	c := d.clone()
	c.distinct = true
	return c, true
}

// translateExpr renders an expression as a SQL condition. Literals become
// placeholders. Only constructs whose SQL semantics match the engine's are
// translated; everything else declines and evaluates in memory.
func translateExpr(expr formula.Expression, dialect Dialect) (string, []any, bool) {
	switch e := expr.(type) {
	case *formula.Literal:
		arg, ok := literalArg(e.Value)
		if !ok {
			return "", nil, false
		}
		return "?", []any{arg}, true

	case *formula.Sibling:
		return dialect.QuoteIdent(e.Column.Name), nil, true

	case *formula.Binary:
		op, ok := sqlBinaryOp(e.Op)
		if !ok {
			return "", nil, false
		}
		l, largs, ok := translateExpr(e.Left, dialect)
		if !ok {
			return "", nil, false
		}
		r, rargs, ok := translateExpr(e.Right, dialect)
		if !ok {
			return "", nil, false
		}
		return "(" + l + " " + op + " " + r + ")", append(largs, rargs...), true

	case *formula.Call:
		return translateCall(e, dialect)
	}
	return "", nil, false
}

func translateCall(c *formula.Call, dialect Dialect) (string, []any, bool) {
	var op string
	switch c.Function.Name {
	case "AND":
		op = " AND "
	case "OR":
		op = " OR "
	case "NOT":
		inner, args, ok := translateExpr(c.Args[0], dialect)
		if !ok {
			return "", nil, false
		}
		return "(NOT " + inner + ")", args, true
	default:
		return "", nil, false
	}
	parts := make([]string, len(c.Args))
	var args []any
	for i, a := range c.Args {
		p, pargs, ok := translateExpr(a, dialect)
		if !ok {
			return "", nil, false
		}
		parts[i] = p
		args = append(args, pargs...)
	}
	return "(" + strings.Join(parts, op) + ")", args, true
}

func sqlBinaryOp(op formula.BinaryOp) (string, bool) {
	switch op {
	case formula.OpAdd:
		return "+", true
	case formula.OpSub:
		return "-", true
	case formula.OpMul:
		return "*", true
	case formula.OpEqual:
		return "=", true
	case formula.OpNotEqual:
		return "<>", true
	case formula.OpGreater:
		return ">", true
	case formula.OpGreaterEqual:
		return ">=", true
	case formula.OpLesser:
		return "<", true
	case formula.OpLesserEqual:
		return "<=", true
	}
	// Division and modulo differ from engine coercion (always-double, zero
	// gives Invalid); concat and the match operators have no portable form.
	return "", false
}

func literalArg(v value.Value) (any, bool) {
	switch v.Kind() {
	case value.KindInt:
		n, _ := v.Int()
		return n, true
	case value.KindDouble:
		f, _ := v.Double()
		return f, true
	case value.KindString:
		return v.Text(), true
	case value.KindBool:
		b, _ := v.Bool()
		if b {
			return int64(1), true
		}
		return int64(0), true
	}
	// Empty maps to NULL whose comparison semantics diverge; dates, lists
	// and blobs have no single portable encoding.
	return nil, false
}
