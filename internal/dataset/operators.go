package dataset

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/SimonWaldherr/tabflow/internal/formula"
	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// ------------------------------ limit / offset ------------------------------

type limitData struct {
	src Dataset
	n   int
}

// Limit passes through the first n rows.
func Limit(d Dataset, n int) Dataset {
	if n < 0 {
		n = 0
	}
	return &limitData{src: d, n: n}
}

func (d *limitData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	d.src.Columns(j, cb)
}

func (d *limitData) Fetch(j *job.Job, sink Sink) {
	e := newEmitter(sink)
	if d.n == 0 {
		e.finish()
		return
	}
	child := childJob(j)
	defer child.Cancel()
	remaining := d.n
	d.src.Fetch(child, func(batch [][]value.Value, finished bool, err error) {
		if e.done {
			return
		}
		if err != nil {
			e.fail(err)
			return
		}
		if len(batch) > remaining {
			batch = batch[:remaining]
		}
		e.pushAll(batch)
		remaining -= len(batch)
		if remaining == 0 {
			e.finish()
			child.Cancel()
			return
		}
		if finished {
			e.finish()
		}
	})
	// A cancelled source truncates; close out the downstream contract.
	e.finish()
}

type offsetData struct {
	src Dataset
	n   int
}

// Offset skips the first n rows.
func Offset(d Dataset, n int) Dataset {
	if n < 0 {
		n = 0
	}
	return &offsetData{src: d, n: n}
}

func (d *offsetData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	d.src.Columns(j, cb)
}

func (d *offsetData) Fetch(j *job.Job, sink Sink) {
	e := newEmitter(sink)
	skip := d.n
	d.src.Fetch(j, func(batch [][]value.Value, finished bool, err error) {
		if e.done {
			return
		}
		if err != nil {
			e.fail(err)
			return
		}
		if skip > 0 {
			if len(batch) <= skip {
				skip -= len(batch)
				batch = nil
			} else {
				batch = batch[skip:]
				skip = 0
			}
		}
		e.pushAll(batch)
		if finished {
			e.finish()
		}
	})
	e.finish()
}

// ------------------------------ filter ------------------------------

type filterData struct {
	src  Dataset
	expr formula.Expression
}

// Filter retains rows where expr evaluates truthy. Invalid or unevaluable
// results drop the row.
func Filter(d Dataset, expr formula.Expression) Dataset {
	return &filterData{src: d, expr: expr}
}

func (d *filterData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	d.src.Columns(j, cb)
}

func (d *filterData) Fetch(j *job.Job, sink Sink) {
	cols, err := columnsOf(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	e := newEmitter(sink)
	d.src.Fetch(j, func(batch [][]value.Value, finished bool, err error) {
		if e.done {
			return
		}
		if err != nil {
			e.fail(err)
			return
		}
		for _, row := range batch {
			ctx := &formula.Context{Row: formula.NewRow(cols, row)}
			if d.expr.Apply(ctx).Truthy() {
				e.push(row)
			}
		}
		if finished {
			e.finish()
		}
	})
	e.finish()
}

// ------------------------------ sort ------------------------------

// Order is one sort key. Rows compare by the expression's value per row;
// incomparable pairs keep their relative order.
type Order struct {
	Expr       formula.Expression
	Descending bool
}

type sortData struct {
	src    Dataset
	orders []Order
}

// Sort stably sorts by the given keys, first key most significant.
func Sort(d Dataset, orders []Order) Dataset {
	return &sortData{src: d, orders: orders}
}

func (d *sortData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	d.src.Columns(j, cb)
}

func (d *sortData) Fetch(j *job.Job, sink Sink) {
	cols, err := columnsOf(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	rows, err := fetchAll(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	// Precompute the key tuple per row so expressions run once each.
	keys := make([][]value.Value, len(rows))
	for i, row := range rows {
		ctx := &formula.Context{Row: formula.NewRow(cols, row)}
		tuple := make([]value.Value, len(d.orders))
		for k, o := range d.orders {
			tuple[k] = o.Expr.Apply(ctx)
		}
		keys[i] = tuple
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := keys[idx[a]], keys[idx[b]]
		for k, o := range d.orders {
			c, ok := value.Compare(ta[k], tb[k])
			if !ok || c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	e := newEmitter(sink)
	for _, i := range idx {
		if j.Cancelled() {
			break
		}
		e.push(rows[i])
	}
	e.finish()
}

// ------------------------------ distinct ------------------------------

type distinctData struct {
	src Dataset
}

// Distinct removes rows whose every cell matches an earlier row. Matching is
// structural, so two Invalid cells match each other here even though Invalid
// never equals itself in formula evaluation.
func Distinct(d Dataset) Dataset {
	return &distinctData{src: d}
}

func (d *distinctData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	d.src.Columns(j, cb)
}

func (d *distinctData) Fetch(j *job.Job, sink Sink) {
	rows, err := fetchAll(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	seen := make(map[string][][]value.Value)
	e := newEmitter(sink)
	for _, row := range rows {
		key := rowKey(row)
		dup := false
		for _, prev := range seen[key] {
			if rowsMatch(prev, row) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[key] = append(seen[key], row)
		e.push(row)
	}
	e.finish()
}

// rowKey buckets rows by cell hashes; rowsMatch settles collisions.
func rowKey(row []value.Value) string {
	var b strings.Builder
	for _, v := range row {
		fmt.Fprintf(&b, "%x,", v.Hash())
	}
	return b.String()
}

func rowsMatch(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !cellsMatch(a[i], b[i]) {
			return false
		}
	}
	return true
}

func cellsMatch(a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return a.Kind() != value.KindInvalid && b.Kind() != value.KindInvalid && value.Equal(a, b)
	}
	if a.IsInvalid() {
		return true
	}
	return value.Equal(a, b)
}

// ------------------------------ union ------------------------------

type unionData struct {
	left, right Dataset
}

// Union concatenates two datasets column-wise by name. Rows from a side
// lacking a column carry Empty for it.
func Union(left, right Dataset) Dataset {
	return &unionData{left: left, right: right}
}

func (d *unionData) unionColumns(j *job.Job) ([]raster.Column, []raster.Column, []raster.Column, error) {
	lcols, err := columnsOf(j, d.left)
	if err != nil {
		return nil, nil, nil, err
	}
	rcols, err := columnsOf(j, d.right)
	if err != nil {
		return nil, nil, nil, err
	}
	merged := append([]raster.Column(nil), lcols...)
	have := make(map[string]bool, len(lcols))
	for _, c := range lcols {
		have[c.Key()] = true
	}
	for _, c := range rcols {
		if !have[c.Key()] {
			have[c.Key()] = true
			merged = append(merged, c)
		}
	}
	return merged, lcols, rcols, nil
}

func (d *unionData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	merged, _, _, err := d.unionColumns(j)
	cb(merged, err)
}

func (d *unionData) Fetch(j *job.Job, sink Sink) {
	merged, lcols, rcols, err := d.unionColumns(j)
	if err != nil {
		sink(nil, true, err)
		return
	}
	e := newEmitter(sink)
	emitSide := func(side Dataset, sideCols []raster.Column) error {
		// Maps merged column position to the side's column position.
		mapping := make([]int, len(merged))
		for i, c := range merged {
			mapping[i] = -1
			for k, sc := range sideCols {
				if c.Equal(sc) {
					mapping[i] = k
					break
				}
			}
		}
		var ferr error
		side.Fetch(j, func(batch [][]value.Value, finished bool, err error) {
			if err != nil {
				ferr = err
				return
			}
			for _, row := range batch {
				out := make([]value.Value, len(merged))
				for i, src := range mapping {
					if src >= 0 && src < len(row) {
						out[i] = row[src]
					} else {
						out[i] = value.Empty
					}
				}
				e.push(out)
			}
		})
		return ferr
	}
	if err := emitSide(d.left, lcols); err != nil {
		e.fail(err)
		return
	}
	if err := emitSide(d.right, rcols); err != nil {
		e.fail(err)
		return
	}
	e.finish()
}

// ------------------------------ join ------------------------------

// JoinType selects join semantics.
type JoinType int

const (
	// LeftJoin keeps every left row; unmatched rows carry Empty on the right.
	LeftJoin JoinType = iota
	// InnerJoin keeps only matched rows.
	InnerJoin
)

type joinData struct {
	left, right Dataset
	kind        JoinType
	on          formula.Expression
}

// Join matches left rows (sibling references) against right rows (foreign
// references) with the given condition.
func Join(left Dataset, kind JoinType, right Dataset, on formula.Expression) Dataset {
	return &joinData{left: left, right: right, kind: kind, on: on}
}

// joinShape resolves output columns: all left columns, then the right
// columns whose names do not collide with a left column.
func (d *joinData) joinShape(j *job.Job) (out, lcols, rcols []raster.Column, rkeep []int, err error) {
	lcols, err = columnsOf(j, d.left)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	rcols, err = columnsOf(j, d.right)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	taken := make(map[string]bool, len(lcols))
	for _, c := range lcols {
		taken[c.Key()] = true
	}
	out = append([]raster.Column(nil), lcols...)
	for i, c := range rcols {
		if !taken[c.Key()] {
			out = append(out, c)
			rkeep = append(rkeep, i)
		}
	}
	return out, lcols, rcols, rkeep, nil
}

func (d *joinData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	out, _, _, _, err := d.joinShape(j)
	cb(out, err)
}

func (d *joinData) Fetch(j *job.Job, sink Sink) {
	out, lcols, rcols, rkeep, err := d.joinShape(j)
	if err != nil {
		sink(nil, true, err)
		return
	}
	rightRows, err := fetchAll(j, d.right)
	if err != nil {
		sink(nil, true, err)
		return
	}
	e := newEmitter(sink)
	combine := func(left, right []value.Value) []value.Value {
		row := make([]value.Value, 0, len(out))
		row = append(row, left...)
		for _, ri := range rkeep {
			if right != nil && ri < len(right) {
				row = append(row, right[ri])
			} else {
				row = append(row, value.Empty)
			}
		}
		return row
	}
	var ferr error
	d.left.Fetch(j, func(batch [][]value.Value, finished bool, err error) {
		if err != nil {
			ferr = err
			return
		}
		for _, lrow := range batch {
			matched := false
			ctx := &formula.Context{Row: formula.NewRow(lcols, lrow)}
			for _, rrow := range rightRows {
				ctx.Foreign = formula.NewRow(rcols, rrow)
				if d.on.Apply(ctx).Truthy() {
					matched = true
					e.push(combine(lrow, rrow))
				}
			}
			if !matched && d.kind == LeftJoin {
				e.push(combine(lrow, nil))
			}
		}
	})
	if ferr != nil {
		e.fail(ferr)
		return
	}
	e.finish()
}

// ------------------------------ projection / rename ------------------------------

type selectData struct {
	src   Dataset
	names []string
}

// SelectColumns projects and reorders columns by name. Names missing from
// the input are ignored.
func SelectColumns(d Dataset, names []string) Dataset {
	return &selectData{src: d, names: names}
}

// selection maps requested names to source positions, dropping unknowns and
// duplicate requests.
func (d *selectData) selection(src []raster.Column) (cols []raster.Column, idx []int) {
	used := make(map[string]bool, len(d.names))
	for _, name := range d.names {
		key := raster.Col(name).Key()
		if used[key] {
			continue
		}
		for i, c := range src {
			if c.Key() == key {
				used[key] = true
				cols = append(cols, c)
				idx = append(idx, i)
				break
			}
		}
	}
	return cols, idx
}

func (d *selectData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	src, err := columnsOf(j, d.src)
	if err != nil {
		cb(nil, err)
		return
	}
	cols, _ := d.selection(src)
	cb(cols, nil)
}

func (d *selectData) Fetch(j *job.Job, sink Sink) {
	src, err := columnsOf(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	_, idx := d.selection(src)
	e := newEmitter(sink)
	d.src.Fetch(j, func(batch [][]value.Value, finished bool, err error) {
		if e.done {
			return
		}
		if err != nil {
			e.fail(err)
			return
		}
		for _, row := range batch {
			out := make([]value.Value, len(idx))
			for k, i := range idx {
				if i < len(row) {
					out[k] = row[i]
				} else {
					out[k] = value.Empty
				}
			}
			e.push(out)
		}
		if finished {
			e.finish()
		}
	})
	e.finish()
}

type renameData struct {
	src     Dataset
	mapping map[string]string
}

// Rename renames columns atomically, so swaps and cycles work. Source names
// absent from the input are ignored. The result must remain free of
// case-insensitive duplicates.
func Rename(d Dataset, mapping map[string]string) Dataset {
	byKey := make(map[string]string, len(mapping))
	for from, to := range mapping {
		byKey[raster.Col(from).Key()] = to
	}
	return &renameData{src: d, mapping: byKey}
}

func (d *renameData) renamed(src []raster.Column) ([]raster.Column, error) {
	out := make([]raster.Column, len(src))
	seen := make(map[string]bool, len(src))
	for i, c := range src {
		if to, ok := d.mapping[c.Key()]; ok {
			c = raster.Col(to)
		}
		if seen[c.Key()] {
			return nil, fmt.Errorf("rename: duplicate column %q", c.Name)
		}
		seen[c.Key()] = true
		out[i] = c
	}
	return out, nil
}

func (d *renameData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	src, err := columnsOf(j, d.src)
	if err != nil {
		cb(nil, err)
		return
	}
	cols, err := d.renamed(src)
	cb(cols, err)
}

func (d *renameData) Fetch(j *job.Job, sink Sink) {
	src, err := columnsOf(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	if _, err := d.renamed(src); err != nil {
		sink(nil, true, err)
		return
	}
	d.src.Fetch(j, sink)
}

// ------------------------------ calculate ------------------------------

type calculateData struct {
	src    Dataset
	column string
	expr   formula.Expression
}

// Calculate computes a column per row. An existing column of that name is
// replaced in place, with its prior value available through the identity
// reference; otherwise the column is appended.
func Calculate(d Dataset, column string, expr formula.Expression) Dataset {
	return &calculateData{src: d, column: column, expr: expr}
}

func (d *calculateData) shape(src []raster.Column) ([]raster.Column, int) {
	key := raster.Col(d.column).Key()
	for i, c := range src {
		if c.Key() == key {
			return src, i
		}
	}
	out := append(append([]raster.Column(nil), src...), raster.Col(d.column))
	return out, len(src)
}

func (d *calculateData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	src, err := columnsOf(j, d.src)
	if err != nil {
		cb(nil, err)
		return
	}
	cols, _ := d.shape(src)
	cb(cols, nil)
}

func (d *calculateData) Fetch(j *job.Job, sink Sink) {
	src, err := columnsOf(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	cols, target := d.shape(src)
	e := newEmitter(sink)
	d.src.Fetch(j, func(batch [][]value.Value, finished bool, err error) {
		if e.done {
			return
		}
		if err != nil {
			e.fail(err)
			return
		}
		for _, row := range batch {
			out := make([]value.Value, len(cols))
			copy(out, row)
			for i := len(row); i < len(cols); i++ {
				out[i] = value.Empty
			}
			ctx := &formula.Context{
				Row:      formula.NewRow(src, row),
				Previous: out[target],
			}
			out[target] = d.expr.Apply(ctx)
			e.push(out)
		}
		if finished {
			e.finish()
		}
	})
	e.finish()
}

// ------------------------------ aggregate ------------------------------

// Grouping is one group-by key with its output column name.
type Grouping struct {
	Name string
	Expr formula.Expression
}

// Aggregation reduces the expression values of one group through a formula
// aggregate such as SUM or MEDIAN.
type Aggregation struct {
	Name     string
	Expr     formula.Expression
	Function *formula.Function
}

type aggregateData struct {
	src    Dataset
	groups []Grouping
	aggs   []Aggregation
}

// Aggregate groups rows by the grouping expressions and reduces each
// aggregation per group. With no groupings the whole input is one group.
func Aggregate(d Dataset, groups []Grouping, aggs []Aggregation) Dataset {
	return &aggregateData{src: d, groups: groups, aggs: aggs}
}

func (d *aggregateData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	cols := make([]raster.Column, 0, len(d.groups)+len(d.aggs))
	for _, g := range d.groups {
		cols = append(cols, raster.Col(g.Name))
	}
	for _, a := range d.aggs {
		cols = append(cols, raster.Col(a.Name))
	}
	cb(cols, nil)
}

// group accumulates one key tuple's argument values per aggregation.
type group struct {
	key  []value.Value
	args [][]value.Value
}

// groupTable keeps insertion order so output order is deterministic.
type groupTable struct {
	order  []string
	groups map[string]*group
}

func newGroupTable() *groupTable {
	return &groupTable{groups: make(map[string]*group)}
}

func (t *groupTable) get(id string, key []value.Value, naggs int) *group {
	g, ok := t.groups[id]
	if !ok {
		g = &group{key: key, args: make([][]value.Value, naggs)}
		t.groups[id] = g
		t.order = append(t.order, id)
	}
	return g
}

func (t *groupTable) merge(other *groupTable) *groupTable {
	for _, id := range other.order {
		og := other.groups[id]
		g := t.get(id, og.key, len(og.args))
		for i := range og.args {
			g.args[i] = append(g.args[i], og.args[i]...)
		}
	}
	return t
}

func (d *aggregateData) Fetch(j *job.Job, sink Sink) {
	cols, err := columnsOf(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	rows, err := fetchAll(j, d.src)
	if err != nil {
		sink(nil, true, err)
		return
	}
	table, err := job.MapReduce(j, rows,
		func(chunk [][]value.Value) (*groupTable, error) {
			t := newGroupTable()
			for _, row := range chunk {
				ctx := &formula.Context{Row: formula.NewRow(cols, row)}
				key := make([]value.Value, len(d.groups))
				for i, g := range d.groups {
					key[i] = g.Expr.Apply(ctx)
				}
				g := t.get(groupID(key), key, len(d.aggs))
				for i, a := range d.aggs {
					g.args[i] = append(g.args[i], a.Expr.Apply(ctx))
				}
			}
			return t, nil
		},
		func(acc, part *groupTable) *groupTable {
			if acc == nil {
				return part
			}
			return acc.merge(part)
		})
	if err != nil {
		sink(nil, true, err)
		return
	}
	e := newEmitter(sink)
	if table != nil {
		for _, id := range table.order {
			g := table.groups[id]
			out := make([]value.Value, 0, len(d.groups)+len(d.aggs))
			out = append(out, g.key...)
			for i, a := range d.aggs {
				out = append(out, a.Function.Apply(g.args[i]))
			}
			e.push(out)
		}
	}
	e.finish()
}

// groupID is a collision-safe textual key for a group tuple.
func groupID(key []value.Value) string {
	var b strings.Builder
	for _, v := range key {
		fmt.Fprintf(&b, "%d:%q;", v.Kind(), v.Text())
	}
	return b.String()
}

// ------------------------------ transpose ------------------------------

type transposeData struct {
	src Dataset
}

// Transpose swaps the row and column axes. The header participates in the
// swap: output column names come from the input's first column, and the
// input's column names become the first output column. Applying Transpose
// twice restores the original table.
func Transpose(d Dataset) Dataset {
	return &transposeData{src: d}
}

// transposed materializes the input and flips the full grid including the
// header row.
func (d *transposeData) transposed(j *job.Job) ([]raster.Column, [][]value.Value, error) {
	cols, err := columnsOf(j, d.src)
	if err != nil {
		return nil, nil, err
	}
	rows, err := fetchAll(j, d.src)
	if err != nil {
		return nil, nil, err
	}
	if len(cols) == 0 {
		return nil, nil, nil
	}
	outCols := make([]raster.Column, 1+len(rows))
	outCols[0] = cols[0]
	for i, row := range rows {
		name := ""
		if len(row) > 0 {
			name = row[0].Text()
		}
		outCols[1+i] = raster.Col(name)
	}
	if err := dedupeColumns(outCols); err != nil {
		return nil, nil, err
	}
	outRows := make([][]value.Value, len(cols)-1)
	for c := 1; c < len(cols); c++ {
		out := make([]value.Value, 1+len(rows))
		out[0] = value.String(cols[c].Name)
		for i, row := range rows {
			if c < len(row) {
				out[1+i] = row[c]
			} else {
				out[1+i] = value.Empty
			}
		}
		outRows[c-1] = out
	}
	return outCols, outRows, nil
}

// dedupeColumns suffixes case-insensitive duplicates and blanks so the
// result is a valid column set.
func dedupeColumns(cols []raster.Column) error {
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("column%d", i+1)
		}
		for n := 2; seen[raster.Col(name).Key()]; n++ {
			name = fmt.Sprintf("%s_%d", c.Name, n)
		}
		cols[i] = raster.Col(name)
		seen[cols[i].Key()] = true
	}
	return nil
}

func (d *transposeData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	cols, _, err := d.transposed(j)
	cb(cols, err)
}

func (d *transposeData) Fetch(j *job.Job, sink Sink) {
	_, rows, err := d.transposed(j)
	if err != nil {
		sink(nil, true, err)
		return
	}
	e := newEmitter(sink)
	e.pushAll(rows)
	e.finish()
}

// ------------------------------ random ------------------------------

type randomData struct {
	src Dataset
	n   int
	rnd *rand.Rand
}

// Random selects n rows uniformly without replacement via reservoir
// sampling, preserving their source order. Fewer than n input rows pass
// through unchanged. seed fixes the sample for tests; pass a time-derived
// seed for real use.
func Random(d Dataset, n int, seed int64) Dataset {
	return &randomData{src: d, n: n, rnd: rand.New(rand.NewSource(seed))}
}

func (d *randomData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	d.src.Columns(j, cb)
}

func (d *randomData) Fetch(j *job.Job, sink Sink) {
	e := newEmitter(sink)
	if d.n <= 0 {
		e.finish()
		return
	}
	// Reservoir of source indices; rows kept alongside.
	type sample struct {
		index int
		row   []value.Value
	}
	var reservoir []sample
	seen := 0
	var ferr error
	d.src.Fetch(j, func(batch [][]value.Value, finished bool, err error) {
		if err != nil {
			ferr = err
			return
		}
		for _, row := range batch {
			if len(reservoir) < d.n {
				reservoir = append(reservoir, sample{index: seen, row: row})
			} else if k := d.rnd.Intn(seen + 1); k < d.n {
				reservoir[k] = sample{index: seen, row: row}
			}
			seen++
		}
	})
	if ferr != nil {
		e.fail(ferr)
		return
	}
	sort.Slice(reservoir, func(a, b int) bool { return reservoir[a].index < reservoir[b].index })
	for _, s := range reservoir {
		e.push(s.row)
	}
	e.finish()
}
