package dataset

import (
	"github.com/SimonWaldherr/tabflow/internal/formula"
	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// Optimize rewrites a chain into an equivalent cheaper one: adjacent
// reducible operators fuse, filter expressions fold, filters hoist above
// sorts, and fully translatable prefixes collapse into a single query on a
// SQL leaf. Observable rows and columns never change; only the evaluation
// path does.
func Optimize(d Dataset) Dataset {
	switch op := d.(type) {
	case *limitData:
		src := Optimize(op.src)
		if inner, ok := src.(*limitData); ok {
			n := op.n
			if inner.n < n {
				n = inner.n
			}
			return Optimize(&limitData{src: inner.src, n: n})
		}
		if leaf, ok := src.(*sqlData); ok {
			return leaf.withLimit(op.n)
		}
		return &limitData{src: src, n: op.n}

	case *offsetData:
		src := Optimize(op.src)
		if inner, ok := src.(*offsetData); ok {
			return Optimize(&offsetData{src: inner.src, n: op.n + inner.n})
		}
		if leaf, ok := src.(*sqlData); ok {
			if pushed, ok := leaf.withOffset(op.n); ok {
				return pushed
			}
		}
		return &offsetData{src: src, n: op.n}

	case *filterData:
		expr := formula.Prepare(op.expr)
		if lit, ok := expr.(*formula.Literal); ok {
			src := Optimize(op.src)
			if lit.Value.Truthy() {
				return src
			}
			return &emptyData{src: src}
		}
		src := Optimize(op.src)
		switch inner := src.(type) {
		case *sortData:
			// Filtering never depends on order; running it first shrinks
			// the sort input.
			return Optimize(&sortData{
				src:    &filterData{src: inner.src, expr: expr},
				orders: inner.orders,
			})
		case *filterData:
			// Fuse into one conjunction, inner condition first.
			and, _ := formula.LookupFunction("AND")
			return Optimize(&filterData{
				src:  inner.src,
				expr: &formula.Call{Function: and, Args: []formula.Expression{inner.expr, expr}},
			})
		case *sqlData:
			if pushed, ok := inner.withFilter(expr); ok {
				return pushed
			}
		}
		return &filterData{src: src, expr: expr}

	case *sortData:
		src := Optimize(op.src)
		if inner, ok := src.(*sortData); ok {
			// Later sort keys dominate: sort(B) after sort(A) = sort(B++A).
			orders := append(append([]Order(nil), op.orders...), inner.orders...)
			return Optimize(&sortData{src: inner.src, orders: orders})
		}
		if leaf, ok := src.(*sqlData); ok {
			if pushed, ok := leaf.withSort(op.orders); ok {
				return pushed
			}
		}
		return &sortData{src: src, orders: op.orders}

	case *distinctData:
		src := Optimize(op.src)
		if leaf, ok := src.(*sqlData); ok {
			if pushed, ok := leaf.withDistinct(); ok {
				return pushed
			}
		}
		return &distinctData{src: src}

	case *selectData:
		src := Optimize(op.src)
		if inner, ok := src.(*selectData); ok {
			// Keep the outer order, restricted to names the inner pass
			// retains.
			var names []string
			for _, n := range op.names {
				key := raster.Col(n).Key()
				for _, in := range inner.names {
					if raster.Col(in).Key() == key {
						names = append(names, n)
						break
					}
				}
			}
			return Optimize(&selectData{src: inner.src, names: names})
		}
		if leaf, ok := src.(*sqlData); ok {
			if pushed, ok := leaf.withProjection(op.names); ok {
				return pushed
			}
		}
		return &selectData{src: src, names: op.names}

	case *transposeData:
		src := Optimize(op.src)
		if inner, ok := src.(*transposeData); ok {
			// Transposing twice restores the original axes.
			return inner.src
		}
		return &transposeData{src: src}

	case *calculateData:
		return &calculateData{src: Optimize(op.src), column: op.column, expr: formula.Prepare(op.expr)}

	case *joinData:
		return &joinData{
			left:  Optimize(op.left),
			right: Optimize(op.right),
			kind:  op.kind,
			on:    formula.Prepare(op.on),
		}

	case *unionData:
		return &unionData{left: Optimize(op.left), right: Optimize(op.right)}

	case *aggregateData:
		out := &aggregateData{
			src:    Optimize(op.src),
			groups: append([]Grouping(nil), op.groups...),
			aggs:   append([]Aggregation(nil), op.aggs...),
		}
		for i := range out.groups {
			out.groups[i].Expr = formula.Prepare(out.groups[i].Expr)
		}
		for i := range out.aggs {
			out.aggs[i].Expr = formula.Prepare(out.aggs[i].Expr)
		}
		return out

	case *randomData:
		return &randomData{src: Optimize(op.src), n: op.n, rnd: op.rnd}

	case *renameData:
		return &renameData{src: Optimize(op.src), mapping: op.mapping}

	case *emptyData:
		return &emptyData{src: Optimize(op.src)}
	}
	return d
}

// emptyData yields zero rows while preserving the source's column set. The
// optimizer produces it for filters that fold to constant false.
type emptyData struct {
	src Dataset
}

func (d *emptyData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	d.src.Columns(j, cb)
}

func (d *emptyData) Fetch(j *job.Job, sink Sink) {
	sink([][]value.Value{}, true, nil)
}
