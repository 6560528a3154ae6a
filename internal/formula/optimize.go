package formula

import "github.com/SimonWaldherr/tabflow/internal/value"

// Prepare returns an expression guaranteed to produce the same value as expr
// for every context, rewritten for cheaper evaluation. Callers keep the
// original tree; Prepare never mutates its input.
func Prepare(expr Expression) Expression {
	switch e := expr.(type) {
	case *Call:
		args := make([]Expression, len(e.Args))
		for i, a := range e.Args {
			args[i] = Prepare(a)
		}
		out := &Call{Function: e.Function, Args: args}
		if out.IsConstant() {
			return &Literal{Value: out.Apply(nil)}
		}
		return out

	case *Binary:
		left := Prepare(e.Left)
		right := Prepare(e.Right)
		out := &Binary{Left: left, Right: right, Op: e.Op}
		if out.IsConstant() {
			return &Literal{Value: out.Apply(nil)}
		}
		// Strict comparisons between equivalent deterministic trees are
		// decidable without evaluation. Equality and the non-strict forms
		// are not: an Invalid operand makes x = x false.
		switch e.Op {
		case OpGreater, OpLesser, OpNotEqual:
			if deterministic(left) && deterministic(right) && equivalent(left, right) {
				return &Literal{Value: value.False}
			}
		}
		return out
	}
	return expr
}

// Prepare rewrites the formula in place for evaluation over many rows.
func (f *Formula) Prepare() {
	f.Root = Prepare(f.Root)
}

// deterministic reports whether every function in the tree is deterministic.
// Row references are deterministic here: within one evaluation they resolve
// to the same value on both sides.
func deterministic(expr Expression) bool {
	switch e := expr.(type) {
	case *Call:
		if !e.Function.Deterministic {
			return false
		}
		for _, a := range e.Args {
			if !deterministic(a) {
				return false
			}
		}
		return true
	case *Binary:
		return deterministic(e.Left) && deterministic(e.Right)
	}
	return true
}

// equivalent reports whether two trees are guaranteed to evaluate to the same
// value in every context. It is structural equality plus one level of
// commutativity for addition and multiplication; false negatives are fine.
func equivalent(a, b Expression) bool {
	if a.Equals(b) {
		return true
	}
	ba, ok1 := a.(*Binary)
	bb, ok2 := b.(*Binary)
	if !ok1 || !ok2 || ba.Op != bb.Op {
		return false
	}
	if ba.Op != OpAdd && ba.Op != OpMul {
		return false
	}
	return equivalent(ba.Left, bb.Right) && equivalent(ba.Right, bb.Left)
}
