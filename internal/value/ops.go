package value

import "math"

// Arithmetic operators: total functions returning Invalid when operands do
// not coerce to the required types. Integer pairs stay integral except for
// division, which always produces a double.

// Add returns a+b.
func Add(a, b Value) Value {
	if ai, bi, ok := intPair(a, b); ok {
		return Int(ai + bi)
	}
	if af, bf, ok := doublePair(a, b); ok {
		return Double(af + bf)
	}
	return Invalid
}

// Sub returns a-b.
func Sub(a, b Value) Value {
	if ai, bi, ok := intPair(a, b); ok {
		return Int(ai - bi)
	}
	if af, bf, ok := doublePair(a, b); ok {
		return Double(af - bf)
	}
	return Invalid
}

// Mul returns a*b.
func Mul(a, b Value) Value {
	if ai, bi, ok := intPair(a, b); ok {
		return Int(ai * bi)
	}
	if af, bf, ok := doublePair(a, b); ok {
		return Double(af * bf)
	}
	return Invalid
}

// Div returns a/b; division by zero is Invalid, not a panic or infinity.
func Div(a, b Value) Value {
	af, bf, ok := doublePair(a, b)
	if !ok || bf == 0 {
		return Invalid
	}
	return Double(af / bf)
}

// Mod returns the remainder of a/b (the formula operator `~`).
func Mod(a, b Value) Value {
	af, bf, ok := doublePair(a, b)
	if !ok || bf == 0 {
		return Invalid
	}
	return Double(math.Mod(af, bf))
}

// Concat joins the textual forms of two values (the `&` operator). Invalid
// taints the result; Empty concatenates as "".
func Concat(a, b Value) Value {
	if a.kind == KindInvalid || b.kind == KindInvalid {
		return Invalid
	}
	return String(a.Text() + b.Text())
}

// Nth indexes a value: lists by element, strings interpreted as Packs.
// Indexes are 1-based; out of range yields Invalid.
func Nth(v Value, index Value) Value {
	n, ok := index.Int()
	if !ok || n < 1 {
		return Invalid
	}
	switch v.kind {
	case KindList:
		if int(n) > len(v.list) {
			return Invalid
		}
		return v.list[n-1]
	case KindString:
		items := PackDecode(v.s)
		if int(n) > len(items) {
			return Invalid
		}
		return String(items[n-1])
	}
	return Invalid
}

// ForKey looks up a key in a record-like value (alternating key/value Pack
// or list). Missing keys yield Invalid.
func ForKey(v Value, key Value) Value {
	if key.kind == KindInvalid {
		return Invalid
	}
	k := key.Text()
	switch v.kind {
	case KindList:
		for i := 0; i+1 < len(v.list); i += 2 {
			if v.list[i].Text() == k {
				return v.list[i+1]
			}
		}
	case KindString:
		items := PackDecode(v.s)
		for i := 0; i+1 < len(items); i += 2 {
			if items[i] == k {
				return String(items[i+1])
			}
		}
	}
	return Invalid
}

func intPair(a, b Value) (int64, int64, bool) {
	if a.kind == KindInvalid || b.kind == KindInvalid || a.kind == KindEmpty || b.kind == KindEmpty {
		return 0, 0, false
	}
	// Only genuinely integral operands stay in integer arithmetic; numeric
	// strings always go through the double path.
	if a.kind != KindInt || b.kind != KindInt {
		return 0, 0, false
	}
	return a.i, b.i, true
}

func doublePair(a, b Value) (float64, float64, bool) {
	if a.kind == KindList || b.kind == KindList {
		return 0, 0, false
	}
	af, aok := a.Double()
	bf, bok := b.Double()
	if !aok || !bok {
		return 0, 0, false
	}
	return af, bf, true
}
