// Package value implements the coercible tagged value model used by the
// tabflow engine.
//
// What: A closed union of scalar kinds (string, int, double, bool, date,
// empty, invalid, blob, list) with total binary operations: arithmetic,
// concatenation and comparison never panic; when operands cannot be coerced
// the result is Invalid.
// How: Values are small immutable structs copied by value. Coercion between
// numeric and string representations happens on demand inside the operators.
// Dates are stored as float seconds relative to a fixed reference instant and
// all component extraction is done in UTC.
// Why: Spreadsheet-style evaluation needs a forgiving value algebra where a
// failed computation taints its result instead of aborting the whole fetch.
package value

import (
	"bytes"
	"encoding/base64"
	"hash/fnv"
	"math"
	"strconv"
	"time"
)

// Kind tags the representation held by a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindInvalid
	KindString
	KindInt
	KindDouble
	KindBool
	KindDate
	KindBlob
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindInvalid:
		return "invalid"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindBlob:
		return "blob"
	case KindList:
		return "list"
	}
	return "unknown"
}

// referenceEpoch is the zero point for date values (seconds offset).
var referenceEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Value is an immutable tagged union. The zero Value is Empty.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	blob []byte
	list []Value
}

// Singleton-ish constructors. Values are cheap to copy; these exist so call
// sites read declaratively.
var (
	Empty   = Value{kind: KindEmpty}
	Invalid = Value{kind: KindInvalid}
	True    = Value{kind: KindBool, b: true}
	False   = Value{kind: KindBool, b: false}
)

func String(s string) Value  { return Value{kind: KindString, s: s} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }

// Date wraps a seconds offset from the reference epoch (2001-01-01T00:00:00Z).
func Date(seconds float64) Value { return Value{kind: KindDate, f: seconds} }

// Blob copies b into a binary value.
func Blob(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBlob, blob: cp}
}

// List copies vs into an ordered list value.
func List(vs []Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindList, list: cp}
}

// DateFromTime converts an absolute instant to a date value.
func DateFromTime(t time.Time) Value {
	return Date(t.UTC().Sub(referenceEpoch).Seconds())
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsInvalid() bool { return v.kind == KindInvalid }
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// IsValid reports whether the value is neither Invalid nor Empty.
func (v Value) IsValid() bool { return v.kind != KindInvalid && v.kind != KindEmpty }

// Int coerces to an integer. Strings parse in the invariant format, doubles
// truncate only when integral.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindDouble, KindDate:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return int64(v.f), true
		}
		return 0, false
	case KindString:
		if n, err := strconv.ParseInt(trimSpace(v.s), 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(trimSpace(v.s), 64); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
		return 0, false
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Double coerces to a float. Strings parse in the invariant format (dot
// decimal separator, no grouping); locale-aware parsing lives in Parse.
func (v Value) Double() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindDouble, KindDate:
		return v.f, true
	case KindString:
		if f, err := strconv.ParseFloat(trimSpace(v.s), 64); err == nil {
			return f, true
		}
		return 0, false
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Bool coerces to a boolean; only bool and the canonical integer forms count.
func (v Value) Bool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindInt:
		return v.i != 0, true
	}
	return false, false
}

// Truthy is the filter-predicate interpretation: booleans as-is, numbers
// non-zero, everything else (including Empty and Invalid) false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindDouble:
		return v.f != 0
	}
	return false
}

// Time converts a date value to an absolute UTC instant.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	d := time.Duration(v.f * float64(time.Second))
	return referenceEpoch.Add(d), true
}

// ListItems returns the underlying list, or nil when not a list. The slice
// must not be mutated.
func (v Value) ListItems() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// BlobBytes returns the underlying bytes, or nil when not a blob. The slice
// must not be mutated.
func (v Value) BlobBytes() []byte {
	if v.kind != KindBlob {
		return nil
	}
	return v.blob
}

// Text renders the invariant textual form. Empty and Invalid render as "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindDate:
		t, _ := v.Time()
		return t.Format(time.RFC3339)
	case KindBlob:
		return base64.StdEncoding.EncodeToString(v.blob)
	case KindList:
		items := make([]string, len(v.list))
		for i, it := range v.list {
			items[i] = it.Text()
		}
		return PackEncode(items)
	}
	return ""
}

// Equal implements the engine's equality invariants: Invalid equals nothing
// (not even itself), Empty equals Empty and the empty string but not zero or
// false, and numeric/string forms interconvert.
func Equal(a, b Value) bool {
	if a.kind == KindInvalid || b.kind == KindInvalid {
		return false
	}
	if a.kind == KindEmpty || b.kind == KindEmpty {
		other := a
		if a.kind == KindEmpty {
			other = b
		}
		return other.kind == KindEmpty || (other.kind == KindString && other.s == "")
	}
	if a.kind == KindList || b.kind == KindList {
		if a.kind != KindList || b.kind != KindList || len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	}
	if a.kind == KindBlob || b.kind == KindBlob {
		return a.kind == KindBlob && b.kind == KindBlob && bytes.Equal(a.blob, b.blob)
	}
	if a.kind == KindBool || b.kind == KindBool {
		return a.kind == KindBool && b.kind == KindBool && a.b == b.b
	}
	// Numeric comparison when both sides coerce; string equality otherwise.
	if af, aok := a.Double(); aok {
		if bf, bok := b.Double(); bok {
			return af == bf
		}
		return false
	}
	if _, bok := b.Double(); bok {
		return false
	}
	return a.Text() == b.Text()
}

// Compare orders two values. The bool result is false when the pair has no
// defined ordering (Invalid operands, scalar vs list, blob vs anything).
func Compare(a, b Value) (int, bool) {
	if a.kind == KindInvalid || b.kind == KindInvalid {
		return 0, false
	}
	if a.kind == KindList || b.kind == KindList || a.kind == KindBlob || b.kind == KindBlob {
		return 0, false
	}
	if a.kind == KindEmpty && b.kind == KindEmpty {
		return 0, true
	}
	// Empty sorts before any non-empty value.
	if a.kind == KindEmpty {
		return -1, true
	}
	if b.kind == KindEmpty {
		return 1, true
	}
	if af, aok := a.Double(); aok {
		if bf, bok := b.Double(); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}
	as, bs := a.Text(), b.Text()
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	}
	return 0, true
}

// Hash returns a structural hash consistent with Equal for valid values.
// Invalid values hash like Empty; callers must not rely on hash equality
// implying Equal for them.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	switch v.kind {
	case KindList:
		for _, it := range v.list {
			var buf [8]byte
			x := it.Hash()
			for i := 0; i < 8; i++ {
				buf[i] = byte(x >> (8 * i))
			}
			h.Write(buf[:])
		}
	case KindBool:
		if v.b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	default:
		// Numeric forms hash via canonical text so 1, 1.0 and "1" collide.
		if f, ok := v.Double(); ok && v.kind != KindBlob {
			h.Write([]byte(strconv.FormatFloat(f, 'f', -1, 64)))
		} else {
			h.Write([]byte(v.Text()))
		}
	}
	return h.Sum64()
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
