package formula

import (
	"encoding/base64"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/tabflow/internal/value"
)

// Function describes one callable of the formula language. Functions are
// looked up by canonical (upper-case) name; locales translate the surface
// spelling.
type Function struct {
	Name string
	// MinArgs/MaxArgs bound the arity; MaxArgs < 0 means unlimited.
	MinArgs, MaxArgs int
	// Deterministic functions with constant arguments fold at Prepare time.
	Deterministic bool
	// AcceptsInvalid suppresses the automatic Invalid propagation so the
	// function can recover from tainted arguments (IFERROR).
	AcceptsInvalid bool
	Apply          func(args []value.Value) value.Value
}

// LookupFunction finds a built-in by canonical name.
func LookupFunction(name string) (*Function, bool) {
	f, ok := builtinFunctions[strings.ToUpper(name)]
	return f, ok
}

var builtinFunctions = map[string]*Function{}

func register(f *Function) { builtinFunctions[f.Name] = f }

func init() {
	registerLogic()
	registerText()
	registerMath()
	registerStatistics()
	registerDates()
	registerConversions()
	registerNonDeterministic()
}

// ------------------------------ logic ------------------------------

func registerLogic() {
	register(&Function{Name: "IF", MinArgs: 2, MaxArgs: 3, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			if args[0].Truthy() {
				return args[1]
			}
			if len(args) == 3 {
				return args[2]
			}
			return value.Empty
		}})
	register(&Function{Name: "IFERROR", MinArgs: 2, MaxArgs: 2, Deterministic: true, AcceptsInvalid: true,
		Apply: func(args []value.Value) value.Value {
			if args[0].IsInvalid() {
				return args[1]
			}
			return args[0]
		}})
	register(&Function{Name: "NOT", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			b, ok := args[0].Bool()
			if !ok {
				return value.Invalid
			}
			return value.Bool(!b)
		}})
	register(&Function{Name: "AND", MinArgs: 1, MaxArgs: -1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			for _, a := range args {
				if !a.Truthy() {
					return value.False
				}
			}
			return value.True
		}})
	register(&Function{Name: "OR", MinArgs: 1, MaxArgs: -1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			for _, a := range args {
				if a.Truthy() {
					return value.True
				}
			}
			return value.False
		}})
	register(&Function{Name: "XOR", MinArgs: 2, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			return value.Bool(args[0].Truthy() != args[1].Truthy())
		}})
}

// ------------------------------ text ------------------------------

func registerText() {
	register(&Function{Name: "UPPER", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			return value.String(strings.ToUpper(args[0].Text()))
		}})
	register(&Function{Name: "LOWER", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			return value.String(strings.ToLower(args[0].Text()))
		}})
	register(&Function{Name: "CONCAT", MinArgs: 1, MaxArgs: -1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			var b strings.Builder
			for _, a := range args {
				b.WriteString(a.Text())
			}
			return value.String(b.String())
		}})
	register(&Function{Name: "LENGTH", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			if items := args[0].ListItems(); items != nil {
				return value.Int(int64(len(items)))
			}
			return value.Int(int64(len([]rune(args[0].Text()))))
		}})
	register(&Function{Name: "TRIM", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			return value.String(strings.TrimSpace(args[0].Text()))
		}})
	register(&Function{Name: "LEFT", MinArgs: 2, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value { return substring(args[0], args[1], true) }})
	register(&Function{Name: "RIGHT", MinArgs: 2, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value { return substring(args[0], args[1], false) }})
	register(&Function{Name: "MID", MinArgs: 3, MaxArgs: 3, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			runes := []rune(args[0].Text())
			start, ok1 := args[1].Int()
			count, ok2 := args[2].Int()
			if !ok1 || !ok2 || start < 1 || count < 0 {
				return value.Invalid
			}
			lo := int(start) - 1
			if lo >= len(runes) {
				return value.String("")
			}
			hi := lo + int(count)
			if hi > len(runes) {
				hi = len(runes)
			}
			return value.String(string(runes[lo:hi]))
		}})
	register(&Function{Name: "SPLIT", MinArgs: 2, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			parts := strings.Split(args[0].Text(), args[1].Text())
			items := make([]value.Value, len(parts))
			for i, p := range parts {
				items[i] = value.String(p)
			}
			return value.List(items)
		}})
	register(&Function{Name: "NTH", MinArgs: 2, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value { return value.Nth(args[0], args[1]) }})
	register(&Function{Name: "GET", MinArgs: 2, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value { return value.ForKey(args[0], args[1]) }})
	register(&Function{Name: "LIST", MinArgs: 0, MaxArgs: -1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			items := make([]value.Value, len(args))
			copy(items, args)
			return value.List(items)
		}})
}

func substring(v, n value.Value, fromLeft bool) value.Value {
	count, ok := n.Int()
	if !ok || count < 0 {
		return value.Invalid
	}
	runes := []rune(v.Text())
	if int(count) >= len(runes) {
		return value.String(string(runes))
	}
	if fromLeft {
		return value.String(string(runes[:count]))
	}
	return value.String(string(runes[len(runes)-int(count):]))
}

// ------------------------------ math ------------------------------

func registerMath() {
	unary := func(name string, fn func(float64) (float64, bool)) {
		register(&Function{Name: name, MinArgs: 1, MaxArgs: 1, Deterministic: true,
			Apply: func(args []value.Value) value.Value {
				f, ok := args[0].Double()
				if !ok {
					return value.Invalid
				}
				out, ok := fn(f)
				if !ok || math.IsNaN(out) || math.IsInf(out, 0) {
					return value.Invalid
				}
				return value.Double(out)
			}})
	}
	unary("ABS", func(f float64) (float64, bool) { return math.Abs(f), true })
	unary("FLOOR", func(f float64) (float64, bool) { return math.Floor(f), true })
	unary("CEILING", func(f float64) (float64, bool) { return math.Ceil(f), true })
	unary("SQRT", func(f float64) (float64, bool) {
		if f < 0 {
			return 0, false
		}
		return math.Sqrt(f), true
	})
	unary("LN", func(f float64) (float64, bool) {
		if f <= 0 {
			return 0, false
		}
		return math.Log(f), true
	})
	unary("LOG", func(f float64) (float64, bool) {
		if f <= 0 {
			return 0, false
		}
		return math.Log10(f), true
	})
	unary("EXP", func(f float64) (float64, bool) { return math.Exp(f), true })

	register(&Function{Name: "ROUND", MinArgs: 1, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			f, ok := args[0].Double()
			if !ok {
				return value.Invalid
			}
			digits := int64(0)
			if len(args) == 2 {
				if digits, ok = args[1].Int(); !ok {
					return value.Invalid
				}
			}
			scale := math.Pow(10, float64(digits))
			return value.Double(math.Round(f*scale) / scale)
		}})
	register(&Function{Name: "POWER", MinArgs: 2, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			base, ok1 := args[0].Double()
			exp, ok2 := args[1].Double()
			if !ok1 || !ok2 {
				return value.Invalid
			}
			out := math.Pow(base, exp)
			if math.IsNaN(out) || math.IsInf(out, 0) {
				return value.Invalid
			}
			return value.Double(out)
		}})
}

// ------------------------------ statistics ------------------------------

// flattenNumeric expands list arguments and coerces everything to floats;
// the bool result is false when any item fails to coerce.
func flattenNumeric(args []value.Value) ([]float64, bool) {
	var out []float64
	for _, a := range args {
		if items := a.ListItems(); items != nil {
			sub, ok := flattenNumeric(items)
			if !ok {
				return nil, false
			}
			out = append(out, sub...)
			continue
		}
		if a.IsEmpty() {
			continue
		}
		f, ok := a.Double()
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func registerStatistics() {
	numericReducer := func(name string, reduce func(nums []float64) value.Value) {
		register(&Function{Name: name, MinArgs: 1, MaxArgs: -1, Deterministic: true,
			Apply: func(args []value.Value) value.Value {
				nums, ok := flattenNumeric(args)
				if !ok {
					return value.Invalid
				}
				return reduce(nums)
			}})
	}
	numericReducer("SUM", func(nums []float64) value.Value {
		s := 0.0
		for _, f := range nums {
			s += f
		}
		return value.Double(s)
	})
	numericReducer("AVERAGE", func(nums []float64) value.Value {
		if len(nums) == 0 {
			return value.Invalid
		}
		s := 0.0
		for _, f := range nums {
			s += f
		}
		return value.Double(s / float64(len(nums)))
	})
	numericReducer("MIN", func(nums []float64) value.Value {
		if len(nums) == 0 {
			return value.Invalid
		}
		m := nums[0]
		for _, f := range nums[1:] {
			if f < m {
				m = f
			}
		}
		return value.Double(m)
	})
	numericReducer("MAX", func(nums []float64) value.Value {
		if len(nums) == 0 {
			return value.Invalid
		}
		m := nums[0]
		for _, f := range nums[1:] {
			if f > m {
				m = f
			}
		}
		return value.Double(m)
	})
	numericReducer("MEDIAN", func(nums []float64) value.Value {
		if len(nums) == 0 {
			return value.Invalid
		}
		sorted := append([]float64(nil), nums...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return value.Double(sorted[mid])
		}
		return value.Double((sorted[mid-1] + sorted[mid]) / 2)
	})
	numericReducer("VARIANCE", func(nums []float64) value.Value {
		if len(nums) < 2 {
			return value.Invalid
		}
		return value.Double(sampleVariance(nums))
	})
	numericReducer("STDEV", func(nums []float64) value.Value {
		if len(nums) < 2 {
			return value.Invalid
		}
		return value.Double(math.Sqrt(sampleVariance(nums)))
	})

	register(&Function{Name: "COUNT", MinArgs: 1, MaxArgs: -1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			n := int64(0)
			var walk func(vs []value.Value)
			walk = func(vs []value.Value) {
				for _, v := range vs {
					if items := v.ListItems(); items != nil {
						walk(items)
						continue
					}
					if _, ok := v.Double(); ok {
						n++
					}
				}
			}
			walk(args)
			return value.Int(n)
		}})
	register(&Function{Name: "COUNTA", MinArgs: 1, MaxArgs: -1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			n := int64(0)
			var walk func(vs []value.Value)
			walk = func(vs []value.Value) {
				for _, v := range vs {
					if items := v.ListItems(); items != nil {
						walk(items)
						continue
					}
					if !v.IsEmpty() {
						n++
					}
				}
			}
			walk(args)
			return value.Int(n)
		}})
}

func sampleVariance(nums []float64) float64 {
	mean := 0.0
	for _, f := range nums {
		mean += f
	}
	mean /= float64(len(nums))
	acc := 0.0
	for _, f := range nums {
		d := f - mean
		acc += d * d
	}
	return acc / float64(len(nums)-1)
}

// ------------------------------ dates ------------------------------

func registerDates() {
	component := func(name string, extract func(t time.Time) int) {
		register(&Function{Name: name, MinArgs: 1, MaxArgs: 1, Deterministic: true,
			Apply: func(args []value.Value) value.Value {
				t, ok := args[0].Time()
				if !ok {
					return value.Invalid
				}
				return value.Int(int64(extract(t)))
			}})
	}
	// All components are extracted in UTC.
	component("YEAR", func(t time.Time) int { return t.Year() })
	component("MONTH", func(t time.Time) int { return int(t.Month()) })
	component("DAY", func(t time.Time) int { return t.Day() })
	component("HOUR", func(t time.Time) int { return t.Hour() })
	component("MINUTE", func(t time.Time) int { return t.Minute() })
	component("SECOND", func(t time.Time) int { return t.Second() })

	register(&Function{Name: "DATE", MinArgs: 3, MaxArgs: 3, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			y, ok1 := args[0].Int()
			m, ok2 := args[1].Int()
			d, ok3 := args[2].Int()
			if !ok1 || !ok2 || !ok3 {
				return value.Invalid
			}
			return value.DateFromTime(time.Date(int(y), time.Month(m), int(d), 0, 0, 0, 0, time.UTC))
		}})
	register(&Function{Name: "TIMESTAMP", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			f, ok := args[0].Double()
			if !ok {
				return value.Invalid
			}
			return value.Date(f)
		}})
	register(&Function{Name: "AFTER", MinArgs: 2, MaxArgs: 2, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			t, ok := args[0].Time()
			if !ok {
				return value.Invalid
			}
			secs, ok := args[1].Double()
			if !ok {
				return value.Invalid
			}
			return value.DateFromTime(t.Add(time.Duration(secs * float64(time.Second))))
		}})
	register(&Function{Name: "NOW", MinArgs: 0, MaxArgs: 0, Deterministic: false,
		Apply: func([]value.Value) value.Value { return value.DateFromTime(time.Now()) }})
}

// ------------------------------ conversions ------------------------------

func registerConversions() {
	register(&Function{Name: "TEXT", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value { return value.String(args[0].Text()) }})
	register(&Function{Name: "NUMBER", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			if f, ok := args[0].Double(); ok {
				if args[0].Kind() == value.KindInt {
					return args[0]
				}
				return value.Double(f)
			}
			return value.ParseNumber(args[0].Text(), value.InvariantNumberFormat)
		}})
	register(&Function{Name: "PACK", MinArgs: 1, MaxArgs: -1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			items := make([]string, len(args))
			for i, a := range args {
				items[i] = a.Text()
			}
			return value.String(value.PackEncode(items))
		}})
	register(&Function{Name: "UNPACK", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			parts := value.PackDecode(args[0].Text())
			items := make([]value.Value, len(parts))
			for i, p := range parts {
				items[i] = value.String(p)
			}
			return value.List(items)
		}})
	register(&Function{Name: "BLOB", MinArgs: 1, MaxArgs: 1, Deterministic: true,
		Apply: func(args []value.Value) value.Value {
			data, err := base64Decode(args[0].Text())
			if err != nil {
				return value.Invalid
			}
			return value.Blob(data)
		}})
}

func base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// ------------------------------ non-deterministic ------------------------------

func registerNonDeterministic() {
	register(&Function{Name: "RANDOM", MinArgs: 0, MaxArgs: 0, Deterministic: false,
		Apply: func([]value.Value) value.Value { return value.Double(rand.Float64()) }})
	register(&Function{Name: "RANDBETWEEN", MinArgs: 2, MaxArgs: 2, Deterministic: false,
		Apply: func(args []value.Value) value.Value {
			lo, ok1 := args[0].Int()
			hi, ok2 := args[1].Int()
			if !ok1 || !ok2 || hi < lo {
				return value.Invalid
			}
			return value.Int(lo + rand.Int63n(hi-lo+1))
		}})
	register(&Function{Name: "UUID", MinArgs: 0, MaxArgs: 0, Deterministic: false,
		Apply: func([]value.Value) value.Value { return value.String(uuid.NewString()) }})
}
