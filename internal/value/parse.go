package value

import (
	"strconv"
	"strings"
)

// NumberFormat describes the locale-dependent pieces of numeric text: the
// decimal separator and the optional grouping separator.
type NumberFormat struct {
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// InvariantNumberFormat is the program representation: dot decimal, no
// grouping.
var InvariantNumberFormat = NumberFormat{DecimalSeparator: '.'}

// siSuffixes maps magnitude suffixes to their factor. Longer suffixes must
// be matched before shorter ones ("da" before "d").
var siSuffixes = []struct {
	suffix string
	factor float64
}{
	{"da", 1e1},
	{"h", 1e2},
	{"k", 1e3},
	{"M", 1e6},
	{"G", 1e9},
	{"T", 1e12},
	{"P", 1e15},
	{"E", 1e18},
	{"Z", 1e21},
	{"Y", 1e24},
	{"d", 1e-1},
	{"c", 1e-2},
	{"m", 1e-3},
	{"µ", 1e-6},
	{"n", 1e-9},
	{"p", 1e-12},
	{"f", 1e-15},
}

// ParseNumber parses locale-formatted numeric text, honoring grouping
// separators, an SI magnitude suffix and a trailing percent sign. It returns
// Invalid when the text is not a number in the given format.
func ParseNumber(text string, nf NumberFormat) Value {
	s := strings.TrimSpace(text)
	if s == "" {
		return Invalid
	}
	factor := 1.0
	isPercent := false
	if strings.HasSuffix(s, "%") {
		isPercent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	} else {
		for _, si := range siSuffixes {
			if strings.HasSuffix(s, si.suffix) && len(s) > len(si.suffix) {
				factor = si.factor
				s = strings.TrimSpace(strings.TrimSuffix(s, si.suffix))
				break
			}
		}
	}
	// Normalize to the invariant representation for strconv.
	var b strings.Builder
	sawDecimal := false
	for _, r := range s {
		switch r {
		case nf.ThousandsSeparator:
			if nf.ThousandsSeparator == 0 || sawDecimal {
				return Invalid
			}
		case nf.DecimalSeparator:
			if sawDecimal {
				return Invalid
			}
			sawDecimal = true
			b.WriteByte('.')
		default:
			b.WriteRune(r)
		}
	}
	norm := b.String()
	if isPercent {
		factor = 0.01
	}
	if !sawDecimal && factor == 1.0 {
		if n, err := strconv.ParseInt(norm, 10, 64); err == nil {
			return Int(n)
		}
	}
	f, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return Invalid
	}
	f *= factor
	// Keep integral magnitudes integral ("2k" is the int 2000).
	if f == float64(int64(f)) && !sawDecimal && !isPercent && f >= -1e15 && f <= 1e15 {
		return Int(int64(f))
	}
	return Double(f)
}

// FormatNumber renders a numeric value in the given format. Non-numeric
// values fall back to their invariant text.
func FormatNumber(v Value, nf NumberFormat) string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		s := strconv.FormatFloat(v.f, 'f', -1, 64)
		if nf.DecimalSeparator != '.' && nf.DecimalSeparator != 0 {
			s = strings.Replace(s, ".", string(nf.DecimalSeparator), 1)
		}
		return s
	}
	return v.Text()
}
