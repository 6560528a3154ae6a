package formula

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/SimonWaldherr/tabflow/internal/value"
)

// Locale defines how formula text is read and written: numeric separators,
// the argument separator, and bijective translation tables for function and
// constant names. Parsing in one locale and re-rendering in another never
// changes meaning.
type Locale struct {
	Tag               language.Tag
	Number            value.NumberFormat
	ArgumentSeparator rune

	// constants maps localized constant names (upper-cased) to values.
	constants map[string]value.Value
	// constantNames is the reverse direction, keyed by a canonical tag.
	constantNames map[string]string
	// functionNames maps canonical to localized function names; localFunctions
	// is its inverse.
	functionNames  map[string]string
	localFunctions map[string]string
}

func newLocale(tag language.Tag, nf value.NumberFormat, argSep rune, constants map[string]string, functions map[string]string) *Locale {
	l := &Locale{
		Tag:               tag,
		Number:            nf,
		ArgumentSeparator: argSep,
		constants:         make(map[string]value.Value),
		constantNames:     make(map[string]string),
		functionNames:     functions,
		localFunctions:    make(map[string]string, len(functions)),
	}
	for canonical, local := range functions {
		l.localFunctions[strings.ToUpper(local)] = canonical
	}
	for tagName, local := range constants {
		l.constants[strings.ToUpper(local)] = constantValues[tagName]
		l.constantNames[tagName] = local
	}
	return l
}

// constantValues holds the language-independent constant values.
var constantValues = map[string]value.Value{
	"TRUE":    value.True,
	"FALSE":   value.False,
	"EMPTY":   value.Empty,
	"INVALID": value.Invalid,
	"PI":      value.Double(3.141592653589793),
}

// English is the invariant locale: dot decimal, comma grouping, semicolon
// argument separator.
func English() *Locale {
	return newLocale(
		language.English,
		value.NumberFormat{DecimalSeparator: '.', ThousandsSeparator: ','},
		';',
		map[string]string{
			"TRUE": "TRUE", "FALSE": "FALSE", "EMPTY": "EMPTY",
			"INVALID": "INVALID", "PI": "PI",
		},
		map[string]string{},
	)
}

// German swaps the numeric separators and translates the common function
// and constant names.
func German() *Locale {
	return newLocale(
		language.German,
		value.NumberFormat{DecimalSeparator: ',', ThousandsSeparator: '.'},
		';',
		map[string]string{
			"TRUE": "WAHR", "FALSE": "FALSCH", "EMPTY": "LEER",
			"INVALID": "UNGUELTIG", "PI": "PI",
		},
		map[string]string{
			"IF":      "WENN",
			"IFERROR": "WENNFEHLER",
			"SUM":     "SUMME",
			"AVERAGE": "MITTELWERT",
			"COUNT":   "ANZAHL",
			"MIN":     "MINIMUM",
			"MAX":     "MAXIMUM",
			"UPPER":   "GROSS",
			"LOWER":   "KLEIN",
			"LENGTH":  "LAENGE",
			"NOT":     "NICHT",
			"AND":     "UND",
			"OR":      "ODER",
			"ROUND":   "RUNDEN",
			"TEXT":    "TEXT",
			"NUMBER":  "ZAHL",
		},
	)
}

// FunctionName renders a canonical function name in this locale.
func (l *Locale) FunctionName(canonical string) string {
	if local, ok := l.functionNames[canonical]; ok {
		return local
	}
	return canonical
}

// CanonicalFunction resolves a (case-insensitive) localized function name
// back to its canonical form.
func (l *Locale) CanonicalFunction(name string) (string, bool) {
	up := strings.ToUpper(name)
	if canonical, ok := l.localFunctions[up]; ok {
		return canonical, true
	}
	if _, ok := builtinFunctions[up]; ok {
		return up, true
	}
	return "", false
}

// Constant resolves a localized constant name.
func (l *Locale) Constant(name string) (value.Value, bool) {
	v, ok := l.constants[strings.ToUpper(name)]
	return v, ok
}

// constantName renders a canonical constant tag in this locale.
func (l *Locale) constantName(tag string) string {
	if n, ok := l.constantNames[tag]; ok {
		return n
	}
	return tag
}

// isReservedWord reports whether a bare identifier would collide with a
// constant in any built-in locale and therefore needs brackets.
func isReservedWord(name string) bool {
	up := strings.ToUpper(name)
	switch up {
	case "TRUE", "FALSE", "EMPTY", "INVALID", "PI",
		"WAHR", "FALSCH", "LEER", "UNGUELTIG":
		return true
	}
	_, isFn := builtinFunctions[up]
	return isFn
}

// formatLiteral renders a constant value as parseable formula text.
func (l *Locale) formatLiteral(v value.Value) string {
	switch v.Kind() {
	case value.KindEmpty:
		return l.constantName("EMPTY")
	case value.KindInvalid:
		return l.constantName("INVALID")
	case value.KindBool:
		if b, _ := v.Bool(); b {
			return l.constantName("TRUE")
		}
		return l.constantName("FALSE")
	case value.KindInt, value.KindDouble:
		return value.FormatNumber(v, l.Number)
	case value.KindString:
		return quoteText(v.Text())
	case value.KindDate:
		// Dates re-enter through the TIMESTAMP constructor so the kind
		// survives a round trip.
		f, _ := v.Double()
		return l.FunctionName("TIMESTAMP") + "(" + value.FormatNumber(value.Double(f), l.Number) + ")"
	case value.KindBlob:
		return l.FunctionName("BLOB") + "(" + quoteText(v.Text()) + ")"
	case value.KindList:
		var b strings.Builder
		b.WriteByte('{')
		for i, it := range v.ListItems() {
			if i > 0 {
				b.WriteRune(l.ArgumentSeparator)
			}
			b.WriteString(l.formatLiteral(it))
		}
		b.WriteByte('}')
		return b.String()
	}
	return quoteText(v.Text())
}

func quoteText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
