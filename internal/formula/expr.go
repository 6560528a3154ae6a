// Package formula implements the expression language of the engine: a closed
// AST, a locale-aware parser and serializer, an evaluator and a small
// rule-based optimizer.
//
// What: Expressions are immutable trees of literals, row references, function
// calls and binary operators. Evaluation never panics; every failure is the
// Invalid value propagating upward. The textual form round-trips: parsing the
// Explain output of an expression yields an equivalent expression in any
// locale.
// How: A rune-based lexer feeds a recursive-descent parser with conventional
// arithmetic precedence. Function and constant names are translated per
// locale through bijective tables. Equality and hashing are structural.
// Why: The same formula must behave identically whether typed by a German or
// an English user, and an interactive editor needs parse failures to be a
// normal, recoverable state.
package formula

import (
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// Row carries the ordered values of one table row for evaluation.
type Row struct {
	Columns []raster.Column
	Values  []value.Value
}

// NewRow pairs a column list with values.
func NewRow(columns []raster.Column, values []value.Value) *Row {
	return &Row{Columns: columns, Values: values}
}

// Value looks a cell up by column name, case-insensitively.
func (r *Row) Value(name string) (value.Value, bool) {
	if r == nil {
		return value.Invalid, false
	}
	key := raster.Col(name).Key()
	for i, c := range r.Columns {
		if c.Key() == key && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return value.Invalid, false
}

// Context is the evaluation environment of one Apply call.
type Context struct {
	// Row is the current ("sibling") row; may be nil for constant formulas.
	Row *Row
	// Foreign is the joined row, when evaluating a join condition.
	Foreign *Row
	// Previous is the value the identity reference (@) resolves to.
	Previous value.Value
}

// Expression is one immutable node of a formula tree.
type Expression interface {
	// Apply evaluates against ctx. It never panics; failures are Invalid.
	Apply(ctx *Context) value.Value
	// Explain renders the localized, parseable textual form.
	Explain(loc *Locale) string
	// Equals is structural equality (two calls of a non-deterministic
	// function compare equal without being interchangeable).
	Equals(other Expression) bool
	// Hash is consistent with Equals.
	Hash() uint64
	// IsConstant holds when the tree contains no row reference and no
	// non-deterministic function.
	IsConstant() bool
}

// ------------------------------ Literal ------------------------------

// Literal wraps a constant value.
type Literal struct {
	Value value.Value
}

func (l *Literal) Apply(*Context) value.Value { return l.Value }
func (l *Literal) IsConstant() bool           { return true }

func (l *Literal) Equals(other Expression) bool {
	o, ok := other.(*Literal)
	if !ok {
		return false
	}
	// Equality has to hold for Invalid literals too, so compare kinds
	// explicitly rather than through value.Equal.
	if l.Value.Kind() != o.Value.Kind() {
		return false
	}
	if l.Value.IsInvalid() {
		return true
	}
	if l.Value.IsEmpty() {
		return true
	}
	return value.Equal(l.Value, o.Value)
}

func (l *Literal) Hash() uint64 {
	return mixHash('L', uint64(l.Value.Kind()), l.Value.Hash())
}

func (l *Literal) Explain(loc *Locale) string {
	return loc.formatLiteral(l.Value)
}

// ------------------------------ References ------------------------------

// Sibling references a column of the current row.
type Sibling struct {
	Column raster.Column
}

func (s *Sibling) Apply(ctx *Context) value.Value {
	if ctx == nil || ctx.Row == nil {
		return value.Invalid
	}
	v, ok := ctx.Row.Value(s.Column.Name)
	if !ok {
		return value.Invalid
	}
	return v
}

func (s *Sibling) IsConstant() bool { return false }

func (s *Sibling) Equals(other Expression) bool {
	o, ok := other.(*Sibling)
	return ok && s.Column.Equal(o.Column)
}

func (s *Sibling) Hash() uint64 { return mixHash('S', hashString(s.Column.Key()), 0) }

func (s *Sibling) Explain(loc *Locale) string { return explainReference(s.Column.Name, "") }

// Foreign references a column of the joined row.
type Foreign struct {
	Column raster.Column
}

func (f *Foreign) Apply(ctx *Context) value.Value {
	if ctx == nil || ctx.Foreign == nil {
		return value.Invalid
	}
	v, ok := ctx.Foreign.Value(f.Column.Name)
	if !ok {
		return value.Invalid
	}
	return v
}

func (f *Foreign) IsConstant() bool { return false }

func (f *Foreign) Equals(other Expression) bool {
	o, ok := other.(*Foreign)
	return ok && f.Column.Equal(o.Column)
}

func (f *Foreign) Hash() uint64 { return mixHash('F', hashString(f.Column.Key()), 0) }

func (f *Foreign) Explain(loc *Locale) string { return explainReference(f.Column.Name, "#") }

// Identity is the previous-value reference (@).
type Identity struct{}

func (i *Identity) Apply(ctx *Context) value.Value {
	if ctx == nil {
		return value.Invalid
	}
	return ctx.Previous
}

func (i *Identity) IsConstant() bool { return false }

func (i *Identity) Equals(other Expression) bool {
	_, ok := other.(*Identity)
	return ok
}

func (i *Identity) Hash() uint64 { return mixHash('I', 0, 0) }

func (i *Identity) Explain(*Locale) string { return "@" }

// ------------------------------ Call ------------------------------

// Call applies a named function to its argument expressions.
type Call struct {
	Function *Function
	Args     []Expression
}

func (c *Call) Apply(ctx *Context) value.Value {
	args := make([]value.Value, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.Apply(ctx)
		// Invalid operands taint the call, except for functions designed
		// to recover (IFERROR and friends).
		if args[i].IsInvalid() && !c.Function.AcceptsInvalid {
			return value.Invalid
		}
	}
	return c.Function.Apply(args)
}

func (c *Call) IsConstant() bool {
	if !c.Function.Deterministic {
		return false
	}
	for _, a := range c.Args {
		if !a.IsConstant() {
			return false
		}
	}
	return true
}

func (c *Call) Equals(other Expression) bool {
	o, ok := other.(*Call)
	if !ok || c.Function.Name != o.Function.Name || len(c.Args) != len(o.Args) {
		return false
	}
	for i := range c.Args {
		if !c.Args[i].Equals(o.Args[i]) {
			return false
		}
	}
	return true
}

func (c *Call) Hash() uint64 {
	h := mixHash('C', hashString(c.Function.Name), uint64(len(c.Args)))
	for _, a := range c.Args {
		h = mixHash('a', h, a.Hash())
	}
	return h
}

func (c *Call) Explain(loc *Locale) string {
	var b strings.Builder
	// List construction keeps its literal syntax.
	if c.Function.Name == "LIST" {
		b.WriteByte('{')
		for i, a := range c.Args {
			if i > 0 {
				b.WriteRune(loc.ArgumentSeparator)
			}
			b.WriteString(a.Explain(loc))
		}
		b.WriteByte('}')
		return b.String()
	}
	b.WriteString(loc.FunctionName(c.Function.Name))
	b.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			b.WriteRune(loc.ArgumentSeparator)
		}
		b.WriteString(a.Explain(loc))
	}
	b.WriteByte(')')
	return b.String()
}

// ------------------------------ Binary ------------------------------

// BinaryOp enumerates the binary operators of the formula language.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpConcat
	OpEqual
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLesser
	OpLesserEqual
	// OpContains is ~= (case-insensitive substring), OpContainsStrict ~~=.
	OpContains
	OpContainsStrict
	// OpMatches is ±= (case-insensitive pattern), OpMatchesStrict ±±=.
	OpMatches
	OpMatchesStrict
)

var opText = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "~", OpConcat: "&",
	OpEqual: "=", OpNotEqual: "<>", OpGreater: ">", OpGreaterEqual: ">=",
	OpLesser: "<", OpLesserEqual: "<=",
	OpContains: "~=", OpContainsStrict: "~~=",
	OpMatches: "±=", OpMatchesStrict: "±±=",
}

// Text returns the operator's source form.
func (op BinaryOp) Text() string { return opText[op] }

// IsComparison reports whether the operator yields a boolean.
func (op BinaryOp) IsComparison() bool { return op >= OpEqual }

// Binary combines two sub-expressions with an operator; arithmetic and
// relational operators share the node.
type Binary struct {
	Left  Expression
	Right Expression
	Op    BinaryOp
}

func (b *Binary) Apply(ctx *Context) value.Value {
	l := b.Left.Apply(ctx)
	r := b.Right.Apply(ctx)
	return applyBinary(b.Op, l, r)
}

func applyBinary(op BinaryOp, l, r value.Value) value.Value {
	if l.IsInvalid() || r.IsInvalid() {
		return value.Invalid
	}
	switch op {
	case OpAdd:
		return value.Add(l, r)
	case OpSub:
		return value.Sub(l, r)
	case OpMul:
		return value.Mul(l, r)
	case OpDiv:
		return value.Div(l, r)
	case OpMod:
		return value.Mod(l, r)
	case OpConcat:
		return value.Concat(l, r)
	case OpEqual:
		return value.Bool(value.Equal(l, r))
	case OpNotEqual:
		return value.Bool(!value.Equal(l, r))
	case OpGreater, OpGreaterEqual, OpLesser, OpLesserEqual:
		c, ok := value.Compare(l, r)
		if !ok {
			return value.Invalid
		}
		switch op {
		case OpGreater:
			return value.Bool(c > 0)
		case OpGreaterEqual:
			return value.Bool(c >= 0)
		case OpLesser:
			return value.Bool(c < 0)
		default:
			return value.Bool(c <= 0)
		}
	case OpContains:
		return value.Bool(strings.Contains(strings.ToLower(l.Text()), strings.ToLower(r.Text())))
	case OpContainsStrict:
		return value.Bool(strings.Contains(l.Text(), r.Text()))
	case OpMatches:
		return matchPattern(l.Text(), r.Text(), true)
	case OpMatchesStrict:
		return matchPattern(l.Text(), r.Text(), false)
	}
	return value.Invalid
}

func matchPattern(text, pattern string, fold bool) value.Value {
	if fold {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return value.Invalid
	}
	return value.Bool(re.MatchString(text))
}

func (b *Binary) IsConstant() bool {
	return b.Left.IsConstant() && b.Right.IsConstant()
}

func (b *Binary) Equals(other Expression) bool {
	o, ok := other.(*Binary)
	return ok && b.Op == o.Op && b.Left.Equals(o.Left) && b.Right.Equals(o.Right)
}

func (b *Binary) Hash() uint64 {
	return mixHash('B', uint64(b.Op), mixHash('l', b.Left.Hash(), b.Right.Hash()))
}

func (b *Binary) Explain(loc *Locale) string {
	return "(" + b.Left.Explain(loc) + " " + b.Op.Text() + " " + b.Right.Explain(loc) + ")"
}

// ------------------------------ helpers ------------------------------

// identifierPattern matches names that can appear unbracketed.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func explainReference(name, prefix string) string {
	if prefix == "" && identifierPattern.MatchString(name) && !isReservedWord(name) {
		return name
	}
	return "[" + prefix + name + "]"
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func mixHash(tag byte, a, b uint64) uint64 {
	h := fnv.New64a()
	var buf [17]byte
	buf[0] = tag
	for i := 0; i < 8; i++ {
		buf[1+i] = byte(a >> (8 * i))
		buf[9+i] = byte(b >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64()
}
