package formula

import (
	"fmt"

	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// Formula is a parsed, evaluable expression together with its source text.
type Formula struct {
	Root   Expression
	Source string
}

// Parse parses formula text in the given locale. On failure it returns an
// error and no partial tree; callers treat that as "formula currently
// invalid", a normal state in an interactive editor.
func Parse(text string, loc *Locale) (*Formula, error) {
	if loc == nil {
		loc = English()
	}
	p := &parser{lx: newLexer(text, loc), loc: loc}
	p.cur = p.lx.nextToken()
	p.peek = p.lx.nextToken()
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.cur.Typ != tEOF {
		return nil, p.errf("unexpected trailing input")
	}
	return &Formula{Root: root, Source: text}, nil
}

// Apply evaluates the formula for one row. foreign and previous may be nil /
// Empty when the formula does not use them.
func (f *Formula) Apply(row, foreign *Row, previous value.Value) value.Value {
	return f.Root.Apply(&Context{Row: row, Foreign: foreign, Previous: previous})
}

// Explain renders the formula in the given locale; parsing the result yields
// an equivalent expression.
func (f *Formula) Explain(loc *Locale) string {
	if loc == nil {
		loc = English()
	}
	return f.Root.Explain(loc)
}

type parser struct {
	lx   *lexer
	loc  *Locale
	cur  token
	peek token
}

func (p *parser) next() { p.cur, p.peek = p.peek, p.lx.nextToken() }

func (p *parser) errf(format string, a ...any) error {
	return fmt.Errorf("parse error near %q: %s", p.cur.Val, fmt.Sprintf(format, a...))
}

func (p *parser) expectSymbol(sym string) error {
	if p.cur.Typ == tSymbol && p.cur.Val == sym {
		p.next()
		return nil
	}
	return p.errf("expected %q", sym)
}

func (p *parser) isSymbol(sym string) bool {
	return p.cur.Typ == tSymbol && p.cur.Val == sym
}

// Precedence, low to high: comparisons, &, +/-, * / ~, unary minus, postfix
// index and key access, primary.

var comparisonOps = map[string]BinaryOp{
	"=": OpEqual, "<>": OpNotEqual,
	">": OpGreater, ">=": OpGreaterEqual, "<": OpLesser, "<=": OpLesserEqual,
	"~=": OpContains, "~~=": OpContainsStrict,
	"±=": OpMatches, "±±=": OpMatchesStrict,
}

func (p *parser) parseExpression() (Expression, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol {
		op, ok := comparisonOps[p.cur.Val]
		if !ok {
			break
		}
		p.next()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &Binary{Left: left, Right: right, Op: op}
	}
	return left, nil
}

func (p *parser) parseConcat() (Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("&") {
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Left: left, Right: right, Op: OpConcat}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol && (p.cur.Val == "+" || p.cur.Val == "-") {
		op := OpAdd
		if p.cur.Val == "-" {
			op = OpSub
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Left: left, Right: right, Op: op}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol && (p.cur.Val == "*" || p.cur.Val == "/" || p.cur.Val == "~") {
		var op BinaryOp
		switch p.cur.Val {
		case "*":
			op = OpMul
		case "/":
			op = OpDiv
		default:
			op = OpMod
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Left: left, Right: right, Op: op}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expression, error) {
	if p.isSymbol("-") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold the common case of a negative literal immediately.
		if lit, ok := inner.(*Literal); ok {
			if neg := value.Sub(value.Int(0), lit.Value); !neg.IsInvalid() {
				return &Literal{Value: neg}, nil
			}
		}
		return &Binary{Left: &Literal{Value: value.Int(0)}, Right: inner, Op: OpSub}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles index access a[b] (sugar for NTH) and key access
// a->"k" (sugar for GET).
func (p *parser) parsePostfix() (Expression, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isSymbol("["):
			p.next()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol("]"); err != nil {
				return nil, err
			}
			nth, _ := LookupFunction("NTH")
			left = &Call{Function: nth, Args: []Expression{left, index}}
		case p.isSymbol("->"):
			p.next()
			key, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			get, _ := LookupFunction("GET")
			left = &Call{Function: get, Args: []Expression{left, key}}
		default:
			return left, nil
		}
	}
}

func (p *parser) parsePrimary() (Expression, error) {
	switch p.cur.Typ {
	case tNumber:
		v := p.lx.parseNumberToken(p.cur.Val)
		if v.IsInvalid() {
			return nil, p.errf("malformed number")
		}
		p.next()
		return &Literal{Value: v}, nil

	case tText:
		lit := &Literal{Value: value.String(p.cur.Val)}
		p.next()
		return lit, nil

	case tReference:
		col := raster.Col(p.cur.Val)
		foreign := p.cur.Foreign
		p.next()
		if foreign {
			return &Foreign{Column: col}, nil
		}
		return &Sibling{Column: col}, nil

	case tIdent:
		return p.parseIdentExpr()

	case tSymbol:
		switch p.cur.Val {
		case "(":
			p.next()
			inner, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return inner, nil
		case "{":
			return p.parseList()
		case "@":
			p.next()
			return &Identity{}, nil
		case "#":
			p.next()
			if p.cur.Typ != tIdent {
				return nil, p.errf("expected column name after #")
			}
			col := raster.Col(p.cur.Val)
			p.next()
			return &Foreign{Column: col}, nil
		}
	}
	return nil, p.errf("expected an expression")
}

// parseIdentExpr disambiguates bare identifiers: a following '(' makes a
// function call, a constant name yields its literal, anything else is a
// same-row column reference.
func (p *parser) parseIdentExpr() (Expression, error) {
	name := p.cur.Val
	if p.peek.Typ == tSymbol && p.peek.Val == "(" {
		canonical, ok := p.loc.CanonicalFunction(name)
		if !ok {
			return nil, p.errf("unknown function %q", name)
		}
		fn, _ := LookupFunction(canonical)
		p.next() // name
		p.next() // '('
		var args []Expression
		if !p.isSymbol(")") {
			for {
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.isSymbol(string(p.loc.ArgumentSeparator)) {
					p.next()
					continue
				}
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		if len(args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(args) > fn.MaxArgs) {
			return nil, p.errf("wrong number of arguments for %s: got %d", fn.Name, len(args))
		}
		return &Call{Function: fn, Args: args}, nil
	}
	if v, ok := p.loc.Constant(name); ok {
		p.next()
		return &Literal{Value: v}, nil
	}
	p.next()
	return &Sibling{Column: raster.Col(name)}, nil
}

// parseList reads {a;b;...}. Constant elements collapse to a list literal;
// otherwise the elements become a LIST call evaluated per row.
func (p *parser) parseList() (Expression, error) {
	p.next() // '{'
	var args []Expression
	if !p.isSymbol("}") {
		for {
			el, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, el)
			if p.isSymbol(string(p.loc.ArgumentSeparator)) {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	allLiteral := true
	for _, a := range args {
		if _, ok := a.(*Literal); !ok {
			allLiteral = false
			break
		}
	}
	if allLiteral {
		items := make([]value.Value, len(args))
		for i, a := range args {
			items[i] = a.(*Literal).Value
		}
		return &Literal{Value: value.List(items)}, nil
	}
	list, _ := LookupFunction("LIST")
	return &Call{Function: list, Args: args}, nil
}
