package formula

import (
	"strings"
	"unicode"

	"github.com/SimonWaldherr/tabflow/internal/value"
)

type tokenType int

const (
	tEOF tokenType = iota
	tNumber
	tText
	tIdent
	tReference // [name], [@name] or [#name]
	tSymbol
)

type token struct {
	Typ tokenType
	Val string
	// Foreign marks a [#name] reference token.
	Foreign bool
	Pos     int
}

// lexer is a single-pass rune scanner over formula text. Number scanning is
// locale-dependent (decimal and grouping separators, SI suffixes, percent).
type lexer struct {
	src []rune
	pos int
	loc *Locale
	// afterOperand disambiguates '[': following an operand it is the index
	// operator, elsewhere it opens a column reference.
	afterOperand bool
}

func newLexer(s string, loc *Locale) *lexer {
	return &lexer{src: []rune(s), loc: loc}
}

func (lx *lexer) peek() rune {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *lexer) peekN(n int) rune {
	p := lx.pos + n
	if p >= len(lx.src) {
		return 0
	}
	return lx.src[p]
}

func (lx *lexer) next() rune {
	r := lx.peek()
	lx.pos++
	return r
}

func (lx *lexer) skipWS() {
	for lx.pos < len(lx.src) && unicode.IsSpace(lx.src[lx.pos]) {
		lx.pos++
	}
}

func (lx *lexer) nextToken() token {
	lx.skipWS()
	start := lx.pos
	if start >= len(lx.src) {
		return token{Typ: tEOF, Pos: start}
	}
	var tok token
	r := lx.peek()
	switch {
	case r == '"':
		tok = lx.tokenizeText(start)
	case r == '[' && !lx.afterOperand:
		tok = lx.tokenizeReference(start)
	case unicode.IsDigit(r):
		tok = lx.tokenizeNumber(start)
	case unicode.IsLetter(r) || r == '_':
		tok = lx.tokenizeIdent(start)
	default:
		tok = lx.tokenizeSymbol(start)
	}
	lx.afterOperand = endsOperand(tok)
	return tok
}

// endsOperand reports whether the token can end an operand, making a
// following '[' index access rather than a column reference.
func endsOperand(t token) bool {
	switch t.Typ {
	case tNumber, tText, tIdent, tReference:
		return true
	case tSymbol:
		switch t.Val {
		case ")", "]", "}", "@":
			return true
		}
	}
	return false
}

// tokenizeText reads a quoted literal; \" escapes a quote, \\ a backslash.
func (lx *lexer) tokenizeText(start int) token {
	lx.next() // opening quote
	var val strings.Builder
	for lx.pos < len(lx.src) {
		ch := lx.next()
		if ch == '\\' {
			esc := lx.next()
			switch esc {
			case '"', '\\':
				val.WriteRune(esc)
			default:
				val.WriteRune('\\')
				val.WriteRune(esc)
			}
			continue
		}
		if ch == '"' {
			return token{Typ: tText, Val: val.String(), Pos: start}
		}
		val.WriteRune(ch)
	}
	// Unterminated literal: surface as a symbol the parser will reject.
	return token{Typ: tSymbol, Val: "\"", Pos: start}
}

// tokenizeReference reads a bracketed column reference, preserving the name
// verbatim (names may contain spaces and punctuation).
func (lx *lexer) tokenizeReference(start int) token {
	lx.next() // '['
	foreign := false
	if lx.peek() == '#' {
		foreign = true
		lx.next()
	} else if lx.peek() == '@' {
		lx.next()
	}
	var name strings.Builder
	for lx.pos < len(lx.src) {
		ch := lx.next()
		if ch == ']' {
			return token{Typ: tReference, Val: name.String(), Foreign: foreign, Pos: start}
		}
		name.WriteRune(ch)
	}
	return token{Typ: tSymbol, Val: "[", Pos: start}
}

// tokenizeNumber consumes digits with locale separators, then an optional SI
// magnitude suffix or percent sign. The raw text is parsed by value.ParseNumber.
func (lx *lexer) tokenizeNumber(start int) token {
	var val strings.Builder
	sawDecimal := false
	for lx.pos < len(lx.src) {
		ch := lx.peek()
		switch {
		case unicode.IsDigit(ch):
			val.WriteRune(lx.next())
		case ch == lx.loc.Number.DecimalSeparator && !sawDecimal && unicode.IsDigit(lx.peekN(1)):
			sawDecimal = true
			val.WriteRune(lx.next())
		case ch == lx.loc.Number.ThousandsSeparator && lx.loc.Number.ThousandsSeparator != 0 &&
			!sawDecimal && unicode.IsDigit(lx.peekN(1)):
			val.WriteRune(lx.next())
		default:
			goto suffix
		}
	}
suffix:
	if lx.peek() == '%' {
		val.WriteRune(lx.next())
	} else if suf, n := lx.siSuffixAt(); n > 0 {
		val.WriteString(suf)
		lx.pos += n
	}
	return token{Typ: tNumber, Val: val.String(), Pos: start}
}

// siSuffixAt matches an SI suffix at the cursor, requiring that no further
// identifier character follows (so "2km" is not a magnitude).
func (lx *lexer) siSuffixAt() (string, int) {
	for _, suf := range []string{"da", "h", "k", "M", "G", "T", "P", "E", "Z", "Y", "d", "c", "m", "µ", "n", "p", "f"} {
		runes := []rune(suf)
		match := true
		for i, r := range runes {
			if lx.peekN(i) != r {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		after := lx.peekN(len(runes))
		if after != 0 && (unicode.IsLetter(after) || unicode.IsDigit(after) || after == '_') {
			continue
		}
		return suf, len(runes)
	}
	return "", 0
}

func (lx *lexer) tokenizeIdent(start int) token {
	var val strings.Builder
	for lx.pos < len(lx.src) {
		ch := lx.peek()
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			val.WriteRune(lx.next())
		} else {
			break
		}
	}
	return token{Typ: tIdent, Val: val.String(), Pos: start}
}

func (lx *lexer) tokenizeSymbol(start int) token {
	r := lx.next()
	two := string(r) + string(lx.peek())
	switch r {
	case '<':
		if lx.peek() == '>' || lx.peek() == '=' {
			lx.next()
			return token{Typ: tSymbol, Val: two, Pos: start}
		}
	case '>':
		if lx.peek() == '=' {
			lx.next()
			return token{Typ: tSymbol, Val: two, Pos: start}
		}
	case '~':
		if lx.peek() == '~' && lx.peekN(1) == '=' {
			lx.next()
			lx.next()
			return token{Typ: tSymbol, Val: "~~=", Pos: start}
		}
		if lx.peek() == '=' {
			lx.next()
			return token{Typ: tSymbol, Val: "~=", Pos: start}
		}
	case '±':
		if lx.peek() == '±' && lx.peekN(1) == '=' {
			lx.next()
			lx.next()
			return token{Typ: tSymbol, Val: "±±=", Pos: start}
		}
		if lx.peek() == '=' {
			lx.next()
			return token{Typ: tSymbol, Val: "±=", Pos: start}
		}
	case '-':
		if lx.peek() == '>' {
			lx.next()
			return token{Typ: tSymbol, Val: "->", Pos: start}
		}
	}
	return token{Typ: tSymbol, Val: string(r), Pos: start}
}

// parseNumberToken converts a raw number token using the lexer's locale.
func (lx *lexer) parseNumberToken(raw string) value.Value {
	return value.ParseNumber(raw, lx.loc.Number)
}
