// Package sequencer compiles restricted regular expressions into finite,
// restartable value sequences.
//
// What: Patterns support literals, character sets [abc], ranges [a-z],
// grouping (...), alternation a|b, repetition x{n} and optionality x?. A
// compiled pattern enumerates every string it denotes and can report an
// exact cardinality when that count is representable.
// How: A recursive-descent parser produces a small node tree; enumeration is
// odometer-style, composing per-node iterators so that production stays lazy
// even when the cardinality overflows a uint64.
// Why: Synthetic data generation and cardinality estimates both need the
// same pattern machinery; counting must never fall back to enumeration.
package sequencer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/tabflow/internal/value"
)

// alphabet fixes the ordering used by character ranges. A range takes the
// slice between its endpoints, so [a-Z] spans the full mixed-case alphabet
// while a descending range like [z-a] denotes the empty set.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Pattern is a compiled sequence pattern. Compile once, iterate repeatedly;
// every iteration produces the same set in the same order.
type Pattern struct {
	root   node
	source string
}

// Compile parses a pattern. It returns an error (and no pattern) on invalid
// syntax; there is no partial result.
func Compile(pattern string) (*Pattern, error) {
	p := &patternParser{src: []rune(pattern)}
	n, err := p.parseAlternation()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("sequencer: unexpected %q at position %d", string(p.src[p.pos]), p.pos)
	}
	return &Pattern{root: n, source: pattern}, nil
}

// Source returns the original pattern text.
func (pt *Pattern) Source() string { return pt.source }

// Cardinality returns the exact number of producible values, or ok == false
// when the count exceeds the representable range. It never enumerates.
func (pt *Pattern) Cardinality() (uint64, bool) {
	return pt.root.cardinality()
}

// Iterate returns a fresh iterator over the pattern's values.
func (pt *Pattern) Iterate() *Iterator {
	it := pt.root.iter()
	return &Iterator{node: it, fresh: it.reset()}
}

// Iterator walks a compiled pattern's values in deterministic order.
type Iterator struct {
	node  nodeIter
	fresh bool
	done  bool
}

// Next returns the next produced value. ok is false once the sequence is
// exhausted.
func (it *Iterator) Next() (value.Value, bool) {
	if it.done || !it.fresh {
		return value.Invalid, false
	}
	v := value.String(it.node.current())
	if !it.node.advance() {
		it.done = true
	}
	return v, true
}

// ------------------------------ node tree ------------------------------

type node interface {
	cardinality() (uint64, bool)
	iter() nodeIter
}

type nodeIter interface {
	// reset restarts the iterator; false means the node produces nothing.
	reset() bool
	current() string
	// advance moves to the next item; false when exhausted.
	advance() bool
}

// literal produces exactly one string (possibly empty).
type literalNode struct{ text string }

func (n literalNode) cardinality() (uint64, bool) { return 1, true }
func (n literalNode) iter() nodeIter              { return &literalIter{text: n.text} }

type literalIter struct{ text string }

func (it *literalIter) reset() bool     { return true }
func (it *literalIter) current() string { return it.text }
func (it *literalIter) advance() bool   { return false }

// charsetNode produces each rune of its set in order.
type charsetNode struct{ runes []rune }

func (n charsetNode) cardinality() (uint64, bool) { return uint64(len(n.runes)), true }
func (n charsetNode) iter() nodeIter              { return &charsetIter{runes: n.runes} }

type charsetIter struct {
	runes []rune
	pos   int
}

func (it *charsetIter) reset() bool {
	it.pos = 0
	return len(it.runes) > 0
}
func (it *charsetIter) current() string { return string(it.runes[it.pos]) }
func (it *charsetIter) advance() bool {
	it.pos++
	return it.pos < len(it.runes)
}

// seqNode concatenates its children; enumeration is an odometer with the
// rightmost child spinning fastest.
type seqNode struct{ children []node }

func (n seqNode) cardinality() (uint64, bool) {
	total := uint64(1)
	for _, c := range n.children {
		cc, ok := c.cardinality()
		if !ok {
			return 0, false
		}
		total, ok = mulNoOverflow(total, cc)
		if !ok {
			return 0, false
		}
	}
	return total, true
}

func (n seqNode) iter() nodeIter {
	its := make([]nodeIter, len(n.children))
	for i, c := range n.children {
		its[i] = c.iter()
	}
	return &seqIter{children: its}
}

type seqIter struct{ children []nodeIter }

func (it *seqIter) reset() bool {
	for _, c := range it.children {
		if !c.reset() {
			return false
		}
	}
	return true
}

func (it *seqIter) current() string {
	var b strings.Builder
	for _, c := range it.children {
		b.WriteString(c.current())
	}
	return b.String()
}

func (it *seqIter) advance() bool {
	for i := len(it.children) - 1; i >= 0; i-- {
		if it.children[i].advance() {
			return true
		}
		it.children[i].reset()
	}
	return false
}

// altNode produces its branches one after the other, skipping branches that
// denote the empty set.
type altNode struct{ branches []node }

func (n altNode) cardinality() (uint64, bool) {
	total := uint64(0)
	for _, b := range n.branches {
		bc, ok := b.cardinality()
		if !ok {
			return 0, false
		}
		total, ok = addNoOverflow(total, bc)
		if !ok {
			return 0, false
		}
	}
	return total, true
}

func (n altNode) iter() nodeIter {
	its := make([]nodeIter, len(n.branches))
	for i, b := range n.branches {
		its[i] = b.iter()
	}
	return &altIter{branches: its}
}

type altIter struct {
	branches []nodeIter
	pos      int
}

func (it *altIter) reset() bool {
	for i, b := range it.branches {
		if b.reset() {
			it.pos = i
			return true
		}
	}
	return false
}
func (it *altIter) current() string { return it.branches[it.pos].current() }
func (it *altIter) advance() bool {
	if it.branches[it.pos].advance() {
		return true
	}
	for i := it.pos + 1; i < len(it.branches); i++ {
		if it.branches[i].reset() {
			it.pos = i
			return true
		}
	}
	return false
}

// repeatNode repeats its child exactly n times (x{n}); cardinality c^n.
type repeatNode struct {
	child node
	count int
}

func (n repeatNode) cardinality() (uint64, bool) {
	cc, ok := n.child.cardinality()
	if !ok {
		return 0, false
	}
	total := uint64(1)
	for i := 0; i < n.count; i++ {
		total, ok = mulNoOverflow(total, cc)
		if !ok {
			return 0, false
		}
	}
	return total, true
}

func (n repeatNode) iter() nodeIter {
	children := make([]nodeIter, n.count)
	for i := range children {
		children[i] = n.child.iter()
	}
	return &seqIter{children: children}
}

func mulNoOverflow(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

func addNoOverflow(a, b uint64) (uint64, bool) {
	s := a + b
	if s < a {
		return 0, false
	}
	return s, true
}

// ------------------------------ parser ------------------------------

type patternParser struct {
	src []rune
	pos int
}

func (p *patternParser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *patternParser) next() rune {
	r := p.peek()
	p.pos++
	return r
}

func (p *patternParser) parseAlternation() (node, error) {
	first, err := p.parseSequence()
	if err != nil {
		return nil, err
	}
	branches := []node{first}
	for p.peek() == '|' {
		p.next()
		b, err := p.parseSequence()
		if err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if len(branches) == 1 {
		return first, nil
	}
	return altNode{branches: branches}, nil
}

func (p *patternParser) parseSequence() (node, error) {
	var children []node
	for {
		r := p.peek()
		if r == 0 || r == '|' || r == ')' {
			break
		}
		atom, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		atom, err = p.parsePostfix(atom)
		if err != nil {
			return nil, err
		}
		children = append(children, atom)
	}
	switch len(children) {
	case 0:
		return literalNode{}, nil
	case 1:
		return children[0], nil
	}
	return seqNode{children: children}, nil
}

func (p *patternParser) parsePostfix(atom node) (node, error) {
	for {
		switch p.peek() {
		case '?':
			p.next()
			atom = altNode{branches: []node{literalNode{}, atom}}
		case '{':
			p.next()
			var digits strings.Builder
			for p.peek() >= '0' && p.peek() <= '9' {
				digits.WriteRune(p.next())
			}
			if p.peek() != '}' || digits.Len() == 0 {
				return nil, fmt.Errorf("sequencer: malformed repetition at position %d", p.pos)
			}
			p.next()
			n, err := strconv.Atoi(digits.String())
			if err != nil {
				return nil, fmt.Errorf("sequencer: repetition count: %w", err)
			}
			atom = repeatNode{child: atom, count: n}
		default:
			return atom, nil
		}
	}
}

func (p *patternParser) parseAtom() (node, error) {
	switch r := p.peek(); r {
	case '(':
		p.next()
		inner, err := p.parseAlternation()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("sequencer: missing ')' at position %d", p.pos)
		}
		p.next()
		return inner, nil
	case '[':
		p.next()
		return p.parseCharset()
	case '\\':
		p.next()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("sequencer: dangling escape")
		}
		return literalNode{text: string(p.next())}, nil
	case ']', '}', '?', '{':
		return nil, fmt.Errorf("sequencer: unexpected %q at position %d", string(r), p.pos)
	default:
		return literalNode{text: string(p.next())}, nil
	}
}

func (p *patternParser) parseCharset() (node, error) {
	var runes []rune
	for {
		r := p.peek()
		if r == 0 {
			return nil, fmt.Errorf("sequencer: missing ']'")
		}
		if r == ']' {
			p.next()
			return charsetNode{runes: runes}, nil
		}
		if r == '\\' {
			p.next()
			if p.pos >= len(p.src) {
				return nil, fmt.Errorf("sequencer: dangling escape in set")
			}
			runes = append(runes, p.next())
			continue
		}
		lo := p.next()
		if p.peek() == '-' && p.pos+1 < len(p.src) && p.src[p.pos+1] != ']' {
			p.next()
			hi := p.next()
			runes = append(runes, expandRange(lo, hi)...)
			continue
		}
		runes = append(runes, lo)
	}
}

// expandRange yields the characters between lo and hi. Endpoints inside the
// fixed alphabet use alphabet positions; others use codepoint order. A
// descending range is empty.
func expandRange(lo, hi rune) []rune {
	li := strings.IndexRune(alphabet, lo)
	hiIdx := strings.IndexRune(alphabet, hi)
	if li >= 0 && hiIdx >= 0 {
		if li > hiIdx {
			return nil
		}
		return []rune(alphabet[li : hiIdx+1])
	}
	if lo > hi {
		return nil
	}
	out := make([]rune, 0, hi-lo+1)
	for r := lo; r <= hi; r++ {
		out = append(out, r)
	}
	return out
}
