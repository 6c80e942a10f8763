// Parser implements the dynamic-operator reader from spec.md §4.2. It is
// grounded on the teacher's lang/parse/parser.go (a buffered, pushable token
// stream feeding a priority-driven term reader) but is restructured as
// recursive-descent precedence climbing rather than the teacher's
// iterative readOp loop: the two are equivalent resolutions of the same
// shift/reduce table (reduce when priority(prev) < priority(next), shift
// when greater, and consult associativity when equal), but recursion
// expresses the "read right-hand side bounded by a max priority" rule
// directly instead of threading explicit priority stacks. This choice is
// recorded in DESIGN.md.
package parse

import (
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/rupertlssmith/lojix-sub000/term"
)

// Parser reads successive clauses from a Lexer under a given OpTable.
type Parser struct {
	l           Lexer
	ops         *OpTable
	buf         []Token
	pos         int
	anonCounter int
}

// NewParser constructs a Parser reading from l under ops.
func NewParser(l Lexer, ops *OpTable) *Parser {
	return &Parser{l: l, ops: ops}
}

// ParseString parses every clause in str using the default operator table.
func ParseString(str string) ([]term.Clause, error) {
	return ParseStringOps(str, DefaultOpTable())
}

// ParseStringOps parses every clause in str under ops. Parsing does not
// stop at the first syntax error: each failing clause is skipped up to its
// next clause terminator, and all errors are collected via
// github.com/hashicorp/go-multierror, matching spec.md §7 (multiple parse
// errors are all surfaced, not just the first).
func ParseStringOps(str string, ops *OpTable) ([]term.Clause, error) {
	lex := Lex(strings.NewReader(str), ops)
	defer lex.Close()
	p := NewParser(lex, ops)

	var clauses []term.Clause
	var errs *multierror.Error
	for {
		c, err := p.NextClause()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = multierror.Append(errs, err)
			p.resync()
			continue
		}
		clauses = append(clauses, c)
	}
	return clauses, errs.ErrorOrNil()
}

// NextClause reads and converts the next sentence, per the term-to-clause
// conversion rules of spec.md §4.3: a top-level ":-"/2 becomes a rule, a
// top-level "?-"/1 becomes a query, and anything else becomes a fact.
func (p *Parser) NextClause() (term.Clause, error) {
	p.skipLayout()
	if p.peekRaw(0).Typ == EOF {
		return term.Clause{}, io.EOF
	}

	t, _, err := p.parseExpr(1200)
	if err != nil {
		return term.Clause{}, err
	}
	if t == nil {
		return term.Clause{}, io.EOF
	}

	tok := p.readRaw()
	if tok.Typ != EOC {
		return term.Clause{}, unexpectedf(tok, "expected '.' to end clause, found %v", tok)
	}

	return toClause(t), nil
}

// toClause implements spec.md §4.3's term-to-clause conversion.
func toClause(t term.Term) term.Clause {
	if c, ok := t.(term.Compound); ok {
		switch {
		case c.Functor == ":-" && len(c.Args) == 2:
			return term.Clause{Head: c.Args[0], Body: term.FlattenConjunction(c.Args[1]), Pos: c.Pos}
		case c.Functor == "?-" && len(c.Args) == 1:
			return term.Clause{Head: nil, Body: term.FlattenConjunction(c.Args[0]), Pos: c.Pos}
		}
	}
	return term.Clause{Head: t, Body: nil}
}

// resync discards tokens up to and including the next clause terminator (or
// EOF), so that parsing of subsequent clauses can continue after an error.
func (p *Parser) resync() {
	for {
		tok := p.readRaw()
		if tok.Typ == EOC || tok.Typ == EOF {
			return
		}
	}
}

// Token buffer
// --------------------------------------------------

func (p *Parser) fill(n int) {
	for len(p.buf) <= n {
		tok, err := p.l.NextToken()
		if err != nil && err != io.EOF {
			tok = Token{Val: err.Error(), Typ: ERROR}
		}
		p.buf = append(p.buf, tok)
	}
}

func (p *Parser) peekRaw(offset int) Token {
	p.fill(p.pos + offset)
	return p.buf[p.pos+offset]
}

func (p *Parser) readRaw() Token {
	tok := p.peekRaw(0)
	p.pos++
	return tok
}

func (p *Parser) skipLayout() {
	for {
		tok := p.peekRaw(0)
		if tok.Typ != SPACE && tok.Typ != COMMENT {
			return
		}
		p.pos++
	}
}

// canStartOperand reports whether tok could begin a term, used to decide
// whether a prefix operator actually has an operand following it or should
// instead be read as a bare atom.
func (p *Parser) canStartOperand(tok Token) bool {
	switch tok.Typ {
	case GROUP_CLOSE, LIST_CLOSE, EOC, EOF, ERROR:
		return false
	case IDENT:
		ops := p.ops.Lookup(tok.Val)
		if len(ops) == 0 {
			return true // a plain atom
		}
		for _, op := range ops {
			if op.Typ.Prefix() {
				return true
			}
		}
		// every definition of this name is infix/postfix only: it cannot
		// itself start a term, so there is no operand here.
		return false
	default:
		return true
	}
}

// Grammar
// --------------------------------------------------

// parseExpr reads one term whose overall priority does not exceed maxPrec,
// per spec.md §4.2's T→t | op T | T op | T op T rules.
func (p *Parser) parseExpr(maxPrec int) (term.Term, int, error) {
	lhs, lhsPrec, err := p.parsePrimary(maxPrec)
	if err != nil {
		return nil, 0, err
	}
	if lhs == nil {
		return nil, maxPrec, nil
	}
	return p.parseInfixLoop(lhs, lhsPrec, maxPrec)
}

func (p *Parser) parsePrimary(maxPrec int) (term.Term, int, error) {
	p.skipLayout()
	tok := p.peekRaw(0)

	switch tok.Typ {
	case VAR:
		p.readRaw()
		name := tok.Val
		if name == "_" {
			name = p.freshAnon()
		}
		return term.Var{Name: name, Pos: pos(tok)}, 0, nil

	case NUM:
		p.readRaw()
		return parseNumber(tok)

	case STRLIT:
		p.readRaw()
		return unescapeString(tok), 0, nil

	case GROUP_OPEN:
		p.readRaw()
		inner, _, err := p.parseExpr(1200)
		if err != nil {
			return nil, 0, err
		}
		close := p.readRaw()
		if close.Typ != GROUP_CLOSE {
			return nil, 0, unexpectedf(close, "expected ')', found %v", close)
		}
		return inner, 0, nil

	case LIST_OPEN:
		return p.parseList()

	case IDENT:
		return p.parseIdentOrPrefix(tok, maxPrec)

	case GROUP_CLOSE, LIST_CLOSE, EOC, EOF:
		return nil, maxPrec, nil

	case ERROR:
		return nil, 0, unexpectedf(tok, "%s", tok.Val)

	default:
		return nil, 0, unexpectedf(tok, "unexpected token %v", tok)
	}
}

func (p *Parser) parseIdentOrPrefix(tok Token, maxPrec int) (term.Term, int, error) {
	name := identText(tok.Val)
	p.readRaw()

	// A name immediately followed by '(' with no intervening layout is a
	// compound term, never an operator application.
	if p.peekRaw(0).Typ == GROUP_OPEN {
		p.readRaw()
		args, err := p.parseArgList()
		if err != nil {
			return nil, 0, err
		}
		return term.Compound{Functor: name, Args: args, Pos: pos(tok)}, 0, nil
	}

	for _, op := range p.ops.Lookup(name) {
		if !op.Typ.Prefix() || op.Prec > maxPrec {
			continue
		}
		if !p.canStartOperand(p.peekRaw(0)) {
			continue
		}
		rhsMax := op.Prec
		if op.Typ == FX {
			rhsMax--
		}
		mark := p.pos
		rhs, _, err := p.parseExpr(rhsMax)
		if err != nil || rhs == nil {
			p.pos = mark
			continue
		}
		if name == "-" {
			if n, ok := rhs.(term.Int); ok {
				return term.Int{Val: -n.Val, Pos: pos(tok)}, 0, nil
			}
			if n, ok := rhs.(term.Real); ok {
				return term.Real{Val: -n.Val, Pos: pos(tok)}, 0, nil
			}
		}
		return term.Compound{Functor: name, Args: []term.Term{rhs}, Pos: pos(tok)}, op.Prec, nil
	}

	return term.Atom{Name: name, Pos: pos(tok)}, 0, nil
}

func (p *Parser) parseArgList() ([]term.Term, error) {
	var args []term.Term
	if p.peekRaw(0).Typ == GROUP_CLOSE {
		p.readRaw()
		return args, nil
	}
	for {
		arg, _, err := p.parseExpr(999)
		if err != nil {
			return nil, err
		}
		if arg == nil {
			return nil, unexpectedf(p.peekRaw(0), "expected argument")
		}
		args = append(args, arg)
		p.skipLayout()
		sep := p.readRaw()
		switch {
		case sep.Typ == IDENT && sep.Val == ",":
			continue
		case sep.Typ == GROUP_CLOSE:
			return args, nil
		default:
			return nil, unexpectedf(sep, "expected ',' or ')', found %v", sep)
		}
	}
}

func (p *Parser) parseList() (term.Term, int, error) {
	open := p.readRaw() // '['
	p.skipLayout()
	if p.peekRaw(0).Typ == LIST_CLOSE {
		p.readRaw()
		return term.Nil(pos(open)), 0, nil
	}

	var elems []term.Term
	var tail term.Term
	for {
		e, _, err := p.parseExpr(999)
		if err != nil {
			return nil, 0, err
		}
		elems = append(elems, e)
		p.skipLayout()
		sep := p.readRaw()
		switch {
		case sep.Typ == IDENT && sep.Val == ",":
			continue
		case sep.Typ == IDENT && sep.Val == "|":
			t, _, err := p.parseExpr(999)
			if err != nil {
				return nil, 0, err
			}
			tail = t
			p.skipLayout()
			close := p.readRaw()
			if close.Typ != LIST_CLOSE {
				return nil, 0, unexpectedf(close, "expected ']', found %v", close)
			}
			return term.List(elems, tail, pos(open)), 0, nil
		case sep.Typ == LIST_CLOSE:
			return term.List(elems, nil, pos(open)), 0, nil
		default:
			return nil, 0, unexpectedf(sep, "expected ',', '|' or ']', found %v", sep)
		}
	}
}

func (p *Parser) parseInfixLoop(lhs term.Term, lhsPrec, maxPrec int) (term.Term, int, error) {
	for {
		p.skipLayout()
		tok := p.peekRaw(0)
		if tok.Typ != IDENT {
			return lhs, lhsPrec, nil
		}

		var chosen *Op
		for _, op := range p.ops.Lookup(tok.Val) {
			op := op
			switch {
			case op.Typ.Infix():
				if op.Prec > maxPrec {
					continue
				}
				if op.Typ == YFX {
					if lhsPrec > op.Prec {
						continue
					}
				} else if lhsPrec >= op.Prec {
					continue
				}
				chosen = &op
			case op.Typ.Postfix():
				if op.Prec > maxPrec {
					continue
				}
				if op.Typ == YF {
					if lhsPrec > op.Prec {
						continue
					}
				} else if lhsPrec >= op.Prec {
					continue
				}
				chosen = &op
			}
			if chosen != nil {
				break
			}
		}
		if chosen == nil {
			return lhs, lhsPrec, nil
		}

		p.readRaw()
		if chosen.Typ.Postfix() {
			lhs = term.Compound{Functor: tok.Val, Args: []term.Term{lhs}, Pos: pos(tok)}
			lhsPrec = chosen.Prec
			continue
		}

		rhsMax := chosen.Prec
		if chosen.Typ == XFX || chosen.Typ == YFX {
			rhsMax--
		}
		rhs, _, err := p.parseExpr(rhsMax)
		if err != nil {
			return nil, 0, err
		}
		if rhs == nil {
			return nil, 0, priorityClash(tok)
		}
		lhs = term.Compound{Functor: tok.Val, Args: []term.Term{lhs, rhs}, Pos: pos(tok)}
		lhsPrec = chosen.Prec
	}
}

// Literal helpers
// --------------------------------------------------

func pos(tok Token) term.Pos { return term.Pos{Line: tok.LineNo, Col: tok.ColNo} }

func (p *Parser) freshAnon() string {
	p.anonCounter++
	return "_G" + strconv.Itoa(p.anonCounter)
}

func parseNumber(tok Token) (term.Term, int, error) {
	if strings.ContainsAny(tok.Val, ".eE") {
		f, err := strconv.ParseFloat(tok.Val, 64)
		if err != nil {
			return nil, 0, unexpectedf(tok, "invalid real literal %q: %v", tok.Val, err)
		}
		return term.Real{Val: f, Pos: pos(tok)}, 0, nil
	}
	i, err := strconv.ParseInt(tok.Val, 10, 64)
	if err != nil {
		return nil, 0, unexpectedf(tok, "invalid integer literal %q: %v", tok.Val, err)
	}
	return term.Int{Val: i, Pos: pos(tok)}, 0, nil
}

// unescapeString converts a double-quoted literal to the ISO code-list
// reading: a "cons"-chain of character-code integers, per the supplement in
// SPEC_FULL.md §4.2.
func unescapeString(tok Token) term.Term {
	raw := tok.Val
	inner := raw
	if len(raw) >= 2 {
		inner = raw[1 : len(raw)-1]
	}
	unescaped := unescape(inner)
	codes := make([]term.Term, 0, len(unescaped))
	for _, r := range unescaped {
		codes = append(codes, term.Int{Val: int64(r), Pos: pos(tok)})
	}
	return term.List(codes, nil, pos(tok))
}

// identText strips the surrounding quotes from a quoted atom token and
// unescapes its contents; plain identifiers and symbolic atoms pass through
// unchanged.
func identText(raw string) string {
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		return unescape(raw[1 : len(raw)-1])
	}
	return raw
}

func unescape(s string) string {
	var b strings.Builder
	esc := false
	for _, r := range s {
		if esc {
			switch r {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteRune(r)
			default:
				b.WriteRune(r)
			}
			esc = false
			continue
		}
		if r == '\\' {
			esc = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
