// Package term implements the Prolog term model: the typed AST produced by
// the parser and consumed by the compiler.
//
// This is a fresh, consolidated rewrite of the several term packages found
// across the teacher's history (lang/term, lang/value, lang/types): those
// snapshots disagree with each other on naming and on whether lists are a
// distinct variant. spec.md §3 settles it: Term is a sum type over
// Var/Int/Real/Str/Functor/Clause/Predicate, and §6 pins list sugar to the
// atom "nil" and the functor "cons/2" rather than a dedicated List type, so
// there is no separate list variant here — list syntax desugars to Compound
// in the parser (parse/parser.go).
package term

import (
	"fmt"
	"strconv"
	"strings"
)

// Pos is a source position, carried by every term for error reporting.
type Pos struct {
	Line, Col int
}

// A Term is a node of a parsed Prolog term. The concrete types are Var,
// Int, Real, Atom, and Compound. Clause and Predicate (below) are not Terms
// themselves; they group Terms the way spec.md §3 describes.
type Term interface {
	fmt.Stringer
	isTerm()
	Position() Pos
}

// Var is a (not yet compiled) occurrence of a variable, named by the text
// that appeared in the source. Two occurrences of the same name within one
// clause refer to the same logical variable; occurrences of the anonymous
// "_" never do (spec.md Testable Property 6) — the parser mints a unique
// synthetic name per "_" occurrence before constructing a Var.
type Var struct {
	Name string
	Pos  Pos
}

func (Var) isTerm()          {}
func (v Var) Position() Pos  { return v.Pos }
func (v Var) String() string { return v.Name }

// Int is an integer literal.
type Int struct {
	Val int64
	Pos Pos
}

func (Int) isTerm()          {}
func (t Int) Position() Pos  { return t.Pos }
func (t Int) String() string { return strconv.FormatInt(t.Val, 10) }

// Real is a floating point literal.
type Real struct {
	Val float64
	Pos Pos
}

func (Real) isTerm()          {}
func (t Real) Position() Pos  { return t.Pos }
func (t Real) String() string { return strconv.FormatFloat(t.Val, 'g', -1, 64) }

// Atom is a 0-arity functor: an identifier, a quoted name, or a symbolic
// operator used as a term in its own right.
type Atom struct {
	Name string
	Pos  Pos
}

func (Atom) isTerm()         {}
func (a Atom) Position() Pos { return a.Pos }
func (a Atom) String() string {
	return a.Name
}

// Compound is a functor applied to one or more arguments.
type Compound struct {
	Functor string
	Args    []Term
	Pos     Pos
}

func (Compound) isTerm()         {}
func (c Compound) Position() Pos { return c.Pos }

func (c Compound) Arity() int { return len(c.Args) }

func (c Compound) String() string {
	var b strings.Builder
	b.WriteString(c.Functor)
	b.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Nil is the empty-list atom, per spec.md §6 ("empty list [] is the atom
// nil").
func Nil(pos Pos) Term { return Atom{Name: "nil", Pos: pos} }

// Cons builds the list-cons compound "cons(head, tail)" per spec.md §6.
func Cons(head, tail Term, pos Pos) Term {
	return Compound{Functor: "cons", Args: []Term{head, tail}, Pos: pos}
}

// List builds a proper or partial list term from elements and an optional
// tail (nil means the proper-list empty tail).
func List(elems []Term, tail Term, pos Pos) Term {
	if tail == nil {
		tail = Nil(pos)
	}
	for i := len(elems) - 1; i >= 0; i-- {
		tail = Cons(elems[i], tail, pos)
	}
	return tail
}

// IsNil reports whether t is the empty-list atom.
func IsNil(t Term) bool {
	a, ok := t.(Atom)
	return ok && a.Name == "nil"
}

// IsCons reports whether t is a list-cons compound, and if so returns its
// head and tail.
func IsCons(t Term) (head, tail Term, ok bool) {
	c, isCompound := t.(Compound)
	if !isCompound || c.Functor != "cons" || len(c.Args) != 2 {
		return nil, nil, false
	}
	return c.Args[0], c.Args[1], true
}

// Indicator is a functor/arity pair, used to key predicate and call-point
// tables.
type Indicator struct {
	Name  string
	Arity int
}

func (pi Indicator) String() string {
	return fmt.Sprintf("%s/%d", pi.Name, pi.Arity)
}

// Clause is a parsed Horn clause: Head :- Body. A fact has an empty Body. A
// query (spec.md §4.3, term-to-clause conversion of "?-/1") has a nil Head.
type Clause struct {
	Head Term
	Body []Term
	Pos  Pos
}

// IsQuery reports whether c is a query rather than a program clause.
func (c Clause) IsQuery() bool { return c.Head == nil }

// Indicator returns the functor/arity of the clause head. It panics for a
// query, which has no head.
func (c Clause) Indicator() Indicator {
	switch h := c.Head.(type) {
	case Atom:
		return Indicator{Name: h.Name, Arity: 0}
	case Compound:
		return Indicator{Name: h.Functor, Arity: len(h.Args)}
	default:
		panic(fmt.Sprintf("term: clause head must be atom or compound, got %T", c.Head))
	}
}

func (c Clause) String() string {
	var b strings.Builder
	if c.Head != nil {
		b.WriteString(c.Head.String())
	}
	if len(c.Body) > 0 {
		if c.Head != nil {
			b.WriteString(" :- ")
		} else {
			b.WriteString("?- ")
		}
		for i, g := range c.Body {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(g.String())
		}
	}
	b.WriteByte('.')
	return b.String()
}

// Predicate is the set of clauses sharing one functor/arity, in source
// order. Source order is the order in which try/retry/trust alternatives
// are tried (spec.md Testable Property 4, 5).
type Predicate struct {
	Indicator Indicator
	Clauses   []Clause
}

// FlattenConjunction splits a right-nested ","/2 (or ";"/2, "->"/2 — those
// are left intact as a single goal since the compiler handles them as
// control constructs) term into its top-level goals by walking the
// right-nested ','/2 spine. A bracketed conjunction parses to the same
// Compound shape as an unbracketed one in this grammar, so brackets are
// not distinguished: "a, (b, c)" splits into three goals. Only a
// conjunction in a left operand, as in "(a, b), c", stays one goal.
func FlattenConjunction(t Term) []Term {
	var goals []Term
	for {
		c, ok := t.(Compound)
		if !ok || c.Functor != "," || len(c.Args) != 2 {
			goals = append(goals, t)
			return goals
		}
		goals = append(goals, c.Args[0])
		t = c.Args[1]
	}
}
