package parse

import (
	"fmt"
	"sort"
)

// OpType is the fixity and associativity of an operator, named the ISO way.
type OpType int

const (
	_   OpType = iota
	FX         // non-associative prefix
	FY         // associative prefix
	XFX        // non-associative infix
	XFY        // right-associative infix
	YFX        // left-associative infix
	XF         // non-associative postfix
	YF         // associative postfix
)

func (t OpType) String() string {
	switch t {
	case FX:
		return "fx"
	case FY:
		return "fy"
	case XFX:
		return "xfx"
	case XFY:
		return "xfy"
	case YFX:
		return "yfx"
	case XF:
		return "xf"
	case YF:
		return "yf"
	default:
		return "?"
	}
}

func (t OpType) Prefix() bool  { return t == FX || t == FY }
func (t OpType) Infix() bool   { return t == XFX || t == XFY || t == YFX }
func (t OpType) Postfix() bool { return t == XF || t == YF }

// Op is one entry of the operator table: a name, a priority 1..1200, and a
// fixity/associativity.
type Op struct {
	Name string
	Prec int
	Typ  OpType
}

// byPrec sorts a slice of Op by descending precedence, the order in which
// parser.go's parseIdentOrPrefix and parseInfixLoop try a name's
// definitions: spec.md §4.2 has us try the table's entries and let
// precedence/associativity resolve shift/reduce, so trying higher-priority
// candidates first and falling through is sufficient and deterministic.
type byPrec []Op

func (s byPrec) Len() int           { return len(s) }
func (s byPrec) Less(i, j int) bool { return s[i].Prec > s[j].Prec }
func (s byPrec) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// OpTable is a mutable set of operators, keyed by name. A name has at most
// one definition per fixity class (prefix, infix, postfix), and Define
// refuses to give one name both an infix and a postfix definition, per
// spec.md §4.2.
type OpTable struct {
	byName map[string][]Op
}

// NewOpTable returns an empty table.
func NewOpTable() *OpTable {
	return &OpTable{byName: make(map[string][]Op)}
}

// DefaultOpTable returns a table pre-populated with the ISO priorities from
// spec.md §4.2.
func DefaultOpTable() *OpTable {
	t := NewOpTable()
	for _, op := range defaultOps {
		t.Define(op.Name, op.Prec, op.Typ)
	}
	return t
}

var defaultOps = []Op{
	{":-", 1200, XFX},
	{":-", 1200, FX},
	{"-->", 1200, XFX},
	{"?-", 1200, FX},
	{";", 1100, XFY},
	{"|", 1100, XFY},
	{"->", 1050, XFY},
	{"*->", 1050, XFY},
	{",", 1000, XFY},
	{"\\+", 900, FY},
	{"not", 900, FY},
	{"=", 700, XFX},
	{"\\=", 700, XFX},
	{"==", 700, XFX},
	{"\\==", 700, XFX},
	{"@<", 700, XFX},
	{"@>", 700, XFX},
	{"@=<", 700, XFX},
	{"@>=", 700, XFX},
	{"is", 700, XFX},
	{"=..", 700, XFX},
	{"<", 700, XFX},
	{">", 700, XFX},
	{"=<", 700, XFX},
	{">=", 700, XFX},
	{"=:=", 700, XFX},
	{"=\\=", 700, XFX},
	{"+", 500, YFX},
	{"-", 500, YFX},
	{"/\\", 500, YFX},
	{"\\/", 500, YFX},
	{"xor", 500, YFX},
	{"+", 200, FY},
	{"-", 200, FY},
	{"*", 400, YFX},
	{"/", 400, YFX},
	{"//", 400, YFX},
	{"rem", 400, YFX},
	{"mod", 400, YFX},
	{"div", 400, YFX},
	{"<<", 400, YFX},
	{">>", 400, YFX},
	{"**", 200, XFX},
	{"^", 200, XFY},
}

// sameClass reports whether two operator definitions would occupy the same
// fixity slot (and so should replace one another rather than coexist).
func sameClass(a, b OpType) bool {
	return (a.Prefix() && b.Prefix()) || (a.Infix() && b.Infix()) || (a.Postfix() && b.Postfix())
}

// Define installs or replaces an operator. A priority of 0 removes any
// operator of the same fixity class and name, per spec.md §4.2 ("priority 0
// removes"). Simultaneous postfix+infix of the same name is rejected.
func (t *OpTable) Define(name string, prec int, typ OpType) error {
	if typ.Infix() {
		for _, existing := range t.byName[name] {
			if existing.Typ.Postfix() {
				return fmt.Errorf("parse: %q cannot be both infix and postfix", name)
			}
		}
	}
	if typ.Postfix() {
		for _, existing := range t.byName[name] {
			if existing.Typ.Infix() {
				return fmt.Errorf("parse: %q cannot be both infix and postfix", name)
			}
		}
	}

	existing := t.byName[name]
	out := existing[:0:0]
	replaced := false
	for _, op := range existing {
		if sameClass(op.Typ, typ) {
			replaced = true
			if prec == 0 {
				continue // drop it: removal
			}
			out = append(out, Op{Name: name, Prec: prec, Typ: typ})
			continue
		}
		out = append(out, op)
	}
	if !replaced && prec != 0 {
		out = append(out, Op{Name: name, Prec: prec, Typ: typ})
	}
	sort.Sort(byPrec(out))
	if len(out) == 0 {
		delete(t.byName, name)
	} else {
		t.byName[name] = out
	}
	return nil
}

// Lookup returns every operator definition registered under name (at most
// one per fixity class).
func (t *OpTable) Lookup(name string) []Op {
	return t.byName[name]
}

// IsOperator reports whether name has any definition at all.
func (t *OpTable) IsOperator(name string) bool {
	return len(t.byName[name]) > 0
}

// Names returns every operator name in the table, longest first.
func (t *OpTable) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}
