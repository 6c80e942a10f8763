package parse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupertlssmith/lojix-sub000/parse"
	"github.com/rupertlssmith/lojix-sub000/term"
)

func parseOne(t *testing.T, src string) term.Clause {
	t.Helper()
	cs, err := parse.ParseString(src)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	return cs[0]
}

func TestParseFact(t *testing.T) {
	c := parseOne(t, "p(a,b).")
	assert.False(t, c.IsQuery())
	assert.Equal(t, "p(a,b)", c.Head.String())
	assert.Empty(t, c.Body)
}

func TestParseRuleFlattensConjunction(t *testing.T) {
	c := parseOne(t, "r(X) :- q(X), s(X), t(X).")
	assert.Len(t, c.Body, 3)
	assert.Equal(t, "q(X)", c.Body[0].String())
	assert.Equal(t, "t(X)", c.Body[2].String())
}

func TestParseQuery(t *testing.T) {
	c := parseOne(t, "?- p(X).")
	assert.True(t, c.IsQuery())
	assert.Len(t, c.Body, 1)
}

func TestOperatorPrecedenceArithmetic(t *testing.T) {
	c := parseOne(t, "q :- X = 1+2*3.")
	eq := c.Body[0].(term.Compound)
	require.Equal(t, "=", eq.Functor)
	rhs := eq.Args[1].(term.Compound)
	assert.Equal(t, "+", rhs.Functor)
	mul := rhs.Args[1].(term.Compound)
	assert.Equal(t, "*", mul.Functor)
}

func TestListSyntax(t *testing.T) {
	c := parseOne(t, "p([1,2|X]).")
	compound := c.Head.(term.Compound)
	head, tail, ok := term.IsCons(compound.Args[0])
	require.True(t, ok)
	assert.Equal(t, int64(1), head.(term.Int).Val)
	h2, t2, ok := term.IsCons(tail)
	require.True(t, ok)
	assert.Equal(t, int64(2), h2.(term.Int).Val)
	assert.Equal(t, "X", t2.(term.Var).Name)
}

func TestNegativeNumberLiteral(t *testing.T) {
	c := parseOne(t, "p(-1).")
	compound := c.Head.(term.Compound)
	assert.Equal(t, int64(-1), compound.Args[0].(term.Int).Val)
}

func TestDisjunctionParsesAsSemicolon(t *testing.T) {
	c := parseOne(t, "p(X) :- X = a ; X = b.")
	disj := c.Body[0].(term.Compound)
	assert.Equal(t, ";", disj.Functor)
}

func TestAnonymousVariablesAreDistinct(t *testing.T) {
	c := parseOne(t, "p(_, _).")
	compound := c.Head.(term.Compound)
	v1 := compound.Args[0].(term.Var)
	v2 := compound.Args[1].(term.Var)
	assert.NotEqual(t, v1.Name, v2.Name)
}

func TestParsePrintParseRoundTrip(t *testing.T) {
	for _, src := range []string{
		"p(a,b).",
		"r(X) :- q(X), s(X).",
		"app(cons(H,T), L, cons(H,R)) :- app(T, L, R).",
		"p(X) :- X = 1+2*3.",
	} {
		first := parseOne(t, src)
		second := parseOne(t, first.String())
		assert.Equal(t, first.String(), second.String(), "round-tripping %q", src)
	}
}

func TestUnclosedGroupIsSyntaxError(t *testing.T) {
	_, err := parse.ParseString("p(X.")
	assert.Error(t, err)
}

func TestQuotedAtomUnescapes(t *testing.T) {
	c := parseOne(t, "p('hello world').")
	compound := c.Head.(term.Compound)
	assert.Equal(t, "hello world", compound.Args[0].(term.Atom).Name)
}

func TestDoubleQuotedStringIsCodeList(t *testing.T) {
	c := parseOne(t, `p("ab").`)
	compound := c.Head.(term.Compound)
	h, tail, ok := term.IsCons(compound.Args[0])
	require.True(t, ok)
	assert.Equal(t, int64('a'), h.(term.Int).Val)
	h2, _, ok := term.IsCons(tail)
	require.True(t, ok)
	assert.Equal(t, int64('b'), h2.(term.Int).Val)
}
