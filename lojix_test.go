package lojix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupertlssmith/lojix-sub000"
)

// solutions drains every solution of query against program's facts via
// Get(name) on each, used to check the exact end-to-end scenarios of
// spec.md §8's table.
func solutions(t *testing.T, program, query, name string) []string {
	t.Helper()
	mod, err := lojix.Compile(program)
	require.NoError(t, err)
	res, err := mod.Prepare(query)
	require.NoError(t, err)

	var out []string
	for {
		b, ok := res.Next()
		if !ok {
			break
		}
		v, found := b.Get(name)
		require.True(t, found)
		out = append(out, v.String())
	}
	return out
}

func TestScenario1EnumerateFacts(t *testing.T) {
	got := solutions(t, "p(a). p(b). p(c).", "?- p(X).", "X")
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestScenario2AppendConcrete(t *testing.T) {
	prog := `app(nil, L, L). app(cons(H,T), L, cons(H,R)) :- app(T, L, R).`
	mod, err := lojix.Compile(prog)
	require.NoError(t, err)
	res, err := mod.Prepare("?- app(cons(1,cons(2,nil)), cons(3,cons(4,nil)), Z).")
	require.NoError(t, err)
	b, ok := res.Next()
	require.True(t, ok)
	z, found := b.Get("Z")
	require.True(t, found)
	assert.Equal(t, "cons(1,cons(2,cons(3,cons(4,nil))))", z.String())
	_, ok = res.Next()
	assert.False(t, ok)
}

func TestScenario3AppendGeneratesSplits(t *testing.T) {
	prog := `app(nil, L, L). app(cons(H,T), L, cons(H,R)) :- app(T, L, R).`
	mod, err := lojix.Compile(prog)
	require.NoError(t, err)
	res, err := mod.Prepare("?- app(X, Y, cons(1,cons(2,nil))).")
	require.NoError(t, err)

	var xs []string
	for {
		b, ok := res.Next()
		if !ok {
			break
		}
		x, _ := b.Get("X")
		xs = append(xs, x.String())
	}
	assert.Equal(t, []string{"nil", "cons(1,nil)", "cons(1,cons(2,nil))"}, xs)
}

func TestScenario4CutPrunesAlternative(t *testing.T) {
	prog := `q(1). q(2). r(X) :- q(X), !, X > 0.`
	got := solutions(t, prog, "?- r(X).", "X")
	assert.Equal(t, []string{"1"}, got)
}

func TestScenario5NestedStructureUnification(t *testing.T) {
	prog := `nat(0). nat(s(N)) :- nat(N).`
	mod, err := lojix.Compile(prog)
	require.NoError(t, err)
	res, err := mod.Prepare("?- nat(s(s(0))).")
	require.NoError(t, err)
	_, ok := res.Next()
	assert.True(t, ok)
	_, ok = res.Next()
	assert.False(t, ok)
}

func TestScenario6Disjunction(t *testing.T) {
	prog := `p(X) :- X = a ; X = b.`
	got := solutions(t, prog, "?- p(X).", "X")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestIfThenElseCommitsToThen(t *testing.T) {
	prog := `
		q(1). q(2).
		p(X, R) :- ( q(X) -> R = yes ; R = no ).
	`
	got := solutions(t, prog, "?- p(1, R).", "R")
	assert.Equal(t, []string{"yes"}, got, "cond succeeded: only the then-branch, committed")

	got = solutions(t, prog, "?- p(3, R).", "R")
	assert.Equal(t, []string{"no"}, got, "cond failed: the else-branch runs")
}

func TestIfThenElseKeepsOuterChoicePoints(t *testing.T) {
	// The commit after the condition must prune only the construct's own
	// choice points: s/1's alternatives stay live.
	prog := `
		s(1). s(2).
		p(X, R) :- s(X), ( X > 0 -> R = pos ; R = neg ).
	`
	got := solutions(t, prog, "?- p(X, R).", "X")
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestDisjunctionVariableFirstBoundInsideBranch(t *testing.T) {
	// Y is first materialised inside the left branch; the right branch must
	// build it afresh after the left branch's bindings are undone.
	prog := `
		q(a). r(b).
		p(Z) :- ( q(Y), Z = Y ; r(Y), Z = Y ).
	`
	got := solutions(t, prog, "?- p(Z).", "Z")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestNestedStructureArgumentsBuiltContiguously(t *testing.T) {
	prog := `eq(X, X).`
	mod, err := lojix.Compile(prog)
	require.NoError(t, err)
	res, err := mod.Prepare("?- eq(f(g(1), h(2, i(3))), Z).")
	require.NoError(t, err)
	b, ok := res.Next()
	require.True(t, ok)
	z, found := b.Get("Z")
	require.True(t, found)
	assert.Equal(t, "f(g(1),h(2,i(3)))", z.String())
}

func TestAnonymousVariablesDoNotCoUnify(t *testing.T) {
	got := solutions(t, "pair(a, b).", "?- pair(_, _), X = ok.", "X")
	assert.Equal(t, []string{"ok"}, got)
}

func TestLinkErrorStrictMode(t *testing.T) {
	_, err := lojix.Compile("p(X) :- q(X).")
	assert.Error(t, err)
}

func TestLinkErrorLenientModeFailsAtRuntime(t *testing.T) {
	mod, err := lojix.Compile("p(X) :- q(X).", lojix.WithLenientLinkage())
	require.NoError(t, err)
	res, err := mod.Prepare("?- p(X).")
	require.NoError(t, err)
	_, ok := res.Next()
	assert.False(t, ok)
}

func TestArithmeticIsAndComparison(t *testing.T) {
	got := solutions(t, "", "?- X is 2+3*4, X > 10.", "X")
	require.Len(t, got, 1)
	assert.Equal(t, "14", got[0])
}

func TestQueryMustBeASingleSentence(t *testing.T) {
	mod, err := lojix.Compile("p(a).")
	require.NoError(t, err)
	_, err = mod.Prepare("p(X).")
	assert.Error(t, err)
}

func TestBindingsNamesListsQueryVariables(t *testing.T) {
	mod, err := lojix.Compile("p(a,b).")
	require.NoError(t, err)
	res, err := mod.Prepare("?- p(X, Y).")
	require.NoError(t, err)
	b, ok := res.Next()
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"X", "Y"}, b.Names())
}
