package wam_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupertlssmith/lojix-sub000/parse"
	"github.com/rupertlssmith/lojix-sub000/sym"
	"github.com/rupertlssmith/lojix-sub000/wam"
)

// compileProgram parses and compiles src's clauses into a fresh Module,
// using the default (strict) linkage.
func compileProgram(t *testing.T, src string) (*wam.Module, *sym.Interner) {
	t.Helper()
	clauses, err := parse.ParseStringOps(src, parse.DefaultOpTable())
	require.NoError(t, err)

	in := sym.New()
	c := wam.NewCompiler(in, wam.DefaultCompilerConfig())
	preds, err := wam.GroupClauses(clauses)
	require.NoError(t, err)
	require.NoError(t, c.CompileProgram(preds))
	return c.Module(), in
}

// runQuery compiles query against mod and returns every solution's binding
// for varName, reading it back through Readback.
func runQuery(t *testing.T, mod *wam.Module, query string) []string {
	t.Helper()
	clauses, err := parse.ParseStringOps(query, parse.DefaultOpTable())
	require.NoError(t, err)
	require.Len(t, clauses, 1)

	c := wam.NewCompilerForModule(mod, wam.DefaultCompilerConfig())
	entry, vars, err := c.CompileQuery(clauses[0])
	require.NoError(t, err)

	mach := wam.New(mod, wam.DefaultConfig())
	var out []string
	ok, err := mach.Solve(entry)
	require.NoError(t, err)
	for ok {
		out = append(out, readVar(mach, vars, "X"))
		ok, err = mach.Redo()
		require.NoError(t, err)
	}
	return out
}

func readVar(mach *wam.Machine, vars []wam.QueryVar, name string) string {
	for _, v := range vars {
		if v.Name != name {
			continue
		}
		var cell wam.Cell
		if v.Perm {
			cell = mach.Y(mach.CurrentEnv(), v.Reg)
		} else {
			cell = mach.X(int(v.Reg))
		}
		return mach.Readback(cell).String()
	}
	return ""
}

func TestEnumerateFactsInSourceOrder(t *testing.T) {
	mod, _ := compileProgram(t, "p(a). p(b). p(c).")
	assert.Equal(t, []string{"a", "b", "c"}, runQuery(t, mod, "?- p(X)."))
}

func TestFirstArgumentIndexingMatchesUnindexedOrder(t *testing.T) {
	// The constant heads give this predicate a switch_on_term/
	// switch_on_const prologue (wam/compile.go's compileIndexedClauses).
	// With an unbound first argument the solution order must match plain
	// source order.
	mod, _ := compileProgram(t, `
		color(red).
		color(green).
		color(blue).
		color(X) :- X = purple.
	`)
	assert.Equal(t, []string{"red", "green", "blue", "purple"}, runQuery(t, mod, "?- color(X)."))
}

func TestCutPrunesChoicePoints(t *testing.T) {
	mod, _ := compileProgram(t, `
		q(1). q(2). q(3).
		r(X) :- q(X), !.
	`)
	assert.Equal(t, []string{"1"}, runQuery(t, mod, "?- r(X)."))
}

func TestRecursivePredicateWithArithmeticAfterCall(t *testing.T) {
	mod, _ := compileProgram(t, `
		count(0, 0).
		count(N, R) :- N > 0, N1 is N - 1, count(N1, R0), R is R0 + 1.
	`)
	got := runQuery(t, mod, "?- count(500, X).")
	require.Len(t, got, 1)
	assert.Equal(t, "500", got[0])
}

func TestLinkErrorStrictAggregatesAllUndefinedCalls(t *testing.T) {
	clauses, err := parse.ParseStringOps("p(X) :- q(X), r(X).", parse.DefaultOpTable())
	require.NoError(t, err)

	in := sym.New()
	c := wam.NewCompiler(in, wam.DefaultCompilerConfig())
	preds, err := wam.GroupClauses(clauses)
	require.NoError(t, err)
	err = c.CompileProgram(preds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "q/1")
	assert.Contains(t, err.Error(), "r/1")
}

func TestLenientLinkageFailsAtRuntimeInsteadOfCompileTime(t *testing.T) {
	clauses, err := parse.ParseStringOps("p(X) :- q(X).", parse.DefaultOpTable())
	require.NoError(t, err)

	in := sym.New()
	cfg := wam.CompilerConfig{Link: wam.LinkLenient}
	c := wam.NewCompiler(in, cfg)
	preds, err := wam.GroupClauses(clauses)
	require.NoError(t, err)
	require.NoError(t, c.CompileProgram(preds))

	mod := c.Module()
	qClauses, err := parse.ParseStringOps("?- p(a).", parse.DefaultOpTable())
	require.NoError(t, err)

	qc := wam.NewCompilerForModule(mod, cfg)
	entry, _, err := qc.CompileQuery(qClauses[0])
	require.NoError(t, err)

	mach := wam.New(mod, wam.DefaultConfig())
	ok, err := mach.Solve(entry)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResourceExhaustionSurfacesAsError(t *testing.T) {
	mod, _ := compileProgram(t, `
		loop(N, R) :- N > 0, N1 is N + 1, loop(N1, R).
	`)
	clauses, err := parse.ParseStringOps("?- loop(1, X).", parse.DefaultOpTable())
	require.NoError(t, err)

	c := wam.NewCompilerForModule(mod, wam.DefaultCompilerConfig())
	entry, _, err := c.CompileQuery(clauses[0])
	require.NoError(t, err)

	cfg := wam.DefaultConfig()
	cfg.MaxHeap = 64
	mach := wam.New(mod, cfg)
	_, err = mach.Solve(entry)
	assert.Error(t, err)
	var resErr *wam.ResourceError
	assert.ErrorAs(t, err, &resErr)
}
