package sym_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupertlssmith/lojix-sub000/sym"
)

func TestInternFunctorStableAndArityDistinct(t *testing.T) {
	in := sym.New()

	foo1 := in.InternFunctor("foo", 1)
	again := in.InternFunctor("foo", 1)
	assert.Equal(t, foo1, again, "re-interning the same pair must return the same id")

	foo2 := in.InternFunctor("foo", 2)
	assert.NotEqual(t, foo1, foo2, "same text, different arity must be distinct ids")

	assert.Equal(t, 1, foo1.Arity())
	assert.Equal(t, 2, foo2.Arity())
	assert.Equal(t, "foo", in.FunctorName(foo1))
	assert.Equal(t, "foo", in.FunctorName(foo2))
}

func TestInternVarStable(t *testing.T) {
	in := sym.New()

	x1 := in.InternVar("X")
	x2 := in.InternVar("X")
	y := in.InternVar("Y")

	assert.Equal(t, x1, x2)
	assert.NotEqual(t, x1, y)
	assert.Equal(t, "X", in.VarName(x1))
}

func TestLookupFunctorMiss(t *testing.T) {
	in := sym.New()
	in.InternFunctor("bar", 0)

	_, ok := in.LookupFunctor("bar", 1)
	assert.False(t, ok, "same name different arity should not be found")

	id, ok := in.LookupFunctor("bar", 0)
	require.True(t, ok)
	assert.Equal(t, 0, id.Arity())
}

func TestFunctorsAndVarsSnapshot(t *testing.T) {
	in := sym.New()
	in.InternFunctor("foo", 1)
	in.InternFunctor("bar", 0)
	in.InternVar("X")

	assert.Len(t, in.Functors(), 2)
	assert.Equal(t, []string{"X"}, in.Vars())
}
