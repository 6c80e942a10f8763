package wam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupertlssmith/lojix-sub000/sym"
)

// newTestMachine returns a machine over an empty module, for driving the
// heap/trail/unify primitives directly.
func newTestMachine() *Machine {
	return New(NewModule(sym.New()), DefaultConfig())
}

func TestDerefFollowsRefChain(t *testing.T) {
	m := newTestMachine()

	v := m.newVar()                       // heap[0], unbound
	r1 := m.pushHeap(RefCell(v.Payload())) // heap[1] -> heap[0]
	r2 := m.pushHeap(RefCell(r1))          // heap[2] -> heap[1]

	got := m.deref(RefCell(r2))
	assert.Equal(t, v, got, "deref must land on the self-referential cell")
}

func TestDerefStopsAtBoundValue(t *testing.T) {
	m := newTestMachine()

	con := ConCell(m.mod.IntConst(42))
	v := m.newVar()
	m.bind(v, con)

	assert.Equal(t, con, m.deref(v))
}

func TestBindOrientsHigherAddressToLower(t *testing.T) {
	m := newTestMachine()

	older := m.newVar() // heap[0]
	newer := m.newVar() // heap[1]

	m.bind(newer, older)

	assert.Equal(t, RefCell(older.Payload()), m.heap[newer.Payload()],
		"the newer cell must point at the older one")
	assert.Equal(t, RefCell(older.Payload()), m.heap[older.Payload()],
		"the older cell must stay unbound")
}

func TestBindTrailsOnlyCellsOlderThanHB(t *testing.T) {
	m := newTestMachine()

	old := m.newVar()
	m.hb = uint32(len(m.heap)) // everything from here on is young
	young := m.newVar()

	m.bind(young, ConCell(m.mod.IntConst(1)))
	assert.Empty(t, m.trail, "young bindings are undone by heap truncation alone")

	m.bind(old, ConCell(m.mod.IntConst(2)))
	require.Len(t, m.trail, 1)
	assert.Equal(t, old.Payload(), m.trail[0])
}

// buildStruct lays out f(args...) on the heap and returns its STR cell.
func buildStruct(m *Machine, name string, args ...Cell) Cell {
	fid := m.mod.Interner.InternFunctor(name, len(args))
	functorAddr := m.pushHeap(ConCell(m.mod.FunctorConst(fid)))
	for _, a := range args {
		m.pushHeap(a)
	}
	return StrCell(functorAddr)
}

func TestUnifyBindsVariablesInsideStructures(t *testing.T) {
	m := newTestMachine()

	a := ConCell(m.mod.FunctorConst(m.mod.Interner.InternFunctor("a", 0)))
	b := ConCell(m.mod.FunctorConst(m.mod.Interner.InternFunctor("b", 0)))

	x := m.newVar()
	y := m.newVar()
	s1 := buildStruct(m, "f", x, a)
	s2 := buildStruct(m, "f", b, y)

	require.True(t, m.unify(s1, s2))
	assert.Equal(t, b, m.deref(x))
	assert.Equal(t, a, m.deref(y))
}

func TestUnifyFailsOnFunctorMismatch(t *testing.T) {
	m := newTestMachine()

	a := ConCell(m.mod.FunctorConst(m.mod.Interner.InternFunctor("a", 0)))
	s1 := buildStruct(m, "f", a)
	s2 := buildStruct(m, "g", a)
	assert.False(t, m.unify(s1, s2))

	// Same text, different arity is a distinct functor.
	s3 := buildStruct(m, "f", a, a)
	assert.False(t, m.unify(s1, s3))
}

func TestUnifyListsPairwise(t *testing.T) {
	m := newTestMachine()

	one := ConCell(m.mod.IntConst(1))
	nilc := ConCell(m.mod.FunctorConst(m.mod.Interner.InternFunctor("nil", 0)))

	x := m.newVar()
	l1 := m.cons(one, nilc)
	l2 := m.cons(x, nilc)

	require.True(t, m.unify(l1, l2))
	assert.Equal(t, one, m.deref(x))
}

func TestUnifyConstantsByPoolIdentity(t *testing.T) {
	m := newTestMachine()

	one := ConCell(m.mod.IntConst(1))
	oneAgain := ConCell(m.mod.IntConst(1))
	two := ConCell(m.mod.IntConst(2))

	assert.True(t, m.unify(one, oneAgain))
	assert.False(t, m.unify(one, two))
}

func TestBacktrackRestoresHeapTrailAndRegisters(t *testing.T) {
	m := newTestMachine()

	old := m.newVar()
	m.x[1] = old
	m.numArgs = 1

	m.pushChoice(99) // alternative PC, arbitrary
	cp := m.stack[m.b]

	// Simulate work after the choice point: bind the old cell, grow the
	// heap, clobber the argument register.
	m.bind(old, ConCell(m.mod.IntConst(7)))
	m.newVar()
	m.newVar()
	m.x[1] = ConCell(m.mod.IntConst(0))

	require.True(t, m.backtrack())

	assert.Equal(t, cp.h, uint32(len(m.heap)), "heap must truncate to the choice point's H")
	assert.Equal(t, cp.tr, uint32(len(m.trail)), "trail must unwind to the choice point's TR")
	assert.Equal(t, RefCell(old.Payload()), m.heap[old.Payload()], "the trailed cell must be unbound again")
	assert.Equal(t, old, m.x[1], "argument registers must be restored")
	assert.Equal(t, uint32(99), m.p, "execution must resume at the alternative")
}

func TestBacktrackAtBottomFails(t *testing.T) {
	m := newTestMachine()
	assert.False(t, m.backtrack(), "no choice point left means resolution is over")
}

func TestCutToDiscardsYoungerChoicePoints(t *testing.T) {
	m := newTestMachine()

	m.pushChoice(10)
	outer := m.b
	m.newVar()
	m.pushChoice(20)
	require.NotEqual(t, outer, m.b)

	m.cutTo(outer)
	assert.Equal(t, outer, m.b)
	assert.Equal(t, m.stack[outer].h, m.hb, "HB must drop back to the surviving choice point's H")
}

func TestSwitchTableLookup(t *testing.T) {
	table := []SwitchCase{{Key: 3, Target: 30}, {Key: 5, Target: 50}}

	got, found := lookupSwitch(table, 5)
	assert.True(t, found)
	assert.Equal(t, uint32(50), got)

	_, found = lookupSwitch(table, 4)
	assert.False(t, found)
}

func TestResetClearsAllState(t *testing.T) {
	m := newTestMachine()
	m.newVar()
	m.numArgs = 1
	m.x[1] = ConCell(0)
	m.pushChoice(5)

	m.Reset()

	assert.Empty(t, m.heap)
	assert.Empty(t, m.trail)
	assert.Equal(t, uint32(0), m.b)
	assert.Equal(t, 1, len(m.stack), "only the bottom sentinel frame remains")
	assert.Equal(t, Cell(0), m.x[1])
}
