// Package sym implements the bidirectional interning tables shared by the
// parser, compiler, and machine: one namespace for variable names and one
// for functor (name, arity) pairs.
//
// The functor namespace is grounded on the teacher's lang/symbol and
// lang/term/namespace.go, simplified from a persistent treap (which gave
// Symbols a float64 address for structural sharing across edits) down to a
// pair of plain maps, since spec.md asks only for dense, stable integer ids
// with no requirement that the table be persistent or editable concurrently
// with lookups.
package sym

import "fmt"

// FunctorID identifies a (name, arity) pair. It is a 24-bit value: the low
// 16 bits index the interned name text, the high 8 bits hold the arity, as
// specified for the compact structure-cell representation in spec.md §3.
type FunctorID uint32

// VarID identifies an interned variable name within a single clause or
// query. Variable ids are local to whatever Interner produced them; they
// are not addresses into the machine's heap.
type VarID uint32

const maxArity = 1<<8 - 1

// NewFunctorID packs a name index and arity into a FunctorID. It panics if
// arity exceeds what 8 bits can hold, which also bounds the arity of any
// compound term this toolchain can represent.
func newFunctorID(nameIdx uint16, arity int) FunctorID {
	if arity < 0 || arity > maxArity {
		panic(fmt.Sprintf("sym: arity %d out of range [0,%d]", arity, maxArity))
	}
	return FunctorID(uint32(arity)<<16 | uint32(nameIdx))
}

// Name returns the index of the interned text naming id.
func (id FunctorID) nameIndex() uint16 {
	return uint16(id)
}

// Arity returns the number of arguments a functor with this id takes.
func (id FunctorID) Arity() int {
	return int(id >> 16)
}

// FunctorInfo describes one interned functor, for disassembly and
// diagnostics.
type FunctorInfo struct {
	ID    FunctorID
	Name  string
	Arity int
}

// An Interner owns the variable-name and functor-name tables for one
// compiled module. It is safe to share read-only across resolvers prepared
// against the same module (spec.md §5), but concurrent interning is not
// supported — a single compile pass owns the interner while it mutates it.
type Interner struct {
	funcNames []string
	funcIndex map[string]uint16
	funcIDs   map[FunctorID]bool

	varNames []string
	varIndex map[string]VarID
}

// New returns an empty Interner.
func New() *Interner {
	return &Interner{
		funcIndex: make(map[string]uint16),
		funcIDs:   make(map[FunctorID]bool),
		varIndex:  make(map[string]VarID),
	}
}

// InternFunctor returns the id for (name, arity), interning it if this is
// the first time the pair has been seen. Two functors with the same text
// but different arity are distinct, per spec.md §4.1.
func (in *Interner) InternFunctor(name string, arity int) FunctorID {
	nameIdx, ok := in.funcIndex[name]
	if !ok {
		nameIdx = uint16(len(in.funcNames))
		in.funcNames = append(in.funcNames, name)
		in.funcIndex[name] = nameIdx
	}
	id := newFunctorID(nameIdx, arity)
	in.funcIDs[id] = true
	return id
}

// InternVar returns the id for a variable name, interning it if needed.
// The bare "_" is never looked up by name by callers of this function; the
// parser mints a fresh synthetic name per occurrence of anonymous "_" so
// that two occurrences never intern to the same VarID (spec.md Testable
// Property 6).
func (in *Interner) InternVar(name string) VarID {
	id, ok := in.varIndex[name]
	if ok {
		return id
	}
	id = VarID(len(in.varNames))
	in.varNames = append(in.varNames, name)
	in.varIndex[name] = id
	return id
}

// FunctorName returns the text naming id's functor.
func (in *Interner) FunctorName(id FunctorID) string {
	return in.funcNames[id.nameIndex()]
}

// VarName returns the source text of the variable named by id.
func (in *Interner) VarName(id VarID) string {
	return in.varNames[id]
}

// Functors returns every interned (name, arity) pair, in no particular
// order; the bytecode writer uses it to serialize the functor table.
func (in *Interner) Functors() []FunctorInfo {
	infos := make([]FunctorInfo, 0, len(in.funcIDs))
	for id := range in.funcIDs {
		infos = append(infos, FunctorInfo{ID: id, Name: in.FunctorName(id), Arity: id.Arity()})
	}
	return infos
}

// Vars returns every interned variable name, in order of first occurrence.
func (in *Interner) Vars() []string {
	out := make([]string, len(in.varNames))
	copy(out, in.varNames)
	return out
}

// LookupFunctor returns the id previously assigned to (name, arity), and
// whether it has been interned at all.
func (in *Interner) LookupFunctor(name string, arity int) (FunctorID, bool) {
	nameIdx, ok := in.funcIndex[name]
	if !ok {
		return 0, false
	}
	id := newFunctorID(nameIdx, arity)
	_, ok = in.funcIDs[id]
	return id, ok
}
