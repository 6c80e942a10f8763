package wam

import (
	"fmt"

	"github.com/rupertlssmith/lojix-sub000/term"
)

// Readback converts a heap cell (following every binding chain) into the
// term.Term snapshot lojix.Bindings.Get hands back to a caller, per
// spec.md §4.5.5 ("bindings... surfaced... as a walk of the bound
// structure back into term.Term"). Unbound variables are named "_G<addr>"
// from their heap address, since the original source name was not kept
// past compilation — spec.md leaves the exact naming to the implementer.
func (m *Machine) Readback(c Cell) term.Term {
	c = m.deref(c)
	switch c.Tag() {
	case RefTag:
		return term.Var{Name: fmt.Sprintf("_G%d", c.Payload())}
	case ConTag:
		ce := m.mod.Consts[c.Payload()]
		switch ce.Kind {
		case ConstInt:
			return term.Int{Val: ce.Int}
		case ConstReal:
			return term.Real{Val: ce.Real}
		default:
			return term.Atom{Name: m.mod.Interner.FunctorName(ce.Atom)}
		}
	case ListTag:
		head := m.Readback(m.heap[c.Payload()])
		tail := m.Readback(m.heap[c.Payload()+1])
		return term.Cons(head, tail, term.Pos{})
	case StrTag:
		functor := m.heap[c.Payload()]
		id := m.mod.Consts[functor.Payload()].Atom
		name := m.mod.Interner.FunctorName(id)
		n := id.Arity()
		args := make([]term.Term, n)
		for i := 0; i < n; i++ {
			args[i] = m.Readback(m.heap[c.Payload()+1+uint32(i)])
		}
		return term.Compound{Functor: name, Args: args}
	default:
		return term.Atom{Name: "?"}
	}
}
