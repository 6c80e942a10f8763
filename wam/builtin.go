package wam

// builtin evaluates a native predicate: arithmetic (is/2 and the ISO
// comparison operators), term unification/comparison, type tests, =../2,
// and the generic call/1 dispatch, per spec.md §4.4.7 and SPEC_FULL.md
// §4.5's arithmetic-stub decision. Arguments are passed in X1 (and X2 for
// binary builtins), the same convention as a compiled goal's argument
// registers.
func (m *Machine) builtin(ins Instr) (ok bool, suspend bool, err error) {
	switch ins.Bltn {
	case BIIs:
		n, err := m.eval(m.x[2])
		if err != nil {
			return false, false, err
		}
		if !m.unify(m.x[1], n.cell(m)) {
			return false, false, nil
		}

	case BIArithEq, BIArithNeq, BILt, BIGt, BILe, BIGe:
		a, err := m.eval(m.x[1])
		if err != nil {
			return false, false, err
		}
		b, err := m.eval(m.x[2])
		if err != nil {
			return false, false, err
		}
		if !compareArith(ins.Bltn, a, b) {
			return false, false, nil
		}

	case BIUnify:
		if !m.unify(m.x[1], m.x[2]) {
			return false, false, nil
		}

	case BINotUnifiable:
		mark := uint32(len(m.trail))
		matched := m.unify(m.x[1], m.x[2])
		m.unwindTrail(mark)
		if matched {
			return false, false, nil
		}

	case BITermEq, BITermNeq, BITermLt, BITermGt, BITermLe, BITermGe:
		c := m.compareTerms(m.x[1], m.x[2])
		var want bool
		switch ins.Bltn {
		case BITermEq:
			want = c == 0
		case BITermNeq:
			want = c != 0
		case BITermLt:
			want = c < 0
		case BITermGt:
			want = c > 0
		case BITermLe:
			want = c <= 0
		case BITermGe:
			want = c >= 0
		}
		if !want {
			return false, false, nil
		}

	case BIVar:
		if m.deref(m.x[1]).Tag() != RefTag {
			return false, false, nil
		}
	case BINonvar:
		if m.deref(m.x[1]).Tag() == RefTag {
			return false, false, nil
		}
	case BIAtom:
		a := m.deref(m.x[1])
		if a.Tag() != ConTag || m.mod.Consts[a.Payload()].Kind != ConstAtom {
			return false, false, nil
		}
	case BINumber:
		a := m.deref(m.x[1])
		if a.Tag() != ConTag {
			return false, false, nil
		}
		k := m.mod.Consts[a.Payload()].Kind
		if k != ConstInt && k != ConstReal {
			return false, false, nil
		}
	case BICompoundCheck:
		a := m.deref(m.x[1])
		if a.Tag() != StrTag && a.Tag() != ListTag {
			return false, false, nil
		}

	case BIUniv:
		if !m.univ() {
			return false, false, nil
		}

	case BICallN:
		return m.callN()

	default:
		return false, false, &TypeError{Expected: "known builtin", Got: Cell(ins.Bltn)}
	}
	m.p++
	return true, false, nil
}

// compareTerms implements the ISO standard order of terms, restricted to
// the variants this toolchain has: Var < Number < Atom < Compound.
// Unbound variables compare by heap address (arbitrary but stable for one
// resolution), which is what @</2 et al. need to be a well-defined total
// order without committing to any particular variable naming.
func (m *Machine) compareTerms(a, b Cell) int {
	a, b = m.deref(a), m.deref(b)
	ra, rb := rankOf(a), rankOf(b)
	if ra != rb {
		return ra - rb
	}
	switch a.Tag() {
	case RefTag:
		return int(a.Payload()) - int(b.Payload())
	case ConTag:
		ca, cb := m.mod.Consts[a.Payload()], m.mod.Consts[b.Payload()]
		if ca.Kind != cb.Kind {
			if aAtom, bAtom := ca.Kind == ConstAtom, cb.Kind == ConstAtom; aAtom != bAtom {
				if aAtom {
					return 1
				}
				return -1
			}
			return int(ca.Kind) - int(cb.Kind)
		}
		switch ca.Kind {
		case ConstInt:
			switch {
			case ca.Int < cb.Int:
				return -1
			case ca.Int > cb.Int:
				return 1
			default:
				return 0
			}
		case ConstReal:
			switch {
			case ca.Real < cb.Real:
				return -1
			case ca.Real > cb.Real:
				return 1
			default:
				return 0
			}
		default:
			na := m.mod.Interner.FunctorName(ca.Atom)
			nb := m.mod.Interner.FunctorName(cb.Atom)
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			return 0
		}
	case StrTag, ListTag:
		fa, na := m.functorOf(a)
		fb, nb := m.functorOf(b)
		if na != nb {
			return na - nb
		}
		if fa != fb {
			if fa < fb {
				return -1
			}
			return 1
		}
		args := na
		base := a.Payload()
		baseb := b.Payload()
		off := uint32(0)
		if a.Tag() == StrTag {
			off = 1
		}
		for i := 0; i < args; i++ {
			if c := m.compareTerms(m.heap[base+off+uint32(i)], m.heap[baseb+off+uint32(i)]); c != 0 {
				return c
			}
		}
		return 0
	}
	return 0
}

func rankOf(c Cell) int {
	switch c.Tag() {
	case RefTag:
		return 0
	case ConTag:
		return 1
	default:
		return 2
	}
}

// functorOf returns the functor text (by interned name) and arity of a
// structure or list cell, normalising list cells to "cons"/2 so they
// compare against explicit cons/2 structures consistently.
func (m *Machine) functorOf(c Cell) (name string, arity int) {
	if c.Tag() == ListTag {
		return "cons", 2
	}
	functor := m.heap[c.Payload()]
	id := m.mod.Consts[functor.Payload()].Atom
	return m.mod.Interner.FunctorName(id), id.Arity()
}

// univ implements =../2: X1 =.. X2. Exactly one direction must be
// sufficiently instantiated — a term in X1, or a proper list headed by an
// atom in X2 — per the usual ISO reading.
func (m *Machine) univ() bool {
	a := m.deref(m.x[1])
	if a.Tag() != RefTag {
		list := m.termToList(a)
		return m.unify(m.x[2], list)
	}
	elems, ok := m.listElems(m.x[2])
	if !ok || len(elems) == 0 {
		return false
	}
	if len(elems) == 1 {
		return m.unify(a, elems[0])
	}
	head := m.deref(elems[0])
	if head.Tag() != ConTag || m.mod.Consts[head.Payload()].Kind != ConstAtom {
		return false
	}
	name := m.mod.Interner.FunctorName(m.mod.Consts[head.Payload()].Atom)
	if name == "cons" && len(elems) == 3 {
		// Lists are LIS pairs on the heap, never cons/2 structures; rebuild
		// them in the same representation so they unify with parsed lists.
		return m.unify(a, m.cons(elems[1], elems[2]))
	}
	fid := m.mod.Interner.InternFunctor(name, len(elems)-1)
	functorAddr := m.pushHeap(ConCell(m.mod.FunctorConst(fid)))
	for _, e := range elems[1:] {
		m.pushHeap(e)
	}
	return m.unify(a, StrCell(functorAddr))
}

// termToList renders a as its univ list representation: [F|Args] for a
// compound, [A] for an atomic constant.
func (m *Machine) termToList(a Cell) Cell {
	switch a.Tag() {
	case ConTag:
		return m.cons(a, m.nilCell())
	case StrTag, ListTag:
		name, n := m.functorOf(a)
		var args []Cell
		if a.Tag() == ListTag {
			args = []Cell{m.heap[a.Payload()], m.heap[a.Payload()+1]}
		} else {
			for i := 0; i < n; i++ {
				args = append(args, m.heap[a.Payload()+1+uint32(i)])
			}
		}
		id, ok := m.mod.Interner.LookupFunctor(name, 0)
		if !ok {
			id = m.mod.Interner.InternFunctor(name, 0)
		}
		head := ConCell(m.mod.FunctorConst(id))
		lst := m.nilCell()
		for i := len(args) - 1; i >= 0; i-- {
			lst = m.cons(args[i], lst)
		}
		return m.cons(head, lst)
	default:
		return a
	}
}

func (m *Machine) cons(head, tail Cell) Cell {
	addr := uint32(len(m.heap))
	m.pushHeap(head)
	m.pushHeap(tail)
	return ListCell(addr)
}

func (m *Machine) nilCell() Cell {
	id, ok := m.mod.Interner.LookupFunctor("nil", 0)
	if !ok {
		id = m.mod.Interner.InternFunctor("nil", 0)
	}
	return ConCell(m.mod.FunctorConst(id))
}

// listElems walks a proper list, returning its elements; ok is false if c
// is not a proper (nil-terminated) list.
func (m *Machine) listElems(c Cell) (elems []Cell, ok bool) {
	for {
		c = m.deref(c)
		if c.Tag() == ConTag {
			ce := m.mod.Consts[c.Payload()]
			if ce.Kind == ConstAtom && m.mod.Interner.FunctorName(ce.Atom) == "nil" {
				return elems, true
			}
			return nil, false
		}
		if c.Tag() != ListTag {
			return nil, false
		}
		elems = append(elems, m.heap[c.Payload()])
		c = m.heap[c.Payload()+1]
	}
}

// callN implements call/1's generic dispatch: deref X1, resolve the
// predicate it names, shift the callable's own arguments (if any) down
// into X1.., and jump exactly as a compiled `call` would.
func (m *Machine) callN() (ok bool, suspend bool, err error) {
	g := m.deref(m.x[1])
	var key PredKey
	switch g.Tag() {
	case RefTag:
		return false, false, &InstantiationError{Where: "call/1"}
	case ConTag:
		ce := m.mod.Consts[g.Payload()]
		if ce.Kind != ConstAtom {
			return false, false, &TypeError{Expected: "callable", Got: g}
		}
		key = PredKey{Functor: ce.Atom, Arity: 0}
	case StrTag:
		functor := m.heap[g.Payload()]
		id := m.mod.Consts[functor.Payload()].Atom
		n := id.Arity()
		for i := 0; i < n; i++ {
			m.x[1+i] = m.heap[g.Payload()+1+uint32(i)]
		}
		key = PredKey{Functor: id, Arity: n}
	default:
		return false, false, &TypeError{Expected: "callable", Got: g}
	}

	pred, found := m.mod.Preds[key]
	if !found || (pred.Dynamic && !pred.Defined) {
		return false, false, nil
	}
	m.numArgs = uint32(key.Arity)
	m.cp = m.p + 1
	m.b0 = m.b
	m.p = pred.EntryPC
	return true, false, nil
}
