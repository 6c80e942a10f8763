// Package wam implements the Warren Abstract Machine described in spec.md
// §3–§5: the tagged heap cell, the compiler from clauses/queries to
// bytecode, and the resolving machine itself.
//
// The cell representation is grounded on spec.md §3 directly (there is no
// equivalent in the teacher, whose wam/program.go never got past a
// get_struct/unify_var prototype for clause heads) and on the teacher's
// instruct layout in wam/codegen.go ("carefully crafted to fit in a 64bit
// word") for the sibling bytecode-instruction encoding in instr.go. The
// fetch-decode-execute loop in this file has no teacher equivalent at all
// (cbarrick/ripl's wam/ package never grew past CompileHead); it is built
// directly from spec.md §4.5 and §8's end-to-end scenarios.
package wam

import (
	"github.com/hashicorp/go-hclog"
)

// Mode is the machine's read/write mode while decomposing or constructing
// a structure or list argument (spec.md §3, §4.5.1).
type Mode uint8

const (
	ReadMode Mode = iota
	WriteMode
)

// Config bounds a Machine's resources and wires its logger, in the style
// of nomad/client/config's field-based, option-free config structs
// (SPEC_FULL.md §2, Configuration).
type Config struct {
	NumRegs  int // size of the X register file; spec.md §3 suggests 256
	MaxHeap  int
	MaxStack int
	MaxTrail int
	Logger   hclog.Logger
}

// DefaultConfig returns a Config with the limits spec.md §3 suggests and a
// null logger.
func DefaultConfig() Config {
	return Config{
		NumRegs:  256,
		MaxHeap:  1 << 22,
		MaxStack: 1 << 20,
		MaxTrail: 1 << 20,
		Logger:   hclog.NewNullLogger(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NumRegs <= 0 {
		c.NumRegs = d.NumRegs
	}
	if c.MaxHeap <= 0 {
		c.MaxHeap = d.MaxHeap
	}
	if c.MaxStack <= 0 {
		c.MaxStack = d.MaxStack
	}
	if c.MaxTrail <= 0 {
		c.MaxTrail = d.MaxTrail
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return c
}

type frameTag uint8

const (
	tagEnv frameTag = iota
	tagChoice
)

// frame is one entry of the mixed environment/choice-point stack (spec.md
// §3, "stack[]: mixed environment and choice-point frames"). Using a
// tagged struct slice instead of a raw byte array is the idiomatic-Go
// rendition of that layout: addresses are slice indices rather than byte
// offsets, and the two frame shapes are distinguished by tag instead of by
// a separately tracked frame-size table.
type frame struct {
	tag frameTag

	// Shared restore point: the E and CP registers' values at the moment
	// this frame was pushed (an environment's caller context, or a choice
	// point's call-time context).
	ce uint32
	cp uint32

	// Environment-only.
	y []Cell

	// Choice-point-only.
	numArgs uint32
	args    []Cell
	b       uint32 // previous B
	retry   uint32 // next-alternative PC
	tr      uint32 // trail top at push time
	h       uint32 // heap top at push time
}

type pdlPair struct{ a, b Cell }

// Machine executes one Module's bytecode. It owns the heap, stack, trail,
// PDL, and register file; spec.md §5 forbids sharing any of these between
// machine instances.
type Machine struct {
	mod *Module
	cfg Config
	log hclog.Logger

	heap  []Cell
	stack []frame
	trail []uint32
	pdl   []pdlPair

	x []Cell

	p, cp   uint32
	e, b    uint32
	b0      uint32 // B at the most recent call/execute; read by neck_cut/get_level
	hb      uint32
	s       uint32
	mode    Mode
	numArgs uint32

	halted bool
}

// New returns a Machine ready to run mod's bytecode.
func New(mod *Module, cfg Config) *Machine {
	cfg = cfg.withDefaults()
	m := &Machine{
		mod:   mod,
		cfg:   cfg,
		log:   cfg.Logger.Named("wam"),
		stack: make([]frame, 1, 64), // index 0 is the bottom sentinel: E=0, B=0
		x:     make([]Cell, cfg.NumRegs),
	}
	return m
}

// DumpHeap renders the heap as a structural dump via go-spew, for failing
// test diagnosis (SPEC_FULL.md §2, Test tooling).
func (m *Machine) DumpHeap() string {
	return spewConfig.Sdump(m.heap)
}

// Reset clears all machine state so the same Machine can be reused for a
// fresh top-level query (spec.md §5 allows reuse within one instance; it
// does not require it, but reuse avoids re-allocating the register file
// per query).
func (m *Machine) Reset() {
	m.heap = m.heap[:0]
	m.stack = m.stack[:1]
	m.trail = m.trail[:0]
	m.pdl = m.pdl[:0]
	for i := range m.x {
		m.x[i] = 0
	}
	m.p, m.cp, m.e, m.b, m.b0, m.hb, m.s, m.numArgs = 0, 0, 0, 0, 0, 0, 0, 0
	m.mode = ReadMode
	m.halted = false
}

// Solve begins resolution at entryPC (a freshly prepared query's entry
// point) and runs until the query suspends (a solution is found), fails
// outright (no solution), or the machine halts on an error.
func (m *Machine) Solve(entryPC uint32) (ok bool, err error) {
	m.p = entryPC
	m.e, m.b, m.b0 = 0, 0, 0
	m.hb = uint32(len(m.heap))
	defer m.recoverResourceError(&err)
	return m.run()
}

// Redo forces a backtrack into the most recent choice point and resumes
// execution, implementing spec.md §4.5.5's "on backtrack re-entry": the
// caller's resolver.next() calls this for every solution after the first.
func (m *Machine) Redo() (ok bool, err error) {
	defer m.recoverResourceError(&err)
	if m.halted || !m.backtrack() {
		return false, nil
	}
	return m.run()
}

// recoverResourceError turns the panic pushHeap/pushFrame raise on hitting a
// configured ceiling into the (false, *ResourceError) that Solve/Redo's
// signature promises, per spec.md §7 ("resource exhaustion... fatal; signal
// to the caller"). Every other panic propagates: only *ResourceError is a
// recognized control-flow signal here.
func (m *Machine) recoverResourceError(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if re, ok := r.(*ResourceError); ok {
		*err = re
		return
	}
	panic(r)
}

// X returns the current value of argument/temporary register i (1-based,
// matching spec.md's Ai/Xi notation); used by the bindings readback.
func (m *Machine) X(i int) Cell { return m.x[i] }

// Heap exposes the heap cell at addr, for readback.
func (m *Machine) Heap(addr uint32) Cell { return m.heap[addr] }

// Module returns the module this machine is executing, for readback
// (constant pool, interner).
func (m *Machine) Module() *Module { return m.mod }

// Deref is the public entry point to the machine's dereference chain, used
// by the bindings snapshot in lojix.go.
func (m *Machine) Deref(c Cell) Cell { return m.deref(c) }

// CurrentEnv returns the address of the environment frame currently active.
// lojix.Bindings reads permanent query variables out of it after a query
// suspends: spec.md §4.5.5's query never deallocates its own environment
// (CompileQuery, compile.go), so m.e still addresses it at suspend time.
func (m *Machine) CurrentEnv() uint32 { return m.e }

// Y returns permanent-variable slot i of the environment frame at addr.
func (m *Machine) Y(addr uint32, i uint16) Cell { return m.stack[addr].y[i] }

// run is the fetch-decode-execute loop. It returns (true, nil) on
// suspend, (false, nil) when the bottom choice point is exhausted, and a
// non-nil error for instantiation/type/resource errors (spec.md §7: these
// "bubble through the machine's exception register... or reach the top
// level and surface to the caller" — this toolchain has no catch/3, so
// they always surface here).
func (m *Machine) run() (bool, error) {
	for {
		if int(m.p) >= len(m.mod.Code) {
			return false, &TypeError{Expected: "valid program counter", Got: Cell(m.p)}
		}
		ins := m.mod.Code[m.p]
		m.log.Trace("dispatch", "pc", m.p, "op", ins.Op)

		ok, suspend, err := m.step(ins)
		if err != nil {
			return false, err
		}
		if suspend {
			return true, nil
		}
		if m.halted {
			return false, nil
		}
		if !ok {
			if !m.backtrack() {
				return false, nil
			}
		}
	}
}

// step executes one instruction. It returns ok=false on a unification (or
// switch/index) mismatch, which the caller resolves by backtracking.
// suspend=true means the instruction was `suspend` and a solution is
// ready.
func (m *Machine) step(ins Instr) (ok bool, suspend bool, err error) {
	switch ins.Op {
	case OpNoop:
		m.p++

	// Put family (caller side, write mode).
	case OpPutVar:
		v := m.newVar()
		m.setReg(ins, v)
		m.x[ins.Arg] = v
		m.p++
	case OpPutVal:
		m.x[ins.Arg] = m.reg(ins)
		m.p++
	case OpPutUnsafeVal:
		// Every variable in this machine is heap-resident (put_var and
		// set_variable create it on the heap), so there is never a
		// stack-local cell to globalise: this is just a copy.
		m.x[ins.Arg] = m.reg(ins)
		m.p++
	case OpPutConst:
		m.x[ins.Arg] = ConCell(ins.Const)
		m.p++
	case OpPutStruct:
		functorAddr := m.pushHeap(ConCell(ins.Functor))
		m.x[ins.Arg] = StrCell(functorAddr)
		m.p++
	case OpPutList:
		m.x[ins.Arg] = ListCell(uint32(len(m.heap)))
		m.p++

	// Set family (write-mode structure/list argument writers).
	case OpSetVar:
		v := m.newVar()
		m.setReg(ins, v)
		m.p++
	case OpSetVal:
		m.pushHeap(m.reg(ins))
		m.p++
	case OpSetLocalVal:
		m.pushHeap(m.reg(ins))
		m.p++
	case OpSetConst:
		m.pushHeap(ConCell(ins.Const))
		m.p++
	case OpSetVoid:
		for i := uint32(0); i < ins.N; i++ {
			m.newVar()
		}
		m.p++

	// Get family (callee side, clause head matching).
	case OpGetVar:
		m.setReg(ins, m.x[ins.Arg])
		m.p++
	case OpGetVal:
		if !m.unify(m.reg(ins), m.x[ins.Arg]) {
			return false, false, nil
		}
		m.p++
	case OpGetConst:
		a := m.deref(m.x[ins.Arg])
		switch a.Tag() {
		case RefTag:
			m.bind(a, ConCell(ins.Const))
		case ConTag:
			if a.Payload() != ins.Const {
				return false, false, nil
			}
		default:
			return false, false, nil
		}
		m.p++
	case OpGetStruct:
		a := m.deref(m.x[ins.Arg])
		switch a.Tag() {
		case RefTag:
			functorAddr := m.pushHeap(ConCell(ins.Functor))
			m.bind(a, StrCell(functorAddr))
			m.mode = WriteMode
		case StrTag:
			if m.heap[a.Payload()].Payload() != ins.Functor {
				return false, false, nil
			}
			m.s = a.Payload() + 1
			m.mode = ReadMode
		default:
			return false, false, nil
		}
		m.p++
	case OpGetList:
		a := m.deref(m.x[ins.Arg])
		switch a.Tag() {
		case RefTag:
			pairAddr := uint32(len(m.heap))
			m.bind(a, ListCell(pairAddr))
			m.mode = WriteMode
		case ListTag:
			m.s = a.Payload()
			m.mode = ReadMode
		default:
			return false, false, nil
		}
		m.p++

	// Unify family (mode-dependent structure/list argument matching).
	case OpUnifyVar:
		if m.mode == ReadMode {
			m.setReg(ins, m.heap[m.s])
			m.s++
		} else {
			v := m.newVar()
			m.setReg(ins, v)
		}
		m.p++
	case OpUnifyVal:
		if m.mode == ReadMode {
			if !m.unify(m.reg(ins), m.heap[m.s]) {
				return false, false, nil
			}
			m.s++
		} else {
			m.pushHeap(m.reg(ins))
		}
		m.p++
	case OpUnifyLocalVal:
		if m.mode == ReadMode {
			if !m.unify(m.reg(ins), m.heap[m.s]) {
				return false, false, nil
			}
			m.s++
		} else {
			m.pushHeap(m.reg(ins))
		}
		m.p++
	case OpUnifyConst:
		if m.mode == ReadMode {
			if !m.unify(ConCell(ins.Const), m.heap[m.s]) {
				return false, false, nil
			}
			m.s++
		} else {
			m.pushHeap(ConCell(ins.Const))
		}
		m.p++
	case OpUnifyVoid:
		if m.mode == ReadMode {
			m.s += ins.N
		} else {
			for i := uint32(0); i < ins.N; i++ {
				m.newVar()
			}
		}
		m.p++

	// Control.
	case OpAllocate:
		m.pushEnv(ins.N)
		m.p++
	case OpDeallocate:
		fr := m.stack[m.e]
		m.cp = fr.cp
		m.e = fr.ce
		m.p++
	case OpCall:
		m.numArgs = ins.N
		m.cp = m.p + 1
		m.b0 = m.b
		m.p = ins.Target
	case OpExecute:
		m.numArgs = ins.N
		m.b0 = m.b
		m.p = ins.Target
	case OpProceed:
		m.p = m.cp

	// Choice points and indexing.
	case OpTryMeElse:
		m.pushChoice(ins.Target)
		m.p++
	case OpRetryMeElse:
		m.stack[m.b].retry = ins.Target
		m.p++
	case OpTrustMe:
		m.b = m.stack[m.b].b
		m.p++
	case OpTry:
		m.pushChoice(m.p + 1)
		m.p = ins.Target
	case OpRetry:
		m.stack[m.b].retry = m.p + 1
		m.p = ins.Target
	case OpTrust:
		m.b = m.stack[m.b].b
		m.p = ins.Target
	case OpSwitchOnTerm:
		a := m.deref(m.x[1])
		var target uint32
		switch a.Tag() {
		case RefTag:
			target = ins.Target
		case ConTag:
			target = ins.Target2
		case ListTag:
			target = ins.Target3
		case StrTag:
			target = ins.Target4
		}
		if target == NoTarget {
			return false, false, nil
		}
		m.p = target
	case OpSwitchOnConst:
		a := m.deref(m.x[1])
		target, found := lookupSwitch(ins.Table, a.Payload())
		if !found {
			target = ins.Target
		}
		if target == NoTarget {
			return false, false, nil
		}
		m.p = target
	case OpSwitchOnStruct:
		a := m.deref(m.x[1])
		key := m.heap[a.Payload()].Payload()
		target, found := lookupSwitch(ins.Table, key)
		if !found {
			target = ins.Target
		}
		if target == NoTarget {
			return false, false, nil
		}
		m.p = target

	// Cut.
	case OpNeckCut:
		m.cutTo(m.b0)
		m.p++
	case OpGetLevel:
		// N==1 marks the if-then-else form, which must capture the live B at
		// this program point rather than the B of clause entry: the commit
		// after Cond discards only choice points younger than the construct
		// itself.
		if ins.N == 1 {
			m.setReg(ins, Cell(m.b))
		} else {
			m.setReg(ins, Cell(m.b0))
		}
		m.p++
	case OpCut:
		m.cutTo(uint32(m.reg(ins)))
		m.p++

	case OpJump:
		m.p = ins.Target

	case OpBuiltin:
		return m.builtin(ins)

	case OpFail:
		return false, false, nil

	case OpHalt:
		m.halted = true
		return false, false, nil

	case OpSuspend:
		return true, true, nil

	default:
		return false, false, &TypeError{Expected: "known opcode", Got: Cell(ins.Op)}
	}
	return true, false, nil
}

func lookupSwitch(table []SwitchCase, key uint32) (uint32, bool) {
	for _, c := range table {
		if c.Key == key {
			return c.Target, true
		}
	}
	return 0, false
}

func (m *Machine) cutTo(target uint32) {
	m.b = target
	if m.b == 0 {
		m.hb = uint32(len(m.heap))
	} else {
		m.hb = m.stack[m.b].h
	}
}

func (m *Machine) reg(ins Instr) Cell {
	if ins.Perm {
		return m.stack[m.e].y[ins.Reg]
	}
	return m.x[ins.Reg]
}

func (m *Machine) setReg(ins Instr, c Cell) {
	if ins.Perm {
		m.stack[m.e].y[ins.Reg] = c
	} else {
		m.x[ins.Reg] = c
	}
}

func (m *Machine) pushHeap(c Cell) uint32 {
	if len(m.heap) >= m.cfg.MaxHeap {
		panic(&ResourceError{Resource: "heap", Limit: m.cfg.MaxHeap})
	}
	addr := uint32(len(m.heap))
	m.heap = append(m.heap, c)
	return addr
}

func (m *Machine) newVar() Cell {
	addr := m.pushHeap(0)
	c := RefCell(addr)
	m.heap[addr] = c
	return c
}

func (m *Machine) pushFrame(f frame) uint32 {
	if len(m.stack) >= m.cfg.MaxStack {
		panic(&ResourceError{Resource: "stack", Limit: m.cfg.MaxStack})
	}
	addr := uint32(len(m.stack))
	m.stack = append(m.stack, f)
	return addr
}

func (m *Machine) pushEnv(nperm uint32) {
	addr := m.pushFrame(frame{tag: tagEnv, ce: m.e, cp: m.cp, y: make([]Cell, nperm)})
	m.e = addr
}

func (m *Machine) pushChoice(retry uint32) {
	args := make([]Cell, m.numArgs)
	copy(args, m.x[1:1+m.numArgs])
	addr := m.pushFrame(frame{
		tag:     tagChoice,
		ce:      m.e,
		cp:      m.cp,
		numArgs: m.numArgs,
		args:    args,
		b:       m.b,
		retry:   retry,
		tr:      uint32(len(m.trail)),
		h:       uint32(len(m.heap)),
	})
	m.b = addr
	m.hb = uint32(len(m.heap))
}

// backtrack implements the failure procedure of spec.md §4.5.4: if there is
// no choice point left, resolution fails outright; otherwise it restores
// argument registers, unwinds the trail, truncates the heap, and jumps to
// the choice point's next-alternative instruction (itself a retry_me_else/
// retry/trust_me/trust, which then only needs to update or pop the choice
// point's own bookkeeping — the restore above already happened here).
func (m *Machine) backtrack() bool {
	if m.b == 0 {
		return false
	}
	cp := m.stack[m.b]
	copy(m.x[1:1+cp.numArgs], cp.args)
	m.numArgs = cp.numArgs
	m.e = cp.ce
	m.cp = cp.cp
	m.unwindTrail(cp.tr)
	m.heap = m.heap[:cp.h]
	m.hb = cp.h
	m.p = cp.retry
	return true
}

func (m *Machine) unwindTrail(to uint32) {
	for i := len(m.trail) - 1; i >= int(to); i-- {
		addr := m.trail[i]
		m.heap[addr] = RefCell(addr)
	}
	m.trail = m.trail[:to]
}

// deref follows a REF chain to its ultimate bound value, or to the
// self-referential cell marking an unbound variable (spec.md §4.5.2,
// invariant 1).
func (m *Machine) deref(c Cell) Cell {
	for c.Tag() == RefTag {
		addr := c.Payload()
		h := m.heap[addr]
		if h.Tag() == RefTag && h.Payload() == addr {
			return c
		}
		c = h
	}
	return c
}

// bind binds whichever of a, b (both already deref'd) is an unbound
// variable to the other; if both are unbound, the higher-addressed cell
// is bound to the lower-addressed one, preserving invariant 1. Trailing
// follows spec.md invariant 2: only cells older than HB need undoing.
func (m *Machine) bind(a, b Cell) {
	aRef, bRef := a.Tag() == RefTag, b.Tag() == RefTag
	switch {
	case aRef && bRef:
		aAddr, bAddr := a.Payload(), b.Payload()
		if aAddr == bAddr {
			return
		}
		if aAddr < bAddr {
			m.bindAddr(bAddr, a)
		} else {
			m.bindAddr(aAddr, b)
		}
	case aRef:
		m.bindAddr(a.Payload(), b)
	case bRef:
		m.bindAddr(b.Payload(), a)
	}
}

func (m *Machine) bindAddr(addr uint32, val Cell) {
	m.heap[addr] = val
	if addr < m.hb {
		if len(m.trail) >= m.cfg.MaxTrail {
			panic(&ResourceError{Resource: "trail", Limit: m.cfg.MaxTrail})
		}
		m.trail = append(m.trail, addr)
	}
}

// unify is the iterative PDL-driven unification of spec.md §4.5.3.
func (m *Machine) unify(a, b Cell) bool {
	m.pdl = m.pdl[:0]
	m.pdl = append(m.pdl, pdlPair{a, b})
	for len(m.pdl) > 0 {
		top := m.pdl[len(m.pdl)-1]
		m.pdl = m.pdl[:len(m.pdl)-1]
		da := m.deref(top.a)
		db := m.deref(top.b)
		if da == db {
			continue
		}
		if da.Tag() == RefTag || db.Tag() == RefTag {
			m.bind(da, db)
			continue
		}
		if da.Tag() != db.Tag() {
			return false
		}
		switch da.Tag() {
		case ConTag:
			if da.Payload() != db.Payload() {
				return false
			}
		case StrTag:
			fa, fb := m.heap[da.Payload()], m.heap[db.Payload()]
			if fa != fb {
				return false
			}
			id := m.mod.Consts[fa.Payload()].Atom
			n := id.Arity()
			for i := 0; i < n; i++ {
				m.pdl = append(m.pdl, pdlPair{
					m.heap[da.Payload()+1+uint32(i)],
					m.heap[db.Payload()+1+uint32(i)],
				})
			}
		case ListTag:
			m.pdl = append(m.pdl, pdlPair{m.heap[da.Payload()], m.heap[db.Payload()]})
			m.pdl = append(m.pdl, pdlPair{m.heap[da.Payload()+1], m.heap[db.Payload()+1]})
		}
	}
	return true
}
