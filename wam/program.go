package wam

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/rupertlssmith/lojix-sub000/sym"
)

// magic and formatVersion tag the bytecode file format from SPEC_FULL.md §6.
const (
	magic         = "WAMB"
	formatVersion = 1
)

// ConstEntry describes one entry of a Module's constant pool: every CON
// cell's payload is an index into this table. Grounded on the teacher's
// wam/program.go Program.constIDs map, generalized from atoms-only to
// atoms/ints/reals per spec.md §3 ("Constants of arity 0 are CON(name_id)").
type ConstEntry struct {
	Kind ConstKind
	Atom sym.FunctorID // valid when Kind == ConstAtom
	Int  int64         // valid when Kind == ConstInt
	Real float64       // valid when Kind == ConstReal
}

// ConstKind discriminates a ConstEntry's payload.
type ConstKind uint8

const (
	ConstAtom ConstKind = iota
	ConstInt
	ConstReal
)

// PredKey identifies a predicate by functor id and arity, matching
// term.Indicator but kept local to avoid a wam->term->wam import cycle.
type PredKey struct {
	Functor sym.FunctorID
	Arity   int
}

// PredEntry is a predicate's entry in the call table: where its clause
// dispatch prologue starts.
type PredEntry struct {
	EntryPC uint32
	Dynamic bool // declared but not yet given clauses: calls fail rather than error
	Defined bool // at least one clause has actually been compiled for this key
}

// Module is a compiled, linked program: bytecode, its constant pool, and
// the predicate call table, plus the symbol interner the functor/constant
// ids are relative to. Grounded on the teacher's wam/program.go Program
// type, generalized with a real linker (compile.go) instead of the
// teacher's single CompileFact prototype.
type Module struct {
	Code     []Instr
	Consts   []ConstEntry
	constIdx map[ConstEntry]uint32
	Preds    map[PredKey]*PredEntry
	Interner *sym.Interner
}

// NewModule returns an empty, linkable module.
func NewModule(in *sym.Interner) *Module {
	return &Module{
		Preds:    make(map[PredKey]*PredEntry),
		constIdx: make(map[ConstEntry]uint32),
		Interner: in,
	}
}

// InternConst returns the constant pool id for e, adding it if new.
func (m *Module) InternConst(e ConstEntry) uint32 {
	if id, ok := m.constIdx[e]; ok {
		return id
	}
	id := uint32(len(m.Consts))
	m.Consts = append(m.Consts, e)
	m.constIdx[e] = id
	return id
}

// FunctorConst returns the constant pool id naming functor id, interning it
// if needed. Every named constant this toolchain deals with — a bare atom
// used as a term, or the functor heading a compound structure — goes
// through this one pool entry, per spec.md §3 ("Constants of arity 0 are
// CON(name_id)"): there is no separate representation for "a functor" and
// "an atom constant".
func (m *Module) FunctorConst(id sym.FunctorID) uint32 {
	return m.InternConst(ConstEntry{Kind: ConstAtom, Atom: id})
}

// IntConst and RealConst intern a numeric literal into the constant pool.
func (m *Module) IntConst(v int64) uint32  { return m.InternConst(ConstEntry{Kind: ConstInt, Int: v}) }
func (m *Module) RealConst(v float64) uint32 {
	return m.InternConst(ConstEntry{Kind: ConstReal, Real: v})
}

// Emit appends an instruction and returns its address.
func (m *Module) Emit(ins Instr) uint32 {
	addr := uint32(len(m.Code))
	m.Code = append(m.Code, ins)
	return addr
}

// Pred returns (creating if absent) the PredEntry for key.
func (m *Module) Pred(key PredKey) *PredEntry {
	p, ok := m.Preds[key]
	if !ok {
		p = &PredEntry{}
		m.Preds[key] = p
	}
	return p
}

// WriteBytecode serializes the module per SPEC_FULL.md §6: magic, version,
// code length + instructions, the constant pool, the interner's tables,
// and the predicate call table.
func (m *Module) WriteBytecode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(formatVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Code))); err != nil {
		return err
	}
	for _, ins := range m.Code {
		if err := writeInstr(bw, ins); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Consts))); err != nil {
		return err
	}
	for _, c := range m.Consts {
		if err := writeConst(bw, c); err != nil {
			return err
		}
	}
	if err := writeFunctors(bw, m.Interner); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Preds))); err != nil {
		return err
	}
	for key, p := range m.Preds {
		if err := binary.Write(bw, binary.LittleEndian, uint32(key.Functor)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(key.Arity)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, p.EntryPC); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeInstr(w io.Writer, ins Instr) error {
	fields := []interface{}{
		ins.Op, ins.Reg, ins.Arg, ins.Functor, ins.Const, ins.N,
		ins.Target, ins.Target2, ins.Target3, ins.Target4, ins.Pred, ins.Bltn,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	perm := uint8(0)
	if ins.Perm {
		perm = 1
	}
	if err := binary.Write(w, binary.LittleEndian, perm); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ins.Table))); err != nil {
		return err
	}
	for _, c := range ins.Table {
		if err := binary.Write(w, binary.LittleEndian, c.Key); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, c.Target); err != nil {
			return err
		}
	}
	return nil
}

func writeConst(w io.Writer, c ConstEntry) error {
	if err := binary.Write(w, binary.LittleEndian, c.Kind); err != nil {
		return err
	}
	switch c.Kind {
	case ConstAtom:
		return binary.Write(w, binary.LittleEndian, uint32(c.Atom))
	case ConstInt:
		return binary.Write(w, binary.LittleEndian, c.Int)
	case ConstReal:
		return binary.Write(w, binary.LittleEndian, c.Real)
	}
	return fmt.Errorf("wam: unknown const kind %d", c.Kind)
}

func writeFunctors(w io.Writer, in *sym.Interner) error {
	fs := in.Functors()
	// The reader rebuilds its interner by re-interning in file order, so the
	// table must be written in name-index order for the rebuilt FunctorIDs
	// (and with them every constant-pool Atom and predicate key) to come out
	// identical.
	sort.Slice(fs, func(i, j int) bool {
		ni, nj := uint32(fs[i].ID)&0xFFFF, uint32(fs[j].ID)&0xFFFF
		if ni != nj {
			return ni < nj
		}
		return fs[i].Arity < fs[j].Arity
	})
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fs))); err != nil {
		return err
	}
	for _, f := range fs {
		if err := binary.Write(w, binary.LittleEndian, uint32(f.ID)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(f.Arity)); err != nil {
			return err
		}
		b := []byte(f.Name)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// ReadBytecode deserializes a module written by WriteBytecode. It creates
// a fresh interner for the module and re-registers the functor ids into
// it, so two modules loaded in the same process never collide.
func ReadBytecode(r io.Reader) (*Module, error) {
	br := bufio.NewReader(r)
	var gotMagic [4]byte
	if _, err := io.ReadFull(br, gotMagic[:]); err != nil {
		return nil, err
	}
	if string(gotMagic[:]) != magic {
		return nil, fmt.Errorf("wam: bad magic %q", gotMagic)
	}
	var version uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("wam: unsupported bytecode version %d", version)
	}
	in := sym.New()
	m := NewModule(in)

	var codeLen uint32
	if err := binary.Read(br, binary.LittleEndian, &codeLen); err != nil {
		return nil, err
	}
	m.Code = make([]Instr, codeLen)
	for i := range m.Code {
		ins, err := readInstr(br)
		if err != nil {
			return nil, err
		}
		m.Code[i] = ins
	}

	var constLen uint32
	if err := binary.Read(br, binary.LittleEndian, &constLen); err != nil {
		return nil, err
	}
	m.Consts = make([]ConstEntry, constLen)
	for i := range m.Consts {
		c, err := readConst(br)
		if err != nil {
			return nil, err
		}
		m.Consts[i] = c
		m.constIdx[c] = uint32(i)
	}

	if err := readFunctors(br, in); err != nil {
		return nil, err
	}

	var predLen uint32
	if err := binary.Read(br, binary.LittleEndian, &predLen); err != nil {
		return nil, err
	}
	for i := uint32(0); i < predLen; i++ {
		var functor, arity, entry uint32
		if err := binary.Read(br, binary.LittleEndian, &functor); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &arity); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &entry); err != nil {
			return nil, err
		}
		m.Preds[PredKey{Functor: sym.FunctorID(functor), Arity: int(arity)}] = &PredEntry{EntryPC: entry}
	}
	return m, nil
}

func readInstr(r io.Reader) (Instr, error) {
	var ins Instr
	fields := []interface{}{
		&ins.Op, &ins.Reg, &ins.Arg, &ins.Functor, &ins.Const, &ins.N,
		&ins.Target, &ins.Target2, &ins.Target3, &ins.Target4, &ins.Pred, &ins.Bltn,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return ins, err
		}
	}
	var perm uint8
	if err := binary.Read(r, binary.LittleEndian, &perm); err != nil {
		return ins, err
	}
	ins.Perm = perm != 0
	var tableLen uint32
	if err := binary.Read(r, binary.LittleEndian, &tableLen); err != nil {
		return ins, err
	}
	ins.Table = make([]SwitchCase, tableLen)
	for i := range ins.Table {
		if err := binary.Read(r, binary.LittleEndian, &ins.Table[i].Key); err != nil {
			return ins, err
		}
		if err := binary.Read(r, binary.LittleEndian, &ins.Table[i].Target); err != nil {
			return ins, err
		}
	}
	return ins, nil
}

func readConst(r io.Reader) (ConstEntry, error) {
	var c ConstEntry
	if err := binary.Read(r, binary.LittleEndian, &c.Kind); err != nil {
		return c, err
	}
	switch c.Kind {
	case ConstAtom:
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return c, err
		}
		c.Atom = sym.FunctorID(id)
	case ConstInt:
		if err := binary.Read(r, binary.LittleEndian, &c.Int); err != nil {
			return c, err
		}
	case ConstReal:
		if err := binary.Read(r, binary.LittleEndian, &c.Real); err != nil {
			return c, err
		}
	default:
		return c, fmt.Errorf("wam: unknown const kind %d", c.Kind)
	}
	return c, nil
}

func readFunctors(r io.Reader, in *sym.Interner) error {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var id, arity, nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &arity); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return err
		}
		in.InternFunctor(string(name), int(arity))
	}
	return nil
}
