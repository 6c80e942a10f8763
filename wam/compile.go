package wam

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/rupertlssmith/lojix-sub000/sym"
	"github.com/rupertlssmith/lojix-sub000/term"
)

// LinkMode governs what happens when compiled code calls a predicate that
// never receives a clause, per SPEC_FULL.md §4.4's Linkage supplement.
type LinkMode uint8

const (
	// LinkStrict fails the whole compile with a *LinkError.
	LinkStrict LinkMode = iota
	// LinkLenient patches the call to a stub that fails at runtime instead,
	// and marks the predicate Dynamic so callN/disasm can say so.
	LinkLenient
)

// CompilerConfig configures a Compiler, the same field-struct shape as
// Machine's Config (machine.go), per SPEC_FULL.md's Configuration section.
type CompilerConfig struct {
	Link   LinkMode
	Logger hclog.Logger
}

// DefaultCompilerConfig is strict linkage with a discarding logger.
func DefaultCompilerConfig() CompilerConfig {
	return CompilerConfig{Link: LinkStrict, Logger: hclog.NewNullLogger()}
}

func (cfg CompilerConfig) withDefaults() CompilerConfig {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return cfg
}

// Compiler turns clauses into a linked Module. One Compiler accumulates an
// entire program; CompileProgram and CompileQuery both append to the same
// underlying Module so a query can call predicates compiled earlier.
//
// Grounded on the teacher's wam/compile.go CompileFact, which only ever
// handled a single ground fact; this is the general classify/allocate/
// emit compiler spec.md §4.4 and SPEC_FULL.md §4.4 ask for.
type Compiler struct {
	mod     *Module
	cfg     CompilerConfig
	log     hclog.Logger
	pending []pendingCall
}

type pendingCall struct {
	addr uint32
	key  PredKey
}

// NewCompiler returns a Compiler building into a fresh Module over in.
func NewCompiler(in *sym.Interner, cfg CompilerConfig) *Compiler {
	return NewCompilerForModule(NewModule(in), cfg)
}

// NewCompilerForModule returns a Compiler that appends to an already-linked
// Module, the same way lojix.Module.Prepare compiles a query against the
// Module spec.md §6's compile(program_text) produced: the query's call
// sites are linked against predicates compiled in an earlier pass.
func NewCompilerForModule(mod *Module, cfg CompilerConfig) *Compiler {
	cfg = cfg.withDefaults()
	return &Compiler{mod: mod, cfg: cfg, log: cfg.Logger.Named("compile")}
}

// Module returns the Module built so far. Safe to call after CompileProgram
// or CompileQuery return, whether or not they errored (partial programs are
// still disassemblable, which is useful for diagnosing a link failure).
func (c *Compiler) Module() *Module { return c.mod }

// GroupClauses partitions clauses into per-predicate Predicates, in first-
// appearance order, dropping queries (a query has no indicator to group
// under; CompileQuery takes one directly). Source order within a predicate
// is preserved, which is what the try/retry/trust chain's alternative order
// depends on (spec.md Testable Property 4). A clause whose head is not an
// atom or compound (a bare number, say) is an error.
func GroupClauses(clauses []term.Clause) ([]term.Predicate, error) {
	order := []term.Indicator{}
	byKey := map[term.Indicator]*term.Predicate{}
	for _, cl := range clauses {
		if cl.IsQuery() {
			continue
		}
		switch cl.Head.(type) {
		case term.Atom, term.Compound:
		default:
			return nil, fmt.Errorf("wam: clause head must be an atom or compound, got %T", cl.Head)
		}
		ind := cl.Indicator()
		p, ok := byKey[ind]
		if !ok {
			p = &term.Predicate{Indicator: ind}
			byKey[ind] = p
			order = append(order, ind)
		}
		p.Clauses = append(p.Clauses, cl)
	}
	preds := make([]term.Predicate, len(order))
	for i, ind := range order {
		preds[i] = *byKey[ind]
	}
	return preds, nil
}

// CompileProgram compiles every predicate and links all call sites emitted
// along the way. Call it once per batch of predicates; a later CompileQuery
// (or a later CompileProgram) can still call predicates compiled here.
func (c *Compiler) CompileProgram(preds []term.Predicate) error {
	for _, p := range preds {
		if err := c.compilePredicate(p); err != nil {
			return err
		}
	}
	return c.link()
}

func (c *Compiler) compilePredicate(pred term.Predicate) error {
	fid := c.mod.Interner.InternFunctor(pred.Indicator.Name, pred.Indicator.Arity)
	key := PredKey{Functor: fid, Arity: pred.Indicator.Arity}
	entry := c.mod.Pred(key)
	entry.EntryPC = uint32(len(c.mod.Code))
	entry.Defined = true

	c.log.Trace("compile predicate", "indicator", pred.Indicator.String(), "clauses", len(pred.Clauses), "entry", entry.EntryPC)

	if len(pred.Clauses) == 1 {
		return c.compileOneClause(pred.Clauses[0])
	}
	return c.compileIndexedClauses(pred.Clauses)
}

func (c *Compiler) compileOneClause(cl term.Clause) error {
	ctx := c.newClauseCtx(cl, false)
	return c.emitClause(ctx, cl)
}

// QueryVar names where a query variable's binding ends up: its X or Y
// register at the point the query suspends. lojix.go's Bindings reads
// through these to answer Bindings.Get.
type QueryVar struct {
	Name string
	Reg  uint16
	Perm bool
}

// CompileQuery compiles q (a headless Clause, per term.Clause.IsQuery) as
// its own entry point and links its call sites against the Module compiled
// so far. It never deallocates its environment, so a caller can still read
// permanent query variables back out of the stack after Solve suspends.
func (c *Compiler) CompileQuery(q term.Clause) (uint32, []QueryVar, error) {
	if !q.IsQuery() {
		return 0, nil, fmt.Errorf("wam: CompileQuery requires a headless clause")
	}
	entry := uint32(len(c.mod.Code))
	ctx := c.newClauseCtx(q, true)
	if err := c.emitClause(ctx, q); err != nil {
		return 0, nil, err
	}
	if err := c.link(); err != nil {
		return 0, nil, err
	}
	var vars []QueryVar
	for _, name := range ctx.order {
		if strings.HasPrefix(name, anonPrefix) {
			continue
		}
		if ctx.perm[name] {
			vars = append(vars, QueryVar{Name: name, Reg: ctx.permSlot[name], Perm: true})
		} else if reg, ok := ctx.homeX[name]; ok {
			vars = append(vars, QueryVar{Name: name, Reg: reg, Perm: false})
		}
	}
	return entry, vars, nil
}

// link patches every call/execute site recorded since the last link against
// the Module's current predicate table, per CompilerConfig.Link.
func (c *Compiler) link() error {
	if len(c.pending) == 0 {
		return nil
	}
	var errs *multierror.Error
	var failStub uint32
	haveFailStub := false
	for _, p := range c.pending {
		entry, ok := c.mod.Preds[p.key]
		if ok && entry.Defined {
			c.mod.Code[p.addr].Target = entry.EntryPC
			continue
		}
		if c.cfg.Link == LinkStrict {
			errs = multierror.Append(errs, &LinkError{Indicator: c.indicatorOf(p.key)})
			continue
		}
		if !haveFailStub {
			failStub = c.mod.Emit(Instr{Op: OpFail})
			haveFailStub = true
		}
		if entry == nil {
			entry = c.mod.Pred(p.key)
		}
		entry.Dynamic = true
		c.mod.Code[p.addr].Target = failStub
	}
	c.pending = nil
	return errs.ErrorOrNil()
}

func (c *Compiler) indicatorOf(key PredKey) term.Indicator {
	return term.Indicator{Name: c.mod.Interner.FunctorName(key.Functor), Arity: key.Arity}
}

func (c *Compiler) recordCallSite(addr uint32, key PredKey) {
	c.pending = append(c.pending, pendingCall{addr: addr, key: key})
}

const anonPrefix = "_G"

// --- clause compilation context: variable classification and homes ---

type regRef struct {
	reg  uint16
	perm bool
}

type clauseCtx struct {
	isQuery bool

	perm     map[string]bool
	permSlot map[string]uint16
	homeX    map[string]uint16
	seen     map[string]bool
	totalOcc map[string]int
	remain   map[string]int
	order    []string // first-occurrence order, head then body

	nextTemp uint16
	numPerm  uint16
	hasEnv   bool

	needsCutSlot bool
	cutSlot      uint16

	iteSlotBase uint16
	iteUsed     uint16
}

// flattenAll fully flattens body, including conjunctions nested inside a
// parenthesised goal (term.FlattenConjunction only unfolds the outermost
// spine; a body element that is itself "(b, c)" still needs unfolding here
// so variable-unit classification below sees b and c as separate units).
func flattenAll(body []term.Term) []term.Term {
	var out []term.Term
	for _, g := range body {
		out = append(out, term.FlattenConjunction(g)...)
	}
	return out
}

func walkVars(t term.Term, fn func(string)) {
	switch v := t.(type) {
	case term.Var:
		fn(v.Name)
	case term.Compound:
		for _, a := range v.Args {
			walkVars(a, fn)
		}
	}
}

func goalArity(g term.Term) int {
	if c, ok := g.(term.Compound); ok {
		return len(c.Args)
	}
	return 0
}

func isCutAtom(t term.Term) bool {
	a, ok := t.(term.Atom)
	return ok && a.Name == "!"
}

// hasBranch reports whether a goal contains a disjunction or if-then-else
// anywhere in its conjunction structure.
func hasBranch(t term.Term) bool {
	c, ok := t.(term.Compound)
	if !ok {
		return false
	}
	if (c.Functor == ";" || c.Functor == "->") && len(c.Args) == 2 {
		return true
	}
	if c.Functor == "," && len(c.Args) == 2 {
		return hasBranch(c.Args[0]) || hasBranch(c.Args[1])
	}
	return false
}

func containsCut(t term.Term) bool {
	if isCutAtom(t) {
		return true
	}
	c, ok := t.(term.Compound)
	if !ok {
		return false
	}
	if (c.Functor == "," || c.Functor == ";" || c.Functor == "->") && len(c.Args) == 2 {
		return containsCut(c.Args[0]) || containsCut(c.Args[1])
	}
	return false
}

// bodyHasDeepCut reports a cut occurring anywhere but as the clause's very
// first body goal: spec.md §4.4.6 distinguishes that case (neck_cut) from
// every other placement (get_level/cut).
func bodyHasDeepCut(body []term.Term) bool {
	for i, g := range body {
		if i == 0 && isCutAtom(g) {
			continue
		}
		if containsCut(g) {
			return true
		}
	}
	return false
}

// scanIfThenElse counts "Cond -> Then ; Else" occurrences in source order,
// the same depth-first order compileGoal will later visit them in: each one
// needs its own get_level/cut permanent slot, assigned by that shared order.
func scanIfThenElse(body []term.Term) int {
	n := 0
	var walk func(t term.Term)
	walk = func(t term.Term) {
		c, ok := t.(term.Compound)
		if !ok {
			return
		}
		switch {
		case (c.Functor == "," || c.Functor == "->") && len(c.Args) == 2:
			walk(c.Args[0])
			walk(c.Args[1])
		case c.Functor == ";" && len(c.Args) == 2:
			if ite, ok := c.Args[0].(term.Compound); ok && ite.Functor == "->" && len(ite.Args) == 2 {
				n++
				walk(ite.Args[0])
				walk(ite.Args[1])
			} else {
				walk(c.Args[0])
			}
			walk(c.Args[1])
		}
	}
	for _, g := range body {
		walk(g)
	}
	return n
}

// newClauseCtx classifies cl's variables into temporary and permanent homes,
// per spec.md §4.4.2 sharpened to the textbook "unit" rule: a variable is
// permanent iff it occurs in more than one unit, where the head plus the
// first body goal together are unit 0 and every later body goal is its own
// unit (spec.md's wording — "survives a call" — underspecifies the head/
// goal-1 case, which this refines; see DESIGN.md).
func (c *Compiler) newClauseCtx(cl term.Clause, isQuery bool) *clauseCtx {
	ctx := &clauseCtx{
		isQuery:  isQuery,
		perm:     map[string]bool{},
		permSlot: map[string]uint16{},
		homeX:    map[string]uint16{},
		seen:     map[string]bool{},
		totalOcc: map[string]int{},
		remain:   map[string]int{},
	}

	flatBody := flattenAll(cl.Body)

	units := map[string]map[int]bool{}
	seenOrder := map[string]bool{}
	mark := func(t term.Term, u int) {
		walkVars(t, func(name string) {
			ctx.totalOcc[name]++
			if units[name] == nil {
				units[name] = map[int]bool{}
			}
			units[name][u] = true
			if !seenOrder[name] {
				seenOrder[name] = true
				ctx.order = append(ctx.order, name)
			}
		})
	}
	if !isQuery && cl.Head != nil {
		mark(cl.Head, 0)
	}
	var branchy []map[string]int
	for i, g := range flatBody {
		u := 0
		if i > 0 {
			u = i + 1
		}
		mark(g, u)
		if hasBranch(g) {
			inGoal := map[string]int{}
			walkVars(g, func(name string) { inGoal[name]++ })
			branchy = append(branchy, inGoal)
		}
	}

	// A goal with a disjunction or if-then-else runs calls inside a single
	// classification unit, so the unit rule alone would leave a variable
	// used across one of those calls in a clobberable X register. Any
	// variable that occurs in such a goal and anywhere else in the clause
	// (including the head, which shares the goal's unit when the goal comes
	// first), or more than once within the goal itself, is forced permanent.
	forced := map[string]bool{}
	for _, inGoal := range branchy {
		for name, n := range inGoal {
			if n > 1 || ctx.totalOcc[name] > n {
				forced[name] = true
			}
		}
	}

	for name, us := range units {
		if len(us) > 1 || forced[name] {
			ctx.perm[name] = true
		}
	}
	if isQuery {
		// Query variables must outlive every call the query makes: the
		// bindings snapshot reads them back after suspend, long after any X
		// register home would have been overwritten by callee code. They all
		// live in the query's never-deallocated environment.
		for name := range ctx.totalOcc {
			if !strings.HasPrefix(name, anonPrefix) {
				ctx.perm[name] = true
			}
		}
	}
	for name, n := range ctx.totalOcc {
		ctx.remain[name] = n
	}

	var nextSlot uint16
	for _, name := range ctx.order {
		if ctx.perm[name] {
			ctx.permSlot[name] = nextSlot
			nextSlot++
		}
	}

	ctx.needsCutSlot = bodyHasDeepCut(flatBody)
	if ctx.needsCutSlot {
		ctx.cutSlot = nextSlot
		nextSlot++
	}
	iteCount := scanIfThenElse(flatBody)
	ctx.iteSlotBase = nextSlot
	nextSlot += uint16(iteCount)
	ctx.numPerm = nextSlot

	maxArity := 0
	if hc, ok := cl.Head.(term.Compound); ok && !isQuery {
		maxArity = len(hc.Args)
	}
	for _, g := range flatBody {
		if n := goalArity(g); n > maxArity {
			maxArity = n
		}
	}
	ctx.nextTemp = uint16(maxArity + 1)
	ctx.hasEnv = ctx.numPerm > 0 || (!isQuery && len(flatBody) >= 2)
	return ctx
}

func (ctx *clauseCtx) freshTemp() uint16 {
	r := ctx.nextTemp
	ctx.nextTemp++
	return r
}

func (ctx *clauseCtx) homeOf(name string) regRef {
	if ctx.perm[name] {
		return regRef{reg: ctx.permSlot[name], perm: true}
	}
	if r, ok := ctx.homeX[name]; ok {
		return regRef{reg: r, perm: false}
	}
	r := ctx.freshTemp()
	ctx.homeX[name] = r
	return regRef{reg: r, perm: false}
}

// touch records one more visit to name, returning whether this was its
// last occurrence anywhere in the clause (head and body, this compilation
// pass's own traversal order). The last occurrence of a permanent variable
// used directly as a body-goal argument can use put_unsafe_value instead of
// put_value; used inside a structure, unify_local_value/set_local_value.
func (ctx *clauseCtx) touch(name string) bool {
	ctx.remain[name]--
	return ctx.remain[name] == 0
}

func isVoidCandidate(ctx *clauseCtx, t term.Term) bool {
	v, ok := t.(term.Var)
	if !ok {
		return false
	}
	return strings.HasPrefix(v.Name, anonPrefix) && ctx.totalOcc[v.Name] == 1
}

func voidRun(ctx *clauseCtx, args []term.Term, start int) int {
	n := 0
	for start+n < len(args) && isVoidCandidate(ctx, args[start+n]) {
		n++
	}
	return n
}

func isListCons(v term.Compound) bool {
	return v.Functor == "cons" && len(v.Args) == 2
}

// --- head compilation (get_*/unify_*, read side) ---

type queuedTerm struct {
	reg  uint16
	term term.Term
}

func (c *Compiler) compileHead(ctx *clauseCtx, head term.Term) error {
	var args []term.Term
	switch h := head.(type) {
	case term.Compound:
		args = h.Args
	case term.Atom:
		args = nil
	default:
		return fmt.Errorf("wam: clause head must be an atom or compound, got %T", head)
	}
	var queue []queuedTerm
	for i, a := range args {
		c.compileGetTerm(ctx, a, uint16(i+1), &queue)
	}
	for len(queue) > 0 {
		qt := queue[0]
		queue = queue[1:]
		c.compileGetTerm(ctx, qt.term, qt.reg, &queue)
	}
	return nil
}

func (c *Compiler) compileGetTerm(ctx *clauseCtx, t term.Term, reg uint16, queue *[]queuedTerm) {
	switch v := t.(type) {
	case term.Var:
		c.emitGetVar(ctx, v.Name, reg)
	case term.Int:
		c.mod.Emit(Instr{Op: OpGetConst, Arg: reg, Const: c.mod.IntConst(v.Val)})
	case term.Real:
		c.mod.Emit(Instr{Op: OpGetConst, Arg: reg, Const: c.mod.RealConst(v.Val)})
	case term.Atom:
		fid := c.mod.Interner.InternFunctor(v.Name, 0)
		c.mod.Emit(Instr{Op: OpGetConst, Arg: reg, Const: c.mod.FunctorConst(fid)})
	case term.Compound:
		if isListCons(v) {
			c.mod.Emit(Instr{Op: OpGetList, Arg: reg})
		} else {
			fid := c.mod.Interner.InternFunctor(v.Functor, len(v.Args))
			c.mod.Emit(Instr{Op: OpGetStruct, Arg: reg, Functor: c.mod.FunctorConst(fid)})
		}
		c.compileUnifyArgs(ctx, v.Args, queue)
	}
}

func (c *Compiler) emitGetVar(ctx *clauseCtx, name string, argReg uint16) {
	first := !ctx.seen[name]
	home := ctx.homeOf(name)
	ctx.seen[name] = true
	ctx.touch(name)
	if first {
		c.mod.Emit(Instr{Op: OpGetVar, Reg: home.reg, Perm: home.perm, Arg: argReg})
	} else {
		c.mod.Emit(Instr{Op: OpGetVal, Reg: home.reg, Perm: home.perm, Arg: argReg})
	}
}

func (c *Compiler) compileUnifyArgs(ctx *clauseCtx, args []term.Term, queue *[]queuedTerm) {
	i := 0
	for i < len(args) {
		if n := voidRun(ctx, args, i); n > 0 {
			c.mod.Emit(Instr{Op: OpUnifyVoid, N: uint32(n)})
			i += n
			continue
		}
		c.compileUnifyArg(ctx, args[i], queue)
		i++
	}
}

func (c *Compiler) compileUnifyArg(ctx *clauseCtx, t term.Term, queue *[]queuedTerm) {
	switch v := t.(type) {
	case term.Var:
		first := !ctx.seen[v.Name]
		home := ctx.homeOf(v.Name)
		ctx.seen[v.Name] = true
		isLast := ctx.touch(v.Name)
		switch {
		case first:
			c.mod.Emit(Instr{Op: OpUnifyVar, Reg: home.reg, Perm: home.perm})
		case home.perm && isLast:
			c.mod.Emit(Instr{Op: OpUnifyLocalVal, Reg: home.reg, Perm: home.perm})
		default:
			c.mod.Emit(Instr{Op: OpUnifyVal, Reg: home.reg, Perm: home.perm})
		}
	case term.Int:
		c.mod.Emit(Instr{Op: OpUnifyConst, Const: c.mod.IntConst(v.Val)})
	case term.Real:
		c.mod.Emit(Instr{Op: OpUnifyConst, Const: c.mod.RealConst(v.Val)})
	case term.Atom:
		fid := c.mod.Interner.InternFunctor(v.Name, 0)
		c.mod.Emit(Instr{Op: OpUnifyConst, Const: c.mod.FunctorConst(fid)})
	case term.Compound:
		tmp := ctx.freshTemp()
		c.mod.Emit(Instr{Op: OpUnifyVar, Reg: tmp})
		*queue = append(*queue, queuedTerm{reg: tmp, term: v})
	}
}

// --- body compilation (put_*/set_*, write side) ---

func (c *Compiler) compilePutArg(ctx *clauseCtx, t term.Term, argReg uint16) {
	switch v := t.(type) {
	case term.Var:
		c.emitPutVar(ctx, v.Name, argReg)
	case term.Int:
		c.mod.Emit(Instr{Op: OpPutConst, Arg: argReg, Const: c.mod.IntConst(v.Val)})
	case term.Real:
		c.mod.Emit(Instr{Op: OpPutConst, Arg: argReg, Const: c.mod.RealConst(v.Val)})
	case term.Atom:
		fid := c.mod.Interner.InternFunctor(v.Name, 0)
		c.mod.Emit(Instr{Op: OpPutConst, Arg: argReg, Const: c.mod.FunctorConst(fid)})
	case term.Compound:
		// Nested compound arguments are built bottom-up into temporaries
		// before the enclosing cell is emitted: the enclosing structure's
		// argument cells must be contiguous on the heap, so a nested build
		// cannot run between put_structure and its set_* instructions.
		tmps := map[int]uint16{}
		for i, a := range v.Args {
			if sub, ok := a.(term.Compound); ok {
				t := ctx.freshTemp()
				c.compilePutArg(ctx, sub, t)
				tmps[i] = t
			}
		}
		if isListCons(v) {
			c.mod.Emit(Instr{Op: OpPutList, Arg: argReg})
		} else {
			fid := c.mod.Interner.InternFunctor(v.Functor, len(v.Args))
			c.mod.Emit(Instr{Op: OpPutStruct, Arg: argReg, Functor: c.mod.FunctorConst(fid)})
		}
		c.compileSetArgs(ctx, v.Args, tmps)
	}
}

func (c *Compiler) emitPutVar(ctx *clauseCtx, name string, argReg uint16) {
	first := !ctx.seen[name]
	home := ctx.homeOf(name)
	ctx.seen[name] = true
	isLast := ctx.touch(name)
	switch {
	case first:
		c.mod.Emit(Instr{Op: OpPutVar, Reg: home.reg, Perm: home.perm, Arg: argReg})
	case home.perm && isLast:
		c.mod.Emit(Instr{Op: OpPutUnsafeVal, Reg: home.reg, Perm: home.perm, Arg: argReg})
	default:
		c.mod.Emit(Instr{Op: OpPutVal, Reg: home.reg, Perm: home.perm, Arg: argReg})
	}
}

func (c *Compiler) compileSetArgs(ctx *clauseCtx, args []term.Term, tmps map[int]uint16) {
	i := 0
	for i < len(args) {
		if t, ok := tmps[i]; ok {
			c.mod.Emit(Instr{Op: OpSetVal, Reg: t})
			i++
			continue
		}
		if n := voidRun(ctx, args, i); n > 0 {
			c.mod.Emit(Instr{Op: OpSetVoid, N: uint32(n)})
			i += n
			continue
		}
		c.compileSetArg(ctx, args[i])
		i++
	}
}

func (c *Compiler) compileSetArg(ctx *clauseCtx, t term.Term) {
	switch v := t.(type) {
	case term.Var:
		first := !ctx.seen[v.Name]
		home := ctx.homeOf(v.Name)
		ctx.seen[v.Name] = true
		isLast := ctx.touch(v.Name)
		switch {
		case first:
			c.mod.Emit(Instr{Op: OpSetVar, Reg: home.reg, Perm: home.perm})
		case home.perm && isLast:
			c.mod.Emit(Instr{Op: OpSetLocalVal, Reg: home.reg, Perm: home.perm})
		default:
			c.mod.Emit(Instr{Op: OpSetVal, Reg: home.reg, Perm: home.perm})
		}
	case term.Int:
		c.mod.Emit(Instr{Op: OpSetConst, Const: c.mod.IntConst(v.Val)})
	case term.Real:
		c.mod.Emit(Instr{Op: OpSetConst, Const: c.mod.RealConst(v.Val)})
	case term.Atom:
		fid := c.mod.Interner.InternFunctor(v.Name, 0)
		c.mod.Emit(Instr{Op: OpSetConst, Const: c.mod.FunctorConst(fid)})
	}
}

// --- clause/query assembly ---

func (c *Compiler) emitClause(ctx *clauseCtx, cl term.Clause) error {
	// The environment must exist before head matching runs: a permanent
	// variable's first occurrence in the head is a get_variable into a Yn
	// slot of this clause's own frame.
	if ctx.hasEnv {
		c.mod.Emit(Instr{Op: OpAllocate, N: uint32(ctx.numPerm)})
	}
	if ctx.needsCutSlot {
		c.mod.Emit(Instr{Op: OpGetLevel, Reg: ctx.cutSlot, Perm: true})
	}
	if !ctx.isQuery {
		if err := c.compileHead(ctx, cl.Head); err != nil {
			return err
		}
	}
	if ctx.isQuery {
		return c.compileQueryBody(ctx, flattenAll(cl.Body))
	}
	body := flattenAll(cl.Body)
	if len(body) == 0 {
		c.mod.Emit(Instr{Op: OpProceed})
		return nil
	}
	return c.compileBody(ctx, body)
}

func (c *Compiler) compileQueryBody(ctx *clauseCtx, body []term.Term) error {
	for i, g := range body {
		if i == 0 && isCutAtom(g) {
			c.mod.Emit(Instr{Op: OpNeckCut})
			continue
		}
		if err := c.compileGoal(ctx, g, false); err != nil {
			return err
		}
	}
	c.mod.Emit(Instr{Op: OpSuspend})
	return nil
}

func (c *Compiler) compileBody(ctx *clauseCtx, body []term.Term) error {
	for i, g := range body {
		last := i == len(body)-1
		if i == 0 && isCutAtom(g) {
			c.mod.Emit(Instr{Op: OpNeckCut})
			if last {
				return c.finishDeterministic(ctx)
			}
			continue
		}
		if err := c.compileGoal(ctx, g, last); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) finishDeterministic(ctx *clauseCtx) error {
	if ctx.hasEnv {
		c.mod.Emit(Instr{Op: OpDeallocate})
	}
	c.mod.Emit(Instr{Op: OpProceed})
	return nil
}

// compileGoal compiles one body goal. last is true only for a non-query
// clause's final goal, which enables last-call optimization (execute
// instead of call+proceed) — but only for a plain predicate call; control
// constructs (;, ->, call/1) and built-ins always finish via deallocate;
// proceed, a simplification that keeps cut/disjunction
// compilation from having to thread "am I in tail position" through every
// branch.
func (c *Compiler) compileGoal(ctx *clauseCtx, g term.Term, last bool) error {
	switch v := g.(type) {
	case term.Atom:
		switch v.Name {
		case "true":
			if last {
				return c.finishDeterministic(ctx)
			}
			return nil
		case "fail", "false":
			c.mod.Emit(Instr{Op: OpFail})
			return nil
		case "!":
			c.mod.Emit(Instr{Op: OpCut, Reg: ctx.cutSlot, Perm: true})
			if last {
				return c.finishDeterministic(ctx)
			}
			return nil
		}
		return c.compileCall(ctx, term.Indicator{Name: v.Name, Arity: 0}, nil, last)
	case term.Compound:
		switch {
		case v.Functor == "," && len(v.Args) == 2:
			if err := c.compileGoal(ctx, v.Args[0], false); err != nil {
				return err
			}
			return c.compileGoal(ctx, v.Args[1], last)
		case v.Functor == ";" && len(v.Args) == 2:
			return c.compileDisjunction(ctx, v.Args[0], v.Args[1], last)
		case v.Functor == "->" && len(v.Args) == 2:
			// A bare if-then with no else is compiled as the conjunction
			// (Cond, Then), as DESIGN.md records, since without an
			// enclosing ";" there is no alternative to commit away from.
			if err := c.compileGoal(ctx, v.Args[0], false); err != nil {
				return err
			}
			return c.compileGoal(ctx, v.Args[1], last)
		case v.Functor == "call" && len(v.Args) == 1:
			return c.compileCallN(ctx, v.Args[0], last)
		}
		if bi, ok := builtinTable[term.Indicator{Name: v.Functor, Arity: len(v.Args)}]; ok {
			return c.compileBuiltinGoal(ctx, bi, v.Args, last)
		}
		return c.compileCall(ctx, term.Indicator{Name: v.Functor, Arity: len(v.Args)}, v.Args, last)
	default:
		return fmt.Errorf("wam: invalid goal %T", g)
	}
}

func (c *Compiler) compileCall(ctx *clauseCtx, ind term.Indicator, args []term.Term, last bool) error {
	for i, a := range args {
		c.compilePutArg(ctx, a, uint16(i+1))
	}
	fid := c.mod.Interner.InternFunctor(ind.Name, ind.Arity)
	key := PredKey{Functor: fid, Arity: ind.Arity}
	if last {
		if ctx.hasEnv {
			c.mod.Emit(Instr{Op: OpDeallocate})
		}
		addr := c.mod.Emit(Instr{Op: OpExecute, N: uint32(ind.Arity), Pred: uint32(fid)})
		c.recordCallSite(addr, key)
		return nil
	}
	addr := c.mod.Emit(Instr{Op: OpCall, N: uint32(ind.Arity), Pred: uint32(fid)})
	c.recordCallSite(addr, key)
	return nil
}

func (c *Compiler) compileCallN(ctx *clauseCtx, arg term.Term, last bool) error {
	c.compilePutArg(ctx, arg, 1)
	c.mod.Emit(Instr{Op: OpBuiltin, Bltn: BICallN})
	if last {
		return c.finishDeterministic(ctx)
	}
	return nil
}

func (c *Compiler) compileBuiltinGoal(ctx *clauseCtx, bi Builtin, args []term.Term, last bool) error {
	for i, a := range args {
		c.compilePutArg(ctx, a, uint16(i+1))
	}
	c.mod.Emit(Instr{Op: OpBuiltin, Bltn: bi})
	if last {
		return c.finishDeterministic(ctx)
	}
	return nil
}

// compileDisjunction compiles "Left ; Right" as an inline local choice
// point: try_me_else over to Right, Left falls through to an unconditional
// jump past it. "(Cond -> Then ; Else)" is recognized as if-then-else and
// given proper commit semantics instead (compileIfThenElse); plain
// disjunction has no commit, so either branch can still be retried.
func (c *Compiler) compileDisjunction(ctx *clauseCtx, left, right term.Term, last bool) error {
	if ite, ok := left.(term.Compound); ok && ite.Functor == "->" && len(ite.Args) == 2 {
		return c.compileIfThenElse(ctx, ite.Args[0], ite.Args[1], right, last)
	}
	tryAddr := c.mod.Emit(Instr{Op: OpTryMeElse})
	entrySeen := copySeen(ctx.seen)
	if err := c.compileGoal(ctx, left, false); err != nil {
		return err
	}
	jumpAddr := c.mod.Emit(Instr{Op: OpJump})
	elseAddr := uint32(len(c.mod.Code))
	c.mod.Emit(Instr{Op: OpTrustMe})
	// The right branch runs after every left-branch binding has been undone,
	// so a variable first materialised inside the left branch must be created
	// afresh here rather than read back from a register holding a reference
	// into the truncated heap.
	leftSeen := ctx.seen
	ctx.seen = copySeen(entrySeen)
	if err := c.compileGoal(ctx, right, false); err != nil {
		return err
	}
	mergeSeen(ctx.seen, leftSeen)
	endAddr := uint32(len(c.mod.Code))
	c.mod.Code[tryAddr].Target = elseAddr
	c.mod.Code[jumpAddr].Target = endAddr
	if last {
		return c.finishDeterministic(ctx)
	}
	return nil
}

func copySeen(seen map[string]bool) map[string]bool {
	out := make(map[string]bool, len(seen))
	for name := range seen {
		out[name] = true
	}
	return out
}

func mergeSeen(dst, src map[string]bool) {
	for name := range src {
		dst[name] = true
	}
}

// compileIfThenElse needs a permanent slot to save B before Cond runs, so
// that committing to Then can discard any choice points Cond left behind
// without discarding ones from before the whole construct (spec.md §4.4.6's
// get_level/cut pattern, used here instead of neck_cut since this commit
// point is mid-clause, not at the clause's head).
func (c *Compiler) compileIfThenElse(ctx *clauseCtx, cond, then, els term.Term, last bool) error {
	slot := ctx.iteSlotBase + ctx.iteUsed
	ctx.iteUsed++
	c.mod.Emit(Instr{Op: OpGetLevel, Reg: slot, Perm: true, N: 1})
	tryAddr := c.mod.Emit(Instr{Op: OpTryMeElse})
	entrySeen := copySeen(ctx.seen)
	if err := c.compileGoal(ctx, cond, false); err != nil {
		return err
	}
	c.mod.Emit(Instr{Op: OpCut, Reg: slot, Perm: true})
	if err := c.compileGoal(ctx, then, false); err != nil {
		return err
	}
	jumpAddr := c.mod.Emit(Instr{Op: OpJump})
	elseAddr := uint32(len(c.mod.Code))
	c.mod.Emit(Instr{Op: OpTrustMe})
	thenSeen := ctx.seen
	ctx.seen = copySeen(entrySeen)
	if err := c.compileGoal(ctx, els, false); err != nil {
		return err
	}
	mergeSeen(ctx.seen, thenSeen)
	endAddr := uint32(len(c.mod.Code))
	c.mod.Code[tryAddr].Target = elseAddr
	c.mod.Code[jumpAddr].Target = endAddr
	if last {
		return c.finishDeterministic(ctx)
	}
	return nil
}

// builtinTable maps the predicates the machine evaluates natively
// (wam/builtin.go, wam/arith.go) to their Builtin code, per SPEC_FULL.md
// §4.5.
var builtinTable = map[term.Indicator]Builtin{
	{Name: "is", Arity: 2}:    BIIs,
	{Name: "<", Arity: 2}:     BILt,
	{Name: ">", Arity: 2}:     BIGt,
	{Name: "=<", Arity: 2}:    BILe,
	{Name: ">=", Arity: 2}:    BIGe,
	{Name: "=:=", Arity: 2}:   BIArithEq,
	{Name: "=\\=", Arity: 2}:  BIArithNeq,
	{Name: "=", Arity: 2}:     BIUnify,
	{Name: "\\=", Arity: 2}:   BINotUnifiable,
	{Name: "==", Arity: 2}:    BITermEq,
	{Name: "\\==", Arity: 2}:  BITermNeq,
	{Name: "@<", Arity: 2}:    BITermLt,
	{Name: "@>", Arity: 2}:    BITermGt,
	{Name: "@=<", Arity: 2}:   BITermLe,
	{Name: "@>=", Arity: 2}:   BITermGe,
	{Name: "var", Arity: 1}:   BIVar,
	{Name: "nonvar", Arity: 1}: BINonvar,
	{Name: "atom", Arity: 1}:  BIAtom,
	{Name: "number", Arity: 1}: BINumber,
	{Name: "compound", Arity: 1}: BICompoundCheck,
	{Name: "=..", Arity: 2}:   BIUniv,
}

// --- first-argument indexing (switch_on_term/_const/_struct) ---

type argKind uint8

const (
	argVar argKind = iota
	argConst
	argList
	argStruct
)

func firstArg(cl term.Clause) term.Term {
	c, ok := cl.Head.(term.Compound)
	if !ok || len(c.Args) == 0 {
		return nil
	}
	return c.Args[0]
}

func (c *Compiler) classifyFirstArg(t term.Term) (argKind, uint32) {
	switch v := t.(type) {
	case term.Var:
		return argVar, 0
	case term.Int:
		return argConst, c.mod.IntConst(v.Val)
	case term.Real:
		return argConst, c.mod.RealConst(v.Val)
	case term.Atom:
		fid := c.mod.Interner.InternFunctor(v.Name, 0)
		return argConst, c.mod.FunctorConst(fid)
	case term.Compound:
		if isListCons(v) {
			return argList, 0
		}
		fid := c.mod.Interner.InternFunctor(v.Functor, len(v.Args))
		return argStruct, c.mod.FunctorConst(fid)
	}
	return argVar, 0
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func mergeSorted(a, b []int) []int {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// compileChain lays out the try_me_else/retry_me_else/trust_me sequence for
// indices, in source order, each immediately followed by that clause's own
// compiled code. A single index needs no choice point at all.
func (c *Compiler) compileChain(indices []int, clauses []term.Clause) error {
	if len(indices) == 0 {
		c.mod.Emit(Instr{Op: OpFail})
		return nil
	}
	if len(indices) == 1 {
		return c.compileOneClause(clauses[indices[0]])
	}
	addrs := make([]uint32, len(indices))
	for i, idx := range indices {
		var op Opcode
		switch {
		case i == 0:
			op = OpTryMeElse
		case i == len(indices)-1:
			op = OpTrustMe
		default:
			op = OpRetryMeElse
		}
		addrs[i] = c.mod.Emit(Instr{Op: op})
		if err := c.compileOneClause(clauses[idx]); err != nil {
			return err
		}
	}
	for i := 0; i < len(indices)-1; i++ {
		c.mod.Code[addrs[i]].Target = addrs[i+1]
	}
	return nil
}

// compileIndexedClauses builds first-argument indexing over a multi-clause
// predicate, per spec.md §4.4.5: a switch_on_term dispatches on A1's tag,
// with switch_on_const/switch_on_struct sub-dispatching within the CON and
// STR branches. Every per-key chain is the union of that key's own clauses
// with every variable-headed clause, in source order, so a caller whose
// first argument happens to be unbound still tries every clause — the
// "indexing transparency" spec.md's Testable Property 4 requires.
func (c *Compiler) compileIndexedClauses(clauses []term.Clause) error {
	n := len(clauses)
	arity := clauses[0].Indicator().Arity
	if arity == 0 {
		return c.compileChain(allIndices(n), clauses)
	}

	var varIdx, listIdx []int
	constGroups := map[uint32][]int{}
	var constOrder []uint32
	structGroups := map[uint32][]int{}
	var structOrder []uint32

	for i, cl := range clauses {
		fa := firstArg(cl)
		if fa == nil {
			varIdx = append(varIdx, i)
			continue
		}
		kind, key := c.classifyFirstArg(fa)
		switch kind {
		case argVar:
			varIdx = append(varIdx, i)
		case argConst:
			if _, ok := constGroups[key]; !ok {
				constOrder = append(constOrder, key)
			}
			constGroups[key] = append(constGroups[key], i)
		case argList:
			listIdx = append(listIdx, i)
		case argStruct:
			if _, ok := structGroups[key]; !ok {
				structOrder = append(structOrder, key)
			}
			structGroups[key] = append(structGroups[key], i)
		}
	}

	if len(varIdx) == n {
		return c.compileChain(allIndices(n), clauses)
	}

	switchAddr := c.mod.Emit(Instr{Op: OpSwitchOnTerm})

	varTarget := uint32(len(c.mod.Code))
	if err := c.compileChain(allIndices(n), clauses); err != nil {
		return err
	}

	varOnlyTarget := uint32(NoTarget)
	if len(varIdx) > 0 {
		varOnlyTarget = uint32(len(c.mod.Code))
		if err := c.compileChain(varIdx, clauses); err != nil {
			return err
		}
	}

	conTarget := uint32(NoTarget)
	if len(constGroups) > 0 {
		var table []SwitchCase
		for _, key := range constOrder {
			group := mergeSorted(varIdx, constGroups[key])
			entry := uint32(len(c.mod.Code))
			if err := c.compileChain(group, clauses); err != nil {
				return err
			}
			table = append(table, SwitchCase{Key: key, Target: entry})
		}
		conTarget = c.mod.Emit(Instr{Op: OpSwitchOnConst, Table: table, Target: varOnlyTarget})
	} else if len(varIdx) > 0 {
		conTarget = varOnlyTarget
	}

	listTarget := uint32(NoTarget)
	if len(listIdx) > 0 {
		group := mergeSorted(varIdx, listIdx)
		listTarget = uint32(len(c.mod.Code))
		if err := c.compileChain(group, clauses); err != nil {
			return err
		}
	} else if len(varIdx) > 0 {
		listTarget = varOnlyTarget
	}

	structTarget := uint32(NoTarget)
	if len(structGroups) > 0 {
		var table []SwitchCase
		for _, key := range structOrder {
			group := mergeSorted(varIdx, structGroups[key])
			entry := uint32(len(c.mod.Code))
			if err := c.compileChain(group, clauses); err != nil {
				return err
			}
			table = append(table, SwitchCase{Key: key, Target: entry})
		}
		structTarget = c.mod.Emit(Instr{Op: OpSwitchOnStruct, Table: table, Target: varOnlyTarget})
	} else if len(varIdx) > 0 {
		structTarget = varOnlyTarget
	}

	c.mod.Code[switchAddr].Target = varTarget
	c.mod.Code[switchAddr].Target2 = conTarget
	c.mod.Code[switchAddr].Target3 = listTarget
	c.mod.Code[switchAddr].Target4 = structTarget
	return nil
}
