// Package lojix is the embeddable entry point to the toolchain: the public
// binding spec.md §6 asks for on top of parse, sym, term, and wam. A caller
// never touches those packages directly; Compile/Prepare/Resolver/Bindings
// hide the interner, the compiler's link pass, and the machine's backtrack
// loop behind the four calls spec.md §6 names.
//
// Grounded on the teacher's cmd/ripl, which wires its own lang/parse and wam
// packages together behind a thin main(); this file generalizes that wiring
// into a reusable library entry point plus the field-based Options config
// SPEC_FULL.md §2 describes, in the style of nomad/client/config.
package lojix

import (
	"github.com/hashicorp/go-hclog"

	"github.com/rupertlssmith/lojix-sub000/parse"
	"github.com/rupertlssmith/lojix-sub000/sym"
	"github.com/rupertlssmith/lojix-sub000/term"
	"github.com/rupertlssmith/lojix-sub000/wam"
)

// Options configures Compile and the Module/Resolver it produces. It is a
// plain field struct, not a functional-options type (SPEC_FULL.md §2); the
// variadic Option funcs below are sugar for setting its fields, matching how
// callers in the pack (e.g. nomad/client/config) build up such a struct.
type Options struct {
	// Link selects strict (compile-time *wam.LinkError) or lenient
	// (runtime-failing stub) treatment of calls to undefined predicates,
	// per spec.md §4.5.6.
	Link wam.LinkMode

	// Machine bounds the heap/stack/trail/register file of every Resolver
	// prepared against the compiled Module.
	Machine wam.Config

	// Logger receives structured trace/debug output from the parser,
	// compiler, and machine. Defaults to a null logger.
	Logger hclog.Logger
}

// Option mutates an Options value; Compile applies each in order before
// compiling.
type Option func(*Options)

// WithStrictLinkage selects spec.md §4.5.6's strict linkage mode: an
// unresolved call is a compile-time *wam.LinkError. This is the default.
func WithStrictLinkage() Option { return func(o *Options) { o.Link = wam.LinkStrict } }

// WithLenientLinkage selects spec.md §4.5.6's lenient linkage mode: an
// unresolved call compiles to a runtime-failing stub instead of erroring.
func WithLenientLinkage() Option { return func(o *Options) { o.Link = wam.LinkLenient } }

// WithMachineConfig overrides the resource limits every Resolver prepared
// against the compiled Module will run under.
func WithMachineConfig(cfg wam.Config) Option { return func(o *Options) { o.Machine = cfg } }

// WithLogger wires a logger into the parser, compiler, and every machine
// this Module prepares.
func WithLogger(l hclog.Logger) Option { return func(o *Options) { o.Logger = l } }

func defaultOptions() Options {
	return Options{
		Link:    wam.LinkStrict,
		Machine: wam.DefaultConfig(),
		Logger:  hclog.NewNullLogger(),
	}
}

// Module is a compiled, linked program: spec.md §6's compile(program_text)
// result. It owns the interner, constant pool and bytecode shared by every
// Resolver prepared against it; Prepare appends query code to them and the
// machine adds constants at run time (is/2, =../2).
type Module struct {
	prog *wam.Module
	opts Options
}

// Compile parses and compiles every clause in src, per spec.md §6's
// compile(program_text) → module. Multiple syntax errors (parse.go) and
// multiple link errors (wam/compile.go, strict mode) are both aggregated via
// github.com/hashicorp/go-multierror and returned together.
func Compile(src string, opts ...Option) (*Module, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	ops := parse.DefaultOpTable()
	clauses, err := parse.ParseStringOps(src, ops)
	if err != nil {
		return nil, err
	}

	in := sym.New()
	compiler := wam.NewCompiler(in, wam.CompilerConfig{Link: o.Link, Logger: o.Logger})
	preds, err := wam.GroupClauses(clauses)
	if err != nil {
		return nil, err
	}
	if err := compiler.CompileProgram(preds); err != nil {
		return nil, err
	}

	return &Module{prog: compiler.Module(), opts: o}, nil
}

// Disassemble renders the module's linked bytecode as text, per
// SPEC_FULL.md §4.4's disassembly supplement and the `check`/`disasm` CLI
// subcommands.
func (m *Module) Disassemble() string { return wam.Disassemble(m.prog) }

// Prepare parses and compiles query_text as a standalone query linked
// against m, per spec.md §6's prepare(query_text) → resolver. Each call
// compiles the query into m's shared bytecode and creates an independent
// Machine with its own heap, stack, trail and registers. The bytecode,
// constant pool and interner are shared and grow, so Resolvers prepared
// from the same Module must not run concurrently.
func (m *Module) Prepare(query string) (*Resolver, error) {
	ops := parse.DefaultOpTable()
	clauses, err := parse.ParseStringOps(query, ops)
	if err != nil {
		return nil, err
	}
	if len(clauses) != 1 || !clauses[0].IsQuery() {
		return nil, &QueryError{Text: query}
	}

	// A query is compiled into a Compiler sharing m's Module, so it can call
	// predicates already compiled into m and so its own call sites link
	// against the same predicate table.
	compiler := wam.NewCompilerForModule(m.prog, wam.CompilerConfig{Link: m.opts.Link, Logger: m.opts.Logger})
	entry, vars, err := compiler.CompileQuery(clauses[0])
	if err != nil {
		return nil, err
	}

	mach := wam.New(m.prog, m.opts.Machine)
	return &Resolver{mach: mach, entry: entry, vars: vars, mod: m.prog}, nil
}

// QueryError reports that prepared text was not a single query sentence
// ("?- ...."), per spec.md §6.
type QueryError struct{ Text string }

func (e *QueryError) Error() string { return "lojix: not a single query: " + e.Text }

// Resolver drives resolution of one prepared query, per spec.md §6's
// resolver.next() → bindings | null and §4.5.5's suspend/backtrack
// re-entry. A Resolver owns one Machine; dropping it releases the
// machine's heap, stack, trail, and register file (spec.md §5).
type Resolver struct {
	mach    *wam.Machine
	entry   uint32
	vars    []wam.QueryVar
	mod     *wam.Module
	started bool
	done    bool
}

// Next obtains the next solution, per spec.md §6's resolver.next(). It
// returns (bindings, true) on success, (nil, false) once the query is
// exhausted. A runtime error (instantiation, type, or resource) is not
// representable in this two-value form; use NextErr to observe it.
func (r *Resolver) Next() (*Bindings, bool) {
	b, ok, _ := r.NextErr()
	return b, ok
}

// NextErr is Next with the error spec.md §7 says a runtime exception must
// surface as, for callers that need to distinguish "no more solutions" from
// "the machine raised an instantiation/type/resource error."
func (r *Resolver) NextErr() (*Bindings, bool, error) {
	if r.done {
		return nil, false, nil
	}

	var ok bool
	var err error
	if !r.started {
		r.started = true
		ok, err = r.mach.Solve(r.entry)
	} else {
		ok, err = r.mach.Redo()
	}
	if err != nil {
		r.done = true
		return nil, false, err
	}
	if !ok {
		r.done = true
		return nil, false, nil
	}
	return &Bindings{mach: r.mach, vars: r.vars, mod: r.mod}, true, nil
}

// Bindings is a snapshot of one solution's variable bindings, per spec.md
// §6's bindings.get(var_name) → term. The snapshot is structure-shared with
// the machine's heap until the next call to Resolver.Next/NextErr, matching
// spec.md §6's "structure-shared... permitted only until the next next()".
type Bindings struct {
	mach *wam.Machine
	vars []wam.QueryVar
	mod  *wam.Module
}

// Get returns the term bound to the query variable named name in this
// solution, reading it back from the machine's heap/stack (spec.md §4.5.5).
func (b *Bindings) Get(name string) (term.Term, bool) {
	for _, v := range b.vars {
		if v.Name != name {
			continue
		}
		cell := b.machRegister(v)
		return b.mach.Readback(cell), true
	}
	return nil, false
}

// Names returns every top-level query variable with a binding in this
// solution, in first-occurrence order.
func (b *Bindings) Names() []string {
	names := make([]string, len(b.vars))
	for i, v := range b.vars {
		names[i] = v.Name
	}
	return names
}

func (b *Bindings) machRegister(v wam.QueryVar) wam.Cell {
	if v.Perm {
		return b.mach.Y(b.mach.CurrentEnv(), v.Reg)
	}
	return b.mach.X(int(v.Reg))
}
