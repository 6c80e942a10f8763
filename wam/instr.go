package wam

// Opcode names a WAM instruction, per spec.md §4.4/§4.5. The set mirrors
// Warren's original report, generalized to n-ary structures rather than the
// report's fixed arities, the same generalization spec.md asks for.
type Opcode uint8

const (
	OpNoop Opcode = iota

	// Argument construction (body goals, write mode).
	OpPutVar        // put_var Yn|Xn, Ai: fresh variable into Ai, also keep local copy
	OpPutVal        // put_value Xn, Ai: copy a register into an argument register
	OpPutUnsafeVal  // put_unsafe_value Yn, Ai: copy a permanent var (variables are heap-resident, so a plain copy)
	OpPutStruct     // put_structure f/n, Ai: build a fresh structure, leave heap in write mode
	OpPutList       // put_list Ai: build a fresh list cell, leave heap in write mode
	OpPutConst      // put_const id, Ai: load a constant into Ai

	// Structure/list argument writers (used after put_struct/put_list or
	// get_struct/get_list switches the machine into write mode).
	OpSetVar      // set_variable Xn|Yn: write a fresh unbound cell
	OpSetVal      // set_value Xn|Yn: write a copy of a register
	OpSetLocalVal // set_local_value Yn: write a copy (variables are heap-resident, so a plain copy)
	OpSetConst    // set_constant id
	OpSetVoid     // set_void n: skip n fresh unbound cells

	// Clause head matching (read mode when the top-level cell is already
	// bound, write mode when the machine must flesh out an unbound one).
	OpGetVar    // get_variable Xn|Yn, Ai: first occurrence, just copy
	OpGetVal    // get_value Xn|Yn, Ai: later occurrence, unify
	OpGetConst  // get_const id, Ai
	OpGetStruct // get_structure f/n, Ai
	OpGetList   // get_list Ai

	OpUnifyVar      // unify_variable Xn|Yn
	OpUnifyVal      // unify_value Xn|Yn
	OpUnifyLocalVal // unify_local_value Yn
	OpUnifyConst    // unify_constant id
	OpUnifyVoid     // unify_void n

	// Control.
	OpAllocate   // allocate n: push an n-slot environment
	OpDeallocate // deallocate: pop the environment (trim before last call, LCO)
	OpCall       // call p/n: call predicate, keeping an environment; N holds the arity and the environment is not trimmed
	OpExecute    // execute p/n: tail call, no environment kept
	OpProceed    // proceed: return from the current clause

	// Choice points and clause indexing.
	OpTryMeElse   // try_me_else L: push a CP, alternative at L
	OpRetryMeElse // retry_me_else L: reset from CP, alternative at L
	OpTrustMe     // trust_me: reset from CP, pop it
	OpTry         // try L: like try_me_else but L is an absolute jump target
	OpRetry       // retry L
	OpTrust       // trust L
	OpSwitchOnTerm  // switch_on_term Lvar,Lcon,Llist,Lstruct: dispatch on A1's tag
	OpSwitchOnConst // switch_on_const table: table dispatch on a CON A1
	OpSwitchOnStruct // switch_on_struct table: table dispatch on a STR A1's functor

	// Cut.
	OpNeckCut  // neck_cut: commit to this clause, discarding CPs back to call time
	OpGetLevel // get_level Yn: save B into a permanent variable (for a later cut)
	OpCut      // cut Yn: discard CPs back to the saved B

	// Jump, added beyond spec.md's named instruction set: disjunction and
	// if-then-else are compiled as an inline local choice point (see
	// compile.go), and the first branch needs some way to skip over the
	// second once it commits. A plain unconditional jump is the smallest
	// instruction that does that.
	OpJump

	// Arithmetic and term-comparison built-ins, resolving spec.md's Open
	// Question 3 in favor of a small built-in table rather than a foreign
	// predicate mechanism: see SPEC_FULL.md §4.5.
	OpBuiltin

	OpFail    // fail: unconditional backtrack
	OpHalt    // halt: stop the machine, no further resolve() calls are possible
	OpSuspend // suspend: a query succeeded; return bindings to the caller (spec.md §4.5.5)
)

// NoTarget marks a switch_on_term/_const/_struct branch, or a try/retry/
// trust chain, that has no destination: reaching it is an immediate
// backtrack rather than a jump.
const NoTarget = ^uint32(0)

// Builtin names a predicate the machine evaluates natively rather than by
// calling into compiled clauses.
type Builtin uint8

const (
	BIIs Builtin = iota // is/2
	BILt
	BIGt
	BILe
	BIGe
	BIArithEq // =:=/2
	BIArithNeq
	BIUnify        // =/2
	BINotUnifiable // \=/2
	BITermEq       // ==/2
	BITermNeq      // \==/2
	BITermLt       // @</2
	BITermGt       // @>/2
	BITermLe       // @=</2
	BITermGe       // @>=/2
	BICallN        // call/1: resolve and invoke a runtime callable
	BIUniv         // =../2
	BIVar
	BINonvar
	BIAtom
	BINumber
	BICompoundCheck
)

// Instr is one bytecode instruction. Not every field is meaningful for
// every opcode; Disassemble (disasm.go) knows which.
type Instr struct {
	Op      Opcode
	Reg     uint16 // Xn or Yn register number
	Perm    bool   // Reg addresses a permanent (Yn) rather than temporary (Xn) slot
	Arg     uint16 // argument register index (Ai) for put_*/get_*
	Functor uint32 // Module.Consts index naming a functor, for put_struct/get_struct/switch_on_struct
	Const   uint32 // Module.Consts index, for put_const/get_const/unify_const/set_const
	N       uint32 // count: set_void/unify_void width, allocate's slot count, call/execute arity
	Target  uint32 // code address: try/retry/trust/jump/call targets; also the
	// no-exact-key fallback for switch_on_const/switch_on_struct (a clause
	// with a variable first argument still has to be tried)
	Target2 uint32 // second jump target, for switch_on_term's four-way split
	Target3 uint32
	Target4 uint32
	Pred    uint32 // predicate id, for call/execute
	Table   []SwitchCase // switch_on_const/switch_on_struct dispatch table
	Bltn    Builtin
}

// SwitchCase is one entry of a switch_on_const/switch_on_struct table.
type SwitchCase struct {
	Key    uint32 // constant id, or functor id
	Target uint32
}
