package wam

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rupertlssmith/lojix-sub000/sym"
)

var opcodeNames = map[Opcode]string{
	OpNoop:           "noop",
	OpPutVar:         "put_var",
	OpPutVal:         "put_value",
	OpPutUnsafeVal:   "put_unsafe_value",
	OpPutStruct:      "put_structure",
	OpPutList:        "put_list",
	OpPutConst:       "put_const",
	OpSetVar:         "set_variable",
	OpSetVal:         "set_value",
	OpSetLocalVal:    "set_local_value",
	OpSetConst:       "set_constant",
	OpSetVoid:        "set_void",
	OpGetVar:         "get_variable",
	OpGetVal:         "get_value",
	OpGetConst:       "get_const",
	OpGetStruct:      "get_structure",
	OpGetList:        "get_list",
	OpUnifyVar:       "unify_variable",
	OpUnifyVal:       "unify_value",
	OpUnifyLocalVal:  "unify_local_value",
	OpUnifyConst:     "unify_constant",
	OpUnifyVoid:      "unify_void",
	OpAllocate:       "allocate",
	OpDeallocate:     "deallocate",
	OpCall:           "call",
	OpExecute:        "execute",
	OpProceed:        "proceed",
	OpTryMeElse:      "try_me_else",
	OpRetryMeElse:    "retry_me_else",
	OpTrustMe:        "trust_me",
	OpTry:            "try",
	OpRetry:          "retry",
	OpTrust:          "trust",
	OpSwitchOnTerm:   "switch_on_term",
	OpSwitchOnConst:  "switch_on_const",
	OpSwitchOnStruct: "switch_on_struct",
	OpNeckCut:        "neck_cut",
	OpGetLevel:       "get_level",
	OpCut:            "cut",
	OpJump:           "jump",
	OpBuiltin:        "builtin",
	OpFail:           "fail",
	OpHalt:           "halt",
	OpSuspend:        "suspend",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

var builtinNames = map[Builtin]string{
	BIIs:            "is/2",
	BILt:            "</2",
	BIGt:            ">/2",
	BILe:            "=</2",
	BIGe:            ">=/2",
	BIArithEq:       "=:=/2",
	BIArithNeq:      "=\\=/2",
	BIUnify:         "=/2",
	BINotUnifiable:  "\\=/2",
	BITermEq:        "==/2",
	BITermNeq:       "\\==/2",
	BITermLt:        "@</2",
	BITermGt:        "@>/2",
	BITermLe:        "@=</2",
	BITermGe:        "@>=/2",
	BICallN:         "call/1",
	BIUniv:          "=../2",
	BIVar:           "var/1",
	BINonvar:        "nonvar/1",
	BIAtom:          "atom/1",
	BINumber:        "number/1",
	BICompoundCheck: "compound/1",
}

// regName renders an Instr's Reg operand as "Xn" or "Yn".
func regName(n uint16, perm bool) string {
	if perm {
		return fmt.Sprintf("Y%d", n)
	}
	return fmt.Sprintf("X%d", n)
}

func target(addr uint32) string {
	if addr == NoTarget {
		return "-"
	}
	return fmt.Sprintf("%d", addr)
}

// Disassemble renders mod's bytecode as human-readable text: one predicate
// call table in functor/arity order, then the instruction listing with
// every address labelled, constants and functors rendered by name instead
// of pool index. Grounded on the teacher's own trace-style instruction
// logging (wam/machine.go's hclog.Trace calls), generalized into a batch
// report for the "check"/"disasm" CLI commands (SPEC_FULL.md §6). The
// package has no assembler, so this text is not read back into bytecode.
func Disassemble(mod *Module) string {
	var b strings.Builder
	writePredTable(&b, mod)
	b.WriteString("\ncode:\n")
	for addr, ins := range mod.Code {
		b.WriteString(fmt.Sprintf("%4d: %s\n", addr, formatInstr(mod, ins)))
	}
	return b.String()
}

func writePredTable(b *strings.Builder, mod *Module) {
	type row struct {
		name  string
		entry uint32
		dyn   bool
	}
	rows := make([]row, 0, len(mod.Preds))
	for key, e := range mod.Preds {
		rows = append(rows, row{
			name:  fmt.Sprintf("%s/%d", mod.Interner.FunctorName(key.Functor), key.Arity),
			entry: e.EntryPC,
			dyn:   e.Dynamic,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	b.WriteString("predicates:\n")
	for _, r := range rows {
		tag := ""
		if r.dyn {
			tag = " (dynamic)"
		}
		b.WriteString(fmt.Sprintf("  %s -> %d%s\n", r.name, r.entry, tag))
	}
}

func constString(mod *Module, id uint32) string {
	if id >= uint32(len(mod.Consts)) {
		return fmt.Sprintf("const(%d)", id)
	}
	ce := mod.Consts[id]
	switch ce.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", ce.Int)
	case ConstReal:
		return fmt.Sprintf("%g", ce.Real)
	default:
		name := mod.Interner.FunctorName(ce.Atom)
		if ce.Atom.Arity() == 0 {
			return name
		}
		return fmt.Sprintf("%s/%d", name, ce.Atom.Arity())
	}
}

func formatInstr(mod *Module, ins Instr) string {
	name := ins.Op.String()
	switch ins.Op {
	case OpPutVar, OpGetVar:
		return fmt.Sprintf("%s %s, A%d", name, regName(ins.Reg, ins.Perm), ins.Arg)
	case OpPutVal, OpPutUnsafeVal, OpGetVal:
		return fmt.Sprintf("%s %s, A%d", name, regName(ins.Reg, ins.Perm), ins.Arg)
	case OpPutConst, OpGetConst:
		return fmt.Sprintf("%s %s, A%d", name, constString(mod, ins.Const), ins.Arg)
	case OpPutStruct, OpGetStruct:
		return fmt.Sprintf("%s %s, A%d", name, constString(mod, ins.Functor), ins.Arg)
	case OpPutList, OpGetList:
		return fmt.Sprintf("%s A%d", name, ins.Arg)
	case OpSetVar, OpUnifyVar:
		return fmt.Sprintf("%s %s", name, regName(ins.Reg, ins.Perm))
	case OpSetVal, OpSetLocalVal, OpUnifyVal, OpUnifyLocalVal:
		return fmt.Sprintf("%s %s", name, regName(ins.Reg, ins.Perm))
	case OpSetConst, OpUnifyConst:
		return fmt.Sprintf("%s %s", name, constString(mod, ins.Const))
	case OpSetVoid, OpUnifyVoid:
		return fmt.Sprintf("%s %d", name, ins.N)
	case OpAllocate:
		return fmt.Sprintf("%s %d", name, ins.N)
	case OpDeallocate, OpProceed, OpNeckCut, OpFail, OpHalt, OpSuspend:
		return name
	case OpCall, OpExecute:
		return fmt.Sprintf("%s %s/%d -> %s", name, mod.Interner.FunctorName(sym.FunctorID(ins.Pred)), ins.N, target(ins.Target))
	case OpTryMeElse, OpRetryMeElse, OpTry, OpRetry, OpTrust:
		return fmt.Sprintf("%s %s", name, target(ins.Target))
	case OpTrustMe:
		return name
	case OpSwitchOnTerm:
		return fmt.Sprintf("%s var:%s, con:%s, list:%s, struct:%s",
			name, target(ins.Target), target(ins.Target2), target(ins.Target3), target(ins.Target4))
	case OpSwitchOnConst, OpSwitchOnStruct:
		parts := make([]string, len(ins.Table))
		for i, sc := range ins.Table {
			parts[i] = fmt.Sprintf("%s:%s", constString(mod, sc.Key), target(sc.Target))
		}
		return fmt.Sprintf("%s {%s} else %s", name, strings.Join(parts, ", "), target(ins.Target))
	case OpGetLevel, OpCut:
		return fmt.Sprintf("%s %s", name, regName(ins.Reg, ins.Perm))
	case OpJump:
		return fmt.Sprintf("%s %s", name, target(ins.Target))
	case OpBuiltin:
		if bn, ok := builtinNames[ins.Bltn]; ok {
			return fmt.Sprintf("%s %s", name, bn)
		}
		return fmt.Sprintf("%s builtin(%d)", name, uint8(ins.Bltn))
	default:
		return name
	}
}

