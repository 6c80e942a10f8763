package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/posener/complete"

	"github.com/rupertlssmith/lojix-sub000"
)

// DisasmCommand compiles a program and prints its linked bytecode, per
// SPEC_FULL.md §6's "disasm" subcommand and §4.4's disassembly supplement.
type DisasmCommand struct {
	Meta
}

func (c *DisasmCommand) Help() string {
	return strings.TrimSpace(`
Usage: lojix disasm [options] <program-file>

  Compiles <program-file> (use "-" for stdin) and prints its linked
  bytecode: the predicate call table followed by the instruction listing.

Options:

  -lenient     Compile with lenient linkage.
`)
}

func (c *DisasmCommand) Synopsis() string { return "Disassemble a compiled program" }

func (c *DisasmCommand) AutocompleteArgs() complete.Predictor { return complete.PredictFiles("*.pl") }

func (c *DisasmCommand) AutocompleteFlags() complete.Flags {
	return complete.Flags{"-lenient": complete.PredictNothing}
}

func (c *DisasmCommand) Run(args []string) int {
	var lenient bool
	flags := flag.NewFlagSet("disasm", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.BoolVar(&lenient, "lenient", false, "compile with lenient linkage")
	if err := flags.Parse(args); err != nil {
		return ExitParseError
	}

	rest := flags.Args()
	if len(rest) != 1 {
		c.Ui.Error("disasm requires a program file")
		return ExitParseError
	}

	src, err := readSource(rest[0])
	if err != nil {
		c.Ui.Error(fmt.Sprintf("reading %s: %s", rest[0], err))
		return ExitRuntimeError
	}

	var opts []lojix.Option
	if lenient {
		opts = append(opts, lojix.WithLenientLinkage())
	}
	mod, err := lojix.Compile(src, opts...)
	if err != nil {
		c.Ui.Error(err.Error())
		return exitFor(err)
	}

	c.Ui.Output(mod.Disassemble())
	return ExitSuccess
}
