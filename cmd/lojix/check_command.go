package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/posener/complete"

	"github.com/rupertlssmith/lojix-sub000"
)

// CheckCommand compiles a program and reports success or failure without
// resolving any query, per SPEC_FULL.md §6's "check" subcommand: a
// parse-and-link dry run suitable for CI.
type CheckCommand struct {
	Meta
}

func (c *CheckCommand) Help() string {
	return strings.TrimSpace(`
Usage: lojix check [options] <program-file>

  Parses and compiles <program-file> (use "-" for stdin), reporting any
  syntax or link error. Prints nothing on success.
`)
}

func (c *CheckCommand) Synopsis() string { return "Parse and link a program without running it" }

func (c *CheckCommand) AutocompleteArgs() complete.Predictor { return complete.PredictFiles("*.pl") }

func (c *CheckCommand) AutocompleteFlags() complete.Flags {
	return complete.Flags{"-lenient": complete.PredictNothing}
}

func (c *CheckCommand) Run(args []string) int {
	var lenient bool
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.BoolVar(&lenient, "lenient", false, "compile with lenient linkage")
	if err := flags.Parse(args); err != nil {
		return ExitParseError
	}

	rest := flags.Args()
	if len(rest) != 1 {
		c.Ui.Error("check requires a program file")
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
	if _, err := lojix.Compile(src, opts...); err != nil {
		c.Ui.Error(err.Error())
		return exitFor(err)
	}
	return ExitSuccess
}
