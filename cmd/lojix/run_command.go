package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/posener/complete"

	"github.com/rupertlssmith/lojix-sub000"
)

// RunCommand loads a program, prepares a single query against it, and
// prints every solution's bindings until the query is exhausted or -one is
// given, per SPEC_FULL.md §6's "run" subcommand.
type RunCommand struct {
	Meta
}

func (c *RunCommand) Help() string {
	return strings.TrimSpace(`
Usage: lojix run [options] <program-file> <query>

  Compiles <program-file> (use "-" for stdin) and resolves <query> against
  it, printing each solution's bindings. Without -one, every solution is
  printed; with -one, only the first.

Options:

  -one         Stop after the first solution.
  -lenient     Compile with lenient linkage: calls to undefined predicates
               fail at runtime instead of being a compile-time error.
`)
}

func (c *RunCommand) Synopsis() string { return "Run a query against a program" }

func (c *RunCommand) AutocompleteArgs() complete.Predictor { return complete.PredictFiles("*.pl") }

func (c *RunCommand) AutocompleteFlags() complete.Flags {
	return complete.Flags{
		"-one":     complete.PredictNothing,
		"-lenient": complete.PredictNothing,
	}
}

func (c *RunCommand) Run(args []string) int {
	var one, lenient bool
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.BoolVar(&one, "one", false, "stop after the first solution")
	flags.BoolVar(&lenient, "lenient", false, "compile with lenient linkage")
	if err := flags.Parse(args); err != nil {
		return ExitParseError
	}

	rest := flags.Args()
	if len(rest) != 2 {
		c.Ui.Error("run requires a program file and a query")
		c.Ui.Error(c.Help())
		return ExitParseError
	}
	programPath, query := rest[0], rest[1]

	src, err := readSource(programPath)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("reading %s: %s", programPath, err))
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

	res, err := mod.Prepare(query)
	if err != nil {
		c.Ui.Error(err.Error())
		return exitFor(err)
	}

	found := 0
	for {
		b, ok, err := res.NextErr()
		if err != nil {
			c.Ui.Error(err.Error())
			return exitFor(err)
		}
		if !ok {
			break
		}
		found++
		c.Ui.Output(formatBindings(b))
		if one {
			break
		}
	}
	if found == 0 {
		c.Ui.Output("false.")
	}
	return ExitSuccess
}

func formatBindings(b *lojix.Bindings) string {
	names := b.Names()
	if len(names) == 0 {
		return "true."
	}
	parts := make([]string, len(names))
	for i, name := range names {
		v, _ := b.Get(name)
		parts[i] = fmt.Sprintf("%s = %s", name, v)
	}
	return strings.Join(parts, ", ")
}
