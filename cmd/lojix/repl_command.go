package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/posener/complete"

	"github.com/rupertlssmith/lojix-sub000"
)

// ReplCommand is an interactive toplevel: it optionally consults a program
// file, then reads one query per line, printing each solution and asking
// for ";" to backtrack into the next one, in the style of the classic
// Prolog toplevel. Grounded on the teacher's own test/parse.go, which drove
// its lexer/parser off os.Stdin one clause at a time; this generalizes that
// read loop into a query/redo loop over lojix.Resolver.
type ReplCommand struct {
	Meta
}

func (c *ReplCommand) Help() string {
	return strings.TrimSpace(`
Usage: lojix repl [options] [program-file]

  Starts an interactive toplevel. If program-file is given, it is consulted
  first. Each line is read as a query; after a solution is printed, enter
  ";" for the next solution or anything else to move on.

Options:

  -lenient     Compile with lenient linkage.
`)
}

func (c *ReplCommand) Synopsis() string { return "Start an interactive query toplevel" }

func (c *ReplCommand) AutocompleteArgs() complete.Predictor { return complete.PredictFiles("*.pl") }

func (c *ReplCommand) AutocompleteFlags() complete.Flags {
	return complete.Flags{"-lenient": complete.PredictNothing}
}

func (c *ReplCommand) Run(args []string) int {
	var lenient bool
	flags := flag.NewFlagSet("repl", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.BoolVar(&lenient, "lenient", false, "compile with lenient linkage")
	if err := flags.Parse(args); err != nil {
		return ExitParseError
	}

	var opts []lojix.Option
	if lenient {
		opts = append(opts, lojix.WithLenientLinkage())
	}

	src := ""
	if rest := flags.Args(); len(rest) == 1 {
		var err error
		src, err = readSource(rest[0])
		if err != nil {
			c.Ui.Error(fmt.Sprintf("reading %s: %s", rest[0], err))
			return ExitRuntimeError
		}
	}

	mod, err := lojix.Compile(src, opts...)
	if err != nil {
		c.Ui.Error(err.Error())
		return exitFor(err)
	}

	for {
		line, err := c.Ui.Ask("?-")
		if err != nil {
			if err == io.EOF {
				return ExitSuccess
			}
			c.Ui.Error(err.Error())
			return ExitRuntimeError
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "halt" || line == "halt." || line == "quit" || line == "quit." {
			return ExitSuccess
		}
		c.runQuery(mod, asQuery(line))
	}
}

// asQuery wraps a bare goal in "?- ... ." if the user didn't type the
// "?-" prefix or trailing terminator themselves.
func asQuery(line string) string {
	if !strings.HasPrefix(line, "?-") {
		line = "?- " + line
	}
	if !strings.HasSuffix(strings.TrimSpace(line), ".") {
		line = line + "."
	}
	return line
}

func (c *ReplCommand) runQuery(mod *lojix.Module, query string) {
	res, err := mod.Prepare(query)
	if err != nil {
		c.Ui.Error(err.Error())
		return
	}

	any := false
	for {
		b, ok, err := res.NextErr()
		if err != nil {
			c.Ui.Error(err.Error())
			return
		}
		if !ok {
			if !any {
				c.Ui.Output("false.")
			}
			return
		}
		any = true
		c.Ui.Output(formatBindings(b))

		more, err := c.Ui.Ask("more (;)?")
		if err != nil || strings.TrimSpace(more) != ";" {
			return
		}
	}
}
