// Command lojix is the CLI collaborator SPEC_FULL.md §6 names: a thin
// mitchellh/cli shell around the lojix package's Compile/Prepare surface,
// with posener/complete wired in for shell completion, the same way
// nomad/command assembles its Meta-rooted subcommands behind cli.NewCLI.
package main

import (
	"os"

	"github.com/mitchellh/cli"
)

// Version is the CLI's self-reported version string.
const Version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ui := &cli.ColoredUi{
		Ui: &cli.BasicUi{
			Writer:      os.Stdout,
			ErrorWriter: os.Stderr,
			Reader:      os.Stdin,
		},
	}

	c := cli.NewCLI("lojix", Version)
	c.Args = args
	c.Commands = Commands(ui)
	c.HelpFunc = cli.BasicHelpFunc("lojix")

	exitCode, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return exitCode
}
