package main

import (
	"errors"
	"io"
	"os"

	"github.com/mitchellh/cli"

	"github.com/rupertlssmith/lojix-sub000/parse"
	"github.com/rupertlssmith/lojix-sub000/wam"
)

// Meta holds the fields every subcommand shares, mirroring nomad/command's
// Meta: just a Ui here, since lojix has no client/server address to
// configure.
type Meta struct {
	Ui cli.Ui
}

// Commands returns the subcommand factory table cli.CLI dispatches on.
func Commands(ui cli.Ui) map[string]cli.CommandFactory {
	meta := Meta{Ui: ui}
	return map[string]cli.CommandFactory{
		"run": func() (cli.Command, error) {
			return &RunCommand{Meta: meta}, nil
		},
		"repl": func() (cli.Command, error) {
			return &ReplCommand{Meta: meta}, nil
		},
		"disasm": func() (cli.Command, error) {
			return &DisasmCommand{Meta: meta}, nil
		},
		"check": func() (cli.Command, error) {
			return &CheckCommand{Meta: meta}, nil
		},
	}
}

// Exit codes from SPEC_FULL.md §6's CLI table.
const (
	ExitSuccess      = 0
	ExitParseError   = 1
	ExitLinkError    = 2
	ExitRuntimeError = 3
)

// exitFor classifies err into one of the exit codes above, per spec.md §7's
// error taxonomy (parse/link/runtime).
func exitFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var syn *parse.SyntaxError
	if errors.As(err, &syn) {
		return ExitParseError
	}
	var link *wam.LinkError
	if errors.As(err, &link) {
		return ExitLinkError
	}
	return ExitRuntimeError
}

// readSource loads a program file, or reads stdin if path is "-".
func readSource(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}
