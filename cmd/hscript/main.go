// Command hscript validates, previews and runs HorizonScript installation
// scripts.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/mitchellh/cli"
)

// Version is set at build time.
var Version = "dev"

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func realMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta := Meta{
		Ui: &cli.BasicUi{
			Reader:      stdin,
			Writer:      stdout,
			ErrorWriter: stderr,
		},
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Color:  isTerminal(stderr),
		ctx:    ctx,
	}

	c := &cli.CLI{
		Name:         "hscript",
		Version:      Version,
		Args:         args,
		Commands:     commands(meta),
		HelpWriter:   stderr,
		ErrorWriter:  stderr,
		Autocomplete: false,
	}
	code, err := c.Run()
	if err != nil {
		fmt.Fprintf(stderr, "hscript: %v\n", err)
		return 1
	}
	return code
}

func commands(meta Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"validate": func() (cli.Command, error) {
			return &ValidateCommand{Meta: meta}, nil
		},
		"execute": func() (cli.Command, error) {
			return &ExecuteCommand{Meta: meta}, nil
		},
		"dump": func() (cli.Command, error) {
			return &DumpCommand{Meta: meta}, nil
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
