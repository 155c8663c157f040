package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/horizon-installer/hscript/diag"
	"github.com/horizon-installer/hscript/fs"
	"github.com/horizon-installer/hscript/script"
)

// DefaultScript is read when no script is named on the command line.
const DefaultScript = "/etc/horizon/installfile"

// Meta holds what every command shares: where output goes and how the
// script is read.
type Meta struct {
	Ui cli.Ui

	// Stdin is read when the script is named "-".
	Stdin io.Reader
	// Stdout receives simulated commands.
	Stdout io.Writer
	// Stderr receives the diagnostics stream and debug logging.
	Stderr io.Writer
	// Files overrides the filesystem scripts are read from.
	Files fs.Filesystem
	// Color enables colorized severities unless -no-color is given.
	Color bool

	ctx context.Context

	flagKeepGoing bool
	flagStrict    bool
	flagInstall   bool
	flagNetwork   bool
	flagNoColor   bool
	flagDebug     bool
}

// CommandContext returns the context commands run under.
func (m *Meta) CommandContext() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// defaultFlagSet creates a flag set with the options every command
// accepts.
func (m *Meta) defaultFlagSet(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	f.BoolVar(&m.flagKeepGoing, "keep-going", false, "report every error instead of stopping at the first")
	f.BoolVar(&m.flagStrict, "strict", false, "treat unknown keys as errors")
	f.BoolVar(&m.flagInstall, "install", false, "check devices on this machine and allow changes to it")
	f.BoolVar(&m.flagNetwork, "require-network", false, "fail unless the script enables networking")
	f.BoolVar(&m.flagNoColor, "no-color", false, "disable colorized diagnostics")
	f.BoolVar(&m.flagDebug, "debug", false, "write debug logging to standard error")
	return f
}

// parseArgs parses flags and returns the script name.
func (m *Meta) parseArgs(f *flag.FlagSet, args []string) (string, bool) {
	if err := f.Parse(args); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			m.Ui.Error(err.Error())
		}
		return "", false
	}
	switch f.NArg() {
	case 0:
		return DefaultScript, true
	case 1:
		return f.Arg(0), true
	}
	m.Ui.Error("expected at most one script, got " + strings.Join(f.Args(), " "))
	return "", false
}

func (m *Meta) flags() script.Flag {
	var flags script.Flag
	if m.flagKeepGoing {
		flags |= script.KeepGoing
	}
	if m.flagStrict {
		flags |= script.StrictMode
	}
	if m.flagInstall {
		flags |= script.InstallEnvironment
	}
	if m.flagNetwork {
		flags |= script.RequireNetwork
	}
	if m.Color && !m.flagNoColor {
		flags |= script.Colorized
	}
	return flags
}

func (m *Meta) stdout() io.Writer {
	if m.Stdout == nil {
		return os.Stdout
	}
	return m.Stdout
}

func (m *Meta) stderr() io.Writer {
	if m.Stderr == nil {
		return os.Stderr
	}
	return m.Stderr
}

func (m *Meta) logger() *slog.Logger {
	if !m.flagDebug {
		return nil
	}
	return slog.New(slog.NewTextHandler(m.stderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// loadScript reads the named script, or standard input for "-". Extra
// options are applied after the ones derived from flags.
func (m *Meta) loadScript(name string, extra ...script.Option) (*script.Script, *diag.Reporter, error) {
	flags := m.flags()
	rep := diag.NewReporter(m.stderr(), diag.WithColor(flags.Has(script.Colorized)))
	opts := []script.Option{
		script.WithFlags(flags),
		script.WithReporter(rep),
		script.WithLogger(m.logger()),
		script.WithOutput(m.stdout()),
	}
	if m.Files != nil {
		opts = append(opts, script.WithFilesystem(m.Files))
	}
	opts = append(opts, extra...)

	if name == "-" {
		stdin := m.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		s, err := script.LoadReader(stdin, "<stdin>", opts...)
		return s, rep, err
	}
	s, err := script.Load(name, opts...)
	return s, rep, err
}
