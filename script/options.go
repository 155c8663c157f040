package script

import (
	"io"
	"log/slog"
	"os"

	"github.com/horizon-installer/hscript/diag"
	"github.com/horizon-installer/hscript/fs"
	"github.com/horizon-installer/hscript/system"
)

// DefaultTarget is the directory the target system is assembled in.
const DefaultTarget = "/target"

// Flag is a load or execution option bit.
type Flag uint

const (
	// KeepGoing continues parsing after an error so every problem in a
	// script is reported in one pass.
	KeepGoing Flag = 1 << iota
	// RequireNetwork requires "network true".
	RequireNetwork
	// StrictMode turns unknown keys and repeated services or packages
	// into errors.
	StrictMode
	// InstallEnvironment enables device checks and real side effects.
	InstallEnvironment
	// Colorized colorizes severities on the diagnostics stream.
	Colorized
	// Simulate prints the shell equivalent of each side effect instead of
	// performing it.
	Simulate
	// ImageOnly skips mounts, for assembling a filesystem image.
	ImageOnly
)

// Has reports whether every bit in o is set in f.
func (f Flag) Has(o Flag) bool {
	return f&o == o
}

// Options contains configuration for loading and running a script.
type Options struct {
	// Flags selects the load and execution mode.
	Flags Flag
	// Filesystem is used to read scripts. If nil, defaults to the host
	// filesystem.
	Filesystem fs.Filesystem
	// Reporter receives diagnostics. If nil, one writing to Output is
	// created.
	Reporter *diag.Reporter
	// Logger receives debug logging.
	Logger *slog.Logger
	// System performs side effects. If nil, one is chosen from Flags when
	// the script is executed.
	System *system.System
	// Target is the directory the target system is assembled in.
	Target string
	// Output receives simulated commands and, by default, diagnostics.
	Output io.Writer
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		Target: DefaultTarget,
		Output: os.Stdout,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithFlags sets option bits.
func WithFlags(flags Flag) Option {
	return func(o *Options) {
		o.Flags |= flags
	}
}

// WithFilesystem sets the filesystem scripts are read from.
func WithFilesystem(filesystem fs.Filesystem) Option {
	return func(o *Options) {
		o.Filesystem = filesystem
	}
}

// WithReporter sets the diagnostics reporter.
func WithReporter(r *diag.Reporter) Option {
	return func(o *Options) {
		o.Reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithSystem sets the system side effects are performed against.
func WithSystem(sys *system.System) Option {
	return func(o *Options) {
		o.System = sys
	}
}

// WithTarget sets the target directory.
func WithTarget(dir string) Option {
	return func(o *Options) {
		o.Target = dir
	}
}

// WithOutput sets the writer for simulated commands and default
// diagnostics.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

func mergeOptions(opts ...Option) *Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Reporter == nil {
		options.Reporter = diag.NewReporter(options.Output, diag.WithColor(options.Flags.Has(Colorized)))
	}
	return options
}
