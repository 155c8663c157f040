package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/apparentlymart/go-shquot/shquot"
)

// Runner runs an argv. The engine issues every external command through a
// Runner so the same code drives live and simulated runs.
type Runner interface {
	Run(ctx context.Context, argv []string, opts ...Option) (*Result, error)
}

// Local runs commands on the host.
type Local struct {
	logger *slog.Logger
	base   []Option
}

// NewLocal creates a Local runner. base options apply to every command.
func NewLocal(logger *slog.Logger, base ...Option) *Local {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Local{logger: logger, base: base}
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, argv []string, opts ...Option) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	l.logger.Debug("running command", "argv", argv)

	all := make([]Option, 0, len(l.base)+len(opts))
	all = append(all, l.base...)
	all = append(all, opts...)

	result, err := New(argv[0], argv[1:]...).Execute(ctx, all...)
	if err != nil {
		l.logger.Debug("command failed", "argv", argv, "error", err)
		return result, err
	}
	return result, nil
}

// Simulator prints each command as a POSIX shell line instead of running it.
type Simulator struct {
	w io.Writer
}

// NewSimulator creates a Simulator writing to w.
func NewSimulator(w io.Writer) *Simulator {
	return &Simulator{w: w}
}

// Run implements Runner. It always succeeds with empty output.
func (s *Simulator) Run(_ context.Context, argv []string, opts ...Option) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if _, err := fmt.Fprintln(s.w, FormatCommand(argv, opts...)); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	return &Result{}, nil
}

// FormatCommand renders argv and the options that affect its meaning as
// a single shell line.
func FormatCommand(argv []string, opts ...Option) string {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	var b strings.Builder
	if o.Input != "" {
		b.WriteString("printf '%s\\n' ")
		b.WriteString(shquot.POSIXShell([]string{strings.TrimSuffix(o.Input, "\n")}))
		b.WriteString(" | ")
	}
	if o.WorkingDir != "" {
		b.WriteString("cd ")
		b.WriteString(shquot.POSIXShell([]string{o.WorkingDir}))
		b.WriteString(" && ")
	}
	if len(o.Env) > 0 {
		keys := make([]string, 0, len(o.Env))
		for k := range o.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(shquot.POSIXShell([]string{o.Env[k]}))
			b.WriteByte(' ')
		}
	}
	b.WriteString(shquot.POSIXShell(argv))
	return b.String()
}
