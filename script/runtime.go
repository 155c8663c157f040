package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
	"github.com/horizon-installer/hscript/fs"
	"github.com/horizon-installer/hscript/netconf"
	"github.com/horizon-installer/hscript/system"
)

// diskLayout tracks where the next partition on a disk starts, in MiB.
type diskLayout struct {
	next   uint64
	filled bool
}

// Runtime is the state of one Execute call. It is created fresh for every
// run, so nothing carries over between runs.
type Runtime struct {
	System   *system.System
	Reporter *diag.Reporter
	Logger   *slog.Logger
	Target   string
	Flags    Flag

	net     *netconf.Config
	pppNext int
	layouts map[string]*diskLayout
}

func newRuntime(s *Script, sys *system.System) *Runtime {
	return &Runtime{
		System:   sys,
		Reporter: s.opts.Reporter,
		Logger:   s.logger,
		Target:   s.target,
		Flags:    s.opts.Flags,
		net:      netconf.New(s.netSystem()),
		layouts:  make(map[string]*diskLayout),
	}
}

// Path returns p inside the target directory.
func (rt *Runtime) Path(p string) string {
	return fs.Under(rt.Target, p)
}

// Run runs a command, classifying failure as an execution error.
func (rt *Runtime) Run(ctx context.Context, argv []string, opts ...executor.Option) error {
	if _, err := rt.System.Runner.Run(ctx, argv, opts...); err != nil {
		return herrors.Wrapf(err, herrors.CodeExecutionFailed, "%s failed", argv[0])
	}
	return nil
}

// Chroot runs a command inside the target.
func (rt *Runtime) Chroot(ctx context.Context, argv []string, opts ...executor.Option) error {
	return rt.Run(ctx, append([]string{"chroot", rt.Target}, argv...), opts...)
}

// soft reports a failure that does not stop the run.
func (rt *Runtime) soft(loc *diag.Location, message string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	rt.Reporter.Warn(loc, message, detail)
	rt.Logger.Debug("soft failure", "message", message, "error", err)
}

// nextPPPLink returns the name of the next PPP link of this run.
func (rt *Runtime) nextPPPLink() string {
	name := fmt.Sprintf("ppp%d", rt.pppNext)
	rt.pppNext++
	return name
}

func (rt *Runtime) layout(device string) *diskLayout {
	l, ok := rt.layouts[device]
	if !ok {
		l = &diskLayout{next: 1}
		rt.layouts[device] = l
	}
	return l
}

// writeFile writes a file in the target.
func (rt *Runtime) writeFile(p string, data []byte, perm os.FileMode) error {
	return rt.System.Files.WriteFile(rt.Path(p), data, perm) //nolint:wrapcheck // callers wrap with the directive context
}

// symlink creates a link in the target, leaving an existing entry alone.
func (rt *Runtime) symlink(target, link string) error {
	dst := rt.Path(link)
	if ok, _ := rt.System.Files.Exists(dst); ok {
		return nil
	}
	if err := rt.System.Files.MkdirAll(fs.Dir(dst), 0o755); err != nil {
		return err //nolint:wrapcheck // callers wrap with the directive context
	}
	return rt.System.Files.Symlink(target, dst) //nolint:wrapcheck // callers wrap with the directive context
}
