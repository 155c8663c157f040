package script

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/netconf"
)

// Execution phases, in the order they run.
const (
	PhaseValidate     = "validate"
	PhaseDisk         = "disk"
	PhasePreMetadata  = "pre-metadata"
	PhaseNet          = "net"
	PhasePkgDB        = "pkgdb"
	PhasePostMetadata = "post-metadata"
)

// basePackages are installed on every target.
var basePackages = []string{"adelie-base", "openrc", "shadow"}

// keyError is an execution failure already attributed to a directive.
type keyError struct {
	key Key
	err error
}

func (e *keyError) Error() string { return e.err.Error() }

func (e *keyError) Unwrap() error { return e.err }

type phase struct {
	name string
	run  func(context.Context, *Runtime) error
}

// Execute validates the script and then carries it out against the target
// directory. Phases run in a fixed order and the first hard failure stops
// the run; nothing is rolled back.
func (s *Script) Execute(ctx context.Context) error {
	sys, err := s.system()
	if err != nil {
		return err
	}
	rt := newRuntime(s, sys)

	phases := []phase{
		{PhaseValidate, func(ctx context.Context, _ *Runtime) error { return s.Validate(ctx) }},
		{PhaseDisk, s.executeDisk},
		{PhasePreMetadata, s.executePreMetadata},
		{PhaseNet, s.executeNet},
		{PhasePkgDB, s.executePkgDB},
		{PhasePostMetadata, s.executePostMetadata},
	}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		rt.Reporter.StepStart(p.name)
		rt.Logger.Debug("starting phase", "phase", p.name)
		if err := p.run(ctx, rt); err != nil {
			s.reportFailure(err)
			return fmt.Errorf("%s: %w", p.name, err)
		}
		rt.Reporter.StepEnd(p.name)
	}
	return nil
}

// reportFailure emits the diagnostic for a failed phase. Validation
// failures were already reported one by one.
func (s *Script) reportFailure(err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return
	}
	var loc *diag.Location
	var kerr *keyError
	if errors.As(err, &kerr) {
		loc = diag.Loc(kerr.key.Location())
		err = kerr.err
	}
	msg, detail := describe(err)
	s.opts.Reporter.Error(loc, msg, detail)
}

// execKeys executes each directive in turn, stopping at the first failure.
func execKeys(ctx context.Context, rt *Runtime, keys ...Key) error {
	for _, k := range keys {
		if k == nil {
			continue
		}
		rt.Logger.Debug("executing directive", "key", k.Name(), "location", k.Location().String())
		if err := k.Execute(ctx, rt); err != nil {
			return &keyError{key: k, err: err}
		}
	}
	return nil
}

func apkAdd(rt *Runtime, pkgs ...string) []string {
	return append([]string{"apk", "--root", rt.Target, "add"}, pkgs...)
}

func (s *Script) executeDisk(ctx context.Context, rt *Runtime) error {
	if err := rt.System.Probe.Settle(ctx); err != nil {
		return herrors.Wrap(err, herrors.CodeExecutionFailed, "cannot settle block devices")
	}

	partitions := slices.Clone(s.many["partition"])
	sort.SliceStable(partitions, func(i, j int) bool {
		a, b := partitions[i].(*Partition), partitions[j].(*Partition) //nolint:forcetypeassert // collection holds one type
		if a.device != b.device {
			return a.device < b.device
		}
		return a.index < b.index
	})
	mounts := slices.Clone(s.many["mount"])
	sort.SliceStable(mounts, func(i, j int) bool {
		//nolint:forcetypeassert // collection holds one type
		return mounts[i].(*Mount).mountpoint < mounts[j].(*Mount).mountpoint
	})

	for _, group := range [][]Key{
		s.many["diskid"],
		s.many["disklabel"],
		partitions,
		s.many["lvm_pv"],
		s.many["lvm_vg"],
		s.many["lvm_lv"],
		s.many["encrypt"],
		s.many["fs"],
		mounts,
	} {
		if err := execKeys(ctx, rt, group...); err != nil {
			return err
		}
	}

	if rt.Flags.Has(ImageOnly) {
		return nil
	}
	for _, dir := range []string{"/dev", "/proc", "/sys"} {
		dest := rt.Path(dir)
		if err := rt.System.Files.MkdirAll(dest, 0o755); err != nil {
			return herrors.Wrapf(err, herrors.CodeExecutionFailed, "cannot create %s", dest)
		}
		if err := rt.System.Mounts.BindMount(ctx, dir, dest); err != nil {
			return herrors.Wrapf(err, herrors.CodeExecutionFailed, "cannot bind %s into the target", dir)
		}
	}
	return nil
}

func (s *Script) executePreMetadata(ctx context.Context, rt *Runtime) error {
	if err := execKeys(ctx, rt, s.singles["hostname"]); err != nil {
		return err
	}
	if err := rt.System.Files.MkdirAll(rt.Path("/etc/apk"), 0o755); err != nil {
		return herrors.Wrap(err, herrors.CodeExecutionFailed, "cannot create /etc/apk")
	}
	return execKeys(ctx, rt, s.many["repository"]...)
}

func (s *Script) executeNet(ctx context.Context, rt *Runtime) error {
	for _, name := range []string{"netaddress", "pppoe", "netssid", "nameserver"} {
		if err := execKeys(ctx, rt, s.many[name]...); err != nil {
			return err
		}
	}

	cfg := rt.net
	var written []netconf.File

	if len(cfg.Wireless()) > 0 {
		written = append(written, netconf.File{Path: netconf.WPAPath, Content: cfg.RenderWPA(), Mode: 0o600})
	}
	var links []netconf.Link
	if cfg.HasInterfaces() || (cfg.Domain != "" && cfg.System == netconf.Netifrc) {
		plan, err := cfg.Render()
		if err != nil {
			return herrors.Wrap(err, herrors.CodeExecutionFailed, "cannot render network configuration")
		}
		written = append(written, plan.Files...)
		links = plan.Links
	}
	if len(cfg.Nameservers) > 0 || (cfg.Domain != "" && cfg.System == netconf.ENI) {
		dest := netconf.ResolvPath
		if cfg.UsesDHCP() {
			dest = netconf.ResolvHeadPath
		}
		if err := rotate(rt, dest); err != nil {
			return err
		}
		written = append(written, netconf.File{Path: dest, Content: cfg.RenderResolv(), Mode: 0o644})
	}

	for _, f := range written {
		if err := rt.writeFile(f.Path, f.Content, f.Mode); err != nil {
			return herrors.Wrapf(err, herrors.CodeExecutionFailed, "cannot write %s", f.Path)
		}
	}
	for _, l := range links {
		if err := rt.symlink(l.Target, l.Path); err != nil {
			return herrors.Wrapf(err, herrors.CodeExecutionFailed, "cannot link %s", l.Path)
		}
	}

	if s.networkEnabled() && (rt.Flags.Has(InstallEnvironment) || rt.System.Simulated) {
		s.activateNetwork(ctx, rt, written)
	}
	return nil
}

// rotate moves an existing file in the target aside to <name>.old.
func rotate(rt *Runtime, p string) error {
	src := rt.Path(p)
	if ok, _ := rt.System.Files.Exists(src); !ok {
		return nil
	}
	if err := rt.System.Files.Rename(src, src+".old"); err != nil {
		return herrors.Wrapf(err, herrors.CodeExecutionFailed, "cannot move %s aside", p)
	}
	return nil
}

// activateNetwork copies the rendered configuration into the running
// environment and tries to associate with the configured wireless
// networks. Failures here never stop the installation.
func (s *Script) activateNetwork(ctx context.Context, rt *Runtime, files []netconf.File) {
	for _, f := range files {
		if err := rt.System.Files.CopyFile(rt.Path(f.Path), f.Path, f.Mode); err != nil {
			rt.soft(nil, "cannot copy "+f.Path+" into the install environment", err)
		}
	}
	if len(rt.net.Wireless()) == 0 {
		return
	}
	if err := rt.Run(ctx, []string{"rc-service", "wpa_supplicant", "restart"}); err != nil {
		rt.soft(nil, "cannot associate with wireless network", err)
	}
}

// installSet returns the packages installed before the kernel: the base
// set, what the configuration needs, then what was requested.
func (s *Script) installSet() []string {
	pkgs := slices.Clone(basePackages)
	if len(s.many["netaddress"])+len(s.many["pppoe"])+len(s.many["netssid"]) > 0 {
		if s.netSystem() == netconf.ENI {
			pkgs = append(pkgs, "ifupdown")
		} else {
			pkgs = append(pkgs, "netifrc")
		}
	}
	if len(s.many["netssid"]) > 0 {
		pkgs = append(pkgs, "wpa_supplicant")
	}
	if len(s.many["pppoe"]) > 0 {
		pkgs = append(pkgs, "ppp")
	}
	if fw, ok := s.singles["firmware"].(*Firmware); ok && fw.Bool() {
		pkgs = append(pkgs, "linux-firmware")
	}
	for _, p := range s.packages {
		if !slices.Contains(pkgs, p) {
			pkgs = append(pkgs, p)
		}
	}
	return pkgs
}

func (s *Script) executePkgDB(ctx context.Context, rt *Runtime) error {
	if k, ok := s.singles["arch"].(*Arch); ok {
		if err := k.Execute(ctx, rt); err != nil {
			return err
		}
	} else if err := writeArch(rt, s.Architecture()); err != nil {
		return herrors.Wrap(err, herrors.CodeExecutionFailed, "cannot write package architecture")
	}
	if err := execKeys(ctx, rt, s.many["signingkey"]...); err != nil {
		return err
	}

	for _, dir := range []string{"lib", "bin", "sbin"} {
		if err := rt.System.Files.MkdirAll(rt.Path("/usr/"+dir), 0o755); err != nil {
			return herrors.Wrapf(err, herrors.CodeExecutionFailed, "cannot create /usr/%s", dir)
		}
		if err := rt.symlink("usr/"+dir, "/"+dir); err != nil {
			return herrors.Wrapf(err, herrors.CodeExecutionFailed, "cannot link /%s", dir)
		}
	}

	if err := rt.Run(ctx, []string{"apk", "--root", rt.Target, "--initdb", "add"}); err != nil {
		return herrors.Wrap(err, herrors.CodeExecutionFailed, "cannot initialize package database")
	}
	pkgs := s.installSet()
	rt.Logger.Debug("installing packages", "packages", strings.Join(pkgs, " "))
	if err := rt.Run(ctx, apkAdd(rt, pkgs...)); err != nil {
		return herrors.Wrap(err, herrors.CodeExecutionFailed, "cannot install packages")
	}
	return execKeys(ctx, rt, s.singles["kernel"])
}

func (s *Script) executePostMetadata(ctx context.Context, rt *Runtime) error {
	if k := s.singles["rootpw"]; k != nil {
		if err := execKeys(ctx, rt, k); err != nil {
			return err
		}
	} else if err := lockRoot(ctx, rt); err != nil {
		return herrors.Wrap(err, herrors.CodeExecutionFailed, "cannot lock root account")
	}

	if err := execKeys(ctx, rt, s.singles["language"], s.singles["keymap"]); err != nil {
		return err
	}

	for _, a := range s.Accounts() {
		keys := []Key{a.Name}
		if a.Alias != nil {
			keys = append(keys, a.Alias)
		}
		if a.Passphrase != nil {
			keys = append(keys, a.Passphrase)
		}
		for _, g := range a.Groups {
			keys = append(keys, g)
		}
		if a.Icon != nil {
			keys = append(keys, a.Icon)
		}
		if err := execKeys(ctx, rt, keys...); err != nil {
			return err
		}
	}

	tz := s.singles["timezone"]
	if tz == nil {
		tz = &Timezone{StringKey{newBase(s, "timezone", defaultLocation, DefaultTimezone)}}
	}
	if err := execKeys(ctx, rt, tz, s.singles["autologin"]); err != nil {
		return err
	}
	if err := execKeys(ctx, rt, s.many["svcenable"]...); err != nil {
		return err
	}
	return execKeys(ctx, rt, s.singles["bootloader"])
}
