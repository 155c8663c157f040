package script

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/text/language"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
)

var (
	hostnameRe = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)
	keymapRe   = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	timezoneRe = regexp.MustCompile(`^[A-Za-z0-9_+-]+(/[A-Za-z0-9_+-]+)*$`)
	versionRe  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	packageRe  = regexp.MustCompile(`^[A-Za-z0-9+_.@-]+([<>=~]{1,2}[A-Za-z0-9+_.-]+)?$`)
	serviceRe  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	localeRe   = regexp.MustCompile(`^([a-z]{2,3})(_[A-Z]{2})?(\.UTF-8)?(@[a-z]+)?$`)
	cryptRe    = regexp.MustCompile(`^\$(2[aby]|5|6)\$(rounds=[0-9]+\$)?[./A-Za-z0-9]{1,22}\$[./A-Za-z0-9]+$`)
)

// Hostname sets the system's host name, and its DNS domain when the name
// is fully qualified.
type Hostname struct{ StringKey }

func parseHostname(s *Script, loc diag.Location, value string) (Key, error) {
	if !hostnameRe.MatchString(value) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "hostname %q contains invalid characters", value)
	}
	return &Hostname{StringKey{newBase(s, "hostname", loc, value)}}, nil
}

// Split returns the node name and the domain, which may be empty.
func (k *Hostname) Split() (string, string) {
	node, domain, _ := strings.Cut(k.raw, ".")
	return node, domain
}

func (k *Hostname) Validate(context.Context) error {
	first := k.raw[0]
	if !(first >= 'a' && first <= 'z' || first >= 'A' && first <= 'Z' || first >= '0' && first <= '9') {
		return k.errorf(herrors.CodeValidation, "hostname must begin with a letter or digit")
	}
	if len(k.raw) > 320 {
		return k.errorf(herrors.CodeValidation, "hostname is longer than 320 characters")
	}
	for _, part := range strings.Split(k.raw, ".") {
		if part == "" {
			return k.errorf(herrors.CodeValidation, "hostname contains an empty component")
		}
		if len(part) > 64 {
			return k.errorf(herrors.CodeValidation, "hostname component %q is longer than 64 characters", part)
		}
	}
	return nil
}

func (k *Hostname) Execute(_ context.Context, rt *Runtime) error {
	node, domain := k.Split()
	if err := rt.writeFile("/etc/hostname", []byte(node+"\n"), 0o644); err != nil {
		return k.wrapf(err, herrors.CodeExecutionFailed, "cannot write hostname")
	}
	rt.net.Domain = domain
	return nil
}

var knownArchs = []string{
	"aarch64", "aarch64_be", "alpha", "armel", "armhf", "armv7", "m68k",
	"mips", "mips64", "mipsel", "mips64el", "pmmac", "ppc", "ppc64",
	"riscv64", "s390x", "sparc64", "x86", "x86_64",
}

// Arch sets the target's CPU architecture.
type Arch struct{ StringKey }

func parseArch(s *Script, loc diag.Location, value string) (Key, error) {
	if !slices.Contains(knownArchs, value) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "unknown architecture %q", value)
	}
	return &Arch{StringKey{newBase(s, "arch", loc, value)}}, nil
}

func (k *Arch) Execute(_ context.Context, rt *Runtime) error {
	return k.wrapf(writeArch(rt, k.raw), herrors.CodeExecutionFailed, "cannot write package architecture")
}

func writeArch(rt *Runtime, arch string) error {
	return rt.writeFile("/etc/apk/arch", []byte(arch+"\n"), 0o644)
}

func parseCrypt(value string) error {
	if !cryptRe.MatchString(value) {
		return herrors.New(herrors.CodeInvalidInput, "value is not a supported crypt(3) passphrase hash")
	}
	return nil
}

// setPassphrase sets an account's hashed passphrase in the target.
func setPassphrase(ctx context.Context, rt *Runtime, user, hash string) error {
	return rt.Run(ctx, []string{"chpasswd", "-R", rt.Target, "-e"}, executor.WithInput(user+":"+hash+"\n"))
}

// RootPassphrase sets the root account's hashed passphrase.
type RootPassphrase struct{ StringKey }

func parseRootPassphrase(s *Script, loc diag.Location, value string) (Key, error) {
	if err := parseCrypt(value); err != nil {
		return nil, err
	}
	return &RootPassphrase{StringKey{newBase(s, "rootpw", loc, value)}}, nil
}

func (k *RootPassphrase) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(setPassphrase(ctx, rt, "root", k.raw), herrors.CodeExecutionFailed, "cannot set root passphrase")
}

// lockRoot disables password login for root.
func lockRoot(ctx context.Context, rt *Runtime) error {
	return rt.Run(ctx, []string{"usermod", "-R", rt.Target, "-L", "root"})
}

// Language sets the system locale.
type Language struct{ StringKey }

func parseLanguage(s *Script, loc diag.Location, value string) (Key, error) {
	switch value {
	case "C", "C.UTF-8", "POSIX":
	default:
		m := localeRe.FindStringSubmatch(value)
		if m == nil {
			return nil, herrors.Newf(herrors.CodeInvalidInput, "%q is not a locale name", value)
		}
		tag := m[1] + strings.ReplaceAll(m[2], "_", "-")
		if _, err := language.Parse(tag); err != nil {
			return nil, herrors.Wrapf(err, herrors.CodeInvalidInput, "%q is not a known language", value)
		}
	}
	return &Language{StringKey{newBase(s, "language", loc, value)}}, nil
}

func (k *Language) Execute(_ context.Context, rt *Runtime) error {
	script := fmt.Sprintf("#!/bin/sh\nexport LANG=%q\n", k.raw)
	return k.wrapf(rt.writeFile("/etc/profile.d/00-language.sh", []byte(script), 0o755),
		herrors.CodeExecutionFailed, "cannot write language profile")
}

// Keymap sets the console keyboard layout.
type Keymap struct{ StringKey }

func parseKeymap(s *Script, loc diag.Location, value string) (Key, error) {
	if !keymapRe.MatchString(value) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "keymap %q contains invalid characters", value)
	}
	return &Keymap{StringKey{newBase(s, "keymap", loc, value)}}, nil
}

func (k *Keymap) Execute(_ context.Context, rt *Runtime) error {
	conf := fmt.Sprintf("keymap=%q\nwindowkeys=\"YES\"\n", k.raw)
	return k.wrapf(rt.writeFile("/etc/conf.d/keymaps", []byte(conf), 0o644),
		herrors.CodeExecutionFailed, "cannot write keymap configuration")
}

// DefaultTimezone is used when no timezone is declared.
const DefaultTimezone = "UTC"

// Timezone sets the system's local time zone.
type Timezone struct{ StringKey }

func parseTimezone(s *Script, loc diag.Location, value string) (Key, error) {
	if !timezoneRe.MatchString(value) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "%q is not a time zone name", value)
	}
	return &Timezone{StringKey{newBase(s, "timezone", loc, value)}}, nil
}

func (k *Timezone) Validate(context.Context) error {
	probe := k.script.probe()
	if probe != nil && !probe.Exists("/usr/share/zoneinfo/"+k.raw) {
		return k.errorf(herrors.CodeNotFound, "unknown time zone %s", k.raw)
	}
	return nil
}

func (k *Timezone) Execute(_ context.Context, rt *Runtime) error {
	link := rt.Path("/etc/localtime")
	if ok, _ := rt.System.Files.Exists(link); ok {
		if err := rt.System.Files.Remove(link); err != nil {
			return k.wrapf(err, herrors.CodeExecutionFailed, "cannot replace /etc/localtime")
		}
	}
	return k.wrapf(rt.symlink("/usr/share/zoneinfo/"+k.raw, "/etc/localtime"),
		herrors.CodeExecutionFailed, "cannot set time zone")
}

// DefaultVersion is the release installed when no version is declared.
const DefaultVersion = "stable"

// Version selects the distribution release to install.
type Version struct {
	StringKey
	release *semver.Version
}

func parseVersion(s *Script, loc diag.Location, value string) (Key, error) {
	if !versionRe.MatchString(value) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "version %q contains invalid characters", value)
	}
	k := &Version{StringKey: StringKey{newBase(s, "version", loc, value)}}
	if value == "stable" || value == "current" {
		return k, nil
	}
	v, err := semver.NewVersion(value)
	if err != nil {
		return nil, herrors.Wrapf(err, herrors.CodeInvalidInput, "%q is not stable, current or a release number", value)
	}
	k.release = v
	return k, nil
}

// Release returns the parsed release number, or nil for stable and current.
func (k *Version) Release() *semver.Version { return k.release }

func (s *Script) version() string {
	if v, ok := s.singles["version"].(*Version); ok {
		return v.raw
	}
	return DefaultVersion
}

// Kernel selects the kernel package.
type Kernel struct{ StringKey }

func parseKernel(s *Script, loc diag.Location, value string) (Key, error) {
	if !packageRe.MatchString(value) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "%q is not a package name", value)
	}
	return &Kernel{StringKey{newBase(s, "kernel", loc, value)}}, nil
}

func (k *Kernel) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.Run(ctx, apkAdd(rt, k.raw)), herrors.CodeExecutionFailed, "cannot install kernel %s", k.raw)
}

// Autologin logs a user in to the graphical session automatically.
type Autologin struct{ StringKey }

func parseAutologin(s *Script, loc diag.Location, value string) (Key, error) {
	if err := parseUsername(value); err != nil {
		return nil, err
	}
	return &Autologin{StringKey{newBase(s, "autologin", loc, value)}}, nil
}

func (k *Autologin) Validate(context.Context) error {
	if _, ok := k.script.accounts[k.raw]; !ok {
		return k.errorf(herrors.CodeNotFound, "autologin user %s is not declared", k.raw)
	}
	return nil
}

func (k *Autologin) Execute(_ context.Context, rt *Runtime) error {
	conf := fmt.Sprintf("[Autologin]\nUser=%s\n", k.raw)
	return k.wrapf(rt.writeFile("/etc/sddm.conf.d/autologin.conf", []byte(conf), 0o644),
		herrors.CodeExecutionFailed, "cannot configure automatic login")
}

// PackageInstall requests packages.
type PackageInstall struct {
	keyBase
	packages []string
}

func parsePackageInstall(s *Script, loc diag.Location, value string) (Key, error) {
	pkgs := strings.Fields(value)
	for _, p := range pkgs {
		if !packageRe.MatchString(p) {
			return nil, herrors.Newf(herrors.CodeInvalidInput, "%q is not a package name", p)
		}
	}
	return &PackageInstall{keyBase: newBase(s, "pkginstall", loc, value), packages: pkgs}, nil
}

// Packages returns the requested packages.
func (k *PackageInstall) Packages() []string { return append([]string(nil), k.packages...) }

// ServiceEnable adds a service to a runlevel.
type ServiceEnable struct {
	keyBase
	service  string
	runlevel string
}

func parseServiceEnable(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) > 2 {
		return nil, herrors.New(herrors.CodeParse, "svcenable requires a service and an optional runlevel")
	}
	k := &ServiceEnable{keyBase: newBase(s, "svcenable", loc, value), service: f[0], runlevel: "default"}
	if len(f) == 2 {
		k.runlevel = f[1]
	}
	if !serviceRe.MatchString(k.service) || !serviceRe.MatchString(k.runlevel) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "invalid service or runlevel name in %q", value)
	}
	return k, nil
}

// Service returns the service name.
func (k *ServiceEnable) Service() string { return k.service }

func (k *ServiceEnable) Execute(_ context.Context, rt *Runtime) error {
	script := "/etc/init.d/" + k.service
	if !rt.System.Simulated {
		if ok, _ := rt.System.Files.Exists(rt.Path(script)); !ok {
			rt.soft(diag.Loc(k.loc), "service "+k.service+" has no init script; not enabled", nil)
			return nil
		}
	}
	return k.wrapf(rt.symlink(script, "/etc/runlevels/"+k.runlevel+"/"+k.service),
		herrors.CodeExecutionFailed, "cannot enable service %s", k.service)
}
