// Package script loads, validates and executes installation scripts: one
// directive per line describing the disk layout, filesystems, network,
// accounts, bootloader and package set of a system to install.
//
// A script is loaded with Load or LoadReader, checked with Validate and
// carried out with Execute:
//
//	s, err := script.Load("/etc/horizon/installfile", script.WithFlags(script.Simulate))
//	if err != nil {
//		return err
//	}
//	return s.Execute(ctx)
package script

import (
	"log/slog"
	"runtime"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/system"
)

// MaxAccounts is the number of user accounts a script may declare.
const MaxAccounts = 255

// singletonKeys are the directives that may be set at most once.
var singletonKeys = map[string]bool{
	"network":       true,
	"hostname":      true,
	"arch":          true,
	"rootpw":        true,
	"language":      true,
	"keymap":        true,
	"timezone":      true,
	"netconfigtype": true,
	"version":       true,
	"bootloader":    true,
	"kernel":        true,
	"autologin":     true,
	"firmware":      true,
}

// Account is a user account assembled from username, useralias, userpw,
// usericon and usergroups directives.
type Account struct {
	Name       *Username
	Alias      *UserAlias
	Passphrase *UserPassphrase
	Icon       *UserIcon
	Groups     []*UserGroups
}

// GroupNames returns every group the account joins, in declaration order.
func (a *Account) GroupNames() []string {
	var names []string
	for _, g := range a.Groups {
		names = append(names, g.groups...)
	}
	return names
}

// Script is one loaded script. It owns every directive read from it.
type Script struct {
	opts   *Options
	logger *slog.Logger
	target string
	sys    *system.System

	order      []Key
	singles    map[string]Key
	many       map[string][]Key
	accounts   map[string]*Account
	accountSeq []string
	packages   []string
	packageSet map[string]bool
}

func newScript(opts *Options) *Script {
	return &Script{
		opts:       opts,
		logger:     opts.Logger,
		target:     opts.Target,
		singles:    make(map[string]Key),
		many:       make(map[string][]Key),
		accounts:   make(map[string]*Account),
		packageSet: make(map[string]bool),
	}
}

// SetTargetDirectory sets the directory the target system is assembled in.
func (s *Script) SetTargetDirectory(dir string) {
	s.target = dir
}

// TargetDirectory returns the directory the target system is assembled in.
func (s *Script) TargetDirectory() string {
	return s.target
}

// GetOne returns the single-valued directive with the given name, or nil.
func (s *Script) GetOne(name string) Key {
	return s.singles[name]
}

// GetMany returns every directive with the given name in declaration order.
// For single-valued directives the result has at most one element.
func (s *Script) GetMany(name string) []Key {
	if k, ok := s.singles[name]; ok {
		return []Key{k}
	}
	return append([]Key(nil), s.many[name]...)
}

// Keys returns every directive in declaration order.
func (s *Script) Keys() []Key {
	return append([]Key(nil), s.order...)
}

// Accounts returns the declared user accounts in declaration order.
func (s *Script) Accounts() []*Account {
	accounts := make([]*Account, 0, len(s.accountSeq))
	for _, name := range s.accountSeq {
		accounts = append(accounts, s.accounts[name])
	}
	return accounts
}

// Packages returns the requested packages in the order first requested.
func (s *Script) Packages() []string {
	return append([]string(nil), s.packages...)
}

// Flags returns the option bits the script was loaded with.
func (s *Script) Flags() Flag {
	return s.opts.Flags
}

func (s *Script) store(k Key) error {
	name := k.Name()
	if singletonKeys[name] {
		return s.storeOne(k)
	}

	switch v := k.(type) {
	case *Username:
		if err := s.addAccount(v); err != nil {
			return err
		}
	case *UserAlias, *UserPassphrase, *UserIcon, *UserGroups:
		if err := s.mergeAccount(k); err != nil {
			return err
		}
	case *PPPoE:
		for _, prev := range s.many[name] {
			if p := prev.(*PPPoE); p.iface == v.iface { //nolint:forcetypeassert // collection holds one type
				return herrors.Newf(herrors.CodeAlreadyExists,
					"duplicate PPPoE link for interface %s: previous value was %s at %s",
					v.iface, p.Value(), p.Location())
			}
		}
	case *ServiceEnable:
		for _, prev := range s.many[name] {
			if prev.(*ServiceEnable).service == v.service { //nolint:forcetypeassert // collection holds one type
				if s.strict() {
					return herrors.Newf(herrors.CodeAlreadyExists,
						"duplicate service %s: previous value was at %s", v.service, prev.Location())
				}
				s.opts.Reporter.Warn(diag.Loc(k.Location()), "service "+v.service+" is already enabled",
					"previous value was at "+prev.Location().String())
				return nil
			}
		}
	case *PackageInstall:
		if s.strict() {
			seen := make(map[string]bool, len(v.packages))
			for _, pkg := range v.packages {
				if s.packageSet[pkg] || seen[pkg] {
					return herrors.Newf(herrors.CodeAlreadyExists, "duplicate package %s", pkg)
				}
				seen[pkg] = true
			}
		}
		for _, pkg := range v.packages {
			if s.packageSet[pkg] {
				s.opts.Reporter.Warn(diag.Loc(k.Location()), "package "+pkg+" is already requested", "")
				continue
			}
			s.packageSet[pkg] = true
			s.packages = append(s.packages, pkg)
		}
	}

	s.many[name] = append(s.many[name], k)
	s.order = append(s.order, k)
	return nil
}

func (s *Script) strict() bool { return s.opts.Flags.Has(StrictMode) }

// storeOne sets a singleton slot. A value read from an inherited script
// never replaces one from the including script, and is replaced by one.
func (s *Script) storeOne(k Key) error {
	name := k.Name()
	prev, ok := s.singles[name]
	if !ok {
		s.singles[name] = k
		s.order = append(s.order, k)
		return nil
	}

	switch {
	case k.Location().Inherited && !prev.Location().Inherited:
		return nil
	case prev.Location().Inherited && !k.Location().Inherited:
		s.singles[name] = k
		for i := range s.order {
			if s.order[i] == prev {
				s.order[i] = k
			}
		}
		return nil
	}
	return herrors.Newf(herrors.CodeAlreadyExists, "duplicate value for key '%s': previous value was %s at %s",
		name, prev.Value(), prev.Location())
}

func (s *Script) addAccount(u *Username) error {
	if _, ok := s.accounts[u.name()]; ok {
		return herrors.Newf(herrors.CodeAlreadyExists, "duplicate username %s: previous declaration at %s",
			u.name(), s.accounts[u.name()].Name.Location())
	}
	if len(s.accounts) >= MaxAccounts {
		return herrors.Newf(herrors.CodeLimitExceeded, "too many user accounts; at most %d are allowed", MaxAccounts)
	}
	s.accounts[u.name()] = &Account{Name: u}
	s.accountSeq = append(s.accountSeq, u.name())
	return nil
}

func (s *Script) mergeAccount(k Key) error {
	user := accountOf(k)
	acct, ok := s.accounts[user]
	if !ok {
		return herrors.Newf(herrors.CodeNotFound, "%s refers to undeclared user %s", k.Name(), user)
	}

	dup := func(prev Key) error {
		return herrors.Newf(herrors.CodeAlreadyExists, "duplicate %s for user %s: previous value was %s at %s",
			k.Name(), user, prev.Value(), prev.Location())
	}

	switch v := k.(type) {
	case *UserAlias:
		if acct.Alias != nil {
			return dup(acct.Alias)
		}
		acct.Alias = v
	case *UserPassphrase:
		if acct.Passphrase != nil {
			return dup(acct.Passphrase)
		}
		acct.Passphrase = v
	case *UserIcon:
		if acct.Icon != nil {
			return dup(acct.Icon)
		}
		acct.Icon = v
	case *UserGroups:
		acct.Groups = append(acct.Groups, v)
	}
	return nil
}

// Architecture returns the declared target architecture, or the one
// matching the running host.
func (s *Script) Architecture() string {
	if k, ok := s.singles["arch"].(*Arch); ok {
		return k.String()
	}
	return hostArch()
}

var goArchs = map[string]string{
	"386":      "x86",
	"amd64":    "x86_64",
	"arm":      "armv7",
	"arm64":    "aarch64",
	"mips":     "mips",
	"mipsle":   "mipsel",
	"mips64":   "mips64",
	"mips64le": "mips64el",
	"ppc64":    "ppc64",
	"riscv64":  "riscv64",
	"s390x":    "s390x",
}

func hostArch() string {
	if a, ok := goArchs[runtime.GOARCH]; ok {
		return a
	}
	return runtime.GOARCH
}

// networkEnabled reports whether "network true" was declared.
func (s *Script) networkEnabled() bool {
	n, ok := s.singles["network"].(*Network)
	return ok && n.Bool()
}

func (s *Script) installEnv() bool {
	return s.opts.Flags.Has(InstallEnvironment)
}

// probe returns the device probe for checks against the install host, or
// nil outside the install environment.
func (s *Script) probe() system.DeviceProbe {
	if !s.installEnv() {
		return nil
	}
	sys, err := s.system()
	if err != nil {
		return nil
	}
	return sys.Probe
}

// system returns the System side effects are performed against.
func (s *Script) system() (*system.System, error) {
	if s.sys != nil {
		return s.sys, nil
	}
	switch {
	case s.opts.System != nil:
		s.sys = s.opts.System
	case s.opts.Flags.Has(Simulate):
		s.sys = system.Simulated(s.opts.Output, nil)
	case s.opts.Flags.Has(InstallEnvironment):
		s.sys = system.Live(s.logger)
	default:
		return nil, herrors.New(herrors.CodeUnsupported,
			"execution requires the install environment or simulate mode")
	}
	return s.sys, nil
}
