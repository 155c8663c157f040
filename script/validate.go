package script

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/netconf"
)

type validator struct {
	script   *Script
	reporter *diag.Reporter
	errs     *multierror.Error
	failures int
}

// Validate checks every directive and the script as a whole. Each problem
// is reported as a diagnostic; the returned *ValidationError carries all of
// them. Validate also supplies the default repositories and signing keys
// when none were declared.
func (s *Script) Validate(ctx context.Context) error {
	v := &validator{script: s, reporter: s.opts.Reporter}

	for _, k := range s.order {
		if err := ctx.Err(); err != nil {
			return herrors.Wrap(err, herrors.CodeValidation, "validation cancelled")
		}
		if err := k.Validate(ctx); err != nil {
			v.fail(k, err)
		}
	}

	v.uniqueness()
	v.existence()
	v.limits()
	v.network()

	if !s.opts.Flags.Has(ImageOnly) {
		if _, ok := s.mountFor("/"); !ok {
			v.fail(nil, herrors.New(herrors.CodeValidation, "no filesystem is mounted at /"))
		}
	}

	if len(s.many["repository"]) == 0 {
		s.many["repository"] = s.defaultRepositories()
	}
	if len(s.many["signingkey"]) == 0 {
		s.many["signingkey"] = s.defaultSigningKeys()
	}

	s.logger.Debug("validated script", "directives", len(s.order), "failures", v.failures)
	if v.failures > 0 {
		return &ValidationError{Failures: v.failures, Err: v.errs}
	}
	return nil
}

func (v *validator) fail(k Key, err error) {
	var loc *diag.Location
	if k != nil {
		loc = diag.Loc(k.Location())
	}
	msg, detail := describe(err)
	v.reporter.Error(loc, msg, detail)
	v.failures++
	v.errs = multierror.Append(v.errs, located(err, loc))
}

func (v *validator) failf(k Key, code herrors.ErrorCode, format string, args ...any) {
	v.fail(k, herrors.Newf(code, format, args...))
}

// unique fails every directive whose identity was already claimed by an
// earlier one. Directives with an empty identity are not checked.
func (v *validator) unique(name, what string, identity func(Key) string) {
	seen := make(map[string]Key)
	for _, k := range v.script.many[name] {
		id := identity(k)
		if id == "" {
			continue
		}
		if prev, ok := seen[id]; ok {
			v.failf(k, herrors.CodeAlreadyExists, "duplicate %s %s: previous value was %s at %s",
				what, id, prev.Value(), prev.Location())
			continue
		}
		seen[id] = k
	}
}

//nolint:forcetypeassert // each collection holds one type
func (v *validator) uniqueness() {
	v.unique("diskid", "identification for", func(k Key) string { return k.(*DiskID).device })
	v.unique("disklabel", "label for", func(k Key) string { return k.(*DiskLabel).device })
	v.unique("partition", "partition", func(k Key) string {
		p := k.(*Partition)
		return fmt.Sprintf("%s %d", p.device, p.index)
	})
	v.unique("lvm_pv", "physical volume", func(k Key) string { return k.(*LVMPhysical).device })
	v.unique("lvm_vg", "volume group", func(k Key) string { return k.(*LVMGroup).group })
	v.unique("lvm_vg", "volume group on", func(k Key) string { return k.(*LVMGroup).pv })
	v.unique("lvm_lv", "logical volume", func(k Key) string {
		l := k.(*LVMVolume)
		return l.group + "/" + l.volume
	})
	v.unique("encrypt", "encryption of", func(k Key) string { return k.(*Encrypt).device })
	v.unique("fs", "filesystem on", func(k Key) string { return k.(*Filesystem).device })
	v.unique("mount", "mountpoint", func(k Key) string { return k.(*Mount).mountpoint })
	v.unique("netaddress", "automatic address for", func(k Key) string {
		a := k.(*NetAddress)
		if a.addr.Method == netconf.Static {
			return ""
		}
		return a.iface + " " + a.addr.Method.String()
	})
	v.unique("netssid", "wireless network for", func(k Key) string { return k.(*NetSSID).network.Interface })
}

// produced returns the device nodes the script itself creates.
//
//nolint:forcetypeassert // each collection holds one type
func (s *Script) produced() map[string]bool {
	nodes := make(map[string]bool)
	for _, k := range s.many["partition"] {
		nodes[k.(*Partition).Node()] = true
	}
	for _, k := range s.many["lvm_lv"] {
		nodes[k.(*LVMVolume).Node()] = true
	}
	for _, k := range s.many["encrypt"] {
		nodes[k.(*Encrypt).Node()] = true
	}
	return nodes
}

// existence checks that every device a directive builds on is created by
// the script or, in the install environment, already present.
//
//nolint:forcetypeassert // each collection holds one type
func (v *validator) existence() {
	s := v.script
	probe := s.probe()
	nodes := s.produced()
	present := func(dev string) bool {
		return nodes[dev] || probe == nil || probe.Exists(dev)
	}

	for _, k := range s.many["lvm_pv"] {
		if dev := k.(*LVMPhysical).device; !present(dev) {
			v.failf(k, herrors.CodeNotFound, "physical volume device %s does not exist and is not created", dev)
		}
	}

	pvs := make(map[string]bool)
	for _, k := range s.many["lvm_pv"] {
		pvs[k.(*LVMPhysical).device] = true
	}
	vgs := make(map[string]bool)
	for _, k := range s.many["lvm_vg"] {
		g := k.(*LVMGroup)
		vgs[g.group] = true
		if !pvs[g.pv] && probe != nil && !probe.Exists(g.pv) {
			v.failf(k, herrors.CodeNotFound, "volume group %s is on %s, which is not a physical volume", g.group, g.pv)
		}
	}
	for _, k := range s.many["lvm_lv"] {
		l := k.(*LVMVolume)
		if !vgs[l.group] && probe != nil && !probe.Exists("/dev/"+l.group) {
			v.failf(k, herrors.CodeNotFound, "volume group %s does not exist and is not created", l.group)
		}
	}
	for _, k := range s.many["encrypt"] {
		if dev := k.(*Encrypt).device; !present(dev) {
			v.failf(k, herrors.CodeNotFound, "device %s does not exist and is not created", dev)
		}
	}
}

func (v *validator) limits() {
	s := v.script
	if repos := s.many["repository"]; len(repos) > MaxRepositories {
		v.failf(repos[MaxRepositories], herrors.CodeLimitExceeded, "too many repositories; at most %d are allowed", MaxRepositories)
	}
	if keys := s.many["signingkey"]; len(keys) > MaxSigningKeys {
		v.failf(keys[MaxSigningKeys], herrors.CodeLimitExceeded, "too many signing keys; at most %d are allowed", MaxSigningKeys)
	}
	if ns := s.many["nameserver"]; len(ns) > MaxNameservers {
		extra := ns[MaxNameservers]
		v.reporter.Warn(diag.Loc(extra.Location()),
			fmt.Sprintf("more than %d nameservers; resolvers after the first %d may be ignored", MaxNameservers, MaxNameservers), "")
	}
	for _, a := range s.Accounts() {
		if n := len(a.GroupNames()); n > MaxGroups {
			v.failf(a.Groups[len(a.Groups)-1], herrors.CodeLimitExceeded,
				"user %s joins %d groups; at most %d are allowed", a.Name.name(), n, MaxGroups)
		}
	}
}

// network warns about network configuration that will not be used during
// installation.
func (v *validator) network() {
	s := v.script
	if s.networkEnabled() {
		return
	}
	for _, name := range []string{"netaddress", "netssid"} {
		if keys := s.many[name]; len(keys) > 0 {
			v.reporter.Warn(diag.Loc(keys[0].Location()),
				name+" is configured but networking is disabled during installation",
				"the configuration is still written to the target")
		}
	}
}
