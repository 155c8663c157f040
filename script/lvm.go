package script

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/system"
)

var lvmNameRe = regexp.MustCompile(`^[A-Za-z0-9+_.-]+$`)

// Substrings lvm(8) reserves for internal volumes.
var lvmReserved = []string{
	"_cdata", "_cmeta", "_corig", "_mlog", "_mimage", "_pmspare",
	"_rimage", "_rmeta", "_tdata", "_tmeta", "_vorigin",
}

func validLVMName(name string, volume bool) error {
	switch {
	case len(name) == 0 || len(name) > 127:
		return herrors.Newf(herrors.CodeInvalidInput, "LVM name %q must be 1 to 127 characters", name)
	case !lvmNameRe.MatchString(name):
		return herrors.Newf(herrors.CodeInvalidInput, "LVM name %q contains invalid characters", name)
	case name[0] == '-':
		return herrors.Newf(herrors.CodeInvalidInput, "LVM name %q may not start with a hyphen", name)
	case name == "." || name == "..":
		return herrors.Newf(herrors.CodeInvalidInput, "%q is not a valid LVM name", name)
	}
	for _, r := range lvmReserved {
		if strings.Contains(name, r) {
			return herrors.Newf(herrors.CodeInvalidInput, "LVM name %q contains reserved string %q", name, r)
		}
	}
	if volume && (strings.HasPrefix(name, "snapshot") || strings.HasPrefix(name, "pvmove")) {
		return herrors.Newf(herrors.CodeInvalidInput, "logical volume name %q uses a reserved prefix", name)
	}
	return nil
}

// LVMPhysical initializes a device as an LVM physical volume.
type LVMPhysical struct {
	keyBase
	device string
}

func parseLVMPhysical(s *Script, loc diag.Location, value string) (Key, error) {
	if err := parseDevice(value); err != nil {
		return nil, err
	}
	return &LVMPhysical{keyBase: newBase(s, "lvm_pv", loc, value), device: value}, nil
}

// Device returns the physical volume device.
func (k *LVMPhysical) Device() string { return k.device }

func (k *LVMPhysical) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.System.Volumes.CreatePV(ctx, k.device), herrors.CodeExecutionFailed,
		"cannot create physical volume on %s", k.device)
}

// LVMGroup creates a volume group on a physical volume.
type LVMGroup struct {
	keyBase
	pv    string
	group string
}

func parseLVMGroup(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) != 2 {
		return nil, herrors.New(herrors.CodeParse, "lvm_vg requires a physical volume and a group name")
	}
	if err := parseDevice(f[0]); err != nil {
		return nil, err
	}
	if err := validLVMName(f[1], false); err != nil {
		return nil, err
	}
	return &LVMGroup{keyBase: newBase(s, "lvm_vg", loc, value), pv: f[0], group: f[1]}, nil
}

// PhysicalVolume returns the device the group is created on.
func (k *LVMGroup) PhysicalVolume() string { return k.pv }

// Group returns the volume group name.
func (k *LVMGroup) Group() string { return k.group }

func (k *LVMGroup) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.System.Volumes.CreateVG(ctx, k.group, k.pv), herrors.CodeExecutionFailed,
		"cannot create volume group %s", k.group)
}

// LVMVolume creates a logical volume in a volume group.
type LVMVolume struct {
	keyBase
	group  string
	volume string
	size   system.Size
}

func parseLVMVolume(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) != 3 {
		return nil, herrors.New(herrors.CodeParse, "lvm_lv requires a group name, a volume name and a size")
	}
	if err := validLVMName(f[0], false); err != nil {
		return nil, err
	}
	if err := validLVMName(f[1], true); err != nil {
		return nil, err
	}
	size, err := ParseSize(f[2])
	if err != nil {
		return nil, err
	}
	if size.Kind == system.SizeBytes && size.Bytes == 0 {
		return nil, herrors.New(herrors.CodeInvalidInput, "logical volume size must be greater than zero")
	}
	return &LVMVolume{keyBase: newBase(s, "lvm_lv", loc, value), group: f[0], volume: f[1], size: size}, nil
}

// Group returns the volume group name.
func (k *LVMVolume) Group() string { return k.group }

// Volume returns the logical volume name.
func (k *LVMVolume) Volume() string { return k.volume }

// Node returns the device node of the created volume.
func (k *LVMVolume) Node() string { return "/dev/" + k.group + "/" + k.volume }

func (k *LVMVolume) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.System.Volumes.CreateLV(ctx, k.group, k.volume, k.size), herrors.CodeExecutionFailed,
		"cannot create logical volume %s/%s", k.group, k.volume)
}

// Encrypt formats a device as a LUKS container and opens it.
type Encrypt struct {
	keyBase
	device     string
	passphrase string
}

func parseEncrypt(s *Script, loc diag.Location, value string) (Key, error) {
	device, pass := splitFirst(value)
	if err := parseDevice(device); err != nil {
		return nil, err
	}
	// The passphrase is kept out of Value so it never reaches diagnostics.
	return &Encrypt{
		keyBase:    newBase(s, "encrypt", loc, device),
		device:     device,
		passphrase: pass,
	}, nil
}

// Device returns the device being encrypted.
func (k *Encrypt) Device() string { return k.device }

// MappedName returns the device-mapper name of the opened container.
func (k *Encrypt) MappedName() string { return path.Base(k.device) + "-crypt" }

// Node returns the device node of the opened container.
func (k *Encrypt) Node() string { return "/dev/mapper/" + k.MappedName() }

func (k *Encrypt) Execute(ctx context.Context, rt *Runtime) error {
	_, err := rt.System.Volumes.Encrypt(ctx, k.device, k.MappedName(), k.passphrase)
	return k.wrapf(err, herrors.CodeExecutionFailed, "cannot encrypt %s", k.device)
}
