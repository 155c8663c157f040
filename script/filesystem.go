package script

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/fs"
	"github.com/horizon-installer/hscript/system"
)

// FstabPath is the filesystem table in the target.
const FstabPath = "/etc/fstab"

// Filesystem creates a filesystem on a device.
type Filesystem struct {
	keyBase
	device string
	fstype string
}

func parseFilesystem(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) != 2 {
		return nil, herrors.New(herrors.CodeParse, "fs requires a device and a filesystem type")
	}
	if err := parseDevice(f[0]); err != nil {
		return nil, err
	}
	fstype := strings.ToLower(f[1])
	if !slices.Contains(system.FilesystemTypes(), fstype) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "unknown filesystem type %q; expected one of %s",
			f[1], strings.Join(system.FilesystemTypes(), ", "))
	}
	return &Filesystem{keyBase: newBase(s, "fs", loc, value), device: f[0], fstype: fstype}, nil
}

// Device returns the device being formatted.
func (k *Filesystem) Device() string { return k.device }

// Type returns the filesystem type.
func (k *Filesystem) Type() string { return k.fstype }

func (k *Filesystem) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.System.Volumes.Format(ctx, k.device, k.fstype), herrors.CodeExecutionFailed,
		"cannot create %s filesystem on %s", k.fstype, k.device)
}

// fsTypeOf returns the filesystem type declared for device, or "auto".
func (s *Script) fsTypeOf(device string) string {
	for _, k := range s.many["fs"] {
		if f := k.(*Filesystem); f.device == device { //nolint:forcetypeassert // collection holds one type
			return f.fstype
		}
	}
	return "auto"
}

// Mount mounts a device in the target and records it in the target's
// filesystem table.
type Mount struct {
	keyBase
	device     string
	mountpoint string
	options    string
}

func parseMount(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) < 2 || len(f) > 3 {
		return nil, herrors.New(herrors.CodeParse, "mount requires a device, a mountpoint and optional mount options")
	}
	if err := parseDevice(f[0]); err != nil {
		return nil, err
	}
	if !fs.IsAbs(f[1]) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "mountpoint %q must be an absolute, canonical path", f[1])
	}
	k := &Mount{keyBase: newBase(s, "mount", loc, value), device: f[0], mountpoint: f[1], options: "defaults"}
	if len(f) == 3 {
		k.options = f[2]
	}
	return k, nil
}

// Device returns the device being mounted.
func (k *Mount) Device() string { return k.device }

// Mountpoint returns the mountpoint within the target.
func (k *Mount) Mountpoint() string { return k.mountpoint }

// Options returns the mount options.
func (k *Mount) Options() string { return k.options }

// FstabLine returns the filesystem table entry for the mount.
func (k *Mount) FstabLine() string {
	return k.fstabEntry(k.script.fsTypeOf(k.device))
}

func (k *Mount) fstabEntry(fstype string) string {
	passno := 2
	if k.mountpoint == "/" {
		passno = 1
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t0\t%d\n", k.device, k.mountpoint, fstype, k.options, passno)
}

// fsType returns the declared filesystem type of the device, asking the
// device itself when nothing in the script formats it.
func (k *Mount) fsType(ctx context.Context, rt *Runtime) (string, error) {
	fstype := k.script.fsTypeOf(k.device)
	if fstype != "auto" || rt.Flags.Has(ImageOnly) {
		return fstype, nil
	}
	probed, err := rt.System.Probe.FilesystemType(ctx, k.device)
	if err != nil {
		return "", k.wrapf(err, herrors.CodeExecutionFailed, "cannot determine filesystem type of %s", k.device)
	}
	if probed == "" {
		return "", k.errorf(herrors.CodeExecutionFailed, "%s has no filesystem", k.device)
	}
	return probed, nil
}

func (k *Mount) Execute(ctx context.Context, rt *Runtime) error {
	dir := rt.Path(k.mountpoint)
	if err := rt.System.Files.MkdirAll(dir, 0o755); err != nil {
		return k.wrapf(err, herrors.CodeExecutionFailed, "cannot create mountpoint %s", dir)
	}
	fstype, err := k.fsType(ctx, rt)
	if err != nil {
		return err
	}

	if !rt.Flags.Has(ImageOnly) {
		err := rt.System.Mounts.Mount(ctx, k.device, dir, fstype, k.options)
		if err != nil {
			return k.wrapf(err, herrors.CodeExecutionFailed, "cannot mount %s on %s", k.device, k.mountpoint)
		}
	}

	err = rt.System.Files.AppendFile(rt.Path(FstabPath), []byte(k.fstabEntry(fstype)), 0o644)
	return k.wrapf(err, herrors.CodeExecutionFailed, "cannot write filesystem table entry for %s", k.mountpoint)
}
