//go:build linux

package system

import (
	"context"
	"strings"

	"golang.org/x/sys/unix"

	herrors "github.com/horizon-installer/hscript/errors"
)

var mountFlags = map[string]uintptr{
	"ro":         unix.MS_RDONLY,
	"nosuid":     unix.MS_NOSUID,
	"nodev":      unix.MS_NODEV,
	"noexec":     unix.MS_NOEXEC,
	"sync":       unix.MS_SYNCHRONOUS,
	"noatime":    unix.MS_NOATIME,
	"nodiratime": unix.MS_NODIRATIME,
	"relatime":   unix.MS_RELATIME,
	"dirsync":    unix.MS_DIRSYNC,
}

// MountOptions splits an fstab option string into mount flags and the
// filesystem-specific data string.
func MountOptions(options string) (uintptr, string) {
	var flags uintptr
	var data []string
	for _, opt := range strings.Split(options, ",") {
		switch opt {
		case "", "defaults", "rw", "auto", "noauto", "nofail", "user", "nouser":
			continue
		}
		if f, ok := mountFlags[opt]; ok {
			flags |= f
			continue
		}
		data = append(data, opt)
	}
	return flags, strings.Join(data, ",")
}

// Mount implements MountOps.
func (m *KernelMounts) Mount(_ context.Context, source, target, fstype, options string) error {
	flags, data := MountOptions(options)
	m.logger.Debug("mounting", "source", source, "target", target, "type", fstype, "flags", flags)
	if err := unix.Mount(source, target, fstype, flags, data); err != nil {
		return herrors.Wrapf(err, herrors.CodeExecutionFailed, "mount %s on %s", source, target)
	}
	return nil
}

// BindMount implements MountOps.
func (m *KernelMounts) BindMount(_ context.Context, source, target string) error {
	m.logger.Debug("bind mounting", "source", source, "target", target)
	if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return herrors.Wrapf(err, herrors.CodeExecutionFailed, "bind mount %s on %s", source, target)
	}
	return nil
}
