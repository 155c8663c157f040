// Package system defines the capabilities the script engine needs from the
// machine it installs on: probing devices, managing partitions, volumes
// and filesystems, mounting, and downloading files. Each capability has a
// live implementation and a simulated one that prints the equivalent
// shell commands, so the engine is written once against the interfaces.
package system

import (
	"context"
	"io"
	"log/slog"

	"github.com/horizon-installer/hscript/executor"
	"github.com/horizon-installer/hscript/fs"
	"github.com/horizon-installer/hscript/fs/billy"
	"github.com/horizon-installer/hscript/fs/shell"
)

// InterfaceInfo describes a network interface on the install host.
type InterfaceInfo struct {
	Exists   bool
	Wireless bool
}

// DeviceProbe answers questions about devices on the install host.
type DeviceProbe interface {
	// Exists reports whether path exists on the host.
	Exists(path string) bool
	// IsBlockDevice reports whether path is a block device node.
	IsBlockDevice(path string) bool
	// VerifyIdentity fails unless the disk's serial or model contains want.
	VerifyIdentity(ctx context.Context, device, want string) error
	// DiskSize returns the size of a block device in bytes.
	DiskSize(ctx context.Context, device string) (uint64, error)
	// FilesystemUUID returns the filesystem UUID of a formatted device.
	FilesystemUUID(ctx context.Context, device string) (string, error)
	// FilesystemType returns the filesystem type of a formatted device.
	FilesystemType(ctx context.Context, device string) (string, error)
	// Interface looks up a network interface by name.
	Interface(ctx context.Context, name string) (InterfaceInfo, error)
	// Settle waits for device events and re-reads partition tables.
	Settle(ctx context.Context) error
}

// VolumeManager creates partition tables, partitions, LVM objects,
// encrypted containers and filesystems.
type VolumeManager interface {
	Label(ctx context.Context, device, table string) error
	Partition(ctx context.Context, p Partition) error
	CreatePV(ctx context.Context, device string) error
	CreateVG(ctx context.Context, name, pv string) error
	CreateLV(ctx context.Context, vg, name string, size Size) error
	// Encrypt formats device as LUKS and opens it as name, returning the
	// path of the mapped device.
	Encrypt(ctx context.Context, device, name, passphrase string) (string, error)
	Format(ctx context.Context, device, fstype string) error
}

// MountOps mounts filesystems.
type MountOps interface {
	Mount(ctx context.Context, source, target, fstype, options string) error
	BindMount(ctx context.Context, source, target string) error
}

// Fetcher downloads a remote file to a local path.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) error
}

// System bundles every capability an execution run uses.
type System struct {
	Runner    executor.Runner
	Files     fs.Filesystem
	Probe     DeviceProbe
	Volumes   VolumeManager
	Mounts    MountOps
	Fetcher   Fetcher
	Simulated bool
}

// Live returns a System acting on the host.
func Live(logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	// Tools whose output is parsed must not be localized.
	run := executor.NewLocal(logger, executor.WithEnvVar("LC_ALL", "C"), executor.WithCapture(true, true, false))
	files := billy.NewBaseOSFS()
	return &System{
		Runner:  run,
		Files:   files,
		Probe:   NewLiveProbe(run),
		Volumes: NewTools(run, true, logger),
		Mounts:  NewKernelMounts(logger),
		Fetcher: NewHTTPFetcher(files, logger),
	}
}

// Simulated returns a System that writes the shell equivalent of every
// side effect to w. Reads are served by base, which may be nil.
func Simulated(w io.Writer, base fs.Filesystem) *System {
	run := executor.NewSimulator(w)
	return &System{
		Runner:    run,
		Files:     shell.New(w, base),
		Probe:     NewSimulatedProbe(run),
		Volumes:   NewTools(run, false, nil),
		Mounts:    NewCommandMounts(run),
		Fetcher:   NewCommandFetcher(run),
		Simulated: true,
	}
}

// Recording returns a System for tests: commands go to rec, files to an
// in-memory tree.
func Recording(rec *executor.Recorder) (*System, *billy.FS) {
	files := billy.NewInMemoryFS()
	return &System{
		Runner:  rec,
		Files:   files,
		Probe:   NewSimulatedProbe(rec),
		Volumes: NewTools(rec, false, nil),
		Mounts:  NewCommandMounts(rec),
		Fetcher: NewCommandFetcher(rec),
	}, files
}
