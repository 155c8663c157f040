package system

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
)

// Partition describes one partition to create. Start and End are in MiB;
// an End of zero extends the partition to the end of the disk.
type Partition struct {
	Device string
	Index  int
	Table  string // "gpt" or "msdos"
	Start  uint64
	End    uint64
	Flags  []string
}

// mkfsCommands maps a filesystem type to the argv that creates it.
var mkfsCommands = map[string][]string{
	"ext2":  {"mkfs.ext2", "-F"},
	"ext3":  {"mkfs.ext3", "-F"},
	"ext4":  {"mkfs.ext4", "-F"},
	"jfs":   {"mkfs.jfs", "-q"},
	"vfat":  {"mkfs.vfat", "-F", "32"},
	"xfs":   {"mkfs.xfs", "-f"},
	"btrfs": {"mkfs.btrfs", "-f"},
	"hfs+":  {"mkfs.hfsplus"},
}

// Tools implements VolumeManager by driving parted, the LVM tools,
// cryptsetup and mkfs through a Runner. When query is set, existing LVM
// objects are looked up first so re-running a script is idempotent.
type Tools struct {
	run    executor.Runner
	query  bool
	logger *slog.Logger
}

var _ VolumeManager = (*Tools)(nil)

// NewTools creates a Tools. query should be false for runners that do not
// really execute commands.
func NewTools(run executor.Runner, query bool, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tools{run: run, query: query, logger: logger}
}

func (t *Tools) exec(ctx context.Context, argv []string, opts ...executor.Option) error {
	if _, err := t.run.Run(ctx, argv, opts...); err != nil {
		return herrors.Wrapf(err, herrors.CodeExecutionFailed, "%s", argv[0])
	}
	return nil
}

// Label implements VolumeManager.
func (t *Tools) Label(ctx context.Context, device, table string) error {
	return t.exec(ctx, []string{"parted", "-s", device, "mklabel", table})
}

// PartedArgs returns the parted invocations that create p.
func PartedArgs(p Partition) [][]string {
	name := "primary"
	if p.Table == "gpt" {
		name = fmt.Sprintf("part%d", p.Index)
	}
	end := "100%"
	if p.End != 0 {
		end = fmt.Sprintf("%dMiB", p.End)
	}
	cmds := [][]string{{
		"parted", "-s", "-a", "optimal", p.Device,
		"unit", "MiB", "mkpart", name, fmt.Sprintf("%dMiB", p.Start), end,
	}}
	for _, flag := range p.Flags {
		cmds = append(cmds, []string{"parted", "-s", p.Device, "set", strconv.Itoa(p.Index), flag, "on"})
	}
	return cmds
}

// Partition implements VolumeManager.
func (t *Tools) Partition(ctx context.Context, p Partition) error {
	for _, argv := range PartedArgs(p) {
		if err := t.exec(ctx, argv); err != nil {
			return err
		}
	}
	return nil
}

// CreatePV implements VolumeManager.
func (t *Tools) CreatePV(ctx context.Context, device string) error {
	if t.query {
		if _, err := t.run.Run(ctx, []string{"pvs", "--noheadings", device}); err == nil {
			t.logger.Debug("physical volume exists", "device", device)
			return nil
		}
	}
	return t.exec(ctx, []string{"pvcreate", "--force", device})
}

// CreateVG implements VolumeManager. An existing group is accepted only if
// it already lives on pv.
func (t *Tools) CreateVG(ctx context.Context, name, pv string) error {
	if t.query {
		res, err := t.run.Run(ctx, []string{"vgs", "--noheadings", "-o", "pv_name", name})
		if err == nil {
			for _, line := range strings.Split(res.Stdout, "\n") {
				if strings.TrimSpace(line) == pv {
					t.logger.Debug("volume group exists", "name", name, "pv", pv)
					return nil
				}
			}
			return herrors.Newf(herrors.CodeConflict,
				"volume group %s already exists and does not use %s", name, pv)
		}
	}
	return t.exec(ctx, []string{"vgcreate", name, pv})
}

// LVCreateArgs returns the lvcreate invocation for a volume of the given size.
func LVCreateArgs(vg, name string, size Size) []string {
	argv := []string{"lvcreate", "--yes", "-n", name}
	switch size.Kind {
	case SizePercent:
		argv = append(argv, "-l", fmt.Sprintf("%d%%VG", size.Percent))
	case SizeFill:
		argv = append(argv, "-l", "100%FREE")
	default:
		argv = append(argv, "-L", fmt.Sprintf("%dB", size.Bytes))
	}
	return append(argv, vg)
}

// CreateLV implements VolumeManager.
func (t *Tools) CreateLV(ctx context.Context, vg, name string, size Size) error {
	if t.query {
		if _, err := t.run.Run(ctx, []string{"lvs", "--noheadings", vg + "/" + name}); err == nil {
			t.logger.Debug("logical volume exists", "vg", vg, "name", name)
			return nil
		}
	}
	return t.exec(ctx, LVCreateArgs(vg, name, size))
}

// Encrypt implements VolumeManager. Without a passphrase cryptsetup prompts
// on the terminal.
func (t *Tools) Encrypt(ctx context.Context, device, name, passphrase string) (string, error) {
	format := []string{"cryptsetup", "luksFormat", "--batch-mode", device}
	open := []string{"cryptsetup", "luksOpen", device, name}
	opt := executor.Interactive()
	if passphrase != "" {
		format = []string{"cryptsetup", "luksFormat", "--batch-mode", "--key-file", "-", device}
		open = []string{"cryptsetup", "luksOpen", "--key-file", "-", device, name}
		opt = executor.WithInput(passphrase)
	}
	if err := t.exec(ctx, format, opt); err != nil {
		return "", err
	}
	if err := t.exec(ctx, open, opt); err != nil {
		return "", err
	}
	return path.Join("/dev/mapper", name), nil
}

// Format implements VolumeManager.
func (t *Tools) Format(ctx context.Context, device, fstype string) error {
	base, ok := mkfsCommands[fstype]
	if !ok {
		return herrors.Newf(herrors.CodeUnsupported, "unsupported filesystem type %q", fstype)
	}
	argv := append(append([]string{}, base...), device)
	return t.exec(ctx, argv)
}

// FilesystemTypes returns the filesystem types Format accepts.
func FilesystemTypes() []string {
	return []string{"btrfs", "ext2", "ext3", "ext4", "hfs+", "jfs", "vfat", "xfs"}
}
