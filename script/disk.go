package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/system"
)

// MaxPartitionIndex is the highest partition number accepted.
const MaxPartitionIndex = 128

func parseDevice(dev string) error {
	if !strings.HasPrefix(dev, "/dev/") || len(dev) == len("/dev/") {
		return herrors.Newf(herrors.CodeInvalidInput, "%q is not a device path", dev)
	}
	return nil
}

// validateBlockDevice fails if running in the install environment and
// device is not a block device on the host.
func (k *keyBase) validateBlockDevice(device string) error {
	probe := k.script.probe()
	if probe == nil || probe.IsBlockDevice(device) {
		return nil
	}
	return k.errorf(herrors.CodeNotFound, "%s is not a block device", device)
}

// PartitionDevice returns the device node of partition index on disk.
func PartitionDevice(disk string, index int) string {
	if last := disk[len(disk)-1]; last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", disk, index)
	}
	return fmt.Sprintf("%s%d", disk, index)
}

// DiskID asserts the identity of a disk before it is modified.
type DiskID struct {
	keyBase
	device string
	ident  string
}

func parseDiskID(s *Script, loc diag.Location, value string) (Key, error) {
	device, ident := splitFirst(value)
	if ident == "" {
		return nil, herrors.New(herrors.CodeParse, "diskid requires a device and an identification string")
	}
	if err := parseDevice(device); err != nil {
		return nil, err
	}
	return &DiskID{keyBase: newBase(s, "diskid", loc, value), device: device, ident: ident}, nil
}

// Device returns the disk being identified.
func (k *DiskID) Device() string { return k.device }

func (k *DiskID) Validate(context.Context) error {
	return k.validateBlockDevice(k.device)
}

func (k *DiskID) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.System.Probe.VerifyIdentity(ctx, k.device, k.ident), herrors.CodeExecutionFailed,
		"identity check of %s failed", k.device)
}

var labelTables = map[string]string{
	"gpt": "gpt",
	"mbr": "msdos",
	"apm": "mac",
}

// DiskLabel creates a new partition table, discarding the existing one.
type DiskLabel struct {
	keyBase
	device string
	table  string
}

func parseDiskLabel(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) != 2 {
		return nil, herrors.New(herrors.CodeParse, "disklabel requires a device and a label type")
	}
	if err := parseDevice(f[0]); err != nil {
		return nil, err
	}
	table, ok := labelTables[strings.ToLower(f[1])]
	if !ok {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "unknown disk label type %q; expected gpt, mbr or apm", f[1])
	}
	return &DiskLabel{keyBase: newBase(s, "disklabel", loc, value), device: f[0], table: table}, nil
}

// Device returns the disk being labelled.
func (k *DiskLabel) Device() string { return k.device }

// Table returns the parted name of the partition table type.
func (k *DiskLabel) Table() string { return k.table }

func (k *DiskLabel) Validate(context.Context) error {
	return k.validateBlockDevice(k.device)
}

func (k *DiskLabel) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.System.Volumes.Label(ctx, k.device, k.table), herrors.CodeExecutionFailed,
		"cannot create %s label on %s", k.table, k.device)
}

var partitionFlags = map[string]string{
	"boot": "boot",
	"esp":  "esp",
	"bios": "bios_grub",
}

// Partition creates a partition. Partitions on a disk are laid out one
// after the other in index order.
type Partition struct {
	keyBase
	device string
	index  int
	size   system.Size
	flag   string
}

func parsePartition(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) < 3 || len(f) > 4 {
		return nil, herrors.New(herrors.CodeParse, "partition requires a device, an index, a size and an optional type")
	}
	if err := parseDevice(f[0]); err != nil {
		return nil, err
	}
	index, err := strconv.Atoi(f[1])
	if err != nil || index < 1 || index > MaxPartitionIndex {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "partition index %q must be between 1 and %d", f[1], MaxPartitionIndex)
	}
	size, err := ParseSize(f[2])
	if err != nil {
		return nil, err
	}
	if size.Kind == system.SizeBytes && size.Bytes < system.MiB {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "partition size %q is smaller than 1M", f[2])
	}

	k := &Partition{keyBase: newBase(s, "partition", loc, value), device: f[0], index: index, size: size}
	if len(f) == 4 {
		flag, ok := partitionFlags[strings.ToLower(f[3])]
		if !ok {
			return nil, herrors.Newf(herrors.CodeInvalidInput, "unknown partition type %q; expected boot, esp or bios", f[3])
		}
		k.flag = flag
	}
	return k, nil
}

// Device returns the disk the partition is created on.
func (k *Partition) Device() string { return k.device }

// Index returns the partition number.
func (k *Partition) Index() int { return k.index }

// Size returns the requested size.
func (k *Partition) Size() system.Size { return k.size }

// Node returns the device node of the created partition.
func (k *Partition) Node() string { return PartitionDevice(k.device, k.index) }

func (k *Partition) Validate(context.Context) error {
	return k.validateBlockDevice(k.device)
}

// tableFor returns the partition table type declared for disk.
func (s *Script) tableFor(disk string) string {
	for _, k := range s.many["disklabel"] {
		if l := k.(*DiskLabel); l.device == disk { //nolint:forcetypeassert // collection holds one type
			return l.table
		}
	}
	return "gpt"
}

func (k *Partition) Execute(ctx context.Context, rt *Runtime) error {
	layout := rt.layout(k.device)
	if layout.filled {
		return k.errorf(herrors.CodeConflict, "partition %d follows a partition that fills %s", k.index, k.device)
	}

	p := system.Partition{
		Device: k.device,
		Index:  k.index,
		Table:  k.script.tableFor(k.device),
		Start:  layout.next,
	}
	if k.flag != "" {
		p.Flags = []string{k.flag}
	}

	switch k.size.Kind {
	case system.SizeFill:
		layout.filled = true
	case system.SizePercent:
		total, err := rt.System.Probe.DiskSize(ctx, k.device)
		if err != nil {
			return k.wrapf(err, herrors.CodeExecutionFailed, "cannot determine size of %s", k.device)
		}
		disk := total / system.MiB
		p.End = p.Start + disk*k.size.Percent/100
		if p.End >= disk {
			// parted rejects an end past the device; take the rest instead.
			p.End = 0
			layout.filled = true
		}
	case system.SizeBytes:
		p.End = p.Start + (k.size.Bytes+system.MiB-1)/system.MiB
	}
	layout.next = p.End

	return k.wrapf(rt.System.Volumes.Partition(ctx, p), herrors.CodeExecutionFailed,
		"cannot create partition %d on %s", k.index, k.device)
}
