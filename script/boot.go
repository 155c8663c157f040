package script

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/system"
)

// Boot loaders.
const (
	GrubBIOS     = "grub-bios"
	GrubEFI      = "grub-efi"
	GrubIEEE1275 = "grub-ieee1275"
)

// EFIBootID is the directory and NVRAM label of the installed loader.
const EFIBootID = "Adelie"

var archLoaders = map[string][]string{
	"x86":     {GrubBIOS, GrubEFI},
	"x86_64":  {GrubBIOS, GrubEFI},
	"aarch64": {GrubEFI},
	"armv7":   {GrubEFI},
	"riscv64": {GrubEFI},
	"ppc":     {GrubIEEE1275},
	"ppc64":   {GrubIEEE1275},
	"pmmac":   {GrubIEEE1275},
}

type efiTarget struct {
	platform string
	image    string
}

var efiTargets = map[string]efiTarget{
	"x86":     {"i386-efi", "grubia32.efi"},
	"x86_64":  {"x86_64-efi", "grubx64.efi"},
	"aarch64": {"arm64-efi", "grubaa64.efi"},
	"armv7":   {"arm-efi", "grubarm.efi"},
	"riscv64": {"riscv64-efi", "grubriscv64.efi"},
}

// Bootloader installs a boot loader to a device.
type Bootloader struct {
	keyBase
	device string
	loader string
}

func parseBootloader(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) > 2 {
		return nil, herrors.New(herrors.CodeParse, "bootloader requires a device and an optional loader")
	}
	if err := parseDevice(f[0]); err != nil {
		return nil, err
	}
	k := &Bootloader{keyBase: newBase(s, "bootloader", loc, value), device: f[0]}
	if len(f) == 2 && f[1] != "true" {
		k.loader = strings.ToLower(f[1])
	}
	return k, nil
}

// Device returns the device the loader is installed to.
func (k *Bootloader) Device() string { return k.device }

func (k *Bootloader) Validate(context.Context) error {
	arch := k.script.Architecture()
	loaders, ok := archLoaders[arch]
	if !ok {
		return k.errorf(herrors.CodeUnsupported, "no boot loader is available for %s", arch)
	}
	if k.loader != "" && !slices.Contains(loaders, k.loader) {
		return k.errorf(herrors.CodeValidation, "boot loader %s is not valid for %s; expected one of %s",
			k.loader, arch, strings.Join(loaders, ", "))
	}
	return k.validateBlockDevice(k.device)
}

// resolve returns the declared loader, or the default for the target
// architecture, preferring EFI when the host booted with it.
func (k *Bootloader) resolve(probe system.DeviceProbe) string {
	if k.loader != "" {
		return k.loader
	}
	loaders := archLoaders[k.script.Architecture()]
	if slices.Contains(loaders, GrubEFI) && probe.Exists("/sys/firmware/efi") {
		return GrubEFI
	}
	return loaders[0]
}

// mountFor returns the device declared for mountpoint, if any.
func (s *Script) mountFor(mountpoint string) (string, bool) {
	for _, k := range s.many["mount"] {
		if m := k.(*Mount); m.mountpoint == mountpoint { //nolint:forcetypeassert // collection holds one type
			return m.device, true
		}
	}
	return "", false
}

func (k *Bootloader) Execute(ctx context.Context, rt *Runtime) error {
	loader := k.resolve(rt.System.Probe)
	if err := rt.Run(ctx, apkAdd(rt, loader)); err != nil {
		return k.wrapf(err, herrors.CodeExecutionFailed, "cannot install %s", loader)
	}

	boot := rt.Path("/boot")
	var argv []string
	switch loader {
	case GrubBIOS:
		argv = []string{"grub-install", "--target=i386-pc", "--boot-directory=" + boot, k.device}
	case GrubIEEE1275:
		argv = []string{"grub-install", "--target=powerpc-ieee1275", "--boot-directory=" + boot, k.device}
	case GrubEFI:
		if err := k.installEFI(ctx, rt); err != nil {
			return err
		}
	}
	if argv != nil {
		if err := rt.Run(ctx, argv); err != nil {
			return k.wrapf(err, herrors.CodeExecutionFailed, "cannot install boot loader to %s", k.device)
		}
	}

	return k.wrapf(rt.Chroot(ctx, []string{"grub-mkconfig", "-o", "/boot/grub/grub.cfg"}),
		herrors.CodeExecutionFailed, "cannot generate boot menu")
}

func (k *Bootloader) installEFI(ctx context.Context, rt *Runtime) error {
	arch := k.script.Architecture()
	target, ok := efiTargets[arch]
	if !ok {
		return k.errorf(herrors.CodeUnsupported, "EFI is not supported on %s", arch)
	}

	err := rt.Run(ctx, []string{
		"grub-install", "--target=" + target.platform,
		"--efi-directory=" + rt.Path("/boot/efi"),
		"--boot-directory=" + rt.Path("/boot"),
		"--bootloader-id=" + EFIBootID, "--no-nvram",
	})
	if err != nil {
		return k.wrapf(err, herrors.CodeExecutionFailed, "cannot install EFI boot loader")
	}

	if err := k.writeEFIStub(ctx, rt); err != nil {
		return err
	}

	// Registering the loader in NVRAM is best effort: some firmware
	// refuses writes, and the loader is still reachable by the fallback path.
	esp, _ := k.script.mountFor("/boot/efi")
	err = rt.Run(ctx, []string{
		"efibootmgr", "--create", "--disk", k.device, "--part", strconv.Itoa(partitionNumber(esp)),
		"--label", EFIBootID, "--loader", `\EFI\` + EFIBootID + `\` + target.image,
	})
	if err != nil {
		rt.soft(diag.Loc(k.loc), "cannot register boot loader with firmware", err)
	}
	return nil
}

// writeEFIStub writes the configuration the EFI image reads, pointing at
// the filesystem holding /boot by UUID.
func (k *Bootloader) writeEFIStub(ctx context.Context, rt *Runtime) error {
	prefix := "/grub"
	dev, ok := k.script.mountFor("/boot")
	if !ok {
		dev, _ = k.script.mountFor("/")
		prefix = "/boot/grub"
	}
	id, err := rt.System.Probe.FilesystemUUID(ctx, dev)
	if err != nil {
		return k.wrapf(err, herrors.CodeExecutionFailed, "cannot determine UUID of %s", dev)
	}

	cfg := fmt.Sprintf("search --no-floppy --fs-uuid --set=dev %s\nset prefix=($dev)%s\nexport prefix\nconfigfile $prefix/grub.cfg\n",
		id, prefix)
	return k.wrapf(rt.writeFile("/boot/efi/EFI/"+EFIBootID+"/grub.cfg", []byte(cfg), 0o644),
		herrors.CodeExecutionFailed, "cannot write EFI boot configuration")
}

// partitionNumber returns the trailing partition number of a device node,
// or 1 if it has none.
func partitionNumber(dev string) int {
	i := len(dev)
	for i > 0 && dev[i-1] >= '0' && dev[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(dev[i:])
	if err != nil || n == 0 {
		return 1
	}
	return n
}
