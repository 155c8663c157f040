package system

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apparentlymart/go-shquot/shquot"
	"github.com/google/uuid"

	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
)

// fatSerial matches the volume serial blkid reports for FAT filesystems.
var fatSerial = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)

// LiveProbe queries the host through sysfs, udev and blkid.
type LiveProbe struct {
	run executor.Runner
}

var _ DeviceProbe = (*LiveProbe)(nil)

// NewLiveProbe creates a LiveProbe running its queries through run.
func NewLiveProbe(run executor.Runner) *LiveProbe {
	return &LiveProbe{run: run}
}

// Exists implements DeviceProbe.
func (p *LiveProbe) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsBlockDevice implements DeviceProbe.
func (p *LiveProbe) IsBlockDevice(path string) bool {
	return isBlockDevice(path)
}

// VerifyIdentity implements DeviceProbe.
func (p *LiveProbe) VerifyIdentity(ctx context.Context, device, want string) error {
	res, err := p.run.Run(ctx, []string{"udevadm", "info", "--query=property", "--name=" + device})
	if err != nil {
		return herrors.Wrapf(err, herrors.CodeNotFound, "cannot query %s", device)
	}
	props := parseProperties(res.Stdout)
	for _, key := range []string{"ID_SERIAL", "ID_SERIAL_SHORT", "ID_MODEL"} {
		if v := props[key]; v != "" && strings.Contains(v, want) {
			return nil
		}
	}
	return herrors.Newf(herrors.CodeConflict, "%s does not match %q (serial %q, model %q)",
		device, want, props["ID_SERIAL"], props["ID_MODEL"])
}

func parseProperties(out string) map[string]string {
	props := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if ok {
			props[k] = v
		}
	}
	return props
}

// DiskSize implements DeviceProbe.
func (p *LiveProbe) DiskSize(ctx context.Context, device string) (uint64, error) {
	res, err := p.run.Run(ctx, []string{"blockdev", "--getsize64", device})
	if err != nil {
		return 0, herrors.Wrapf(err, herrors.CodeNotFound, "cannot read size of %s", device)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(res.Stdout), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size of %s: %w", device, err)
	}
	return n, nil
}

func (p *LiveProbe) blkid(ctx context.Context, tag, device string) (string, error) {
	res, err := p.run.Run(ctx, []string{"blkid", "-s", tag, "-o", "value", device})
	if err != nil {
		return "", herrors.Wrapf(err, herrors.CodeNotFound, "blkid %s", device)
	}
	v := strings.TrimSpace(res.Stdout)
	if v == "" {
		return "", herrors.Newf(herrors.CodeNotFound, "%s has no %s", device, tag)
	}
	return v, nil
}

// FilesystemUUID implements DeviceProbe.
func (p *LiveProbe) FilesystemUUID(ctx context.Context, device string) (string, error) {
	v, err := p.blkid(ctx, "UUID", device)
	if err != nil {
		return "", err
	}
	if fatSerial.MatchString(v) {
		return v, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return "", herrors.Wrapf(err, herrors.CodeInvalidInput, "%s reports malformed UUID %q", device, v)
	}
	return id.String(), nil
}

// FilesystemType implements DeviceProbe.
func (p *LiveProbe) FilesystemType(ctx context.Context, device string) (string, error) {
	return p.blkid(ctx, "TYPE", device)
}

// Interface implements DeviceProbe.
func (p *LiveProbe) Interface(_ context.Context, name string) (InterfaceInfo, error) {
	if _, err := net.InterfaceByName(name); err != nil {
		return InterfaceInfo{}, nil //nolint:nilerr // an unknown interface is reported, not an error.
	}
	_, err := os.Stat("/sys/class/net/" + name + "/wireless")
	return InterfaceInfo{Exists: true, Wireless: err == nil}, nil
}

// Settle implements DeviceProbe.
func (p *LiveProbe) Settle(ctx context.Context) error {
	return settle(ctx, p.run)
}

const partprobeRetries = 3

func settle(ctx context.Context, run executor.Runner) error {
	if _, err := run.Run(ctx, []string{"udevadm", "settle"}); err != nil {
		return herrors.Wrap(err, herrors.CodeExecutionFailed, "udevadm settle")
	}
	// The kernel may still hold the old table briefly after parted exits.
	_, err := run.Run(ctx, []string{"partprobe"},
		executor.WithRetry(partprobeRetries, time.Second),
		executor.WithRetryCondition(func(err error) bool {
			var cerr *executor.CommandError
			return errors.As(err, &cerr) && cerr.ExitCode > 0
		}))
	if err != nil {
		return herrors.Wrap(err, herrors.CodeExecutionFailed, "partprobe")
	}
	return nil
}

// DefaultSimulatedDiskSize is the disk size SimulatedProbe reports.
const DefaultSimulatedDiskSize = 64 * GiB

// SimulatedProbe answers every query optimistically and describes the
// checks it would have made through its runner.
type SimulatedProbe struct {
	run executor.Runner
	// NominalSize is reported as the size of every disk.
	NominalSize uint64
}

var _ DeviceProbe = (*SimulatedProbe)(nil)

// NewSimulatedProbe creates a SimulatedProbe.
func NewSimulatedProbe(run executor.Runner) *SimulatedProbe {
	return &SimulatedProbe{run: run, NominalSize: DefaultSimulatedDiskSize}
}

// Exists implements DeviceProbe.
func (p *SimulatedProbe) Exists(string) bool { return true }

// IsBlockDevice implements DeviceProbe.
func (p *SimulatedProbe) IsBlockDevice(string) bool { return true }

// VerifyIdentity implements DeviceProbe.
func (p *SimulatedProbe) VerifyIdentity(ctx context.Context, device, want string) error {
	query := shquot.POSIXShell([]string{"udevadm", "info", "--query=property", "--name=" + device})
	check := shquot.POSIXShell([]string{"grep", "-qF", want})
	_, err := p.run.Run(ctx, []string{"sh", "-c", query + " | " + check})
	return err
}

// DiskSize implements DeviceProbe.
func (p *SimulatedProbe) DiskSize(context.Context, string) (uint64, error) {
	return p.NominalSize, nil
}

// FilesystemUUID implements DeviceProbe. The UUID is derived from the
// device name so output is stable between runs.
func (p *SimulatedProbe) FilesystemUUID(_ context.Context, device string) (string, error) {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("hscript:"+device)).String(), nil
}

// FilesystemType implements DeviceProbe.
func (p *SimulatedProbe) FilesystemType(context.Context, string) (string, error) {
	return "auto", nil
}

// Interface implements DeviceProbe.
func (p *SimulatedProbe) Interface(context.Context, string) (InterfaceInfo, error) {
	return InterfaceInfo{Exists: true, Wireless: true}, nil
}

// Settle implements DeviceProbe.
func (p *SimulatedProbe) Settle(ctx context.Context) error {
	return settle(ctx, p.run)
}
