package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
	"github.com/horizon-installer/hscript/fs/billy"
	"github.com/horizon-installer/hscript/system"
)

type run struct {
	script *Script
	rec    *executor.Recorder
	files  *billy.FS
	stream *bytes.Buffer
	rep    *diag.Reporter
}

func newRun(t *testing.T, text string, opts ...Option) *run {
	t.Helper()
	rec := executor.NewRecorder()
	sys, files := system.Recording(rec)
	stream := &bytes.Buffer{}
	rep := diag.NewReporter(stream)
	opts = append([]Option{WithSystem(sys)}, opts...)
	opts = append(opts, WithReporter(rep))
	s, err := LoadReader(strings.NewReader(text), "installfile", opts...)
	require.NoError(t, err, "diagnostics: %v", messages(rep, diag.SeverityError))
	return &run{script: s, rec: rec, files: files, stream: stream, rep: rep}
}

func (r *run) execute(t *testing.T) error {
	t.Helper()
	return r.script.Execute(context.Background())
}

func (r *run) read(t *testing.T, p string) string {
	t.Helper()
	data, err := r.files.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

// index returns the position of the first recorded command starting with
// prefix, failing the test if there is none.
func (r *run) index(t *testing.T, prefix string) int {
	t.Helper()
	for i, line := range r.rec.Lines() {
		if strings.HasPrefix(line, prefix) {
			return i
		}
	}
	t.Fatalf("no command starting with %q in:\n%s", prefix, strings.Join(r.rec.Lines(), "\n"))
	return -1
}

// assertOrder checks that the commands starting with each prefix ran in
// the given order.
func (r *run) assertOrder(t *testing.T, prefixes ...string) {
	t.Helper()
	for i := 1; i < len(prefixes); i++ {
		assert.Less(t, r.index(t, prefixes[i-1]), r.index(t, prefixes[i]),
			"%q should run before %q", prefixes[i-1], prefixes[i])
	}
}

const desktop = `network true
hostname box.example.com
kernel easy-kernel
disklabel /dev/sda gpt
partition /dev/sda 2 fill
partition /dev/sda 1 512M esp
fs /dev/sda1 vfat
fs /dev/sda2 ext4
mount /dev/sda1 /boot/efi
mount /dev/sda2 /
netaddress eth0 dhcp
nameserver 9.9.9.9
pkginstall vim
username alice
userpw alice $6$saltsalt$0123456789abcdef
usergroups alice users,wheel
svcenable sshd
`

func TestExecuteOrder(t *testing.T) {
	r := newRun(t, desktop)
	require.NoError(t, r.files.WriteFile("/target/etc/init.d/sshd", []byte("#!/sbin/openrc-run\n"), 0o755))
	require.NoError(t, r.execute(t))

	r.assertOrder(t,
		"udevadm settle",
		"parted -s /dev/sda mklabel gpt",
		"parted -s -a optimal /dev/sda unit MiB mkpart part1 1MiB 513MiB",
		"parted -s /dev/sda set 1 esp on",
		"parted -s -a optimal /dev/sda unit MiB mkpart part2 513MiB 100%",
		"mkfs.vfat -F 32 /dev/sda1",
		"mkfs.ext4 -F /dev/sda2",
		"mount -t ext4 /dev/sda2 /target",
		"mount -t vfat /dev/sda1 /target/boot/efi",
		"mount --rbind /dev /target/dev",
		"curl -fsSL --retry 3 -o /target/etc/apk/keys/packages@adelielinux.org.pub",
		"apk --root /target --initdb add",
		"apk --root /target add adelie-base openrc shadow netifrc vim",
		"apk --root /target add easy-kernel",
		"usermod -R /target -L root",
		"useradd -R /target -m -U alice",
		"chpasswd -R /target -e",
		"usermod -R /target -a -G users,wheel alice",
	)

	call, ok := r.rec.Find("chpasswd")
	require.True(t, ok)
	assert.Equal(t, "alice:$6$saltsalt$0123456789abcdef\n", call.Options.Input)

	assert.Equal(t, "box\n", r.read(t, "/target/etc/hostname"))
	assert.Equal(t, "/dev/sda2\t/\text4\tdefaults\t0\t1\n/dev/sda1\t/boot/efi\tvfat\tdefaults\t0\t2\n",
		r.read(t, "/target/etc/fstab"))
	assert.Equal(t, DistfilesURL+"/stable/system\n"+DistfilesURL+"/stable/user\n",
		r.read(t, "/target/etc/apk/repositories"))
	assert.Equal(t, hostArch()+"\n", r.read(t, "/target/etc/apk/arch"))

	net := r.read(t, "/target/etc/conf.d/net")
	assert.Contains(t, net, `dns_domain_lo="example.com"`)
	assert.Contains(t, net, `config_eth0="dhcp"`)
	assert.Contains(t, r.read(t, "/target/etc/resolv.conf.head"), "nameserver 9.9.9.9\n")

	link, err := r.files.Readlink("/target/etc/localtime")
	require.NoError(t, err)
	assert.Equal(t, "/usr/share/zoneinfo/UTC", link)

	link, err = r.files.Readlink("/target/bin")
	require.NoError(t, err)
	assert.Equal(t, "usr/bin", link)

	link, err = r.files.Readlink("/target/etc/runlevels/default/sshd")
	require.NoError(t, err)
	assert.Equal(t, "/etc/init.d/sshd", link)

	stream := r.stream.String()
	last := -1
	for _, p := range []string{PhaseValidate, PhaseDisk, PhasePreMetadata, PhaseNet, PhasePkgDB, PhasePostMetadata} {
		start := strings.Index(stream, "\tstep-start\t"+p+"\n")
		end := strings.Index(stream, "\tstep-end\t"+p+"\n")
		require.GreaterOrEqual(t, start, 0, "missing step-start for %s", p)
		assert.Greater(t, end, start)
		assert.Greater(t, start, last)
		last = end
	}
}

func TestExecuteMountsParentsFirst(t *testing.T) {
	tests := []struct {
		name   string
		mounts string
		want   []string
	}{
		{
			name:   "child declared first",
			mounts: "mount /dev/sda4 /var/log\nmount /dev/sda3 /var\n",
			want:   []string{"/target", "/target/var", "/target/var/log"},
		},
		{
			name:   "deep nesting in reverse",
			mounts: "mount /dev/sda6 /srv/data/cache\nmount /dev/sda5 /srv/data\nmount /dev/sda4 /srv\n",
			want:   []string{"/target", "/target/srv", "/target/srv/data", "/target/srv/data/cache"},
		},
		{
			name:   "sibling with a shared prefix",
			mounts: "mount /dev/sda4 /var/lib\nmount /dev/sda5 /var-cache\nmount /dev/sda3 /var\n",
			want:   []string{"/target", "/target/var", "/target/var/lib"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRun(t, minimal+tt.mounts)
			require.NoError(t, r.execute(t))

			var got []string
			for _, c := range r.rec.Calls {
				if c.Argv[0] == "mount" && c.Argv[1] == "-t" {
					got = append(got, c.Argv[len(c.Argv)-1])
				}
			}
			var order []string
			for _, p := range got {
				if slices.Contains(tt.want, p) {
					order = append(order, p)
				}
			}
			assert.Equal(t, tt.want, order)
		})
	}
}

func TestExecuteMissingInitScriptIsSoft(t *testing.T) {
	r := newRun(t, minimal+"svcenable sshd\n")
	require.NoError(t, r.execute(t))

	warnings := messages(r.rep, diag.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "installfile:5: service sshd has no init script")
	ok, err := r.files.Exists("/target/etc/runlevels/default/sshd")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecuteStatic(t *testing.T) {
	text := strings.Replace(minimal, "hostname box", "hostname box.example.com", 1) +
		"netconfigtype eni\nnetaddress eth0 static 192.168.1.5 24 192.168.1.1\nnameserver 192.168.1.1\n"
	r := newRun(t, text)
	require.NoError(t, r.files.WriteFile("/target/etc/resolv.conf", []byte("nameserver 10.0.0.1\n"), 0o644))
	require.NoError(t, r.execute(t))

	eni := r.read(t, "/target/etc/network/interfaces")
	assert.Contains(t, eni, "iface eth0 inet static")
	assert.Contains(t, eni, "address 192.168.1.5/24")

	resolv := r.read(t, "/target/etc/resolv.conf")
	assert.Contains(t, resolv, "domain example.com\n")
	assert.Contains(t, resolv, "nameserver 192.168.1.1\n")
	assert.Equal(t, "nameserver 10.0.0.1\n", r.read(t, "/target/etc/resolv.conf.old"))

	r.index(t, "apk --root /target add adelie-base openrc shadow ifupdown")
}

func TestExecutePartitionSizes(t *testing.T) {
	r := newRun(t, minimal+"partition /dev/sdb 1 50%\npartition /dev/sdb 2 1G\npartition /dev/sdb 3 fill\n")
	require.NoError(t, r.execute(t))

	half := system.DefaultSimulatedDiskSize / system.MiB / 2
	r.assertOrder(t,
		"parted -s -a optimal /dev/sdb unit MiB mkpart part1 1MiB "+mib(1+half),
		"parted -s -a optimal /dev/sdb unit MiB mkpart part2 "+mib(1+half)+" "+mib(1+half+1024),
		"parted -s -a optimal /dev/sdb unit MiB mkpart part3 "+mib(1+half+1024)+" 100%",
	)
}

func TestExecutePartitionPercentStopsAtDiskEnd(t *testing.T) {
	half := system.DefaultSimulatedDiskSize / system.MiB / 2
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "whole disk",
			script: "partition /dev/sdb 1 100%\n",
			want:   []string{"parted -s -a optimal /dev/sdb unit MiB mkpart part1 1MiB 100%"},
		},
		{
			name:   "two halves",
			script: "partition /dev/sdb 1 50%\npartition /dev/sdb 2 50%\n",
			want: []string{
				"parted -s -a optimal /dev/sdb unit MiB mkpart part1 1MiB " + mib(1+half),
				"parted -s -a optimal /dev/sdb unit MiB mkpart part2 " + mib(1+half) + " 100%",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRun(t, minimal+tt.script)
			require.NoError(t, r.execute(t))
			for _, want := range tt.want {
				r.index(t, want)
			}
			r.assertOrder(t, tt.want...)
			for _, line := range r.rec.Lines() {
				assert.NotContains(t, line, mib(system.DefaultSimulatedDiskSize/system.MiB+1))
			}
		})
	}
}

type typedProbe struct {
	*system.SimulatedProbe
	types map[string]string
}

func (p typedProbe) FilesystemType(_ context.Context, device string) (string, error) {
	t, ok := p.types[device]
	if !ok {
		return "", errors.New("blkid: no TYPE")
	}
	return t, nil
}

func TestExecuteMountProbesUndeclaredFilesystem(t *testing.T) {
	rec := executor.NewRecorder()
	sys, files := system.Recording(rec)
	sys.Probe = typedProbe{
		SimulatedProbe: system.NewSimulatedProbe(rec),
		types:          map[string]string{"/dev/sda2": "xfs"},
	}
	load := func(t *testing.T, text string) *Script {
		t.Helper()
		s, err := LoadReader(strings.NewReader(text), "installfile", WithSystem(sys), WithReporter(diag.NewReporter(nil)))
		require.NoError(t, err)
		return s
	}

	t.Run("preformatted", func(t *testing.T) {
		require.NoError(t, load(t, minimal).Execute(context.Background()))
		_, ok := rec.Find("mount -t xfs /dev/sda2 /target")
		assert.True(t, ok, "commands:\n%s", strings.Join(rec.Lines(), "\n"))
		fstab, err := files.ReadFile("/target/etc/fstab")
		require.NoError(t, err)
		assert.Contains(t, string(fstab), "/dev/sda2\t/\txfs\tdefaults\t0\t1\n")
	})

	t.Run("unformatted", func(t *testing.T) {
		err := load(t, "network false\nhostname box\nkernel easy-kernel\nmount /dev/sdb1 /\n").Execute(context.Background())
		require.Error(t, err)
		assert.True(t, herrors.HasCode(err, herrors.CodeExecutionFailed))
		assert.Contains(t, err.Error(), "cannot determine filesystem type of /dev/sdb1")
	})
}

func TestExecutePartitionAfterFill(t *testing.T) {
	r := newRun(t, minimal+"partition /dev/sdb 1 fill\npartition /dev/sdb 2 1G\n")
	err := r.execute(t)
	require.Error(t, err)
	assert.True(t, herrors.HasCode(err, herrors.CodeConflict))
	assert.True(t, strings.HasPrefix(err.Error(), PhaseDisk+": "))
}

func TestExecuteHardFailureStops(t *testing.T) {
	r := newRun(t, minimal+"fs /dev/sda2 ext4\n")
	r.rec.Respond("mkfs.ext4", "", errors.New("device is busy"))

	err := r.execute(t)
	require.Error(t, err)
	assert.True(t, herrors.HasCode(err, herrors.CodeExecutionFailed))
	assert.True(t, strings.HasPrefix(err.Error(), "disk: "))

	_, ran := r.rec.Find("apk")
	assert.False(t, ran, "no phase runs after a hard failure")

	stream := r.stream.String()
	assert.Contains(t, stream, "\tstep-start\tdisk\n")
	assert.NotContains(t, stream, "\tstep-end\tdisk\n")
	errs := messages(r.rep, diag.SeverityError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "installfile:5: cannot create ext4 filesystem on /dev/sda2")
}

func TestExecuteValidationFailureStops(t *testing.T) {
	r := newRun(t, minimal+"fs /dev/sda2 ext4\nfs /dev/sda2 xfs\n")
	err := r.execute(t)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, r.rec.Calls)
	assert.Len(t, messages(r.rep, diag.SeverityError), 1)
}

func TestExecutePPPLinksRestartEachRun(t *testing.T) {
	r := newRun(t, strings.Replace(minimal, "network false", "network true", 1)+
		"pppoe eth0 username=user@isp password=s3cret\npppoe eth1\n")

	for i := 0; i < 2; i++ {
		require.NoError(t, r.execute(t))
		net := r.read(t, "/target/etc/conf.d/net")
		assert.Contains(t, net, "config_ppp0=")
		assert.Contains(t, net, "config_ppp1=")
		assert.NotContains(t, net, "ppp2")
	}
	r.index(t, "apk --root /target add adelie-base openrc shadow netifrc ppp")
}

func TestExecuteBootloaderEFI(t *testing.T) {
	text := minimal + "arch x86_64\nmount /dev/sda1 /boot/efi\nbootloader /dev/sda\n"
	r := newRun(t, text)
	r.rec.Respond("efibootmgr", "", errors.New("EFI variables are not writable"))
	require.NoError(t, r.execute(t))

	r.assertOrder(t,
		"apk --root /target add grub-efi",
		"grub-install --target=x86_64-efi --efi-directory=/target/boot/efi --boot-directory=/target/boot --bootloader-id=Adelie",
		"efibootmgr --create --disk /dev/sda --part 1",
		"chroot /target grub-mkconfig -o /boot/grub/grub.cfg",
	)

	id, err := system.NewSimulatedProbe(r.rec).FilesystemUUID(context.Background(), "/dev/sda2")
	require.NoError(t, err)
	stub := r.read(t, "/target/boot/efi/EFI/Adelie/grub.cfg")
	assert.Contains(t, stub, "search --no-floppy --fs-uuid --set=dev "+id)
	assert.Contains(t, stub, "set prefix=($dev)/boot/grub")

	warnings := messages(r.rep, diag.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "cannot register boot loader with firmware")
}

func TestExecuteBootloaderBIOS(t *testing.T) {
	r := newRun(t, minimal+"arch x86\nbootloader /dev/sda grub-bios\n")
	require.NoError(t, r.execute(t))
	assert.Equal(t, "x86\n", r.read(t, "/target/etc/apk/arch"))
	r.index(t, "grub-install --target=i386-pc --boot-directory=/target/boot /dev/sda")
	_, ok := r.rec.Find("efibootmgr")
	assert.False(t, ok)
}

func TestExecuteImageOnly(t *testing.T) {
	r := newRun(t, "network false\nhostname box\nkernel easy-kernel\nmount /dev/sda2 /\n", WithFlags(ImageOnly))
	require.NoError(t, r.execute(t))

	_, mounted := r.rec.Find("mount")
	assert.False(t, mounted)
	assert.Contains(t, r.read(t, "/target/etc/fstab"), "/dev/sda2\t/\t")
}

func TestExecuteTargetDirectory(t *testing.T) {
	r := newRun(t, minimal)
	r.script.SetTargetDirectory("/mnt/new")
	require.NoError(t, r.execute(t))
	assert.Equal(t, "box\n", r.read(t, "/mnt/new/etc/hostname"))
	r.index(t, "apk --root /mnt/new --initdb add")
}

func TestExecuteSimulate(t *testing.T) {
	var out bytes.Buffer
	s, err := LoadReader(strings.NewReader(minimal+"disklabel /dev/sda gpt\npartition /dev/sda 2 fill\nfs /dev/sda2 ext4\n"),
		"installfile", WithFlags(Simulate), WithOutput(&out), WithReporter(diag.NewReporter(nil)))
	require.NoError(t, err)
	require.NoError(t, s.Execute(context.Background()))

	got := strings.ReplaceAll(out.String(), "'", "")
	label := strings.Index(got, "parted -s /dev/sda mklabel gpt")
	mkfs := strings.Index(got, "mkfs.ext4 -F /dev/sda2")
	mount := strings.Index(got, "mount -t ext4 /dev/sda2 /target")
	apk := strings.Index(got, "apk --root /target add easy-kernel")
	require.GreaterOrEqual(t, label, 0)
	assert.Less(t, label, mkfs)
	assert.Less(t, mkfs, mount)
	assert.Less(t, mount, apk)
	assert.Contains(t, got, "cat >/target/etc/hostname")
}

func TestExecuteSigningKeyFingerprint(t *testing.T) {
	want := digest.FromString("trusted key\n")

	t.Run("match", func(t *testing.T) {
		r := newRun(t, minimal+"signingkey /srv/local.pub "+want.Encoded()+"\n")
		require.NoError(t, r.files.WriteFile("/srv/local.pub", []byte("trusted key\n"), 0o644))
		require.NoError(t, r.execute(t))
		assert.Equal(t, "trusted key\n", r.read(t, "/target/etc/apk/keys/local.pub"))
	})

	t.Run("mismatch", func(t *testing.T) {
		r := newRun(t, minimal+"signingkey /srv/local.pub "+want.String()+"\n")
		require.NoError(t, r.files.WriteFile("/srv/local.pub", []byte("forged key\n"), 0o644))

		err := r.execute(t)
		require.Error(t, err)
		assert.True(t, herrors.HasCode(err, herrors.CodeConflict))
		assert.True(t, strings.HasPrefix(err.Error(), PhasePkgDB+": "))

		ok, err := r.files.Exists("/target/etc/apk/keys/local.pub")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ran := r.rec.Find("apk")
		assert.False(t, ran)
	})
}

func TestExecuteUserIcon(t *testing.T) {
	text := minimal + "username alice\nusericon alice /srv/face.png\n"

	t.Run("image", func(t *testing.T) {
		r := newRun(t, text)
		png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
		require.NoError(t, r.files.WriteFile("/srv/face.png", png, 0o644))
		require.NoError(t, r.execute(t))

		assert.Empty(t, messages(r.rep, diag.SeverityWarning))
		assert.Equal(t, string(png), r.read(t, "/target/home/alice/.face"))
	})

	t.Run("not an image", func(t *testing.T) {
		r := newRun(t, text)
		require.NoError(t, r.files.WriteFile("/srv/face.png", []byte("hello\n"), 0o644))
		require.NoError(t, r.execute(t))

		warnings := messages(r.rep, diag.SeverityWarning)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "installfile:6: icon for alice is not an image")
		ok, err := r.files.Exists("/target" + IconDir + "/alice")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestExecuteWithoutEnvironment(t *testing.T) {
	s, _, err := load(t, minimal)
	require.NoError(t, err)
	err = s.Execute(context.Background())
	assert.True(t, herrors.HasCode(err, herrors.CodeUnsupported))
}

func TestExecuteCancelled(t *testing.T) {
	r := newRun(t, minimal)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.script.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.rec.Calls)
}

func mib(n uint64) string {
	return fmt.Sprintf("%dMiB", n)
}
