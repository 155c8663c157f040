package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
)

func TestPartedArgs(t *testing.T) {
	tests := []struct {
		name string
		part Partition
		want [][]string
	}{
		{
			name: "gpt with esp flag",
			part: Partition{Device: "/dev/sda", Index: 1, Table: "gpt", Start: 1, End: 257, Flags: []string{"esp"}},
			want: [][]string{
				{"parted", "-s", "-a", "optimal", "/dev/sda", "unit", "MiB", "mkpart", "part1", "1MiB", "257MiB"},
				{"parted", "-s", "/dev/sda", "set", "1", "esp", "on"},
			},
		},
		{
			name: "msdos fill",
			part: Partition{Device: "/dev/vda", Index: 2, Table: "msdos", Start: 513},
			want: [][]string{
				{"parted", "-s", "-a", "optimal", "/dev/vda", "unit", "MiB", "mkpart", "primary", "513MiB", "100%"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PartedArgs(tt.part))
		})
	}
}

func TestLVCreateArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"lvcreate", "--yes", "-n", "root", "-L", "10737418240B", "sys"},
		LVCreateArgs("sys", "root", Size{Kind: SizeBytes, Bytes: 10 * GiB}))
	assert.Equal(t,
		[]string{"lvcreate", "--yes", "-n", "home", "-l", "40%VG", "sys"},
		LVCreateArgs("sys", "home", Size{Kind: SizePercent, Percent: 40}))
	assert.Equal(t,
		[]string{"lvcreate", "--yes", "-n", "srv", "-l", "100%FREE", "sys"},
		LVCreateArgs("sys", "srv", Size{Kind: SizeFill}))
}

func TestCreatePVExisting(t *testing.T) {
	rec := executor.NewRecorder()
	rec.Respond("pvs", "  /dev/sda2 sys lvm2\n", nil)
	tools := NewTools(rec, true, nil)

	require.NoError(t, tools.CreatePV(context.Background(), "/dev/sda2"))

	_, created := rec.Find("pvcreate")
	assert.False(t, created, "existing physical volume should not be recreated")
}

func TestCreatePVMissing(t *testing.T) {
	rec := executor.NewRecorder()
	rec.Respond("pvs", "", errors.New("not a physical volume"))
	tools := NewTools(rec, true, nil)

	require.NoError(t, tools.CreatePV(context.Background(), "/dev/sda2"))

	assert.Equal(t, []string{"pvs --noheadings /dev/sda2", "pvcreate --force /dev/sda2"}, rec.Lines())
}

func TestCreateVGConflict(t *testing.T) {
	rec := executor.NewRecorder()
	rec.Respond("vgs", "  /dev/sdb1\n", nil)
	tools := NewTools(rec, true, nil)

	err := tools.CreateVG(context.Background(), "sys", "/dev/sda2")
	require.Error(t, err)
	assert.True(t, herrors.HasCode(err, herrors.CodeConflict))

	require.NoError(t, tools.CreateVG(context.Background(), "sys", "/dev/sdb1"),
		"group on the same physical volume should be accepted")
}

func TestCreateWithoutQuery(t *testing.T) {
	rec := executor.NewRecorder()
	tools := NewTools(rec, false, nil)
	ctx := context.Background()

	require.NoError(t, tools.CreatePV(ctx, "/dev/sda2"))
	require.NoError(t, tools.CreateVG(ctx, "sys", "/dev/sda2"))
	require.NoError(t, tools.CreateLV(ctx, "sys", "root", Size{Kind: SizeFill}))

	assert.Equal(t, []string{
		"pvcreate --force /dev/sda2",
		"vgcreate sys /dev/sda2",
		"lvcreate --yes -n root -l 100%FREE sys",
	}, rec.Lines())
}

func TestEncryptPassphraseOnStdin(t *testing.T) {
	rec := executor.NewRecorder()
	tools := NewTools(rec, false, nil)

	mapped, err := tools.Encrypt(context.Background(), "/dev/sda3", "sda3-crypt", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "/dev/mapper/sda3-crypt", mapped)

	require.Len(t, rec.Calls, 2)
	for _, call := range rec.Calls {
		assert.Equal(t, "hunter2", call.Options.Input)
		assert.NotContains(t, call.Line(), "hunter2", "passphrase must not be on the command line")
	}
}

func TestFormat(t *testing.T) {
	rec := executor.NewRecorder()
	tools := NewTools(rec, false, nil)

	require.NoError(t, tools.Format(context.Background(), "/dev/sda1", "vfat"))
	require.NoError(t, tools.Format(context.Background(), "/dev/sda2", "hfs+"))
	err := tools.Format(context.Background(), "/dev/sda3", "ntfs")
	require.Error(t, err)
	assert.True(t, herrors.HasCode(err, herrors.CodeUnsupported))

	assert.Equal(t, []string{"mkfs.vfat -F 32 /dev/sda1", "mkfs.hfsplus /dev/sda2"}, rec.Lines())
}

func TestSizeString(t *testing.T) {
	assert.Equal(t, "2G", Size{Bytes: 2 * GiB}.String())
	assert.Equal(t, "1536M", Size{Bytes: 1536 * MiB}.String())
	assert.Equal(t, "100", Size{Bytes: 100}.String())
	assert.Equal(t, "25%", Size{Kind: SizePercent, Percent: 25}.String())
	assert.Equal(t, "fill", Size{Kind: SizeFill}.String())
}
