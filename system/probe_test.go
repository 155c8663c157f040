package system

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
	"github.com/horizon-installer/hscript/fs/billy"
)

const udevOutput = `DEVNAME=/dev/sda
ID_MODEL=Samsung_SSD_860
ID_SERIAL=Samsung_SSD_860_S3Z9NB0K123456
ID_SERIAL_SHORT=S3Z9NB0K123456
`

func TestLiveProbeVerifyIdentity(t *testing.T) {
	rec := executor.NewRecorder()
	rec.Respond("udevadm info", udevOutput, nil)
	p := NewLiveProbe(rec)
	ctx := context.Background()

	assert.NoError(t, p.VerifyIdentity(ctx, "/dev/sda", "S3Z9NB0K"))
	assert.NoError(t, p.VerifyIdentity(ctx, "/dev/sda", "SSD_860"))

	err := p.VerifyIdentity(ctx, "/dev/sda", "WD_Blue")
	require.Error(t, err)
	assert.True(t, herrors.HasCode(err, herrors.CodeConflict))
}

func TestLiveProbeFilesystemUUID(t *testing.T) {
	ctx := context.Background()

	rec := executor.NewRecorder()
	rec.Respond("blkid -s UUID -o value /dev/sda2", "3F2504E0-4F89-11D3-9A0C-0305E82C3301\n", nil)
	rec.Respond("blkid -s UUID -o value /dev/sda1", "ABCD-1234\n", nil)
	rec.Respond("blkid -s UUID -o value /dev/sda3", "garbage\n", nil)
	p := NewLiveProbe(rec)

	id, err := p.FilesystemUUID(ctx, "/dev/sda2")
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", id)

	id, err = p.FilesystemUUID(ctx, "/dev/sda1")
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", id, "FAT serials are passed through")

	_, err = p.FilesystemUUID(ctx, "/dev/sda3")
	assert.Error(t, err)
}

func TestLiveProbeDiskSize(t *testing.T) {
	rec := executor.NewRecorder()
	rec.Respond("blockdev", "500107862016\n", nil)

	size, err := NewLiveProbe(rec).DiskSize(context.Background(), "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, uint64(500107862016), size)
}

func TestSimulatedProbe(t *testing.T) {
	var buf bytes.Buffer
	p := NewSimulatedProbe(executor.NewSimulator(&buf))
	ctx := context.Background()

	require.NoError(t, p.VerifyIdentity(ctx, "/dev/sda", "S3Z9"))
	assert.Contains(t, buf.String(), "grep")

	a, err := p.FilesystemUUID(ctx, "/dev/sda2")
	require.NoError(t, err)
	b, err := p.FilesystemUUID(ctx, "/dev/sda2")
	require.NoError(t, err)
	assert.Equal(t, a, b, "simulated UUIDs should be stable")
	_, err = uuid.Parse(a)
	assert.NoError(t, err)

	size, err := p.DiskSize(ctx, "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, DefaultSimulatedDiskSize, size)

	require.NoError(t, p.Settle(ctx))
	assert.True(t, strings.HasSuffix(strings.ReplaceAll(buf.String(), "'", ""), "udevadm settle\npartprobe\n"))
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/keys/packages.pub" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("-----BEGIN PUBLIC KEY-----\n"))
	}))
	defer srv.Close()

	files := billy.NewInMemoryFS()
	f := NewHTTPFetcher(files, nil)
	f.client.RetryMax = 0

	require.NoError(t, f.Download(context.Background(), srv.URL+"/keys/packages.pub", "/target/etc/apk/keys/packages.pub"))
	data, err := files.ReadFile("/target/etc/apk/keys/packages.pub")
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN PUBLIC KEY-----\n", string(data))

	err = f.Download(context.Background(), srv.URL+"/missing", "/target/x")
	require.Error(t, err)
	assert.True(t, herrors.HasCode(err, herrors.CodeNetwork))
}

func TestCommandMounts(t *testing.T) {
	rec := executor.NewRecorder()
	m := NewCommandMounts(rec)
	ctx := context.Background()

	require.NoError(t, m.Mount(ctx, "/dev/sda2", "/target", "ext4", "defaults"))
	require.NoError(t, m.Mount(ctx, "/dev/sda3", "/target/home", "xfs", "noatime"))
	require.NoError(t, m.BindMount(ctx, "/dev", "/target/dev"))

	assert.Equal(t, []string{
		"mount -t ext4 /dev/sda2 /target",
		"mount -t xfs -o noatime /dev/sda3 /target/home",
		"mount --rbind /dev /target/dev",
	}, rec.Lines())
}
