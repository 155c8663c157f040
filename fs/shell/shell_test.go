package shell

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizon-installer/hscript/fs/billy"
)

// unquote drops single quotes so assertions do not depend on whether
// plain words are quoted.
func unquote(s string) string {
	return strings.ReplaceAll(s, "'", "")
}

func TestWriteFileHeredoc(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, nil)

	require.NoError(t, s.WriteFile("/target/etc/hostname", []byte("mail"), 0o644))

	want := "mkdir -p /target/etc\n" +
		"cat >/target/etc/hostname <<-HSCRIPT-EOF-\n" +
		"mail\n" +
		"-HSCRIPT-EOF-\n"
	assert.Equal(t, want, unquote(buf.String()))
}

func TestAppendAndMode(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, nil)

	require.NoError(t, s.AppendFile("/target/etc/fstab", []byte("/dev/sda1\t/\text4\tdefaults\t0\t1\n"), 0o644))
	require.NoError(t, s.CopyFile("/root/key.pub", "/target/etc/apk/keys/key.pub", 0o600))

	out := unquote(buf.String())
	assert.Contains(t, out, "cat >>/target/etc/fstab <<-HSCRIPT-EOF-\n")
	assert.Contains(t, out, "cp /root/key.pub /target/etc/apk/keys/key.pub\n")
	assert.Contains(t, out, "chmod 600 /target/etc/apk/keys/key.pub\n")
}

func TestQuoting(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, nil)

	require.NoError(t, s.Symlink("/etc/init.d/net.lo", "/target/etc/init.d/net.wlan 0"))

	assert.Contains(t, buf.String(), "'/target/etc/init.d/net.wlan 0'\n")
	assert.True(t, strings.HasPrefix(unquote(buf.String()), "ln -s /etc/init.d/net.lo "))
}

func TestReadsUseBase(t *testing.T) {
	base := billy.NewInMemoryFS()
	require.NoError(t, base.WriteFile("/scripts/a.hs", []byte("hostname a"), 0o644))

	s := New(&bytes.Buffer{}, base)
	data, err := s.ReadFile("/scripts/a.hs")
	require.NoError(t, err)
	assert.Equal(t, "hostname a", string(data))

	empty := New(&bytes.Buffer{}, nil)
	_, err = empty.ReadFile("/scripts/a.hs")
	assert.ErrorIs(t, err, os.ErrNotExist)
	ok, err := empty.Exists("/scripts/a.hs")
	require.NoError(t, err)
	assert.False(t, ok)
}
