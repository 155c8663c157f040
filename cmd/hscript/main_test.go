package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizon-installer/hscript/fs/billy"
)

const installfile = `network false
hostname box.example.com
kernel easy-kernel
disklabel /dev/sda gpt
partition /dev/sda 1 fill
fs /dev/sda1 ext4
mount /dev/sda1 /
rootpw $6$saltsalt$0123456789abcdef
`

type testMeta struct {
	Meta
	ui     *cli.MockUi
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newMeta(t *testing.T, files map[string]string) *testMeta {
	t.Helper()
	fsys := billy.NewInMemoryFS()
	for name, content := range files {
		require.NoError(t, fsys.WriteFile(name, []byte(content), 0o644))
	}
	m := &testMeta{ui: cli.NewMockUi(), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	m.Meta = Meta{Ui: m.ui, Stdout: m.stdout, Stderr: m.stderr, Files: fsys}
	return m
}

func TestValidate(t *testing.T) {
	m := newMeta(t, map[string]string{DefaultScript: installfile})
	c := &ValidateCommand{Meta: m.Meta}

	code := c.Run(nil)
	require.Equal(t, 0, code, m.ui.ErrorWriter.String())
	assert.Contains(t, m.ui.OutputWriter.String(), "/etc/horizon/installfile is valid (0 warning(s))")
}

func TestValidateReportsErrors(t *testing.T) {
	m := newMeta(t, map[string]string{"/tmp/bad": installfile + "hostname other\npartition /dev/sda 0 1G\n"})
	c := &ValidateCommand{Meta: m.Meta}

	code := c.Run([]string{"-keep-going", "/tmp/bad"})
	assert.Equal(t, 1, code)
	assert.Contains(t, m.ui.ErrorWriter.String(), "2 error(s)")
	assert.Contains(t, m.stderr.String(), "\tlog\terror: /tmp/bad:9: duplicate value for key 'hostname'")
	assert.NotContains(t, m.stderr.String(), "\x1b[")
}

func TestValidateUsage(t *testing.T) {
	m := newMeta(t, nil)
	c := &ValidateCommand{Meta: m.Meta}

	assert.Equal(t, 1, c.Run([]string{"-bogus"}))
	assert.Equal(t, 1, c.Run([]string{"one", "two"}))
	assert.Contains(t, m.ui.ErrorWriter.String(), "expected at most one script")
}

func TestExecuteSimulate(t *testing.T) {
	m := newMeta(t, map[string]string{DefaultScript: installfile})
	c := &ExecuteCommand{Meta: m.Meta}

	code := c.Run([]string{"-simulate", "-target=/mnt/new"})
	require.Equal(t, 0, code, m.ui.ErrorWriter.String())

	out := strings.ReplaceAll(m.stdout.String(), "'", "")
	label := strings.Index(out, "parted -s /dev/sda mklabel gpt")
	mkfs := strings.Index(out, "mkfs.ext4 -F /dev/sda1")
	kernel := strings.Index(out, "apk --root /mnt/new add easy-kernel")
	require.GreaterOrEqual(t, label, 0)
	assert.Less(t, label, mkfs)
	assert.Less(t, mkfs, kernel)
	assert.Contains(t, out, "chpasswd -R /mnt/new -e")

	assert.Contains(t, m.stderr.String(), "\tstep-end\tpost-metadata\n")
}

func TestExecuteRequiresInstallOrSimulate(t *testing.T) {
	m := newMeta(t, map[string]string{DefaultScript: installfile})
	c := &ExecuteCommand{Meta: m.Meta}

	assert.Equal(t, 1, c.Run(nil))
	assert.Contains(t, m.ui.ErrorWriter.String(), "without -install")
	assert.Empty(t, m.stdout.String())
}

func TestDump(t *testing.T) {
	m := newMeta(t, map[string]string{DefaultScript: installfile})
	c := &DumpCommand{Meta: m.Meta}

	code := c.Run(nil)
	require.Equal(t, 0, code, m.ui.ErrorWriter.String())
	out := m.ui.OutputWriter.String()
	assert.Contains(t, out, "key: hostname")
	assert.Contains(t, out, "value: box.example.com")
	assert.Contains(t, out, "location: /etc/horizon/installfile:2")
	assert.Contains(t, out, "value: (redacted)")
	assert.NotContains(t, out, "0123456789abcdef")
}

func TestRealMainReadsStdin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := realMain([]string{"dump", "-"}, strings.NewReader(installfile), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "location: <stdin>:3")
}

func TestRealMainUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := realMain([]string{"frobnicate"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 127, code)
	assert.Contains(t, stderr.String(), "validate")
}
