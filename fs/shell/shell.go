// Package shell implements a Filesystem that prints the POSIX shell
// equivalent of each mutation instead of performing it. Reads are served
// by an optional base filesystem.
package shell

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/apparentlymart/go-shquot/shquot"

	parentfs "github.com/horizon-installer/hscript/fs"
)

// heredocMarker terminates inline file contents.
const heredocMarker = "-HSCRIPT-EOF-"

var _ parentfs.Filesystem = (*FS)(nil)

// FS writes shell commands to an io.Writer.
type FS struct {
	w    io.Writer
	base parentfs.Filesystem
}

// New creates a shell FS writing to w. base may be nil, in which case every
// read reports that the file does not exist.
func New(w io.Writer, base parentfs.Filesystem) *FS {
	return &FS{w: w, base: base}
}

func (s *FS) cmd(argv ...string) error {
	if _, err := fmt.Fprintln(s.w, shquot.POSIXShell(argv)); err != nil {
		return fmt.Errorf("shell: write: %w", err)
	}
	return nil
}

func (s *FS) heredoc(redirect, name string, data []byte) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "cat %s%s <<'%s'\n", redirect, shquot.POSIXShell([]string{name}), heredocMarker)
	b.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString(heredocMarker + "\n")
	if _, err := s.w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("shell: write: %w", err)
	}
	return nil
}

// WriteFile implements Filesystem.WriteFile.
func (s *FS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err := s.cmd("mkdir", "-p", parentfs.Dir(name)); err != nil {
		return err
	}
	if err := s.heredoc(">", name, data); err != nil {
		return err
	}
	return s.chmod(name, perm)
}

// AppendFile implements Filesystem.AppendFile.
func (s *FS) AppendFile(name string, data []byte, _ os.FileMode) error {
	return s.heredoc(">>", name, data)
}

// CopyFile implements Filesystem.CopyFile.
func (s *FS) CopyFile(src, dst string, perm os.FileMode) error {
	if err := s.cmd("mkdir", "-p", parentfs.Dir(dst)); err != nil {
		return err
	}
	if err := s.cmd("cp", src, dst); err != nil {
		return err
	}
	return s.chmod(dst, perm)
}

func (s *FS) chmod(name string, perm os.FileMode) error {
	if perm == 0 || perm == 0o644 {
		return nil
	}
	return s.cmd("chmod", fmt.Sprintf("%o", perm.Perm()), name)
}

// MkdirAll implements Filesystem.MkdirAll.
func (s *FS) MkdirAll(name string, _ os.FileMode) error {
	return s.cmd("mkdir", "-p", name)
}

// Symlink implements Filesystem.Symlink.
func (s *FS) Symlink(target, link string) error {
	return s.cmd("ln", "-s", target, link)
}

// Rename implements Filesystem.Rename.
func (s *FS) Rename(from, to string) error {
	return s.cmd("mv", from, to)
}

// Remove implements Filesystem.Remove.
func (s *FS) Remove(name string) error {
	return s.cmd("rm", "-f", name)
}

// ReadFile implements Filesystem.ReadFile.
func (s *FS) ReadFile(name string) ([]byte, error) {
	if s.base == nil {
		return nil, fmt.Errorf("shell: readfile %q: %w", name, os.ErrNotExist)
	}
	return s.base.ReadFile(name)
}

// Exists implements Filesystem.Exists.
func (s *FS) Exists(name string) (bool, error) {
	if s.base == nil {
		return false, nil
	}
	return s.base.Exists(name)
}

// Stat implements Filesystem.Stat.
func (s *FS) Stat(name string) (os.FileInfo, error) {
	if s.base == nil {
		return nil, fmt.Errorf("shell: stat %q: %w", name, os.ErrNotExist)
	}
	return s.base.Stat(name)
}

// ReadDir implements Filesystem.ReadDir.
func (s *FS) ReadDir(name string) ([]os.FileInfo, error) {
	if s.base == nil {
		return nil, fmt.Errorf("shell: readdir %q: %w", name, os.ErrNotExist)
	}
	return s.base.ReadDir(name)
}

// Readlink implements Filesystem.Readlink.
func (s *FS) Readlink(link string) (string, error) {
	if s.base == nil {
		return "", fmt.Errorf("shell: readlink %q: %w", link, os.ErrNotExist)
	}
	return s.base.Readlink(link)
}
